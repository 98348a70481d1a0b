package metrics

import "time"

type NoopCollector struct{}

var _ UpdaterMetrics = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (nc *NoopCollector) BlockAccepted() {}
func (nc *NoopCollector) BlockRejected() {}
func (nc *NoopCollector) MicroBlockAccepted() {}
func (nc *NoopCollector) MicroBlockRejected(string) {}
func (nc *NoopCollector) MicroBlockFork(int) {}
func (nc *NoopCollector) BlockForged(time.Duration) {}
func (nc *NoopCollector) LiquidChainLength(int) {}
