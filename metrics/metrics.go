package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespaceNode    = "liquid_node"
	subsystemUpdater = "updater"
)

// Microblock rejection reasons.
const (
	ReasonNoBaseBlock      = "no_base_block"
	ReasonForeignGenerator = "foreign_generator"
	ReasonBlockMicroFork   = "block_micro_fork"
	ReasonMicroMicroFork   = "micro_micro_fork"
	ReasonDuplicate        = "duplicate"
	ReasonSignature        = "signature"
	ReasonDiff             = "diff"
)

// UpdaterMetrics records decisions of the blockchain updater.
type UpdaterMetrics interface {
	BlockAccepted()
	BlockRejected()
	MicroBlockAccepted()
	MicroBlockRejected(reason string)
	// MicroBlockFork is called when appending a block discards microblocks.
	MicroBlockFork(discarded int)
	BlockForged(duration time.Duration)
	LiquidChainLength(micros int)
}

type UpdaterCollector struct {
	blocksAccepted      prometheus.Counter
	blocksRejected      prometheus.Counter
	microBlocksAccepted prometheus.Counter
	microBlocksRejected *prometheus.CounterVec
	microBlockForks     prometheus.Counter
	microForkHeight     prometheus.Histogram
	forgeDuration       prometheus.Histogram
	liquidChainLength   prometheus.Gauge
}

var _ UpdaterMetrics = (*UpdaterCollector)(nil)

func NewUpdaterCollector(registerer prometheus.Registerer) *UpdaterCollector {
	factory := promauto.With(registerer)
	return &UpdaterCollector{
		blocksAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name:      "blocks_accepted_total",
			Namespace: namespaceNode,
			Subsystem: subsystemUpdater,
			Help:      "number of blocks that became the liquid base",
		}),
		blocksRejected: factory.NewCounter(prometheus.CounterOpts{
			Name:      "blocks_rejected_total",
			Namespace: namespaceNode,
			Subsystem: subsystemUpdater,
			Help:      "number of blocks rejected by the updater",
		}),
		microBlocksAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name:      "microblocks_accepted_total",
			Namespace: namespaceNode,
			Subsystem: subsystemUpdater,
			Help:      "number of microblocks appended to the liquid chain",
		}),
		microBlocksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "microblocks_rejected_total",
			Namespace: namespaceNode,
			Subsystem: subsystemUpdater,
			Help:      "number of microblocks rejected, by reason",
		}, []string{"reason"}),
		microBlockForks: factory.NewCounter(prometheus.CounterOpts{
			Name:      "microblock_forks_total",
			Namespace: namespaceNode,
			Subsystem: subsystemUpdater,
			Help:      "number of blocks that referenced an older microblock and discarded the rest",
		}),
		microForkHeight: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "microblock_fork_height",
			Namespace: namespaceNode,
			Subsystem: subsystemUpdater,
			Help:      "number of microblocks discarded per microblock fork",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		forgeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "forge_duration_seconds",
			Namespace: namespaceNode,
			Subsystem: subsystemUpdater,
			Help:      "time spent forging a block from the liquid chain",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		liquidChainLength: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "liquid_microblocks",
			Namespace: namespaceNode,
			Subsystem: subsystemUpdater,
			Help:      "number of microblocks in the current liquid chain",
		}),
	}
}

func (c *UpdaterCollector) BlockAccepted() {
	c.blocksAccepted.Inc()
}

func (c *UpdaterCollector) BlockRejected() {
	c.blocksRejected.Inc()
}

func (c *UpdaterCollector) MicroBlockAccepted() {
	c.microBlocksAccepted.Inc()
}

func (c *UpdaterCollector) MicroBlockRejected(reason string) {
	c.microBlocksRejected.WithLabelValues(reason).Inc()
}

func (c *UpdaterCollector) MicroBlockFork(discarded int) {
	c.microBlockForks.Inc()
	c.microForkHeight.Observe(float64(discarded))
}

func (c *UpdaterCollector) BlockForged(duration time.Duration) {
	c.forgeDuration.Observe(duration.Seconds())
}

func (c *UpdaterCollector) LiquidChainLength(micros int) {
	c.liquidChainLength.Set(float64(micros))
}
