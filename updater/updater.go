// Package updater owns the liquid state of the node. It decides which
// blocks and microblocks are accepted, keeps the single current liquid
// chain, and folds it into the durable store when a new block confirms it.
package updater

import (
	"errors"
	"sync"
	"time"

	"liquid-node/diff"
	"liquid-node/liquid"
	"liquid-node/metrics"
	"liquid-node/models"
	"liquid-node/notify"
	"liquid-node/repository"
	"liquid-node/state"
)

// Differ computes the state diff produced by a block or microblock.
type Differ interface {
	ComputeForBlock(reader state.Reader, prev *models.Block, block *models.Block) (diff.Diff, error)
	ComputeForMicroBlock(reader state.Reader, lastBlockTimestamp *int64, micro *models.MicroBlock, baseBlockTimestamp int64) (diff.Diff, error)
}

// Verifier checks generator signatures.
type Verifier interface {
	ValidateBlock(b *models.Block) error
	ValidateMicroBlock(m *models.MicroBlock) error
}

// FeatureTracker evaluates feature approval and activation.
type FeatureTracker interface {
	CheckActivated(height int) error
	ApprovedWith(height int, block *models.Block) ([]models.FeatureID, error)
}

// Updater is safe for concurrent use. Writes (ProcessBlock,
// ProcessMicroBlock, RemoveAfter) are serialized and run to completion under
// an exclusive lock, including the durable store calls they make; reads
// share the lock and see the liquid chain either before or after a write.
type Updater struct {
	store    repository.ChainRepositoryInterface
	differ   Differ
	verifier Verifier
	tracker  FeatureTracker
	metrics  metrics.UpdaterMetrics
	tips     *notify.Broadcaster
	now      func() int64

	mu sync.RWMutex
	ng *liquid.Chain // nil when the durable tip is the frontier
}

type Option func(*Updater)

func WithMetrics(m metrics.UpdaterMetrics) Option {
	return func(u *Updater) {
		u.metrics = m
	}
}

// WithClock sets the source of acceptance timestamps, in unix ms.
func WithClock(now func() int64) Option {
	return func(u *Updater) {
		u.now = now
	}
}

func WithBroadcaster(b *notify.Broadcaster) Option {
	return func(u *Updater) {
		u.tips = b
	}
}

func New(store repository.ChainRepositoryInterface, differ Differ, verifier Verifier, tracker FeatureTracker, opts ...Option) *Updater {
	u := &Updater{
		store:    store,
		differ:   differ,
		verifier: verifier,
		tracker:  tracker,
		metrics:  metrics.NewNoopCollector(),
		tips:     notify.NewBroadcaster(),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Updater) withWriteLock(fn func() error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn()
}

func (u *Updater) withReadLock(fn func()) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	fn()
}

// setChain must be called with the write lock held.
func (u *Updater) setChain(ng *liquid.Chain) {
	u.ng = ng
	if ng == nil {
		u.metrics.LiquidChainLength(0)
		return
	}
	u.metrics.LiquidChainLength(len(ng.MicroBlocks()))
}

// Subscribe returns a channel of newly accepted tip ids. Events are dropped
// for a subscriber whose buffer is full.
func (u *Updater) Subscribe(buffer int) (<-chan models.BlockID, func()) {
	return u.tips.Subscribe(buffer)
}

// LiquidChain returns the current liquid chain snapshot, or nil.
func (u *Updater) LiquidChain() *liquid.Chain {
	var ng *liquid.Chain
	u.withReadLock(func() {
		ng = u.ng
	})
	return ng
}

// BestLiquidState returns account state as of the best liquid position.
// The view must not be retained across writes.
func (u *Updater) BestLiquidState() state.Reader {
	var r state.Reader
	u.withReadLock(func() {
		if u.ng == nil {
			r = u.store
			return
		}
		r = state.Composite(u.store, u.ng.BestLiquidDiff())
	})
	return r
}

// History returns the block history including the liquid tip.
func (u *Updater) History() *History {
	var h *History
	u.withReadLock(func() {
		h = &History{store: u.store, ng: u.ng}
	})
	return h
}

// BestLastBlockInfo returns what a producer should build on at maxTimestamp.
func (u *Updater) BestLastBlockInfo(maxTimestamp int64) (models.BlockMinerInfo, error) {
	var (
		info models.BlockMinerInfo
		err  error
	)
	u.withReadLock(func() {
		if u.ng != nil {
			info = u.ng.BestLastBlockInfo(maxTimestamp)
			return
		}
		last := u.store.LastBlock()
		if last == nil {
			err = errors.New("blockchain is empty")
			return
		}
		info = models.BlockMinerInfo{
			BlockID:             last.ID(),
			BaseTarget:          last.BaseTarget,
			GenerationSignature: last.GenerationSignature,
			Timestamp:           last.Timestamp,
		}
	})
	return info, err
}
