package updater

import (
	"fmt"

	"go.uber.org/zap"

	"liquid-node/logger"
	"liquid-node/metrics"
	"liquid-node/models"
	"liquid-node/state"
)

// ProcessMicroBlock appends m to the liquid chain. Nothing is discarded.
func (u *Updater) ProcessMicroBlock(m *models.MicroBlock) error {
	return u.withWriteLock(func() error {
		reason, err := u.processMicroBlock(m)
		if err != nil {
			u.metrics.MicroBlockRejected(reason)
			logger.Logger.Debug("MicroBlock rejected",
				zap.String("total_res_block_sig", string(m.TotalResBlockSig)),
				zap.String("reason", reason),
				zap.Error(err))
			return err
		}
		return nil
	})
}

// processMicroBlock returns the metrics reason along with any rejection.
func (u *Updater) processMicroBlock(m *models.MicroBlock) (string, error) {
	ng := u.ng
	if ng == nil {
		return metrics.ReasonNoBaseBlock, fmt.Errorf("%w: no base block exists for %s", ErrMicroBlockLinkage, m)
	}
	base := ng.Base()
	if !base.Generator.Equal(m.Generator) {
		return metrics.ReasonForeignGenerator, fmt.Errorf("%w: base block has been generated by another account", ErrMicroBlockLinkage)
	}
	if last := ng.LastMicroBlock(); last == nil {
		if m.PrevResBlockSig != base.ID() {
			return metrics.ReasonBlockMicroFork, fmt.Errorf("%w: first microblock %s does not reference base block %s", ErrMicroBlockLinkage, m, base.ID().Short())
		}
	} else if m.PrevResBlockSig != last.TotalResBlockSig {
		return metrics.ReasonMicroMicroFork, fmt.Errorf("%w: %s does not reference last known microblock %s", ErrMicroBlockLinkage, m, last.TotalResBlockSig.Short())
	}
	if ng.Contains(m.TotalResBlockSig) {
		return metrics.ReasonDuplicate, fmt.Errorf("%w: %s is already in the liquid chain", ErrMicroBlockLinkage, m)
	}
	if _, err := m.TotalResBlockSig.Signature(); err != nil {
		return metrics.ReasonSignature, fmt.Errorf("%w: %w", ErrMicroBlockLinkage, err)
	}
	if err := u.verifier.ValidateMicroBlock(m); err != nil {
		return metrics.ReasonSignature, fmt.Errorf("%w: %w", ErrMicroBlockLinkage, err)
	}

	var lastTimestamp *int64
	if ts, ok := u.store.LastBlockTimestamp(); ok {
		lastTimestamp = &ts
	}
	d, err := u.differ.ComputeForMicroBlock(state.Composite(u.store, ng.BestLiquidDiff()), lastTimestamp, m, base.Timestamp)
	if err != nil {
		return metrics.ReasonDiff, fmt.Errorf("%w: %s: %w", ErrDiffComputation, m, err)
	}

	next, err := ng.Append(m, d, u.now())
	if err != nil {
		return metrics.ReasonDuplicate, fmt.Errorf("%w: %w", ErrMicroBlockLinkage, err)
	}
	u.setChain(next)
	u.metrics.MicroBlockAccepted()
	logger.Logger.Info("MicroBlock appended",
		zap.String("total_res_block_sig", string(m.TotalResBlockSig)),
		zap.Int("transactions", len(m.Transactions)),
		zap.Int("liquid_microblocks", len(next.MicroBlocks())))
	u.tips.Publish(m.TotalResBlockSig)
	return "", nil
}
