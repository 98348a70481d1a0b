package updater

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"liquid-node/diff"
	"liquid-node/liquid"
	"liquid-node/logger"
	"liquid-node/models"
	"liquid-node/state"
)

// accepted is the outcome of a successful block decision.
type accepted struct {
	diff      diff.Diff
	discarded []*models.Transaction
	persisted bool // the previous liquid chain was forged into the durable store
}

// ProcessBlock decides whether block becomes the new liquid base. On success
// it returns the transactions that left the chain and should go back to the
// pending pool. A block that is an equal or poorer version of the current
// base is ignored without error.
func (u *Updater) ProcessBlock(block *models.Block) ([]*models.Transaction, error) {
	var discarded []*models.Transaction
	err := u.withWriteLock(func() error {
		var err error
		discarded, err = u.processBlock(block)
		return err
	})
	if err != nil {
		u.metrics.BlockRejected()
		logger.Logger.Debug("Block rejected", zap.String("block_id", string(block.ID())), zap.Error(err))
		return nil, err
	}
	return discarded, nil
}

func (u *Updater) processBlock(block *models.Block) ([]*models.Transaction, error) {
	if err := u.tracker.CheckActivated(u.store.Height()); err != nil {
		return nil, err
	}

	var (
		res *accepted
		err error
	)
	ng := u.ng
	switch {
	case ng == nil:
		res, err = u.appendOnDurable(block)
	case ng.Base().Reference == block.Reference:
		res, err = u.competeWithBase(ng, block)
	default:
		res, err = u.forgeAndAppend(ng, block)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	// Approval reads the persisted voting window, which must already hold
	// a forged block. A failure here after a forge is the only rejection
	// that leaves state changed: the forged block stays durable and the
	// liquid chain is dropped, since its base is now in the store.
	approved, err := u.tracker.ApprovedWith(u.store.Height()+1, block)
	if err != nil {
		if res.persisted {
			u.setChain(nil)
			logger.Logger.Error("Feature approval failed after forging, liquid chain dropped",
				zap.String("block_id", string(block.ID())),
				zap.Int("height", u.store.Height()),
				zap.Error(err))
		}
		return nil, err
	}

	u.setChain(liquid.New(block, res.diff, approved, u.now()))
	u.metrics.BlockAccepted()
	logger.Logger.Info("Block appended to liquid state",
		zap.String("block_id", string(block.ID())),
		zap.String("reference", string(block.Reference)),
		zap.Int("transactions", len(block.Transactions)),
		zap.Int("discarded", len(res.discarded)))
	u.tips.Publish(block.ID())
	return res.discarded, nil
}

func (u *Updater) computeOnDurable(block *models.Block) (diff.Diff, error) {
	d, err := u.differ.ComputeForBlock(u.store, u.store.LastBlock(), block)
	if err != nil {
		return diff.Diff{}, fmt.Errorf("%w: %s: %w", ErrDiffComputation, block, err)
	}
	return d, nil
}

func (u *Updater) appendOnDurable(block *models.Block) (*accepted, error) {
	last := u.store.LastBlock()
	switch {
	case last == nil && block.Reference != "":
		return nil, fmt.Errorf("%w: %s on empty blockchain", ErrBadReference, block)
	case last != nil && last.ID() != block.Reference:
		return nil, fmt.Errorf("%w: %s, last block is %s", ErrBadReference, block, last.ID().Short())
	}
	d, err := u.computeOnDurable(block)
	if err != nil {
		return nil, err
	}
	return &accepted{diff: d}, nil
}

// competeWithBase applies fork choice between block and the current base,
// which share a parent.
func (u *Updater) competeWithBase(ng *liquid.Chain, block *models.Block) (*accepted, error) {
	base := ng.Base()
	switch {
	case block.Score().Cmp(base.Score()) > 0:
		d, err := u.computeOnDurable(block)
		if err != nil {
			return nil, err
		}
		logger.Logger.Debug("Better liquid block received and applied instead of existing",
			zap.String("block_id", string(block.ID())),
			zap.String("score", block.Score().String()),
			zap.String("existing_score", base.Score().String()))
		return &accepted{diff: d, discarded: ng.MicroTransactions()}, nil

	case models.VersionsOfSameBlock(block, base):
		if len(block.Transactions) <= len(ng.Transactions()) {
			logger.Logger.Debug("Existing liquid block is better than new one, discarding",
				zap.String("block_id", string(block.ID())))
			return nil, nil
		}
		d, err := u.computeOnDurable(block)
		if err != nil {
			return nil, err
		}
		logger.Logger.Debug("New liquid block is better version of existing, swapping",
			zap.String("block_id", string(block.ID())))
		return &accepted{diff: d}, nil

	default:
		return nil, fmt.Errorf("%w: %s (score %s), existing %s (score %s)",
			ErrNotBetterCompetitor, block, block.Score(), base, base.Score())
	}
}

// forgeAndAppend persists the liquid chain up to block.Reference as a full
// block and computes block's diff on top of it.
func (u *Updater) forgeAndAppend(ng *liquid.Chain, block *models.Block) (*accepted, error) {
	start := time.Now()
	forged, ok := ng.ForgeBlock(block.Reference, u.verifier)
	u.metrics.BlockForged(time.Since(start))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBadReference, block)
	}
	if !forged.Valid() {
		logger.Logger.Error("Forged block has invalid signature",
			zap.String("base", string(ng.Base().ID())),
			zap.String("reference", string(block.Reference)),
			zap.Error(forged.Err))
		return nil, fmt.Errorf("%w: base %s, requested reference %s: %w",
			ErrInvalidForgedSignature, ng.Base(), block.Reference.Short(), forged.Err)
	}

	// the cumulative diff includes the base block, so the composed height is
	// one above the durable store
	referenced, _ := ng.DiffUpTo(block.Reference)
	d, err := u.differ.ComputeForBlock(state.Composite(u.store, referenced), forged.Block, block)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDiffComputation, block, err)
	}

	if err := u.store.Append(referenced, forged.Block, ng.ApprovedFeatures()); err != nil {
		return nil, fmt.Errorf("could not persist forged block %s: %w", forged.Block, err)
	}
	if len(forged.Discarded) > 0 {
		u.metrics.MicroBlockFork(len(forged.Discarded))
		logger.Logger.Info("Microblocks discarded by new block",
			zap.String("block_id", string(block.ID())),
			zap.Int("discarded_microblocks", len(forged.Discarded)))
	}
	return &accepted{
		diff:      d,
		discarded: models.TransactionsOf(forged.Discarded),
		persisted: true,
	}, nil
}
