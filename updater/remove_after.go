package updater

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"liquid-node/logger"
	"liquid-node/models"
	"liquid-node/repository"
)

// RemoveAfter rolls the chain back so that blockID is the tip and returns
// the transactions that left the chain.
//
// When blockID is a position of the liquid chain, the chain is cut there and
// only the microblocks after it are discarded; the durable store is not
// touched. Otherwise the durable store is rolled back first and the whole
// liquid chain is dropped; the result lists the durable transactions
// followed by the liquid ones.
func (u *Updater) RemoveAfter(blockID models.BlockID) ([]*models.Transaction, error) {
	var discarded []*models.Transaction
	err := u.withWriteLock(func() error {
		ng := u.ng
		if ng != nil && ng.Contains(blockID) {
			cut, dropped, _ := ng.TruncateTo(blockID)
			if len(dropped) == 0 {
				logger.Logger.Debug("Rollback target is already the liquid tip", zap.String("block_id", string(blockID)))
				return nil
			}
			u.setChain(cut)
			discarded = models.TransactionsOf(dropped)
			logger.Logger.Info("Liquid chain truncated",
				zap.String("block_id", string(blockID)),
				zap.Int("dropped_microblocks", len(dropped)))
			u.tips.Publish(blockID)
			return nil
		}

		recovered, err := u.store.RollbackTo(blockID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: rollback target %s: %w", ErrBadReference, blockID.Short(), err)
		}
		if err != nil {
			return fmt.Errorf("could not roll back to %s: %w", blockID.Short(), err)
		}
		if ng != nil {
			recovered = append(recovered, ng.Transactions()...)
		}
		u.setChain(nil)
		if len(recovered) > 0 || ng != nil {
			logger.Logger.Info("Rolled back durable state",
				zap.String("block_id", string(blockID)),
				zap.Int("discarded_transactions", len(recovered)))
			u.tips.Publish(blockID)
		}
		discarded = recovered
		return nil
	})
	if err != nil {
		return nil, err
	}
	return discarded, nil
}
