package liquid

import "liquid-node/models"

// BlockValidator re-checks the signature of a forged block.
type BlockValidator interface {
	ValidateBlock(b *models.Block) error
}

// Forged is the result of rebuilding a full block from a chain prefix.
type Forged struct {
	Block     *models.Block
	Discarded []*models.MicroBlock // microblocks after the forged position
	Err       error                // signature re-validation failure
}

func (f Forged) Valid() bool {
	return f.Err == nil
}

// ForgeBlock rebuilds the block the chain resolved to at reference: the base
// block carrying its own transactions plus those of every microblock up to
// and including reference, signed with reference. It reports false when
// reference is not a position of the chain.
func (c *Chain) ForgeBlock(reference models.BlockID, v BlockValidator) (Forged, bool) {
	k := c.index(reference)
	if k < 0 {
		return Forged{}, false
	}
	discarded := append([]*models.MicroBlock(nil), c.micros[k:]...)
	if k == 0 {
		return Forged{Block: c.base, Discarded: discarded, Err: v.ValidateBlock(c.base)}, true
	}

	sig, err := reference.Signature()
	if err != nil {
		return Forged{Discarded: discarded, Err: err}, true
	}
	txs := make([]*models.Transaction, 0, len(c.base.Transactions))
	txs = append(txs, c.base.Transactions...)
	txs = append(txs, models.TransactionsOf(c.micros[:k])...)
	forged := c.base.WithTransactions(txs, sig)
	return Forged{Block: forged, Discarded: discarded, Err: v.ValidateBlock(forged)}, true
}
