// Package diff holds the account-state delta that blocks and microblocks
// produce. Diffs form a monoid: Empty is the identity and Combine is
// associative, so any grouping of a chain of diffs yields the same result.
package diff

import "liquid-node/models"

type Diff struct {
	Portfolios   map[models.Address]int64       `json:"portfolios"`   // balance delta per account
	Transactions map[string]*models.Transaction `json:"transactions"` // transactions applied, by id
	HeightDiff   int                            `json:"height_diff"`  // 1 per block, 0 per microblock
}

func Empty() Diff {
	return Diff{
		Portfolios:   map[models.Address]int64{},
		Transactions: map[string]*models.Transaction{},
	}
}

// Combine returns the diff equivalent to applying older and then newer.
// Neither argument is modified.
func Combine(older, newer Diff) Diff {
	out := Diff{
		Portfolios:   make(map[models.Address]int64, len(older.Portfolios)+len(newer.Portfolios)),
		Transactions: make(map[string]*models.Transaction, len(older.Transactions)+len(newer.Transactions)),
		HeightDiff:   older.HeightDiff + newer.HeightDiff,
	}
	for addr, v := range older.Portfolios {
		out.Portfolios[addr] = v
	}
	for addr, v := range newer.Portfolios {
		out.Portfolios[addr] += v
	}
	for id, tx := range older.Transactions {
		out.Transactions[id] = tx
	}
	for id, tx := range newer.Transactions {
		out.Transactions[id] = tx
	}
	return out
}

// CombineAll folds diffs left to right starting from Empty.
func CombineAll(diffs ...Diff) Diff {
	acc := Empty()
	for _, d := range diffs {
		acc = Combine(acc, d)
	}
	return acc
}

// Balance returns the delta recorded for addr.
func (d Diff) Balance(addr models.Address) int64 {
	return d.Portfolios[addr]
}

func (d Diff) ContainsTransaction(id string) bool {
	_, ok := d.Transactions[id]
	return ok
}

// Credit adds amount to the delta of addr in place.
func (d *Diff) Credit(addr models.Address, amount int64) {
	if d.Portfolios == nil {
		d.Portfolios = map[models.Address]int64{}
	}
	d.Portfolios[addr] += amount
}

// AddTransaction records tx in place.
func (d *Diff) AddTransaction(tx *models.Transaction) {
	if d.Transactions == nil {
		d.Transactions = map[string]*models.Transaction{}
	}
	d.Transactions[tx.ID] = tx
}
