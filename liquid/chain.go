// Package liquid holds the not-yet-persisted tip of the blockchain: a base
// block followed by the microblocks that extend it.
//
// A Chain never changes once built. Append and TruncateTo return new chains,
// so a reader holding a *Chain always sees one consistent snapshot.
package liquid

import (
	"errors"
	"fmt"

	"liquid-node/diff"
	"liquid-node/models"
)

var (
	// ErrNotTip is returned when a microblock does not extend the chain tip.
	ErrNotTip = errors.New("microblock does not extend the liquid chain tip")
	// ErrDuplicatePosition is returned when a microblock's resulting id is already a position.
	ErrDuplicatePosition = errors.New("microblock resulting id is already in the liquid chain")
)

type position struct {
	diff       diff.Diff // cumulative from base through this position
	acceptedAt int64     // unix ms
}

type Chain struct {
	base      *models.Block
	micros    []*models.MicroBlock
	order     []models.BlockID // base id, then each microblock's TotalResBlockSig
	positions map[models.BlockID]position
	approved  []models.FeatureID
}

// New starts a liquid chain at base. baseDiff is the diff of base over the
// durable state; approved are the features approved when base was accepted.
func New(base *models.Block, baseDiff diff.Diff, approved []models.FeatureID, acceptedAt int64) *Chain {
	id := base.ID()
	return &Chain{
		base:      base,
		order:     []models.BlockID{id},
		positions: map[models.BlockID]position{id: {diff: baseDiff, acceptedAt: acceptedAt}},
		approved:  approved,
	}
}

// Append returns a new chain extended by m, whose own diff is microDiff.
func (c *Chain) Append(m *models.MicroBlock, microDiff diff.Diff, acceptedAt int64) (*Chain, error) {
	if m.PrevResBlockSig != c.TipID() {
		return nil, fmt.Errorf("%w: %s references %s, tip is %s", ErrNotTip, m, m.PrevResBlockSig.Short(), c.TipID().Short())
	}
	if c.Contains(m.TotalResBlockSig) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePosition, m.TotalResBlockSig.Short())
	}
	if _, err := m.TotalResBlockSig.Signature(); err != nil {
		return nil, err
	}

	micros := make([]*models.MicroBlock, len(c.micros), len(c.micros)+1)
	copy(micros, c.micros)
	order := make([]models.BlockID, len(c.order), len(c.order)+1)
	copy(order, c.order)
	positions := make(map[models.BlockID]position, len(c.positions)+1)
	for id, p := range c.positions {
		positions[id] = p
	}

	positions[m.TotalResBlockSig] = position{
		diff:       diff.Combine(c.BestLiquidDiff(), microDiff),
		acceptedAt: acceptedAt,
	}
	return &Chain{
		base:      c.base,
		micros:    append(micros, m),
		order:     append(order, m.TotalResBlockSig),
		positions: positions,
		approved:  c.approved,
	}, nil
}

// TruncateTo returns a chain ending at id and the microblocks cut off after it.
func (c *Chain) TruncateTo(id models.BlockID) (*Chain, []*models.MicroBlock, bool) {
	k := c.index(id)
	if k < 0 {
		return nil, nil, false
	}
	if k == len(c.order)-1 {
		return c, nil, true
	}

	order := append([]models.BlockID(nil), c.order[:k+1]...)
	positions := make(map[models.BlockID]position, len(order))
	for _, pid := range order {
		positions[pid] = c.positions[pid]
	}
	dropped := append([]*models.MicroBlock(nil), c.micros[k:]...)
	return &Chain{
		base:      c.base,
		micros:    append([]*models.MicroBlock(nil), c.micros[:k]...),
		order:     order,
		positions: positions,
		approved:  c.approved,
	}, dropped, true
}

// index returns the chain position of id: 0 for the base, i+1 for the i-th
// microblock, -1 when unknown.
func (c *Chain) index(id models.BlockID) int {
	if _, ok := c.positions[id]; !ok {
		return -1
	}
	for i, pid := range c.order {
		if pid == id {
			return i
		}
	}
	return -1
}

func (c *Chain) Base() *models.Block {
	return c.base
}

// BaseDiff is the diff of the base block alone.
func (c *Chain) BaseDiff() diff.Diff {
	return c.positions[c.order[0]].diff
}

func (c *Chain) ApprovedFeatures() []models.FeatureID {
	return c.approved
}

func (c *Chain) MicroBlocks() []*models.MicroBlock {
	return c.micros
}

// MicroBlockIDs returns the resulting ids of the microblocks in chain order.
func (c *Chain) MicroBlockIDs() []models.BlockID {
	return append([]models.BlockID(nil), c.order[1:]...)
}

func (c *Chain) LastMicroBlock() *models.MicroBlock {
	if len(c.micros) == 0 {
		return nil
	}
	return c.micros[len(c.micros)-1]
}

// MicroBlock returns the microblock whose resulting id is id.
func (c *Chain) MicroBlock(id models.BlockID) (*models.MicroBlock, bool) {
	k := c.index(id)
	if k <= 0 {
		return nil, false
	}
	return c.micros[k-1], true
}

// TipID is the id of the last position.
func (c *Chain) TipID() models.BlockID {
	return c.order[len(c.order)-1]
}

func (c *Chain) Contains(id models.BlockID) bool {
	_, ok := c.positions[id]
	return ok
}

// DiffUpTo returns the cumulative diff recorded at id.
func (c *Chain) DiffUpTo(id models.BlockID) (diff.Diff, bool) {
	p, ok := c.positions[id]
	return p.diff, ok
}

func (c *Chain) AcceptedAt(id models.BlockID) (int64, bool) {
	p, ok := c.positions[id]
	return p.acceptedAt, ok
}

// BestLiquidDiff is the cumulative diff at the tip.
func (c *Chain) BestLiquidDiff() diff.Diff {
	return c.positions[c.TipID()].diff
}

// Transactions returns every transaction held by the chain: base first,
// then each microblock's in order.
func (c *Chain) Transactions() []*models.Transaction {
	txs := make([]*models.Transaction, 0, len(c.base.Transactions))
	txs = append(txs, c.base.Transactions...)
	return append(txs, models.TransactionsOf(c.micros)...)
}

// MicroTransactions returns the transactions carried by microblocks only.
func (c *Chain) MicroTransactions() []*models.Transaction {
	return models.TransactionsOf(c.micros)
}

// BestLiquidBlock is the block the chain currently resolves to.
func (c *Chain) BestLiquidBlock() *models.Block {
	if len(c.micros) == 0 {
		return c.base
	}
	// Append only admits resulting ids that decode.
	sig, _ := c.TipID().Signature()
	return c.base.WithTransactions(c.Transactions(), sig)
}

// BestLastBlockInfo returns the consensus data of the newest position
// accepted no later than maxTimestamp, falling back to the base.
func (c *Chain) BestLastBlockInfo(maxTimestamp int64) models.BlockMinerInfo {
	id := c.order[0]
	for i := len(c.order) - 1; i > 0; i-- {
		if c.positions[c.order[i]].acceptedAt <= maxTimestamp {
			id = c.order[i]
			break
		}
	}
	return models.BlockMinerInfo{
		BlockID:             id,
		BaseTarget:          c.base.BaseTarget,
		GenerationSignature: c.base.GenerationSignature,
		Timestamp:           c.base.Timestamp,
	}
}
