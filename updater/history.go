package updater

import (
	"liquid-node/liquid"
	"liquid-node/models"
	"liquid-node/repository"
)

// History is the durable block history with the liquid tip on top of it.
// It captures the liquid chain at creation time and must not be retained
// across writes.
type History struct {
	store repository.ChainRepositoryInterface
	ng    *liquid.Chain
}

func (h *History) Height() int {
	if h.ng == nil {
		return h.store.Height()
	}
	return h.store.Height() + 1
}

// LastBlock is the block the chain currently resolves to, or nil if empty.
func (h *History) LastBlock() *models.Block {
	if h.ng == nil {
		return h.store.LastBlock()
	}
	return h.ng.BestLiquidBlock()
}

func (h *History) LastBlockID() (models.BlockID, bool) {
	if h.ng != nil {
		return h.ng.TipID(), true
	}
	if last := h.store.LastBlock(); last != nil {
		return last.ID(), true
	}
	return "", false
}

func (h *History) BlockAt(height int) (*models.Block, error) {
	if h.ng != nil && height == h.store.Height()+1 {
		return h.ng.BestLiquidBlock(), nil
	}
	return h.store.BlockAt(height)
}

func (h *History) HeightOf(id models.BlockID) (int, error) {
	if h.ng != nil && h.ng.Contains(id) {
		return h.store.Height() + 1, nil
	}
	return h.store.HeightOf(id)
}

func (h *History) Contains(id models.BlockID) (bool, error) {
	if h.ng != nil && h.ng.Contains(id) {
		return true, nil
	}
	return h.store.Contains(id)
}

func (h *History) MicroBlock(id models.BlockID) (*models.MicroBlock, bool) {
	if h.ng == nil {
		return nil, false
	}
	return h.ng.MicroBlock(id)
}

func (h *History) MicroBlockIDs() []models.BlockID {
	if h.ng == nil {
		return nil
	}
	return h.ng.MicroBlockIDs()
}
