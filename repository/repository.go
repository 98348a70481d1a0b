package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"

	"liquid-node/db"
	"liquid-node/diff"
	"liquid-node/models"
	"liquid-node/state"
)

// ErrNotFound is returned when a block or height is not persisted.
var ErrNotFound = errors.New("not found")

// It abstracts the storage layer from the business logic
type ChainRepositoryInterface interface {
	state.Reader
	LastBlock() *models.Block
	LastBlockTimestamp() (int64, bool)
	Contains(id models.BlockID) (bool, error)
	BlockByID(id models.BlockID) (*models.Block, error)
	BlockAt(height int) (*models.Block, error)
	HeightOf(id models.BlockID) (int, error)
	LastBlockIDs(n int) ([]models.BlockID, error)
	Append(d diff.Diff, block *models.Block, approved []models.FeatureID) error
	RollbackTo(id models.BlockID) ([]*models.Transaction, error)
	ActivatedFeatures(height int) ([]models.FeatureID, error)
	FeatureVotesWithinWindow(height int) (map[models.FeatureID]int, error)
}

// FeatureSettings controls how persisted approvals turn into activations.
type FeatureSettings struct {
	CheckPeriod int // blocks per voting window; an approval activates one window later
}

const (
	prefixBlock    = "block:"
	prefixHeight   = "height:"
	prefixDiff     = "diff:"
	prefixBalance  = "balance:"
	prefixTx       = "tx:"
	prefixApproval = "approval:"
	prefixApproved = "approved:"
	keyHeight      = "meta:height"
)

type blockRecord struct {
	Height int           `json:"height"`
	Block  *models.Block `json:"block"`
}

// ChainRepository is the durable block store, implemented on LevelDB.
// The in-memory fields mirror what is on disk and are guarded by mu.
type ChainRepository struct {
	db       *db.LevelDB
	settings FeatureSettings
	cache    *lru.Cache[models.BlockID, *blockRecord]

	mu        sync.RWMutex
	height    int
	lastBlock *models.Block
	approvals map[models.FeatureID]int // feature -> height it was approved at
}

// NewChainRepository opens the durable store on top of an existing LevelDB
// connection and loads its tip.
func NewChainRepository(ldb *db.LevelDB, settings FeatureSettings, cacheSize int) (*ChainRepository, error) {
	if settings.CheckPeriod <= 0 {
		return nil, fmt.Errorf("feature check period must be positive, got %d", settings.CheckPeriod)
	}
	cache, err := lru.New[models.BlockID, *blockRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create block cache: %w", err)
	}
	r := &ChainRepository{
		db:        ldb,
		settings:  settings,
		cache:     cache,
		approvals: make(map[models.FeatureID]int),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ChainRepository) load() error {
	var height int
	err := r.getJSON([]byte(keyHeight), &height)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("could not load height: %w", err)
	}
	r.height = height
	if height > 0 {
		rec, err := r.recordAt(height)
		if err != nil {
			return fmt.Errorf("could not load last block: %w", err)
		}
		r.lastBlock = rec.Block
	}

	iter := r.db.NewPrefixIterator([]byte(prefixApproval))
	defer iter.Release()
	for iter.Next() {
		id, err := strconv.Atoi(string(iter.Key()[len(prefixApproval):]))
		if err != nil {
			return fmt.Errorf("malformed approval key %q: %w", iter.Key(), err)
		}
		var at int
		if err := json.Unmarshal(iter.Value(), &at); err != nil {
			return fmt.Errorf("malformed approval record: %w", err)
		}
		r.approvals[models.FeatureID(id)] = at
	}
	return iter.Error()
}

func (r *ChainRepository) Height() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.height
}

// LastBlock returns the persisted tip, or nil for an empty store.
func (r *ChainRepository) LastBlock() *models.Block {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastBlock
}

func (r *ChainRepository) LastBlockTimestamp() (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastBlock == nil {
		return 0, false
	}
	return r.lastBlock.Timestamp, true
}

func (r *ChainRepository) Contains(id models.BlockID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.cache.Get(id); ok {
		return true, nil
	}
	return r.db.Has(blockKey(id))
}

func (r *ChainRepository) BlockByID(id models.BlockID) (*models.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}
	return rec.Block, nil
}

func (r *ChainRepository) BlockAt(height int) (*models.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, err := r.recordAt(height)
	if err != nil {
		return nil, err
	}
	return rec.Block, nil
}

func (r *ChainRepository) HeightOf(id models.BlockID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, err := r.record(id)
	if err != nil {
		return 0, err
	}
	return rec.Height, nil
}

// LastBlockIDs returns up to n ids, newest first.
func (r *ChainRepository) LastBlockIDs(n int) ([]models.BlockID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []models.BlockID
	for h := r.height; h > 0 && len(ids) < n; h-- {
		id, err := r.idAt(h)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *ChainRepository) Balance(addr models.Address) (int64, error) {
	var balance int64
	err := r.getJSON(balanceKey(addr), &balance)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return balance, err
}

func (r *ChainRepository) ContainsTransaction(id string) (bool, error) {
	return r.db.Has([]byte(prefixTx + id))
}

// Append persists block as the new tip together with the diff it produced
// and the features approved when it was accepted.
func (r *ChainRepository) Append(d diff.Diff, block *models.Block, approved []models.FeatureID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastBlock != nil && r.lastBlock.ID() != block.Reference {
		return fmt.Errorf("block %s does not reference persisted tip %s", block.ID().Short(), r.lastBlock.ID().Short())
	}
	height := r.height + 1
	rec := &blockRecord{Height: height, Block: block}

	batch := new(leveldb.Batch)
	if err := putJSON(batch, blockKey(block.ID()), rec); err != nil {
		return err
	}
	batch.Put(heightKey(height), []byte(block.ID()))
	if err := putJSON(batch, diffKey(height), d); err != nil {
		return err
	}
	for addr, delta := range d.Portfolios {
		current, err := r.Balance(addr)
		if err != nil {
			return fmt.Errorf("could not read balance of %s: %w", addr, err)
		}
		if err := putJSON(batch, balanceKey(addr), current+delta); err != nil {
			return err
		}
	}
	for id := range d.Transactions {
		if err := putJSON(batch, []byte(prefixTx+id), height); err != nil {
			return err
		}
	}
	var newlyApproved []models.FeatureID
	for _, f := range approved {
		if _, ok := r.approvals[f]; ok {
			continue
		}
		newlyApproved = append(newlyApproved, f)
		if err := putJSON(batch, approvalKey(f), height); err != nil {
			return err
		}
	}
	if len(newlyApproved) > 0 {
		if err := putJSON(batch, approvedKey(height), newlyApproved); err != nil {
			return err
		}
	}
	if err := putJSON(batch, []byte(keyHeight), height); err != nil {
		return err
	}

	if err := r.db.Write(batch); err != nil {
		return fmt.Errorf("could not write block %s: %w", block.ID().Short(), err)
	}

	r.height = height
	r.lastBlock = block
	for _, f := range newlyApproved {
		r.approvals[f] = height
	}
	r.cache.Add(block.ID(), rec)
	return nil
}

// RollbackTo truncates the store so that id becomes the tip and returns the
// transactions of the removed blocks in chain order.
func (r *ChainRepository) RollbackTo(id models.BlockID) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.record(id)
	if err != nil {
		return nil, fmt.Errorf("could not find rollback target %s: %w", id.Short(), err)
	}
	if !r.isCanonical(target) {
		r.cache.Remove(id)
		return nil, fmt.Errorf("rollback target %s is no longer in the chain: %w", id.Short(), ErrNotFound)
	}

	batch := new(leveldb.Batch)
	reverted := make(map[models.Address]int64)
	removed := make([]*blockRecord, 0, r.height-target.Height)
	var unapproved []models.FeatureID
	for h := r.height; h > target.Height; h-- {
		rec, err := r.recordAt(h)
		if err != nil {
			return nil, fmt.Errorf("could not load block at height %d: %w", h, err)
		}
		var d diff.Diff
		if err := r.getJSON(diffKey(h), &d); err != nil {
			return nil, fmt.Errorf("could not load diff at height %d: %w", h, err)
		}
		for addr, delta := range d.Portfolios {
			reverted[addr] -= delta
		}
		for txID := range d.Transactions {
			batch.Delete([]byte(prefixTx + txID))
		}
		var approved []models.FeatureID
		err = r.getJSON(approvedKey(h), &approved)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("could not load approvals at height %d: %w", h, err)
		}
		for _, f := range approved {
			batch.Delete(approvalKey(f))
		}
		unapproved = append(unapproved, approved...)

		batch.Delete(approvedKey(h))
		batch.Delete(diffKey(h))
		batch.Delete(heightKey(h))
		batch.Delete(blockKey(rec.Block.ID()))
		removed = append(removed, rec)
	}
	for addr, delta := range reverted {
		current, err := r.Balance(addr)
		if err != nil {
			return nil, fmt.Errorf("could not read balance of %s: %w", addr, err)
		}
		if err := putJSON(batch, balanceKey(addr), current+delta); err != nil {
			return nil, err
		}
	}
	if err := putJSON(batch, []byte(keyHeight), target.Height); err != nil {
		return nil, err
	}

	if err := r.db.Write(batch); err != nil {
		return nil, fmt.Errorf("could not roll back to %s: %w", id.Short(), err)
	}

	r.height = target.Height
	r.lastBlock = target.Block
	for _, f := range unapproved {
		delete(r.approvals, f)
	}
	var txs []*models.Transaction
	for i := len(removed) - 1; i >= 0; i-- {
		r.cache.Remove(removed[i].Block.ID())
		txs = append(txs, removed[i].Block.Transactions...)
	}
	return txs, nil
}

// ActivatedFeatures returns the features whose approval is at least one
// check period older than height.
func (r *ChainRepository) ActivatedFeatures(height int) ([]models.FeatureID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var activated []models.FeatureID
	for f, at := range r.approvals {
		if at+r.settings.CheckPeriod <= height {
			activated = append(activated, f)
		}
	}
	return models.SortFeatures(activated), nil
}

// FeatureVotesWithinWindow counts, per feature, the persisted blocks of the
// voting window that height falls in, excluding height itself.
func (r *ChainRepository) FeatureVotesWithinWindow(height int) (map[models.FeatureID]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	votes := make(map[models.FeatureID]int)
	start := height - (height-1)%r.settings.CheckPeriod
	for h := start; h < height && h <= r.height; h++ {
		rec, err := r.recordAt(h)
		if err != nil {
			return nil, fmt.Errorf("could not load block at height %d: %w", h, err)
		}
		for _, f := range rec.Block.VoteSet() {
			votes[f]++
		}
	}
	return votes, nil
}

// record reads through the block cache. Must be called with mu held so a
// concurrent rollback cannot evict a record that is then added back.
func (r *ChainRepository) record(id models.BlockID) (*blockRecord, error) {
	if rec, ok := r.cache.Get(id); ok {
		return rec, nil
	}
	var rec blockRecord
	if err := r.getJSON(blockKey(id), &rec); err != nil {
		return nil, fmt.Errorf("block %s: %w", id.Short(), err)
	}
	r.cache.Add(id, &rec)
	return &rec, nil
}

// isCanonical reports whether rec is still stored at its height. Must be
// called with mu held.
func (r *ChainRepository) isCanonical(rec *blockRecord) bool {
	if rec.Height > r.height {
		return false
	}
	id, err := r.idAt(rec.Height)
	return err == nil && id == rec.Block.ID()
}

func (r *ChainRepository) recordAt(height int) (*blockRecord, error) {
	id, err := r.idAt(height)
	if err != nil {
		return nil, err
	}
	return r.record(id)
}

func (r *ChainRepository) idAt(height int) (models.BlockID, error) {
	data, err := r.db.Get(heightKey(height))
	if db.IsNotFound(err) {
		return "", fmt.Errorf("height %d: %w", height, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return models.BlockID(data), nil
}

func (r *ChainRepository) getJSON(key []byte, v interface{}) error {
	data, err := r.db.Get(key)
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func putJSON(batch *leveldb.Batch, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	batch.Put(key, data)
	return nil
}

func blockKey(id models.BlockID) []byte { return []byte(prefixBlock + string(id)) }

func heightKey(h int) []byte { return []byte(fmt.Sprintf("%s%010d", prefixHeight, h)) }

func diffKey(h int) []byte { return []byte(fmt.Sprintf("%s%010d", prefixDiff, h)) }

func approvedKey(h int) []byte { return []byte(fmt.Sprintf("%s%010d", prefixApproved, h)) }

func approvalKey(f models.FeatureID) []byte { return []byte(fmt.Sprintf("%s%d", prefixApproval, f)) }

func balanceKey(addr models.Address) []byte { return []byte(prefixBalance + string(addr)) }
