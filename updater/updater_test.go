package updater_test

import (
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquid-node/db"
	"liquid-node/differ"
	"liquid-node/features"
	"liquid-node/models"
	"liquid-node/repository"
	"liquid-node/signature"
	"liquid-node/updater"
	"liquid-node/utils/unittest"
)

const (
	alice = models.Address("alice")
	bob   = models.Address("bob")
)

type env struct {
	repo    *repository.ChainRepository
	differ  *differ.Differ
	u       *updater.Updater
	gen     *unittest.Generator
	genesis *models.Block
}

type envOption func(*envConfig)

type envConfig struct {
	checkPeriod int
	threshold   int
	tracker     func(p features.Provider) updater.FeatureTracker
}

func withTracker(fn func(p features.Provider) updater.FeatureTracker) envOption {
	return func(c *envConfig) { c.tracker = fn }
}

func withFeatureWindow(checkPeriod, threshold int) envOption {
	return func(c *envConfig) {
		c.checkPeriod = checkPeriod
		c.threshold = threshold
	}
}

// newEnv returns an updater over an in-memory store with a durable genesis
// giving alice 1000.
func newEnv(t *testing.T, opts ...envOption) *env {
	cfg := envConfig{checkPeriod: 1000, threshold: 900}
	cfg.tracker = func(p features.Provider) updater.FeatureTracker {
		return features.NewTracker(features.Settings{CheckPeriod: cfg.checkPeriod, ActivationThreshold: cfg.threshold}, p)
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ldb.Close() })
	repo, err := repository.NewChainRepository(ldb, repository.FeatureSettings{CheckPeriod: cfg.checkPeriod}, 64)
	require.NoError(t, err)

	e := &env{
		repo:   repo,
		differ: differ.New(differ.Settings{MaxTxAheadMillis: 1_000_000, MaxTxBehindMillis: 1_000_000}),
		gen:    unittest.NewGenerator(7),
	}
	e.genesis = e.gen.Genesis(t, 1000, map[models.Address]int64{alice: 1000})
	d, err := e.differ.ComputeForBlock(repo, nil, e.genesis)
	require.NoError(t, err)
	require.NoError(t, repo.Append(d, e.genesis, nil))

	var clock int64
	e.u = updater.New(repo, e.differ, signature.NewEd25519Verifier(), cfg.tracker(repo),
		updater.WithClock(func() int64 {
			clock += 10
			return clock
		}))
	return e
}

func (e *env) balance(t *testing.T, addr models.Address) int64 {
	b, err := e.u.BestLiquidState().Balance(addr)
	require.NoError(t, err)
	return b
}

// withMicros accepts a block on genesis followed by n microblocks, each
// moving i+1 from alice to bob. It returns the base and the resulting blocks.
func (e *env) withMicros(t *testing.T, n int) (*models.Block, []*models.MicroBlock, []*models.Block) {
	base := e.gen.Block(t, e.genesis.ID(), 2000, unittest.WithTransactions(unittest.Transfer(alice, bob, 100, 0, 2000)))
	_, err := e.u.ProcessBlock(base)
	require.NoError(t, err)

	var (
		micros []*models.MicroBlock
		totals []*models.Block
	)
	prev := base
	for i := 0; i < n; i++ {
		m, total := e.gen.MicroBlock(t, prev, unittest.Transfer(alice, bob, int64(i+1), 0, 2000))
		require.NoError(t, e.u.ProcessMicroBlock(m))
		micros = append(micros, m)
		totals = append(totals, total)
		prev = total
	}
	return base, micros, totals
}

func TestBlockOnDurableTip(t *testing.T) {
	e := newEnv(t)
	b := e.gen.Block(t, e.genesis.ID(), 2000)

	discarded, err := e.u.ProcessBlock(b)
	require.NoError(t, err)
	assert.Empty(t, discarded)

	ng := e.u.LiquidChain()
	require.NotNil(t, ng)
	assert.Equal(t, b.ID(), ng.Base().ID())
	assert.Empty(t, ng.MicroBlocks())
	assert.Equal(t, 2, e.u.History().Height())
	assert.Equal(t, 1, e.repo.Height())
}

func TestBlockWithBadReference(t *testing.T) {
	e := newEnv(t)

	_, err := e.u.ProcessBlock(e.gen.Block(t, "cafe", 2000))
	require.ErrorIs(t, err, updater.ErrBadReference)
	assert.True(t, updater.IsValidationError(err))
	assert.Nil(t, e.u.LiquidChain())

	base, _, _ := e.withMicros(t, 1)
	_, err = e.u.ProcessBlock(e.gen.Block(t, "cafe", 3000))
	require.ErrorIs(t, err, updater.ErrBadReference)
	assert.Equal(t, base.ID(), e.u.LiquidChain().Base().ID())
}

func TestGenesisOnEmptyStore(t *testing.T) {
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ldb.Close() })
	repo, err := repository.NewChainRepository(ldb, repository.FeatureSettings{CheckPeriod: 10}, 8)
	require.NoError(t, err)
	u := updater.New(repo, differ.New(differ.Settings{MaxTxAheadMillis: 1000}), signature.NewEd25519Verifier(),
		features.NewTracker(features.Settings{CheckPeriod: 10, ActivationThreshold: 8}, repo))

	g := unittest.NewGenerator(1)
	_, err = u.ProcessBlock(g.Block(t, "cafe", 1000))
	require.ErrorIs(t, err, updater.ErrBadReference)

	genesis := g.Genesis(t, 1000, map[models.Address]int64{alice: 5})
	_, err = u.ProcessBlock(genesis)
	require.NoError(t, err)
	balance, err := u.BestLiquidState().Balance(alice)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
	assert.Equal(t, 1, u.History().Height())
}

func TestMicroBlocksExtendChain(t *testing.T) {
	e := newEnv(t)
	_, micros, _ := e.withMicros(t, 2)

	ng := e.u.LiquidChain()
	require.Len(t, ng.MicroBlocks(), 2)
	assert.Equal(t, micros[1].TotalResBlockSig, ng.TipID())

	d1, ok := ng.DiffUpTo(micros[0].TotalResBlockSig)
	require.True(t, ok)
	assert.Equal(t, int64(101), d1.Balance(bob))
	assert.Equal(t, int64(103), ng.BestLiquidDiff().Balance(bob))
	assert.Equal(t, 1, ng.BestLiquidDiff().HeightDiff)

	assert.Equal(t, int64(1000-103), e.balance(t, alice))
	assert.Equal(t, int64(103), e.balance(t, bob))
	assert.Len(t, ng.Transactions(), 3)
}

func TestMicroBlockLinkage(t *testing.T) {
	e := newEnv(t)

	orphan, _ := e.gen.MicroBlock(t, e.genesis)
	require.ErrorIs(t, e.u.ProcessMicroBlock(orphan), updater.ErrMicroBlockLinkage)

	base, micros, totals := e.withMicros(t, 1)
	before := e.u.LiquidChain()

	t.Run("not referencing last microblock", func(t *testing.T) {
		fork, _ := e.gen.MicroBlock(t, base, unittest.Transfer(alice, bob, 1, 0, 2000))
		err := e.u.ProcessMicroBlock(fork)
		require.ErrorIs(t, err, updater.ErrMicroBlockLinkage)
		assert.True(t, updater.IsValidationError(err))
		assert.Same(t, before, e.u.LiquidChain())
	})

	t.Run("foreign generator", func(t *testing.T) {
		foreign, _ := unittest.NewGenerator(9).MicroBlock(t, totals[0])
		require.ErrorIs(t, e.u.ProcessMicroBlock(foreign), updater.ErrMicroBlockLinkage)
		assert.Same(t, before, e.u.LiquidChain())
	})

	t.Run("duplicate", func(t *testing.T) {
		dup := *micros[0]
		dup.PrevResBlockSig = totals[0].ID()
		msg, err := dup.BytesToSign()
		require.NoError(t, err)
		dup.Signature = ed25519.Sign(e.gen.SK, msg)
		require.ErrorIs(t, e.u.ProcessMicroBlock(&dup), updater.ErrMicroBlockLinkage)
		assert.Same(t, before, e.u.LiquidChain())
	})

	t.Run("bad signature", func(t *testing.T) {
		m, _ := e.gen.MicroBlock(t, totals[0], unittest.Transfer(alice, bob, 1, 0, 2000))
		m.Signature[0] ^= 0xff
		require.ErrorIs(t, e.u.ProcessMicroBlock(m), updater.ErrMicroBlockLinkage)
		assert.Same(t, before, e.u.LiquidChain())
	})

	t.Run("overdraft", func(t *testing.T) {
		m, _ := e.gen.MicroBlock(t, totals[0], unittest.Transfer(alice, bob, 5000, 0, 2000))
		require.ErrorIs(t, e.u.ProcessMicroBlock(m), updater.ErrDiffComputation)
		assert.Same(t, before, e.u.LiquidChain())
	})
}

func TestBlockForgesLiquidChain(t *testing.T) {
	e := newEnv(t)
	_, micros, totals := e.withMicros(t, 2)

	next := e.gen.Block(t, micros[0].TotalResBlockSig, 3000, unittest.WithTransactions(unittest.Transfer(bob, alice, 1, 0, 3000)))
	discarded, err := e.u.ProcessBlock(next)
	require.NoError(t, err)
	assert.Equal(t, micros[1].Transactions, discarded)

	ng := e.u.LiquidChain()
	assert.Equal(t, next.ID(), ng.Base().ID())
	assert.Empty(t, ng.MicroBlocks())

	assert.Equal(t, 2, e.repo.Height())
	assert.Equal(t, totals[0].ID(), e.repo.LastBlock().ID())
	persisted, err := e.repo.BlockAt(2)
	require.NoError(t, err)
	assert.Len(t, persisted.Transactions, 2)
	require.NoError(t, signature.NewEd25519Verifier().ValidateBlock(persisted))

	durableBob, err := e.repo.Balance(bob)
	require.NoError(t, err)
	assert.Equal(t, int64(101), durableBob)
	seen, err := e.repo.ContainsTransaction(micros[1].Transactions[0].ID)
	require.NoError(t, err)
	assert.False(t, seen)

	assert.Equal(t, int64(100), e.balance(t, bob))
	assert.Equal(t, 3, e.u.History().Height())
}

func TestBlockAtBaseDiscardsAllMicroBlocks(t *testing.T) {
	e := newEnv(t)
	base, micros, _ := e.withMicros(t, 2)

	next := e.gen.Block(t, base.ID(), 3000)
	discarded, err := e.u.ProcessBlock(next)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionsOf(micros), discarded)
	assert.Equal(t, base.ID(), e.repo.LastBlock().ID())
}

func TestForgedBlockWithInvalidSignature(t *testing.T) {
	e := newEnv(t)
	base := e.gen.Block(t, e.genesis.ID(), 2000)
	_, err := e.u.ProcessBlock(base)
	require.NoError(t, err)

	// the microblock is correctly signed but claims the result of other
	m, _ := e.gen.MicroBlock(t, base, unittest.Transfer(alice, bob, 1, 0, 2000))
	other, _ := e.gen.MicroBlock(t, base, unittest.Transfer(alice, bob, 2, 0, 2000))
	m.TotalResBlockSig = other.TotalResBlockSig
	msg, err := m.BytesToSign()
	require.NoError(t, err)
	m.Signature = ed25519.Sign(e.gen.SK, msg)
	require.NoError(t, e.u.ProcessMicroBlock(m))
	before := e.u.LiquidChain()

	_, err = e.u.ProcessBlock(e.gen.Block(t, m.TotalResBlockSig, 3000))
	require.ErrorIs(t, err, updater.ErrInvalidForgedSignature)
	assert.Same(t, before, e.u.LiquidChain())
	assert.Equal(t, 1, e.repo.Height())
}

func TestForkChoiceIsDeterministic(t *testing.T) {
	build := func(t *testing.T, e *env) (weak, strong *models.Block) {
		weak = e.gen.Block(t, e.genesis.ID(), 2000, unittest.WithBaseTarget(200))
		strong = unittest.NewGenerator(8).Block(t, e.genesis.ID(), 2500, unittest.WithBaseTarget(100))
		require.Equal(t, 1, strong.Score().Cmp(weak.Score()))
		return weak, strong
	}

	t.Run("weak first", func(t *testing.T) {
		e := newEnv(t)
		weak, strong := build(t, e)
		_, err := e.u.ProcessBlock(weak)
		require.NoError(t, err)
		_, err = e.u.ProcessBlock(strong)
		require.NoError(t, err)
		assert.Equal(t, strong.ID(), e.u.LiquidChain().Base().ID())
	})

	t.Run("strong first", func(t *testing.T) {
		e := newEnv(t)
		weak, strong := build(t, e)
		_, err := e.u.ProcessBlock(strong)
		require.NoError(t, err)
		_, err = e.u.ProcessBlock(weak)
		require.ErrorIs(t, err, updater.ErrNotBetterCompetitor)
		_, err = e.u.ProcessBlock(strong)
		require.NoError(t, err)
		assert.Equal(t, strong.ID(), e.u.LiquidChain().Base().ID())
	})
}

func TestBetterBlockDiscardsMicroBlocks(t *testing.T) {
	e := newEnv(t)
	base := e.gen.Block(t, e.genesis.ID(), 2000, unittest.WithBaseTarget(200))
	_, err := e.u.ProcessBlock(base)
	require.NoError(t, err)
	m, _ := e.gen.MicroBlock(t, base, unittest.Transfer(alice, bob, 7, 0, 2000))
	require.NoError(t, e.u.ProcessMicroBlock(m))

	better := e.gen.Block(t, e.genesis.ID(), 2100, unittest.WithBaseTarget(50))
	discarded, err := e.u.ProcessBlock(better)
	require.NoError(t, err)
	assert.Equal(t, m.Transactions, discarded)
	assert.Equal(t, better.ID(), e.u.LiquidChain().Base().ID())
	assert.Equal(t, int64(0), e.balance(t, bob))
	assert.Equal(t, 1, e.repo.Height())
}

func TestSameVersionReplacement(t *testing.T) {
	build := func(t *testing.T, e *env) (small, big *models.Block) {
		tx1 := unittest.Transfer(alice, bob, 1, 0, 2000)
		tx2 := unittest.Transfer(alice, bob, 2, 0, 2000)
		small = e.gen.Block(t, e.genesis.ID(), 2000, unittest.WithTransactions(tx1))
		big = e.gen.Block(t, e.genesis.ID(), 2000, unittest.WithTransactions(tx1, tx2))
		require.True(t, models.VersionsOfSameBlock(small, big))
		return small, big
	}

	t.Run("small first", func(t *testing.T) {
		e := newEnv(t)
		small, big := build(t, e)
		_, err := e.u.ProcessBlock(small)
		require.NoError(t, err)
		discarded, err := e.u.ProcessBlock(big)
		require.NoError(t, err)
		assert.Empty(t, discarded)
		assert.Equal(t, big.ID(), e.u.LiquidChain().Base().ID())
	})

	t.Run("big first", func(t *testing.T) {
		e := newEnv(t)
		small, big := build(t, e)
		_, err := e.u.ProcessBlock(big)
		require.NoError(t, err)
		before := e.u.LiquidChain()
		discarded, err := e.u.ProcessBlock(small)
		require.NoError(t, err)
		assert.Empty(t, discarded)
		assert.Same(t, before, e.u.LiquidChain())
		assert.Equal(t, int64(3), e.balance(t, bob))
	})
}

func TestRemoveAfterDurableTip(t *testing.T) {
	e := newEnv(t)
	base, micros, _ := e.withMicros(t, 2)

	discarded, err := e.u.RemoveAfter(e.genesis.ID())
	require.NoError(t, err)
	want := append([]*models.Transaction{}, base.Transactions...)
	want = append(want, models.TransactionsOf(micros)...)
	assert.Equal(t, want, discarded)
	assert.Nil(t, e.u.LiquidChain())
	assert.Equal(t, int64(1000), e.balance(t, alice))

	discarded, err = e.u.RemoveAfter(e.genesis.ID())
	require.NoError(t, err)
	assert.Empty(t, discarded)
}

func TestRemoveAfterDurableBlock(t *testing.T) {
	e := newEnv(t)
	_, micros, totals := e.withMicros(t, 1)
	next := e.gen.Block(t, totals[0].ID(), 3000, unittest.WithTransactions(unittest.Transfer(alice, bob, 3, 0, 3000)))
	_, err := e.u.ProcessBlock(next)
	require.NoError(t, err)
	require.Equal(t, 2, e.repo.Height())

	discarded, err := e.u.RemoveAfter(e.genesis.ID())
	require.NoError(t, err)
	// durable transactions first, then the liquid ones
	require.Len(t, discarded, 3)
	assert.Equal(t, micros[0].Transactions[0].ID, discarded[1].ID)
	assert.Equal(t, next.Transactions[0].ID, discarded[2].ID)
	assert.Equal(t, 1, e.repo.Height())
	assert.Nil(t, e.u.LiquidChain())
}

func TestRemoveAfterInsideLiquidChain(t *testing.T) {
	e := newEnv(t)
	_, micros, _ := e.withMicros(t, 3)

	discarded, err := e.u.RemoveAfter(micros[0].TotalResBlockSig)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionsOf(micros[1:]), discarded)
	ng := e.u.LiquidChain()
	assert.Equal(t, micros[0].TotalResBlockSig, ng.TipID())
	assert.Equal(t, int64(101), e.balance(t, bob))
	assert.Equal(t, 1, e.repo.Height())

	discarded, err = e.u.RemoveAfter(micros[0].TotalResBlockSig)
	require.NoError(t, err)
	assert.Empty(t, discarded)
	assert.Same(t, ng, e.u.LiquidChain())
}

func TestRemoveAfterUnknownBlock(t *testing.T) {
	e := newEnv(t)
	e.withMicros(t, 1)
	before := e.u.LiquidChain()

	_, err := e.u.RemoveAfter("beef")
	require.ErrorIs(t, err, updater.ErrBadReference)
	assert.Same(t, before, e.u.LiquidChain())
}

type activatedProvider struct {
	features.Provider
	activated []models.FeatureID
}

func (p activatedProvider) ActivatedFeatures(int) ([]models.FeatureID, error) {
	return p.activated, nil
}

func TestUnsupportedFeatureShutsDown(t *testing.T) {
	calls := 0
	e := newEnv(t, withTracker(func(p features.Provider) updater.FeatureTracker {
		return features.NewTracker(features.Settings{
			CheckPeriod:               1000,
			ActivationThreshold:       900,
			AutoShutdownOnUnsupported: true,
			Implemented:               []models.FeatureID{1, 2},
		}, activatedProvider{Provider: p, activated: []models.FeatureID{2, 99}},
			features.WithShutdownHook(func() { calls++ }))
	}))

	_, err := e.u.ProcessBlock(e.gen.Block(t, e.genesis.ID(), 2000))
	require.ErrorIs(t, err, updater.ErrUnsupportedFeatureActive)
	assert.True(t, updater.IsValidationError(err))
	assert.Equal(t, 1, calls)
	assert.Nil(t, e.u.LiquidChain())
	assert.Equal(t, 1, e.repo.Height())
}

func TestFeatureApprovalAtBoundary(t *testing.T) {
	e := newEnv(t, withFeatureWindow(3, 2))

	// height 2 votes, height 3 closes the window with the second vote
	b2 := e.gen.Block(t, e.genesis.ID(), 2000, unittest.WithVotes(5))
	_, err := e.u.ProcessBlock(b2)
	require.NoError(t, err)
	assert.Empty(t, e.u.LiquidChain().ApprovedFeatures())

	b3 := e.gen.Block(t, b2.ID(), 3000, unittest.WithVotes(5, 6, 6))
	_, err = e.u.ProcessBlock(b3)
	require.NoError(t, err)
	assert.Equal(t, []models.FeatureID{5}, e.u.LiquidChain().ApprovedFeatures())

	activated, err := e.repo.ActivatedFeatures(6)
	require.NoError(t, err)
	assert.Empty(t, activated, "approval is not durable until b3 is forged")

	b4 := e.gen.Block(t, b3.ID(), 4000)
	_, err = e.u.ProcessBlock(b4)
	require.NoError(t, err)
	require.Equal(t, 3, e.repo.Height())
	assert.Empty(t, e.u.LiquidChain().ApprovedFeatures())

	activated, err = e.repo.ActivatedFeatures(5)
	require.NoError(t, err)
	assert.Empty(t, activated)
	activated, err = e.repo.ActivatedFeatures(6)
	require.NoError(t, err)
	assert.Equal(t, []models.FeatureID{5}, activated)
}

type failingApprovals struct {
	updater.FeatureTracker
	fail bool
}

func (f *failingApprovals) ApprovedWith(height int, block *models.Block) ([]models.FeatureID, error) {
	if f.fail {
		return nil, errors.New("votes unavailable")
	}
	return f.FeatureTracker.ApprovedWith(height, block)
}

func TestApprovalFailureAfterForge(t *testing.T) {
	tracker := &failingApprovals{}
	e := newEnv(t, withTracker(func(p features.Provider) updater.FeatureTracker {
		tracker.FeatureTracker = features.NewTracker(features.Settings{CheckPeriod: 1000, ActivationThreshold: 900}, p)
		return tracker
	}))
	base, _, _ := e.withMicros(t, 1)

	t.Run("block on the durable parent changes nothing", func(t *testing.T) {
		tracker.fail = true
		before := e.u.LiquidChain()
		_, err := e.u.ProcessBlock(e.gen.Block(t, e.genesis.ID(), 2000, unittest.WithBaseTarget(10)))
		require.Error(t, err)
		assert.Same(t, before, e.u.LiquidChain())
		assert.Equal(t, 1, e.repo.Height())
	})

	t.Run("forged block stays durable", func(t *testing.T) {
		tracker.fail = true
		_, err := e.u.ProcessBlock(e.gen.Block(t, base.ID(), 3000))
		require.Error(t, err)
		assert.Nil(t, e.u.LiquidChain())
		assert.Equal(t, 2, e.repo.Height())
		assert.Equal(t, base.ID(), e.repo.LastBlock().ID())

		tracker.fail = false
		next := e.gen.Block(t, base.ID(), 3000)
		_, err = e.u.ProcessBlock(next)
		require.NoError(t, err)
		assert.Equal(t, next.ID(), e.u.LiquidChain().Base().ID())
	})
}

func TestHistory(t *testing.T) {
	e := newEnv(t)
	h := e.u.History()
	id, ok := h.LastBlockID()
	require.True(t, ok)
	assert.Equal(t, e.genesis.ID(), id)

	base, micros, _ := e.withMicros(t, 2)
	h = e.u.History()
	assert.Equal(t, 2, h.Height())
	id, _ = h.LastBlockID()
	assert.Equal(t, micros[1].TotalResBlockSig, id)

	top, err := h.BlockAt(2)
	require.NoError(t, err)
	assert.Equal(t, micros[1].TotalResBlockSig, top.ID())
	first, err := h.BlockAt(1)
	require.NoError(t, err)
	assert.Equal(t, e.genesis.ID(), first.ID())

	height, err := h.HeightOf(base.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, height)
	ok, err = h.Contains(micros[0].TotalResBlockSig)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok = h.MicroBlock(micros[0].TotalResBlockSig)
	assert.True(t, ok)
	assert.Len(t, h.MicroBlockIDs(), 2)
}

func TestBestLastBlockInfo(t *testing.T) {
	e := newEnv(t)
	info, err := e.u.BestLastBlockInfo(0)
	require.NoError(t, err)
	assert.Equal(t, e.genesis.ID(), info.BlockID)

	// accepted at 10, 20, 30
	base, micros, _ := e.withMicros(t, 2)
	info, err = e.u.BestLastBlockInfo(15)
	require.NoError(t, err)
	assert.Equal(t, base.ID(), info.BlockID)
	info, err = e.u.BestLastBlockInfo(100)
	require.NoError(t, err)
	assert.Equal(t, micros[1].TotalResBlockSig, info.BlockID)
}

func TestSubscribersSeeNewTips(t *testing.T) {
	e := newEnv(t)
	tips, unsubscribe := e.u.Subscribe(8)
	defer unsubscribe()

	base, micros, _ := e.withMicros(t, 1)
	_, err := e.u.RemoveAfter(base.ID())
	require.NoError(t, err)

	for _, want := range []models.BlockID{base.ID(), micros[0].TotalResBlockSig, base.ID()} {
		select {
		case got := <-tips:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("no notification for %s", want.Short())
		}
	}
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	e := newEnv(t)
	base := e.gen.Block(t, e.genesis.ID(), 2000)
	_, err := e.u.ProcessBlock(base)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				balance, err := e.u.BestLiquidState().Balance(alice)
				assert.NoError(t, err)
				assert.GreaterOrEqual(t, balance, int64(1000-n))
				assert.Equal(t, 2, e.u.History().Height())
			}
		}()
	}

	prev := base
	for i := 0; i < n; i++ {
		m, total := e.gen.MicroBlock(t, prev, unittest.Transfer(alice, bob, 1, 0, 2000))
		require.NoError(t, e.u.ProcessMicroBlock(m))
		prev = total
	}
	close(stop)
	wg.Wait()

	assert.Len(t, e.u.LiquidChain().MicroBlocks(), n)
	assert.Equal(t, int64(n), e.balance(t, bob))
}
