// Package unittest provides signed block, microblock and transaction
// fixtures for tests.
package unittest

import (
	"crypto/ed25519"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"liquid-node/models"
	"liquid-node/signature"
)

const DefaultBaseTarget = 100

// Generator is a deterministic block producer identity.
type Generator struct {
	SK ed25519.PrivateKey
	PK models.PublicKey
}

func NewGenerator(seed byte) *Generator {
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = seed
	}
	sk := ed25519.NewKeyFromSeed(s)
	return &Generator{SK: sk, PK: models.PublicKey(sk.Public().(ed25519.PublicKey))}
}

func (g *Generator) Address() models.Address {
	return g.PK.Address()
}

type BlockOption func(*models.Block)

func WithBaseTarget(bt uint64) BlockOption {
	return func(b *models.Block) { b.BaseTarget = bt }
}

func WithTransactions(txs ...*models.Transaction) BlockOption {
	return func(b *models.Block) { b.Transactions = txs }
}

func WithVotes(fs ...models.FeatureID) BlockOption {
	return func(b *models.Block) { b.FeatureVotes = fs }
}

// Block returns a block referencing ref, signed by g.
func (g *Generator) Block(t testing.TB, ref models.BlockID, ts int64, opts ...BlockOption) *models.Block {
	b := &models.Block{
		Version:             3,
		Timestamp:           ts,
		Reference:           ref,
		BaseTarget:          DefaultBaseTarget,
		GenerationSignature: []byte(fmt.Sprintf("gs-%d", ts)),
	}
	for _, opt := range opts {
		opt(b)
	}
	require.NoError(t, signature.SignBlock(g.SK, b))
	return b
}

// MicroBlock returns a microblock extending prevTotal with txs and the block
// the chain resolves to after it.
func (g *Generator) MicroBlock(t testing.TB, prevTotal *models.Block, txs ...*models.Transaction) (*models.MicroBlock, *models.Block) {
	m := &models.MicroBlock{Version: 3, Transactions: txs}
	total, err := signature.SignMicroBlock(g.SK, prevTotal, m)
	require.NoError(t, err)
	return m, total
}

// Genesis returns a block issuing the given balances.
func (g *Generator) Genesis(t testing.TB, ts int64, balances map[models.Address]int64) *models.Block {
	var txs []*models.Transaction
	for addr, amount := range balances {
		txs = append(txs, &models.Transaction{
			ID:        fmt.Sprintf("genesis-%s", addr),
			Recipient: addr,
			Amount:    amount,
			Timestamp: ts,
		})
	}
	return g.Block(t, "", ts, WithTransactions(txs...))
}

var txCounter = atomic.NewInt64(0)

// Transfer returns a transaction with a fresh id.
func Transfer(from, to models.Address, amount, fee, ts int64) *models.Transaction {
	return &models.Transaction{
		ID:        fmt.Sprintf("tx-%d", txCounter.Inc()),
		Sender:    from,
		Recipient: to,
		Amount:    amount,
		Fee:       fee,
		Timestamp: ts,
	}
}
