package signature

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"liquid-node/models"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Ed25519Verifier checks block and microblock signatures against the
// generator public key they carry.
type Ed25519Verifier struct{}

func NewEd25519Verifier() *Ed25519Verifier {
	return &Ed25519Verifier{}
}

func (Ed25519Verifier) ValidateBlock(b *models.Block) error {
	msg, err := b.BytesToSign()
	if err != nil {
		return err
	}
	return verify(b.Generator, msg, b.Signature, b.String())
}

func (Ed25519Verifier) ValidateMicroBlock(m *models.MicroBlock) error {
	msg, err := m.BytesToSign()
	if err != nil {
		return err
	}
	return verify(m.Generator, msg, m.Signature, m.String())
}

func verify(pk models.PublicKey, msg, sig []byte, what string) error {
	if len(pk) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: %s has malformed generator key", ErrInvalidSignature, what)
	}
	if !ed25519.Verify(ed25519.PublicKey(pk), msg, sig) {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, what)
	}
	return nil
}

// SignBlock sets the generator and signature of b.
func SignBlock(sk ed25519.PrivateKey, b *models.Block) error {
	b.Generator = models.PublicKey(sk.Public().(ed25519.PublicKey))
	msg, err := b.BytesToSign()
	if err != nil {
		return err
	}
	b.Signature = ed25519.Sign(sk, msg)
	return nil
}

// SignMicroBlock links m onto prevTotal, the block the liquid chain currently
// resolves to, and signs both the resulting block and the microblock itself.
// It returns the resulting block, whose id becomes m.TotalResBlockSig.
func SignMicroBlock(sk ed25519.PrivateKey, prevTotal *models.Block, m *models.MicroBlock) (*models.Block, error) {
	txs := make([]*models.Transaction, 0, len(prevTotal.Transactions)+len(m.Transactions))
	txs = append(txs, prevTotal.Transactions...)
	txs = append(txs, m.Transactions...)
	total := prevTotal.WithTransactions(txs, nil)
	if err := SignBlock(sk, total); err != nil {
		return nil, fmt.Errorf("could not sign resulting block: %w", err)
	}

	m.Generator = total.Generator
	m.PrevResBlockSig = prevTotal.ID()
	m.TotalResBlockSig = total.ID()
	msg, err := m.BytesToSign()
	if err != nil {
		return nil, err
	}
	m.Signature = ed25519.Sign(sk, msg)
	return total, nil
}
