package models

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var canonical cbor.EncMode

func init() {
	var err error
	canonical, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("could not build canonical cbor encoder: %w", err))
	}
}

// Signing payloads normalize empty slices to nil so that a block rebuilt
// from a microblock chain encodes exactly like the one the generator signed.

type blockPayload struct {
	Version             uint8
	Timestamp           int64
	Reference           BlockID
	BaseTarget          uint64
	GenerationSignature []byte
	Transactions        []Transaction
	FeatureVotes        []FeatureID
	Generator           []byte
}

type microBlockPayload struct {
	Version          uint8
	Generator        []byte
	Transactions     []Transaction
	PrevResBlockSig  BlockID
	TotalResBlockSig BlockID
}

func encodeCanonical(v interface{}) ([]byte, error) {
	data, err := canonical.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not encode signing payload: %w", err)
	}
	return data, nil
}

func transactionsPayload(txs []*Transaction) []Transaction {
	if len(txs) == 0 {
		return nil
	}
	out := make([]Transaction, len(txs))
	for i, tx := range txs {
		out[i] = *tx
	}
	return out
}

func featuresPayload(fs []FeatureID) []FeatureID {
	if len(fs) == 0 {
		return nil
	}
	return fs
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
