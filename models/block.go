package models

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
)

// BlockID is the hex encoded signature of a block. A microblock's
// TotalResBlockSig is the id of the block it results in.
type BlockID string

// BlockIDFromSignature returns the id of a block carrying the given signature.
func BlockIDFromSignature(sig []byte) BlockID {
	return BlockID(hex.EncodeToString(sig))
}

// Signature decodes the id back into the signature it was derived from.
func (id BlockID) Signature() ([]byte, error) {
	sig, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("malformed block id %q: %w", string(id), err)
	}
	return sig, nil
}

// Short returns an abbreviated id for log output.
func (id BlockID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// PublicKey is an ed25519 public key identifying a generator.
type PublicKey []byte

func (pk PublicKey) Address() Address {
	return Address(hex.EncodeToString(pk))
}

func (pk PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(pk, other)
}

// scoreNumerator is 2^64; a block's score is scoreNumerator / BaseTarget.
var scoreNumerator = new(big.Int).Lsh(big.NewInt(1), 64)

type Block struct {
	Version             uint8          `json:"version"`
	Timestamp           int64          `json:"timestamp"`            // unix timestamp in ms
	Reference           BlockID        `json:"reference"`            // parent block id, empty for genesis
	BaseTarget          uint64         `json:"base_target"`          // difficulty target
	GenerationSignature []byte         `json:"generation_signature"` // consensus data
	Transactions        []*Transaction `json:"transactions"`
	FeatureVotes        []FeatureID    `json:"feature_votes"`
	Generator           PublicKey      `json:"generator"`
	Signature           []byte         `json:"signature"`
}

func (b *Block) ID() BlockID {
	return BlockIDFromSignature(b.Signature)
}

// Score returns the fork-choice weight of the block. A lower base target
// means a higher score.
func (b *Block) Score() *big.Int {
	if b.BaseTarget == 0 {
		return new(big.Int)
	}
	return new(big.Int).Div(scoreNumerator, new(big.Int).SetUint64(b.BaseTarget))
}

// VotesFor reports whether the block votes for the given feature.
func (b *Block) VotesFor(f FeatureID) bool {
	for _, v := range b.FeatureVotes {
		if v == f {
			return true
		}
	}
	return false
}

// VoteSet returns the distinct features the block votes for, sorted.
func (b *Block) VoteSet() []FeatureID {
	seen := make(map[FeatureID]struct{}, len(b.FeatureVotes))
	set := make([]FeatureID, 0, len(b.FeatureVotes))
	for _, f := range b.FeatureVotes {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		set = append(set, f)
	}
	return SortFeatures(set)
}

// WithTransactions returns a copy of the block carrying the given
// transactions and signature. The receiver is not modified.
func (b *Block) WithTransactions(txs []*Transaction, sig []byte) *Block {
	c := *b
	c.Transactions = txs
	c.Signature = sig
	return &c
}

// BytesToSign returns the canonical encoding of everything except the signature.
func (b *Block) BytesToSign() ([]byte, error) {
	return encodeCanonical(blockPayload{
		Version:             b.Version,
		Timestamp:           b.Timestamp,
		Reference:           b.Reference,
		BaseTarget:          b.BaseTarget,
		GenerationSignature: nilIfEmpty(b.GenerationSignature),
		Transactions:        transactionsPayload(b.Transactions),
		FeatureVotes:        featuresPayload(b.FeatureVotes),
		Generator:           nilIfEmpty(b.Generator),
	})
}

func (b *Block) String() string {
	return fmt.Sprintf("Block(%s -> %s, txs=%d, ts=%d)", b.ID().Short(), b.Reference.Short(), len(b.Transactions), b.Timestamp)
}

// VersionsOfSameBlock reports whether two blocks were produced by the same
// generator for the same slot and differ only in their transactions.
func VersionsOfSameBlock(b1, b2 *Block) bool {
	return b1.Generator.Equal(b2.Generator) &&
		b1.BaseTarget == b2.BaseTarget &&
		b1.Reference == b2.Reference &&
		b1.Timestamp == b2.Timestamp
}

// BlockMinerInfo is the consensus data a producer needs to build on a chain position.
type BlockMinerInfo struct {
	BlockID             BlockID `json:"block_id"`
	BaseTarget          uint64  `json:"base_target"`
	GenerationSignature []byte  `json:"generation_signature"`
	Timestamp           int64   `json:"timestamp"`
}
