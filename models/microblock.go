package models

import "fmt"

type MicroBlock struct {
	Version          uint8          `json:"version"`
	Generator        PublicKey      `json:"generator"`
	Transactions     []*Transaction `json:"transactions"`
	PrevResBlockSig  BlockID        `json:"prev_res_block_sig"`  // position this microblock extends
	TotalResBlockSig BlockID        `json:"total_res_block_sig"` // resulting chain tip id
	Signature        []byte         `json:"signature"`
}

// BytesToSign returns the canonical encoding of everything except the signature.
func (m *MicroBlock) BytesToSign() ([]byte, error) {
	return encodeCanonical(microBlockPayload{
		Version:          m.Version,
		Generator:        nilIfEmpty(m.Generator),
		Transactions:     transactionsPayload(m.Transactions),
		PrevResBlockSig:  m.PrevResBlockSig,
		TotalResBlockSig: m.TotalResBlockSig,
	})
}

func (m *MicroBlock) String() string {
	return fmt.Sprintf("MicroBlock(%s -> %s, txs=%d)", m.TotalResBlockSig.Short(), m.PrevResBlockSig.Short(), len(m.Transactions))
}
