package models

// Address identifies an account. Generator addresses are the hex encoding of
// the generator's public key.
type Address string

type Transaction struct {
	ID        string  `json:"id"`        // unique id
	Sender    Address `json:"sender"`    // empty for issuing (genesis) transactions
	Recipient Address `json:"recipient"` // receiving account
	Amount    int64   `json:"amount"`    // transferred amount
	Fee       int64   `json:"fee"`       // paid to the block generator
	Timestamp int64   `json:"timestamp"` // unix timestamp in ms
}

// TransactionsOf flattens the transactions of the given microblocks in chain order.
func TransactionsOf(micros []*MicroBlock) []*Transaction {
	var txs []*Transaction
	for _, m := range micros {
		txs = append(txs, m.Transactions...)
	}
	return txs
}
