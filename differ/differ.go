// Package differ computes the state diff a block or microblock produces
// over a given state reader.
package differ

import (
	"errors"
	"fmt"
	"math"

	"liquid-node/diff"
	"liquid-node/models"
	"liquid-node/state"
)

var ErrInvalidTransaction = errors.New("invalid transaction")

type Settings struct {
	MaxTxAheadMillis  int64 // how far past the block timestamp a transaction may be
	MaxTxBehindMillis int64 // how far before the previous block a transaction may be
}

type Differ struct {
	settings Settings
}

func New(settings Settings) *Differ {
	return &Differ{settings: settings}
}

// ComputeForBlock returns the diff of block applied on top of reader, whose
// tip is prev (nil for genesis).
func (d *Differ) ComputeForBlock(reader state.Reader, prev *models.Block, block *models.Block) (diff.Diff, error) {
	if block.BaseTarget == 0 {
		return diff.Diff{}, fmt.Errorf("block %s has zero base target", block.ID().Short())
	}
	genesis := prev == nil
	var prevTimestamp int64
	if !genesis {
		prevTimestamp = prev.Timestamp
		if block.Timestamp <= prev.Timestamp {
			return diff.Diff{}, fmt.Errorf("block %s timestamp %d is not after parent timestamp %d", block.ID().Short(), block.Timestamp, prev.Timestamp)
		}
	}
	out, err := d.apply(reader, block.Generator.Address(), block.Transactions, block.Timestamp, prevTimestamp, genesis)
	if err != nil {
		return diff.Diff{}, err
	}
	out.HeightDiff = 1
	return out, nil
}

// ComputeForMicroBlock returns the diff of micro applied on top of reader.
// lastBlockTimestamp is the timestamp of the persisted tip, if any.
func (d *Differ) ComputeForMicroBlock(reader state.Reader, lastBlockTimestamp *int64, micro *models.MicroBlock, baseBlockTimestamp int64) (diff.Diff, error) {
	var prevTimestamp int64
	if lastBlockTimestamp != nil {
		prevTimestamp = *lastBlockTimestamp
	}
	return d.apply(reader, micro.Generator.Address(), micro.Transactions, baseBlockTimestamp, prevTimestamp, false)
}

func (d *Differ) apply(reader state.Reader, generator models.Address, txs []*models.Transaction, blockTimestamp, prevTimestamp int64, genesis bool) (diff.Diff, error) {
	out := diff.Empty()
	for _, tx := range txs {
		if err := d.validate(reader, out, tx, blockTimestamp, prevTimestamp, genesis); err != nil {
			return diff.Diff{}, err
		}
		if tx.Sender != "" {
			out.Credit(tx.Sender, -(tx.Amount + tx.Fee))
		}
		out.Credit(tx.Recipient, tx.Amount)
		if tx.Fee > 0 {
			out.Credit(generator, tx.Fee)
		}
		out.AddTransaction(tx)
	}
	return out, nil
}

func (d *Differ) validate(reader state.Reader, acc diff.Diff, tx *models.Transaction, blockTimestamp, prevTimestamp int64, genesis bool) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTransaction)
	}
	if tx.Amount < 0 || tx.Fee < 0 {
		return fmt.Errorf("%w: %s has negative amount or fee", ErrInvalidTransaction, tx.ID)
	}
	if tx.Amount > math.MaxInt64-tx.Fee {
		return fmt.Errorf("%w: %s amount plus fee overflows", ErrInvalidTransaction, tx.ID)
	}
	if tx.Recipient == "" {
		return fmt.Errorf("%w: %s has no recipient", ErrInvalidTransaction, tx.ID)
	}
	if tx.Sender == "" && !genesis {
		return fmt.Errorf("%w: issuing transaction %s outside genesis", ErrInvalidTransaction, tx.ID)
	}
	if tx.Timestamp > blockTimestamp+d.settings.MaxTxAheadMillis {
		return fmt.Errorf("%w: %s is ahead of block time", ErrInvalidTransaction, tx.ID)
	}
	if !genesis && tx.Timestamp < prevTimestamp-d.settings.MaxTxBehindMillis {
		return fmt.Errorf("%w: %s is too old", ErrInvalidTransaction, tx.ID)
	}

	if acc.ContainsTransaction(tx.ID) {
		return fmt.Errorf("%w: %s is duplicated", ErrInvalidTransaction, tx.ID)
	}
	seen, err := reader.ContainsTransaction(tx.ID)
	if err != nil {
		return fmt.Errorf("could not look up transaction %s: %w", tx.ID, err)
	}
	if seen {
		return fmt.Errorf("%w: %s is already in the blockchain", ErrInvalidTransaction, tx.ID)
	}

	if tx.Sender != "" {
		balance, err := reader.Balance(tx.Sender)
		if err != nil {
			return fmt.Errorf("could not read balance of %s: %w", tx.Sender, err)
		}
		if balance+acc.Balance(tx.Sender) < tx.Amount+tx.Fee {
			return fmt.Errorf("%w: %s overdraws %s", ErrInvalidTransaction, tx.ID, tx.Sender)
		}
	}
	return nil
}
