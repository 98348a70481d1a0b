package state

import (
	"liquid-node/diff"
	"liquid-node/models"
)

// Reader is a read-only view of account state as of some chain tip.
type Reader interface {
	Height() int
	Balance(addr models.Address) (int64, error)
	ContainsTransaction(id string) (bool, error)
}

// composite layers a diff over an inner reader.
type composite struct {
	inner Reader
	d     diff.Diff
}

// Composite returns a Reader that sees inner with d applied on top of it.
func Composite(inner Reader, d diff.Diff) Reader {
	return &composite{inner: inner, d: d}
}

func (c *composite) Height() int {
	return c.inner.Height() + c.d.HeightDiff
}

func (c *composite) Balance(addr models.Address) (int64, error) {
	base, err := c.inner.Balance(addr)
	if err != nil {
		return 0, err
	}
	return base + c.d.Balance(addr), nil
}

func (c *composite) ContainsTransaction(id string) (bool, error) {
	if c.d.ContainsTransaction(id) {
		return true, nil
	}
	return c.inner.ContainsTransaction(id)
}
