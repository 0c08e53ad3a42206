package dataset

import (
	"sort"

	"github.com/sugarme/myops/dataerr"
)

// Source is a random access collection of samples. *Dataset and
// *ConcatDataset implement it.
type Source interface {
	Len() int
	Item(idx int) (*Sample, error)
}

var (
	_ Source = (*Dataset)(nil)
	_ Source = (*ConcatDataset)(nil)
)

// ConcatDataset serves the samples of its parts one after the other.
type ConcatDataset struct {
	parts []Source
	// ends[i] is the total length of parts[:i+1].
	ends []int
}

// Concat joins the parts in order. Lengths are read once, parts must not
// change size afterwards.
func Concat(parts ...Source) *ConcatDataset {
	c := &ConcatDataset{
		parts: append([]Source(nil), parts...),
		ends:  make([]int, len(parts)),
	}
	total := 0
	for i, p := range parts {
		total += p.Len()
		c.ends[i] = total
	}
	return c
}

func (c *ConcatDataset) Len() int {
	if len(c.ends) == 0 {
		return 0
	}
	return c.ends[len(c.ends)-1]
}

// Item returns sample idx, counted over the parts in order.
func (c *ConcatDataset) Item(idx int) (*Sample, error) {
	part, local, err := c.locate(idx)
	if err != nil {
		return nil, err
	}
	return c.parts[part].Item(local)
}

func (c *ConcatDataset) locate(idx int) (part, local int, err error) {
	if idx < 0 || idx >= c.Len() {
		return 0, 0, dataerr.Indexf("index %d out of range [0, %d)", idx, c.Len())
	}
	part = sort.SearchInts(c.ends, idx+1)
	if part > 0 {
		local = idx - c.ends[part-1]
	} else {
		local = idx
	}
	return part, local, nil
}
