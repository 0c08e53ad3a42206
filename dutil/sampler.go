// Package dutil drives a dataset through training: a batch sampler producing
// index batches and a data loader fetching the items of every batch with a
// pool of worker goroutines.
//
// Index batching is done by gotch's dutil package; this package adds typed
// items and the parallel fetch.
package dutil

import (
	"reflect"

	gdutil "github.com/sugarme/gotch/dutil"

	"github.com/sugarme/myops/dataerr"
)

// indices is the gotch dataset of the integers [0, n), so gotch's loader
// yields batches of sample indices.
type indices int

var _ gdutil.Dataset = indices(0)

func (n indices) Len() int { return int(n) }

func (n indices) Item(idx int) (interface{}, error) {
	if idx < 0 || idx >= int(n) {
		return nil, dataerr.Indexf("index %d out of range [0, %d)", idx, int(n))
	}
	return idx, nil
}

func (n indices) DType() reflect.Type {
	return reflect.TypeOf(0)
}

// BatchSampler splits the indices [0, n) into batches, optionally shuffled
// at the start of every epoch.
type BatchSampler struct {
	n         int
	batchSize int
	shuffle   bool
	dropLast  bool

	loader *gdutil.DataLoader
}

// NewBatchSampler returns a sampler over n items. With dropLast a final
// batch smaller than batchSize is skipped.
func NewBatchSampler(n, batchSize int, shuffle, dropLast bool) (*BatchSampler, error) {
	if n < 0 {
		return nil, dataerr.Configf("negative number of items %d", n)
	}
	if batchSize <= 0 {
		return nil, dataerr.Configf("invalid batch size %d", batchSize)
	}
	s := &BatchSampler{
		n:         n,
		batchSize: batchSize,
		shuffle:   shuffle,
		dropLast:  dropLast,
	}
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset starts a new epoch, reshuffling when enabled.
func (s *BatchSampler) Reset() error {
	s.loader = nil
	if s.Len() == 0 {
		return nil
	}
	// A single partial batch is a full batch of n.
	bs := min(s.batchSize, s.n)
	gs, err := gdutil.NewBatchSampler(s.n, bs, s.shuffle, s.dropLast)
	if err != nil {
		return dataerr.Configf("batch sampler: %v", err)
	}
	dl, err := gdutil.NewDataLoader(indices(s.n), gs)
	if err != nil {
		return dataerr.Configf("index loader: %v", err)
	}
	s.loader = dl
	return nil
}

// Len returns the number of batches of an epoch.
func (s *BatchSampler) Len() int {
	if s.dropLast {
		return s.n / s.batchSize
	}
	return (s.n + s.batchSize - 1) / s.batchSize
}

func (s *BatchSampler) BatchSize() int { return s.batchSize }

// HasNext reports whether the epoch has batches left.
func (s *BatchSampler) HasNext() bool {
	return s.loader != nil && s.loader.HasNext()
}

// Next returns the indices of the next batch, nil at the end of the epoch.
func (s *BatchSampler) Next() ([]int, error) {
	if !s.HasNext() {
		return nil, nil
	}
	b, err := s.loader.Next()
	if err != nil {
		return nil, err
	}
	return toIndices(b)
}

// toIndices flattens a gotch batch, a single index or a slice of them, to
// []int.
func toIndices(b interface{}) ([]int, error) {
	switch v := b.(type) {
	case int:
		return []int{v}, nil
	case []int:
		return v, nil
	}
	rv := reflect.ValueOf(b)
	if rv.Kind() != reflect.Slice {
		return nil, dataerr.Indexf("unexpected index batch %T", b)
	}
	out := make([]int, rv.Len())
	for i := range out {
		idx, ok := rv.Index(i).Interface().(int)
		if !ok {
			return nil, dataerr.Indexf("unexpected index %T in batch", rv.Index(i).Interface())
		}
		out[i] = idx
	}
	return out, nil
}
