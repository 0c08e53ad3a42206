package dutil

import (
	"context"
	"reflect"
	"runtime"

	"github.com/pkg/errors"
	gdutil "github.com/sugarme/gotch/dutil"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// ErrDone is returned by Next after the last batch.
var ErrDone = errors.New("no more batches")

// Dataset is a random access collection of items.
type Dataset[T any] interface {
	Len() int
	Item(idx int) (T, error)
}

// Batch holds the items of one sampler batch, in sampler order.
type Batch[T any] struct {
	Indices []int
	Items   []T
}

type result[T any] struct {
	batch *Batch[T]
	err   error
}

// DataLoader fetches the batches of a sampler, in order, with a pool of
// worker goroutines. Up to Prefetch batches are loaded ahead of the caller.
//
// Batches are consumed with:
//
//	for dl.HasNext() {
//		b, err := dl.Next()
//		...
//	}
//
// An item error fails its batch only; the following batches are still
// delivered.
type DataLoader[T any] struct {
	ds       Dataset[T]
	sampler  *BatchSampler
	workers  int
	prefetch int
	release  func(T)

	cancel    context.CancelFunc
	results   chan result[T]
	total     int
	delivered int
}

// Option configures a DataLoader.
type Option[T any] func(*DataLoader[T])

// WithWorkers sets the number of goroutines loading items. Default is the
// number of CPUs.
func WithWorkers[T any](n int) Option[T] {
	return func(dl *DataLoader[T]) {
		dl.workers = n
	}
}

// WithPrefetch sets how many batches are loaded ahead. Default is 2.
func WithPrefetch[T any](n int) Option[T] {
	return func(dl *DataLoader[T]) {
		dl.prefetch = n
	}
}

// WithRelease sets a function freeing items that are never delivered: the
// loaded items of a failed batch, and the batches pending on Close.
func WithRelease[T any](fn func(T)) Option[T] {
	return func(dl *DataLoader[T]) {
		dl.release = fn
	}
}

// NewDataLoader starts loading the current epoch of s from ds.
func NewDataLoader[T any](ds Dataset[T], s *BatchSampler, opts ...Option[T]) (*DataLoader[T], error) {
	if ds == nil || s == nil {
		return nil, errors.New("nil dataset or sampler")
	}
	if ds.Len() != s.n {
		return nil, errors.Errorf("sampler over %d items, dataset has %d", s.n, ds.Len())
	}
	dl := &DataLoader[T]{
		ds:       ds,
		sampler:  s,
		workers:  runtime.NumCPU(),
		prefetch: 2,
	}
	for _, opt := range opts {
		opt(dl)
	}
	if dl.workers <= 0 {
		return nil, errors.Errorf("invalid number of workers %d", dl.workers)
	}
	if dl.prefetch < 0 {
		dl.prefetch = 0
	}
	if err := dl.start(); err != nil {
		return nil, err
	}
	return dl, nil
}

func (dl *DataLoader[T]) start() error {
	var batches [][]int
	for dl.sampler.HasNext() {
		b, err := dl.sampler.Next()
		if err != nil {
			return errors.WithMessage(err, "sampling batches")
		}
		batches = append(batches, b)
	}
	dl.total, dl.delivered = len(batches), 0

	ctx, cancel := context.WithCancel(context.Background())
	dl.cancel = cancel
	results := make(chan result[T], dl.prefetch)
	dl.results = results

	go func() {
		defer close(results)
		for i, indices := range batches {
			b, err := dl.load(ctx, indices)
			if err != nil {
				err = errors.WithMessagef(err, "batch %d", i)
			}
			select {
			case results <- result[T]{batch: b, err: err}:
			case <-ctx.Done():
				dl.releaseBatch(b)
				return
			}
		}
	}()
	return nil
}

func (dl *DataLoader[T]) load(ctx context.Context, indices []int) (*Batch[T], error) {
	items := make([]T, len(indices))
	loaded := make([]bool, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dl.workers)
	for i, idx := range indices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item, err := dl.ds.Item(idx)
			if err != nil {
				return errors.WithMessagef(err, "item %d", idx)
			}
			items[i], loaded[i] = item, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if dl.release != nil {
			for i, ok := range loaded {
				if ok {
					dl.release(items[i])
				}
			}
		}
		return nil, err
	}
	klog.V(2).Infof("loaded batch of %d items", len(items))
	return &Batch[T]{Indices: indices, Items: items}, nil
}

func (dl *DataLoader[T]) releaseBatch(b *Batch[T]) {
	if b == nil || dl.release == nil {
		return
	}
	for _, item := range b.Items {
		dl.release(item)
	}
}

// Len returns the number of batches of the epoch.
func (dl *DataLoader[T]) Len() int { return dl.total }

// HasNext reports whether Next has batches left.
func (dl *DataLoader[T]) HasNext() bool {
	return dl.results != nil && dl.delivered < dl.total
}

// Next blocks until the next batch is loaded. It returns ErrDone after the
// last batch, or the error of the batch.
func (dl *DataLoader[T]) Next() (*Batch[T], error) {
	if !dl.HasNext() {
		return nil, ErrDone
	}
	r, ok := <-dl.results
	if !ok {
		dl.delivered = dl.total
		return nil, ErrDone
	}
	dl.delivered++
	return r.batch, r.err
}

// Reset closes the current epoch and starts a new one.
func (dl *DataLoader[T]) Reset() error {
	dl.Close()
	if err := dl.sampler.Reset(); err != nil {
		return err
	}
	return dl.start()
}

// Close stops loading and releases the batches not delivered yet.
func (dl *DataLoader[T]) Close() {
	if dl.results == nil {
		return
	}
	dl.cancel()
	for r := range dl.results {
		dl.releaseBatch(r.batch)
	}
	dl.results = nil
}

// Untyped exposes ds as a gotch dutil.Dataset, for gotch's own sequential
// DataLoader.
func Untyped[T any](ds Dataset[T]) gdutil.Dataset {
	return untyped[T]{ds}
}

type untyped[T any] struct {
	ds Dataset[T]
}

func (u untyped[T]) Len() int { return u.ds.Len() }

func (u untyped[T]) Item(idx int) (interface{}, error) {
	return u.ds.Item(idx)
}

func (u untyped[T]) DType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
