package main

import (
	"fmt"

	"github.com/janpfeifer/must"
	"github.com/sugarme/gotch/ts"
	"k8s.io/klog/v2"

	"github.com/sugarme/myops/dataset"
	"github.com/sugarme/myops/dutil"
)

// runCheckDataLoader iterates one epoch of batches and prints their shapes.
func runCheckDataLoader() {
	ds := must.M1(dataset.New(config()))
	s := must.M1(dutil.NewBatchSampler(ds.Len(), BatchSize, true, false))
	dl := must.M1(dutil.NewDataLoader[*dataset.Sample](ds, s,
		dutil.WithWorkers[*dataset.Sample](Workers),
		dutil.WithRelease(func(item *dataset.Sample) { item.Drop() }),
	))
	defer dl.Close()

	count := 0
	for dl.HasNext() {
		b, err := dl.Next()
		count++
		if err != nil {
			klog.Errorf("batch %d: %v", count, err)
			continue
		}

		var img, mask []*ts.Tensor
		for _, item := range b.Items {
			img = append(img, item.Image)
			mask = append(mask, item.Mask)
		}

		imgTs := ts.MustStack(img, 0)
		maskTs := ts.MustStack(mask, 0)
		fmt.Printf("Loaded %v: %v, image shape: %v, mask shape: %v\n", count, len(b.Items), imgTs.MustSize(), maskTs.MustSize())

		imgTs.MustDrop()
		maskTs.MustDrop()
		for _, item := range b.Items {
			item.Drop()
		}
	}
}
