package main

import (
	"fmt"
	"path/filepath"

	"github.com/janpfeifer/must"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/myops/dataset"
	"github.com/sugarme/myops/imgutil"
)

// runEDA plots the histograms of the per-image mean and standard deviation
// of the selected images.
func runEDA() {
	ds := must.M1(dataset.New(config()))

	means := make(plotter.Values, 0, ds.Len())
	stds := make(plotter.Values, 0, ds.Len())
	for _, r := range ds.Records() {
		img := must.M1(imgutil.Load(ds.ImagePath(r), ds.Config().ImageMode))
		m, s := imgutil.MeanStd(img)
		means = append(means, m)
		stds = append(stds, s)
	}

	for _, h := range []struct {
		name   string
		values plotter.Values
	}{{"mean", means}, {"std", stds}} {
		if len(h.values) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Image %s histogram (%s)", h.name, ds.Modality())

		hist := must.M1(plotter.NewHist(h.values, 16))
		p.Add(hist)

		fname := filepath.Join(OutPath, fmt.Sprintf("%s-%s-histo.png", ds.Modality(), h.name))
		must.M(p.Save(4*vg.Inch, 4*vg.Inch, fname))
		fmt.Printf("Saved %s\n", fname)
	}
}
