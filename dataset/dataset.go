// Package dataset serves the image/mask samples of a segmentation dataset
// described by a manifest file, as gotch tensors ready for training.
//
// Construction reads the manifest, selects the rows of the configured phase,
// estimates the normalization statistics over every selected image and builds
// the transform pipeline. After that a Dataset is read-only: Item can be
// called from several goroutines at once, each call using its own random
// source.
package dataset

import (
	"math/rand/v2"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/sugarme/gotch/ts"
	"k8s.io/klog/v2"

	"github.com/sugarme/myops/augment"
	"github.com/sugarme/myops/dataerr"
	"github.com/sugarme/myops/imgutil"
	"github.com/sugarme/myops/manifest"
)

const (
	// ImageDir is the folder, under the root, holding the images.
	ImageDir = "train"
	// MaskDir is the folder, under the root, holding the masks.
	MaskDir = "masks"
)

// Sample is one transformed image/mask pair.
type Sample struct {
	// Image is float32 [C, H, W], normalized.
	Image *ts.Tensor
	// Mask is float32 [1, H, W] with the label values of the mask file.
	Mask *ts.Tensor
}

// Drop frees the tensors of the sample.
func (s *Sample) Drop() {
	if s.Image != nil {
		s.Image.MustDrop()
	}
	if s.Mask != nil {
		s.Mask.MustDrop()
	}
}

// Dataset is the random access view of the selected manifest rows.
type Dataset struct {
	cfg      Config
	records  []manifest.Record
	rootDir  string
	mean     float64
	std      float64
	pipeline *augment.Pipeline
}

// New loads the manifest of cfg, selects the rows of its phase, computes the
// normalization statistics and builds the pipeline. Any failure aborts
// construction.
func New(cfg Config) (*Dataset, error) {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = manifest.DefaultDelimiter
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rootDir, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, dataerr.Configf("root path %q: %v", cfg.RootPath, err)
	}

	all, err := manifest.Load(cfg.ManifestPath, cfg.Modality, manifest.WithDelimiter(cfg.Delimiter))
	if err != nil {
		return nil, err
	}
	records := manifest.Split(all, cfg.Split, cfg.Phase)
	klog.V(1).Infof("manifest %q: %s rows, %s selected for %s", cfg.ManifestPath,
		humanize.Comma(int64(len(all))), humanize.Comma(int64(len(records))), cfg.Phase)

	ds := &Dataset{
		cfg:     cfg,
		records: records,
		rootDir: rootDir,
	}

	ds.mean, ds.std, err = ds.Normalization()
	if err != nil {
		return nil, err
	}
	klog.Infof("The mean of the dataset is %.2f and the standard deviation %.2f", ds.mean, ds.std)

	ds.pipeline, err = augment.Build(augment.BuildConfig{
		Prob:     cfg.Probability,
		Size:     cfg.ImageSize,
		Augment:  cfg.Augment,
		Train:    cfg.Phase == manifest.Train,
		Switches: cfg.Switches,
		Mean:     ds.mean,
		Std:      ds.std,
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("pipeline: %s", ds.pipeline)
	return ds, nil
}

// Normalization returns the average over the selected images of their
// per-image mean and population standard deviation. Every channel value of
// every pixel counts. An empty dataset yields 0, 0.
func (ds *Dataset) Normalization() (mean, std float64, err error) {
	n := len(ds.records)
	if n == 0 {
		return 0, 0, nil
	}

	var bar *progressbar.ProgressBar
	if ds.cfg.ShowProgress {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetDescription("Normalization"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
		)
		defer bar.Finish()
	}

	var sumMean, sumStd float64
	for _, r := range ds.records {
		img, err := imgutil.Load(ds.ImagePath(r), ds.cfg.ImageMode)
		if err != nil {
			return 0, 0, err
		}
		m, s := imgutil.MeanStd(img)
		sumMean += m
		sumStd += s
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return sumMean / float64(n), sumStd / float64(n), nil
}

// Len returns the number of selected records.
func (ds *Dataset) Len() int { return len(ds.records) }

// Records returns a copy of the selected records.
func (ds *Dataset) Records() []manifest.Record {
	out := make([]manifest.Record, len(ds.records))
	copy(out, ds.records)
	return out
}

// Mean returns the normalization mean computed by New.
func (ds *Dataset) Mean() float64 { return ds.mean }

// Std returns the normalization standard deviation computed by New.
func (ds *Dataset) Std() float64 { return ds.std }

// Pipeline returns the transforms applied by Item.
func (ds *Dataset) Pipeline() *augment.Pipeline { return ds.pipeline }

// Phase returns the subset the dataset serves.
func (ds *Dataset) Phase() manifest.Phase { return ds.cfg.Phase }

// Modality returns the manifest image column suffix, e.g. "T2".
func (ds *Dataset) Modality() string { return ds.cfg.Modality }

// RootDir returns the absolute root holding `train/` and `masks/`.
func (ds *Dataset) RootDir() string { return ds.rootDir }

// Config returns the options the dataset was built with.
func (ds *Dataset) Config() Config { return ds.cfg }

// ImagePath returns the image file of r.
func (ds *Dataset) ImagePath(r manifest.Record) string {
	return filepath.Join(ds.rootDir, ImageDir, r.Image)
}

// MaskPath returns the mask file of r.
func (ds *Dataset) MaskPath(r manifest.Record) string {
	return filepath.Join(ds.rootDir, MaskDir, r.Mask)
}

// Item returns the transformed sample at idx, drawing fresh random values.
func (ds *Dataset) Item(idx int) (*Sample, error) {
	return ds.ItemWithRand(idx, newRand())
}

// ItemWithRand is Item with the given random source, which must not be
// shared with concurrent calls.
func (ds *Dataset) ItemWithRand(idx int, rng *rand.Rand) (*Sample, error) {
	p, err := ds.pair(idx, rng)
	if err != nil {
		return nil, err
	}
	return &Sample{Image: p.ImageTensor, Mask: p.MaskTensor}, nil
}

// pair loads the record at idx and runs the pipeline on it.
func (ds *Dataset) pair(idx int, rng *rand.Rand) (*augment.Pair, error) {
	if idx < 0 || idx >= len(ds.records) {
		return nil, dataerr.Indexf("index %d out of range [0, %d)", idx, len(ds.records))
	}
	r := ds.records[idx]

	img, err := imgutil.Load(ds.ImagePath(r), ds.cfg.ImageMode)
	if err != nil {
		return nil, err
	}
	mask, err := imgutil.ReadGray(ds.MaskPath(r))
	if err != nil {
		return nil, err
	}

	p, err := augment.NewPair(img, mask)
	if err != nil {
		return nil, errors.WithMessagef(err, "record %d (%s)", idx, r)
	}
	if err := ds.pipeline.Apply(rng, p); err != nil {
		return nil, errors.WithMessagef(err, "record %d (%s)", idx, r)
	}
	return p, nil
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
