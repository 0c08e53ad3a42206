package dataset

import (
	"github.com/sugarme/myops/augment"
	"github.com/sugarme/myops/dataerr"
	"github.com/sugarme/myops/imgutil"
	"github.com/sugarme/myops/manifest"
)

// Config holds the options of a Dataset.
type Config struct {
	// ManifestPath is the delimited index of image/mask pairs.
	ManifestPath string
	// RootPath holds the `train/` and `masks/` folders. A relative path is
	// resolved against the working directory.
	RootPath string

	// Augment enables the randomized transforms. They only apply in the train phase.
	Augment bool
	// Split keeps the first 85% of the manifest rows for Train and the rest
	// for Valid. Without it every phase sees all rows.
	Split bool
	Phase manifest.Phase

	// ImageSize is the output size of every sample.
	ImageSize augment.Size
	// Modality selects the `img_<modality>` manifest column, e.g. "T2".
	Modality string

	// Probability gates every OneOf group of the pipeline.
	Probability float64
	Switches    augment.Switches

	ImageMode    imgutil.Mode
	Delimiter    rune
	ShowProgress bool
}

// DefaultConfig returns a config with the default options and no paths.
func DefaultConfig() Config {
	return Config{
		Split:       true,
		Phase:       manifest.Train,
		ImageSize:   augment.Size{Width: 256, Height: 256},
		Modality:    "T2",
		Probability: 0.5,
		ImageMode:   imgutil.ModeRGB,
		Delimiter:   manifest.DefaultDelimiter,
	}
}

// Validate returns an ErrConfig error describing the first invalid option.
func (c Config) Validate() error {
	switch {
	case c.ManifestPath == "":
		return dataerr.Configf("empty manifest path")
	case c.RootPath == "":
		return dataerr.Configf("empty root path")
	case c.Modality == "":
		return dataerr.Configf("empty modality")
	case c.Probability < 0 || c.Probability > 1:
		return dataerr.Configf("probability %g outside [0, 1]", c.Probability)
	case c.ImageMode != imgutil.ModeRGB && c.ImageMode != imgutil.ModeGray:
		return dataerr.Configf("unknown image mode %d", c.ImageMode)
	}
	if err := c.ImageSize.Validate(); err != nil {
		return err
	}
	return c.Phase.Validate()
}
