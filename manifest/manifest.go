// Package manifest reads the delimited index of image/mask file pairs and
// splits it into the train and validation subsets.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/sugarme/myops/dataerr"
)

// MaskColumn is the manifest column naming the mask file of a row.
const MaskColumn = "mask"

// DefaultDelimiter separates manifest fields.
const DefaultDelimiter = ';'

// Record is one manifest row: image file name (under `train/`) and mask file
// name (under `masks/`).
type Record struct {
	Image string
	Mask  string
}

// ImageColumn returns the manifest column holding the image file names of the
// given modality, e.g. "img_T2".
func ImageColumn(modality string) string {
	return "img_" + modality
}

type options struct {
	delimiter rune
}

// Option configures Load.
type Option func(*options)

// WithDelimiter sets the field delimiter. Default is ';'.
func WithDelimiter(d rune) Option {
	return func(o *options) {
		o.delimiter = d
	}
}

// Load reads the manifest at path and returns its records in row order.
//
// The file must have a header row with the columns `img_<modality>` and
// `mask`. Any other column is ignored.
func Load(path, modality string, opts ...Option) ([]Record, error) {
	o := &options{delimiter: DefaultDelimiter}
	for _, opt := range opts {
		opt(o)
	}

	if modality == "" {
		return nil, dataerr.Configf("empty modality")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, dataerr.Manifestf("opening %q: %v", path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.WithDelimiter(o.delimiter),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, dataerr.Manifestf("parsing %q: %v", path, df.Err)
	}

	imgCol := ImageColumn(modality)
	var rawImg, rawMask string
	for _, name := range df.Names() {
		switch strings.TrimSpace(name) {
		case imgCol:
			rawImg = name
		case MaskColumn:
			rawMask = name
		}
	}
	if rawImg == "" || rawMask == "" {
		return nil, dataerr.Manifestf("%q: expected columns %q and %q, got %v", path, imgCol, MaskColumn, df.Names())
	}

	images := df.Col(rawImg).Records()
	masks := df.Col(rawMask).Records()

	records := make([]Record, len(images))
	for i := range images {
		img, mask := strings.TrimSpace(images[i]), strings.TrimSpace(masks[i])
		if isEmpty(img) || isEmpty(mask) {
			return nil, dataerr.Manifestf("%q: row %d has an empty cell", path, i+1)
		}
		records[i] = Record{Image: img, Mask: mask}
	}

	return records, nil
}

// gota marks missing string cells as "NaN".
func isEmpty(s string) bool {
	return s == "" || s == "NaN"
}

func (r Record) String() string {
	return fmt.Sprintf("%s|%s", r.Image, r.Mask)
}
