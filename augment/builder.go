package augment

import (
	"github.com/sugarme/myops/dataerr"
)

// CropRatio is the fraction of each target dimension kept by the crop group.
const CropRatio = 0.875

// Size is a spatial size in pixels.
type Size struct {
	Width, Height int
}

// Validate returns an ErrConfig error for non-positive dimensions.
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return dataerr.Configf("invalid image size %dx%d", s.Width, s.Height)
	}
	return nil
}

// Switches turns augmentation features on or off. A nil switch takes its
// default: Rotation, Crop and CLAHE on, the rest off.
type Switches struct {
	Rotation   *bool
	Crop       *bool
	CLAHE      *bool
	Contrast   *bool
	Noise      *bool
	Distortion *bool
	Blur       *bool
}

// Features is a fully resolved set of switches.
type Features struct {
	Rotation, Crop, CLAHE, Contrast, Noise, Distortion, Blur bool
}

// DefaultFeatures is the default table of Switches.
var DefaultFeatures = Features{Rotation: true, Crop: true, CLAHE: true}

// Bool returns a pointer to v, to fill Switches.
func Bool(v bool) *bool { return &v }

// Resolved applies the default table to unset switches.
func (s Switches) Resolved() Features {
	get := func(v *bool, def bool) bool {
		if v == nil {
			return def
		}
		return *v
	}
	d := DefaultFeatures
	return Features{
		Rotation:   get(s.Rotation, d.Rotation),
		Crop:       get(s.Crop, d.Crop),
		CLAHE:      get(s.CLAHE, d.CLAHE),
		Contrast:   get(s.Contrast, d.Contrast),
		Noise:      get(s.Noise, d.Noise),
		Distortion: get(s.Distortion, d.Distortion),
		Blur:       get(s.Blur, d.Blur),
	}
}

// BuildConfig holds the inputs of Build.
type BuildConfig struct {
	// Prob gates every OneOf group.
	Prob float64
	// Size is the output size of the Resize step, also the base of the crop size.
	Size Size
	// Augment enables the randomized steps; they are only added when Train is set too.
	Augment  bool
	Train    bool
	Switches Switches
	// Mean and Std of the dataset, for Normalize.
	Mean, Std float64
}

// Build returns the pipeline for cfg:
//
//	rotation group, crop group, CLAHE or contrast group, noise,
//	distortion group, blur group, Resize, Normalize, ToTensor
//
// Only Resize, Normalize and ToTensor are used outside training or with
// augmentation disabled. CLAHE wins over contrast when both are on.
func Build(cfg BuildConfig) (*Pipeline, error) {
	if err := cfg.Size.Validate(); err != nil {
		return nil, err
	}
	if cfg.Prob < 0 || cfg.Prob > 1 {
		return nil, dataerr.Configf("probability %g outside [0, 1]", cfg.Prob)
	}

	var steps []Step
	if cfg.Augment && cfg.Train {
		f := cfg.Switches.Resolved()
		if f.Crop {
			if w, h := cropSize(cfg.Size); w == 0 || h == 0 {
				return nil, dataerr.Configf("image size %dx%d too small for a %gx crop", cfg.Size.Width, cfg.Size.Height, CropRatio)
			}
		}
		steps = augmentationSteps(cfg.Prob, cfg.Size, f)
	}

	steps = append(steps,
		Single{Resize{Width: cfg.Size.Width, Height: cfg.Size.Height}},
		Single{Normalize{Mean: cfg.Mean, Std: cfg.Std}},
		Single{ToTensor{}},
	)
	return NewPipeline(steps...), nil
}

// cropSize returns the size of the crop group windows for an output size.
func cropSize(s Size) (w, h int) {
	return int(float64(s.Width) * CropRatio), int(float64(s.Height) * CropRatio)
}

func augmentationSteps(prob float64, size Size, f Features) []Step {
	var steps []Step
	if f.Rotation {
		steps = append(steps, OneOf{Prob: prob, Choices: []Transform{
			Rotate{Limit: 45},
			VerticalFlip{},
			HorizontalFlip{},
			RandomRotate90{},
			Transpose{},
			ShiftScaleRotate{ShiftLimit: 0.0625, ScaleLimit: 0.2, RotateLimit: 45},
		}})
	}
	if f.Crop {
		cw, ch := cropSize(size)
		steps = append(steps, OneOf{Prob: prob, Choices: []Transform{
			RandomCrop{Width: cw, Height: ch},
			CenterCrop{Width: cw, Height: ch},
		}})
	}
	if f.CLAHE {
		steps = append(steps, Single{CLAHE{ClipLimit: 4, TileGrid: 8}})
	} else if f.Contrast {
		steps = append(steps, OneOf{Prob: prob, Choices: []Transform{
			RandomBrightnessContrast{BrightnessLimit: 0.2, ContrastLimit: 0.2},
			RandomGamma{Min: 80, Max: 120},
		}})
	}
	if f.Noise {
		steps = append(steps, Single{GaussNoise{VarMin: 0, VarMax: 1, P: 0.5}})
	}
	if f.Distortion {
		steps = append(steps, OneOf{Prob: prob, Choices: []Transform{
			GridDistortion{NumSteps: 5, Limit: 0.3},
			ElasticTransform{Alpha: 1, Sigma: 1, AlphaAffine: 20},
		}})
	}
	if f.Blur {
		steps = append(steps, OneOf{Prob: prob, Choices: []Transform{
			MotionBlur{},
			Blur{},
			GaussianBlur{Sigma: 0.8},
		}})
	}
	return steps
}
