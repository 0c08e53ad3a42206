// Package augment implements the randomized image/mask transforms of the
// training pipeline and the builder that chains them from feature switches.
//
// A Pipeline is an ordered list of Step values. A step is either a Single
// transform or a OneOf group, which, with a given probability, applies one
// of its transforms chosen uniformly. Pipelines hold no per-call state:
// every call to Apply draws fresh random values from the given source.
//
// Geometric transforms move image and mask with the same random draws, the
// mask being sampled with nearest neighbour so label values are preserved.
// Intensity transforms only touch the image.
package augment

import (
	"fmt"
	"image"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/myops/dataerr"
	"github.com/sugarme/myops/imgutil"
)

// Pair is the working state of one sample while it goes through a Pipeline.
type Pair struct {
	// Image is *image.NRGBA or *image.Gray, origin at (0, 0).
	Image image.Image
	// Mask has the same bounds as Image.
	Mask *image.Gray

	// Data is the normalized image in CHW order, set by Normalize.
	Data     []float32
	Channels int

	// Set by ToTensor.
	ImageTensor *ts.Tensor
	MaskTensor  *ts.Tensor
}

// NewPair validates and normalizes the representation of a decoded image and
// mask. Images other than *image.Gray are converted to *image.NRGBA. The pair
// works on copies, img and mask are never modified.
func NewPair(img image.Image, mask image.Image) (*Pair, error) {
	if img == nil || mask == nil {
		return nil, dataerr.Decodef("nil image or mask")
	}
	if img.Bounds().Size() != mask.Bounds().Size() {
		return nil, dataerr.Decodef("image size %v and mask size %v differ", img.Bounds().Size(), mask.Bounds().Size())
	}

	var im image.Image
	if _, ok := img.(*image.Gray); ok {
		im = imgutil.CloneGray(img)
	} else {
		im = imgutil.ToNRGBA(img)
	}
	return &Pair{Image: im, Mask: imgutil.CloneGray(mask)}, nil
}

// Size returns width and height of the pair.
func (p *Pair) Size() (w, h int) {
	b := p.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Transform is a single image/mask operation.
type Transform interface {
	Name() string
	Apply(rng *rand.Rand, p *Pair) error
}

// StepKind tags the variant of a Step.
type StepKind int

const (
	KindSingle StepKind = iota
	KindOneOf
)

func (k StepKind) String() string {
	switch k {
	case KindSingle:
		return "Single"
	case KindOneOf:
		return "OneOf"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Step is one entry of a Pipeline: either Single or OneOf.
type Step interface {
	Kind() StepKind
	// Transforms returns the transform of a Single or the members of a OneOf.
	Transforms() []Transform
	String() string

	apply(rng *rand.Rand, p *Pair) error
}

// Single always applies its transform. The transform may still have its own
// probability (e.g. GaussNoise).
type Single struct {
	Transform Transform
}

var _ Step = Single{}

func (s Single) Kind() StepKind          { return KindSingle }
func (s Single) Transforms() []Transform { return []Transform{s.Transform} }
func (s Single) String() string          { return s.Transform.Name() }

func (s Single) apply(rng *rand.Rand, p *Pair) error {
	return s.Transform.Apply(rng, p)
}

// OneOf applies, with probability Prob, exactly one of Choices picked
// uniformly. When the gate fails nothing is applied.
type OneOf struct {
	Prob    float64
	Choices []Transform
}

var _ Step = OneOf{}

func (o OneOf) Kind() StepKind          { return KindOneOf }
func (o OneOf) Transforms() []Transform { return o.Choices }

func (o OneOf) String() string {
	names := make([]string, len(o.Choices))
	for i, t := range o.Choices {
		names[i] = t.Name()
	}
	return fmt.Sprintf("OneOf(p=%g: %s)", o.Prob, strings.Join(names, "|"))
}

func (o OneOf) apply(rng *rand.Rand, p *Pair) error {
	if len(o.Choices) == 0 || rng.Float64() >= o.Prob {
		return nil
	}
	return o.Choices[rng.IntN(len(o.Choices))].Apply(rng, p)
}

// Pipeline is an immutable ordered list of steps.
type Pipeline struct {
	steps []Step
}

// NewPipeline returns a pipeline running steps in order.
func NewPipeline(steps ...Step) *Pipeline {
	s := make([]Step, len(steps))
	copy(s, steps)
	return &Pipeline{steps: s}
}

// Steps returns a copy of the steps.
func (pl *Pipeline) Steps() []Step {
	s := make([]Step, len(pl.steps))
	copy(s, pl.steps)
	return s
}

// Len returns the number of steps.
func (pl *Pipeline) Len() int { return len(pl.steps) }

// Names returns the String() of every step.
func (pl *Pipeline) Names() []string {
	names := make([]string, len(pl.steps))
	for i, s := range pl.steps {
		names[i] = s.String()
	}
	return names
}

// Randomized reports whether any step draws random values.
func (pl *Pipeline) Randomized() bool {
	for _, s := range pl.steps {
		if s.Kind() == KindOneOf {
			return true
		}
		for _, t := range s.Transforms() {
			if _, ok := t.(deterministic); !ok {
				return true
			}
		}
	}
	return false
}

// deterministic is implemented by transforms that never use the random source.
type deterministic interface {
	deterministic()
}

func (pl *Pipeline) String() string {
	return strings.Join(pl.Names(), " -> ")
}

// Apply runs every step on p in order.
func (pl *Pipeline) Apply(rng *rand.Rand, p *Pair) error {
	for _, s := range pl.steps {
		if err := s.apply(rng, p); err != nil {
			return errors.Wrapf(err, "%s", s)
		}
	}
	return nil
}
