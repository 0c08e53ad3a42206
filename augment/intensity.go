package augment

import (
	"image"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sugarme/myops/dataerr"
	"github.com/sugarme/myops/imgutil"
)

// intensity replaces the image with fn(image); the mask is untouched.
func (p *Pair) intensity(fn func(image.Image) image.Image) {
	p.Image = imgutil.KeepMode(p.Image, fn(p.Image))
}

// RandomBrightnessContrast shifts brightness by a fraction of the full range
// drawn from [-BrightnessLimit, BrightnessLimit] and scales contrast by
// 1 + [-ContrastLimit, ContrastLimit].
type RandomBrightnessContrast struct {
	BrightnessLimit float64
	ContrastLimit   float64
}

func (RandomBrightnessContrast) Name() string { return "RandomBrightnessContrast" }

func (t RandomBrightnessContrast) Apply(rng *rand.Rand, p *Pair) error {
	contrast := uniform(rng, -t.ContrastLimit, t.ContrastLimit)
	brightness := uniform(rng, -t.BrightnessLimit, t.BrightnessLimit)
	p.intensity(func(img image.Image) image.Image {
		out := imaging.AdjustContrast(img, contrast*100)
		return imaging.AdjustBrightness(out, brightness*100)
	})
	return nil
}

// RandomGamma raises normalized pixel values to a power drawn from
// [Min/100, Max/100].
type RandomGamma struct {
	Min, Max float64
}

func (RandomGamma) Name() string { return "RandomGamma" }

func (t RandomGamma) Apply(rng *rand.Rand, p *Pair) error {
	gamma := uniform(rng, t.Min, t.Max) / 100
	// imaging applies x^(1/g).
	p.intensity(func(img image.Image) image.Image { return imaging.AdjustGamma(img, 1/gamma) })
	return nil
}

// GaussNoise adds zero-mean gaussian noise, with probability P, whose
// variance (in pixel units) is drawn from [VarMin, VarMax].
type GaussNoise struct {
	VarMin, VarMax float64
	P              float64
}

func (GaussNoise) Name() string { return "GaussNoise" }

func (t GaussNoise) Apply(rng *rand.Rand, p *Pair) error {
	if rng.Float64() >= t.P {
		return nil
	}
	sigma := math.Sqrt(uniform(rng, t.VarMin, t.VarMax))
	if sigma == 0 {
		return nil
	}
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}
	add := func(v uint8) uint8 {
		return clampUint8(float64(v) + noise.Rand())
	}

	switch img := p.Image.(type) {
	case *image.Gray:
		for i, v := range img.Pix {
			img.Pix[i] = add(v)
		}
	case *image.NRGBA:
		for i, v := range img.Pix {
			if i%4 == 3 {
				continue
			}
			img.Pix[i] = add(v)
		}
	}
	return nil
}

// MotionBlur convolves with a normalized line kernel of random size (3, 5
// or 7 pixels) and random direction, with reflected borders.
type MotionBlur struct{}

func (MotionBlur) Name() string { return "MotionBlur" }

func (MotionBlur) Apply(rng *rand.Rand, p *Pair) error {
	size, k := motionKernel(rng)
	kernel := gocv.NewMatWithSize(size, size, gocv.MatTypeCV32F)
	defer kernel.Close()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			kernel.SetFloatAt(y, x, k[y*size+x])
		}
	}

	src, err := toMat(p.Image)
	if err != nil {
		return err
	}
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	if err := gocv.Filter2D(src, &dst, -1, kernel, image.Point{X: -1, Y: -1}, 0, gocv.BorderReflect101); err != nil {
		return dataerr.Decodef("motion blur: %v", err)
	}
	return fromMat(dst, p.Image)
}

// motionKernel returns a size x size kernel, row major, holding a line
// through the centre (horizontal, vertical or one of the diagonals) whose
// weights sum to 1.
func motionKernel(rng *rand.Rand) (size int, k []float32) {
	size = 3 + 2*rng.IntN(3)
	k = make([]float32, size*size)
	dirs := [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}
	d := dirs[rng.IntN(len(dirs))]
	c, half := size/2, size/2
	for i := -half; i <= half; i++ {
		k[(c+i*d[1])*size+c+i*d[0]] = 1 / float32(size)
	}
	return size, k
}

// Blur is a 3x3 box filter.
type Blur struct{}

func (Blur) Name() string   { return "Blur" }
func (Blur) deterministic() {}

func (Blur) Apply(_ *rand.Rand, p *Pair) error {
	k := [9]float64{1, 1, 1, 1, 1, 1, 1, 1, 1}
	p.intensity(func(img image.Image) image.Image {
		return imaging.Convolve3x3(img, k, &imaging.ConvolveOptions{Normalize: true})
	})
	return nil
}

// GaussianBlur blurs with a gaussian of standard deviation Sigma.
type GaussianBlur struct {
	Sigma float64
}

func (GaussianBlur) Name() string   { return "GaussianBlur" }
func (GaussianBlur) deterministic() {}

func (t GaussianBlur) Apply(_ *rand.Rand, p *Pair) error {
	p.intensity(func(img image.Image) image.Image { return imaging.Blur(img, t.Sigma) })
	return nil
}

func clampUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
