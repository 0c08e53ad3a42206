package augment

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/sugarme/myops/dataerr"
	"github.com/sugarme/myops/imgutil"
)

// geometric applies fn to image and mask alike.
func (p *Pair) geometric(fn func(image.Image) image.Image) {
	p.Image = imgutil.KeepMode(p.Image, fn(p.Image))
	p.Mask = imgutil.ToGray(fn(p.Mask))
}

// HorizontalFlip mirrors around the vertical axis.
type HorizontalFlip struct{}

func (HorizontalFlip) Name() string { return "HorizontalFlip" }

func (HorizontalFlip) Apply(_ *rand.Rand, p *Pair) error {
	p.geometric(func(img image.Image) image.Image { return imaging.FlipH(img) })
	return nil
}

// VerticalFlip mirrors around the horizontal axis.
type VerticalFlip struct{}

func (VerticalFlip) Name() string { return "VerticalFlip" }

func (VerticalFlip) Apply(_ *rand.Rand, p *Pair) error {
	p.geometric(func(img image.Image) image.Image { return imaging.FlipV(img) })
	return nil
}

// Transpose swaps rows and columns.
type Transpose struct{}

func (Transpose) Name() string { return "Transpose" }

func (Transpose) Apply(_ *rand.Rand, p *Pair) error {
	p.geometric(func(img image.Image) image.Image { return imaging.Transpose(img) })
	return nil
}

// RandomRotate90 rotates by 0, 90, 180 or 270 degrees counter-clockwise.
type RandomRotate90 struct{}

func (RandomRotate90) Name() string { return "RandomRotate90" }

func (RandomRotate90) Apply(rng *rand.Rand, p *Pair) error {
	var fn func(image.Image) image.Image
	switch rng.IntN(4) {
	case 0:
		return nil
	case 1:
		fn = func(img image.Image) image.Image { return imaging.Rotate90(img) }
	case 2:
		fn = func(img image.Image) image.Image { return imaging.Rotate180(img) }
	case 3:
		fn = func(img image.Image) image.Image { return imaging.Rotate270(img) }
	}
	p.geometric(fn)
	return nil
}

// Rotate rotates around the centre by an angle drawn from [-Limit, Limit]
// degrees. Uncovered pixels are 0.
type Rotate struct {
	Limit float64
}

func (Rotate) Name() string { return "Rotate" }

func (r Rotate) Apply(rng *rand.Rand, p *Pair) error {
	angle := uniform(rng, -r.Limit, r.Limit)
	p.affine(rotationMatrix(p, angle, 1, 0, 0))
	return nil
}

// ShiftScaleRotate shifts by a fraction of the size drawn from
// [-ShiftLimit, ShiftLimit], scales by 1 + [-ScaleLimit, ScaleLimit] and
// rotates by [-RotateLimit, RotateLimit] degrees, in one affine warp.
type ShiftScaleRotate struct {
	ShiftLimit  float64
	ScaleLimit  float64
	RotateLimit float64
}

func (ShiftScaleRotate) Name() string { return "ShiftScaleRotate" }

func (s ShiftScaleRotate) Apply(rng *rand.Rand, p *Pair) error {
	angle := uniform(rng, -s.RotateLimit, s.RotateLimit)
	scale := 1 + uniform(rng, -s.ScaleLimit, s.ScaleLimit)
	dx := uniform(rng, -s.ShiftLimit, s.ShiftLimit)
	dy := uniform(rng, -s.ShiftLimit, s.ShiftLimit)
	w, h := p.Size()
	p.affine(rotationMatrix(p, angle, scale, dx*float64(w), dy*float64(h)))
	return nil
}

// rotationMatrix returns the source to destination transform rotating by
// angle degrees (counter-clockwise on screen) and scaling around the centre,
// then translating by (tx, ty).
func rotationMatrix(p *Pair, angle, scale, tx, ty float64) f64.Aff3 {
	w, h := p.Size()
	cx, cy := float64(w)/2, float64(h)/2
	rad := angle * math.Pi / 180
	a := scale * math.Cos(rad)
	b := scale * math.Sin(rad)
	return f64.Aff3{
		a, b, cx - a*cx - b*cy + tx,
		-b, a, cy + b*cx - a*cy + ty,
	}
}

// affine warps the image with Catmull-Rom and the mask with nearest
// neighbour sampling.
func (p *Pair) affine(m f64.Aff3) {
	p.Image = warpAffine(p.Image, m, draw.CatmullRom)
	p.Mask = warpAffine(p.Mask, m, draw.NearestNeighbor).(*image.Gray)
}

func warpAffine(src image.Image, m f64.Aff3, interp draw.Interpolator) image.Image {
	b := src.Bounds()
	var dst draw.Image
	if _, ok := src.(*image.Gray); ok {
		dst = image.NewGray(b)
	} else {
		d := image.NewNRGBA(b)
		draw.Draw(d, b, image.NewUniform(color.Black), image.Point{}, draw.Src)
		dst = d
	}
	interp.Transform(dst, m, src, b, draw.Src, nil)
	return dst
}

// RandomCrop crops a Width x Height window at a random position. A source
// smaller than the window is cropped to its own size on that axis.
type RandomCrop struct {
	Width, Height int
}

func (RandomCrop) Name() string { return "RandomCrop" }

func (c RandomCrop) Apply(rng *rand.Rand, p *Pair) error {
	w, h := p.Size()
	cw, ch := min(c.Width, w), min(c.Height, h)
	x0 := rng.IntN(w - cw + 1)
	y0 := rng.IntN(h - ch + 1)
	return p.crop(image.Rect(x0, y0, x0+cw, y0+ch))
}

// CenterCrop crops a centred Width x Height window.
type CenterCrop struct {
	Width, Height int
}

func (CenterCrop) Name() string { return "CenterCrop" }
func (CenterCrop) deterministic() {}

func (c CenterCrop) Apply(_ *rand.Rand, p *Pair) error {
	w, h := p.Size()
	cw, ch := min(c.Width, w), min(c.Height, h)
	x0, y0 := (w-cw)/2, (h-ch)/2
	return p.crop(image.Rect(x0, y0, x0+cw, y0+ch))
}

func (p *Pair) crop(r image.Rectangle) error {
	if r.Empty() {
		return dataerr.Configf("empty crop %v", r)
	}
	img, err := imgutil.CropImage(p.Image, r)
	if err != nil {
		return err
	}
	mask, err := imgutil.CropImage(p.Mask, r)
	if err != nil {
		return err
	}
	p.Image, p.Mask = img, mask.(*image.Gray)
	return nil
}

// Resize scales to Width x Height: Lanczos3 for the image, nearest neighbour
// for the mask.
type Resize struct {
	Width, Height int
}

func (Resize) Name() string  { return "Resize" }
func (Resize) deterministic() {}

func (r Resize) Apply(_ *rand.Rand, p *Pair) error {
	if r.Width <= 0 || r.Height <= 0 {
		return dataerr.Configf("invalid resize %dx%d", r.Width, r.Height)
	}
	w, h := uint(r.Width), uint(r.Height)
	p.Image = imgutil.KeepMode(p.Image, resize.Resize(w, h, p.Image, resize.Lanczos3))
	p.Mask = imgutil.ToGray(resize.Resize(w, h, p.Mask, resize.NearestNeighbor))
	return nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
