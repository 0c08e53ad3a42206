package augment

import (
	"image"
	"math"
	"math/rand/v2"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// GridDistortion splits each axis in NumSteps cells and stretches every cell
// by a factor drawn from 1 + [-Limit, Limit].
type GridDistortion struct {
	NumSteps int
	Limit    float64
}

func (GridDistortion) Name() string { return "GridDistortion" }

func (g GridDistortion) Apply(rng *rand.Rand, p *Pair) error {
	w, h := p.Size()
	xx := gridAxis(rng, w, g.NumSteps, g.Limit)
	yy := gridAxis(rng, h, g.NumSteps, g.Limit)

	mapX := make([]float64, w*h)
	mapY := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mapX[y*w+x] = xx[x]
			mapY[y*w+x] = yy[y]
		}
	}
	p.remap(mapX, mapY)
	return nil
}

// gridAxis returns, for each destination coordinate along an axis of size n,
// the source coordinate to sample.
func gridAxis(rng *rand.Rand, n, numSteps int, limit float64) []float64 {
	out := make([]float64, n)
	step := n / max(numSteps, 1)
	if step == 0 {
		for i := range out {
			out[i] = float64(i)
		}
		return out
	}

	stretch := make([]float64, (n+step-1)/step)
	for i := range stretch {
		stretch[i] = 1 + uniform(rng, -limit, limit)
	}

	prev := 0.0
	for idx, start := 0, 0; start < n; idx, start = idx+1, start+step {
		end := start + step
		var cur float64
		if end > n {
			end = n
			cur = float64(n)
		} else {
			cur = prev + float64(step)*stretch[idx]
		}
		linspace(out[start:end], prev, cur)
		prev = cur
	}
	for i := range out {
		out[i] = math.Min(out[i], float64(n-1))
	}
	return out
}

// linspace fills dst with evenly spaced values from lo to hi, both included.
func linspace(dst []float64, lo, hi float64) {
	switch len(dst) {
	case 0:
	case 1:
		dst[0] = lo
	default:
		d := (hi - lo) / float64(len(dst)-1)
		for i := range dst {
			dst[i] = lo + d*float64(i)
		}
	}
}

// ElasticTransform applies a random affine warp, moving three control
// points by up to AlphaAffine pixels, followed by a smooth random
// displacement field (gaussian filtered with Sigma, scaled by Alpha).
// Uncovered pixels are 0.
type ElasticTransform struct {
	Alpha       float64
	Sigma       float64
	AlphaAffine float64
}

func (ElasticTransform) Name() string { return "ElasticTransform" }

func (e ElasticTransform) Apply(rng *rand.Rand, p *Pair) error {
	w, h := p.Size()

	cx, cy := float64(w/2), float64(h/2)
	sq := float64(min(w, h) / 3)
	src := [3][2]float64{{cx + sq, cy + sq}, {cx + sq, cy - sq}, {cx - sq, cy - sq}}
	var dst [3][2]float64
	for i := range src {
		dst[i][0] = src[i][0] + uniform(rng, -e.AlphaAffine, e.AlphaAffine)
		dst[i][1] = src[i][1] + uniform(rng, -e.AlphaAffine, e.AlphaAffine)
	}
	if m, ok := affineFromPoints(src, dst); ok {
		p.affine(m)
	}

	dx := smoothField(rng, w, h, e.Sigma, e.Alpha)
	dy := smoothField(rng, w, h, e.Sigma, e.Alpha)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx[y*w+x] += float64(x)
			dy[y*w+x] += float64(y)
		}
	}
	p.remap(dx, dy)
	return nil
}

// affineFromPoints solves the affine transform mapping the three src points
// onto dst. It reports false for collinear points.
func affineFromPoints(src, dst [3][2]float64) (f64.Aff3, bool) {
	a := mat.NewDense(3, 3, nil)
	b := mat.NewDense(3, 2, nil)
	for i := 0; i < 3; i++ {
		a.SetRow(i, []float64{src[i][0], src[i][1], 1})
		b.SetRow(i, []float64{dst[i][0], dst[i][1]})
	}
	if mat.Det(a) == 0 {
		return f64.Aff3{}, false
	}
	var coef mat.Dense
	if err := coef.Solve(a, b); err != nil {
		return f64.Aff3{}, false
	}
	return f64.Aff3{
		coef.At(0, 0), coef.At(1, 0), coef.At(2, 0),
		coef.At(0, 1), coef.At(1, 1), coef.At(2, 1),
	}, true
}

// smoothField returns a w*h field of uniform [-1, 1) values, gaussian
// filtered with sigma (reflected borders) and multiplied by alpha.
func smoothField(rng *rand.Rand, w, h int, sigma, alpha float64) []float64 {
	field := make([]float64, w*h)
	for i := range field {
		field[i] = uniform(rng, -1, 1)
	}
	if sigma > 0 {
		kernel := gaussianKernel(sigma)
		field = convolveRows(field, w, h, kernel)
		field = transposeField(convolveRows(transposeField(field, w, h), h, w, kernel), h, w)
	}
	for i := range field {
		field[i] *= alpha
	}
	return field
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	var sum float64
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func convolveRows(in []float64, w, h int, kernel []float64) []float64 {
	radius := len(kernel) / 2
	out := make([]float64, len(in))
	for y := 0; y < h; y++ {
		row := in[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc float64
			for k, kv := range kernel {
				acc += kv * row[reflect(x+k-radius, w)]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

func transposeField(in []float64, w, h int) []float64 {
	out := make([]float64, len(in))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[x*h+y] = in[y*w+x]
		}
	}
	return out
}

// reflect maps i into [0, n) mirroring at the borders (d c b a | a b c d).
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// remap samples the source at (mapX, mapY) for every destination pixel:
// bilinear for the image, nearest for the mask, 0 outside.
func (p *Pair) remap(mapX, mapY []float64) {
	w, h := p.Size()
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i := range mapX {
		x, y := int(math.Round(mapX[i])), int(math.Round(mapY[i]))
		if x >= 0 && x < w && y >= 0 && y < h {
			mask.Pix[(i/w)*mask.Stride+i%w] = p.Mask.Pix[y*p.Mask.Stride+x]
		}
	}
	p.Mask = mask

	switch img := p.Image.(type) {
	case *image.Gray:
		out := image.NewGray(img.Rect)
		for i := range mapX {
			out.Pix[(i/w)*out.Stride+i%w] = clampUint8(bilinear(img.Pix, img.Stride, 1, 0, w, h, mapX[i], mapY[i]))
		}
		p.Image = out
	case *image.NRGBA:
		out := image.NewNRGBA(img.Rect)
		for i := range mapX {
			off := (i/w)*out.Stride + (i%w)*4
			for c := 0; c < 3; c++ {
				out.Pix[off+c] = clampUint8(bilinear(img.Pix, img.Stride, 4, c, w, h, mapX[i], mapY[i]))
			}
			out.Pix[off+3] = 0xff
		}
		p.Image = out
	}
}

// bilinear interpolates channel c of an interleaved 8-bit buffer at (x, y).
// Samples outside the image count as 0.
func bilinear(pix []uint8, stride, bpp, c, w, h int, x, y float64) float64 {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)
	at := func(xi, yi int) float64 {
		if xi < 0 || xi >= w || yi < 0 || yi >= h {
			return 0
		}
		return float64(pix[yi*stride+xi*bpp+c])
	}
	top := at(x0, y0)*(1-fx) + at(x0+1, y0)*fx
	bottom := at(x0, y0+1)*(1-fx) + at(x0+1, y0+1)*fx
	return top*(1-fy) + bottom*fy
}
