package augment

import (
	"image"
	"math/rand/v2"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/myops/dataerr"
	"github.com/sugarme/myops/imgutil"
)

func newRng() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// patternPair returns a pair whose gray image and mask hold the same pattern,
// so any geometric transform must keep them equal.
func patternPair(t *testing.T, w, h int) *Pair {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8((x*7 + y*13) % 251)
		}
	}
	mask := image.NewGray(img.Rect)
	copy(mask.Pix, img.Pix)
	p, err := NewPair(img, mask)
	require.NoError(t, err)
	return p
}

func requireCongruent(t *testing.T, p *Pair, tolerance int) {
	img, ok := p.Image.(*image.Gray)
	require.True(t, ok, "image type %T", p.Image)
	require.Equal(t, img.Bounds(), p.Mask.Bounds())
	w, h := p.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a, b := int(img.GrayAt(x, y).Y), int(p.Mask.GrayAt(x, y).Y)
			if a-b > tolerance || b-a > tolerance {
				t.Fatalf("image and mask differ at (%d, %d): %d != %d", x, y, a, b)
			}
		}
	}
}

func TestBuildTailOnly(t *testing.T) {
	for _, cfg := range []BuildConfig{
		{Prob: 0.5, Size: Size{64, 64}, Augment: false, Train: true},
		{Prob: 0.5, Size: Size{64, 64}, Augment: true, Train: false},
		{Prob: 0.5, Size: Size{64, 64}, Augment: false, Train: false},
	} {
		pl, err := Build(cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"Resize", "Normalize", "ToTensor"}, pl.Names())
		for _, s := range pl.Steps() {
			assert.Equal(t, KindSingle, s.Kind())
		}
		assert.False(t, pl.Randomized())
	}
}

func TestBuildOrder(t *testing.T) {
	pl, err := Build(BuildConfig{
		Prob: 0.5, Size: Size{256, 256}, Augment: true, Train: true,
		Switches: Switches{
			CLAHE: Bool(false), Contrast: Bool(true), Noise: Bool(true),
			Distortion: Bool(true), Blur: Bool(true),
		},
	})
	require.NoError(t, err)
	steps := pl.Steps()
	require.Len(t, steps, 9)

	first := func(s Step) string { return s.Transforms()[0].Name() }
	assert.Equal(t, "Rotate", first(steps[0]))
	assert.Equal(t, "RandomCrop", first(steps[1]))
	assert.Equal(t, "RandomBrightnessContrast", first(steps[2]))
	assert.Equal(t, "GaussNoise", first(steps[3]))
	assert.Equal(t, "GridDistortion", first(steps[4]))
	assert.Equal(t, "MotionBlur", first(steps[5]))
	assert.Equal(t, []string{"Resize", "Normalize", "ToTensor"}, pl.Names()[6:])

	for _, i := range []int{0, 1, 2, 4, 5} {
		assert.Equal(t, KindOneOf, steps[i].Kind(), "step %d", i)
		assert.Equal(t, 0.5, steps[i].(OneOf).Prob)
	}
	assert.Len(t, steps[0].Transforms(), 6)
	assert.Len(t, steps[5].Transforms(), 3)
	assert.True(t, pl.Randomized())
}

func TestBuildDefaults(t *testing.T) {
	pl, err := Build(BuildConfig{Prob: 0.5, Size: Size{256, 256}, Augment: true, Train: true})
	require.NoError(t, err)
	names := pl.Names()
	require.Len(t, names, 6)
	assert.Equal(t, "CLAHE", names[2])
	assert.Equal(t, Features{Rotation: true, Crop: true, CLAHE: true}, Switches{}.Resolved())
}

func TestCLAHEPrecedence(t *testing.T) {
	pl, err := Build(BuildConfig{
		Prob: 0.5, Size: Size{128, 128}, Augment: true, Train: true,
		Switches: Switches{CLAHE: Bool(true), Contrast: Bool(true)},
	})
	require.NoError(t, err)
	var clahe int
	for _, s := range pl.Steps() {
		for _, tr := range s.Transforms() {
			switch tr.(type) {
			case CLAHE:
				clahe++
			case RandomBrightnessContrast, RandomGamma:
				t.Fatalf("contrast step %s present although CLAHE is on", s)
			}
		}
	}
	assert.Equal(t, 1, clahe)
}

func TestCropSize(t *testing.T) {
	pl, err := Build(BuildConfig{
		Prob: 0.5, Size: Size{Width: 256, Height: 200}, Augment: true, Train: true,
		Switches: Switches{Rotation: Bool(false), CLAHE: Bool(false)},
	})
	require.NoError(t, err)
	crop := pl.Steps()[0].Transforms()
	assert.Equal(t, RandomCrop{Width: 224, Height: 175}, crop[0])
	assert.Equal(t, CenterCrop{Width: 224, Height: 175}, crop[1])
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(BuildConfig{Prob: 0.5, Size: Size{0, 10}})
	assert.True(t, errors.Is(err, dataerr.ErrConfig))
	_, err = Build(BuildConfig{Prob: 1.5, Size: Size{10, 10}})
	assert.True(t, errors.Is(err, dataerr.ErrConfig))
}

type countTransform struct {
	name  string
	count *int
}

func (c countTransform) Name() string { return c.name }

func (c countTransform) Apply(*rand.Rand, *Pair) error {
	*c.count++
	return nil
}

func TestOneOf(t *testing.T) {
	counts := make([]int, 3)
	choices := []Transform{
		countTransform{"a", &counts[0]}, countTransform{"b", &counts[1]}, countTransform{"c", &counts[2]},
	}
	rng := newRng()
	p := patternPair(t, 4, 4)

	never := OneOf{Prob: 0, Choices: choices}
	for i := 0; i < 100; i++ {
		require.NoError(t, never.apply(rng, p))
	}
	assert.Equal(t, []int{0, 0, 0}, counts)

	always := OneOf{Prob: 1, Choices: choices}
	const n = 3000
	for i := 0; i < n; i++ {
		require.NoError(t, always.apply(rng, p))
	}
	assert.Equal(t, n, counts[0]+counts[1]+counts[2], "exactly one member per application")
	for i, c := range counts {
		assert.InDeltaf(t, n/3, c, n/10, "member %d chosen %d times", i, c)
	}

	counts[0], counts[1], counts[2] = 0, 0, 0
	half := OneOf{Prob: 0.5, Choices: choices}
	for i := 0; i < n; i++ {
		require.NoError(t, half.apply(rng, p))
	}
	assert.InDelta(t, n/2, counts[0]+counts[1]+counts[2], n/10)
	assert.Equal(t, "OneOf(p=0.5: a|b|c)", half.String())
}

func TestGeometricCongruence(t *testing.T) {
	for _, tr := range []Transform{
		HorizontalFlip{}, VerticalFlip{}, Transpose{}, RandomRotate90{},
		RandomCrop{Width: 20, Height: 14}, CenterCrop{Width: 20, Height: 14},
		Resize{Width: 17, Height: 23},
	} {
		rng := newRng()
		for i := 0; i < 8; i++ {
			p := patternPair(t, 32, 24)
			require.NoError(t, tr.Apply(rng, p), tr.Name())
			if _, ok := tr.(Resize); ok {
				// Lanczos and nearest neighbour only agree in size.
				assert.Equal(t, p.Image.Bounds(), p.Mask.Bounds())
				continue
			}
			requireCongruent(t, p, 0)
		}
	}
}

func TestRotate90Congruence(t *testing.T) {
	p := patternPair(t, 16, 16)
	want := imgutil.ToGray(imaging.Rotate90(p.Mask))
	p.affine(rotationMatrix(p, 90, 1, 0, 0))
	assert.Equal(t, want.Pix, p.Mask.Pix)
	requireCongruent(t, p, 1)
}

func TestAffineKeepsLabels(t *testing.T) {
	labels := map[uint8]bool{0: true, 200: true, 500 % 256: true}
	img := image.NewGray(image.Rect(0, 0, 24, 24))
	mask := image.NewGray(img.Rect)
	for i := range mask.Pix {
		img.Pix[i] = uint8(i)
		switch {
		case i%24 < 8:
			mask.Pix[i] = 200
		case i%24 < 16:
			mask.Pix[i] = 500 % 256
		}
	}

	rng := newRng()
	for _, tr := range []Transform{
		Rotate{Limit: 45},
		ShiftScaleRotate{ShiftLimit: 0.0625, ScaleLimit: 0.2, RotateLimit: 45},
		GridDistortion{NumSteps: 5, Limit: 0.3},
		ElasticTransform{Alpha: 1, Sigma: 1, AlphaAffine: 20},
		Resize{Width: 48, Height: 40},
	} {
		p, err := NewPair(img, mask)
		require.NoError(t, err)
		require.NoError(t, tr.Apply(rng, p))
		for _, v := range p.Mask.Pix {
			require.Truef(t, labels[v], "%s produced mask value %d", tr.Name(), v)
		}
	}
}

func TestIntensityLeavesMask(t *testing.T) {
	rng := newRng()
	for _, tr := range []Transform{
		RandomBrightnessContrast{BrightnessLimit: 0.2, ContrastLimit: 0.2},
		RandomGamma{Min: 80, Max: 120},
		GaussNoise{VarMin: 0, VarMax: 1, P: 1},
		MotionBlur{}, Blur{}, GaussianBlur{Sigma: 0.8},
		CLAHE{ClipLimit: 4, TileGrid: 8},
	} {
		p := patternPair(t, 32, 32)
		before := append([]uint8(nil), p.Mask.Pix...)
		require.NoError(t, tr.Apply(rng, p), tr.Name())
		assert.Equal(t, before, p.Mask.Pix, tr.Name())
		_, gray := p.Image.(*image.Gray)
		assert.True(t, gray, "%s changed the image mode", tr.Name())
		assert.Equal(t, image.Rect(0, 0, 32, 32), p.Image.Bounds())
	}
}

func TestNormalize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.Pix = []uint8{10, 30}
	p, err := NewPair(img, image.NewGray(img.Rect))
	require.NoError(t, err)

	require.NoError(t, Normalize{Mean: 20, Std: 10}.Apply(nil, p))
	assert.Equal(t, []float32{-1, 1}, p.Data)
	assert.Equal(t, 1, p.Channels)

	require.NoError(t, Normalize{Mean: 10, Std: 0}.Apply(nil, p))
	assert.Equal(t, []float32{0, 20}, p.Data)

	rgb, err := NewPair(imgutil.ToNRGBA(img), image.NewGray(img.Rect))
	require.NoError(t, err)
	require.NoError(t, Normalize{Mean: 0, Std: 1}.Apply(nil, rgb))
	assert.Equal(t, 3, rgb.Channels)
	assert.Equal(t, []float32{10, 30, 10, 30, 10, 30}, rgb.Data)
}

func TestNewPairSizeMismatch(t *testing.T) {
	_, err := NewPair(image.NewGray(image.Rect(0, 0, 4, 4)), image.NewGray(image.Rect(0, 0, 4, 5)))
	assert.True(t, errors.Is(err, dataerr.ErrDecode))
}

func TestPipelineDeterministic(t *testing.T) {
	pl, err := Build(BuildConfig{Prob: 0.5, Size: Size{8, 8}, Mean: 100, Std: 20})
	require.NoError(t, err)

	run := func(seed uint64) *Pair {
		p := patternPair(t, 12, 10)
		require.NoError(t, pl.Apply(rand.New(rand.NewPCG(seed, seed)), p))
		return p
	}
	a, b := run(1), run(2)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, []int64{1, 8, 8}, a.ImageTensor.MustSize())
	assert.Equal(t, []int64{1, 8, 8}, a.MaskTensor.MustSize())
	assert.Equal(t, a.ImageTensor.Float64Values(), b.ImageTensor.Float64Values())
}

func TestMotionKernel(t *testing.T) {
	rng := newRng()
	sizes := make(map[int]bool)
	for i := 0; i < 200; i++ {
		size, k := motionKernel(rng)
		require.Len(t, k, size*size)
		sizes[size] = true

		var sum float32
		var taps int
		for _, v := range k {
			sum += v
			if v != 0 {
				taps++
			}
		}
		assert.InDelta(t, 1, sum, 1e-5)
		assert.Equal(t, size, taps)
		assert.NotZero(t, k[(size/2)*size+size/2], "line passes through the centre")
	}
	assert.Equal(t, map[int]bool{3: true, 5: true, 7: true}, sizes)
}

func TestCLAHEKeepsNeutral(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(64 + x*4)
			off := y*img.Stride + x*4
			img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = v, v, v, 0xff
		}
	}
	p, err := NewPair(img, image.NewGray(img.Rect))
	require.NoError(t, err)
	require.NoError(t, CLAHE{ClipLimit: 4, TileGrid: 8}.Apply(nil, p))

	out, ok := p.Image.(*image.NRGBA)
	require.True(t, ok)
	var changed bool
	for i := 0; i < len(out.Pix); i += 4 {
		r, g, b := int(out.Pix[i]), int(out.Pix[i+1]), int(out.Pix[i+2])
		// Only lightness is equalized, gray stays gray.
		require.InDeltaf(t, r, g, 2, "pixel %d", i/4)
		require.InDeltaf(t, r, b, 2, "pixel %d", i/4)
		require.Equal(t, uint8(0xff), out.Pix[i+3])
		changed = changed || out.Pix[i] != img.Pix[i]
	}
	assert.True(t, changed)
	assert.Equal(t, make([]uint8, 32*32), p.Mask.Pix)
}

func TestNewPairCopies(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	mask := image.NewGray(img.Rect)
	mask.Pix[0] = 1
	p, err := NewPair(img, mask)
	require.NoError(t, err)

	rng := newRng()
	require.NoError(t, GaussNoise{VarMin: 400, VarMax: 400, P: 1}.Apply(rng, p))
	require.NoError(t, CLAHE{ClipLimit: 4, TileGrid: 8}.Apply(rng, p))
	p.Mask.Pix[0] = 9

	for _, v := range img.Pix {
		require.Equal(t, uint8(128), v)
	}
	assert.Equal(t, uint8(1), mask.Pix[0])
}

func TestBuildCropTooSmall(t *testing.T) {
	cfg := BuildConfig{Prob: 0.5, Size: Size{Width: 1, Height: 8}, Augment: true, Train: true}
	_, err := Build(cfg)
	assert.True(t, errors.Is(err, dataerr.ErrConfig), err)

	cfg.Switches.Crop = Bool(false)
	_, err = Build(cfg)
	assert.NoError(t, err)

	cfg.Switches.Crop = nil
	cfg.Augment = false
	_, err = Build(cfg)
	assert.NoError(t, err)
}
