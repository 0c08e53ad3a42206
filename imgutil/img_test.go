package imgutil_test

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/myops/dataerr"
	"github.com/sugarme/myops/imgutil"
)

func constantGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestReadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	require.NoError(t, imgutil.SavePNG(constantGray(4, 3, 77), path))

	img, err := imgutil.Load(path, imgutil.ModeRGB)
	require.NoError(t, err)
	rgb, ok := img.(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 4, 3), rgb.Bounds())
	assert.Equal(t, color.NRGBA{R: 77, G: 77, B: 77, A: 255}, rgb.NRGBAAt(2, 1))

	gray, err := imgutil.ReadGray(path)
	require.NoError(t, err)
	assert.Equal(t, uint8(77), gray.GrayAt(3, 2).Y)
}

func TestReadImageErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := imgutil.ReadImage(filepath.Join(dir, "missing.png"))
	assert.True(t, errors.Is(err, dataerr.ErrDecode))

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0644))
	_, err = imgutil.ReadImage(bad)
	assert.True(t, errors.Is(err, dataerr.ErrDecode))

	other := filepath.Join(dir, "a.gif")
	require.NoError(t, os.WriteFile(other, []byte("GIF89a"), 0644))
	_, err = imgutil.ReadImage(other)
	assert.True(t, errors.Is(err, dataerr.ErrDecode))
}

func TestMeanStd(t *testing.T) {
	mean, std := imgutil.MeanStd(constantGray(5, 5, 120))
	assert.InDelta(t, 120.0, mean, 1e-9)
	assert.InDelta(t, 0.0, std, 1e-9)

	// Half 0, half 200: mean 100, population std 100.
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix = []uint8{0, 200, 0, 200}
	mean, std = imgutil.MeanStd(img)
	assert.InDelta(t, 100.0, mean, 1e-9)
	assert.InDelta(t, 100.0, std, 1e-9)

	// RGB images use the three colour channels, not alpha.
	mean, std = imgutil.MeanStd(imgutil.ToNRGBA(constantGray(3, 3, 10)))
	assert.InDelta(t, 10.0, mean, 1e-9)
	assert.InDelta(t, 0.0, std, 1e-9)
}

func TestCropImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	out, err := imgutil.CropImage(img, image.Rect(1, 1, 3, 3))
	require.NoError(t, err)
	g, ok := out.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 2, 2), g.Bounds())
	assert.Equal(t, []uint8{5, 6, 9, 10}, g.Pix)
}

func TestOverlay(t *testing.T) {
	img := constantGray(2, 1, 100)
	mask := image.NewGray(image.Rect(0, 0, 2, 1))
	mask.Pix = []uint8{0, 255}

	out := imgutil.Overlay(img, mask, color.NRGBA{R: 255, A: 255})
	assert.Equal(t, color.RGBA{R: 100, G: 100, B: 100, A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(1, 0))
}

func TestParseMode(t *testing.T) {
	m, err := imgutil.ParseMode("L")
	require.NoError(t, err)
	assert.Equal(t, imgutil.ModeGray, m)
	assert.Equal(t, 1, m.Channels())

	m, err = imgutil.ParseMode("RGB")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Channels())

	_, err = imgutil.ParseMode("CMYK")
	assert.True(t, errors.Is(err, dataerr.ErrConfig))
}
