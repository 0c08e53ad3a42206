// Package imgutil reads images and masks from disk and provides the pixel
// helpers shared by the augmentation pipeline and the debug visualization.
package imgutil

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/sugarme/myops/dataerr"
)

// Mode is the colour mode an image is converted to after decoding.
type Mode int

const (
	// ModeRGB converts to opaque *image.NRGBA, 3 channels.
	ModeRGB Mode = iota
	// ModeGray converts to *image.Gray, 1 channel.
	ModeGray
)

func (m Mode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeGray:
		return "L"
	default:
		return "unknown"
	}
}

// Channels returns the number of channels of an image in mode m.
func (m Mode) Channels() int {
	if m == ModeGray {
		return 1
	}
	return 3
}

// ParseMode parses "RGB" or "L"/"gray".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "rgb", "":
		return ModeRGB, nil
	case "l", "gray", "grey":
		return ModeGray, nil
	default:
		return 0, dataerr.Configf("unknown image mode %q", s)
	}
}

// ReadImage reads image from file.
func ReadImage(filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, err := os.Open(filename)
	if err != nil {
		return nil, dataerr.Decodef("opening %q: %v", filename, err)
	}
	defer f.Close()

	var img image.Image
	switch ext {
	case ".png":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	case ".tiff", ".tif":
		img, err = tiff.Decode(f)
	case ".bmp":
		img, err = bmp.Decode(f)
	default:
		return nil, dataerr.Decodef("unsupported image format %q: %v", ext, filename)
	}
	if err != nil {
		return nil, dataerr.Decodef("decoding %q: %v", filename, err)
	}
	return img, nil
}

// Load reads an image and converts it to the given mode.
func Load(filename string, mode Mode) (image.Image, error) {
	img, err := ReadImage(filename)
	if err != nil {
		return nil, err
	}
	return Convert(img, mode), nil
}

// ReadGray reads an image as 8-bit grayscale.
func ReadGray(filename string) (*image.Gray, error) {
	img, err := ReadImage(filename)
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}

// Convert converts img to mode. The result has its origin at (0, 0).
func Convert(img image.Image, mode Mode) image.Image {
	if mode == ModeGray {
		return ToGray(img)
	}
	return ToNRGBA(img)
}

// ToNRGBA returns an opaque copy of img, alpha is discarded the way a
// conversion to RGB does.
func ToNRGBA(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// ToGray converts img to 8-bit grayscale (ITU-R 601-2 luma). The result has
// its origin at (0, 0).
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// CloneGray returns a grayscale copy of img with its origin at (0, 0). Unlike
// ToGray it never returns img itself.
func CloneGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// KeepMode converts out back to the representation of ref: *image.Gray
// stays gray, anything else becomes *image.NRGBA.
func KeepMode(ref, out image.Image) image.Image {
	if _, ok := ref.(*image.Gray); ok {
		return ToGray(out)
	}
	if n, ok := out.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(out)
}

// CropImage takes an image and crops it to the specified rectangle.
// The result is a copy with its origin at (0, 0), in the mode of img.
func CropImage(img image.Image, crop image.Rectangle) (image.Image, error) {
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}

	// img is an Image interface. This checks if the underlying value has a
	// method called SubImage. If it does, then we can use SubImage to crop the
	// image.
	simg, ok := img.(subImager)
	if !ok {
		return nil, dataerr.Decodef("image %T does not support cropping", img)
	}

	sub := simg.SubImage(crop.Add(img.Bounds().Min))
	if _, ok := img.(*image.Gray); ok {
		return ToGray(sub), nil
	}
	return imaging.Clone(sub), nil
}

// Overlay draws mask over a grayscale rendering of img in colour c. The
// alpha of c is scaled by the mask value, so background pixels (0) leave the
// image untouched.
func Overlay(img image.Image, mask *image.Gray, c color.NRGBA) *image.RGBA {
	gray := ToGray(img)
	rec := gray.Bounds()
	dstImg := image.NewRGBA(rec)
	draw.Draw(dstImg, rec, gray, image.Point{}, draw.Src)

	alpha := image.NewAlpha(rec)
	mb := mask.Bounds()
	for y := 0; y < rec.Dy() && y < mb.Dy(); y++ {
		for x := 0; x < rec.Dx() && x < mb.Dx(); x++ {
			v := mask.GrayAt(mb.Min.X+x, mb.Min.Y+y).Y
			if v == 0 {
				continue
			}
			alpha.SetAlpha(x, y, color.Alpha{A: uint8(uint32(v) * uint32(c.A) / 255)})
		}
	}

	solid := image.NewUniform(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
	draw.DrawMask(dstImg, rec, solid, image.Point{}, alpha, image.Point{}, draw.Over)
	return dstImg
}

// SavePNG encodes img as PNG into filename.
func SavePNG(img image.Image, filename string) error {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
