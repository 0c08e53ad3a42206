package augment

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/sugarme/myops/dataerr"
)

// toMat copies the image into an 8-bit OpenCV matrix: one channel for
// *image.Gray, three channels in RGB order for *image.NRGBA.
func toMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch m := img.(type) {
	case *image.Gray:
		buf := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(buf[y*w:(y+1)*w], m.Pix[y*m.Stride:y*m.Stride+w])
		}
		mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, buf)
		if err != nil {
			return gocv.Mat{}, dataerr.Decodef("gray matrix: %v", err)
		}
		return mat, nil
	case *image.NRGBA:
		buf := make([]byte, 3*w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				copy(buf[(y*w+x)*3:(y*w+x)*3+3], m.Pix[y*m.Stride+x*4:y*m.Stride+x*4+3])
			}
		}
		mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
		if err != nil {
			return gocv.Mat{}, dataerr.Decodef("RGB matrix: %v", err)
		}
		return mat, nil
	default:
		return gocv.Mat{}, dataerr.Decodef("unsupported image %T", img)
	}
}

// fromMat writes the matrix back into img, which must have the size and
// channel count the matrix was made from.
func fromMat(mat gocv.Mat, img image.Image) error {
	buf := mat.ToBytes()
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch m := img.(type) {
	case *image.Gray:
		if len(buf) < w*h {
			return dataerr.Decodef("matrix of %d bytes for %dx%d gray image", len(buf), w, h)
		}
		for y := 0; y < h; y++ {
			copy(m.Pix[y*m.Stride:y*m.Stride+w], buf[y*w:(y+1)*w])
		}
	case *image.NRGBA:
		if len(buf) < 3*w*h {
			return dataerr.Decodef("matrix of %d bytes for %dx%d RGB image", len(buf), w, h)
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				copy(m.Pix[y*m.Stride+x*4:y*m.Stride+x*4+3], buf[(y*w+x)*3:(y*w+x)*3+3])
			}
		}
	}
	return nil
}
