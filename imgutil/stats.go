package imgutil

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

// Values returns the channel values of img as float64, interleaved per pixel.
// Gray images yield one value per pixel, anything else the R, G, B values.
func Values(img image.Image) []float64 {
	switch m := img.(type) {
	case *image.Gray:
		b := m.Bounds()
		out := make([]float64, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, y):m.PixOffset(b.Max.X, y)]
			for _, v := range row {
				out = append(out, float64(v))
			}
		}
		return out
	default:
		n := ToNRGBA(img)
		out := make([]float64, 0, len(n.Pix)/4*3)
		for i := 0; i < len(n.Pix); i += 4 {
			out = append(out, float64(n.Pix[i]), float64(n.Pix[i+1]), float64(n.Pix[i+2]))
		}
		return out
	}
}

// MeanStd returns the mean and the population standard deviation of all the
// channel values of img, the way numpy's mean() and std() do on the decoded
// array.
func MeanStd(img image.Image) (mean, std float64) {
	values := Values(img)
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}
