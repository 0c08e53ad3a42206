package augment

import (
	"image"
	"math/rand/v2"

	"gocv.io/x/gocv"
)

// CLAHE applies OpenCV's contrast limited adaptive histogram equalization.
// Gray images are equalized directly; RGB images are converted to LAB, the
// lightness channel is equalized and the result converted back, so hues are
// kept.
type CLAHE struct {
	ClipLimit float64
	TileGrid  int
}

func (CLAHE) Name() string   { return "CLAHE" }
func (CLAHE) deterministic() {}

func (t CLAHE) Apply(_ *rand.Rand, p *Pair) error {
	clahe := gocv.NewCLAHEWithParams(t.ClipLimit, image.Point{X: t.TileGrid, Y: t.TileGrid})
	defer clahe.Close()

	src, err := toMat(p.Image)
	if err != nil {
		return err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	if src.Channels() == 1 {
		clahe.Apply(src, &dst)
		return fromMat(dst, p.Image)
	}

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(src, &lab, gocv.ColorRGBToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	lightness := gocv.NewMat()
	clahe.Apply(channels[0], &lightness)
	channels[0].Close()
	channels[0] = lightness

	gocv.Merge(channels, &lab)
	gocv.CvtColor(lab, &dst, gocv.ColorLabToRGB)
	return fromMat(dst, p.Image)
}
