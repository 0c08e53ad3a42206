package augment

import (
	"image"
	"math/rand/v2"

	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/myops/dataerr"
)

// Normalize maps every image value v to (v - Mean) / Std and stores the
// result in Pair.Data in CHW order. A zero Std is treated as 1, so constant
// datasets do not divide by zero.
type Normalize struct {
	Mean, Std float64
}

func (Normalize) Name() string   { return "Normalize" }
func (Normalize) deterministic() {}

func (n Normalize) Apply(_ *rand.Rand, p *Pair) error {
	std := n.Std
	if std == 0 {
		std = 1
	}
	data, channels := planar(p.Image)
	for i, v := range data {
		data[i] = float32((float64(v) - n.Mean) / std)
	}
	p.Data, p.Channels = data, channels
	return nil
}

// planar returns the image values as float32 in CHW order.
func planar(img image.Image) (data []float32, channels int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch m := img.(type) {
	case *image.Gray:
		data = make([]float32, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float32(m.Pix[y*m.Stride+x])
			}
		}
		return data, 1
	case *image.NRGBA:
		data = make([]float32, 3*w*h)
		for c := 0; c < 3; c++ {
			plane := data[c*w*h : (c+1)*w*h]
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					plane[y*w+x] = float32(m.Pix[y*m.Stride+x*4+c])
				}
			}
		}
		return data, 3
	}
	return nil, 0
}

// ToTensor converts the pair into gotch tensors: the image as float32
// [C, H, W] (Pair.Data when Normalize ran, raw values otherwise) and the mask
// as float32 [1, H, W] label values.
type ToTensor struct{}

func (ToTensor) Name() string   { return "ToTensor" }
func (ToTensor) deterministic() {}

func (ToTensor) Apply(_ *rand.Rand, p *Pair) error {
	w, h := p.Size()
	if p.Data == nil {
		p.Data, p.Channels = planar(p.Image)
	}
	if p.Channels == 0 || len(p.Data) != p.Channels*w*h {
		return dataerr.Decodef("image data of %d values does not match %dx%dx%d", len(p.Data), p.Channels, h, w)
	}

	img, err := ts.NewTensorFromData(p.Data, []int64{int64(p.Channels), int64(h), int64(w)})
	if err != nil {
		return err
	}

	maskData, _ := planar(p.Mask)
	mask, err := ts.NewTensorFromData(maskData, []int64{1, int64(h), int64(w)})
	if err != nil {
		img.MustDrop()
		return err
	}

	p.ImageTensor, p.MaskTensor = img, mask
	return nil
}
