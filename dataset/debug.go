package dataset

import (
	"html/template"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"

	"github.com/sugarme/myops/augment"
	"github.com/sugarme/myops/imgutil"
)

// VisDirPrefix is the prefix of the folder SaveCheckData writes to, followed
// by the modality.
const VisDirPrefix = "data_processed_vis_"

// GalleryTitle is the title of the index.html written by SaveCheckData.
const GalleryTitle = "dataset_visualization"

var maskColor = color.NRGBA{R: 0xff, A: 0xa0}

// SaveCheckData renders every sample, as the pipeline produces it, with its
// mask overlaid in red, into `<resultDir>/data_processed_vis_<modality>/`,
// and writes an index.html listing the renders. An empty resultDir means the
// root directory. It returns the folder written to.
func (ds *Dataset) SaveCheckData(resultDir string) (string, error) {
	if resultDir == "" {
		resultDir = ds.rootDir
	}
	dir := filepath.Join(resultDir, VisDirPrefix+ds.cfg.Modality)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating %q", dir)
	}

	var bar *progressbar.ProgressBar
	if ds.cfg.ShowProgress {
		bar = progressbar.NewOptions(len(ds.records),
			progressbar.OptionSetDescription("Visualization"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
		)
		defer bar.Finish()
	}

	for idx, r := range ds.records {
		klog.V(1).Infof("Image %d", idx)
		p, err := ds.pair(idx, newRand())
		if err != nil {
			return "", err
		}
		dropTensors(p)

		title, name := checkDataNames(r.Image, ds.cfg.Modality)
		overlay := imgutil.Overlay(preview(p), p.Mask, maskColor)
		if err := savePlot(overlay, title, filepath.Join(dir, name)); err != nil {
			return "", err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if err := writeGallery(dir, GalleryTitle); err != nil {
		return "", err
	}
	klog.Infof("The previsualization of the data is saved in folder: %s", dir)
	return dir, nil
}

// checkDataNames derives the plot title and the output file name from an
// image file name such as "myops_training_101_C0_0.png": title
// "Image 101 modality T2 slice 0", file "101_C0_0.png".
func checkDataNames(imageName, modality string) (title, file string) {
	base := filepath.Base(imageName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	tok := strings.Split(stem, "_")
	if len(tok) < 3 {
		return "Image " + stem + " modality " + modality, stem + ".png"
	}

	var slice string
	if last := tok[len(tok)-1]; last != "" {
		slice = last[:1]
	}
	title = "Image " + tok[2] + " modality " + modality + " slice " + slice
	return title, strings.Join(tok[2:], "_") + ".png"
}

func dropTensors(p *augment.Pair) {
	if p.ImageTensor != nil {
		p.ImageTensor.MustDrop()
	}
	if p.MaskTensor != nil {
		p.MaskTensor.MustDrop()
	}
}

// preview returns the first channel of the transformed image rescaled to the
// 8-bit range.
func preview(p *augment.Pair) *image.Gray {
	w, h := p.Size()
	if len(p.Data) < w*h {
		return imgutil.ToGray(p.Image)
	}
	plane := p.Data[:w*h]

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range plane {
		lo = math.Min(lo, float64(v))
		hi = math.Max(hi, float64(v))
	}
	var scale float64
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range plane {
		out.Pix[i] = uint8(math.Round((float64(v) - lo) * scale))
	}
	return out
}

func savePlot(img image.Image, title, filename string) error {
	b := img.Bounds()
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(plotter.NewImage(img, 0, 0, float64(b.Dx()), float64(b.Dy())))

	if err := p.Save(6.4*vg.Inch, 6.4*vg.Inch, filename); err != nil {
		return errors.Wrapf(err, "saving %q", filename)
	}
	return nil
}

var galleryTmpl = template.Must(template.New("gallery").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{range .Images}}<figure><img src="{{.}}" alt="{{.}}"><figcaption>{{.}}</figcaption></figure>
{{end}}</body>
</html>
`))

// writeGallery writes dir/index.html showing every PNG file of dir.
func writeGallery(dir, title string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return errors.WithStack(err)
	}
	sort.Strings(files)
	images := make([]string, len(files))
	for i, f := range files {
		images[i] = filepath.Base(f)
	}

	filename := filepath.Join(dir, "index.html")
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "creating %q", filename)
	}
	if err := galleryTmpl.Execute(f, struct {
		Title  string
		Images []string
	}{title, images}); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %q", filename)
	}
	return f.Close()
}
