package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/sugarme/myops/augment"
	"github.com/sugarme/myops/dataset"
	"github.com/sugarme/myops/imgutil"
	"github.com/sugarme/myops/manifest"
)

// flag variables
var (
	DataPath     string
	ManifestPath string
	OutPath      string
	Modality     string
	PhaseStr     string
	ModeStr      string
	task         string
	Augment      bool
	Split        bool
	Progress     bool
)

// loader settings
var (
	BatchSize int // batch size
	Workers   int // number of loading goroutines
	ImageSize int // output image size
)

func init() {
	flag.StringVar(&DataPath, "input", "./input", "specify root directory holding 'train/' and 'masks/'")
	flag.StringVar(&ManifestPath, "manifest", "", "specify manifest file. Default '<input>/images_mask_<modality>.csv'")
	flag.StringVar(&OutPath, "out", "", "specify output directory of the 'check' and 'eda' tasks. Default is input directory")
	flag.StringVar(&Modality, "modality", "T2", "specify image modality (manifest column 'img_<modality>')")
	flag.StringVar(&PhaseStr, "phase", "train", "specify phase: train or valid")
	flag.StringVar(&ModeStr, "mode", "RGB", "specify image mode: RGB or L")
	flag.StringVar(&task, "task", "check", "specify task to run: check, stats, load, eda")
	flag.BoolVar(&Augment, "augment", true, "specify whether applying data augmentation")
	flag.BoolVar(&Split, "split", true, "specify whether splitting manifest in train/valid")
	flag.BoolVar(&Progress, "progress", true, "specify whether showing progress bars")
	flag.IntVar(&BatchSize, "batch", 64, "specify batch size")
	flag.IntVar(&Workers, "workers", 6, "specify number of loading workers")
	flag.IntVar(&ImageSize, "size", 256, "specify output image size")
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	DataPath = absPath(DataPath)
	if ManifestPath == "" {
		ManifestPath = filepath.Join(DataPath, fmt.Sprintf("images_mask_%s.csv", Modality))
	}
	ManifestPath = absPath(ManifestPath)
	if OutPath == "" {
		OutPath = DataPath
	}
	OutPath = absPath(OutPath)

	switch task {
	case "check":
		runCheckData()
	case "stats":
		runStats()
	case "load":
		runCheckDataLoader()
	case "eda":
		runEDA()
	default:
		klog.Exitf("Unknown 'task' name %q. Please specify valid 'task' flag to run.", task)
	}
}

func config() dataset.Config {
	cfg := dataset.DefaultConfig()
	cfg.ManifestPath = ManifestPath
	cfg.RootPath = DataPath
	cfg.Modality = Modality
	cfg.Augment = Augment
	cfg.Split = Split
	cfg.Phase = must.M1(manifest.ParsePhase(PhaseStr))
	cfg.ImageMode = must.M1(imgutil.ParseMode(ModeStr))
	cfg.ImageSize = augment.Size{Width: ImageSize, Height: ImageSize}
	cfg.ShowProgress = Progress
	return cfg
}

func runCheckData() {
	ds := must.M1(dataset.New(config()))
	dir := must.M1(ds.SaveCheckData(OutPath))
	fmt.Printf("Saved %d images to %s\n", ds.Len(), dir)
}

func runStats() {
	cfg := config()
	for _, phase := range []manifest.Phase{manifest.Train, manifest.Valid} {
		cfg.Phase = phase
		ds := must.M1(dataset.New(cfg))
		fmt.Printf("%-5s: %4d samples, mean %.2f, std %.2f\n", phase, ds.Len(), ds.Mean(), ds.Std())
		fmt.Printf("       pipeline: %s\n", ds.Pipeline())
	}
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		klog.Fatal(err)
	}
	return fullpath
}
