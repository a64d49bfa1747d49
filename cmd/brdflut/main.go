package main

import (
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"drumkit/ibl"
	"drumkit/liberr"
	"drumkit/libio"
	"drumkit/liblog"
)

var args = struct {
	samples     int
	size        int
	preview     bool
	grayscale   bool
	compression int
	impl        ibl.Impl
	device      string
	quiet       bool
}{
	samples:     1024,
	size:        512,
	preview:     false,
	grayscale:   false,
	compression: 1,
	impl:        ibl.ImplOpenCl,
	device:      "gpu",
}

func printGeneralUsage() {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s [arguments] <out>\n\n", exe)
	fmt.Fprintf(os.Stderr, "The arguments are:\n\n")
	flag.CommandLine.SetOutput(os.Stderr)
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	flag.IntVar(&args.samples, "samples", args.samples, "samples of the integral")
	flag.IntVar(&args.size, "size", args.size, "size of the lut")
	flag.BoolVar(&args.preview, "preview", args.preview, "generate normalized preview png")
	flag.BoolVar(&args.grayscale, "grayscale", args.grayscale, "generate seperate grayscale images")
	flag.IntVar(&args.compression, "compression", args.compression, "0=none, 1=fixed-point + lz4-fast")
	flag.Var(&args.impl, "impl", "the integration implementation; opencl or software")
	flag.StringVar(&args.device, "device", args.device, "the preferred opencl device; gpu, cpu or accelerator")
	flag.BoolVar(&args.quiet, "quiet", args.quiet, "only log warnings and errors")

	flag.Parse()

	if flag.NArg() != 1 || args.compression < 0 || args.compression > 1 {
		printGeneralUsage()
	}

	level := slog.LevelInfo
	if args.quiet {
		level = slog.LevelWarn
	}
	liblog.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	device, err := ibl.ParseDeviceType(args.device)
	harderr(err)

	settings := ibl.DefaultSettings()
	settings.LutSize = args.size
	settings.LutSamples = args.samples

	pipeline, err := ibl.NewPipeline(args.impl, device, settings)
	harderr(err)
	img, err := ibl.NewBaker(pipeline).BrdfLut()
	pipeline.Release()
	harderr(err)

	fileext := path.Ext(flag.Arg(0))
	filename := strings.TrimSuffix(flag.Arg(0), fileext)

	if args.grayscale {
		rimg := img.Shuffle([]int{0})
		gimg := img.Shuffle([]int{1})
		saveFloatImage(rimg, filename+"_r", fileext)
		saveFloatImage(gimg, filename+"_g", fileext)
	} else {
		saveFloatImage(img, filename, fileext)
	}
}

func saveFloatImage(img *libio.FloatImage, filename, fileext string) {
	err := libio.WriteFloatImageFile(filename+fileext, img, libio.FloatImageCompression(args.compression))
	harderr(err)

	if args.preview {
		if args.grayscale {
			img = img.Shuffle([]int{0, 0, 0})
		}

		file, err := os.OpenFile(filename+".png", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		harderr(liberr.Wrap(liberr.KindIo, filename+".png", err))
		defer file.Close()

		img.Normalize()
		rgba := img.ToIntImage(1, 1).ToRGBA()
		err = png.Encode(file, rgba)
		harderr(liberr.Wrap(liberr.KindCodec, filename+".png", err))
	}
}

func harderr(err error) {
	if err == nil {
		return
	}
	if kind := liberr.KindOf(err); kind != liberr.KindUnknown {
		fmt.Fprintf(os.Stderr, "Error (%v): %v\n", kind, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
