package main

import (
	"flag"
	"fmt"
	goimg "image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"drumkit/drum"
	"drumkit/ibl"
	"drumkit/liberr"
	"drumkit/libio"
	"drumkit/liblog"
	"drumkit/libtex"

	"github.com/HugoSmits86/nativewebp"
)

type previewArgs struct {
	logArgs
	out      string
	format   string
	gamma    float64
	scale    float64
	reinhard bool
	allMips  bool
}

func createPreviewCommand() *command {

	args := previewArgs{
		format: "png",
		gamma:  2.2,
		scale:  1.0,
	}

	flags := flag.NewFlagSet("preview", flag.ExitOnError)

	registerLogFlags(flags, &args.logArgs)

	flags.StringVar(&args.out, "out", args.out, "the output directory")
	flags.StringVar(&args.out, "o", args.out, "shorthand for out")
	flags.StringVar(&args.format, "format", args.format, "the image format; png, webp or hdr")
	flags.Float64Var(&args.gamma, "gamma", args.gamma, "gamma correction value for float textures")
	flags.Float64Var(&args.scale, "scale", args.scale, "brightness scale factor for float textures")
	flags.BoolVar(&args.reinhard, "reinhard", args.reinhard, "apply reinhard tonemapping to float textures")
	flags.BoolVar(&args.allMips, "mips", args.allMips, "write every mip level instead of only the first")

	return &command{
		Name: "preview",
		Help: "render the textures of drum files to png, webp or hdr",
		Run: func(self *command) error {
			args.format = strings.ToLower(args.format)
			if self.Flags.NArg() < 1 || (args.format != "png" && args.format != "webp" && args.format != "hdr") {
				printCommandUsage(self, " file...")
			}
			setupLogging(args.logArgs)

			if args.out == "" {
				var err error
				if args.out, err = os.Getwd(); err != nil {
					return err
				}
			}

			for _, p := range self.Flags.Args() {
				if err := previewFile(args, p); err != nil {
					return err
				}
			}
			return nil
		},
		Flags: flags,
	}
}

func previewFile(args previewArgs, p string) error {
	d, err := drum.ReadFile(p)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	for i := range d.Textures {
		tex, err := libtex.Decompress(&d.Textures[i])
		if err != nil {
			return err
		}

		levels := 1
		if args.allMips {
			levels = tex.Mips
		}
		for lvl := 0; lvl < levels; lvl++ {
			name := filepath.Join(args.out, fmt.Sprintf("%s_%d_%s_%d.%s", base, i, sanitize(tex.Name), lvl, args.format))
			if err := writePreview(args, name, tex, lvl); err != nil {
				return err
			}
		}
	}
	return nil
}

// previewImage renders mip level lvl. The faces of a cubemap are stacked
// vertically.
func previewImage(args previewArgs, tex *drum.Texture, lvl int) (goimg.Image, error) {
	switch tex.Format {
	case drum.FormatRgba8Unorm, drum.FormatRgba8UnormSrgb, drum.FormatR8Unorm, drum.FormatRg8Unorm:
		w := drum.MipSize(tex.Width, lvl)
		h := drum.MipSize(tex.Height, lvl) * tex.Faces()
		return libio.NewIntImage(tex.Level(lvl), tex.Format.Channels(), w, h).ToRGBA(), nil
	}

	fimg, err := previewFloatImage(tex, lvl)
	if err != nil {
		return nil, err
	}
	if args.reinhard {
		fimg.Reinhard()
	}
	return fimg.ToIntImage(float32(args.gamma), float32(args.scale)).ToRGBA(), nil
}

// previewFloatImage returns level lvl of tex as linear floats. Cubemaps go
// through the environment they were baked from.
func previewFloatImage(tex *drum.Texture, lvl int) (*libio.FloatImage, error) {
	if tex.Cubemap {
		env, err := ibl.FromTexture(tex)
		if err != nil {
			return nil, err
		}
		size := env.LevelSize(lvl)
		return libio.NewFloatImage(append([]float32(nil), env.Level(lvl)...), 3, size, size*6), nil
	}

	w := drum.MipSize(tex.Width, lvl)
	h := drum.MipSize(tex.Height, lvl)
	switch tex.Format {
	case drum.FormatRgba32Float, drum.FormatRg32Float:
		pix, err := libio.BytesFloat32(tex.Level(lvl))
		if err != nil {
			return nil, liberr.Codecf(tex.Name, "preview: %w", err)
		}
		return libio.NewFloatImage(append([]float32(nil), pix...), tex.Format.Channels(), w, h), nil
	case drum.FormatRgba8Unorm, drum.FormatRgba8UnormSrgb, drum.FormatR8Unorm, drum.FormatRg8Unorm:
		data := tex.Level(lvl)
		pix := make([]float32, len(data))
		for i, v := range data {
			pix[i] = float32(v) / 0xff
		}
		return libio.NewFloatImage(pix, tex.Format.Channels(), w, h), nil
	}
	return nil, liberr.Codecf(tex.Name, "preview: cannot render format %v", tex.Format)
}

// writePreview writes level lvl of tex. Radiance output keeps linear values
// and skips tonemapping.
func writePreview(args previewArgs, name string, tex *drum.Texture, lvl int) error {
	if args.format == "hdr" {
		fimg, err := previewFloatImage(tex, lvl)
		if err != nil {
			return err
		}
		if fimg.Channels < 3 {
			fimg = fimg.ToChannels(3)
		}
		liblog.Logger().Info("writing", "path", filepath.ToSlash(name), "width", fimg.Width, "height", fimg.Height)
		return writeFile(name, func(w io.Writer) error { return libio.EncodeHdr(w, fimg) })
	}

	img, err := previewImage(args, tex, lvl)
	if err != nil {
		return err
	}
	liblog.Logger().Info("writing", "path", filepath.ToSlash(name), "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return writeFile(name, func(w io.Writer) error {
		if args.format == "webp" {
			return nativewebp.Encode(w, img, nil)
		}
		return png.Encode(w, img)
	})
}

func writeFile(name string, encode func(w io.Writer) error) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return liberr.Wrap(liberr.KindIo, name, err)
	}
	defer func() {
		cerr := f.Close()
		if err == nil && cerr != nil {
			err = liberr.Wrap(liberr.KindIo, name, cerr)
		}
		if err != nil {
			os.Remove(name)
		}
	}()

	if err = encode(f); err != nil {
		return liberr.Codecf(name, "preview: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	if name == "" {
		return "texture"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}
