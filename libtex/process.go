package libtex

import (
	"fmt"
	"runtime"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/liblog"

	"golang.org/x/sync/errgroup"
)

// Usage tells the processor what a texture holds so it can pick a block format.
type Usage int

const (
	// color data, may carry alpha
	UsageColor = Usage(iota)
	// tangent space normals, only x and y are kept when compressed
	UsageNormal
	// packed linear data such as metallic-roughness
	UsageData
	// a single linear channel such as ambient occlusion
	UsageMask
)

type Options struct {
	// level count, or MipmapsAuto
	Mipmaps    int
	Compress   bool
	ColorSpace drum.ColorSpace
	Usage      Usage
}

// Process builds the final texture from a single level base texture.
// The color space only tags the result; pixel values are not converted.
func Process(base *drum.Texture, opts Options) (*drum.Texture, error) {
	if base.Mips != 1 || base.Format.Compressed() {
		return nil, liberr.Codecf(base.Name, "texture: source must be a single uncompressed level")
	}

	levels := MipCount(opts.Mipmaps, base.Width, base.Height)
	tex, err := GenerateMips(base, levels)
	if err != nil {
		return nil, liberr.Codecf(base.Name, "texture: %w", err)
	}

	srgb := opts.ColorSpace == drum.ColorSpaceSrgb
	switch tex.Format {
	case drum.FormatRgba32Float, drum.FormatRg32Float:
		// float data is always linear
		tex.ColorSpace = drum.ColorSpaceLinear
		if opts.Compress {
			liblog.Logger().Debug("float texture left uncompressed", "texture", tex.Name)
		}
		return tex, nil
	case drum.FormatRgba8Unorm, drum.FormatRgba8UnormSrgb:
	default:
		return nil, liberr.Codecf(base.Name, "texture: unsupported source format %v", tex.Format)
	}

	tex.ColorSpace = opts.ColorSpace
	if !opts.Compress {
		tex.Format = drum.FormatRgba8Unorm.WithSrgb(srgb)
		return tex, nil
	}

	format := blockFormat(opts.Usage, hasAlpha(base))
	compressed, err := compressLevels(tex, format.WithSrgb(srgb))
	if err != nil {
		return nil, liberr.Codecf(base.Name, "texture: %w", err)
	}
	return compressed, nil
}

func blockFormat(usage Usage, alpha bool) drum.Format {
	switch usage {
	case UsageNormal:
		return drum.FormatBc5RgUnorm
	case UsageMask:
		return drum.FormatBc4RUnorm
	case UsageData:
		return drum.FormatBc1RgbaUnorm
	}
	if alpha {
		return drum.FormatBc3RgbaUnorm
	}
	return drum.FormatBc1RgbaUnorm
}

func hasAlpha(tex *drum.Texture) bool {
	for i := 3; i < len(tex.Data); i += 4 {
		if tex.Data[i] != 0xff {
			return true
		}
	}
	return false
}

// compressLevels block compresses every face of every level. Levels are
// encoded in parallel.
func compressLevels(tex *drum.Texture, format drum.Format) (*drum.Texture, error) {
	faces := tex.Faces()
	encoded := make([][][]byte, tex.Mips)

	var g errgroup.Group
	for lvl := 0; lvl < tex.Mips; lvl++ {
		lvl := lvl
		encoded[lvl] = make([][]byte, faces)
		g.Go(func() error {
			w, h := drum.MipSize(tex.Width, lvl), drum.MipSize(tex.Height, lvl)
			for face := 0; face < faces; face++ {
				data, err := CompressSurface(format, w, h, tex.Face(lvl, face))
				if err != nil {
					return fmt.Errorf("level %d face %d: %w", lvl, face, err)
				}
				encoded[lvl][face] = data
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := *tex
	out.Format = format
	out.Compressed = true
	out.Data = make([]byte, 0, out.DataSize())
	for _, level := range encoded {
		for _, face := range level {
			out.Data = append(out.Data, face...)
		}
	}
	return &out, nil
}

// Job is one texture for ProcessAll.
type Job struct {
	Base    *drum.Texture
	Options Options
}

// ProcessAll processes independent textures concurrently with at most workers
// goroutines (0 means one per CPU). Results keep the order of jobs. The first
// failure is returned and no results are.
func ProcessAll(jobs []Job, workers int) ([]*drum.Texture, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*drum.Texture, len(jobs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			tex, err := Process(job.Base, job.Options)
			if err != nil {
				return err
			}
			results[i] = tex
			liblog.Logger().Debug("processed texture", "texture", tex.Name, "format", tex.Format, "mips", tex.Mips)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Decompress returns an uncompressed copy of tex, decoding block formats to
// Rgba8Unorm. Uncompressed textures are returned as is.
func Decompress(tex *drum.Texture) (*drum.Texture, error) {
	if !tex.Format.Compressed() {
		return tex, nil
	}
	out := *tex
	out.Format = drum.FormatRgba8Unorm.WithSrgb(tex.Format.Srgb())
	out.Compressed = false
	out.Data = make([]byte, 0, out.DataSize())
	for lvl := 0; lvl < tex.Mips; lvl++ {
		w, h := drum.MipSize(tex.Width, lvl), drum.MipSize(tex.Height, lvl)
		for face := 0; face < tex.Faces(); face++ {
			rgba, err := DecompressSurface(tex.Format, w, h, tex.Face(lvl, face))
			if err != nil {
				return nil, liberr.Codecf(tex.Name, "texture: level %d face %d: %w", lvl, face, err)
			}
			out.Data = append(out.Data, rgba...)
		}
	}
	return &out, nil
}
