package ibl

import (
	"fmt"
	"time"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/libio"
	"drumkit/liblog"
	"drumkit/libtex"

	"github.com/chewxy/math32"
)

// Result holds the artifacts of a bake.
type Result struct {
	// radiance cubemap reprojected from the source
	Cubemap     *Env
	Irradiance  *Env
	Prefiltered *Env
	// two channel (scale, bias) table
	BrdfLut *libio.FloatImage
}

// Textures converts the result to the irradiance, prefiltered and BRDF
// lookup table textures of a drum environment.
func (r *Result) Textures() (irradiance, prefiltered, brdfLut *drum.Texture) {
	return r.Irradiance.ToTexture("irradiance"), r.Prefiltered.ToTexture("prefiltered"), LutTexture(r.BrdfLut, "brdf-lut")
}

type Baker struct {
	pipeline *Pipeline
}

// NewBaker returns a baker that runs its passes on p. The baker does not take
// ownership of p.
func NewBaker(p *Pipeline) *Baker {
	return &Baker{pipeline: p}
}

// Bake runs the passes in order: cubemap, irradiance, prefilter, BRDF lookup
// table. src must be an equirectangular image with at least three channels.
func (b *Baker) Bake(src *libio.FloatImage) (*Result, error) {
	if err := checkSource(src); err != nil {
		return nil, err
	}
	if src.Channels < 3 {
		src = src.ToChannels(3)
	}

	p := b.pipeline
	s := p.Settings
	result := &Result{}
	var err error

	err = timed("cubemap", func() error {
		result.Cubemap, err = p.converter.Convert(src, s.CubemapSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = timed("irradiance", func() error {
		result.Irradiance, err = p.irradiance.Convolve(result.Cubemap, s.IrradianceSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = timed("prefilter", func() error {
		result.Prefiltered, err = p.specular.Convolve(result.Cubemap, s.PrefilterSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	result.BrdfLut, err = b.BrdfLut()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Prefilter derives the prefiltered chain from a radiance cubemap. Level 0 of
// radiance is sampled, other levels are ignored.
func (b *Baker) Prefilter(radiance *Env) (env *Env, err error) {
	err = timed("prefilter", func() error {
		env, err = b.pipeline.specular.Convolve(radiance, b.pipeline.Settings.PrefilterSize)
		return err
	})
	return env, err
}

// BrdfLut computes only the lookup table, it does not depend on the environment.
func (b *Baker) BrdfLut() (lut *libio.FloatImage, err error) {
	err = timed("brdf lut", func() error {
		lut, err = b.pipeline.brdf.Integrate(b.pipeline.Settings.LutSize)
		return err
	})
	return lut, err
}

func timed(pass string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		return liberr.Wrap(liberr.KindBake, "", fmt.Errorf("ibl: %s pass: %w", pass, err))
	}
	liblog.Logger().Info("ibl pass finished", "pass", pass, "took", time.Since(start))
	return nil
}

func checkSource(src *libio.FloatImage) error {
	if src == nil {
		return liberr.Bakef("ibl: no equirectangular source")
	}
	if src.Width < 1 || src.Height < 1 || src.Channels < 1 {
		return liberr.Bakef("ibl: equirectangular source has zero size %dx%d", src.Width, src.Height)
	}
	if len(src.Pix) != src.Width*src.Height*src.Channels {
		return liberr.Bakef("ibl: equirectangular source holds %d values, expected %d", len(src.Pix), src.Width*src.Height*src.Channels)
	}
	for _, v := range src.Pix {
		if math32.IsNaN(v) {
			return liberr.Bakef("ibl: equirectangular source contains NaN")
		}
	}
	if src.Width != 2*src.Height {
		liblog.Logger().Warn("equirectangular source is not 2:1", "width", src.Width, "height", src.Height)
	}
	return nil
}

// LoadEquirect reads an equirectangular source image. Radiance HDR files keep
// their values, other images are scaled to [0, 1]. Any failure is a bake error.
func LoadEquirect(path string) (*libio.FloatImage, error) {
	tex, err := libtex.DecodeFile(path)
	if err != nil {
		return nil, liberr.Newf(liberr.KindBake, path, "ibl: equirectangular source: %w", err)
	}

	if tex.Format == drum.FormatRgba32Float {
		img, err := libtex.ToFloatImage(tex, 0, 0)
		if err != nil {
			return nil, liberr.Newf(liberr.KindBake, path, "ibl: equirectangular source: %w", err)
		}
		return img.ToChannels(3), nil
	}

	pix := make([]float32, tex.Width*tex.Height*3)
	for i := range pix {
		pix[i] = float32(tex.Data[i/3*4+i%3]) / 0xff
	}
	return libio.NewFloatImage(pix, 3, tex.Width, tex.Height), nil
}
