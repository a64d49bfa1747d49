package ibl

import (
	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/libio"
)

// ToTexture converts the environment to an Rgba32Float cubemap with the same
// mip chain. Alpha is 1.
func (env *Env) ToTexture(name string) *drum.Texture {
	rgba := libio.NewFloatImage(env.data, 3, len(env.data)/3, 1).ToChannels(4, 0, 0, 0, 1)
	return &drum.Texture{
		Name:       name,
		Format:     drum.FormatRgba32Float,
		Width:      env.BaseSize,
		Height:     env.BaseSize,
		Mips:       env.Levels,
		Cubemap:    true,
		ColorSpace: drum.ColorSpaceLinear,
		Data:       libio.Float32Bytes(rgba.Pix),
	}
}

// FromTexture reads an uncompressed cubemap back into an environment.
func FromTexture(tex *drum.Texture) (*Env, error) {
	if !tex.Cubemap || tex.Width != tex.Height {
		return nil, liberr.Codecf(tex.Name, "ibl: texture is not a cubemap")
	}

	var rgb []float32
	switch tex.Format {
	case drum.FormatRgba32Float:
		pix, err := libio.BytesFloat32(tex.Data)
		if err != nil {
			return nil, liberr.Codecf(tex.Name, "ibl: %w", err)
		}
		rgb = libio.NewFloatImage(pix, 4, len(pix)/4, 1).ToChannels(3).Pix
	case drum.FormatRgba8Unorm, drum.FormatRgba8UnormSrgb:
		rgb = make([]float32, len(tex.Data)/4*3)
		for i := range rgb {
			rgb[i] = float32(tex.Data[i/3*4+i%3]) / 0xff
		}
	default:
		return nil, liberr.Codecf(tex.Name, "ibl: cannot read cubemap format %v", tex.Format)
	}

	return NewEnv(rgb, tex.Width, tex.Mips), nil
}

// LutTexture converts a BRDF lookup table to an Rg32Float texture. Only the
// first two channels are kept.
func LutTexture(lut *libio.FloatImage, name string) *drum.Texture {
	rg := lut
	if lut.Channels != 2 {
		rg = lut.ToChannels(2)
	}
	return &drum.Texture{
		Name:       name,
		Format:     drum.FormatRg32Float,
		Width:      lut.Width,
		Height:     lut.Height,
		Mips:       1,
		ColorSpace: drum.ColorSpaceLinear,
		Data:       libio.Float32Bytes(rg.Pix),
	}
}
