package libtex

import (
	"fmt"

	"drumkit/drum"
	"drumkit/libio"
)

// MipmapsAuto requests a full chain down to 1x1.
const MipmapsAuto = 0

// MipCount resolves a requested level count for a base size. Counts beyond
// the full chain are clamped.
func MipCount(requested, width, height int) int {
	full := drum.MaxMips(width, height)
	if requested == MipmapsAuto || requested > full {
		return full
	}
	return max(1, requested)
}

// GenerateMips returns a copy of the single level texture base with levels
// mip levels. Every level is a 2x2 box filter of the previous one; odd and
// unit edges clamp to the last texel. Cubemap faces are filtered independently.
func GenerateMips(base *drum.Texture, levels int) (*drum.Texture, error) {
	if base.Mips != 1 {
		return nil, fmt.Errorf("texture %q already has %d mip levels", base.Name, base.Mips)
	}
	if base.Format.Compressed() {
		return nil, fmt.Errorf("texture %q is block compressed", base.Name)
	}

	out := *base
	out.Mips = levels
	out.Data = make([]byte, 0, out.DataSize())
	out.Data = append(out.Data, base.Data...)

	faces := base.Faces()
	prevStart := 0
	for lvl := 1; lvl < levels; lvl++ {
		sw, sh := drum.MipSize(base.Width, lvl-1), drum.MipSize(base.Height, lvl-1)
		dw, dh := drum.MipSize(base.Width, lvl), drum.MipSize(base.Height, lvl)
		prevFace := base.Format.SurfaceSize(sw, sh)
		levelStart := len(out.Data)

		for face := 0; face < faces; face++ {
			src := out.Data[prevStart+face*prevFace : prevStart+(face+1)*prevFace]
			dst, err := boxFilter(base.Format, src, sw, sh, dw, dh)
			if err != nil {
				return nil, err
			}
			out.Data = append(out.Data, dst...)
		}
		prevStart = levelStart
	}

	return &out, nil
}

func boxFilter(format drum.Format, src []byte, sw, sh, dw, dh int) ([]byte, error) {
	switch format {
	case drum.FormatR8Unorm, drum.FormatRg8Unorm, drum.FormatRgba8Unorm, drum.FormatRgba8UnormSrgb:
		ch := format.Channels()
		dst := make([]byte, dw*dh*ch)
		boxFilterGeneric(src, dst, ch, sw, sh, dw, dh, func(a, b, c, d uint8) uint8 {
			return uint8((uint32(a) + uint32(b) + uint32(c) + uint32(d) + 2) / 4)
		})
		return dst, nil
	case drum.FormatRg32Float, drum.FormatRgba32Float:
		ch := format.Channels()
		pix, err := libio.BytesFloat32(src)
		if err != nil {
			return nil, err
		}
		dst := make([]float32, dw*dh*ch)
		boxFilterGeneric(pix, dst, ch, sw, sh, dw, dh, func(a, b, c, d float32) float32 {
			return (a + b + c + d) * 0.25
		})
		return libio.Float32Bytes(dst), nil
	}
	return nil, fmt.Errorf("cannot filter format %v", format)
}

func boxFilterGeneric[E any](src, dst []E, ch, sw, sh, dw, dh int, avg func(a, b, c, d E) E) {
	for y := 0; y < dh; y++ {
		y0 := min(2*y, sh-1)
		y1 := min(2*y+1, sh-1)
		for x := 0; x < dw; x++ {
			x0 := min(2*x, sw-1)
			x1 := min(2*x+1, sw-1)
			for c := 0; c < ch; c++ {
				dst[(y*dw+x)*ch+c] = avg(
					src[(y0*sw+x0)*ch+c],
					src[(y0*sw+x1)*ch+c],
					src[(y1*sw+x0)*ch+c],
					src[(y1*sw+x1)*ch+c],
				)
			}
		}
	}
}
