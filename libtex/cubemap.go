package libtex

import (
	"drumkit/drum"
	"drumkit/liberr"
)

// IntoCubemap reinterprets a single level 2D texture holding six square faces
// in the order +X, -X, +Y, -Y, +Z, -Z. Faces may be stacked vertically
// (height = 6 * width) or placed side by side (width = 6 * height).
func IntoCubemap(tex *drum.Texture) (*drum.Texture, error) {
	if tex.Cubemap {
		return tex, nil
	}
	if tex.Mips != 1 || tex.Format.Compressed() {
		return nil, liberr.Codecf(tex.Name, "texture: cubemap source must be a single uncompressed level")
	}

	bpp := tex.Format.BytesPerBlock()
	out := *tex
	out.Cubemap = true

	switch {
	case tex.Height == 6*tex.Width:
		// already face major
		out.Height = tex.Width
		out.Data = tex.Data
	case tex.Width == 6*tex.Height:
		size := tex.Height
		out.Width, out.Height = size, size
		out.Data = make([]byte, len(tex.Data))
		row := size * bpp
		for face := 0; face < 6; face++ {
			for y := 0; y < size; y++ {
				src := (y*tex.Width + face*size) * bpp
				dst := (face*size + y) * row
				copy(out.Data[dst:dst+row], tex.Data[src:src+row])
			}
		}
	default:
		return nil, liberr.Codecf(tex.Name, "texture: %dx%d is not a 1:6 or 6:1 cubemap strip", tex.Width, tex.Height)
	}

	return &out, nil
}
