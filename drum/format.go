package drum

import "fmt"

// Format is the pixel encoding of a Texture.
type Format uint32

const (
	FormatUndefined = Format(iota)
	FormatR8Unorm
	FormatRg8Unorm
	FormatRgba8Unorm
	FormatRgba8UnormSrgb
	FormatRg32Float
	FormatRgba32Float
	FormatBc1RgbaUnorm
	FormatBc1RgbaUnormSrgb
	FormatBc3RgbaUnorm
	FormatBc3RgbaUnormSrgb
	FormatBc4RUnorm
	FormatBc5RgUnorm
	formatEnd
)

var formatNames = [...]string{
	FormatUndefined:        "undefined",
	FormatR8Unorm:          "r8unorm",
	FormatRg8Unorm:         "rg8unorm",
	FormatRgba8Unorm:       "rgba8unorm",
	FormatRgba8UnormSrgb:   "rgba8unorm-srgb",
	FormatRg32Float:        "rg32float",
	FormatRgba32Float:      "rgba32float",
	FormatBc1RgbaUnorm:     "bc1-rgba-unorm",
	FormatBc1RgbaUnormSrgb: "bc1-rgba-unorm-srgb",
	FormatBc3RgbaUnorm:     "bc3-rgba-unorm",
	FormatBc3RgbaUnormSrgb: "bc3-rgba-unorm-srgb",
	FormatBc4RUnorm:        "bc4-r-unorm",
	FormatBc5RgUnorm:       "bc5-rg-unorm",
}

func (f Format) String() string {
	if f.Valid() {
		return formatNames[f]
	}
	return fmt.Sprintf("format(%d)", uint32(f))
}

func (f Format) Valid() bool {
	return f > FormatUndefined && f < formatEnd
}

// Compressed reports whether f stores 4x4 texel blocks.
func (f Format) Compressed() bool {
	return f >= FormatBc1RgbaUnorm && f <= FormatBc5RgUnorm
}

func (f Format) Srgb() bool {
	switch f {
	case FormatRgba8UnormSrgb, FormatBc1RgbaUnormSrgb, FormatBc3RgbaUnormSrgb:
		return true
	}
	return false
}

// WithSrgb returns the sRGB or linear variant of f. Formats without an sRGB
// variant are returned unchanged.
func (f Format) WithSrgb(srgb bool) Format {
	pairs := [][2]Format{
		{FormatRgba8Unorm, FormatRgba8UnormSrgb},
		{FormatBc1RgbaUnorm, FormatBc1RgbaUnormSrgb},
		{FormatBc3RgbaUnorm, FormatBc3RgbaUnormSrgb},
	}
	for _, p := range pairs {
		if f == p[0] || f == p[1] {
			if srgb {
				return p[1]
			}
			return p[0]
		}
	}
	return f
}

// Channels is the number of decoded color channels.
func (f Format) Channels() int {
	switch f {
	case FormatR8Unorm, FormatBc4RUnorm:
		return 1
	case FormatRg8Unorm, FormatRg32Float, FormatBc5RgUnorm:
		return 2
	default:
		return 4
	}
}

// BlockSize is the edge length of one storage unit in texels.
func (f Format) BlockSize() int {
	if f.Compressed() {
		return 4
	}
	return 1
}

// BytesPerBlock is the size of one texel, or of one 4x4 block for compressed formats.
func (f Format) BytesPerBlock() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRg8Unorm:
		return 2
	case FormatRgba8Unorm, FormatRgba8UnormSrgb:
		return 4
	case FormatRg32Float:
		return 8
	case FormatRgba32Float:
		return 16
	case FormatBc1RgbaUnorm, FormatBc1RgbaUnormSrgb, FormatBc4RUnorm:
		return 8
	case FormatBc3RgbaUnorm, FormatBc3RgbaUnormSrgb, FormatBc5RgUnorm:
		return 16
	}
	return 0
}

// SurfaceSize is the byte size of a single width x height image in format f.
func (f Format) SurfaceSize(width, height int) int {
	bs := f.BlockSize()
	bw := (width + bs - 1) / bs
	bh := (height + bs - 1) / bs
	return bw * bh * f.BytesPerBlock()
}
