package libtex

import (
	"fmt"

	"drumkit/drum"
)

// Block compression works on independent 4x4 texel blocks. Partial blocks at
// the right and bottom edges replicate the last texel.

// CompressSurface encodes a tightly packed RGBA8 surface into format.
func CompressSurface(format drum.Format, width, height int, rgba []byte) ([]byte, error) {
	if len(rgba) != width*height*4 {
		return nil, fmt.Errorf("surface holds %d bytes, expected %d", len(rgba), width*height*4)
	}

	bpb := format.BytesPerBlock()
	bw, bh := (width+3)/4, (height+3)/4
	out := make([]byte, bw*bh*bpb)

	var encode func(block *[64]byte, dst []byte)
	switch format {
	case drum.FormatBc1RgbaUnorm, drum.FormatBc1RgbaUnormSrgb:
		encode = encodeBc1Block
	case drum.FormatBc3RgbaUnorm, drum.FormatBc3RgbaUnormSrgb:
		encode = encodeBc3Block
	case drum.FormatBc4RUnorm:
		encode = func(block *[64]byte, dst []byte) { encodeBc4Block(block, 0, dst) }
	case drum.FormatBc5RgUnorm:
		encode = func(block *[64]byte, dst []byte) {
			encodeBc4Block(block, 0, dst[0:8])
			encodeBc4Block(block, 1, dst[8:16])
		}
	default:
		return nil, fmt.Errorf("format %v is not block compressed", format)
	}

	var block [64]byte
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			fetchBlock(rgba, width, height, bx, by, &block)
			i := (by*bw + bx) * bpb
			encode(&block, out[i:i+bpb])
		}
	}
	return out, nil
}

// DecompressSurface decodes a block compressed surface to tightly packed RGBA8.
// Missing channels decode as 0 and missing alpha as 255.
func DecompressSurface(format drum.Format, width, height int, data []byte) ([]byte, error) {
	bpb := format.BytesPerBlock()
	bw, bh := (width+3)/4, (height+3)/4
	if !format.Compressed() {
		return nil, fmt.Errorf("format %v is not block compressed", format)
	}
	if len(data) != bw*bh*bpb {
		return nil, fmt.Errorf("surface holds %d bytes, expected %d", len(data), bw*bh*bpb)
	}

	out := make([]byte, width*height*4)
	var block [64]byte
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			src := data[(by*bw+bx)*bpb:]
			for i := range block {
				// opaque black
				block[i] = 0
				if i%4 == 3 {
					block[i] = 0xff
				}
			}
			switch format {
			case drum.FormatBc1RgbaUnorm, drum.FormatBc1RgbaUnormSrgb:
				decodeColorBlock(src[0:8], &block, false)
			case drum.FormatBc3RgbaUnorm, drum.FormatBc3RgbaUnormSrgb:
				decodeBc4Block(src[0:8], &block, 3)
				decodeColorBlock(src[8:16], &block, true)
			case drum.FormatBc4RUnorm:
				decodeBc4Block(src[0:8], &block, 0)
			case drum.FormatBc5RgUnorm:
				decodeBc4Block(src[0:8], &block, 0)
				decodeBc4Block(src[8:16], &block, 1)
			}
			storeBlock(out, width, height, bx, by, &block)
		}
	}
	return out, nil
}

func fetchBlock(rgba []byte, width, height, bx, by int, block *[64]byte) {
	for y := 0; y < 4; y++ {
		sy := min(by*4+y, height-1)
		for x := 0; x < 4; x++ {
			sx := min(bx*4+x, width-1)
			copy(block[(y*4+x)*4:(y*4+x)*4+4], rgba[(sy*width+sx)*4:])
		}
	}
}

func storeBlock(rgba []byte, width, height, bx, by int, block *[64]byte) {
	for y := 0; y < 4 && by*4+y < height; y++ {
		for x := 0; x < 4 && bx*4+x < width; x++ {
			i := ((by*4+y)*width + bx*4 + x) * 4
			copy(rgba[i:i+4], block[(y*4+x)*4:(y*4+x)*4+4])
		}
	}
}

func to565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

func from565(c uint16) (r, g, b uint8) {
	r5 := uint8(c >> 11 & 0x1f)
	g6 := uint8(c >> 5 & 0x3f)
	b5 := uint8(c & 0x1f)
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

func colorPalette(c0, c1 uint16, fourColor bool) (palette [4][3]int) {
	r0, g0, b0 := from565(c0)
	r1, g1, b1 := from565(c1)
	palette[0] = [3]int{int(r0), int(g0), int(b0)}
	palette[1] = [3]int{int(r1), int(g1), int(b1)}
	for c := 0; c < 3; c++ {
		if fourColor {
			palette[2][c] = (2*palette[0][c] + palette[1][c]) / 3
			palette[3][c] = (palette[0][c] + 2*palette[1][c]) / 3
		} else {
			palette[2][c] = (palette[0][c] + palette[1][c]) / 2
		}
	}
	return
}

// encodeColorBlock writes a four color BC1 block, ignoring alpha.
func encodeColorBlock(block *[64]byte, dst []byte) {
	lo := [3]uint8{0xff, 0xff, 0xff}
	hi := [3]uint8{}
	for i := 0; i < 16; i++ {
		for c := 0; c < 3; c++ {
			lo[c] = min(lo[c], block[i*4+c])
			hi[c] = max(hi[c], block[i*4+c])
		}
	}

	c0 := to565(hi[0], hi[1], hi[2])
	c1 := to565(lo[0], lo[1], lo[2])
	if c0 < c1 {
		c0, c1 = c1, c0
	}

	var indices uint32
	if c0 != c1 {
		palette := colorPalette(c0, c1, true)
		for i := 0; i < 16; i++ {
			best, bestDist := 0, -1
			for p := 0; p < 4; p++ {
				dist := 0
				for c := 0; c < 3; c++ {
					d := int(block[i*4+c]) - palette[p][c]
					dist += d * d
				}
				if bestDist < 0 || dist < bestDist {
					best, bestDist = p, dist
				}
			}
			indices |= uint32(best) << (2 * i)
		}
	}

	dst[0], dst[1] = byte(c0), byte(c0>>8)
	dst[2], dst[3] = byte(c1), byte(c1>>8)
	dst[4], dst[5], dst[6], dst[7] = byte(indices), byte(indices>>8), byte(indices>>16), byte(indices>>24)
}

func decodeColorBlock(src []byte, block *[64]byte, forceFourColor bool) {
	c0 := uint16(src[0]) | uint16(src[1])<<8
	c1 := uint16(src[2]) | uint16(src[3])<<8
	indices := uint32(src[4]) | uint32(src[5])<<8 | uint32(src[6])<<16 | uint32(src[7])<<24

	fourColor := forceFourColor || c0 > c1
	palette := colorPalette(c0, c1, fourColor)
	for i := 0; i < 16; i++ {
		p := indices >> (2 * i) & 3
		block[i*4+0] = uint8(palette[p][0])
		block[i*4+1] = uint8(palette[p][1])
		block[i*4+2] = uint8(palette[p][2])
		if !fourColor && p == 3 {
			// transparent black
			block[i*4+0], block[i*4+1], block[i*4+2], block[i*4+3] = 0, 0, 0, 0
		}
	}
}

func encodeBc1Block(block *[64]byte, dst []byte) {
	encodeColorBlock(block, dst)
}

func encodeBc3Block(block *[64]byte, dst []byte) {
	encodeBc4Block(block, 3, dst[0:8])
	encodeColorBlock(block, dst[8:16])
}

func alphaPalette(a0, a1 uint8) (palette [8]int) {
	palette[0], palette[1] = int(a0), int(a1)
	if a0 > a1 {
		for i := 1; i < 7; i++ {
			palette[i+1] = ((7-i)*int(a0) + i*int(a1)) / 7
		}
	} else {
		for i := 1; i < 5; i++ {
			palette[i+1] = ((5-i)*int(a0) + i*int(a1)) / 5
		}
		palette[6], palette[7] = 0, 0xff
	}
	return
}

// encodeBc4Block compresses channel ch of the block with eight interpolated values.
func encodeBc4Block(block *[64]byte, ch int, dst []byte) {
	lo, hi := uint8(0xff), uint8(0)
	for i := 0; i < 16; i++ {
		lo = min(lo, block[i*4+ch])
		hi = max(hi, block[i*4+ch])
	}

	var indices uint64
	if hi != lo {
		palette := alphaPalette(hi, lo)
		for i := 0; i < 16; i++ {
			v := int(block[i*4+ch])
			best, bestDist := 0, -1
			for p := 0; p < 8; p++ {
				d := v - palette[p]
				if d < 0 {
					d = -d
				}
				if bestDist < 0 || d < bestDist {
					best, bestDist = p, d
				}
			}
			indices |= uint64(best) << (3 * i)
		}
	}

	dst[0], dst[1] = hi, lo
	for i := 0; i < 6; i++ {
		dst[2+i] = byte(indices >> (8 * i))
	}
}

func decodeBc4Block(src []byte, block *[64]byte, ch int) {
	palette := alphaPalette(src[0], src[1])
	var indices uint64
	for i := 0; i < 6; i++ {
		indices |= uint64(src[2+i]) << (8 * i)
	}
	for i := 0; i < 16; i++ {
		block[i*4+ch] = uint8(palette[indices>>(3*i)&7])
	}
}
