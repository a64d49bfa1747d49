package libio

import "math"

// EncodeRgbe packs a linear color into the shared exponent RGBE format.
func EncodeRgbe(r, g, b float32) (rgbe [4]byte) {
	v := max(r, g, b)
	if v < 1e-32 {
		return
	}
	m, e := math.Frexp(float64(v))
	scale := float32(m * 256.0 / float64(v))
	rgbe[0] = uint8(max(r, 0) * scale)
	rgbe[1] = uint8(max(g, 0) * scale)
	rgbe[2] = uint8(max(b, 0) * scale)
	rgbe[3] = uint8(e + 128)
	return
}

func DecodeRgbe(rgbe [4]byte) (r, g, b float32) {
	if rgbe[3] == 0 {
		return 0, 0, 0
	}
	f := float32(math.Ldexp(1.0, int(rgbe[3])-(128+8)))
	return float32(rgbe[0]) * f, float32(rgbe[1]) * f, float32(rgbe[2]) * f
}
