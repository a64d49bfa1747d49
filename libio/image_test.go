package libio_test

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"drumkit/liberr"
	"drumkit/libio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomFloats(count int, min, max float32) []float32 {
	rng := rand.New(rand.NewSource(0))
	ret := make([]float32, count)
	for i := range ret {
		ret[i] = rng.Float32()*(max-min) + min
	}
	return ret
}

func TestFloatImageCodec(t *testing.T) {
	img := libio.NewFloatImage(randomFloats(16*8*2, -1, 4), 2, 16, 8)

	for _, compression := range []libio.FloatImageCompression{libio.FloatImageCompressionNone, libio.FloatImageCompressionFixedPoint16Lz4} {
		buf := new(bytes.Buffer)
		require.NoError(t, libio.EncodeFloatImage(buf, img, compression))

		decoded, err := libio.DecodeFloatImage(buf)
		require.NoError(t, err)
		require.Equal(t, img.Width, decoded.Width)
		require.Equal(t, img.Height, decoded.Height)
		require.Equal(t, img.Channels, decoded.Channels)

		// fixed point steps are range/0xffff
		tolerance := 5.0 / 0xffff
		for i := range img.Pix {
			if math.Abs(float64(img.Pix[i]-decoded.Pix[i])) > tolerance {
				t.Fatalf("compression %d: pixel %d should be %.5f but is %.5f", compression, i, img.Pix[i], decoded.Pix[i])
			}
		}
	}
}

func TestDecodeFloatImageRejectsVersion(t *testing.T) {
	img := libio.NewFloatImage([]float32{1, 2, 3, 4}, 1, 2, 2)
	buf := new(bytes.Buffer)
	require.NoError(t, libio.EncodeFloatImage(buf, img, libio.FloatImageCompressionNone))

	data := buf.Bytes()
	// version follows the magic number
	data[4] ^= 0xff
	_, err := libio.DecodeFloatImage(bytes.NewReader(data))
	assert.ErrorContains(t, err, "unsupported")
}

func TestDecodeFloatImageRejectsHeaders(t *testing.T) {
	img := libio.NewFloatImage([]float32{1, 2, 3, 4}, 1, 2, 2)
	buf := new(bytes.Buffer)
	require.NoError(t, libio.EncodeFloatImage(buf, img, libio.FloatImageCompressionNone))
	valid := buf.Bytes()

	corrupt := func(offset int, value ...byte) []byte {
		data := bytes.Clone(valid)
		copy(data[offset:], value)
		return data
	}
	cases := map[string][]byte{
		// width 2^31 must fail before the pixels are allocated
		"width":       corrupt(8, 0, 0, 0, 0x80),
		"channels":    corrupt(16, 0),
		"compression": corrupt(17, 9),
		"truncated":   valid[:len(valid)-3],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			decoded, err := libio.DecodeFloatImage(bytes.NewReader(data))
			assert.Nil(t, decoded)
			assert.Error(t, err)
		})
	}

	assert.Error(t, libio.EncodeFloatImage(new(bytes.Buffer), libio.NewFloatImage(make([]float32, 5), 5, 1, 1), libio.FloatImageCompressionNone))
	assert.Error(t, libio.EncodeFloatImage(new(bytes.Buffer), libio.NewFloatImage(make([]float32, 3), 1, 2, 2), libio.FloatImageCompressionNone))
}

func TestReadLutFile(t *testing.T) {
	dir := t.TempDir()

	rgb := filepath.Join(dir, "rgb.f32")
	require.NoError(t, libio.WriteFloatImageFile(rgb, libio.NewFloatImage([]float32{0.25, 0.5, 1, 0.75, 0, 1}, 3, 2, 1), libio.FloatImageCompressionFixedPoint16Lz4))
	lut, err := libio.ReadLutFile(rgb)
	require.NoError(t, err)
	assert.Equal(t, 2, lut.Channels)
	assert.InDeltaSlice(t, []float32{0.25, 0.5, 0.75, 0}, lut.Pix, 1e-4)

	gray := filepath.Join(dir, "gray.f32")
	require.NoError(t, libio.WriteFloatImageFile(gray, libio.NewFloatImage([]float32{1, 0}, 1, 2, 1), libio.FloatImageCompressionNone))
	_, err = libio.ReadLutFile(gray)
	assert.Equal(t, liberr.KindCodec, liberr.KindOf(err))
}

func TestToChannels(t *testing.T) {
	img := libio.NewIntImage([]uint8{1, 2, 3, 4, 5, 6}, 3, 2, 1)

	rgba := img.ToChannels(4, 0, 0, 0, 0xff)
	assert.Equal(t, []uint8{1, 2, 3, 0xff, 4, 5, 6, 0xff}, rgba.Pix)

	r := img.ToChannels(1)
	assert.Equal(t, []uint8{1, 4}, r.Pix)
}

func TestShuffleAndNormalize(t *testing.T) {
	img := libio.NewFloatImage([]float32{0, 10, 2, 20, 4, 30}, 2, 3, 1)

	g := img.Shuffle([]int{1})
	assert.Equal(t, []float32{10, 20, 30}, g.Pix)

	img.Normalize()
	assert.Equal(t, []float32{0, 0, 0.5, 0.5, 1, 1}, img.Pix)
}

func TestHdrRoundTrip(t *testing.T) {
	for _, width := range []int{4, 16} {
		pix := make([]float32, width*3*3)
		for i := range pix {
			// powers of two survive the shared exponent exactly
			pix[i] = float32(math.Ldexp(1, i%5-2))
		}
		img := libio.NewFloatImage(pix, 3, width, 3)

		buf := new(bytes.Buffer)
		require.NoError(t, libio.EncodeHdr(buf, img))

		decoded, err := libio.DecodeHdr(buf)
		require.NoError(t, err)
		assert.Equal(t, width, decoded.Width)
		assert.Equal(t, 3, decoded.Height)

		for i := range pix {
			r := pix[i-i%3 : i-i%3+3]
			peak := math.Max(float64(r[0]), math.Max(float64(r[1]), float64(r[2])))
			// mantissas are 8 bit relative to the brightest channel
			if math.Abs(float64(pix[i]-decoded.Pix[i])) > peak/128 {
				t.Errorf("width %d: pixel %d should be %.4f but is %.4f", width, i, pix[i], decoded.Pix[i])
			}
		}
	}
}

func TestDecodeHdrRejectsGarbage(t *testing.T) {
	_, err := libio.DecodeHdr(bytes.NewReader([]byte("\x89PNG\r\n")))
	assert.ErrorIs(t, err, libio.ErrNotHdr)
}

func TestDecodeHdrRejectsHugeResolution(t *testing.T) {
	// no pixel data follows, the header alone must fail
	header := "#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 100000 +X 100000\n"
	img, err := libio.DecodeHdr(bytes.NewReader([]byte(header)))
	assert.Nil(t, img)
	assert.Error(t, err)
}

func TestRgbe(t *testing.T) {
	rgbe := libio.EncodeRgbe(1, 0.5, 0.25)
	r, g, b := libio.DecodeRgbe(rgbe)
	assert.Equal(t, float32(1), r)
	assert.Equal(t, float32(0.5), g)
	assert.Equal(t, float32(0.25), b)

	assert.Equal(t, [4]byte{}, libio.EncodeRgbe(0, 0, 0))
}

func TestFloatImageFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lut.f32")
	img := libio.NewFloatImage([]float32{0, 0.5, 1, 0.25}, 2, 2, 1)

	require.NoError(t, libio.WriteFloatImageFile(path, img, libio.FloatImageCompressionNone))
	loaded, err := libio.ReadFloatImageFile(path)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, loaded.Pix)

	_, err = libio.ReadFloatImageFile(filepath.Join(dir, "missing.f32"))
	assert.Equal(t, liberr.KindIo, liberr.KindOf(err))

	garbage := filepath.Join(dir, "garbage.f32")
	require.NoError(t, os.WriteFile(garbage, []byte("garbage"), 0o666))
	_, err = libio.ReadFloatImageFile(garbage)
	assert.Equal(t, liberr.KindCodec, liberr.KindOf(err))
}
