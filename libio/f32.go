package libio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"drumkit/liberr"

	"github.com/chewxy/math32"
	"github.com/pierrec/lz4/v4"
)

// MaxFloatImageSize bounds the width and height of a .f32 image.
const MaxFloatImageSize = 1 << 15

func (h FloatImageHeader) check() error {
	switch {
	case h.Check != MagicNumberF32:
		return fmt.Errorf("f32 header is corrupt")
	case h.Version != F32Version1_001_000:
		return fmt.Errorf("f32 version %d unsupported", h.Version)
	case h.Width < 1 || h.Height < 1 || h.Width > MaxFloatImageSize || h.Height > MaxFloatImageSize:
		return fmt.Errorf("f32 size %dx%d is outside 1 to %d", h.Width, h.Height, MaxFloatImageSize)
	case h.Channels < 1 || h.Channels > 4:
		return fmt.Errorf("f32 channel count %d is outside 1 to 4", h.Channels)
	case h.Compression > FloatImageCompressionFixedPoint16Lz4:
		return fmt.Errorf("f32 compression id %d unsupported", h.Compression)
	}
	return nil
}

// fixedPoint16 maps every channel to 16 bit steps between its minimum and
// maximum. The channels are stored one after another, each as min and max
// bits followed by count steps.
type fixedPoint16 struct {
	channels, count int
}

func (q fixedPoint16) size() int {
	return q.channels * (8 + 2*q.count)
}

func channelRange(lo, hi float32) float32 {
	if hi == lo {
		// constant channel
		return 1
	}
	return hi - lo
}

func (q fixedPoint16) encode(pix []float32) []byte {
	out := make([]byte, 0, q.size())
	for ch := 0; ch < q.channels; ch++ {
		lo, hi := math32.Inf(1), math32.Inf(-1)
		for i := ch; i < len(pix); i += q.channels {
			lo = min(lo, pix[i])
			hi = max(hi, pix[i])
		}
		out = binary.LittleEndian.AppendUint32(out, math32.Float32bits(lo))
		out = binary.LittleEndian.AppendUint32(out, math32.Float32bits(hi))

		r := channelRange(lo, hi)
		for i := ch; i < len(pix); i += q.channels {
			out = binary.LittleEndian.AppendUint16(out, uint16((pix[i]-lo)/r*0xffff+0.5))
		}
	}
	return out
}

func (q fixedPoint16) decode(data []byte) ([]float32, error) {
	if len(data) != q.size() {
		return nil, fmt.Errorf("fixed point data holds %d bytes, expected %d", len(data), q.size())
	}
	pix := make([]float32, q.count*q.channels)
	for ch := 0; ch < q.channels; ch++ {
		plane := data[ch*(8+2*q.count):]
		lo := math32.Float32frombits(binary.LittleEndian.Uint32(plane))
		hi := math32.Float32frombits(binary.LittleEndian.Uint32(plane[4:]))

		r := channelRange(lo, hi)
		for i := 0; i < q.count; i++ {
			fix := binary.LittleEndian.Uint16(plane[8+2*i:])
			pix[i*q.channels+ch] = float32(fix)/0xffff*r + lo
		}
	}
	return pix, nil
}

func compressLz4(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	lzw := lz4.NewWriter(buf)
	if err := lzw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
		return nil, err
	}
	if _, err := lzw.Write(data); err != nil {
		return nil, err
	}
	if err := lzw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeFloatImage writes img in the .f32 format.
func EncodeFloatImage(w io.Writer, img *FloatImage, compression FloatImageCompression) error {
	if img.Channels < 1 || img.Channels > 4 {
		return fmt.Errorf("f32 channel count %d is outside 1 to 4", img.Channels)
	}
	header := FloatImageHeader{
		Check:       MagicNumberF32,
		Version:     F32Version1_001_000,
		Width:       uint32(img.Width),
		Height:      uint32(img.Height),
		Channels:    uint8(img.Channels),
		Compression: compression,
	}
	if err := header.check(); err != nil {
		return err
	}
	if len(img.Pix) != img.Count()*img.Channels {
		return fmt.Errorf("f32 image holds %d values, expected %d", len(img.Pix), img.Count()*img.Channels)
	}

	payload := Float32Bytes(img.Pix)
	if compression == FloatImageCompressionFixedPoint16Lz4 {
		var err error
		payload, err = compressLz4(fixedPoint16{img.Channels, img.Count()}.encode(img.Pix))
		if err != nil {
			return fmt.Errorf("could not compress f32 pixels: %w", err)
		}
	}

	bw := NewBinaryWriter(w)
	bw.WriteRef(header)
	bw.WriteBytes(payload)
	if bw.Err != nil {
		return fmt.Errorf("could not write f32 image: %w", bw.Err)
	}
	return nil
}

// DecodeFloatImage reads a .f32 image. The header is checked before any
// pixel memory is allocated.
func DecodeFloatImage(r io.Reader) (*FloatImage, error) {
	br := NewBinaryReader(r)

	header := FloatImageHeader{}
	if !br.ReadRef(&header) {
		return nil, fmt.Errorf("expected f32 header; byte 0x%08x", br.LastIndex)
	}
	if err := header.check(); err != nil {
		return nil, fmt.Errorf("%w; byte 0x%08x", err, br.LastIndex)
	}

	width, height, channels := int(header.Width), int(header.Height), int(header.Channels)
	count := width * height

	var pix []float32
	var err error
	switch header.Compression {
	case FloatImageCompressionNone:
		if !br.ReadBytes(count * channels * 4) {
			return nil, fmt.Errorf("expected %d f32 pixels; byte 0x%08x", count, br.LastIndex)
		}
		pix, err = BytesFloat32(br.Bytes())
	case FloatImageCompressionFixedPoint16Lz4:
		q := fixedPoint16{channels, count}
		data := make([]byte, q.size())
		if _, err = io.ReadFull(lz4.NewReader(br.Src), data); err == nil {
			pix, err = q.decode(data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not decompress f32 pixels: %w", err)
	}

	return NewFloatImage(pix, channels, width, height), nil
}

// ReadFloatImageFile decodes a .f32 file.
func ReadFloatImageFile(name string) (*FloatImage, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, name, err)
	}
	defer f.Close()

	img, err := DecodeFloatImage(f)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindCodec, name, err)
	}
	return img, nil
}

// ReadLutFile decodes a .f32 BRDF lookup table and keeps its scale and bias
// channels.
func ReadLutFile(name string) (*FloatImage, error) {
	img, err := ReadFloatImageFile(name)
	if err != nil {
		return nil, err
	}
	switch {
	case img.Channels < 2:
		return nil, liberr.Codecf(name, "brdf lut has %d channels, expected at least 2", img.Channels)
	case img.Channels > 2:
		img = img.ToChannels(2)
	}
	return img, nil
}

// WriteFloatImageFile encodes img to name and removes the file if that fails.
func WriteFloatImageFile(name string, img *FloatImage, compression FloatImageCompression) (err error) {
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

	if err = EncodeFloatImage(f, img, compression); err != nil {
		return liberr.Wrap(liberr.KindIo, name, err)
	}
	return nil
}
