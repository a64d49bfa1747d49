package libio

import (
	"bytes"
	"errors"
	"fmt"
	goimg "image"
	"io"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
)

var ErrNotHdr = errors.New("not a radiance hdr image")

// MaxHdrSize bounds the edge length of a decoded Radiance image. The
// resolution line is checked before any pixel memory is allocated.
const MaxHdrSize = 1 << 15

// DecodeHdr reads a Radiance RGBE image into a three channel FloatImage.
func DecodeHdr(r io.Reader) (*FloatImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, []byte("#?")) {
		return nil, ErrNotHdr
	}

	cfg, err := rgbe.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("hdr header: %w", err)
	}
	if cfg.Width < 1 || cfg.Height < 1 || cfg.Width > MaxHdrSize || cfg.Height > MaxHdrSize {
		return nil, fmt.Errorf("hdr resolution %dx%d is outside 1 to %d", cfg.Width, cfg.Height, MaxHdrSize)
	}

	m, err := rgbe.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	img, ok := m.(hdr.Image)
	if !ok {
		return nil, fmt.Errorf("hdr decoder returned %T", m)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pix := make([]float32, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.HDRAt(bounds.Min.X+x, bounds.Min.Y+y).HDRRGBA()
			i := (y*width + x) * 3
			pix[i+0], pix[i+1], pix[i+2] = float32(r), float32(g), float32(b)
		}
	}

	return NewFloatImage(pix, 3, width, height), nil
}

// EncodeHdr writes the first three channels of img as a Radiance RGBE image.
func EncodeHdr(w io.Writer, img *FloatImage) error {
	if img.Channels < 3 {
		return fmt.Errorf("hdr encoding needs at least 3 channels, got %d", img.Channels)
	}

	m := hdr.NewRGB(goimg.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := img.Index(x, y)
			m.Set(x, y, hdrcolor.RGB{
				R: float64(img.Pix[i]),
				G: float64(img.Pix[i+1]),
				B: float64(img.Pix[i+2]),
			})
		}
	}
	return rgbe.Encode(w, m)
}
