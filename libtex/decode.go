// Package libtex turns source images into drum textures: decoding, mip chain
// generation, block compression and cubemap layout.
package libtex

import (
	"bytes"
	"image"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/libio"

	_ "github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeFile reads and decodes an image file. See Decode.
func DecodeFile(path string) (*drum.Texture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, path, err)
	}
	return Decode(data, filepath.Base(path))
}

// Decode returns the single level base texture of an encoded image. Radiance
// HDR images become Rgba32Float, everything else Rgba8Unorm.
func Decode(data []byte, name string) (*drum.Texture, error) {
	if bytes.HasPrefix(data, []byte("#?")) {
		hdr, err := libio.DecodeHdr(bytes.NewReader(data))
		if err != nil {
			return nil, liberr.Codecf(name, "texture: decode hdr: %w", err)
		}
		return FromFloatImage(hdr, name), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, liberr.Codecf(name, "texture: decode: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, liberr.Codecf(name, "texture: image has zero size")
	}
	return FromImage(img, name), nil
}

// FromImage converts img to a non-premultiplied Rgba8Unorm texture.
func FromImage(img image.Image, name string) *drum.Texture {
	nrgba := toNRGBA(img)
	return &drum.Texture{
		Name:   name,
		Format: drum.FormatRgba8Unorm,
		Width:  nrgba.Rect.Dx(),
		Height: nrgba.Rect.Dy(),
		Mips:   1,
		Data:   nrgba.Pix,
	}
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && n.Stride == 4*b.Dx() && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	return dst
}

// FromFloatImage converts a 1 to 4 channel float image to an Rgba32Float texture.
func FromFloatImage(img *libio.FloatImage, name string) *drum.Texture {
	rgba := img.ToChannels(4, 0, 0, 0, 1)
	return &drum.Texture{
		Name:   name,
		Format: drum.FormatRgba32Float,
		Width:  img.Width,
		Height: img.Height,
		Mips:   1,
		Data:   libio.Float32Bytes(rgba.Pix),
	}
}

// ToFloatImage returns level lvl, face face of an uncompressed float texture.
func ToFloatImage(tex *drum.Texture, lvl, face int) (*libio.FloatImage, error) {
	channels := tex.Format.Channels()
	if tex.Format != drum.FormatRgba32Float && tex.Format != drum.FormatRg32Float {
		return nil, liberr.Codecf(tex.Name, "texture: %v is not a float format", tex.Format)
	}
	pix, err := libio.BytesFloat32(tex.Face(lvl, face))
	if err != nil {
		return nil, liberr.Codecf(tex.Name, "texture: %w", err)
	}
	return libio.NewFloatImage(pix, channels, drum.MipSize(tex.Width, lvl), drum.MipSize(tex.Height, lvl)), nil
}
