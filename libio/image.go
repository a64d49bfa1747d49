package libio

import (
	goimg "image"

	"github.com/chewxy/math32"
)

type image struct {
	Channels      int
	Width, Height int
}

// Index calculates the tuple index into the image data.
// The origin (0,0) is the top left corner and rows are stored top to bottom.
func (img *image) Index(x, y int) int {
	return x*img.Channels + y*img.Channels*img.Width
}

func (img *image) Count() int {
	return img.Width * img.Height
}

type IntImage struct {
	image
	Pix []uint8
}

func NewIntImage(pix []uint8, channels int, width, height int) *IntImage {
	return &IntImage{
		Pix: pix,
		image: image{
			Channels: channels,
			Width:    width,
			Height:   height,
		},
	}
}

func (img *IntImage) Bytes() int {
	return img.Width * img.Height * img.Channels
}

func (img *IntImage) ToChannels(nr int, defaults ...uint8) *IntImage {
	dst := toChannels(img.Channels, nr, img.Count(), img.Pix, defaults...)

	return NewIntImage(dst, nr, img.Width, img.Height)
}

func toChannels[P ~[]E, E any](srcCh, dstCh int, count int, pix P, defaults ...E) P {
	if srcCh == dstCh {
		return pix
	}

	if len(defaults) < dstCh {
		missing := dstCh - len(defaults)
		defaults = append(defaults, make([]E, missing)...)
	}

	dst := make([]E, count*dstCh)

	for i := 0; i < count; i++ {
		for c := 0; c < dstCh; c++ {
			if c < srcCh {
				dst[i*dstCh+c] = pix[i*srcCh+c]
			} else {
				dst[i*dstCh+c] = defaults[c]
			}
		}
	}

	return dst
}

// ToRGBA expands the image to a Go RGBA image. Missing color channels are zero
// and missing alpha is opaque.
func (img *IntImage) ToRGBA() *goimg.RGBA {
	rgba := goimg.NewRGBA(goimg.Rect(0, 0, img.Width, img.Height))

	for i := 0; i < img.Count(); i++ {
		src := img.Pix[i*img.Channels : i*img.Channels+img.Channels]
		dst := rgba.Pix[i*4 : i*4+4]
		if img.Channels == 1 {
			// grayscale
			dst[0], dst[1], dst[2] = src[0], src[0], src[0]
		} else {
			copy(dst, src)
		}
		if img.Channels < 4 {
			dst[3] = 0xff
		}
	}

	return rgba
}

const MagicNumberF32 = 0x6d16837d

type FloatImageVersion uint32

const (
	F32Version1_001_000 = FloatImageVersion(1_001_000)
)

type FloatImageCompression uint32

const (
	FloatImageCompressionNone = FloatImageCompression(iota)
	FloatImageCompressionFixedPoint16Lz4
)

type FloatImageHeader struct {
	Check         uint32
	Version       FloatImageVersion
	Width, Height uint32
	Channels      uint8
	Compression   FloatImageCompression
	Unused        [14]uint8
}

type FloatImage struct {
	image
	Pix []float32
}

func NewFloatImage(pix []float32, channels int, width, height int) *FloatImage {
	return &FloatImage{
		Pix: pix,
		image: image{
			Channels: channels,
			Width:    width,
			Height:   height,
		},
	}
}

func (img *FloatImage) Bytes() int {
	return img.Width * img.Height * img.Channels * 4
}

func (img *FloatImage) ToChannels(nr int, defaults ...float32) *FloatImage {
	dst := toChannels(img.Channels, nr, img.Count(), img.Pix, defaults...)

	return NewFloatImage(dst, nr, img.Width, img.Height)
}

// Shuffle builds a new image whose channel i is the source channel order[i].
func (img *FloatImage) Shuffle(order []int) *FloatImage {
	pix := make([]float32, img.Count()*len(order))
	for i := 0; i < img.Count(); i++ {
		for c, src := range order {
			pix[i*len(order)+c] = img.Pix[i*img.Channels+src]
		}
	}
	return NewFloatImage(pix, len(order), img.Width, img.Height)
}

// Normalize maps every channel to [0, 1] in place.
func (img *FloatImage) Normalize() {
	for ch := 0; ch < img.Channels; ch++ {
		var min, max float32 = math32.Inf(1), math32.Inf(-1)
		for i := ch; i < len(img.Pix); i += img.Channels {
			min = math32.Min(min, img.Pix[i])
			max = math32.Max(max, img.Pix[i])
		}
		r := max - min
		if r == 0 {
			r = 1
		}
		for i := ch; i < len(img.Pix); i += img.Channels {
			img.Pix[i] = (img.Pix[i] - min) / r
		}
	}
}

// Reinhard applies x/(1+x) to the color channels in place. Alpha is left untouched.
func (img *FloatImage) Reinhard() {
	for i := range img.Pix {
		if img.Channels == 4 && i%4 == 3 {
			continue
		}
		img.Pix[i] = img.Pix[i] / (1 + img.Pix[i])
	}
}

func (img *FloatImage) ToIntImage(gamma, scale float32) *IntImage {
	pix := make([]uint8, len(img.Pix))

	for i := 0; i < len(img.Pix); i++ {
		pix[i] = uint8(tonemap(img.Pix[i], 1.0/gamma, scale)*0xff + 0.5)
	}

	return NewIntImage(pix, img.Channels, img.Width, img.Height)
}

func tonemap(value, gamma, scale float32) float32 {
	value = math32.Pow(math32.Max(0.0, value), gamma) * scale
	return math32.Min(math32.Max(0.0, value), 1.0)
}
