package ibl

import (
	"fmt"
	"strings"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/liblog"
)

// Settings control the resolution and quality of a bake.
type Settings struct {
	// face size of the reprojected radiance cubemap
	CubemapSize int
	// face size of the diffuse irradiance cubemap
	IrradianceSize int
	// face size of level 0 of the prefiltered cubemap
	PrefilterSize int
	// highest prefiltered mip level; level l has roughness l / MaxLod
	MaxLod int
	// GGX samples per texel of the prefiltered cubemap
	Samples int
	// angular step of the irradiance integration in radians
	DiffuseStep float32
	// edge length of the BRDF lookup table
	LutSize int
	// Hammersley samples per BRDF lookup table texel
	LutSamples int
	// goroutines of the software device, 0 means one per CPU
	Workers int
}

func DefaultSettings() Settings {
	return Settings{
		CubemapSize:    512,
		IrradianceSize: 32,
		PrefilterSize:  128,
		MaxLod:         4,
		Samples:        1024,
		DiffuseStep:    0.025,
		LutSize:        512,
		LutSamples:     1024,
	}
}

// PrefilterLevels is the number of prefiltered mip levels, limited by the
// full mip chain of the prefilter size.
func (s Settings) PrefilterLevels() int {
	return min(s.MaxLod+1, drum.MaxMips(s.PrefilterSize, s.PrefilterSize))
}

func (s Settings) validate() error {
	switch {
	case s.CubemapSize < 1, s.IrradianceSize < 1, s.PrefilterSize < 1, s.LutSize < 1:
		return liberr.Bakef("ibl: sizes must be positive")
	case s.MaxLod < 0:
		return liberr.Bakef("ibl: max lod %d is negative", s.MaxLod)
	case s.Samples < 1, s.LutSamples < 1:
		return liberr.Bakef("ibl: sample counts must be positive")
	case !(s.DiffuseStep > 0):
		return liberr.Bakef("ibl: diffuse step %v must be positive", s.DiffuseStep)
	}
	return nil
}

type Impl string

const (
	ImplOpenCl   Impl = "opencl"
	ImplSoftware Impl = "software"
)

func (i *Impl) String() string {
	return string(*i)
}

func (i *Impl) Set(s string) error {
	switch Impl(strings.ToLower(s)) {
	case ImplOpenCl:
		*i = ImplOpenCl
	case ImplSoftware:
		*i = ImplSoftware
	default:
		return fmt.Errorf("%s is not a valid implementation", s)
	}
	return nil
}

// Pipeline is the device that runs the bake passes. It owns its converter,
// convolvers and integrator and must be released after use.
type Pipeline struct {
	Impl       Impl
	Settings   Settings
	converter  Converter
	irradiance Convolver
	specular   Convolver
	brdf       Integrator
	// frees resources shared by the passes
	release func()
}

func (p *Pipeline) Release() {
	p.converter.Release()
	p.irradiance.Release()
	p.specular.Release()
	p.brdf.Release()
	if p.release != nil {
		p.release()
	}
}

// NewSwPipeline returns the software device. It never fails.
func NewSwPipeline(s Settings) *Pipeline {
	return &Pipeline{
		Impl:       ImplSoftware,
		Settings:   s,
		converter:  NewSwConverter(s.Workers),
		irradiance: NewSwDiffuseConvolver(s.Workers, s.DiffuseStep),
		specular:   NewSwSpecularConvolver(s.Workers, s.Samples, s.PrefilterLevels(), s.MaxLod),
		brdf:       NewSwBrdfIntegrator(s.Workers, s.LutSamples),
	}
}

// NewPipeline creates the device for impl. When the OpenCL device cannot be
// created the software device is used instead.
func NewPipeline(impl Impl, device DeviceType, s Settings) (*Pipeline, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	if impl == ImplOpenCl {
		p, err := NewClPipeline(device, s)
		if err == nil {
			liblog.Logger().Info("using opencl implementation")
			return p, nil
		}
		liblog.Logger().Warn("opencl unavailable, falling back to software implementation", "error", err)
	}

	liblog.Logger().Info("using software implementation", "workers", defaultWorkers(s.Workers))
	return NewSwPipeline(s), nil
}
