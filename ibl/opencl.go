//go:build opencl

package ibl

import (
	_ "embed"
	"fmt"
	"unsafe"

	"drumkit/liberr"
	"drumkit/libio"

	"github.com/Qendolin/go-opencl/cl"
	"golang.org/x/exp/slices"
)

//go:embed shared.cl
var openclSharedSrc string

//go:embed convert.cl
var openclConvertSrc string

//go:embed convolve.cl
var openclConvolveSrc string

//go:embed brdf.cl
var openclBrdfSrc string

type clCore struct {
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
}

func (core *clCore) release() {
	core.program.Release()
	core.queue.Release()
	core.context.Release()
}

func (d DeviceType) clType() cl.DeviceType {
	switch d {
	case DeviceTypeCPU:
		return cl.DeviceTypeCPU
	case DeviceTypeAccelerator:
		return cl.DeviceTypeAccelerator
	default:
		return cl.DeviceTypeGPU
	}
}

func newClCore(preferredDevice DeviceType, programs ...string) (core *clCore, err error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, err
	}

	var devices []*cl.Device
	for _, p := range platforms {
		devs, err := p.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			continue
		}
		devices = append(devices, devs...)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no opencl devices found")
	}

	preferred := preferredDevice.clType()
	slices.SortFunc(devices, func(a, b *cl.Device) int {
		if a.Type() == preferred && b.Type() != preferred {
			return -1
		}
		if a.Type() != preferred && b.Type() == preferred {
			return 1
		}

		aPower := a.MaxComputeUnits() * a.MaxClockFrequency()
		bPower := b.MaxComputeUnits() * b.MaxClockFrequency()

		// strongest first
		return bPower - aPower
	})

	device := devices[0]

	ctx, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, err
	}

	queue, err := ctx.CreateCommandQueue(device, 0)
	if err != nil {
		ctx.Release()
		return nil, err
	}

	prog, err := ctx.CreateProgramWithSource(programs)
	if err != nil {
		queue.Release()
		ctx.Release()
		return nil, err
	}
	err = prog.BuildProgram(nil, "")
	if err != nil {
		prog.Release()
		queue.Release()
		ctx.Release()
		return nil, err
	}

	return &clCore{
		context: ctx,
		queue:   queue,
		program: prog,
	}, nil
}

// NewClPipeline creates the OpenCL device. All passes share one context,
// queue and program.
func NewClPipeline(device DeviceType, s Settings) (p *Pipeline, err error) {
	core, err := newClCore(device, openclSharedSrc, openclConvertSrc, openclConvolveSrc, openclBrdfSrc)
	if err != nil {
		return nil, liberr.Bakef("ibl: opencl device: %w", err)
	}

	var cleanup []func()
	defer func() {
		if err != nil {
			for _, c := range cleanup {
				c()
			}
			core.release()
		}
	}()

	conv, err := newClConverter(core)
	if err != nil {
		return nil, liberr.Bakef("ibl: opencl converter: %w", err)
	}
	cleanup = append(cleanup, conv.Release)

	diffuse, err := newClDiffuseConvolver(core, s.DiffuseStep)
	if err != nil {
		return nil, liberr.Bakef("ibl: opencl diffuse convolver: %w", err)
	}
	cleanup = append(cleanup, diffuse.Release)

	specular, err := newClSpecularConvolver(core, s.Samples, s.PrefilterLevels(), s.MaxLod)
	if err != nil {
		return nil, liberr.Bakef("ibl: opencl specular convolver: %w", err)
	}
	cleanup = append(cleanup, specular.Release)

	brdf, err := newClBrdfIntegrator(core, s.LutSamples)
	if err != nil {
		return nil, liberr.Bakef("ibl: opencl brdf integrator: %w", err)
	}

	return &Pipeline{
		Impl:       ImplOpenCl,
		Settings:   s,
		converter:  conv,
		irradiance: diffuse,
		specular:   specular,
		brdf:       brdf,
		release:    core.release,
	}, nil
}

type clConverter struct {
	*clCore
	kernel *cl.Kernel
}

func newClConverter(core *clCore) (*clConverter, error) {
	kernel, err := core.program.CreateKernel("reproject_environment")
	if err != nil {
		return nil, err
	}
	return &clConverter{clCore: core, kernel: kernel}, nil
}

func (conv *clConverter) Convert(src *libio.FloatImage, size int) (*Env, error) {
	rgba := src.ToChannels(4, 0, 0, 0, 1)
	srcImage, err := conv.context.CreateImage(cl.MemReadOnly|cl.MemCopyHostPtr, cl.ImageFormat{
		ChannelOrder:    cl.ChannelOrderRGBA,
		ChannelDataType: cl.ChannelDataTypeFloat,
	}, cl.ImageDescription{
		Type:   cl.MemObjectTypeImage2D,
		Width:  rgba.Width,
		Height: rgba.Height,
	}, len(rgba.Pix)*4, unsafe.Pointer(&rgba.Pix[0]))
	if err != nil {
		return nil, err
	}
	defer srcImage.Release()

	result := make([]float32, size*size*6*4)
	err = runCubeMapKernel(conv.clCore, conv.kernel, srcImage, size, result)
	if err != nil {
		return nil, err
	}

	return NewEnv(compactRgba(result), size, 1), nil
}

func (conv *clConverter) Release() {
	conv.kernel.Release()
}

type clDiffuseConvolver struct {
	*clCore
	kernel  *cl.Kernel
	samples *cl.MemObject
}

func newClDiffuseConvolver(core *clCore, step float32) (*clDiffuseConvolver, error) {
	kernel, err := core.program.CreateKernel("convolve_diffuse")
	if err != nil {
		return nil, err
	}

	samples := generateDiffuseConvolutionSamples(step)
	sampleBuf, err := core.context.CreateBuffer(cl.MemReadOnly|cl.MemCopyHostPtr, len(samples)*int(unsafe.Sizeof(samples[0])), unsafe.Pointer(&samples[0]))
	if err != nil {
		kernel.Release()
		return nil, err
	}

	conv := &clDiffuseConvolver{clCore: core, kernel: kernel, samples: sampleBuf}
	if err = kernel.SetArgBuffer(4, sampleBuf); err == nil {
		err = kernel.SetArgInt32(5, int32(len(samples)))
	}
	if err != nil {
		conv.Release()
		return nil, err
	}
	return conv, nil
}

func (conv *clDiffuseConvolver) Convolve(env *Env, size int) (*Env, error) {
	srcImage, err := envToClImage(env, conv.context)
	if err != nil {
		return nil, err
	}
	defer srcImage.Release()

	result := make([]float32, size*size*6*4)
	err = runCubeMapKernel(conv.clCore, conv.kernel, srcImage, size, result)
	if err != nil {
		return nil, err
	}

	return NewEnv(compactRgba(result), size, 1), nil
}

func (conv *clDiffuseConvolver) Release() {
	conv.kernel.Release()
	conv.samples.Release()
}

type clSpecularConvolver struct {
	*clCore
	kernel       *cl.Kernel
	samples      *cl.MemObject
	samplesIndex [][2]int
	levels       int
}

func newClSpecularConvolver(core *clCore, count, levels, maxLod int) (*clSpecularConvolver, error) {
	kernel, err := core.program.CreateKernel("convolve_specular")
	if err != nil {
		return nil, err
	}

	samples := generateSpecularConvolutionSamples(count, levels, maxLod)

	// offset and length of every level in the contiguous buffer
	sampleCount := len(samples[0])
	samplesIndex := make([][2]int, levels)
	samplesIndex[0] = [2]int{0, len(samples[0])}
	for lvl := 1; lvl < levels; lvl++ {
		prev := samplesIndex[lvl-1]
		samplesIndex[lvl] = [2]int{prev[0] + prev[1], len(samples[lvl])}
		sampleCount += len(samples[lvl])
	}

	sampleBuf, err := core.context.CreateBuffer(cl.MemReadOnly|cl.MemCopyHostPtr, sampleCount*int(unsafe.Sizeof(samples[0][0])), unsafe.Pointer(&samples[0][0]))
	if err != nil {
		kernel.Release()
		return nil, err
	}

	conv := &clSpecularConvolver{
		clCore:       core,
		kernel:       kernel,
		samples:      sampleBuf,
		samplesIndex: samplesIndex,
		levels:       levels,
	}
	if err = kernel.SetArgBuffer(4, sampleBuf); err != nil {
		conv.Release()
		return nil, err
	}
	return conv, nil
}

func (conv *clSpecularConvolver) Convolve(env *Env, size int) (*Env, error) {
	srcImage, err := envToClImage(env, conv.context)
	if err != nil {
		return nil, err
	}
	defer srcImage.Release()

	pixels := calcCubeMapPixels(size, conv.levels)
	result := make([]float32, pixels*4)
	for lvl := 0; lvl < conv.levels; lvl++ {
		err = conv.kernel.SetArgInt32(5, int32(conv.samplesIndex[lvl][0]))
		if err != nil {
			return nil, err
		}
		err = conv.kernel.SetArgInt32(6, int32(conv.samplesIndex[lvl][1]))
		if err != nil {
			return nil, err
		}

		lvlStart, lvlEnd := calcCubeMapOffset(size, lvl)
		err = runCubeMapKernel(conv.clCore, conv.kernel, srcImage, max(1, size>>lvl), result[lvlStart*4:lvlEnd*4])
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", lvl, err)
		}
	}

	return NewEnv(compactRgba(result), size, conv.levels), nil
}

func (conv *clSpecularConvolver) Release() {
	conv.kernel.Release()
	conv.samples.Release()
}

type clBrdfIntegrator struct {
	*clCore
	kernel  *cl.Kernel
	samples *cl.MemObject
}

func newClBrdfIntegrator(core *clCore, count int) (*clBrdfIntegrator, error) {
	kernel, err := core.program.CreateKernel("integrate_brdf")
	if err != nil {
		return nil, err
	}

	samples := generateHammersleySequence(count)
	sampleBuf, err := core.context.CreateBuffer(cl.MemReadOnly|cl.MemCopyHostPtr, len(samples)*int(unsafe.Sizeof(samples[0])), unsafe.Pointer(&samples[0]))
	if err != nil {
		kernel.Release()
		return nil, err
	}

	integ := &clBrdfIntegrator{clCore: core, kernel: kernel, samples: sampleBuf}
	if err = kernel.SetArgBuffer(3, sampleBuf); err == nil {
		err = kernel.SetArgInt32(4, int32(len(samples)))
	}
	if err != nil {
		integ.Release()
		return nil, err
	}
	return integ, nil
}

func (integ *clBrdfIntegrator) Integrate(size int) (*libio.FloatImage, error) {
	dstImage, err := integ.context.CreateImage(cl.MemWriteOnly, cl.ImageFormat{
		ChannelOrder:    cl.ChannelOrderRG,
		ChannelDataType: cl.ChannelDataTypeFloat,
	}, cl.ImageDescription{
		Type:   cl.MemObjectTypeImage2D,
		Width:  size,
		Height: size,
	}, size*size*2*4, nil)
	if err != nil {
		return nil, err
	}
	defer dstImage.Release()

	err = integ.kernel.SetArgBuffer(0, dstImage)
	if err != nil {
		return nil, err
	}
	err = integ.kernel.SetArgInt32(1, int32(size))
	if err != nil {
		return nil, err
	}
	err = integ.kernel.SetArgFloat32(2, 1.0/float32(size))
	if err != nil {
		return nil, err
	}

	localWorkSize := []int{32, 32, 1}
	globalWorkSize := []int{roundUpKernelSize(localWorkSize[0], size), roundUpKernelSize(localWorkSize[1], size), 1}

	_, err = integ.queue.EnqueueNDRangeKernel(integ.kernel, []int{0, 0, 0}, globalWorkSize, localWorkSize, nil)
	if err != nil {
		return nil, err
	}

	result := make([]float32, size*size*2)
	_, err = integ.queue.EnqueueReadImage(dstImage, true, [3]int{}, [3]int{size, size, 1}, 0, 0, unsafe.Pointer(&result[0]), nil)
	if err != nil {
		return nil, err
	}

	return libio.NewFloatImage(result, 2, size, size), nil
}

func (integ *clBrdfIntegrator) Release() {
	integ.kernel.Release()
	integ.samples.Release()
}

// runCubeMapKernel runs a kernel whose first two arguments are the source
// and a size x size x 6 destination image, followed by size and 1/size.
// The RGBA result is read into result.
func runCubeMapKernel(core *clCore, kernel *cl.Kernel, src *cl.MemObject, size int, result []float32) error {
	dstImage, err := core.context.CreateImage(cl.MemWriteOnly, cl.ImageFormat{
		ChannelOrder:    cl.ChannelOrderRGBA,
		ChannelDataType: cl.ChannelDataTypeFloat,
	}, cl.ImageDescription{
		Type:      cl.MemObjectTypeImage2DArray,
		Width:     size,
		Height:    size,
		ArraySize: 6,
	}, size*size*6*4*4, nil)
	if err != nil {
		return err
	}
	defer dstImage.Release()

	err = kernel.SetArgBuffer(0, src)
	if err != nil {
		return err
	}
	err = kernel.SetArgBuffer(1, dstImage)
	if err != nil {
		return err
	}
	err = kernel.SetArgInt32(2, int32(size))
	if err != nil {
		return err
	}
	err = kernel.SetArgFloat32(3, 1.0/float32(size))
	if err != nil {
		return err
	}

	localWorkSize := []int{32, 32, 1}
	globalWorkSize := []int{roundUpKernelSize(localWorkSize[0], size), roundUpKernelSize(localWorkSize[1], size), 6}

	_, err = core.queue.EnqueueNDRangeKernel(kernel, []int{0, 0, 0}, globalWorkSize, localWorkSize, nil)
	if err != nil {
		return err
	}

	_, err = core.queue.EnqueueReadImage(dstImage, true, [3]int{}, [3]int{size, size, 6}, 0, 0, unsafe.Pointer(&result[0]), nil)
	return err
}

func roundUpKernelSize(groupSize, globalSize int) int {
	r := globalSize % groupSize
	if r == 0 {
		return globalSize
	}
	return globalSize + groupSize - r
}

// compactRgba drops the alpha channel in place.
func compactRgba(result []float32) []float32 {
	n := len(result) / 4
	for i := 0; i < n; i++ {
		result[i*3+0] = result[i*4+0]
		result[i*3+1] = result[i*4+1]
		result[i*3+2] = result[i*4+2]
	}
	return result[: n*3 : n*3]
}

// envToClImage uploads the base level of env as an RGBA image array.
func envToClImage(env *Env, ctx *cl.Context) (*cl.MemObject, error) {
	bpp := 4 * 4

	rgbaData := make([]float32, env.BaseSize*env.BaseSize*6*4)
	rgbData := env.Level(0)
	for i := 0; i < env.BaseSize*env.BaseSize*6; i++ {
		rgbaData[i*4+0] = rgbData[i*3+0]
		rgbaData[i*4+1] = rgbData[i*3+1]
		rgbaData[i*4+2] = rgbData[i*3+2]
		rgbaData[i*4+3] = 1.0
	}

	return ctx.CreateImage(cl.MemReadOnly|cl.MemCopyHostPtr, cl.ImageFormat{
		ChannelOrder:    cl.ChannelOrderRGBA,
		ChannelDataType: cl.ChannelDataTypeFloat,
	}, cl.ImageDescription{
		Type:      cl.MemObjectTypeImage2DArray,
		Width:     env.BaseSize,
		Height:    env.BaseSize,
		ArraySize: 6,
	}, env.BaseSize*env.BaseSize*6*bpp, unsafe.Pointer(&rgbaData[0]))
}
