package ibl

import (
	"runtime"

	"drumkit/libio"

	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"
)

// The software device runs one invocation per output texel, spread over a
// bounded number of goroutines. Every invocation writes only its own texel.

func defaultWorkers(workers int) int {
	if workers <= 0 {
		return runtime.NumCPU()
	}
	return workers
}

// forEachCubeMapPixel calls cb for every texel of a cubemap face set of the
// given resolution. Rows are distributed over workers goroutines; i is the
// texel index into the face major data.
func forEachCubeMapPixel(resolution, workers int, cb func(face, pu, pv int, cx, cy, cz float32, i int)) {
	rows := 6 * resolution
	chunk := max(1, rows/(workers*4))

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < rows; start += chunk {
		start, end := start, min(start+chunk, rows)
		g.Go(func() error {
			for row := start; row < end; row++ {
				face, pv := row/resolution, row%resolution
				for pu := 0; pu < resolution; pu++ {
					cx, cy, cz := cubeMapDirection(face, pu, pv, resolution)
					cb(face, pu, pv, cx, cy, cz, row*resolution+pu)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func forEachRow(rows, workers int, cb func(row int)) {
	var g errgroup.Group
	g.SetLimit(workers)
	for row := 0; row < rows; row++ {
		row := row
		g.Go(func() error {
			cb(row)
			return nil
		})
	}
	_ = g.Wait()
}

type swConverter struct {
	workers int
}

func NewSwConverter(workers int) Converter {
	return &swConverter{workers: defaultWorkers(workers)}
}

func (conv *swConverter) Convert(src *libio.FloatImage, size int) (*Env, error) {
	result := make([]float32, 6*size*size*3)

	forEachCubeMapPixel(size, conv.workers, func(face, pu, pv int, cx, cy, cz float32, i int) {
		rx, ry, rz := normalize(cx, cy, cz)
		su, sv := sampleSphericalMap(rx, ry, rz)

		sr, sg, sb := sampleBilinear(src.Width, src.Height, src.Channels, src.Pix, su, sv)

		result[i*3+0] = sr
		result[i*3+1] = sg
		result[i*3+2] = sb
	})

	return NewEnv(result, size, 1), nil
}

func (conv *swConverter) Release() {
}

type sample struct {
	// z is 'up'
	x, y, z float32
	weight  float32
}

type swDiffuseConvolver struct {
	workers int
	samples []sample
}

// NewSwDiffuseConvolver integrates the hemisphere on a regular grid of
// step radians in both phi and theta.
func NewSwDiffuseConvolver(workers int, step float32) Convolver {
	return &swDiffuseConvolver{
		workers: defaultWorkers(workers),
		samples: generateDiffuseConvolutionSamples(step),
	}
}

func (conv *swDiffuseConvolver) Release() {
}

func generateDiffuseConvolutionSamples(step float32) []sample {
	phiSteps := int(math32.Ceil(2.0 * math32.Pi / step))
	thetaSteps := int(math32.Ceil(0.5 * math32.Pi / step))

	samples := make([]sample, 0, phiSteps*thetaSteps)
	for p := 0; p < phiSteps; p++ {
		phi := float32(p) * step
		for t := 0; t < thetaSteps; t++ {
			theta := float32(t) * step
			samples = append(samples, sample{
				x:      math32.Sin(theta) * math32.Cos(phi),
				y:      math32.Sin(theta) * math32.Sin(phi),
				z:      math32.Cos(theta),
				weight: math32.Cos(theta) * math32.Sin(theta),
			})
		}
	}
	return samples
}

func (conv *swDiffuseConvolver) Convolve(env *Env, size int) (*Env, error) {
	result := make([]float32, calcCubeMapPixels(size, 1)*3)

	forEachCubeMapPixel(size, conv.workers, func(face, pu, pv int, cx, cy, cz float32, i int) {
		nx, ny, nz := normalize(cx, cy, cz)

		var upx, upy, upz float32 = 0.0, 1.0, 0.0
		if math32.Abs(ny) >= 0.999 {
			upx, upy, upz = 0.0, 0.0, 1.0
		}

		// tangent = cross(up, normal)
		tx, ty, tz := normalize(cross(upx, upy, upz, nx, ny, nz))
		// bitangent = cross(normal, tangent)
		bx, by, bz := normalize(cross(nx, ny, nz, tx, ty, tz))

		var cr, cg, cb float32
		for _, s := range conv.samples {
			dx, dy, dz := transform(s.x, s.y, s.z, tx, ty, tz, bx, by, bz, nx, ny, nz)

			sr, sg, sb := sampleEnv(env, dx, dy, dz)

			cr += sr * s.weight
			cg += sg * s.weight
			cb += sb * s.weight
		}

		count := float32(len(conv.samples))
		result[i*3+0] = cr * math32.Pi / count
		result[i*3+1] = cg * math32.Pi / count
		result[i*3+2] = cb * math32.Pi / count
	})

	return NewEnv(result, size, 1), nil
}

type swSpecularConvolver struct {
	workers int
	samples [][]sample
	levels  int
}

// NewSwSpecularConvolver prefilters levels mip levels, level l with roughness
// l / maxLod, using count GGX samples per texel. levels may be less than
// maxLod+1 when the face size runs out of mips.
func NewSwSpecularConvolver(workers, count, levels, maxLod int) Convolver {
	return &swSpecularConvolver{
		workers: defaultWorkers(workers),
		samples: generateSpecularConvolutionSamples(count, levels, maxLod),
		levels:  levels,
	}
}

func (conv *swSpecularConvolver) Release() {
}

func generateSpecularConvolutionSamples(count, levels, maxLod int) [][]sample {
	// store all samples in contiguous memory
	samples := make([]sample, count*(levels-1)+1)
	slicedSamples := make([][]sample, levels)
	// roughness 0 only requires a single sample
	samples[0] = sample{x: 0, y: 0, z: 1, weight: 1.0}
	slicedSamples[0] = samples[0:1:1]
	i := 1

	hammersleySeq := generateHammersleySequence(count)

	for l := 1; l < levels; l++ {
		start := i
		roughness := float32(l) / float32(maxLod)
		for si := 0; si < count; si++ {
			hs := hammersleySeq[si]
			hx, hy, hz := importanceSampleGGX(hs[0], hs[1], roughness)
			samples[i] = sample{x: hx, y: hy, z: hz, weight: 1.0}
			i++
		}
		slicedSamples[l] = samples[start:i:i]
	}

	return slicedSamples
}

func (conv *swSpecularConvolver) Convolve(env *Env, size int) (*Env, error) {
	result := make([]float32, calcCubeMapPixels(size, conv.levels)*3)
	for lvl := 0; lvl < conv.levels; lvl++ {
		lvlStart, lvlEnd := calcCubeMapOffset(size, lvl)
		lvlResult := result[lvlStart*3 : lvlEnd*3]
		samples := conv.samples[lvl]
		forEachCubeMapPixel(max(1, size>>lvl), conv.workers, func(face, pu, pv int, cx, cy, cz float32, i int) {
			nx, ny, nz := normalize(cx, cy, cz)
			// N = V = R
			vx, vy, vz := nx, ny, nz
			// from tangent-space vector to world-space sample vector
			var upx, upy, upz float32 = 0.0, 0.0, 1.0
			if math32.Abs(nz) >= 0.999 {
				upx, upy, upz = 1.0, 0.0, 0.0
			}
			tx, ty, tz := normalize(cross(upx, upy, upz, nx, ny, nz))
			bx, by, bz := cross(nx, ny, nz, tx, ty, tz)

			var cr, cg, cb float32
			var totalWeight float32
			for _, s := range samples {
				hx, hy, hz := normalize(transform(s.x, s.y, s.z, tx, ty, tz, bx, by, bz, nx, ny, nz))
				vdoth := 2 * dot(vx, vy, vz, hx, hy, hz)
				lx, ly, lz := normalize(vdoth*hx-vx, vdoth*hy-vy, vdoth*hz-vz)

				ndotl := dot(nx, ny, nz, lx, ly, lz)
				if ndotl > 0 {
					sr, sg, sb := sampleEnv(env, lx, ly, lz)

					cr += sr * ndotl
					cg += sg * ndotl
					cb += sb * ndotl

					totalWeight += ndotl
				}
			}

			if totalWeight == 0 {
				cr, cg, cb = sampleEnv(env, nx, ny, nz)
				totalWeight = 1
			}

			lvlResult[i*3+0] = cr / totalWeight
			lvlResult[i*3+1] = cg / totalWeight
			lvlResult[i*3+2] = cb / totalWeight
		})
	}

	return NewEnv(result, size, conv.levels), nil
}
