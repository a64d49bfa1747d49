package ibl

import (
	"drumkit/libio"

	"github.com/chewxy/math32"
)

type swBrdfIntegrator struct {
	workers int
	samples [][2]float32
}

// NewSwBrdfIntegrator integrates the split sum BRDF with count Hammersley samples per texel.
func NewSwBrdfIntegrator(workers, count int) Integrator {
	return &swBrdfIntegrator{
		workers: defaultWorkers(workers),
		samples: generateHammersleySequence(count),
	}
}

func (integ *swBrdfIntegrator) Release() {
}

// Integrate fills a size x size table. Column x holds N·V = (x+0.5)/size and
// row y holds roughness = (y+0.5)/size.
func (integ *swBrdfIntegrator) Integrate(size int) (*libio.FloatImage, error) {
	result := make([]float32, size*size*2)

	forEachRow(size, integ.workers, func(y int) {
		roughness := (float32(y) + 0.5) / float32(size)
		for x := 0; x < size; x++ {
			ndotv := (float32(x) + 0.5) / float32(size)
			scale, bias := integrateBrdf(ndotv, roughness, integ.samples)
			result[(y*size+x)*2+0] = scale
			result[(y*size+x)*2+1] = bias
		}
	})

	return libio.NewFloatImage(result, 2, size, size), nil
}

func geometrySchlickGGX(ndotv, roughness float32) float32 {
	// k for image based lighting
	k := (roughness * roughness) / 2.0
	return ndotv / (ndotv*(1.0-k) + k)
}

func geometrySmith(ndotv, ndotl, roughness float32) float32 {
	return geometrySchlickGGX(ndotv, roughness) * geometrySchlickGGX(ndotl, roughness)
}

// integrateBrdf returns the scale and bias applied to F0 by the split sum
// approximation. N is +Z.
func integrateBrdf(ndotv, roughness float32, samples [][2]float32) (scale, bias float32) {
	vx, vy, vz := math32.Sqrt(1.0-ndotv*ndotv), float32(0.0), ndotv

	for _, s := range samples {
		hx, hy, hz := importanceSampleGGX(s[0], s[1], roughness)
		vdoth := dot(vx, vy, vz, hx, hy, hz)
		lz := 2.0*vdoth*hz - vz

		ndotl := math32.Max(lz, 0.0)
		ndoth := math32.Max(hz, 0.0)
		vdoth = math32.Max(vdoth, 0.0)

		if ndotl > 0.0 {
			g := geometrySmith(ndotv, ndotl, roughness)
			gVis := (g * vdoth) / (ndoth * ndotv)
			fc := math32.Pow(1.0-vdoth, 5.0)

			scale += (1.0 - fc) * gVis
			bias += fc * gVis
		}
	}

	n := float32(len(samples))
	return scale / n, bias / n
}
