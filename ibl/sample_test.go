package ibl_test

import (
	"testing"

	"drumkit/ibl"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestRadicalInverseVdC(t *testing.T) {
	assert.Equal(t, float32(0), ibl.RadicalInverseVdC(0))
	assert.Equal(t, float32(0.5), ibl.RadicalInverseVdC(1))
	assert.Equal(t, float32(0.25), ibl.RadicalInverseVdC(2))
	assert.Equal(t, float32(0.75), ibl.RadicalInverseVdC(3))
}

func TestHammersley(t *testing.T) {
	x, y := ibl.Hammersley(0, 1024)
	assert.Equal(t, float32(0), x)
	assert.Equal(t, float32(0), y)

	x, y = ibl.Hammersley(1, 4)
	assert.Equal(t, float32(0.25), x)
	assert.Equal(t, float32(0.5), y)
}

func TestSampleSphericalMap(t *testing.T) {
	u, v := ibl.SampleSphericalMap(1, 0, 0)
	assert.InDelta(t, 0.5, u, 1e-6)
	assert.InDelta(t, 0.5, v, 1e-6)

	_, v = ibl.SampleSphericalMap(0, 1, 0)
	assert.InDelta(t, 1.0, v, 1e-6)

	u, _ = ibl.SampleSphericalMap(0, 0, 1)
	assert.InDelta(t, 0.75, u, 1e-6)
}

func TestCubeMapDirectionMatchesLookup(t *testing.T) {
	const size = 4
	for face := 0; face < 6; face++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				cx, cy, cz := ibl.CubeMapDirection(face, x, y, size)
				f, u, v := ibl.SampleCubeMap(cx, cy, cz)
				assert.Equal(t, face, f, "face %d texel %d,%d", face, x, y)
				assert.InDelta(t, (float32(x)+0.5)/size, u, 1e-4, "face %d texel %d,%d", face, x, y)
				assert.InDelta(t, (float32(y)+0.5)/size, v, 1e-4, "face %d texel %d,%d", face, x, y)
			}
		}
	}
}

func TestCubeMapFaceCenters(t *testing.T) {
	centers := [6][3]float32{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}
	for face, c := range centers {
		// the center of a 1x1 face is the axis itself
		x, y, z := ibl.CubeMapDirection(face, 0, 0, 1)
		assert.InDelta(t, c[0], x, 1e-4)
		assert.InDelta(t, c[1], y, 1e-4)
		assert.InDelta(t, c[2], z, 1e-4)
	}
}

func TestImportanceSampleGGX(t *testing.T) {
	// a perfect mirror only samples the normal
	x, y, z := ibl.ImportanceSampleGGX(0.3, 0.5, 0)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)
	assert.InDelta(t, 1, z, 1e-6)

	for i := uint32(0); i < 64; i++ {
		su, sv := ibl.Hammersley(i, 64)
		x, y, z := ibl.ImportanceSampleGGX(su, sv, 0.7)
		assert.InDelta(t, 1, math32.Sqrt(x*x+y*y+z*z), 1e-5)
		assert.GreaterOrEqual(t, z, float32(0))
	}
}
