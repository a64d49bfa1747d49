package ibl

// these functions are only exported when running tests

var RadicalInverseVdC = radicalInverseVdC
var Hammersley = hammersley
var SampleSphericalMap = sampleSphericalMap
var SampleCubeMap = sampleCubeMap
var CubeMapDirection = cubeMapDirection
var ImportanceSampleGGX = importanceSampleGGX

// SpecularSampleZ returns the z component of the GGX samples of one level.
func SpecularSampleZ(count, levels, maxLod, level int) []float32 {
	samples := generateSpecularConvolutionSamples(count, levels, maxLod)[level]
	zs := make([]float32, len(samples))
	for i, s := range samples {
		zs[i] = s.z
	}
	return zs
}
