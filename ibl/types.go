// Package ibl bakes image based lighting data from an equirectangular HDR
// environment: a radiance cubemap, a diffuse irradiance cubemap, a specular
// prefiltered cubemap with one roughness per mip level and a BRDF lookup table.
package ibl

import "drumkit/libio"

type Converter interface {
	// Convert reprojects an equirectangular image onto a cubemap with faces of size x size.
	Convert(src *libio.FloatImage, size int) (*Env, error)
	Release()
}

type Convolver interface {
	Convolve(env *Env, size int) (*Env, error)
	Release()
}

type Integrator interface {
	// Integrate returns the two channel (scale, bias) split sum lookup table.
	Integrate(size int) (*libio.FloatImage, error)
	Release()
}

type CubeMapFace int

const (
	CubeMapPositiveX = CubeMapFace(iota)
	CubeMapNegativeX
	CubeMapPositiveY
	CubeMapNegativeY
	CubeMapPositiveZ
	CubeMapNegativeZ
)

func (f CubeMapFace) String() string {
	return [...]string{"+x", "-x", "+y", "-y", "+z", "-z"}[f]
}

// Env is an RGB float cubemap with a mip chain. Data is stored mip major,
// then by face, then rows top to bottom.
type Env struct {
	BaseSize int
	Levels   int
	data     []float32
}

func NewEnv(data []float32, size, levels int) *Env {
	return &Env{
		BaseSize: size,
		Levels:   levels,
		data:     data,
	}
}

// LevelSize is the face edge length of mip level lvl.
func (env *Env) LevelSize(lvl int) int {
	return max(1, env.BaseSize>>lvl)
}

func (env *Env) All() []float32 {
	return env.data
}

func (env *Env) Level(lvl int) []float32 {
	start, end := calcCubeMapOffset(env.BaseSize, lvl)
	return env.data[start*3 : end*3]
}

func (env *Env) Face(lvl, face int) []float32 {
	start, _ := calcCubeMapOffset(env.BaseSize, lvl)
	size := env.LevelSize(lvl)
	o := size * size * 3
	start = start*3 + face*o
	return env.data[start : start+o : start+o]
}

// calcCubeMapPixels is the number of texels of all faces of all levels.
func calcCubeMapPixels(size, levels int) int {
	n := 0
	for lvl := 0; lvl < levels; lvl++ {
		s := max(1, size>>lvl)
		n += 6 * s * s
	}
	return n
}

// calcCubeMapOffset returns the texel range of mip level lvl.
func calcCubeMapOffset(size, lvl int) (start, end int) {
	start = calcCubeMapPixels(size, lvl)
	s := max(1, size>>lvl)
	return start, start + 6*s*s
}
