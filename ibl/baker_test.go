package ibl_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"drumkit/ibl"
	"drumkit/liberr"
	"drumkit/libio"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() ibl.Settings {
	return ibl.Settings{
		CubemapSize:    8,
		IrradianceSize: 4,
		PrefilterSize:  8,
		MaxLod:         4,
		Samples:        64,
		DiffuseStep:    0.1,
		LutSize:        16,
		LutSamples:     128,
		Workers:        2,
	}
}

func constantEquirect(value float32) *libio.FloatImage {
	pix := make([]float32, 16*8*3)
	for i := range pix {
		pix[i] = value
	}
	return libio.NewFloatImage(pix, 3, 16, 8)
}

func TestPrefilterLevels(t *testing.T) {
	s := ibl.DefaultSettings()
	assert.Equal(t, 5, s.PrefilterLevels())

	// an 8x8 face only has 4 levels
	assert.Equal(t, 4, testSettings().PrefilterLevels())
}

func TestTruncatedChainKeepsRoughness(t *testing.T) {
	// 8x8 with max lod 4 stops at level 3, which still has roughness 3/4
	const count = 16
	s := testSettings()
	zs := ibl.SpecularSampleZ(count, s.PrefilterLevels(), s.MaxLod, 3)
	require.Len(t, zs, count)
	for i, z := range zs {
		u, v := ibl.Hammersley(uint32(i), count)
		_, _, want := ibl.ImportanceSampleGGX(u, v, 0.75)
		assert.InDelta(t, want, z, 1e-6, "sample %d", i)
	}

	// the sample that differs most between roughness 0.75 and 1
	u, v := ibl.Hammersley(count-1, count)
	_, _, rough := ibl.ImportanceSampleGGX(u, v, 1)
	assert.Greater(t, zs[count-1], rough)
}

func TestBakeConstantEnvironment(t *testing.T) {
	pipeline := ibl.NewSwPipeline(testSettings())
	defer pipeline.Release()

	result, err := ibl.NewBaker(pipeline).Bake(constantEquirect(3))
	require.NoError(t, err)

	require.Equal(t, 8, result.Cubemap.BaseSize)
	for _, v := range result.Cubemap.All() {
		assert.InDelta(t, 3, v, 1e-5)
	}

	require.Equal(t, 4, result.Irradiance.BaseSize)
	require.Equal(t, 1, result.Irradiance.Levels)
	for _, v := range result.Irradiance.All() {
		assert.InEpsilon(t, 3, v, 0.03)
	}

	require.Equal(t, 4, result.Prefiltered.Levels)
	for lvl := 0; lvl < result.Prefiltered.Levels; lvl++ {
		assert.Len(t, result.Prefiltered.Level(lvl), 6*3*result.Prefiltered.LevelSize(lvl)*result.Prefiltered.LevelSize(lvl))
		for _, v := range result.Prefiltered.Level(lvl) {
			assert.InDelta(t, 3, v, 1e-4, "level %d", lvl)
		}
	}
}

func TestBrdfLut(t *testing.T) {
	pipeline := ibl.NewSwPipeline(testSettings())
	defer pipeline.Release()

	lut, err := ibl.NewBaker(pipeline).BrdfLut()
	require.NoError(t, err)
	require.Equal(t, 2, lut.Channels)
	require.Equal(t, 16, lut.Width)
	require.Equal(t, 16, lut.Height)

	for i, v := range lut.Pix {
		assert.False(t, math32.IsNaN(v), "value %d", i)
		assert.GreaterOrEqual(t, v, float32(0), "value %d", i)
		assert.LessOrEqual(t, v, float32(1.1), "value %d", i)
	}

	// smooth surface seen head-on reflects F0 unchanged
	i := lut.Index(15, 0)
	assert.InDelta(t, 1.0, lut.Pix[i]+lut.Pix[i+1], 0.05)
	assert.Less(t, lut.Pix[i+1], float32(0.01))
}

func TestBakeTextures(t *testing.T) {
	pipeline := ibl.NewSwPipeline(testSettings())
	defer pipeline.Release()

	result, err := ibl.NewBaker(pipeline).Bake(constantEquirect(1))
	require.NoError(t, err)

	irr, pre, lut := result.Textures()
	require.NoError(t, irr.Validate())
	require.NoError(t, pre.Validate())
	require.NoError(t, lut.Validate())
	assert.True(t, irr.Cubemap)
	assert.True(t, pre.Cubemap)
	assert.Equal(t, 4, pre.Mips)
	assert.False(t, lut.Cubemap)

	env, err := ibl.FromTexture(pre)
	require.NoError(t, err)
	assert.Equal(t, result.Prefiltered.All(), env.All())
}

func TestBakeRejectsBadSources(t *testing.T) {
	pipeline := ibl.NewSwPipeline(testSettings())
	defer pipeline.Release()
	baker := ibl.NewBaker(pipeline)

	nan := constantEquirect(1)
	nan.Pix[7] = math32.NaN()

	sources := map[string]*libio.FloatImage{
		"nil":       nil,
		"zero size": libio.NewFloatImage(nil, 3, 0, 0),
		"short":     libio.NewFloatImage(make([]float32, 5), 3, 4, 2),
		"nan":       nan,
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			_, err := baker.Bake(src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, liberr.ErrBake))
		})
	}
}

func TestLoadEquirectMissing(t *testing.T) {
	_, err := ibl.LoadEquirect(filepath.Join(t.TempDir(), "missing.hdr"))
	require.Error(t, err)
	assert.Equal(t, liberr.KindBake, liberr.KindOf(err))
}

func TestLoadEquirectHdr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.hdr")
	src := constantEquirect(2)
	var buf bytes.Buffer
	require.NoError(t, libio.EncodeHdr(&buf, src))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o666))

	img, err := ibl.LoadEquirect(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Channels)
	assert.InDeltaSlice(t, src.Pix, img.Pix, 1e-6)
}

func TestInvalidSettings(t *testing.T) {
	s := testSettings()
	s.PrefilterSize = 0
	_, err := ibl.NewPipeline(ibl.ImplSoftware, ibl.DeviceTypeGPU, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, liberr.ErrBake))
}

func TestImplFlag(t *testing.T) {
	var impl ibl.Impl
	require.NoError(t, impl.Set("OpenCL"))
	assert.Equal(t, ibl.ImplOpenCl, impl)
	assert.Error(t, impl.Set("opengl"))
}
