package main

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"drumkit/drum"
	"drumkit/ibl"
	"drumkit/libio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantEnv(value float32, size, levels int) *ibl.Env {
	n := 0
	for lvl := 0; lvl < levels; lvl++ {
		s := drum.MipSize(size, lvl)
		n += 6 * s * s * 3
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = value
	}
	return ibl.NewEnv(data, size, levels)
}

func writeEnvironmentDrum(t *testing.T, dir string) string {
	b := drum.NewBuilder()
	irr := constantEnv(0.5, 2, 1).ToTexture("irradiance")
	pre := constantEnv(2, 4, 3).ToTexture("prefiltered")
	lut := ibl.LutTexture(libio.NewFloatImage(make([]float32, 4*4*2), 2, 4, 4), "brdf")
	b.SetEnvironment(irr, pre, lut)
	d, err := b.Build()
	require.NoError(t, err)

	path := filepath.Join(dir, "scene.drum")
	require.NoError(t, drum.WriteFile(path, d))
	return path
}

func TestPreviewCubemapHdr(t *testing.T) {
	dir := t.TempDir()
	path := writeEnvironmentDrum(t, dir)

	args := previewArgs{out: dir, format: "hdr", gamma: 2.2, scale: 1, allMips: true}
	require.NoError(t, previewFile(args, path))

	f, err := os.Open(filepath.Join(dir, "scene_1_prefiltered_1.hdr"))
	require.NoError(t, err)
	defer f.Close()
	img, err := libio.DecodeHdr(f)
	require.NoError(t, err)

	// the faces of level 1 are stacked vertically
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, 12, img.Height)
	for _, v := range img.Pix {
		assert.InDelta(t, 2, v, 1e-6)
	}

	// two channel textures gain an empty blue channel
	_, err = os.Stat(filepath.Join(dir, "scene_2_brdf_0.hdr"))
	assert.NoError(t, err)
}

func TestPreviewCubemapPng(t *testing.T) {
	dir := t.TempDir()
	path := writeEnvironmentDrum(t, dir)

	args := previewArgs{out: dir, format: "png", gamma: 1, scale: 0.5}
	require.NoError(t, previewFile(args, path))

	f, err := os.Open(filepath.Join(dir, "scene_1_prefiltered_0.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())

	// 2 scaled by 0.5 is full white
	r, g, b, _ := img.At(1, 20).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b})
}
