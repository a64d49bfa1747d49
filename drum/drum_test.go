package drum_test

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"drumkit/drum"
	"drumkit/liberr"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)*7 + seed
	}
	return data
}

func testTexture(name string, format drum.Format, w, h, mips int, cube bool) drum.Texture {
	tex := drum.Texture{
		Name:       name,
		Format:     format,
		Width:      w,
		Height:     h,
		Mips:       mips,
		Cubemap:    cube,
		Compressed: format.Compressed(),
	}
	if format.Srgb() {
		tex.ColorSpace = drum.ColorSpaceSrgb
	}
	tex.Data = filled(tex.DataSize(), byte(len(name)))
	return tex
}

func quad() drum.Mesh {
	n := mgl32.Vec3{0, 0, 1}
	t := mgl32.Vec3{1, 0, 0}
	return drum.Mesh{
		Vertices: []drum.Vertex{
			{Position: mgl32.Vec3{-1, -1, 0}, Normal: n, Uv: mgl32.Vec2{0, 1}, Tangent: t},
			{Position: mgl32.Vec3{1, -1, 0}, Normal: n, Uv: mgl32.Vec2{1, 1}, Tangent: t},
			{Position: mgl32.Vec3{1, 1, 0}, Normal: n, Uv: mgl32.Vec2{1, 0}, Tangent: t},
			{Position: mgl32.Vec3{-1, 1, 0}, Normal: n, Uv: mgl32.Vec2{0, 0}, Tangent: t},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func buildTestDrum(t *testing.T) *drum.Drum {
	b := drum.NewBuilder()

	diffuse := b.AddTexture(testTexture("diffuse", drum.FormatBc1RgbaUnormSrgb, 8, 8, 4, false))
	normal := b.AddTexture(testTexture("normal", drum.FormatBc5RgUnorm, 8, 4, 2, false))
	orm := b.AddTexture(testTexture("orm", drum.FormatRgba8Unorm, 4, 4, 3, false))

	mat := drum.NewMaterial()
	mat.Textures[drum.SlotDiffuse] = diffuse
	mat.Textures[drum.SlotNormal] = normal
	mat.Textures[drum.SlotMetallicRoughness] = orm
	mat.Emissive = mgl32.Vec3{0.5, 0.25, 0}
	mat.Transparent = true

	b.AddModel(drum.Model{
		Name:     "quad",
		Mesh:     quad(),
		Material: mat,
		Instances: []drum.Instance{
			{Transform: mgl32.Ident4()},
			{Transform: mgl32.Translate3D(4, 0, -2)},
		},
	})
	b.AddModel(drum.Model{
		Name:      "plain",
		Mesh:      quad(),
		Material:  drum.NewMaterial(),
		Instances: []drum.Instance{{Transform: mgl32.Scale3D(2, 2, 2)}},
	})
	b.AddLight(drum.DefaultLight())
	b.AddLight(drum.Light{Position: mgl32.Vec3{0, 5, 0}, Color: mgl32.Vec3{1, 1, 1}, Intensity: 3})

	irradiance := testTexture("irradiance", drum.FormatRgba32Float, 4, 4, 1, true)
	prefiltered := testTexture("prefiltered", drum.FormatRgba32Float, 8, 8, 3, true)
	lut := testTexture("brdf", drum.FormatRg32Float, 4, 4, 1, false)
	b.SetEnvironment(&irradiance, &prefiltered, &lut)

	d, err := b.Build()
	require.NoError(t, err)
	return d
}

func TestRoundTrip(t *testing.T) {
	d := buildTestDrum(t)

	for _, level := range []int{-1, 0, 9} {
		data, err := drum.Marshal(d, drum.OptCompress(level))
		require.NoError(t, err)

		decoded, err := drum.Unmarshal(data)
		require.NoError(t, err)
		require.Equal(t, d, decoded, "compression level %d", level)
	}
}

func TestBuildOrder(t *testing.T) {
	d := buildTestDrum(t)

	require.Len(t, d.Textures, 6)
	require.NotNil(t, d.Environment)
	assert.Equal(t, drum.TextureHandle(3), d.Environment.Textures[drum.IblIrradiance])
	assert.Equal(t, drum.TextureHandle(4), d.Environment.Textures[drum.IblPrefiltered])
	assert.Equal(t, drum.TextureHandle(5), d.Environment.Textures[drum.IblBrdfLut])
	assert.Equal(t, 3, d.Environment.PrefilteredMips)

	assert.Equal(t, drum.NoTexture, d.Models[0].Material.Textures[drum.SlotOcclusion])
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, d.Models[0].Bounds.Center())
	assert.Equal(t, mgl32.Vec3{-1, -1, 0}, d.Models[0].Bounds.Min)
}

func TestDeterministic(t *testing.T) {
	d := buildTestDrum(t)
	a, err := drum.Marshal(d)
	require.NoError(t, err)
	b, err := drum.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVersionMismatch(t *testing.T) {
	data, err := drum.Marshal(buildTestDrum(t))
	require.NoError(t, err)

	binary.LittleEndian.PutUint32(data[4:], uint32(drum.CurrentVersion)+1)

	d, err := drum.Unmarshal(data)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, liberr.ErrFormat)
	assert.ErrorContains(t, err, "unsupported")
}

func TestCorruptContainers(t *testing.T) {
	valid, err := drum.Marshal(buildTestDrum(t), drum.OptCompress(-1))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(data []byte) []byte
	}{
		{"empty", func(data []byte) []byte { return nil }},
		{"magic", func(data []byte) []byte { data[0] ^= 0xff; return data }},
		{"truncated", func(data []byte) []byte { return data[:len(data)-10] }},
		{"section table", func(data []byte) []byte { return data[:40] }},
		{"checksum", func(data []byte) []byte { data[len(data)-1] ^= 0xff; return data }},
		{"section count", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[8:], 0xffff)
			return data
		}},
		{"huge texture", func(data []byte) []byte {
			// first section is a texture; patch its size and fix the checksum
			offset := binary.LittleEndian.Uint64(data[40:])
			length := binary.LittleEndian.Uint64(data[56:])
			binary.LittleEndian.PutUint32(data[offset+4:], 1<<31)
			binary.LittleEndian.PutUint32(data[offset+8:], 1<<31)
			binary.LittleEndian.PutUint32(data[64:], crc32.ChecksumIEEE(data[offset:offset+length]))
			return data
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(bytes.Clone(valid))
			d, err := drum.Unmarshal(data)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, liberr.ErrFormat)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("dangling handle", func(t *testing.T) {
		b := drum.NewBuilder()
		mat := drum.NewMaterial()
		mat.Textures[drum.SlotEmission] = 5
		b.AddModel(drum.Model{Name: "broken", Mesh: quad(), Material: mat})
		_, err := b.Build()
		assert.ErrorIs(t, err, liberr.ErrFormat)
	})

	t.Run("index out of range", func(t *testing.T) {
		b := drum.NewBuilder()
		mesh := quad()
		mesh.Indices[4] = 17
		b.AddModel(drum.Model{Name: "broken", Mesh: mesh, Material: drum.NewMaterial()})
		_, err := b.Build()
		assert.ErrorIs(t, err, liberr.ErrFormat)
	})

	t.Run("non square cubemap", func(t *testing.T) {
		b := drum.NewBuilder()
		tex := testTexture("sky", drum.FormatRgba32Float, 8, 4, 1, true)
		b.AddTexture(tex)
		_, err := b.Build()
		assert.ErrorIs(t, err, liberr.ErrFormat)
	})

	t.Run("short data", func(t *testing.T) {
		b := drum.NewBuilder()
		tex := testTexture("short", drum.FormatRgba8Unorm, 4, 4, 1, false)
		tex.Data = tex.Data[:10]
		b.AddTexture(tex)
		_, err := b.Build()
		assert.ErrorIs(t, err, liberr.ErrFormat)
	})

	t.Run("huge texture", func(t *testing.T) {
		tex := drum.Texture{Name: "huge", Format: drum.FormatRgba8Unorm, Width: 1 << 31, Height: 1 << 31, Mips: 1}
		_, err := drum.Marshal(&drum.Drum{Textures: []drum.Texture{tex}})
		assert.ErrorIs(t, err, liberr.ErrFormat)
	})

	t.Run("irradiance must be cubemap", func(t *testing.T) {
		b := drum.NewBuilder()
		flat := testTexture("flat", drum.FormatRgba32Float, 4, 4, 1, false)
		b.SetEnvironment(&flat, nil, nil)
		_, err := b.Build()
		assert.ErrorIs(t, err, liberr.ErrFormat)
	})
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "scene.drum")

	d := buildTestDrum(t)
	require.NoError(t, drum.WriteFile(name, d))

	loaded, err := drum.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, d, loaded)

	// a failed write leaves nothing behind
	broken := *d
	broken.Lights = nil
	broken.Models = []drum.Model{{Name: "broken", Mesh: drum.Mesh{Indices: []uint32{0, 1}}}}
	err = drum.WriteFile(filepath.Join(dir, "broken.drum"), &broken)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scene.drum", entries[0].Name())
}

func TestTextureLayout(t *testing.T) {
	tex := testTexture("cube", drum.FormatRgba8Unorm, 4, 4, 3, true)

	assert.Equal(t, 6*(64+16+4), tex.DataSize())
	assert.Equal(t, 16, tex.FaceSize(1))
	assert.Equal(t, tex.Data[6*64+2*16:6*64+3*16], tex.Face(1, 2))
	assert.Len(t, tex.Level(2), 6*4)

	assert.Equal(t, 32, drum.FormatBc1RgbaUnorm.SurfaceSize(5, 5))
	assert.Equal(t, 16, drum.FormatBc3RgbaUnorm.SurfaceSize(1, 1))
	assert.Equal(t, 3, drum.MaxMips(4, 4))
	assert.Equal(t, 4, drum.MaxMips(8, 3))
	assert.Equal(t, drum.FormatBc1RgbaUnormSrgb, drum.FormatBc1RgbaUnorm.WithSrgb(true))
	assert.Equal(t, drum.FormatBc5RgUnorm, drum.FormatBc5RgUnorm.WithSrgb(true))
}

func TestWriteSummary(t *testing.T) {
	d := buildTestDrum(t)
	buf := new(bytes.Buffer)
	require.NoError(t, d.WriteSummary(buf))

	out := buf.String()
	assert.Contains(t, out, d.ID.String())
	assert.Contains(t, out, "bc1-rgba-unorm-srgb")
	assert.Contains(t, out, "cubemap,linear")
	assert.Contains(t, out, "prefiltered mips")
	assert.Contains(t, out, "transparent")
}
