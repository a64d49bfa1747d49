package libscn_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/libscn"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o666))
	return path
}

func assertVec3(t *testing.T, expected, actual mgl32.Vec3) {
	t.Helper()
	assert.True(t, expected.ApproxEqualThreshold(actual, 1e-5), "expected %v, got %v", expected, actual)
}

func TestSynthesizeTangent(t *testing.T) {
	// up facing normals use the x axis as helper
	assertVec3(t, mgl32.Vec3{0, 0, -1}, libscn.SynthesizeTangent(mgl32.Vec3{0, 1, 0}))
	assertVec3(t, mgl32.Vec3{-1, 0, 0}, libscn.SynthesizeTangent(mgl32.Vec3{0, 0, 1}))

	normals := []mgl32.Vec3{
		{1, 0, 0},
		{0, -1, 0},
		mgl32.Vec3{1, 1, 1}.Normalize(),
		mgl32.Vec3{0.1, 0.995, 0}.Normalize(),
		mgl32.Vec3{-0.3, 0.2, -0.9}.Normalize(),
	}
	for _, n := range normals {
		tan := libscn.SynthesizeTangent(n)
		assert.InDelta(t, 1, tan.Len(), 1e-5, "normal %v", n)
		assert.InDelta(t, 0, tan.Dot(n), 1e-5, "normal %v", n)
	}
}

func TestImportUnknownFormat(t *testing.T) {
	_, err := libscn.Import("scene.fbx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, liberr.ErrImport))
}

func triangleDocument() *gltf.Document {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})

	doc.Images = []*gltf.Image{{URI: "checker.png"}}
	doc.Textures = []*gltf.Texture{{Source: gltf.Index(0)}}
	doc.Materials = []*gltf.Material{{
		Name: "painted",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorTexture: &gltf.TextureInfo{Index: 0},
			MetallicFactor:   gltf.Float(0.25),
			RoughnessFactor:  gltf.Float(0.5),
		},
		EmissiveTexture: &gltf.TextureInfo{Index: 0},
		AlphaMode:       gltf.AlphaBlend,
	}}

	doc.Meshes = []*gltf.Mesh{
		{
			Name: "tri",
			Primitives: []*gltf.Primitive{{
				Indices:    gltf.Index(idx),
				Attributes: map[string]int{"POSITION": pos},
				Material:   gltf.Index(0),
			}},
		},
		{
			Name: "lonely",
			Primitives: []*gltf.Primitive{{
				Attributes: map[string]int{"POSITION": pos},
			}},
		},
	}

	doc.Nodes = []*gltf.Node{
		{Name: "a", Mesh: gltf.Index(0), Translation: [3]float64{1, 2, 3}, Rotation: [4]float64{0, 0, 0, 1}, Scale: [3]float64{1, 1, 1}},
		{Name: "b", Children: []int{2}, Translation: [3]float64{10, 0, 0}, Rotation: [4]float64{0, 0, 0, 1}, Scale: [3]float64{1, 1, 1}},
		{Name: "c", Mesh: gltf.Index(0), Rotation: [4]float64{0, 0, 0, 1}, Scale: [3]float64{2, 2, 2}},
	}
	doc.Scenes[0].Nodes = []int{0, 1}
	return doc
}

func TestImportGltf(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.glb")
	require.NoError(t, gltf.SaveBinary(triangleDocument(), path))

	scene, err := libscn.Import(path)
	require.NoError(t, err)
	require.Len(t, scene.Models, 2)

	tri := scene.Models[0]
	assert.Equal(t, "tri", tri.Name)
	require.NoError(t, tri.Mesh.Validate())
	assert.Len(t, tri.Mesh.Indices, 3)
	for _, v := range tri.Mesh.Vertices {
		// missing normals are flat, tangents are synthesized
		assertVec3(t, mgl32.Vec3{0, 0, 1}, v.Normal)
		assertVec3(t, mgl32.Vec3{-1, 0, 0}, v.Tangent)
		assert.Equal(t, mgl32.Vec2{}, v.Uv)
	}

	require.Len(t, tri.Instances, 2)
	assertVec3(t, mgl32.Vec3{1, 2, 3}, tri.Instances[0].Transform.Col(3).Vec3())
	assert.InDelta(t, 2, tri.Instances[1].Transform[0], 1e-6)
	assertVec3(t, mgl32.Vec3{10, 0, 0}, tri.Instances[1].Transform.Col(3).Vec3())

	assert.Equal(t, float32(0.25), tri.Material.Metallic)
	assert.Equal(t, float32(0.5), tri.Material.Roughness)
	assert.True(t, tri.Material.Transparent)

	require.Len(t, scene.Images, 1)
	assert.Equal(t, filepath.Join(dir, "checker.png"), scene.Images[0].Path)
	assert.Equal(t, 0, tri.Images[drum.SlotDiffuse])
	assert.Equal(t, 0, tri.Images[drum.SlotEmission])
	assert.Equal(t, libscn.NoImage, tri.Images[drum.SlotNormal])

	lonely := scene.Models[1]
	assert.Equal(t, "lonely", lonely.Name)
	assert.Len(t, lonely.Mesh.Indices, 3)
	require.Len(t, lonely.Instances, 1)
	assert.Equal(t, mgl32.Ident4(), lonely.Instances[0].Transform)
	for _, img := range lonely.Images {
		assert.Equal(t, libscn.NoImage, img)
	}
}

func TestImportGltfRejectsLines(t *testing.T) {
	doc := triangleDocument()
	doc.Meshes[0].Primitives[0].Mode = gltf.PrimitiveLines

	path := filepath.Join(t.TempDir(), "lines.glb")
	require.NoError(t, gltf.SaveBinary(doc, path))

	_, err := libscn.Import(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, liberr.ErrImport))
	assert.Contains(t, err.Error(), "tri")
}

func TestImportGltfRejectsBadIndices(t *testing.T) {
	doc := triangleDocument()
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 7})
	doc.Meshes[0].Primitives[0].Indices = gltf.Index(idx)

	path := filepath.Join(t.TempDir(), "bad.glb")
	require.NoError(t, gltf.SaveBinary(doc, path))

	_, err := libscn.Import(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, liberr.ErrImport))
}

func TestImportGltfMissing(t *testing.T) {
	_, err := libscn.Import(filepath.Join(t.TempDir(), "missing.gltf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, liberr.ErrIo))
}

const cubeObj = `# unit cube
mtllib cube.mtl
o Cube
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 1
v 1 0 1
v 1 1 1
v 0 1 1
usemtl glass
f 1 4 3 2
f 5 6 7 8
f 1 2 6 5
f 4 8 7 3
f 1 5 8 4
f 2 3 7 6
`

const cubeMtl = `newmtl glass
Kd 0.5 0.5 0.5
d 0.5
map_Kd checker.png
map_Bump -bm 0.5 ./checker.png
map_ORM orm.png
`

func TestImportObj(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cube.obj", cubeObj)
	writeFile(t, dir, "cube.mtl", cubeMtl)

	scene, err := libscn.Import(path)
	require.NoError(t, err)
	require.Len(t, scene.Models, 1)

	cube := scene.Models[0]
	assert.Equal(t, "Cube.glass", cube.Name)
	require.NoError(t, cube.Mesh.Validate())
	assert.Len(t, cube.Mesh.Indices, 36)
	// flat shading unshares every corner
	assert.Len(t, cube.Mesh.Vertices, 36)
	for _, v := range cube.Mesh.Vertices {
		assert.InDelta(t, 1, v.Normal.Len(), 1e-5)
		assert.InDelta(t, 0, v.Tangent.Dot(v.Normal), 1e-5)
	}
	// the first face lies in z = 0 and is wound towards -z
	assertVec3(t, mgl32.Vec3{0, 0, -1}, cube.Mesh.Vertices[0].Normal)

	assert.True(t, cube.Material.Transparent)
	assert.Equal(t, mgl32.Vec4{0.5, 0.5, 0.5, 0.5}, cube.Material.BaseColor)

	// checker.png and ./checker.png are the same file
	require.Len(t, scene.Images, 2)
	assert.Equal(t, cube.Images[drum.SlotDiffuse], cube.Images[drum.SlotNormal])
	assert.NotEqual(t, cube.Images[drum.SlotDiffuse], cube.Images[drum.SlotMetallicRoughness])
	assert.Equal(t, libscn.NoImage, cube.Images[drum.SlotOcclusion])
	assert.Equal(t, "checker", scene.Images[cube.Images[drum.SlotDiffuse]].Name)

	require.Len(t, cube.Instances, 1)
	assert.Equal(t, mgl32.Ident4(), cube.Instances[0].Transform)
}

func TestImportObjAttributes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "quad.obj", `v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 2
f -4/-4/-1 -3/-3/-1 -2/-2/-1 -1/-1/-1
`)

	scene, err := libscn.Import(path)
	require.NoError(t, err)
	require.Len(t, scene.Models, 1)

	quad := scene.Models[0]
	assert.Equal(t, "quad", quad.Name)
	assert.Len(t, quad.Mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, quad.Mesh.Indices)
	assert.Equal(t, mgl32.Vec2{1, 1}, quad.Mesh.Vertices[2].Uv)
	assertVec3(t, mgl32.Vec3{0, 0, 1}, quad.Mesh.Vertices[2].Normal)
	assertVec3(t, mgl32.Vec3{-1, 0, 0}, quad.Mesh.Vertices[2].Tangent)
}

func TestImportObjMaterialGroups(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "two.obj", `mtllib two.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
usemtl red
f 1 2 3
usemtl blue
f 1 3 4
o Second
usemtl red
f 1 2 3
`)
	writeFile(t, dir, "two.mtl", `newmtl red
Kd 1 0 0
Pm 0.25
Pr 0.75
Ke 1 1 0
newmtl blue
Tr 0.25
`)

	scene, err := libscn.Import(path)
	require.NoError(t, err)
	require.Len(t, scene.Models, 3)
	assert.Equal(t, "two.red", scene.Models[0].Name)
	assert.Equal(t, "two.blue", scene.Models[1].Name)
	assert.Equal(t, "Second.red", scene.Models[2].Name)

	red := scene.Models[0].Material
	assert.Equal(t, mgl32.Vec4{1, 0, 0, 1}, red.BaseColor)
	assert.Equal(t, float32(0.25), red.Metallic)
	assert.Equal(t, float32(0.75), red.Roughness)
	assert.Equal(t, mgl32.Vec3{1, 1, 0}, red.Emissive)
	assert.False(t, red.Transparent)

	blue := scene.Models[1].Material
	assert.Equal(t, float32(0.75), blue.BaseColor.W())
	assert.True(t, blue.Transparent)

	for _, m := range scene.Models {
		assert.Len(t, m.Mesh.Indices, 3)
		assert.Len(t, m.Mesh.Vertices, 3)
	}
}

func TestImportObjErrors(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]struct {
		content string
		kind    liberr.Kind
	}{
		"line":      {"v 0 0 0\nv 1 0 0\nl 1 2\n", liberr.KindImport},
		"point":     {"v 0 0 0\np 1\n", liberr.KindImport},
		"range":     {"v 0 0 0\nv 1 0 0\nf 1 2 3\n", liberr.KindImport},
		"number":    {"v 0 zero 0\n", liberr.KindImport},
		"material":  {"v 0 0 0\nv 1 0 0\nv 0 1 0\nusemtl nothing\nf 1 2 3\n", liberr.KindImport},
		"mtllib io": {"mtllib missing.mtl\n", liberr.KindIo},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, name+".obj", c.content)
			_, err := libscn.Import(path)
			require.Error(t, err)
			assert.Equal(t, c.kind, liberr.KindOf(err))
		})
	}

	_, err := libscn.Import(filepath.Join(dir, "missing.obj"))
	assert.Equal(t, liberr.KindIo, liberr.KindOf(err))
}

func TestImportManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "meshes"), 0o777))
	writeFile(t, filepath.Join(dir, "meshes"), "quad.obj", "o Quad\nv 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nf 1 2 3 4\n")
	writeFile(t, filepath.Join(dir, "meshes"), "tri.obj", "o Tri\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")
	path := writeFile(t, dir, "scene.json", `{
		"assets": ["meshes/*.obj", "meshes/quad.obj"],
		"lights": [{"position": [1, 2, 3], "intensity": 5}],
		"instances": [{"model": "Quad", "translation": [0, 0, 4]}],
		"environment": {"equirect": "sky.hdr"}
	}`)

	scene, err := libscn.Import(path)
	require.NoError(t, err)

	require.Len(t, scene.Models, 2)
	assert.Equal(t, "Quad", scene.Models[0].Name)
	assert.Equal(t, "Tri", scene.Models[1].Name)

	quad := scene.Models[0]
	require.Len(t, quad.Instances, 2)
	assertVec3(t, mgl32.Vec3{0, 0, 4}, quad.Instances[1].Transform.Col(3).Vec3())

	require.Len(t, scene.Lights, 1)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, scene.Lights[0].Position)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, scene.Lights[0].Color)
	assert.Equal(t, float32(5), scene.Lights[0].Intensity)

	assert.Equal(t, filepath.Join(dir, "sky.hdr"), scene.Environment.Equirect)
	assert.Empty(t, scene.Environment.Irradiance)
}

func TestImportManifestErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tri.obj", "o Tri\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")

	cases := map[string]string{
		"json":     `{"assets": [`,
		"instance": `{"assets": ["tri.obj"], "instances": [{"model": "Nope"}]}`,
		"asset":    `{"assets": ["nothing.obj"]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, name+".json", content)
			_, err := libscn.Import(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, liberr.ErrImport))
		})
	}
}

func TestResolveAssets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.obj", "")
	writeFile(t, dir, "a.obj", "")
	writeFile(t, dir, "c.gltf", "")

	assets, err := libscn.ResolveAssets(dir, []string{"*.obj", "a.obj", "*.glb"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.obj"), filepath.Join(dir, "b.obj")}, assets)
}
