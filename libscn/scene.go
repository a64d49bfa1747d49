// Package libscn imports authored scenes (glTF, Wavefront OBJ and JSON scene
// manifests) into a flat intermediate form that the pack tool turns into a Drum.
package libscn

import (
	"path/filepath"
	"strings"

	"drumkit/drum"
	"drumkit/liberr"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// NoImage marks an empty material slot.
const NoImage = -1

// Image is a texture source referenced by a material, either a file or an
// embedded buffer.
type Image struct {
	Name string
	Path string
	Data []byte

	key string
}

type Model struct {
	Name string
	Mesh drum.Mesh
	// Scalar factors. The texture handles are not set by the importer.
	Material drum.Material
	// Indices into Scene.Images by material slot.
	Images    [drum.SlotCount]int
	Instances []drum.Instance
}

// EnvironmentSources are image based lighting inputs named by a manifest.
type EnvironmentSources struct {
	Equirect    string `json:"equirect"`
	Irradiance  string `json:"irradiance"`
	Prefiltered string `json:"prefiltered"`
	BrdfLut     string `json:"brdf"`
}

func (env EnvironmentSources) Empty() bool {
	return env == EnvironmentSources{}
}

type Scene struct {
	Models      []Model
	Images      []Image
	Lights      []drum.Light
	Environment EnvironmentSources

	imageIndex map[string]int
}

func NewScene() *Scene {
	return &Scene{imageIndex: map[string]int{}}
}

func newModel(name string) Model {
	m := Model{
		Name:     name,
		Material: drum.NewMaterial(),
	}
	for i := range m.Images {
		m.Images[i] = NoImage
	}
	return m
}

// AddImageFile registers an image file once per canonical path.
func (scn *Scene) AddImageFile(path string) int {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	if real, err := filepath.EvalSymlinks(key); err == nil {
		key = real
	}
	key = filepath.Clean(key)

	name, _, _ := strings.Cut(filepath.Base(path), ".")
	return scn.addImage(key, Image{Name: name, Path: path})
}

// AddImageData registers an embedded image once per key.
func (scn *Scene) AddImageData(key, name string, data []byte) int {
	return scn.addImage("embedded:"+key, Image{Name: name, Data: data})
}

func (scn *Scene) addImage(key string, img Image) int {
	if scn.imageIndex == nil {
		scn.imageIndex = map[string]int{}
	}
	if i, ok := scn.imageIndex[key]; ok {
		return i
	}
	img.key = key
	i := len(scn.Images)
	scn.Images = append(scn.Images, img)
	scn.imageIndex[key] = i
	return i
}

// Merge appends the models, images and lights of other, remapping image indices.
func (scn *Scene) Merge(other *Scene) {
	remap := make([]int, len(other.Images))
	for i, img := range other.Images {
		remap[i] = scn.addImage(img.key, img)
	}

	for _, m := range other.Models {
		for slot, img := range m.Images {
			if img != NoImage {
				m.Images[slot] = remap[img]
			}
		}
		scn.Models = append(scn.Models, m)
	}
	scn.Lights = append(scn.Lights, other.Lights...)
	if scn.Environment.Empty() {
		scn.Environment = other.Environment
	}
}

// Import reads a scene description. The format is chosen by file extension.
func Import(path string) (*Scene, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		return ImportGltf(path)
	case ".obj":
		return ImportObj(path)
	case ".json":
		return ImportManifest(path)
	}
	return nil, liberr.Importf(path, "unsupported scene format %q", filepath.Ext(path))
}

// SynthesizeTangent derives a tangent from a unit normal when the source has none.
func SynthesizeTangent(n mgl32.Vec3) mgl32.Vec3 {
	helper := mgl32.Vec3{0, 1, 0}
	if math32.Abs(n.Y()) > 0.99 {
		helper = mgl32.Vec3{1, 0, 0}
	}
	t := n.Cross(helper)
	if t.Len() == 0 {
		return mgl32.Vec3{1, 0, 0}
	}
	return t.Normalize()
}

// finishMesh fills in the attributes a source did not provide and validates
// the index buffer.
func finishMesh(mesh *drum.Mesh, hasNormals, hasTangents bool) error {
	if err := mesh.Validate(); err != nil {
		return err
	}

	if !hasNormals {
		flatShade(mesh)
	}

	if !hasTangents {
		for i := range mesh.Vertices {
			mesh.Vertices[i].Tangent = SynthesizeTangent(mesh.Vertices[i].Normal)
		}
	}
	return nil
}

// flatShade unshares the vertices so that every triangle gets its face normal.
func flatShade(mesh *drum.Mesh) {
	vertices := make([]drum.Vertex, len(mesh.Indices))
	indices := make([]uint32, len(mesh.Indices))
	for i := 0; i < len(mesh.Indices); i += 3 {
		v0 := mesh.Vertices[mesh.Indices[i+0]]
		v1 := mesh.Vertices[mesh.Indices[i+1]]
		v2 := mesh.Vertices[mesh.Indices[i+2]]

		n := v1.Position.Sub(v0.Position).Cross(v2.Position.Sub(v0.Position))
		if n.Len() > 0 {
			n = n.Normalize()
		} else {
			n = mgl32.Vec3{0, 1, 0}
		}

		for j, v := range [3]drum.Vertex{v0, v1, v2} {
			v.Normal = n
			vertices[i+j] = v
			indices[i+j] = uint32(i + j)
		}
	}
	mesh.Vertices = vertices
	mesh.Indices = indices
}
