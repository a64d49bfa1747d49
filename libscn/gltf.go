package libscn

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/liblog"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

type gltfImporter struct {
	doc   *gltf.Document
	path  string
	dir   string
	scene *Scene
	// image index by glTF image index
	images map[int]int
}

// ImportGltf reads a .gltf or .glb file. Every primitive becomes one Model
// which is instanced once per node that references its mesh.
func ImportGltf(path string) (*Scene, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, liberr.Wrap(liberr.KindIo, path, err)
	}

	doc, err := gltf.Open(path)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindImport, path, fmt.Errorf("could not open gltf document: %w", err))
	}

	return ImportGltfDocument(doc, path)
}

// ImportGltfDocument converts an already decoded document. External resources
// are resolved relative to path.
func ImportGltfDocument(doc *gltf.Document, path string) (*Scene, error) {
	imp := &gltfImporter{
		doc:    doc,
		path:   path,
		dir:    filepath.Dir(path),
		scene:  NewScene(),
		images: map[int]int{},
	}

	instances, err := imp.instances()
	if err != nil {
		return nil, err
	}

	for i, mesh := range doc.Meshes {
		name := mesh.Name
		if name == "" {
			name = fmt.Sprintf("mesh%d", i)
		}

		meshInstances := instances[i]
		if len(meshInstances) == 0 {
			meshInstances = []drum.Instance{{Transform: mgl32.Ident4()}}
		}

		for j, prim := range mesh.Primitives {
			modelName := name
			if len(mesh.Primitives) > 1 {
				modelName = fmt.Sprintf("%s.%d", name, j)
			}

			model, err := imp.primitive(modelName, prim)
			if err != nil {
				return nil, liberr.Importf(path, "mesh %q primitive %d: %w", name, j, err)
			}
			model.Instances = append([]drum.Instance(nil), meshInstances...)
			imp.scene.Models = append(imp.scene.Models, model)
		}
	}

	liblog.Logger().Debug("imported gltf", "path", path, "models", len(imp.scene.Models), "images", len(imp.scene.Images))
	return imp.scene, nil
}

// instances walks the node hierarchy and collects the world transform of
// every node that references a mesh.
func (imp *gltfImporter) instances() ([][]drum.Instance, error) {
	doc := imp.doc
	result := make([][]drum.Instance, len(doc.Meshes))

	var roots []int
	switch {
	case doc.Scene != nil && *doc.Scene < len(doc.Scenes):
		roots = doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		for _, scn := range doc.Scenes {
			roots = append(roots, scn.Nodes...)
		}
	default:
		isChild := make([]bool, len(doc.Nodes))
		for _, node := range doc.Nodes {
			for _, child := range node.Children {
				if child >= 0 && child < len(isChild) {
					isChild[child] = true
				}
			}
		}
		for i := range doc.Nodes {
			if !isChild[i] {
				roots = append(roots, i)
			}
		}
	}

	onStack := make([]bool, len(doc.Nodes))
	var walk func(idx int, parent mgl32.Mat4) error
	walk = func(idx int, parent mgl32.Mat4) error {
		if idx < 0 || idx >= len(doc.Nodes) {
			return liberr.Importf(imp.path, "node %d does not exist", idx)
		}
		if onStack[idx] {
			return liberr.Importf(imp.path, "node %d is its own ancestor", idx)
		}
		onStack[idx] = true
		defer func() { onStack[idx] = false }()

		node := doc.Nodes[idx]
		world := parent.Mul4(nodeTransform(node))
		if node.Mesh != nil {
			if *node.Mesh < 0 || *node.Mesh >= len(doc.Meshes) {
				return liberr.Importf(imp.path, "node %d references mesh %d which does not exist", idx, *node.Mesh)
			}
			result[*node.Mesh] = append(result[*node.Mesh], drum.Instance{Transform: world})
		}
		for _, child := range node.Children {
			if err := walk(child, world); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root, mgl32.Ident4()); err != nil {
			return nil, err
		}
	}
	return result, nil
}

var identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

func nodeTransform(node *gltf.Node) mgl32.Mat4 {
	if node.Matrix != identityMatrix && node.Matrix != ([16]float64{}) {
		// both are column major
		var m mgl32.Mat4
		for i, v := range node.Matrix {
			m[i] = float32(v)
		}
		return m
	}

	t := node.TranslationOrDefault()
	r := node.RotationOrDefault()
	s := node.ScaleOrDefault()
	rot := mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
	return mgl32.Translate3D(float32(t[0]), float32(t[1]), float32(t[2])).
		Mul4(rot.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(float32(s[0]), float32(s[1]), float32(s[2])))
}

func (imp *gltfImporter) accessor(idx int) (*gltf.Accessor, error) {
	doc := imp.doc
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d does not exist", idx)
	}
	acr := doc.Accessors[idx]
	if acr.BufferView == nil {
		return acr, nil
	}
	if _, err := imp.bufferView(*acr.BufferView); err != nil {
		return nil, fmt.Errorf("accessor %d: %w", idx, err)
	}
	return acr, nil
}

func (imp *gltfImporter) bufferView(idx int) ([]byte, error) {
	doc := imp.doc
	if idx < 0 || idx >= len(doc.BufferViews) {
		return nil, fmt.Errorf("buffer view %d does not exist", idx)
	}
	bv := doc.BufferViews[idx]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer view %d references buffer %d which does not exist", idx, bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteOffset+bv.ByteLength > len(data) {
		return nil, fmt.Errorf("buffer view %d range %d+%d exceeds buffer %d of %d bytes", idx, bv.ByteOffset, bv.ByteLength, bv.Buffer, len(data))
	}
	return data[bv.ByteOffset : bv.ByteOffset+bv.ByteLength], nil
}

func (imp *gltfImporter) primitive(name string, prim *gltf.Primitive) (Model, error) {
	model := newModel(name)
	doc := imp.doc

	if prim.Mode != gltf.PrimitiveTriangles {
		return model, fmt.Errorf("primitive mode %d is not a triangle list", prim.Mode)
	}

	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return model, fmt.Errorf("positions are missing")
	}
	acr, err := imp.accessor(posIdx)
	if err != nil {
		return model, err
	}
	positions, err := modeler.ReadPosition(doc, acr, nil)
	if err != nil {
		return model, fmt.Errorf("could not read positions: %w", err)
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if acr, err = imp.accessor(idx); err != nil {
			return model, err
		}
		if normals, err = modeler.ReadNormal(doc, acr, nil); err != nil {
			return model, fmt.Errorf("could not read normals: %w", err)
		}
		if len(normals) != len(positions) {
			return model, fmt.Errorf("%d normals for %d positions", len(normals), len(positions))
		}
	}

	var uvs [][2]float32
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if acr, err = imp.accessor(idx); err != nil {
			return model, err
		}
		if uvs, err = modeler.ReadTextureCoord(doc, acr, nil); err != nil {
			return model, fmt.Errorf("could not read texture coordinates: %w", err)
		}
		if len(uvs) != len(positions) {
			return model, fmt.Errorf("%d texture coordinates for %d positions", len(uvs), len(positions))
		}
	}

	var tangents [][4]float32
	if idx, ok := prim.Attributes["TANGENT"]; ok && normals != nil {
		if acr, err = imp.accessor(idx); err != nil {
			return model, err
		}
		if tangents, err = modeler.ReadTangent(doc, acr, nil); err != nil {
			return model, fmt.Errorf("could not read tangents: %w", err)
		}
		if len(tangents) != len(positions) {
			return model, fmt.Errorf("%d tangents for %d positions", len(tangents), len(positions))
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		if acr, err = imp.accessor(*prim.Indices); err != nil {
			return model, err
		}
		if indices, err = modeler.ReadIndices(doc, acr, nil); err != nil {
			return model, fmt.Errorf("could not read indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	vertices := make([]drum.Vertex, len(positions))
	for i, p := range positions {
		v := &vertices[i]
		v.Position = p
		if normals != nil {
			v.Normal = mgl32.Vec3(normals[i])
		}
		if uvs != nil {
			v.Uv = mgl32.Vec2(uvs[i])
		}
		if tangents != nil {
			v.Tangent = mgl32.Vec3{tangents[i][0], tangents[i][1], tangents[i][2]}
		}
	}

	model.Mesh = drum.Mesh{Vertices: vertices, Indices: indices}
	if err := finishMesh(&model.Mesh, normals != nil, tangents != nil); err != nil {
		return model, err
	}

	if prim.Material != nil {
		if err := imp.material(*prim.Material, &model); err != nil {
			return model, err
		}
	}
	return model, nil
}

func (imp *gltfImporter) material(idx int, model *Model) error {
	doc := imp.doc
	if idx < 0 || idx >= len(doc.Materials) {
		return fmt.Errorf("material %d does not exist", idx)
	}
	mat := doc.Materials[idx]
	m := &model.Material

	// glTF defaults to a fully metallic, fully rough surface
	m.Metallic, m.Roughness = 1, 1
	if pbr := mat.PBRMetallicRoughness; pbr != nil {
		bc := pbr.BaseColorFactorOrDefault()
		m.BaseColor = mgl32.Vec4{float32(bc[0]), float32(bc[1]), float32(bc[2]), float32(bc[3])}
		m.Metallic = float32(pbr.MetallicFactorOrDefault())
		m.Roughness = float32(pbr.RoughnessFactorOrDefault())

		if pbr.BaseColorTexture != nil {
			if err := imp.setSlot(model, drum.SlotDiffuse, pbr.BaseColorTexture.Index); err != nil {
				return err
			}
		}
		if pbr.MetallicRoughnessTexture != nil {
			if err := imp.setSlot(model, drum.SlotMetallicRoughness, pbr.MetallicRoughnessTexture.Index); err != nil {
				return err
			}
		}
	}

	if mat.NormalTexture != nil && mat.NormalTexture.Index != nil {
		if err := imp.setSlot(model, drum.SlotNormal, *mat.NormalTexture.Index); err != nil {
			return err
		}
	}
	if mat.OcclusionTexture != nil && mat.OcclusionTexture.Index != nil {
		if err := imp.setSlot(model, drum.SlotOcclusion, *mat.OcclusionTexture.Index); err != nil {
			return err
		}
	}
	if mat.EmissiveTexture != nil {
		if err := imp.setSlot(model, drum.SlotEmission, mat.EmissiveTexture.Index); err != nil {
			return err
		}
	}

	ef := mat.EmissiveFactor
	m.Emissive = mgl32.Vec3{float32(ef[0]), float32(ef[1]), float32(ef[2])}
	m.Transparent = mat.AlphaMode == gltf.AlphaBlend
	return nil
}

func (imp *gltfImporter) setSlot(model *Model, slot drum.MaterialSlot, texture int) error {
	img, err := imp.image(texture)
	if err != nil {
		return fmt.Errorf("%v texture: %w", slot, err)
	}
	model.Images[slot] = img
	return nil
}

func (imp *gltfImporter) image(texture int) (int, error) {
	doc := imp.doc
	if texture < 0 || texture >= len(doc.Textures) {
		return NoImage, fmt.Errorf("texture %d does not exist", texture)
	}
	src := doc.Textures[texture].Source
	if src == nil {
		return NoImage, nil
	}
	if *src < 0 || *src >= len(doc.Images) {
		return NoImage, fmt.Errorf("texture %d references image %d which does not exist", texture, *src)
	}
	if i, ok := imp.images[*src]; ok {
		return i, nil
	}

	img := doc.Images[*src]
	name := img.Name
	if name == "" {
		base, _, _ := strings.Cut(filepath.Base(imp.path), ".")
		name = fmt.Sprintf("%s-image%d", base, *src)
	}
	key := fmt.Sprintf("%s#%d", imp.path, *src)

	var i int
	switch {
	case img.BufferView != nil:
		data, err := imp.bufferView(*img.BufferView)
		if err != nil {
			return NoImage, fmt.Errorf("image %d: %w", *src, err)
		}
		i = imp.scene.AddImageData(key, name, data)
	case img.IsEmbeddedResource():
		data, err := img.MarshalData()
		if err != nil {
			return NoImage, fmt.Errorf("image %d: %w", *src, err)
		}
		i = imp.scene.AddImageData(key, name, data)
	case img.URI != "":
		uri, err := url.PathUnescape(img.URI)
		if err != nil {
			uri = img.URI
		}
		i = imp.scene.AddImageFile(filepath.Join(imp.dir, filepath.FromSlash(uri)))
	default:
		return NoImage, fmt.Errorf("image %d has no data", *src)
	}

	imp.images[*src] = i
	return i, nil
}
