package libscn

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/liblog"

	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

// name of the object faces are added to before any "o" or "g" line
const objDefaultObject = "default"

// objIndexAbsent is what the decoder stores for a missing uv or normal index.
const objIndexAbsent = math.MaxUint32

// objSource is what the decoder does not keep of an OBJ file: the element
// kinds it skips, material names and the MTL extensions for PBR slots.
type objSource struct {
	path string
	dir  string

	usedMaterials map[string]bool
	defaultObject bool
	mtl           bytes.Buffer
	extensions    map[string]*objExtension
}

// objExtension holds the MTL statements of one material that the decoder
// ignores or reads without telling whether they were present.
type objExtension struct {
	declared  map[string]bool
	emissive  mgl32.Vec3
	dissolve  float32
	metallic  float32
	roughness float32
	images    [drum.SlotCount]string
}

type objCorner struct {
	position, uv, normal int
}

// ImportObj reads a Wavefront OBJ file and the MTL libraries it references.
// Faces are grouped into one Model per object and material, polygons are fan
// triangulated.
func ImportObj(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, path, err)
	}

	src := &objSource{
		path:          path,
		dir:           filepath.Dir(path),
		usedMaterials: map[string]bool{},
		extensions:    map[string]*objExtension{},
	}
	libs, err := src.scanObj(data)
	if err != nil {
		return nil, err
	}
	for _, lib := range libs {
		if err := src.loadMtl(filepath.Join(src.dir, filepath.FromSlash(lib))); err != nil {
			return nil, err
		}
	}

	if src.defaultObject {
		data = append([]byte("o "+objDefaultObject+"\n"), data...)
	}
	dec, err := obj.DecodeReader(bytes.NewReader(data), bytes.NewReader(src.mtl.Bytes()))
	if err != nil {
		return nil, liberr.Importf(path, "%w", err)
	}
	for _, w := range dec.Warnings {
		liblog.Logger().Debug("obj decoder warning", "path", path, "warning", w)
	}

	scene, err := src.build(dec)
	if err != nil {
		return nil, err
	}
	liblog.Logger().Debug("imported obj", "path", path, "models", len(scene.Models), "images", len(scene.Images))
	return scene, nil
}

// scanObj rejects line and point elements and returns the MTL libraries.
func (src *objSource) scanObj(data []byte) ([]string, error) {
	var libs []string
	named := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "l", "p":
			return nil, liberr.Importf(src.path, "line %d: %q elements are not supported, only triangles and polygons", line, fields[0])
		case "o", "g":
			named = named || len(fields) > 1
		case "f", "usemtl":
			if !named {
				src.defaultObject = true
				named = true
			}
			if fields[0] == "usemtl" && len(fields) > 1 {
				src.usedMaterials[fields[1]] = true
			}
		case "mtllib":
			libs = append(libs, fields[1:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, liberr.Wrap(liberr.KindIo, src.path, err)
	}
	return libs, nil
}

// loadMtl appends the library to the decoder input and records the
// statements it does not cover.
func (src *objSource) loadMtl(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return liberr.Wrap(liberr.KindIo, path, err)
	}
	src.mtl.Write(data)
	src.mtl.WriteByte('\n')

	var current *objExtension
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		key, args := fields[0], fields[1:]

		if key == "newmtl" {
			current = &objExtension{declared: map[string]bool{}}
			src.extensions[args[0]] = current
			continue
		}
		if current == nil {
			continue
		}
		current.declared[key] = true

		switch key {
		case "Ke":
			current.emissive = parseObjVec3(args)
		case "Tr":
			current.dissolve = 1 - parseObjFloat(args[0])
		case "Pm":
			current.metallic = parseObjFloat(args[0])
		case "Pr":
			current.roughness = parseObjFloat(args[0])
		case "map_Bump", "map_bump", "bump", "norm":
			current.images[drum.SlotNormal] = mapFile(args)
		case "map_ORM":
			current.images[drum.SlotMetallicRoughness] = mapFile(args)
		case "map_Ka", "map_AO":
			current.images[drum.SlotOcclusion] = mapFile(args)
		case "map_Ke":
			current.images[drum.SlotEmission] = mapFile(args)
		}
	}
	if err := scanner.Err(); err != nil {
		return liberr.Wrap(liberr.KindIo, path, err)
	}
	return nil
}

// parseObjFloat reads a malformed value as zero like the decoder does.
func parseObjFloat(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

func parseObjVec3(args []string) mgl32.Vec3 {
	var v mgl32.Vec3
	for i := 0; i < len(args) && i < 3; i++ {
		v[i] = parseObjFloat(args[i])
	}
	return v
}

// mapFile drops texture map options such as "-bm 0.5" and keeps the file name.
func mapFile(args []string) string {
	return args[len(args)-1]
}

type objGroup struct {
	name     string
	material string
	faces    []obj.Face
}

// groups splits the faces of every object by material, in order of first use.
func (src *objSource) groups(dec *obj.Decoder) []*objGroup {
	base, _, _ := strings.Cut(filepath.Base(src.path), ".")
	var groups []*objGroup
	for i := range dec.Objects {
		o := &dec.Objects[i]
		name := o.Name
		if i == 0 && src.defaultObject {
			name = base
		}

		byMaterial := map[string]*objGroup{}
		for _, face := range o.Faces {
			material := face.Material
			if !src.usedMaterials[material] {
				material = ""
			}
			g, ok := byMaterial[material]
			if !ok {
				g = &objGroup{name: name, material: material}
				byMaterial[material] = g
				groups = append(groups, g)
			}
			g.faces = append(g.faces, face)
		}
	}
	return groups
}

func (src *objSource) build(dec *obj.Decoder) (*Scene, error) {
	scene := NewScene()
	positions := len(dec.Vertices) / 3
	uvs := len(dec.Uvs) / 2
	normals := len(dec.Normals) / 3

	used := map[string]bool{}
	for _, g := range src.groups(dec) {
		name := g.name
		if g.material != "" {
			name += "." + g.material
		}
		if used[name] {
			name = fmt.Sprintf("%s.%d", name, len(scene.Models))
		}
		used[name] = true

		corners := make([][]objCorner, len(g.faces))
		hasNormals := true
		hasUvs := true
		for fi, face := range g.faces {
			corners[fi] = make([]objCorner, len(face.Vertices))
			for j := range face.Vertices {
				c := objCorner{position: face.Vertices[j], uv: -1, normal: -1}
				if c.position < 0 || c.position >= positions {
					return nil, liberr.Importf(src.path, "object %q: position index %d is out of range for %d elements", name, c.position+1, positions)
				}
				if j < len(face.Uvs) && face.Uvs[j] != objIndexAbsent {
					if c.uv = face.Uvs[j]; c.uv < 0 || c.uv >= uvs {
						return nil, liberr.Importf(src.path, "object %q: texture coordinate index %d is out of range for %d elements", name, c.uv+1, uvs)
					}
				}
				if j < len(face.Normals) && face.Normals[j] != objIndexAbsent {
					if c.normal = face.Normals[j]; c.normal < 0 || c.normal >= normals {
						return nil, liberr.Importf(src.path, "object %q: normal index %d is out of range for %d elements", name, c.normal+1, normals)
					}
				}
				hasNormals = hasNormals && c.normal >= 0
				hasUvs = hasUvs && c.uv >= 0
				corners[fi][j] = c
			}
		}

		model := newModel(name)
		index := map[objCorner]uint32{}
		for _, face := range corners {
			ids := make([]uint32, len(face))
			for j, c := range face {
				if !hasNormals {
					c.normal = -1
				}
				if !hasUvs {
					c.uv = -1
				}
				id, ok := index[c]
				if !ok {
					v := drum.Vertex{Position: mgl32.Vec3{dec.Vertices[c.position*3], dec.Vertices[c.position*3+1], dec.Vertices[c.position*3+2]}}
					if c.uv >= 0 {
						v.Uv = mgl32.Vec2{dec.Uvs[c.uv*2], dec.Uvs[c.uv*2+1]}
					}
					if c.normal >= 0 {
						n := mgl32.Vec3{dec.Normals[c.normal*3], dec.Normals[c.normal*3+1], dec.Normals[c.normal*3+2]}
						if n.Len() > 0 {
							v.Normal = n.Normalize()
						}
					}
					id = uint32(len(model.Mesh.Vertices))
					model.Mesh.Vertices = append(model.Mesh.Vertices, v)
					index[c] = id
				}
				ids[j] = id
			}
			for j := 1; j+1 < len(ids); j++ {
				model.Mesh.Indices = append(model.Mesh.Indices, ids[0], ids[j], ids[j+1])
			}
		}

		if err := finishMesh(&model.Mesh, hasNormals, false); err != nil {
			return nil, liberr.Importf(src.path, "object %q: %w", name, err)
		}

		if g.material != "" {
			if err := src.material(dec, g.material, &model, scene); err != nil {
				return nil, liberr.Importf(src.path, "object %q: %w", name, err)
			}
		}

		model.Instances = []drum.Instance{{Transform: mgl32.Ident4()}}
		scene.Models = append(scene.Models, model)
	}

	return scene, nil
}

// material merges the decoded material with its extension statements.
func (src *objSource) material(dec *obj.Decoder, name string, model *Model, scene *Scene) error {
	ext, ok := src.extensions[name]
	mat := dec.Materials[name]
	if !ok || mat == nil {
		return fmt.Errorf("undefined material %q", name)
	}

	m := drum.NewMaterial()
	if ext.declared["Kd"] {
		m.BaseColor = mgl32.Vec4{mat.Diffuse.R, mat.Diffuse.G, mat.Diffuse.B, m.BaseColor.W()}
	}
	switch {
	case ext.declared["d"]:
		m.BaseColor[3] = mat.Opacity
	case ext.declared["Tr"]:
		m.BaseColor[3] = ext.dissolve
	}
	m.Transparent = m.BaseColor.W() < 1
	if ext.declared["Ke"] {
		m.Emissive = ext.emissive
	}
	if ext.declared["Pm"] {
		m.Metallic = ext.metallic
	}
	if ext.declared["Pr"] {
		m.Roughness = ext.roughness
	}
	model.Material = m

	images := ext.images
	images[drum.SlotDiffuse] = mat.MapKd
	for slot, file := range images {
		if file != "" {
			model.Images[slot] = scene.AddImageFile(filepath.Join(src.dir, filepath.FromSlash(file)))
		}
	}
	return nil
}
