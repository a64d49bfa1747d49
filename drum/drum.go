// Package drum defines the baked scene container and its binary encoding.
//
// A Drum holds a texture table, models that reference textures through
// handles, point lights and an optional set of image based lighting textures.
// Drums are assembled with a Builder and are read-only afterwards.
package drum

import (
	"fmt"

	"drumkit/liberr"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// TextureHandle indexes the texture table of a Drum.
type TextureHandle uint32

// NoTexture marks an absent material or environment slot.
const NoTexture = TextureHandle(0xffffffff)

type ColorSpace uint32

const (
	ColorSpaceLinear = ColorSpace(iota)
	ColorSpaceSrgb
)

func (cs ColorSpace) String() string {
	if cs == ColorSpaceSrgb {
		return "srgb"
	}
	return "linear"
}

type Texture struct {
	Name       string
	Format     Format
	Width      int
	Height     int
	Mips       int
	Cubemap    bool
	Compressed bool
	ColorSpace ColorSpace
	// Mip major: every level holds all faces, each face stores rows top to bottom.
	Data []byte
}

// MaxTextureSize bounds the edge length of a texture so that its data size
// cannot overflow.
const MaxTextureSize = 1 << 16

// MipSize is the edge length of mip level lvl for a base edge length dim.
func MipSize(dim, lvl int) int {
	return max(1, dim>>lvl)
}

// MaxMips is the length of the full mip chain down to 1x1.
func MaxMips(width, height int) int {
	n := 1
	for d := max(width, height); d > 1; d >>= 1 {
		n++
	}
	return n
}

func (tex *Texture) Faces() int {
	if tex.Cubemap {
		return 6
	}
	return 1
}

func (tex *Texture) FaceSize(lvl int) int {
	return tex.Format.SurfaceSize(MipSize(tex.Width, lvl), MipSize(tex.Height, lvl))
}

func (tex *Texture) LevelSize(lvl int) int {
	return tex.FaceSize(lvl) * tex.Faces()
}

// DataSize is the number of bytes Data must hold.
func (tex *Texture) DataSize() int {
	size := 0
	for lvl := 0; lvl < tex.Mips; lvl++ {
		size += tex.LevelSize(lvl)
	}
	return size
}

func (tex *Texture) levelOffset(lvl int) int {
	offset := 0
	for l := 0; l < lvl; l++ {
		offset += tex.LevelSize(l)
	}
	return offset
}

// Level returns all faces of mip level lvl.
func (tex *Texture) Level(lvl int) []byte {
	start := tex.levelOffset(lvl)
	return tex.Data[start : start+tex.LevelSize(lvl)]
}

func (tex *Texture) Face(lvl, face int) []byte {
	start := tex.levelOffset(lvl) + face*tex.FaceSize(lvl)
	return tex.Data[start : start+tex.FaceSize(lvl)]
}

func (tex *Texture) Validate() error {
	if !tex.Format.Valid() {
		return fmt.Errorf("texture %q has unknown format %d", tex.Name, tex.Format)
	}
	if tex.Width < 1 || tex.Height < 1 {
		return fmt.Errorf("texture %q has zero size %dx%d", tex.Name, tex.Width, tex.Height)
	}
	if tex.Width > MaxTextureSize || tex.Height > MaxTextureSize {
		return fmt.Errorf("texture %q size %dx%d exceeds %d", tex.Name, tex.Width, tex.Height, MaxTextureSize)
	}
	if tex.Mips < 1 || tex.Mips > MaxMips(tex.Width, tex.Height) {
		return fmt.Errorf("texture %q has %d mip levels, expected 1 to %d", tex.Name, tex.Mips, MaxMips(tex.Width, tex.Height))
	}
	if tex.Cubemap && tex.Width != tex.Height {
		return fmt.Errorf("cubemap %q faces are not square: %dx%d", tex.Name, tex.Width, tex.Height)
	}
	if tex.Compressed != tex.Format.Compressed() {
		return fmt.Errorf("texture %q compression flag does not match format %v", tex.Name, tex.Format)
	}
	if tex.Format.Srgb() && tex.ColorSpace != ColorSpaceSrgb {
		return fmt.Errorf("texture %q has srgb format %v but %v color space", tex.Name, tex.Format, tex.ColorSpace)
	}
	if len(tex.Data) != tex.DataSize() {
		return fmt.Errorf("texture %q holds %d bytes, expected %d", tex.Name, len(tex.Data), tex.DataSize())
	}
	return nil
}

// Vertex attributes in the order they are stored.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Uv       mgl32.Vec2
	Tangent  mgl32.Vec3
}

// Mesh is a triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

func (mesh *Mesh) Validate() error {
	if len(mesh.Indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(mesh.Indices))
	}
	for i, idx := range mesh.Indices {
		if int(idx) >= len(mesh.Vertices) {
			return fmt.Errorf("index %d at %d is out of range for %d vertices", idx, i, len(mesh.Vertices))
		}
	}
	return nil
}

// Bounds of the vertex positions. An empty mesh has zero bounds.
func (mesh *Mesh) Bounds() Bounds {
	if len(mesh.Vertices) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: mesh.Vertices[0].Position, Max: mesh.Vertices[0].Position}
	for _, v := range mesh.Vertices[1:] {
		for i := 0; i < 3; i++ {
			b.Min[i] = min(b.Min[i], v.Position[i])
			b.Max[i] = max(b.Max[i], v.Position[i])
		}
	}
	return b
}

type Bounds struct {
	Min, Max mgl32.Vec3
}

func (b Bounds) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// MaterialSlot is the position of a texture in Material.Textures.
type MaterialSlot int

const (
	SlotDiffuse = MaterialSlot(iota)
	SlotNormal
	// metallic-roughness, or a combined occlusion-roughness-metallic texture
	SlotMetallicRoughness
	SlotOcclusion
	SlotEmission
	SlotCount
)

func (s MaterialSlot) String() string {
	switch s {
	case SlotDiffuse:
		return "diffuse"
	case SlotNormal:
		return "normal"
	case SlotMetallicRoughness:
		return "metallic-roughness"
	case SlotOcclusion:
		return "occlusion"
	case SlotEmission:
		return "emission"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

type Material struct {
	Textures    [SlotCount]TextureHandle
	BaseColor   mgl32.Vec4
	Metallic    float32
	Roughness   float32
	Emissive    mgl32.Vec3
	Transparent bool
}

// NewMaterial returns a material without textures and neutral factors.
func NewMaterial() Material {
	mat := Material{
		BaseColor: mgl32.Vec4{1, 1, 1, 1},
		Metallic:  0,
		Roughness: 1,
	}
	for i := range mat.Textures {
		mat.Textures[i] = NoTexture
	}
	return mat
}

// Instance places a model in the world.
type Instance struct {
	Transform mgl32.Mat4
}

type Light struct {
	Position  mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
}

// DefaultLight is used by the pack tool when a scene has no lights.
func DefaultLight() Light {
	return Light{
		Position:  mgl32.Vec3{200, 200, 200},
		Color:     mgl32.Vec3{1.0, 0.9, 0.8},
		Intensity: 10,
	}
}

type Model struct {
	Name      string
	Mesh      Mesh
	Material  Material
	Instances []Instance
	Bounds    Bounds
}

// IblSlot is the position of a texture in Environment.Textures.
type IblSlot int

const (
	IblIrradiance = IblSlot(iota)
	IblPrefiltered
	IblBrdfLut
	IblSlotCount
)

func (s IblSlot) String() string {
	switch s {
	case IblIrradiance:
		return "irradiance"
	case IblPrefiltered:
		return "prefiltered"
	case IblBrdfLut:
		return "brdf-lut"
	}
	return fmt.Sprintf("ibl(%d)", int(s))
}

type Environment struct {
	Textures        [IblSlotCount]TextureHandle
	PrefilteredMips int
}

type Drum struct {
	ID          uuid.UUID
	Textures    []Texture
	Models      []Model
	Lights      []Light
	Environment *Environment
}

func (d *Drum) Texture(h TextureHandle) (*Texture, bool) {
	if h == NoTexture || int(h) >= len(d.Textures) {
		return nil, false
	}
	return &d.Textures[h], true
}

func (d *Drum) checkHandle(h TextureHandle) error {
	if h == NoTexture || int(h) < len(d.Textures) {
		return nil
	}
	return fmt.Errorf("texture handle %d is out of range for %d textures", h, len(d.Textures))
}

// Validate checks every cross reference and texture invariant.
// The returned error is a FormatError.
func (d *Drum) Validate() error {
	for i := range d.Textures {
		if err := d.Textures[i].Validate(); err != nil {
			return liberr.Formatf("texture %d: %w", i, err)
		}
	}

	for i := range d.Models {
		m := &d.Models[i]
		if err := m.Mesh.Validate(); err != nil {
			return liberr.Formatf("model %d %q: %w", i, m.Name, err)
		}
		for slot, h := range m.Material.Textures {
			if err := d.checkHandle(h); err != nil {
				return liberr.Formatf("model %d %q %v slot: %w", i, m.Name, MaterialSlot(slot), err)
			}
		}
	}

	if env := d.Environment; env != nil {
		for slot, h := range env.Textures {
			if err := d.checkHandle(h); err != nil {
				return liberr.Formatf("environment %v slot: %w", IblSlot(slot), err)
			}
		}
		if tex, ok := d.Texture(env.Textures[IblIrradiance]); ok && !tex.Cubemap {
			return liberr.Formatf("environment irradiance texture %q is not a cubemap", tex.Name)
		}
		if tex, ok := d.Texture(env.Textures[IblPrefiltered]); ok {
			if !tex.Cubemap {
				return liberr.Formatf("environment prefiltered texture %q is not a cubemap", tex.Name)
			}
			if tex.Mips != env.PrefilteredMips {
				return liberr.Formatf("environment prefiltered texture %q has %d mips, expected %d", tex.Name, tex.Mips, env.PrefilteredMips)
			}
		}
		if tex, ok := d.Texture(env.Textures[IblBrdfLut]); ok && tex.Cubemap {
			return liberr.Formatf("environment brdf lut %q must be a 2d texture", tex.Name)
		}
	}

	return nil
}
