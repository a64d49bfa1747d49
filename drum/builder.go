package drum

import (
	"github.com/google/uuid"
)

// Builder assembles a Drum. Handles returned by AddTexture are valid for
// materials added to the same builder.
type Builder struct {
	drum Drum
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddTexture(tex Texture) TextureHandle {
	b.drum.Textures = append(b.drum.Textures, tex)
	return TextureHandle(len(b.drum.Textures) - 1)
}

// AddModel stores m and fills in its bounds.
func (b *Builder) AddModel(m Model) {
	m.Bounds = m.Mesh.Bounds()
	b.drum.Models = append(b.drum.Models, m)
}

func (b *Builder) AddLight(l Light) {
	b.drum.Lights = append(b.drum.Lights, l)
}

// SetEnvironment adds the baked lighting textures. Nil textures leave their slot empty.
func (b *Builder) SetEnvironment(irradiance, prefiltered, brdfLut *Texture) {
	env := &Environment{}
	for i, tex := range []*Texture{irradiance, prefiltered, brdfLut} {
		env.Textures[i] = NoTexture
		if tex != nil {
			env.Textures[i] = b.AddTexture(*tex)
		}
	}
	if prefiltered != nil {
		env.PrefilteredMips = prefiltered.Mips
	}
	b.drum.Environment = env
}

// Build validates the collected data and returns the finished Drum.
// The builder must not be used afterwards.
func (b *Builder) Build() (*Drum, error) {
	d := b.drum
	d.ID = uuid.New()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	b.drum = Drum{}
	return &d, nil
}
