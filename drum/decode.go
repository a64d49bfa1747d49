package drum

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"drumkit/liberr"
	"drumkit/libio"

	"github.com/pierrec/lz4/v4"
)

// Decode reads a whole container from r. See Unmarshal.
func Decode(r io.Reader) (*Drum, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, "", fmt.Errorf("could not read drum: %w", err))
	}
	return Unmarshal(data)
}

func ReadFile(name string) (*Drum, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, name, err)
	}
	d, err := Unmarshal(data)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindFormat, name, err)
	}
	return d, nil
}

// Unmarshal decodes a container. Magic number and version are checked before
// any section is touched; every failure is a FormatError and no partial Drum
// is returned.
func Unmarshal(data []byte) (*Drum, error) {
	br := libio.NewBinaryReader(bytes.NewReader(data))

	header := Header{}
	if !br.ReadRef(&header) {
		return nil, liberr.Formatf("expected drum header; byte 0x%08x", br.LastIndex)
	}

	if header.Check != MagicNumberDRUM {
		return nil, liberr.Formatf("drum header is corrupt; byte 0x%08x", br.LastIndex)
	}

	if header.Version != CurrentVersion {
		return nil, liberr.Formatf("drum version %d unsupported, expected %d; byte 0x%08x", header.Version, CurrentVersion, br.LastIndex)
	}

	tocEnd := uint64(headerSize) + uint64(header.SectionCount)*tocEntrySize
	if tocEnd > uint64(len(data)) {
		return nil, liberr.Formatf("drum section table with %d entries is truncated", header.SectionCount)
	}

	toc := make([]TocEntry, header.SectionCount)
	if !br.ReadRef(toc) {
		return nil, liberr.Formatf("expected drum section table; byte 0x%08x: %w", br.LastIndex, br.Err)
	}

	d := &Drum{ID: header.ID}
	seen := map[SectionKind]bool{}
	for i, entry := range toc {
		if seen[entry.Kind] && (entry.Kind == SectionLights || entry.Kind == SectionEnvironment) {
			return nil, liberr.Formatf("duplicate %v section %d", entry.Kind, i)
		}
		seen[entry.Kind] = true

		if entry.Offset < tocEnd || entry.Offset > uint64(len(data)) || entry.Length > uint64(len(data))-entry.Offset {
			return nil, liberr.Formatf("%v section %d at 0x%08x+%d is out of bounds", entry.Kind, i, entry.Offset, entry.Length)
		}

		raw, err := readSection(data[entry.Offset:entry.Offset+entry.Length], entry)
		if err != nil {
			return nil, liberr.Formatf("%v section %d: %w", entry.Kind, i, err)
		}

		if err := decodeSection(d, entry.Kind, raw); err != nil {
			return nil, liberr.Formatf("%v section %d: %w", entry.Kind, i, err)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}

func readSection(payload []byte, entry TocEntry) ([]byte, error) {
	var raw []byte
	switch entry.Compression {
	case CompressionNone:
		raw = payload
	case CompressionLZ4:
		lzr := lz4.NewReader(bytes.NewReader(payload))
		var err error
		raw, err = io.ReadAll(io.LimitReader(lzr, int64(entry.RawLength)+1))
		if err != nil {
			return nil, fmt.Errorf("could not decompress: %w", err)
		}
	default:
		return nil, fmt.Errorf("compression id %d unsupported", entry.Compression)
	}

	if uint64(len(raw)) != entry.RawLength {
		return nil, fmt.Errorf("holds %d bytes, expected %d", len(raw), entry.RawLength)
	}
	if crc32.ChecksumIEEE(raw) != entry.Checksum {
		return nil, fmt.Errorf("checksum mismatch")
	}
	return raw, nil
}

func decodeSection(d *Drum, kind SectionKind, raw []byte) error {
	br := libio.NewBinaryReader(bytes.NewReader(raw))

	switch kind {
	case SectionTexture:
		tex, err := decodeTexture(br, len(raw))
		if err != nil {
			return err
		}
		d.Textures = append(d.Textures, *tex)
	case SectionModel:
		m, err := decodeModel(br, len(raw))
		if err != nil {
			return err
		}
		d.Models = append(d.Models, *m)
	case SectionLights:
		var count int
		if !br.ReadUInt32(&count) {
			return fmt.Errorf("expected light count: %w", br.Err)
		}
		if count*int(unsafe.Sizeof(Light{})) > len(raw) {
			return fmt.Errorf("light count %d exceeds section", count)
		}
		d.Lights = makeSlice[Light](count)
		if !br.ReadRef(d.Lights) {
			return fmt.Errorf("expected %d lights: %w", count, br.Err)
		}
	case SectionEnvironment:
		rec := environmentRecord{}
		if !br.ReadRef(&rec) {
			return fmt.Errorf("expected environment record: %w", br.Err)
		}
		d.Environment = &Environment{
			Textures:        rec.Textures,
			PrefilteredMips: int(rec.PrefilteredMips),
		}
	default:
		return fmt.Errorf("section kind %d unsupported", kind)
	}

	if br.Index != len(raw) {
		return fmt.Errorf("%d trailing bytes", len(raw)-br.Index)
	}
	return nil
}

func decodeTexture(br *libio.BinaryReader, size int) (*Texture, error) {
	rec := textureRecord{}
	if !br.ReadRef(&rec) {
		return nil, fmt.Errorf("expected texture record: %w", br.Err)
	}

	tex := &Texture{
		Format:     rec.Format,
		Width:      int(rec.Width),
		Height:     int(rec.Height),
		Mips:       int(rec.Mips),
		Cubemap:    rec.Flags&textureFlagCubemap != 0,
		Compressed: rec.Flags&textureFlagCompressed != 0,
		ColorSpace: rec.ColorSpace,
	}

	if !br.ReadString(&tex.Name, maxNameLength) {
		return nil, fmt.Errorf("expected texture name: %w", br.Err)
	}
	if rec.DataLength > uint64(size) {
		return nil, fmt.Errorf("texture %q data length %d exceeds section", tex.Name, rec.DataLength)
	}
	if !br.ReadBytes(int(rec.DataLength)) {
		return nil, fmt.Errorf("expected %d bytes of texture data: %w", rec.DataLength, br.Err)
	}
	tex.Data = bytes.Clone(br.Bytes())

	return tex, nil
}

func decodeModel(br *libio.BinaryReader, size int) (*Model, error) {
	m := &Model{}
	if !br.ReadString(&m.Name, maxNameLength) {
		return nil, fmt.Errorf("expected model name: %w", br.Err)
	}

	mesh := meshRecord{}
	mat := materialRecord{}
	if !br.ReadRef(&mesh) || !br.ReadRef(&mat) {
		return nil, fmt.Errorf("expected model %q records: %w", m.Name, br.Err)
	}

	need := int(mesh.VertexCount)*int(unsafe.Sizeof(Vertex{})) +
		int(mesh.IndexCount)*4 +
		int(mesh.InstanceCount)*int(unsafe.Sizeof(Instance{}))
	if need > size {
		return nil, fmt.Errorf("model %q counts exceed section", m.Name)
	}

	m.Mesh.Vertices = makeSlice[Vertex](int(mesh.VertexCount))
	m.Mesh.Indices = makeSlice[uint32](int(mesh.IndexCount))
	m.Instances = makeSlice[Instance](int(mesh.InstanceCount))
	if !br.ReadRef(m.Mesh.Vertices) || !br.ReadRef(m.Mesh.Indices) || !br.ReadRef(m.Instances) {
		return nil, fmt.Errorf("expected model %q geometry: %w", m.Name, br.Err)
	}

	m.Bounds = Bounds{Min: mesh.Bounds[0], Max: mesh.Bounds[1]}
	m.Material = Material{
		Textures:    mat.Textures,
		BaseColor:   mat.BaseColor,
		Metallic:    mat.Metallic,
		Roughness:   mat.Roughness,
		Emissive:    mat.Emissive,
		Transparent: mat.Flags&materialFlagTransparent != 0,
	}

	return m, nil
}

// makeSlice keeps empty tables nil so decoded drums compare equal to built ones.
func makeSlice[T any](n int) []T {
	if n == 0 {
		return nil
	}
	return make([]T, n)
}
