package drum

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"drumkit/liberr"
	"drumkit/libio"
	"drumkit/liblog"

	"github.com/pierrec/lz4/v4"
)

type EncodeContext struct {
	Compression Compression
	Level       lz4.CompressionLevel
}

type EncodeOption func(ctx *EncodeContext) error

// OptCompress sets the lz4 level of every section from 0 (fast) to 9.
// A negative level stores sections uncompressed.
func OptCompress(level int) EncodeOption {
	levels := []lz4.CompressionLevel{lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9}
	if level >= len(levels) {
		level = len(levels) - 1
	}

	return func(ctx *EncodeContext) error {
		if level < 0 {
			ctx.Compression = CompressionNone
			return nil
		}
		ctx.Compression = CompressionLZ4
		ctx.Level = levels[level]
		return nil
	}
}

type section struct {
	kind SectionKind
	raw  []byte
}

// Encode writes d as a container. Sections are compressed with lz4 at the
// fast level unless configured otherwise.
func Encode(w io.Writer, d *Drum, options ...EncodeOption) (err error) {
	ctx := EncodeContext{
		Compression: CompressionLZ4,
		Level:       lz4.Fast,
	}
	for _, opt := range options {
		if opt != nil {
			if err := opt(&ctx); err != nil {
				return err
			}
		}
	}

	if err := d.Validate(); err != nil {
		return err
	}

	sections, err := encodeSections(d)
	if err != nil {
		return err
	}

	toc := make([]TocEntry, len(sections))
	payloads := make([][]byte, len(sections))
	offset := uint64(headerSize + tocEntrySize*len(sections))
	for i, s := range sections {
		payload := s.raw
		if ctx.Compression == CompressionLZ4 {
			payload, err = compressSection(s.raw, ctx.Level)
			if err != nil {
				return fmt.Errorf("could not compress %v section %d: %w", s.kind, i, err)
			}
		}
		payloads[i] = payload
		toc[i] = TocEntry{
			Kind:        s.kind,
			Compression: ctx.Compression,
			Offset:      offset,
			Length:      uint64(len(payload)),
			RawLength:   uint64(len(s.raw)),
			Checksum:    crc32.ChecksumIEEE(s.raw),
		}
		offset += uint64(len(payload))
	}

	bw := libio.NewBinaryWriter(w)
	header := Header{
		Check:        MagicNumberDRUM,
		Version:      CurrentVersion,
		SectionCount: uint32(len(sections)),
		ID:           d.ID,
	}
	if !bw.WriteRef(&header) {
		return liberr.Wrap(liberr.KindIo, "", fmt.Errorf("could not write drum header: %w", bw.Err))
	}
	if !bw.WriteRef(toc) {
		return liberr.Wrap(liberr.KindIo, "", fmt.Errorf("could not write drum section table: %w", bw.Err))
	}
	for i, p := range payloads {
		if !bw.WriteBytes(p) {
			return liberr.Wrap(liberr.KindIo, "", fmt.Errorf("could not write %v section %d: %w", toc[i].Kind, i, bw.Err))
		}
	}

	liblog.Logger().Debug("encoded drum", "sections", len(sections), "bytes", offset)
	return nil
}

// Marshal encodes d into memory.
func Marshal(d *Drum, options ...EncodeOption) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := Encode(buf, d, options...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes d to name. The container is written to a temporary file
// next to name and renamed into place, so a failure never leaves a partial file.
func WriteFile(name string, d *Drum, options ...EncodeOption) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return liberr.Wrap(liberr.KindIo, name, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, d, options...); err != nil {
		return liberr.Wrap(liberr.KindIo, name, err)
	}
	if err = tmp.Close(); err != nil {
		return liberr.Wrap(liberr.KindIo, name, err)
	}
	if err = os.Rename(tmp.Name(), name); err != nil {
		return liberr.Wrap(liberr.KindIo, name, err)
	}
	return nil
}

func compressSection(raw []byte, level lz4.CompressionLevel) ([]byte, error) {
	buf := new(bytes.Buffer)
	lzw := lz4.NewWriter(buf)
	if err := lzw.Apply(lz4.CompressionLevelOption(level)); err != nil {
		return nil, err
	}
	if _, err := lzw.Write(raw); err != nil {
		return nil, err
	}
	if err := lzw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeSections serializes d in canonical order: textures, models, lights, environment.
func encodeSections(d *Drum) ([]section, error) {
	sections := make([]section, 0, len(d.Textures)+len(d.Models)+2)

	for i := range d.Textures {
		raw, err := encodeTexture(&d.Textures[i])
		if err != nil {
			return nil, fmt.Errorf("could not encode texture %d: %w", i, err)
		}
		sections = append(sections, section{kind: SectionTexture, raw: raw})
	}

	for i := range d.Models {
		raw, err := encodeModel(&d.Models[i])
		if err != nil {
			return nil, fmt.Errorf("could not encode model %d: %w", i, err)
		}
		sections = append(sections, section{kind: SectionModel, raw: raw})
	}

	buf := new(bytes.Buffer)
	bw := libio.NewBinaryWriter(buf)
	bw.WriteUInt32(uint32(len(d.Lights)))
	bw.WriteRef(d.Lights)
	if bw.Err != nil {
		return nil, fmt.Errorf("could not encode lights: %w", bw.Err)
	}
	sections = append(sections, section{kind: SectionLights, raw: buf.Bytes()})

	if env := d.Environment; env != nil {
		buf := new(bytes.Buffer)
		bw := libio.NewBinaryWriter(buf)
		bw.WriteRef(environmentRecord{
			Textures:        env.Textures,
			PrefilteredMips: uint32(env.PrefilteredMips),
		})
		if bw.Err != nil {
			return nil, fmt.Errorf("could not encode environment: %w", bw.Err)
		}
		sections = append(sections, section{kind: SectionEnvironment, raw: buf.Bytes()})
	}

	return sections, nil
}

func encodeTexture(tex *Texture) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(tex.Data)+64))
	bw := libio.NewBinaryWriter(buf)

	var flags uint32
	if tex.Cubemap {
		flags |= textureFlagCubemap
	}
	if tex.Compressed {
		flags |= textureFlagCompressed
	}

	bw.WriteRef(textureRecord{
		Format:     tex.Format,
		Width:      uint32(tex.Width),
		Height:     uint32(tex.Height),
		Mips:       uint32(tex.Mips),
		Flags:      flags,
		ColorSpace: tex.ColorSpace,
		DataLength: uint64(len(tex.Data)),
	})
	bw.WriteString(tex.Name)
	bw.WriteBytes(tex.Data)
	return buf.Bytes(), bw.Err
}

func encodeModel(m *Model) ([]byte, error) {
	buf := new(bytes.Buffer)
	bw := libio.NewBinaryWriter(buf)

	mat := &m.Material
	var flags uint32
	if mat.Transparent {
		flags |= materialFlagTransparent
	}

	bw.WriteString(m.Name)
	bw.WriteRef(meshRecord{
		VertexCount:   uint32(len(m.Mesh.Vertices)),
		IndexCount:    uint32(len(m.Mesh.Indices)),
		InstanceCount: uint32(len(m.Instances)),
		Bounds:        [2][3]float32{m.Bounds.Min, m.Bounds.Max},
	})
	bw.WriteRef(materialRecord{
		Textures:  mat.Textures,
		BaseColor: mat.BaseColor,
		Metallic:  mat.Metallic,
		Roughness: mat.Roughness,
		Emissive:  mat.Emissive,
		Flags:     flags,
	})
	bw.WriteRef(m.Mesh.Vertices)
	bw.WriteRef(m.Mesh.Indices)
	bw.WriteRef(m.Instances)
	return buf.Bytes(), bw.Err
}
