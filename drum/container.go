package drum

const MagicNumberDRUM = 0x4d555244

type Version uint32

const (
	Version1_000_000 = Version(1_000_000)
	CurrentVersion   = Version1_000_000
)

type SectionKind uint32

const (
	SectionTexture = SectionKind(iota + 1)
	SectionModel
	SectionLights
	SectionEnvironment
)

func (k SectionKind) String() string {
	switch k {
	case SectionTexture:
		return "texture"
	case SectionModel:
		return "model"
	case SectionLights:
		return "lights"
	case SectionEnvironment:
		return "environment"
	}
	return "unknown"
}

type Compression uint32

const (
	CompressionNone = Compression(iota)
	CompressionLZ4
)

type Header struct {
	Check        uint32
	Version      Version
	SectionCount uint32
	Flags        uint32
	ID           [16]byte
}

// TocEntry locates one section. Offsets are relative to the start of the container.
type TocEntry struct {
	Kind        SectionKind
	Compression Compression
	Offset      uint64
	Length      uint64
	RawLength   uint64
	// crc32 (IEEE) of the uncompressed payload
	Checksum uint32
	Reserved uint32
}

const (
	headerSize   = 32
	tocEntrySize = 40
)

const (
	textureFlagCubemap = 1 << iota
	textureFlagCompressed
)

const materialFlagTransparent = 1

type textureRecord struct {
	Format     Format
	Width      uint32
	Height     uint32
	Mips       uint32
	Flags      uint32
	ColorSpace ColorSpace
	DataLength uint64
}

type materialRecord struct {
	Textures  [SlotCount]TextureHandle
	BaseColor [4]float32
	Metallic  float32
	Roughness float32
	Emissive  [3]float32
	Flags     uint32
}

type meshRecord struct {
	VertexCount   uint32
	IndexCount    uint32
	InstanceCount uint32
	Bounds        [2][3]float32
}

type environmentRecord struct {
	Textures        [IblSlotCount]TextureHandle
	PrefilteredMips uint32
}

const maxNameLength = 4096
