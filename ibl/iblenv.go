package ibl

import (
	"fmt"
	"io"
	"os"

	"drumkit/drum"
	"drumkit/liberr"
	"drumkit/libio"

	"github.com/pierrec/lz4/v4"
)

const MagicNumberIBLENV = 0x78b85411

type IblEnvVersion uint32

const (
	IblEnvVersion1_002_000 = IblEnvVersion(1_002_000)
)

type IblEnvCompression uint32

const (
	IblEnvCompressionNone = IblEnvCompression(iota)
	IblEnvCompressionLZ4Fast
	IblEnvCompressionLZ4
)

type IblEnvHeader struct {
	Check       uint32
	Version     IblEnvVersion
	Compression IblEnvCompression
	Size        uint32
	Levels      uint32
}

type EncodeContext struct {
	Compression IblEnvCompression
	Writer      io.Writer
}

type EncodeOption func(ctx *EncodeContext) error

// OptCompress compresses the texels with lz4 from level 0 (fast) to 9.
// A negative level disables compression.
func OptCompress(level int) EncodeOption {
	levels := []lz4.CompressionLevel{lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9}
	if level < 0 {
		return nil
	}

	if level >= len(levels) {
		level = len(levels) - 1
	}

	return func(ctx *EncodeContext) error {
		if ctx.Compression != IblEnvCompressionNone {
			return fmt.Errorf("compression already configured")
		}
		lzw := lz4.NewWriter(ctx.Writer)
		if err := lzw.Apply(lz4.CompressionLevelOption(levels[level])); err != nil {
			return err
		}
		if level == 0 {
			ctx.Compression = IblEnvCompressionLZ4Fast
		} else {
			ctx.Compression = IblEnvCompressionLZ4
		}
		ctx.Writer = lzw
		return nil
	}
}

// EncodeIblEnv writes env with RGBE encoded texels.
func EncodeIblEnv(w io.Writer, env *Env, options ...EncodeOption) (err error) {
	var bw *libio.BinaryWriter
	var ok bool

	if bw, ok = w.(*libio.BinaryWriter); !ok {
		bw = libio.NewBinaryWriter(w)

		defer func() {
			err = libio.MergeErr(err, bw.Err)
		}()
	}

	ctx := EncodeContext{
		Writer: bw.Dst,
	}

	for _, opt := range options {
		if opt != nil {
			err = opt(&ctx)
			if err != nil {
				return err
			}
		}
	}

	header := IblEnvHeader{
		Check:       MagicNumberIBLENV,
		Version:     IblEnvVersion1_002_000,
		Compression: ctx.Compression,
		Size:        uint32(env.BaseSize),
		Levels:      uint32(env.Levels),
	}
	if !bw.WriteRef(&header) {
		return fmt.Errorf("could not write ibl env header: %w", bw.Err)
	}

	if err := encodeRgbe(ctx.Writer, env.All()); err != nil {
		return fmt.Errorf("could not write ibl env encoded pixels: %w", err)
	}

	if closer, ok := (ctx.Writer).(io.WriteCloser); ok {
		err = closer.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// 4096 texels per chunk
const rgbeChunkTexels = 4096

func encodeRgbe(w io.Writer, data []float32) error {
	if len(data)%3 != 0 {
		return fmt.Errorf("source not a multiple of 3 components")
	}

	buf := make([]byte, rgbeChunkTexels*4)
	for i := 0; i < len(data); i += rgbeChunkTexels * 3 {
		chunk := data[i:min(i+rgbeChunkTexels*3, len(data))]
		n := 0
		for j := 0; j < len(chunk); j += 3 {
			rgbe := libio.EncodeRgbe(chunk[j], chunk[j+1], chunk[j+2])
			copy(buf[n:n+4], rgbe[:])
			n += 4
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

func decodeRgbe(data []byte) []float32 {
	result := make([]float32, len(data)/4*3)
	for i := 0; i < len(data)/4; i++ {
		r, g, b := libio.DecodeRgbe([4]byte(data[i*4 : i*4+4]))
		result[i*3+0] = r
		result[i*3+1] = g
		result[i*3+2] = b
	}
	return result
}

// 1 << 14 is larger than any cubemap face a bake produces
const maxIblEnvSize = 1 << 14

func DecodeIblEnv(r io.Reader) (env *Env, err error) {
	var br *libio.BinaryReader
	var ok bool

	if br, ok = r.(*libio.BinaryReader); !ok {
		br = libio.NewBinaryReader(r)

		defer func() {
			err = libio.MergeErr(err, br.Err)
		}()
	}

	header := IblEnvHeader{}
	if !br.ReadRef(&header) {
		return nil, fmt.Errorf("expected environment header; byte 0x%08x", br.LastIndex)
	}

	if header.Check != MagicNumberIBLENV {
		return nil, fmt.Errorf("environment header is corrupt; byte 0x%08x", br.LastIndex)
	}

	if header.Version != IblEnvVersion1_002_000 {
		return nil, fmt.Errorf("environment version %d unsupported; byte 0x%08x", header.Version, br.LastIndex)
	}

	if header.Size == 0 || header.Size > maxIblEnvSize || header.Levels == 0 || int(header.Levels) > drum.MaxMips(int(header.Size), int(header.Size)) {
		return nil, fmt.Errorf("environment size %d with %d levels is invalid; byte 0x%08x", header.Size, header.Levels, br.LastIndex)
	}

	pixr := br.Src
	if header.Compression == IblEnvCompressionLZ4 || header.Compression == IblEnvCompressionLZ4Fast {
		pixr = lz4.NewReader(br.Src)
	} else if header.Compression != IblEnvCompressionNone {
		return nil, fmt.Errorf("environment compression id %d unsupported; byte 0x%08x", header.Compression, br.LastIndex)
	}

	pixels := calcCubeMapPixels(int(header.Size), int(header.Levels))
	data := make([]byte, pixels*4)
	_, err = io.ReadFull(pixr, data)
	if err != nil {
		return nil, fmt.Errorf("expected %d encoded pixels: %w", pixels, err)
	}

	return NewEnv(decodeRgbe(data), int(header.Size), int(header.Levels)), nil
}

// ReadIblEnvFile decodes an .iblenv file. Failures are codec errors.
func ReadIblEnvFile(name string) (*Env, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindIo, name, err)
	}
	defer f.Close()

	env, err := DecodeIblEnv(f)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindCodec, name, err)
	}
	return env, nil
}

// WriteIblEnvFile encodes env to name, removing the file if encoding fails.
func WriteIblEnvFile(name string, env *Env, options ...EncodeOption) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return liberr.Wrap(liberr.KindIo, name, err)
	}
	defer func() {
		cerr := f.Close()
		if err == nil && cerr != nil {
			err = liberr.Wrap(liberr.KindIo, name, cerr)
		}
		if err != nil {
			os.Remove(name)
		}
	}()

	if err = EncodeIblEnv(f, env, options...); err != nil {
		return liberr.Wrap(liberr.KindIo, name, err)
	}
	return nil
}
