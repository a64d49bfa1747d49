package libio_test

import (
	"bytes"
	"testing"

	"drumkit/libio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryReaderWriter(t *testing.T) {
	buf := new(bytes.Buffer)
	bw := libio.NewBinaryWriter(buf)
	bw.WriteUInt8(7)
	bw.WriteUInt16(0xbeef)
	bw.WriteUInt32(0xdeadbeef)
	bw.WriteString("cube")
	bw.WriteRef([2]float32{1.5, -2})
	require.NoError(t, bw.Err)

	br := libio.NewBinaryReader(bytes.NewReader(buf.Bytes()))
	var u8, u16, u32 int
	var name string
	var pair [2]float32
	br.ReadUInt8(&u8)
	br.ReadUInt16(&u16)
	br.ReadUInt32(&u32)
	br.ReadString(&name, 64)
	br.ReadRef(&pair)
	require.NoError(t, br.Err)

	assert.Equal(t, 7, u8)
	assert.Equal(t, 0xbeef, u16)
	assert.Equal(t, 0xdeadbeef, u32)
	assert.Equal(t, "cube", name)
	assert.Equal(t, [2]float32{1.5, -2}, pair)
	assert.Equal(t, buf.Len(), br.Index)

	// reads past the end stick
	assert.False(t, br.ReadUInt32(&u32))
	assert.Error(t, br.Err)
	assert.False(t, br.ReadUInt8(&u8))
}

func TestReadStringLimit(t *testing.T) {
	buf := new(bytes.Buffer)
	bw := libio.NewBinaryWriter(buf)
	bw.WriteString("a rather long name")

	br := libio.NewBinaryReader(buf)
	var s string
	assert.False(t, br.ReadString(&s, 4))
	assert.Error(t, br.Err)
}
