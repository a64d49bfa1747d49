package libio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BinaryReader decodes fixed size values from Src. The first error is kept in
// Err and every following read becomes a no-op, so callers can check once
// after a sequence of reads.
type BinaryReader struct {
	Order     binary.ByteOrder
	Src       io.Reader
	Index     int
	LastIndex int
	Err       error
	buf       []byte
}

func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{Src: r, Order: binary.LittleEndian}
}

func (br *BinaryReader) ReadBytes(n int) (ok bool) {
	if br.Err != nil {
		return false
	}

	if cap(br.buf) < n {
		br.buf = make([]byte, n)
	} else {
		br.buf = br.buf[:n]
	}

	nread, err := io.ReadFull(br.Src, br.buf)
	if err != nil {
		br.Err = err
	}

	br.LastIndex = br.Index
	br.Index += nread

	return br.Err == nil
}

// Bytes returns the data of the last ReadBytes call. It is only valid until the next read.
func (br *BinaryReader) Bytes() []byte {
	return br.buf
}

func (br *BinaryReader) Read(p []byte) (n int, err error) {
	n, err = br.Src.Read(p)
	br.LastIndex = br.Index
	br.Index += n
	return
}

func (br *BinaryReader) ReadUInt8(i *int) (ok bool) {
	if !br.ReadBytes(1) {
		return false
	}
	*i = int(br.buf[0])
	return true
}

func (br *BinaryReader) ReadUInt16(i *int) (ok bool) {
	if !br.ReadBytes(2) {
		return false
	}
	*i = int(br.Order.Uint16(br.buf))
	return true
}

func (br *BinaryReader) ReadUInt32(i *int) (ok bool) {
	if !br.ReadBytes(4) {
		return false
	}
	*i = int(br.Order.Uint32(br.buf))
	return true
}

// ReadString reads a string prefixed with its uint32 byte length.
// Lengths above max are treated as corrupt data.
func (br *BinaryReader) ReadString(s *string, max int) (ok bool) {
	var n int
	if !br.ReadUInt32(&n) {
		return false
	}
	if n > max {
		br.Err = fmt.Errorf("string length %d exceeds %d; byte 0x%08x", n, max, br.LastIndex)
		return false
	}
	if !br.ReadBytes(n) {
		return false
	}
	*s = string(br.buf)
	return true
}

func (br *BinaryReader) ReadRef(data any) (ok bool) {
	if br.Err != nil {
		return false
	}
	err := binary.Read(br.Src, br.Order, data)
	br.Err = err
	br.LastIndex = br.Index
	if err == nil {
		br.Index += binary.Size(data)
	}
	return err == nil
}

// BinaryWriter is the counterpart of BinaryReader and keeps the first error in Err.
type BinaryWriter struct {
	Order binary.ByteOrder
	Dst   io.Writer
	Err   error
	buf   [8]byte
}

func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{Dst: w, Order: binary.LittleEndian}
}

func (bw *BinaryWriter) WriteBytes(p []byte) (ok bool) {
	if bw.Err != nil {
		return false
	}

	_, err := bw.Dst.Write(p)
	if err != nil {
		bw.Err = err
		return false
	}
	return true
}

func (bw *BinaryWriter) Write(p []byte) (n int, err error) {
	return bw.Dst.Write(p)
}

func (bw *BinaryWriter) WriteUInt8(i uint8) (ok bool) {
	bw.buf[0] = i
	return bw.WriteBytes(bw.buf[:1])
}

func (bw *BinaryWriter) WriteUInt16(i uint16) (ok bool) {
	bw.Order.PutUint16(bw.buf[:2], i)
	return bw.WriteBytes(bw.buf[:2])
}

func (bw *BinaryWriter) WriteUInt32(i uint32) (ok bool) {
	bw.Order.PutUint32(bw.buf[:4], i)
	return bw.WriteBytes(bw.buf[:4])
}

func (bw *BinaryWriter) WriteString(s string) (ok bool) {
	if !bw.WriteUInt32(uint32(len(s))) {
		return false
	}
	return bw.WriteBytes([]byte(s))
}

func (bw *BinaryWriter) WriteRef(data any) (ok bool) {
	if bw.Err != nil {
		return false
	}
	err := binary.Write(bw.Dst, bw.Order, data)
	bw.Err = err
	return err == nil
}

// MergeErr combines err with a reader or writer error that was recorded later.
func MergeErr(err, sticky error) error {
	if sticky == nil {
		return err
	}
	if err == nil {
		return sticky
	}
	return fmt.Errorf("%v: %w", err, sticky)
}
