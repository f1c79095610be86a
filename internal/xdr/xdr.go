// Package xdr provides byte-order aware decoding and encoding of the scalar
// types stored in MetaImage voxel payloads.
//
// MetaImage payloads are little-endian unless the header sets
// BinaryDataByteOrderMSB, so every Reader and Writer carries its own byte
// order instead of assuming one.
package xdr

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrShortBuffer is returned when a read or write operation cannot complete
	// because there isn't enough space in the buffer.
	ErrShortBuffer = errors.New("xdr: buffer too short")

	// ErrNegativeSize is returned when a size parameter is negative.
	ErrNegativeSize = errors.New("xdr: negative size")

	// ErrBadWidth is returned when a swap width is not 1, 2, 4 or 8.
	ErrBadWidth = errors.New("xdr: unsupported word width")

	// ErrUnaligned is returned when a buffer is not a whole number of words.
	ErrUnaligned = errors.New("xdr: buffer length is not a multiple of the word width")
)

// Order returns the byte order selected by a header's big-endian flag.
func Order(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Reader provides bounds-checked scalar reads from a byte slice.
type Reader struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

// NewReader creates a little-endian Reader.
func NewReader(data []byte) *Reader {
	return NewReaderOrder(data, binary.LittleEndian)
}

// NewReaderOrder creates a Reader using the given byte order.
func NewReaderOrder(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{data: data, order: order}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	if r.pos >= len(r.data) {
		return 0
	}
	return len(r.data) - r.pos
}

// Pos returns the current read position.
func (r *Reader) Pos() int {
	return r.pos
}

// SetPos sets the read position. Returns an error if the position is out of bounds.
func (r *Reader) SetPos(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return ErrShortBuffer
	}
	r.pos = pos
	return nil
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return ErrNegativeSize
	}
	if r.pos+n > len(r.data) {
		return ErrShortBuffer
	}
	r.pos += n
	return nil
}

// next returns the following n bytes and advances past them.
func (r *Reader) next(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads a signed 8-bit integer.
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadUint16 reads an unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// ReadInt16 reads a signed 16-bit integer.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads an unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// ReadInt32 reads a signed 32-bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads an unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// ReadInt64 reads a signed 64-bit integer.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads a 32-bit IEEE 754 floating-point number.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadFloat64 reads a 64-bit IEEE 754 floating-point number.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Writer provides bounds-checked scalar writes into a fixed byte slice.
type Writer struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

// NewWriter creates a little-endian Writer.
func NewWriter(data []byte) *Writer {
	return NewWriterOrder(data, binary.LittleEndian)
}

// NewWriterOrder creates a Writer using the given byte order.
func NewWriterOrder(data []byte, order binary.ByteOrder) *Writer {
	return &Writer{data: data, order: order}
}

// Pos returns the current write position.
func (w *Writer) Pos() int {
	return w.pos
}

// Bytes returns the underlying buffer.
func (w *Writer) Bytes() []byte {
	return w.data
}

func (w *Writer) next(n int) ([]byte, error) {
	if w.pos+n > len(w.data) {
		return nil, ErrShortBuffer
	}
	b := w.data[w.pos : w.pos+n]
	w.pos += n
	return b, nil
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(v byte) error {
	b, err := w.next(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// WriteUint16 writes an unsigned 16-bit integer.
func (w *Writer) WriteUint16(v uint16) error {
	b, err := w.next(2)
	if err != nil {
		return err
	}
	w.order.PutUint16(b, v)
	return nil
}

// WriteUint32 writes an unsigned 32-bit integer.
func (w *Writer) WriteUint32(v uint32) error {
	b, err := w.next(4)
	if err != nil {
		return err
	}
	w.order.PutUint32(b, v)
	return nil
}

// WriteUint64 writes an unsigned 64-bit integer.
func (w *Writer) WriteUint64(v uint64) error {
	b, err := w.next(8)
	if err != nil {
		return err
	}
	w.order.PutUint64(b, v)
	return nil
}

// WriteFloat32 writes a 32-bit IEEE 754 floating-point number.
func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes a 64-bit IEEE 754 floating-point number.
func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

// SwapBytes reverses the bytes of every width-byte word in data, in place.
func SwapBytes(data []byte, width int) error {
	switch width {
	case 1:
		return nil
	case 2, 4, 8:
	default:
		return ErrBadWidth
	}
	if len(data)%width != 0 {
		return ErrUnaligned
	}
	for i := 0; i < len(data); i += width {
		word := data[i : i+width]
		for a, b := 0, width-1; a < b; a, b = a+1, b-1 {
			word[a], word[b] = word[b], word[a]
		}
	}
	return nil
}
