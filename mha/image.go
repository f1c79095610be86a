package mha

import (
	"errors"
	"fmt"
	"maps"
	"math/bits"
	"slices"

	"github.com/mrjoshuak/go-metaimage/internal/xdr"
)

// Image errors
var (
	ErrEmptyDimensions = errors.New("mha: image has no dimensions")
	ErrSizeOverflow    = errors.New("mha: payload size too large")
	ErrInvalidImage    = errors.New("mha: invalid image descriptor")
	ErrIndexOutOfRange = errors.New("mha: voxel index out of range")
	ErrNotNumeric      = errors.New("mha: element type has no numeric value")
	ErrMaxDimensions   = errors.New("mha: dimensionality out of range (1-255)")
)

// LocalDataFile is the ElementDataFile value for a payload that follows the
// header in the same file.
const LocalDataFile = "LOCAL"

// Image is a parsed MetaImage header together with its voxel payload.
//
// DimSize, Offset and ElementSpacing hold one value per axis and
// TransformMatrix holds NDims*NDims values in row-major order.
type Image struct {
	ObjectType  ObjectType
	NDims       int
	ElementType ElementType
	Channels    int

	Binary     bool
	BigEndian  bool
	Compressed bool

	// CompressedSize is the declared length of the compressed payload. It is
	// only meaningful when Compressed is set.
	CompressedSize uint64

	DimSize         []uint16
	Offset          []float64
	Spacing         []float64
	TransformMatrix []float64

	// DataFile is LocalDataFile or the name of the companion data file,
	// relative to the header's directory.
	DataFile string

	// Metadata holds every header tag that is not interpreted above.
	Metadata map[string]string

	// Data is the uncompressed payload.
	Data []byte
}

// newHeaderDefaults returns the state a header parse starts from.
func newHeaderDefaults() *Image {
	return &Image{
		ObjectType:  ObjectTypeImage,
		NDims:       3,
		ElementType: ElementNone,
		Channels:    1,
		Binary:      true,
		Metadata:    make(map[string]string),
	}
}

// NewImage creates an image with the given element type and axis sizes,
// an identity direction, zero offset, unit spacing and a zeroed payload.
func NewImage(elementType ElementType, dims ...uint16) *Image {
	n := len(dims)
	img := newHeaderDefaults()
	img.NDims = n
	img.ElementType = elementType
	img.DimSize = slices.Clone(dims)
	img.Offset = make([]float64, n)
	img.Spacing = make([]float64, n)
	img.TransformMatrix = make([]float64, n*n)
	for i := 0; i < n; i++ {
		img.Spacing[i] = 1
		img.TransformMatrix[i*n+i] = 1
	}
	img.DataFile = LocalDataFile
	if size, err := RequiredSize(img); err == nil {
		img.Data = make([]byte, size)
	}
	return img
}

// RequiredSize returns the number of bytes of an uncompressed payload: the
// product of the axis sizes, the element width and the channel count.
func RequiredSize(img *Image) (uint64, error) {
	if len(img.DimSize) == 0 {
		return 0, ErrEmptyDimensions
	}
	size := uint64(img.ElementType.Size())
	channels := uint64(max(img.Channels, 1))
	var overflow uint64
	size, overflow = mulCheck(size, channels, overflow)
	for _, d := range img.DimSize {
		size, overflow = mulCheck(size, uint64(d), overflow)
	}
	if overflow != 0 {
		return 0, ErrSizeOverflow
	}
	return size, nil
}

func mulCheck(a, b, overflow uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(a, b)
	return lo, overflow | hi
}

// VoxelCount returns the number of voxels, the product of the axis sizes.
func (img *Image) VoxelCount() (uint64, error) {
	if len(img.DimSize) == 0 {
		return 0, ErrEmptyDimensions
	}
	n := uint64(1)
	var overflow uint64
	for _, d := range img.DimSize {
		n, overflow = mulCheck(n, uint64(d), overflow)
	}
	if overflow != 0 {
		return 0, ErrSizeOverflow
	}
	return n, nil
}

// Validate checks the per-axis array invariants.
func (img *Image) Validate() error {
	if img.NDims < 1 || img.NDims > 255 {
		return fmt.Errorf("%w: NDims = %d", ErrMaxDimensions, img.NDims)
	}
	if img.Channels < 1 {
		return fmt.Errorf("%w: ElementNumberOfChannels = %d", ErrInvalidImage, img.Channels)
	}
	checks := []struct {
		name string
		got  int
		want int
	}{
		{keyDimSize, len(img.DimSize), img.NDims},
		{keyOffset, len(img.Offset), img.NDims},
		{keyElementSpacing, len(img.Spacing), img.NDims},
		{keyTransformMatrix, len(img.TransformMatrix), img.NDims * img.NDims},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrArrayLengthMismatch, c.name, c.got, c.want)
		}
	}
	if img.ObjectType != ObjectTypeImage {
		return fmt.Errorf("%w: ObjectType %d", ErrUnknownEnumValue, img.ObjectType)
	}
	if !img.ElementType.valid() {
		return fmt.Errorf("%w: ElementType %d", ErrUnknownEnumValue, img.ElementType)
	}
	return nil
}

// Clone returns a deep copy of the image, payload included.
func (img *Image) Clone() *Image {
	c := *img
	c.DimSize = slices.Clone(img.DimSize)
	c.Offset = slices.Clone(img.Offset)
	c.Spacing = slices.Clone(img.Spacing)
	c.TransformMatrix = slices.Clone(img.TransformMatrix)
	c.Metadata = maps.Clone(img.Metadata)
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Data = slices.Clone(img.Data)
	return &c
}

// Release drops the payload, the per-axis arrays and the metadata so the
// memory can be reclaimed even while the *Image itself is still referenced.
// The image must not be used for I/O afterwards.
func (img *Image) Release() {
	img.Data = nil
	img.DimSize = nil
	img.Offset = nil
	img.Spacing = nil
	img.TransformMatrix = nil
	img.DataFile = ""
	clear(img.Metadata)
	img.Metadata = nil
}

// Sample decodes scalar i of the payload, where scalars are laid out voxel
// by voxel with Channels components each.
func (img *Image) Sample(i int) (float64, error) {
	if !img.ElementType.IsNumeric() {
		return 0, fmt.Errorf("%w: %s", ErrNotNumeric, img.ElementType)
	}
	width := img.ElementType.Size()
	if i < 0 || (i+1)*width > len(img.Data) {
		return 0, ErrIndexOutOfRange
	}
	r := xdr.NewReaderOrder(img.Data, xdr.Order(img.BigEndian))
	if err := r.SetPos(i * width); err != nil {
		return 0, err
	}
	return readSample(r, img.ElementType)
}

// Samples decodes every scalar of the payload.
func (img *Image) Samples() ([]float64, error) {
	if !img.ElementType.IsNumeric() {
		return nil, fmt.Errorf("%w: %s", ErrNotNumeric, img.ElementType)
	}
	width := img.ElementType.Size()
	out := make([]float64, len(img.Data)/width)
	r := xdr.NewReaderOrder(img.Data, xdr.Order(img.BigEndian))
	for i := range out {
		v, err := readSample(r, img.ElementType)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readSample(r *xdr.Reader, t ElementType) (float64, error) {
	switch t {
	case ElementChar:
		v, err := r.ReadInt8()
		return float64(v), err
	case ElementUChar:
		v, err := r.ReadByte()
		return float64(v), err
	case ElementShort:
		v, err := r.ReadInt16()
		return float64(v), err
	case ElementUShort:
		v, err := r.ReadUint16()
		return float64(v), err
	case ElementInt, ElementLong:
		v, err := r.ReadInt32()
		return float64(v), err
	case ElementUInt, ElementULong:
		v, err := r.ReadUint32()
		return float64(v), err
	case ElementLongLong:
		v, err := r.ReadInt64()
		return float64(v), err
	case ElementULongLong:
		v, err := r.ReadUint64()
		return float64(v), err
	case ElementFloat:
		v, err := r.ReadFloat32()
		return float64(v), err
	case ElementDouble:
		return r.ReadFloat64()
	}
	return 0, fmt.Errorf("%w: %s", ErrNotNumeric, t)
}

// SetSample encodes v as scalar i of the payload in the image's element
// type and byte order. Integer types truncate toward zero.
func (img *Image) SetSample(i int, v float64) error {
	if !img.ElementType.IsNumeric() {
		return fmt.Errorf("%w: %s", ErrNotNumeric, img.ElementType)
	}
	width := img.ElementType.Size()
	if i < 0 || (i+1)*width > len(img.Data) {
		return ErrIndexOutOfRange
	}
	w := xdr.NewWriterOrder(img.Data[i*width:(i+1)*width], xdr.Order(img.BigEndian))
	return writeSample(w, img.ElementType, v)
}

func writeSample(w *xdr.Writer, t ElementType, v float64) error {
	switch t {
	case ElementChar:
		return w.WriteByte(byte(int8(v)))
	case ElementUChar:
		return w.WriteByte(byte(v))
	case ElementShort:
		return w.WriteUint16(uint16(int16(v)))
	case ElementUShort:
		return w.WriteUint16(uint16(v))
	case ElementInt, ElementLong:
		return w.WriteUint32(uint32(int32(v)))
	case ElementUInt, ElementULong:
		return w.WriteUint32(uint32(v))
	case ElementLongLong:
		return w.WriteUint64(uint64(int64(v)))
	case ElementULongLong:
		return w.WriteUint64(uint64(v))
	case ElementFloat:
		return w.WriteFloat32(float32(v))
	case ElementDouble:
		return w.WriteFloat64(v)
	}
	return fmt.Errorf("%w: %s", ErrNotNumeric, t)
}

// SwapByteOrder reverses the byte order of every scalar in the payload and
// flips BigEndian to match.
func (img *Image) SwapByteOrder() error {
	if err := xdr.SwapBytes(img.Data, max(img.ElementType.Size(), 1)); err != nil {
		return fmt.Errorf("mha: swap byte order: %w", err)
	}
	img.BigEndian = !img.BigEndian
	return nil
}
