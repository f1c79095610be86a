package mha

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Header errors
var (
	ErrMalformedHeaderLine = errors.New("mha: malformed header line")
	ErrMissingDataFile     = errors.New("mha: header ended without ElementDataFile")
)

// Header keys. Keys listed in headerKeys are interpreted; anything else is
// kept verbatim in Image.Metadata.
const (
	keyObjectType          = "ObjectType"
	keyNDims               = "NDims"
	keyBinaryData          = "BinaryData"
	keyByteOrderMSB        = "BinaryDataByteOrderMSB"
	keyElementByteOrderMSB = "ElementByteOrderMSB"
	keyCompressedData      = "CompressedData"
	keyCompressedDataSize  = "CompressedDataSize"
	keyTransformMatrix     = "TransformMatrix"
	keyRotation            = "Rotation"
	keyOrientation         = "Orientation"
	keyOffset              = "Offset"
	keyOrigin              = "Origin"
	keyPosition            = "Position"
	keyElementSpacing      = "ElementSpacing"
	keyDimSize             = "DimSize"
	keyChannels            = "ElementNumberOfChannels"
	keyElementType         = "ElementType"
	keyElementDataFile     = "ElementDataFile"
)

// separator splits a header line into key and value.
const separator = " = "

var headerKeys = map[string]bool{
	keyObjectType:          true,
	keyNDims:               true,
	keyBinaryData:          true,
	keyByteOrderMSB:        true,
	keyElementByteOrderMSB: true,
	keyCompressedData:      true,
	keyCompressedDataSize:  true,
	keyTransformMatrix:     true,
	keyRotation:            true,
	keyOrientation:         true,
	keyOffset:              true,
	keyOrigin:              true,
	keyPosition:            true,
	keyElementSpacing:      true,
	keyDimSize:             true,
	keyChannels:            true,
	keyElementType:         true,
	keyElementDataFile:     true,
}

// IsHeaderKey reports whether key is interpreted by the header codec rather
// than stored as metadata.
func IsHeaderKey(key string) bool {
	return headerKeys[key]
}

// ParseHeader reads header lines from r up to and including the
// ElementDataFile line, and returns the populated image along with the
// number of bytes consumed. Arrays are sized by the NDims value in effect
// when they are read, so NDims must precede them.
//
// r is left positioned at the first payload byte.
func ParseHeader(r *bufio.Reader) (*Image, int64, error) {
	img := newHeaderDefaults()
	var consumed int64

	for lineNo := 1; ; lineNo++ {
		line, err := r.ReadString('\n')
		consumed += int64(len(line))
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, consumed, fmt.Errorf("mha: read header: %w", err)
		}
		if line == "" {
			return nil, consumed, ErrMissingDataFile
		}

		text := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		key, value, ok := strings.Cut(text, separator)
		if !ok {
			return nil, consumed, fmt.Errorf("%w: line %d: %q", ErrMalformedHeaderLine, lineNo, text)
		}

		done, ferr := img.setField(key, value)
		if ferr != nil {
			return nil, consumed, fmt.Errorf("line %d: %w", lineNo, ferr)
		}
		if done {
			img.fillDefaults()
			return img, consumed, nil
		}
		if err != nil {
			return nil, consumed, ErrMissingDataFile
		}
	}
}

// setField applies one header line. It returns true once the
// ElementDataFile line has been applied.
func (img *Image) setField(key, value string) (bool, error) {
	var err error
	switch key {
	case keyObjectType:
		img.ObjectType, err = ParseObjectType(value)
	case keyNDims:
		n, perr := strconv.Atoi(value)
		if perr != nil || n < 1 || n > 255 {
			return false, fmt.Errorf("%w: NDims = %q", ErrInvalidValue, value)
		}
		img.NDims = n
	case keyBinaryData:
		img.Binary, err = parseBool(key, value)
	case keyByteOrderMSB, keyElementByteOrderMSB:
		img.BigEndian, err = parseBool(key, value)
	case keyCompressedData:
		img.Compressed, err = parseBool(key, value)
	case keyCompressedDataSize:
		img.CompressedSize, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			err = fmt.Errorf("%w: CompressedDataSize = %q", ErrInvalidValue, value)
		}
	case keyTransformMatrix, keyRotation, keyOrientation:
		img.TransformMatrix, err = parseFloatArray(key, value, img.NDims*img.NDims)
	case keyOffset, keyOrigin, keyPosition:
		img.Offset, err = parseFloatArray(key, value, img.NDims)
	case keyElementSpacing:
		img.Spacing, err = parseFloatArray(key, value, img.NDims)
	case keyDimSize:
		img.DimSize, err = parseUint16Array(key, value, img.NDims)
	case keyChannels:
		n, perr := strconv.Atoi(value)
		if perr != nil || n < 1 {
			return false, fmt.Errorf("%w: ElementNumberOfChannels = %q", ErrInvalidValue, value)
		}
		img.Channels = n
	case keyElementType:
		img.ElementType, err = ParseElementType(value)
	case keyElementDataFile:
		img.DataFile = value
		return true, nil
	default:
		img.Metadata[key] = value
	}
	return false, err
}

// fillDefaults supplies the geometry MetaIO assumes when a header omits it.
func (img *Image) fillDefaults() {
	n := img.NDims
	if img.Offset == nil {
		img.Offset = make([]float64, n)
	}
	if img.Spacing == nil {
		img.Spacing = make([]float64, n)
		for i := range img.Spacing {
			img.Spacing[i] = 1
		}
	}
	if img.TransformMatrix == nil {
		img.TransformMatrix = make([]float64, n*n)
		for i := 0; i < n; i++ {
			img.TransformMatrix[i*n+i] = 1
		}
	}
}

// MarshalHeader renders the header text in canonical order, ending with an
// ElementDataFile line naming dataFile.
func (img *Image) MarshalHeader(dataFile string) ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	var b strings.Builder
	line := func(key, value string) {
		b.WriteString(key)
		b.WriteString(separator)
		b.WriteString(value)
		b.WriteByte('\n')
	}
	floats := func(key string, values []float64) {
		b.WriteString(key)
		b.WriteString(" =")
		writeFloatArray(&b, values)
		b.WriteByte('\n')
	}

	line(keyObjectType, img.ObjectType.String())
	line(keyNDims, strconv.Itoa(img.NDims))
	line(keyBinaryData, formatBool(img.Binary))
	line(keyByteOrderMSB, formatBool(img.BigEndian))
	line(keyCompressedData, formatBool(img.Compressed))
	if img.Compressed {
		line(keyCompressedDataSize, strconv.FormatUint(img.CompressedSize, 10))
	}
	floats(keyTransformMatrix, img.TransformMatrix)
	floats(keyOffset, img.Offset)

	keys := make([]string, 0, len(img.Metadata))
	for k := range img.Metadata {
		if !headerKeys[k] {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := img.Metadata[k]
		if k == "" || strings.Contains(k, separator) || strings.ContainsAny(k, "\r\n") || strings.ContainsAny(v, "\r\n") {
			return nil, fmt.Errorf("%w: metadata %q cannot be written as a header line", ErrInvalidValue, k)
		}
		line(k, v)
	}

	floats(keyElementSpacing, img.Spacing)
	b.WriteString(keyDimSize)
	b.WriteString(" =")
	writeUint16Array(&b, img.DimSize)
	b.WriteByte('\n')
	if img.Channels != 1 {
		line(keyChannels, strconv.Itoa(img.Channels))
	}
	line(keyElementType, img.ElementType.String())
	line(keyElementDataFile, dataFile)

	return []byte(b.String()), nil
}

// WriteHeader writes the canonical header text to w.
func WriteHeader(w io.Writer, img *Image, dataFile string) error {
	data, err := img.MarshalHeader(dataFile)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
