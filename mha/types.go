// Package mha provides reading and writing of MetaImage volume files.
//
// A MetaImage file is a short text header of "Key = Value" lines followed by
// a binary voxel payload. The payload either follows the header in the same
// file (.mha, ElementDataFile = LOCAL) or lives in a companion file next to
// the header (.mhd with .raw or .zraw). Payloads may be zlib compressed.
package mha

import (
	"errors"
	"fmt"
)

// Type errors
var (
	ErrUnknownEnumValue = errors.New("mha: unknown enumerated value")
)

// ObjectType identifies the kind of MetaObject described by a header.
type ObjectType uint8

const (
	// ObjectTypeImage is a dense N-dimensional image, the only supported kind.
	ObjectTypeImage ObjectType = iota
)

// String returns the header literal for the object type.
func (o ObjectType) String() string {
	switch o {
	case ObjectTypeImage:
		return "Image"
	default:
		return "unknown"
	}
}

// ParseObjectType returns the object type for a header literal.
func ParseObjectType(s string) (ObjectType, error) {
	if s == "Image" {
		return ObjectTypeImage, nil
	}
	return 0, fmt.Errorf("%w: ObjectType %q", ErrUnknownEnumValue, s)
}

// ElementType defines the scalar type of each voxel component.
type ElementType uint8

const (
	// ElementNone marks an element type that has not been set.
	ElementNone ElementType = iota
	ElementChar
	ElementUChar
	ElementShort
	ElementUShort
	ElementInt
	ElementUInt
	ElementLong
	ElementULong
	ElementLongLong
	ElementULongLong
	ElementFloat
	ElementDouble
	ElementString
	// ElementOther is an opaque type with no defined width.
	ElementOther
)

// elementTypeInfo is one row of the type catalog.
type elementTypeInfo struct {
	literal string
	size    int
	signed  bool
	float   bool
}

var elementTypes = [...]elementTypeInfo{
	ElementNone:      {"MET_NONE", 0, false, false},
	ElementChar:      {"MET_CHAR", 1, true, false},
	ElementUChar:     {"MET_UCHAR", 1, false, false},
	ElementShort:     {"MET_SHORT", 2, true, false},
	ElementUShort:    {"MET_USHORT", 2, false, false},
	ElementInt:       {"MET_INT", 4, true, false},
	ElementUInt:      {"MET_UINT", 4, false, false},
	ElementLong:      {"MET_LONG", 4, true, false},
	ElementULong:     {"MET_ULONG", 4, false, false},
	ElementLongLong:  {"MET_LONG_LONG", 8, true, false},
	ElementULongLong: {"MET_ULONG_LONG", 8, false, false},
	ElementFloat:     {"MET_FLOAT", 4, true, true},
	ElementDouble:    {"MET_DOUBLE", 8, true, true},
	ElementString:    {"MET_STRING", 1, false, false},
	ElementOther:     {"MET_OTHER", 0, false, false},
}

// elementTypesByLiteral is the reverse lookup of elementTypes.
var elementTypesByLiteral = func() map[string]ElementType {
	m := make(map[string]ElementType, len(elementTypes))
	for t, info := range elementTypes {
		m[info.literal] = ElementType(t)
	}
	return m
}()

// ParseElementType returns the element type for a header literal such as
// "MET_UCHAR".
func ParseElementType(s string) (ElementType, error) {
	if t, ok := elementTypesByLiteral[s]; ok {
		return t, nil
	}
	return ElementNone, fmt.Errorf("%w: ElementType %q", ErrUnknownEnumValue, s)
}

func (t ElementType) valid() bool {
	return int(t) < len(elementTypes)
}

// String returns the header literal for the element type.
func (t ElementType) String() string {
	if !t.valid() {
		return "unknown"
	}
	return elementTypes[t].literal
}

// Size returns the size in bytes of one scalar of this type.
// MET_NONE and MET_OTHER have no defined width and report 0.
func (t ElementType) Size() int {
	if !t.valid() {
		return 0
	}
	return elementTypes[t].size
}

// IsSigned returns true for signed integer and floating-point types.
func (t ElementType) IsSigned() bool {
	return t.valid() && elementTypes[t].signed
}

// IsFloat returns true for MET_FLOAT and MET_DOUBLE.
func (t ElementType) IsFloat() bool {
	return t.valid() && elementTypes[t].float
}

// IsNumeric returns true if voxels of this type can be decoded as numbers.
func (t ElementType) IsNumeric() bool {
	switch t {
	case ElementNone, ElementString, ElementOther:
		return false
	}
	return t.valid()
}
