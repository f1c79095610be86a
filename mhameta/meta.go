// Package mhameta provides typed accessors for well-known MetaImage header
// tags.
//
// The mha header codec interprets only the tags it needs to locate and decode
// the payload. Every other tag is kept verbatim in Image.Metadata. This
// package reads and writes the common ones with proper types so callers do not
// have to format values by hand.
//
// Example usage:
//
//	img := mha.NewImage(mha.ElementShort, 512, 512, 120)
//	mhameta.SetModality(img, mhameta.ModalityCT)
//	mhameta.SetAnatomicalOrientation(img, "RAI")
//	mhameta.SetCenterOfRotation(img, []float64{0, 0, 0})
package mhameta

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mrjoshuak/go-metaimage/mha"
)

// Standard tag names
const (
	// Descriptive
	TagComment         = "Comment"
	TagName            = "Name"
	TagID              = "ID"
	TagParentID        = "ParentID"
	TagAcquisitionDate = "AcquisitionDate"
	TagModality        = "Modality"

	// Geometry
	TagAnatomicalOrientation = "AnatomicalOrientation"
	TagCenterOfRotation      = "CenterOfRotation"
	TagDistanceUnits         = "DistanceUnits"
	TagElementSize           = "ElementSize"

	// Payload layout
	TagHeaderSize = "HeaderSize"
	TagElementMin = "ElementMin"
	TagElementMax = "ElementMax"

	// Display
	TagColor = "Color"
)

// Metadata errors
var (
	ErrInvalidOrientation = errors.New("mhameta: invalid anatomical orientation")
	ErrLengthMismatch     = errors.New("mhameta: value count does not match NDims")
	ErrInvalidColor       = errors.New("mhameta: color needs 4 components")
)

// ===========================================
// Modality
// ===========================================

// Modality identifies the acquisition device.
type Modality uint8

const (
	ModalityUnknown Modality = iota // MET_MOD_UNKNOWN
	ModalityCT                      // MET_MOD_CT
	ModalityMR                      // MET_MOD_MR
	ModalityNM                      // MET_MOD_NM
	ModalityUS                      // MET_MOD_US
	ModalityOther                   // MET_MOD_OTHER
)

var modalityNames = [...]string{
	ModalityUnknown: "MET_MOD_UNKNOWN",
	ModalityCT:      "MET_MOD_CT",
	ModalityMR:      "MET_MOD_MR",
	ModalityNM:      "MET_MOD_NM",
	ModalityUS:      "MET_MOD_US",
	ModalityOther:   "MET_MOD_OTHER",
}

// String returns the header literal for the modality.
func (m Modality) String() string {
	if int(m) < len(modalityNames) {
		return modalityNames[m]
	}
	return modalityNames[ModalityUnknown]
}

// SetModality sets the acquisition modality.
func SetModality(img *mha.Image, m Modality) {
	set(img, TagModality, m.String())
}

// GetModality returns the acquisition modality.
// Returns ModalityUnknown and false if the tag is absent or not recognized.
func GetModality(img *mha.Image) (Modality, bool) {
	s, ok := img.Metadata[TagModality]
	if !ok {
		return ModalityUnknown, false
	}
	for m, name := range modalityNames {
		if name == s {
			return Modality(m), true
		}
	}
	return ModalityUnknown, false
}

// ===========================================
// Distance Units
// ===========================================

// DistanceUnits is the physical unit of Offset and ElementSpacing.
type DistanceUnits string

const (
	UnitsUnknown    DistanceUnits = "UNKNOWN"
	UnitsMicrometer DistanceUnits = "um"
	UnitsMillimeter DistanceUnits = "mm"
	UnitsCentimeter DistanceUnits = "cm"
)

// SetDistanceUnits sets the physical distance unit.
func SetDistanceUnits(img *mha.Image, u DistanceUnits) {
	set(img, TagDistanceUnits, string(u))
}

// GetDistanceUnits returns the distance unit, or UnitsUnknown if not set.
func GetDistanceUnits(img *mha.Image) DistanceUnits {
	switch u := DistanceUnits(img.Metadata[TagDistanceUnits]); u {
	case UnitsMicrometer, UnitsMillimeter, UnitsCentimeter:
		return u
	}
	return UnitsUnknown
}

// ===========================================
// Anatomical Orientation
// ===========================================

// SetAnatomicalOrientation sets the orientation code, one letter per axis
// naming the direction each axis points from (for example "RAI").
// Each letter is one of R, L, A, P, S, I or '?' for an unknown axis, and no
// anatomical axis may appear twice.
func SetAnatomicalOrientation(img *mha.Image, code string) error {
	if err := validateOrientation(code, img.NDims); err != nil {
		return err
	}
	set(img, TagAnatomicalOrientation, code)
	return nil
}

// AnatomicalOrientation returns the orientation code.
// Returns "" and false if the tag is absent or invalid.
func AnatomicalOrientation(img *mha.Image) (string, bool) {
	code, ok := img.Metadata[TagAnatomicalOrientation]
	if !ok || validateOrientation(code, img.NDims) != nil {
		return "", false
	}
	return code, true
}

func validateOrientation(code string, ndims int) error {
	if len(code) != ndims {
		return fmt.Errorf("%w: %q has %d letters, want %d", ErrInvalidOrientation, code, len(code), ndims)
	}
	var seen [3]bool
	for _, c := range code {
		axis := -1
		switch c {
		case 'R', 'L':
			axis = 0
		case 'A', 'P':
			axis = 1
		case 'S', 'I':
			axis = 2
		case '?':
			continue
		default:
			return fmt.Errorf("%w: letter %q in %q", ErrInvalidOrientation, c, code)
		}
		if seen[axis] {
			return fmt.Errorf("%w: %q repeats an axis", ErrInvalidOrientation, code)
		}
		seen[axis] = true
	}
	return nil
}

// ===========================================
// Per-axis vectors
// ===========================================

// SetCenterOfRotation sets the rotation center, one value per axis.
func SetCenterOfRotation(img *mha.Image, center []float64) error {
	return setAxisVector(img, TagCenterOfRotation, center)
}

// CenterOfRotation returns the rotation center, or nil if not set.
func CenterOfRotation(img *mha.Image) []float64 {
	return getAxisVector(img, TagCenterOfRotation)
}

// SetElementSize sets the physical extent of one voxel per axis. It differs
// from ElementSpacing when voxels overlap or have gaps.
func SetElementSize(img *mha.Image, size []float64) error {
	return setAxisVector(img, TagElementSize, size)
}

// ElementSize returns the voxel extent, falling back to ElementSpacing when
// the tag is absent.
func ElementSize(img *mha.Image) []float64 {
	if v := getAxisVector(img, TagElementSize); v != nil {
		return v
	}
	return append([]float64(nil), img.Spacing...)
}

func setAxisVector(img *mha.Image, tag string, v []float64) error {
	if len(v) != img.NDims {
		return fmt.Errorf("%w: %s has %d values, want %d", ErrLengthMismatch, tag, len(v), img.NDims)
	}
	set(img, tag, formatFloats(v))
	return nil
}

func getAxisVector(img *mha.Image, tag string) []float64 {
	v := getFloats(img, tag)
	if len(v) != img.NDims {
		return nil
	}
	return v
}

// ===========================================
// Descriptive
// ===========================================

// SetComment sets the free-text comment.
func SetComment(img *mha.Image, comment string) {
	set(img, TagComment, comment)
}

// Comment returns the comment, or empty string if not set.
func Comment(img *mha.Image) string {
	return img.Metadata[TagComment]
}

// SetName sets the object name.
func SetName(img *mha.Image, name string) {
	set(img, TagName, name)
}

// Name returns the object name, or empty string if not set.
func Name(img *mha.Image) string {
	return img.Metadata[TagName]
}

// SetAcquisitionDate sets the acquisition date. MetaIO writes dates as
// YYYY.MM.DD but any single-line text is preserved.
func SetAcquisitionDate(img *mha.Image, date string) {
	set(img, TagAcquisitionDate, date)
}

// AcquisitionDate returns the acquisition date, or empty string if not set.
func AcquisitionDate(img *mha.Image) string {
	return img.Metadata[TagAcquisitionDate]
}

// SetID sets the object identifier.
func SetID(img *mha.Image, id int) {
	set(img, TagID, strconv.Itoa(id))
}

// ID returns the object identifier.
// Returns -1 and false if not set.
func ID(img *mha.Image) (int, bool) {
	return getInt(img, TagID)
}

// SetParentID sets the identifier of the parent object.
func SetParentID(img *mha.Image, id int) {
	set(img, TagParentID, strconv.Itoa(id))
}

// ParentID returns the parent identifier.
// Returns -1 and false if not set.
func ParentID(img *mha.Image) (int, bool) {
	return getInt(img, TagParentID)
}

// ===========================================
// Payload layout
// ===========================================

// HeaderSize returns the number of bytes to skip in the data file before the
// payload starts. -1 means the payload sits at the end of the file.
// Returns 0 and false if not set.
//
// The reader does not act on this tag; it is exposed for callers that
// process companion files themselves.
func HeaderSize(img *mha.Image) (int, bool) {
	n, ok := getInt(img, TagHeaderSize)
	if !ok {
		return 0, false
	}
	return n, true
}

// SetElementRange records the minimum and maximum voxel values.
func SetElementRange(img *mha.Image, lo, hi float64) {
	set(img, TagElementMin, strconv.FormatFloat(lo, 'g', -1, 64))
	set(img, TagElementMax, strconv.FormatFloat(hi, 'g', -1, 64))
}

// ElementRange returns the recorded voxel value range.
// Returns false unless both bounds are present and numeric.
func ElementRange(img *mha.Image) (lo, hi float64, ok bool) {
	lo, okLo := getFloat(img, TagElementMin)
	hi, okHi := getFloat(img, TagElementMax)
	if !okLo || !okHi {
		return 0, 0, false
	}
	return lo, hi, true
}

// ===========================================
// Display
// ===========================================

// Color is an RGBA display color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// SetColor sets the display color.
func SetColor(img *mha.Image, c Color) {
	set(img, TagColor, formatFloats([]float64{c.R, c.G, c.B, c.A}))
}

// GetColor returns the display color.
func GetColor(img *mha.Image) (Color, error) {
	v := getFloats(img, TagColor)
	if len(v) != 4 {
		return Color{}, ErrInvalidColor
	}
	return Color{R: v[0], G: v[1], B: v[2], A: v[3]}, nil
}

// ===========================================
// Helper Functions
// ===========================================

func set(img *mha.Image, tag, value string) {
	if img.Metadata == nil {
		img.Metadata = make(map[string]string)
	}
	img.Metadata[tag] = value
}

func getInt(img *mha.Image, tag string) (int, bool) {
	s, ok := img.Metadata[tag]
	if !ok {
		return -1, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1, false
	}
	return n, true
}

func getFloat(img *mha.Image, tag string) (float64, bool) {
	s, ok := img.Metadata[tag]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func getFloats(img *mha.Image, tag string) []float64 {
	s, ok := img.Metadata[tag]
	if !ok {
		return nil
	}
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil
		}
		out[i] = v
	}
	return out
}

func formatFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
