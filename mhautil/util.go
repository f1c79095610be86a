// Package mhautil provides MetaImage utility functions.
//
// This package offers higher-level operations for working with MetaImage
// files, including file information, validation, comparison, conversion and
// voxel statistics.
//
// Example usage:
//
//	info, _ := mhautil.GetFileInfo("ct.mha")
//	fmt.Printf("Dims: %v, Type: %s\n", info.DimSize, info.ElementType)
//
//	img, _ := mha.ReadFile("ct.mha")
//	stats, _ := mhautil.ComputeStats(img)
package mhautil

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mrjoshuak/go-metaimage/mha"
	"github.com/mrjoshuak/go-metaimage/mhameta"
)

// ErrEmptyPayload is returned when statistics are requested for an image
// with no voxel data.
var ErrEmptyPayload = errors.New("mhautil: image has no voxel data")

// ===========================================
// File Information
// ===========================================

// FileInfo provides a summary of a MetaImage file.
type FileInfo struct {
	Path           string
	DataPath       string // companion data file, empty for inline payloads
	NDims          int
	DimSize        []uint16
	Spacing        []float64
	ElementType    mha.ElementType
	Channels       int
	BigEndian      bool
	Compressed     bool
	CompressedSize uint64
	PayloadSize    uint64 // uncompressed payload size in bytes
	HeaderSize     int64  // bytes of header text
	FileSize       int64  // size of Path on disk
	DataFileSize   int64  // size of DataPath on disk
	MetadataKeys   []string
}

// GetFileInfo returns summary information about a MetaImage file. Only the
// header is parsed; the payload is not read.
func GetFileInfo(path string) (*FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	img, consumed, err := mha.ReadHeaderFile(path)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{
		Path:           path,
		NDims:          img.NDims,
		DimSize:        img.DimSize,
		Spacing:        img.Spacing,
		ElementType:    img.ElementType,
		Channels:       img.Channels,
		BigEndian:      img.BigEndian,
		Compressed:     img.Compressed,
		CompressedSize: img.CompressedSize,
		HeaderSize:     consumed,
		FileSize:       fi.Size(),
	}
	if size, err := mha.RequiredSize(img); err == nil {
		info.PayloadSize = size
	}

	for k := range img.Metadata {
		info.MetadataKeys = append(info.MetadataKeys, k)
	}
	sort.Strings(info.MetadataKeys)

	if img.DataFile != mha.LocalDataFile {
		info.DataPath = filepath.Join(filepath.Dir(path), img.DataFile)
		if ds, err := os.Stat(info.DataPath); err == nil {
			info.DataFileSize = ds.Size()
		}
	}

	return info, nil
}

// ===========================================
// Validation
// ===========================================

// ValidationResult contains the results of file validation.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidateFile performs comprehensive validation of a MetaImage file: the
// header is parsed and checked, the payload is read and decompressed, and
// unusual geometry is reported as warnings.
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{Valid: true}

	if _, err := os.Stat(path); err != nil {
		result.fail("cannot access file: %v", err)
		return result, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case mha.ExtInline, mha.ExtHeader:
	default:
		result.warn("unexpected file extension %q", filepath.Ext(path))
	}

	h, _, err := mha.ReadHeaderFile(path)
	if err != nil {
		result.fail("cannot parse header: %v", err)
		return result, nil
	}

	if err := h.Validate(); err != nil {
		result.fail("header validation failed: %v", err)
	}
	if h.ElementType.Size() == 0 {
		result.fail("element type %s has no defined voxel width", h.ElementType)
	}
	if _, err := mha.RequiredSize(h); err != nil {
		result.fail("cannot compute payload size: %v", err)
	}
	if !result.Valid {
		return result, nil
	}

	img, err := mha.ReadFile(path)
	if err != nil {
		result.fail("cannot read payload: %v", err)
		return result, nil
	}

	checkGeometry(img, result)

	if img.Compressed && img.CompressedSize == 0 {
		result.warn("compressed payload has no CompressedDataSize")
	}
	if code, ok := img.Metadata[mhameta.TagAnatomicalOrientation]; ok {
		if _, valid := mhameta.AnatomicalOrientation(img); !valid {
			result.warn("invalid AnatomicalOrientation %q", code)
		}
	}
	for _, d := range img.DimSize {
		if d == 0 {
			result.warn("image has a zero-length axis")
			break
		}
	}

	return result, nil
}

func checkGeometry(img *mha.Image, result *ValidationResult) {
	for i, s := range img.Spacing {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			result.warn("ElementSpacing[%d] = %g is not a positive finite number", i, s)
		}
	}
	for i, o := range img.Offset {
		if math.IsNaN(o) || math.IsInf(o, 0) {
			result.warn("Offset[%d] is not finite", i)
		}
	}
	ok, err := IsOrthonormal(img, 1e-4)
	if err != nil {
		result.warn("cannot check TransformMatrix: %v", err)
	} else if !ok {
		result.warn("TransformMatrix is not orthonormal")
	}
}

// ===========================================
// Comparison
// ===========================================

// CompareOptions configures file comparison behavior.
type CompareOptions struct {
	Tolerance      float64 // Maximum allowed difference for voxel values and geometry
	IgnoreMetadata bool    // If true, only compare layout and voxel data
}

// CompareFiles checks if two MetaImage files have equivalent content.
// Returns true if files match within tolerance, along with any differences found.
func CompareFiles(path1, path2 string, opts CompareOptions) (bool, []string, error) {
	img1, err := mha.ReadFile(path1)
	if err != nil {
		return false, nil, fmt.Errorf("cannot open %s: %w", path1, err)
	}
	img2, err := mha.ReadFile(path2)
	if err != nil {
		return false, nil, fmt.Errorf("cannot open %s: %w", path2, err)
	}
	return CompareImages(img1, img2, opts)
}

// CompareImages compares two decoded images. See CompareFiles.
func CompareImages(img1, img2 *mha.Image, opts CompareOptions) (bool, []string, error) {
	var diffs []string

	if !slices.Equal(img1.DimSize, img2.DimSize) {
		diffs = append(diffs, fmt.Sprintf("dimensions differ: %v vs %v", img1.DimSize, img2.DimSize))
		return false, diffs, nil
	}
	if img1.Channels != img2.Channels {
		diffs = append(diffs, fmt.Sprintf("channel count differs: %d vs %d", img1.Channels, img2.Channels))
		return false, diffs, nil
	}
	if img1.ElementType != img2.ElementType {
		diffs = append(diffs, fmt.Sprintf("element type differs: %s vs %s", img1.ElementType, img2.ElementType))
	}

	if !opts.IgnoreMetadata {
		diffs = append(diffs, compareVector("Offset", img1.Offset, img2.Offset, opts.Tolerance)...)
		diffs = append(diffs, compareVector("ElementSpacing", img1.Spacing, img2.Spacing, opts.Tolerance)...)
		diffs = append(diffs, compareVector("TransformMatrix", img1.TransformMatrix, img2.TransformMatrix, opts.Tolerance)...)
		diffs = append(diffs, compareMetadata(img1.Metadata, img2.Metadata)...)
	}

	if img1.ElementType.IsNumeric() && img2.ElementType.IsNumeric() {
		s1, err := img1.Samples()
		if err != nil {
			return false, nil, fmt.Errorf("error decoding file1 voxels: %w", err)
		}
		s2, err := img2.Samples()
		if err != nil {
			return false, nil, fmt.Errorf("error decoding file2 voxels: %w", err)
		}

		maxDiff := 0.0
		diffCount := 0
		for i, m := 0, min(len(s1), len(s2)); i < m; i++ {
			diff := math.Abs(s1[i] - s2[i])
			if diff > opts.Tolerance {
				diffCount++
				maxDiff = max(maxDiff, diff)
			}
		}
		if diffCount > 0 {
			diffs = append(diffs, fmt.Sprintf("%d voxel values differ (max diff: %g)", diffCount, maxDiff))
		}
	} else if !slices.Equal(img1.Data, img2.Data) {
		diffs = append(diffs, "payload bytes differ")
	}

	return len(diffs) == 0, diffs, nil
}

func compareVector(name string, a, b []float64, tol float64) []string {
	if len(a) != len(b) {
		return []string{fmt.Sprintf("%s length differs: %d vs %d", name, len(a), len(b))}
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return []string{fmt.Sprintf("%s differs: %v vs %v", name, a, b)}
		}
	}
	return nil
}

func compareMetadata(m1, m2 map[string]string) []string {
	var diffs []string
	keys := make([]string, 0, len(m1)+len(m2))
	for k := range m1 {
		keys = append(keys, k)
	}
	for k := range m2 {
		if _, ok := m1[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		v1, ok1 := m1[k]
		v2, ok2 := m2[k]
		switch {
		case !ok2:
			diffs = append(diffs, fmt.Sprintf("tag %q in file1 but not file2", k))
		case !ok1:
			diffs = append(diffs, fmt.Sprintf("tag %q in file2 but not file1", k))
		case v1 != v2:
			diffs = append(diffs, fmt.Sprintf("tag %q differs: %q vs %q", k, v1, v2))
		}
	}
	return diffs
}

// ===========================================
// Conversion Utilities
// ===========================================

// Convert reads a MetaImage file and writes it to output with the given
// options. The layout (.mha or .mhd) follows the output extension.
func Convert(input, output string, opts *mha.WriteOptions) error {
	img, err := mha.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	defer img.Release()

	if err := mha.WriteFile(output, img, opts); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// CopyMetadata copies all pass-through tags from src to dst.
// Tags interpreted by the header codec are never copied.
func CopyMetadata(src, dst *mha.Image) {
	if dst.Metadata == nil {
		dst.Metadata = make(map[string]string, len(src.Metadata))
	}
	for k, v := range src.Metadata {
		if !mha.IsHeaderKey(k) {
			dst.Metadata[k] = v
		}
	}
}

// ===========================================
// Voxel Statistics
// ===========================================

// Stats summarizes the voxel values of an image across all channels.
type Stats struct {
	Count  uint64
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// ComputeStats returns the value range, mean and sample standard deviation
// of every scalar in the payload.
//
// Single-byte element types are reduced to a 256-bin histogram first, so
// large masks do not need a float64 copy of the payload.
func ComputeStats(img *mha.Image) (Stats, error) {
	if len(img.Data) == 0 {
		return Stats{}, ErrEmptyPayload
	}

	switch img.ElementType {
	case mha.ElementUChar, mha.ElementChar:
		return byteStats(img.Data, img.ElementType == mha.ElementChar), nil
	}

	samples, err := img.Samples()
	if err != nil {
		return Stats{}, err
	}
	if len(samples) == 0 {
		return Stats{}, ErrEmptyPayload
	}

	s := Stats{Count: uint64(len(samples)), Min: samples[0], Max: samples[0]}
	for _, v := range samples {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Mean, s.StdDev = stat.MeanStdDev(samples, nil)
	if len(samples) == 1 {
		s.StdDev = 0
	}
	return s, nil
}

func byteStats(data []byte, signed bool) Stats {
	var hist [256]uint64
	for _, b := range data {
		hist[b]++
	}

	values := make([]float64, 0, 256)
	weights := make([]float64, 0, 256)
	for b, n := range hist {
		if n == 0 {
			continue
		}
		v := float64(b)
		if signed {
			v = float64(int8(b))
		}
		values = append(values, v)
		weights = append(weights, float64(n))
	}

	s := Stats{Count: uint64(len(data)), Min: slices.Min(values), Max: slices.Max(values)}
	s.Mean, s.StdDev = stat.MeanStdDev(values, weights)
	if len(data) == 1 {
		s.StdDev = 0
	}
	return s
}

// ByteSum returns the sum of every payload byte. For MET_UCHAR images this
// is the sum of the voxel values and serves as a quick content checksum.
func ByteSum(img *mha.Image) uint64 {
	var sum uint64
	for _, b := range img.Data {
		sum += uint64(b)
	}
	return sum
}

// ===========================================
// Orientation
// ===========================================

// DirectionMatrix returns the TransformMatrix as an NDims x NDims matrix.
func DirectionMatrix(img *mha.Image) (*mat.Dense, error) {
	n := img.NDims
	if n < 1 || len(img.TransformMatrix) != n*n {
		return nil, fmt.Errorf("%w: TransformMatrix has %d values for NDims %d",
			mha.ErrArrayLengthMismatch, len(img.TransformMatrix), n)
	}
	return mat.NewDense(n, n, slices.Clone(img.TransformMatrix)), nil
}

// IsOrthonormal reports whether the direction matrix D satisfies
// D * Dᵀ = I within tol.
func IsOrthonormal(img *mha.Image, tol float64) (bool, error) {
	d, err := DirectionMatrix(img)
	if err != nil {
		return false, err
	}
	n := img.NDims

	var product mat.Dense
	product.Mul(d, d.T())

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	identity := mat.NewDiagDense(n, ones)
	return mat.EqualApprox(&product, identity, tol), nil
}

// Determinant returns the determinant of the direction matrix. A negative
// value means the axes form a left-handed frame.
func Determinant(img *mha.Image) (float64, error) {
	d, err := DirectionMatrix(img)
	if err != nil {
		return 0, err
	}
	return mat.Det(d), nil
}
