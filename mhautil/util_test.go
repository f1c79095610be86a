package mhautil

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mrjoshuak/go-metaimage/mha"
)

func createTestFile(t *testing.T, dir, name string, opts *mha.WriteOptions) (string, *mha.Image) {
	t.Helper()

	img := mha.NewImage(mha.ElementUChar, 16, 8, 4)
	for i := range img.Data {
		img.Data[i] = byte(i % 200)
	}
	img.Spacing = []float64{0.5, 0.5, 2}
	img.Metadata["AnatomicalOrientation"] = "RAI"
	img.Metadata["Modality"] = "MET_MOD_CT"

	path := filepath.Join(dir, name)
	if err := mha.WriteFile(path, img, opts); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path, img
}

func TestGetFileInfo(t *testing.T) {
	dir := t.TempDir()
	path, img := createTestFile(t, dir, "vol.mhd", mha.CompressedWriteOptions())

	info, err := GetFileInfo(path)
	if err != nil {
		t.Fatalf("GetFileInfo() error = %v", err)
	}

	if info.NDims != 3 || !reflect.DeepEqual(info.DimSize, img.DimSize) {
		t.Errorf("NDims %d DimSize %v", info.NDims, info.DimSize)
	}
	if info.ElementType != mha.ElementUChar {
		t.Errorf("ElementType = %s", info.ElementType)
	}
	if !info.Compressed {
		t.Error("Compressed = false, want true")
	}
	if info.PayloadSize != 512 {
		t.Errorf("PayloadSize = %d, want 512", info.PayloadSize)
	}
	if info.DataPath != filepath.Join(dir, "vol.zraw") {
		t.Errorf("DataPath = %q", info.DataPath)
	}
	if uint64(info.DataFileSize) != info.CompressedSize {
		t.Errorf("DataFileSize %d, CompressedSize %d", info.DataFileSize, info.CompressedSize)
	}
	if info.HeaderSize != info.FileSize {
		t.Errorf("header-only file: HeaderSize %d, FileSize %d", info.HeaderSize, info.FileSize)
	}
	if want := []string{"AnatomicalOrientation", "Modality"}; !reflect.DeepEqual(info.MetadataKeys, want) {
		t.Errorf("MetadataKeys = %v, want %v", info.MetadataKeys, want)
	}
}

func TestGetFileInfoInline(t *testing.T) {
	path, _ := createTestFile(t, t.TempDir(), "vol.mha", nil)
	info, err := GetFileInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.DataPath != "" {
		t.Errorf("DataPath = %q for inline file", info.DataPath)
	}
	if info.FileSize != info.HeaderSize+512 {
		t.Errorf("FileSize %d, HeaderSize %d", info.FileSize, info.HeaderSize)
	}
}

func TestGetFileInfoNonexistent(t *testing.T) {
	if _, err := GetFileInfo("/nonexistent/vol.mha"); err == nil {
		t.Error("GetFileInfo() should fail for a missing file")
	}
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path, _ := createTestFile(t, dir, "good.mha", mha.CompressedWriteOptions())
		result, err := ValidateFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !result.Valid || len(result.Errors) != 0 || len(result.Warnings) != 0 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("missing", func(t *testing.T) {
		result, _ := ValidateFile(filepath.Join(dir, "missing.mha"))
		if result.Valid {
			t.Error("missing file reported valid")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.mha")
		os.WriteFile(path, []byte("not a header\n"), 0o644)
		result, _ := ValidateFile(path)
		if result.Valid || len(result.Errors) == 0 {
			t.Errorf("garbage file result = %+v", result)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		path, _ := createTestFile(t, dir, "trunc.mha", nil)
		data, _ := os.ReadFile(path)
		os.WriteFile(path, data[:len(data)-10], 0o644)
		result, _ := ValidateFile(path)
		if result.Valid {
			t.Error("truncated file reported valid")
		}
	})

	t.Run("noWidth", func(t *testing.T) {
		path := filepath.Join(dir, "other.mha")
		os.WriteFile(path, []byte("NDims = 1\nDimSize = 4\nElementType = MET_OTHER\nElementDataFile = LOCAL\n"), 0o644)
		result, _ := ValidateFile(path)
		if result.Valid {
			t.Error("MET_OTHER file reported valid")
		}
	})

	t.Run("warnings", func(t *testing.T) {
		img := mha.NewImage(mha.ElementShort, 4, 4)
		img.TransformMatrix = []float64{2, 0, 0, 1}
		img.Spacing = []float64{1, -1}
		img.Metadata["AnatomicalOrientation"] = "RAIX"
		path := filepath.Join(dir, "odd.mha")
		if err := mha.WriteFile(path, img, nil); err != nil {
			t.Fatal(err)
		}
		result, err := ValidateFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !result.Valid {
			t.Errorf("odd geometry should only warn: %v", result.Errors)
		}
		joined := strings.Join(result.Warnings, "\n")
		for _, want := range []string{"orthonormal", "ElementSpacing[1]", "AnatomicalOrientation"} {
			if !strings.Contains(joined, want) {
				t.Errorf("warnings %q lack %q", joined, want)
			}
		}
	})
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	path1, img := createTestFile(t, dir, "a.mha", nil)
	path2, _ := createTestFile(t, dir, "b.mhd", mha.CompressedWriteOptions())

	equal, diffs, err := CompareFiles(path1, path2, CompareOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !equal {
		t.Errorf("identical content differs: %v", diffs)
	}

	changed := img.Clone()
	changed.Data[10] += 3
	changed.Metadata["Modality"] = "MET_MOD_MR"
	path3 := filepath.Join(dir, "c.mha")
	if err := mha.WriteFile(path3, changed, nil); err != nil {
		t.Fatal(err)
	}

	equal, diffs, _ = CompareFiles(path1, path3, CompareOptions{})
	if equal || len(diffs) != 2 {
		t.Errorf("expected voxel and tag differences, got %v", diffs)
	}

	equal, diffs, _ = CompareFiles(path1, path3, CompareOptions{Tolerance: 5, IgnoreMetadata: true})
	if !equal {
		t.Errorf("differences within tolerance reported: %v", diffs)
	}

	if _, _, err := CompareFiles(path1, filepath.Join(dir, "missing.mha"), CompareOptions{}); err == nil {
		t.Error("CompareFiles() should fail for a missing file")
	}
}

func TestCompareImagesDimensions(t *testing.T) {
	a := mha.NewImage(mha.ElementUChar, 4, 4)
	b := mha.NewImage(mha.ElementUChar, 4, 5)
	equal, diffs, err := CompareImages(a, b, CompareOptions{})
	if err != nil || equal || len(diffs) != 1 || !strings.Contains(diffs[0], "dimensions") {
		t.Errorf("CompareImages() = %v, %v, %v", equal, diffs, err)
	}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	src, img := createTestFile(t, dir, "src.mha", nil)
	dst := filepath.Join(dir, "dst.mhd")

	if err := Convert(src, dst, mha.CompressedWriteOptions()); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	got, err := mha.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Compressed || got.DataFile != "dst.zraw" {
		t.Errorf("Compressed %v DataFile %q", got.Compressed, got.DataFile)
	}
	equal, diffs, _ := CompareImages(got, img, CompareOptions{})
	if !equal {
		t.Errorf("converted image differs: %v", diffs)
	}

	if err := Convert(filepath.Join(dir, "missing.mha"), dst, nil); err == nil {
		t.Error("Convert() should fail for a missing input")
	}
}

func TestCopyMetadata(t *testing.T) {
	src := mha.NewImage(mha.ElementUChar, 2)
	src.Metadata["Comment"] = "hello"
	src.Metadata["NDims"] = "9"
	dst := &mha.Image{}

	CopyMetadata(src, dst)
	if dst.Metadata["Comment"] != "hello" {
		t.Error("Comment not copied")
	}
	if _, ok := dst.Metadata["NDims"]; ok {
		t.Error("header key copied as metadata")
	}
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name  string
		typ   mha.ElementType
		data  []byte
		count uint64
		min   float64
		max   float64
		mean  float64
		std   float64
	}{
		{"uchar", mha.ElementUChar, []byte{1, 2, 3, 4}, 4, 1, 4, 2.5, math.Sqrt(5.0 / 3)},
		{"char", mha.ElementChar, []byte{0xff, 0x01}, 2, -1, 1, 0, math.Sqrt2},
		{"short", mha.ElementShort, []byte{0xfb, 0xff, 0x00, 0x00, 0x05, 0x00}, 3, -5, 5, 0, 5},
		{"single", mha.ElementUChar, []byte{9}, 1, 9, 9, 9, 0},
		{"constant", mha.ElementUChar, []byte{7, 7, 7}, 3, 7, 7, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := mha.NewImage(tt.typ, uint16(tt.count))
			img.Data = tt.data
			s, err := ComputeStats(img)
			if err != nil {
				t.Fatal(err)
			}
			if s.Count != tt.count || s.Min != tt.min || s.Max != tt.max {
				t.Errorf("count/min/max = %d/%v/%v", s.Count, s.Min, s.Max)
			}
			if math.Abs(s.Mean-tt.mean) > 1e-12 || math.Abs(s.StdDev-tt.std) > 1e-12 {
				t.Errorf("mean/std = %v/%v, want %v/%v", s.Mean, s.StdDev, tt.mean, tt.std)
			}
		})
	}

	if _, err := ComputeStats(&mha.Image{ElementType: mha.ElementUChar}); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("empty payload error = %v", err)
	}
}

func TestByteSum(t *testing.T) {
	img := mha.NewImage(mha.ElementUChar, 100, 10)
	for i := 0; i < 7; i++ {
		img.Data[i*11] = 255
	}
	img.Data[999] = 45
	if got := ByteSum(img); got != 7*255+45 {
		t.Errorf("ByteSum() = %d", got)
	}
}

func TestDirectionMatrix(t *testing.T) {
	tests := []struct {
		name        string
		matrix      []float64
		orthonormal bool
		det         float64
	}{
		{"identity", []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, true, 1},
		{"rotZ90", []float64{0, -1, 0, 1, 0, 0, 0, 0, 1}, true, 1},
		{"flipX", []float64{-1, 0, 0, 0, 1, 0, 0, 0, 1}, true, -1},
		{"scaled", []float64{2, 0, 0, 0, 1, 0, 0, 0, 1}, false, 2},
		{"sheared", []float64{1, 0.5, 0, 0, 1, 0, 0, 0, 1}, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := mha.NewImage(mha.ElementUChar, 2, 2, 2)
			img.TransformMatrix = tt.matrix

			d, err := DirectionMatrix(img)
			if err != nil {
				t.Fatal(err)
			}
			if r, c := d.Dims(); r != 3 || c != 3 {
				t.Fatalf("Dims() = %d x %d", r, c)
			}
			if d.At(0, 1) != tt.matrix[1] {
				t.Errorf("At(0, 1) = %v, want row-major %v", d.At(0, 1), tt.matrix[1])
			}

			ok, err := IsOrthonormal(img, 1e-9)
			if err != nil || ok != tt.orthonormal {
				t.Errorf("IsOrthonormal() = %v, %v", ok, err)
			}
			det, err := Determinant(img)
			if err != nil || math.Abs(det-tt.det) > 1e-12 {
				t.Errorf("Determinant() = %v, %v; want %v", det, err, tt.det)
			}
		})
	}

	img := mha.NewImage(mha.ElementUChar, 2, 2)
	img.TransformMatrix = []float64{1, 0, 0}
	if _, err := DirectionMatrix(img); err == nil {
		t.Error("DirectionMatrix() should reject a short matrix")
	}
}
