package mha

import (
	"errors"
	"math"
	"testing"
)

func TestElementTypeCatalog(t *testing.T) {
	tests := []struct {
		literal string
		typ     ElementType
		size    int
		signed  bool
		float   bool
	}{
		{"MET_NONE", ElementNone, 0, false, false},
		{"MET_CHAR", ElementChar, 1, true, false},
		{"MET_UCHAR", ElementUChar, 1, false, false},
		{"MET_SHORT", ElementShort, 2, true, false},
		{"MET_USHORT", ElementUShort, 2, false, false},
		{"MET_INT", ElementInt, 4, true, false},
		{"MET_UINT", ElementUInt, 4, false, false},
		{"MET_LONG", ElementLong, 4, true, false},
		{"MET_ULONG", ElementULong, 4, false, false},
		{"MET_LONG_LONG", ElementLongLong, 8, true, false},
		{"MET_ULONG_LONG", ElementULongLong, 8, false, false},
		{"MET_FLOAT", ElementFloat, 4, true, true},
		{"MET_DOUBLE", ElementDouble, 8, true, true},
		{"MET_STRING", ElementString, 1, false, false},
		{"MET_OTHER", ElementOther, 0, false, false},
	}

	for _, tt := range tests {
		got, err := ParseElementType(tt.literal)
		if err != nil || got != tt.typ {
			t.Errorf("ParseElementType(%q) = %v, %v; want %v", tt.literal, got, err, tt.typ)
		}
		if s := tt.typ.String(); s != tt.literal {
			t.Errorf("%v.String() = %q, want %q", tt.typ, s, tt.literal)
		}
		if tt.typ.Size() != tt.size {
			t.Errorf("%s.Size() = %d, want %d", tt.literal, tt.typ.Size(), tt.size)
		}
		if tt.typ.IsSigned() != tt.signed || tt.typ.IsFloat() != tt.float {
			t.Errorf("%s signed/float = %v/%v", tt.literal, tt.typ.IsSigned(), tt.typ.IsFloat())
		}
	}

	if _, err := ParseElementType("MET_UCHAR_ARRAY"); !errors.Is(err, ErrUnknownEnumValue) {
		t.Errorf("unknown literal error = %v", err)
	}
	if s := ElementType(200).String(); s != "unknown" {
		t.Errorf("ElementType(200).String() = %q", s)
	}
	if ElementType(200).Size() != 0 {
		t.Error("out-of-range element type has non-zero size")
	}
}

func TestObjectType(t *testing.T) {
	if ObjectTypeImage.String() != "Image" {
		t.Errorf("String() = %q", ObjectTypeImage.String())
	}
	if _, err := ParseObjectType("Tube"); !errors.Is(err, ErrUnknownEnumValue) {
		t.Errorf("ParseObjectType(Tube) error = %v", err)
	}
}

func TestRequiredSize(t *testing.T) {
	tests := []struct {
		name     string
		typ      ElementType
		dims     []uint16
		channels int
		want     uint64
	}{
		{"uchar3d", ElementUChar, []uint16{32, 32, 18}, 1, 18432},
		{"short2d", ElementShort, []uint16{10, 20}, 1, 400},
		{"rgbFloat", ElementFloat, []uint16{4, 4}, 3, 192},
		{"double4d", ElementDouble, []uint16{2, 3, 4, 5}, 1, 960},
		{"fixture", ElementUChar, []uint16{1024, 1024, 343}, 1, 359661568},
		{"over4GiB", ElementDouble, []uint16{1024, 1024, 1024}, 1, 8 << 30},
		{"none", ElementNone, []uint16{10, 10}, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := &Image{ElementType: tt.typ, DimSize: tt.dims, Channels: tt.channels}
			got, err := RequiredSize(img)
			if err != nil {
				t.Fatalf("RequiredSize error: %v", err)
			}
			if got != tt.want {
				t.Errorf("RequiredSize = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequiredSizeErrors(t *testing.T) {
	if _, err := RequiredSize(&Image{ElementType: ElementUChar}); !errors.Is(err, ErrEmptyDimensions) {
		t.Errorf("empty dims error = %v", err)
	}

	dims := make([]uint16, 8)
	for i := range dims {
		dims[i] = math.MaxUint16
	}
	img := &Image{ElementType: ElementDouble, DimSize: dims, Channels: 1}
	if _, err := RequiredSize(img); !errors.Is(err, ErrSizeOverflow) {
		t.Errorf("overflow error = %v", err)
	}
}

func TestVoxelCount(t *testing.T) {
	tests := []struct {
		name string
		dims []uint16
		want uint64
		err  error
	}{
		{"volume", []uint16{1024, 1024, 343}, 359661568, nil},
		{"fourMaxAxes", []uint16{65535, 65535, 65535, 65535}, 18445618199572250625, nil},
		{"fiveMaxAxes", []uint16{65535, 65535, 65535, 65535, 65535}, 0, ErrSizeOverflow},
		{"zeroAxis", []uint16{4, 0, 4}, 0, nil},
		{"none", nil, 0, ErrEmptyDimensions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := &Image{ElementType: ElementUChar, DimSize: tt.dims}
			got, err := img.VoxelCount()
			if !errors.Is(err, tt.err) {
				t.Fatalf("VoxelCount() error = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("VoxelCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewImage(t *testing.T) {
	img := NewImage(ElementUShort, 3, 4)
	if err := img.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if len(img.Data) != 24 {
		t.Errorf("len(Data) = %d, want 24", len(img.Data))
	}
	if n, err := img.VoxelCount(); err != nil || n != 12 {
		t.Errorf("VoxelCount() = %d, %v; want 12", n, err)
	}
	if img.DataFile != LocalDataFile {
		t.Errorf("DataFile = %q", img.DataFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Image)
		want   error
	}{
		{"ndimsZero", func(img *Image) { img.NDims = 0 }, ErrMaxDimensions},
		{"channels", func(img *Image) { img.Channels = 0 }, ErrInvalidImage},
		{"dimSize", func(img *Image) { img.DimSize = img.DimSize[:1] }, ErrArrayLengthMismatch},
		{"offset", func(img *Image) { img.Offset = append(img.Offset, 1) }, ErrArrayLengthMismatch},
		{"spacing", func(img *Image) { img.Spacing = nil }, ErrArrayLengthMismatch},
		{"matrix", func(img *Image) { img.TransformMatrix = img.TransformMatrix[:3] }, ErrArrayLengthMismatch},
		{"elementType", func(img *Image) { img.ElementType = 99 }, ErrUnknownEnumValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := NewImage(ElementUChar, 2, 2)
			tt.mutate(img)
			if err := img.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSample(t *testing.T) {
	img := NewImage(ElementShort, 3)
	img.Data = []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}

	want := []float64{1, -1, -32768}
	for i, w := range want {
		got, err := img.Sample(i)
		if err != nil || got != w {
			t.Errorf("Sample(%d) = %v, %v; want %v", i, got, err, w)
		}
	}
	if _, err := img.Sample(3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Sample(3) error = %v", err)
	}

	if err := img.SwapByteOrder(); err != nil {
		t.Fatal(err)
	}
	if !img.BigEndian {
		t.Error("SwapByteOrder did not set BigEndian")
	}
	all, err := img.Samples()
	if err != nil {
		t.Fatal(err)
	}
	for i, w := range want {
		if all[i] != w {
			t.Errorf("after swap Samples()[%d] = %v, want %v", i, all[i], w)
		}
	}

	img.ElementType = ElementOther
	if _, err := img.Sample(0); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("MET_OTHER Sample error = %v", err)
	}
}

func TestSampleFloat(t *testing.T) {
	img := NewImage(ElementFloat, 2)
	img.BigEndian = true
	img.Data = []byte{0x3f, 0x80, 0x00, 0x00, 0xc0, 0x00, 0x00, 0x00}
	got, err := img.Samples()
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 || got[1] != -2 {
		t.Errorf("Samples() = %v, want [1 -2]", got)
	}
}

func TestSetSample(t *testing.T) {
	tests := []struct {
		typ       ElementType
		bigEndian bool
		values    []float64
	}{
		{ElementChar, false, []float64{-128, 0, 127}},
		{ElementUChar, false, []float64{0, 200, 255}},
		{ElementShort, true, []float64{-32768, -1, 1234}},
		{ElementUShort, false, []float64{0, 40000, 65535}},
		{ElementInt, true, []float64{math.MinInt32, -7, 123456}},
		{ElementULong, false, []float64{0, 1, math.MaxUint32}},
		{ElementLongLong, true, []float64{-1 << 40, 0, 1 << 50}},
		{ElementULongLong, false, []float64{0, 1 << 52, 3}},
		{ElementFloat, true, []float64{-2.5, 0, 1e10}},
		{ElementDouble, false, []float64{math.Pi, -0.125, 1e300}},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			img := NewImage(tt.typ, uint16(len(tt.values)))
			img.BigEndian = tt.bigEndian
			for i, v := range tt.values {
				if err := img.SetSample(i, v); err != nil {
					t.Fatalf("SetSample(%d, %v) error = %v", i, v, err)
				}
			}
			got, err := img.Samples()
			if err != nil {
				t.Fatal(err)
			}
			for i, want := range tt.values {
				if got[i] != want {
					t.Errorf("sample %d = %v, want %v", i, got[i], want)
				}
			}
		})
	}

	img := NewImage(ElementShort, 2)
	if err := img.SetSample(2, 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("SetSample(2) error = %v", err)
	}
	if err := img.SetSample(0, 3.9); err != nil {
		t.Fatal(err)
	}
	if v, _ := img.Sample(0); v != 3 {
		t.Errorf("SetSample(0, 3.9) stored %v, want 3", v)
	}
	img.ElementType = ElementString
	if err := img.SetSample(0, 1); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("MET_STRING SetSample error = %v", err)
	}
}

func TestCloneAndRelease(t *testing.T) {
	img := NewImage(ElementUChar, 2, 2)
	img.Metadata["Comment"] = "x"
	img.Data[0] = 7

	c := img.Clone()
	c.Data[0] = 9
	c.DimSize[0] = 5
	c.Metadata["Comment"] = "y"
	if img.Data[0] != 7 || img.DimSize[0] != 2 || img.Metadata["Comment"] != "x" {
		t.Error("Clone shares state with the original")
	}

	img.Release()
	if img.Data != nil || img.DimSize != nil || img.Offset != nil || img.Spacing != nil ||
		img.TransformMatrix != nil || img.Metadata != nil || img.DataFile != "" {
		t.Errorf("Release left state behind: %+v", img)
	}
	if c.Metadata["Comment"] != "y" {
		t.Error("Release affected the clone")
	}
}
