package mha

import (
	"bufio"
	"bytes"
	"testing"
)

func FuzzParseHeader(f *testing.F) {
	f.Add([]byte("NDims = 3\nDimSize = 2 2 2\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n"))
	f.Add([]byte("ObjectType = Image\r\nNDims = 2\r\nOrigin = 1 2\r\nElementDataFile = vol.raw\r\n"))
	f.Add([]byte("NDims = 0\nElementDataFile = LOCAL\n"))
	f.Add([]byte("Comment = a = b\n"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		img, consumed, err := ParseHeader(bufio.NewReader(bytes.NewReader(data)))
		if consumed > int64(len(data)) {
			t.Fatalf("consumed %d of %d bytes", consumed, len(data))
		}
		if err != nil {
			return
		}
		if img.NDims < 1 || img.NDims > 255 {
			t.Fatalf("NDims = %d accepted", img.NDims)
		}
		if len(img.Spacing) != img.NDims && img.Spacing != nil {
			// Arrays parsed before a later NDims line keep their length;
			// Validate must catch the mismatch.
			if img.Validate() == nil {
				t.Fatal("Validate accepted mismatched ElementSpacing")
			}
		}
	})
}

func FuzzRead(f *testing.F) {
	var buf bytes.Buffer
	img := NewImage(ElementShort, 3, 2)
	for i := range img.Data {
		img.Data[i] = byte(i)
	}
	Write(&buf, img, nil)
	f.Add(buf.Bytes())

	buf.Reset()
	Write(&buf, img, CompressedWriteOptions())
	f.Add(buf.Bytes())

	f.Fuzz(func(t *testing.T, data []byte) {
		h, _, err := ParseHeader(bufio.NewReader(bytes.NewReader(data)))
		if err != nil {
			return
		}
		if size, err := RequiredSize(h); err != nil || size > 1<<20 {
			return
		}

		img, err := Read(bytes.NewReader(data))
		if err != nil {
			return
		}
		size, err := RequiredSize(img)
		if err != nil {
			t.Fatalf("Read succeeded but RequiredSize failed: %v", err)
		}
		if uint64(len(img.Data)) != size {
			t.Fatalf("payload is %d bytes, want %d", len(img.Data), size)
		}
	})
}
