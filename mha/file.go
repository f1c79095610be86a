package mha

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrjoshuak/go-metaimage/compression"
)

// File errors
var (
	ErrUnsupportedExtension    = errors.New("mha: unsupported file extension")
	ErrUnsupportedFormat       = errors.New("mha: unsupported image format")
	ErrPayloadSizeUnavailable  = errors.New("mha: payload size unavailable")
	ErrPayloadSizeMismatch     = errors.New("mha: payload length does not match image size")
	ErrExternalDataUnavailable = errors.New("mha: external data file cannot be resolved from a stream")
)

// File name extensions.
const (
	ExtInline        = ".mha"  // header and payload in one file
	ExtHeader        = ".mhd"  // header only, payload in a companion file
	ExtRaw           = ".raw"  // uncompressed companion payload
	ExtCompressedRaw = ".zraw" // compressed companion payload
)

// Multi-file ElementDataFile forms.
const (
	listDataFile    = "LIST"
	patternDataFile = "%"
)

// WriteOptions controls how the payload is stored.
// A nil *WriteOptions writes an uncompressed payload.
type WriteOptions struct {
	Compress    bool
	Compression compression.Options
}

// CompressedWriteOptions returns options that compress with the balanced preset.
func CompressedWriteOptions() *WriteOptions {
	return &WriteOptions{Compress: true, Compression: compression.DefaultOptions()}
}

// Read reads an image whose payload follows the header in r.
// Headers that reference an external data file need ReadFile.
func Read(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	img, _, err := ParseHeader(br)
	if err != nil {
		return nil, err
	}
	if img.DataFile != LocalDataFile {
		return nil, fmt.Errorf("%w: %s", ErrExternalDataUnavailable, img.DataFile)
	}
	if err := readPayload(br, img, -1); err != nil {
		return nil, err
	}
	return img, nil
}

// ReadFile reads a .mha or .mhd image. An external data file is resolved
// relative to the header's directory.
func ReadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	img, consumed, err := ParseHeader(br)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if img.DataFile == LocalDataFile {
		stat, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if err := readPayload(br, img, stat.Size()-consumed); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	}

	if err := checkDataFile(img.DataFile); err != nil {
		return nil, err
	}
	dataPath := filepath.Join(filepath.Dir(path), img.DataFile)
	df, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	defer df.Close()

	stat, err := df.Stat()
	if err != nil {
		return nil, err
	}
	if err := readPayload(bufio.NewReader(df), img, stat.Size()); err != nil {
		return nil, fmt.Errorf("%s: %w", dataPath, err)
	}
	return img, nil
}

// ReadHeaderFile parses only the header of a .mha or .mhd file.
// The returned image has no payload.
func ReadHeaderFile(path string) (*Image, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ParseHeader(bufio.NewReader(f))
}

// checkDataFile rejects multi-file payload layouts.
func checkDataFile(name string) error {
	if name == listDataFile || strings.Contains(name, patternDataFile) {
		return fmt.Errorf("%w: multi-file ElementDataFile %q", ErrUnsupportedFormat, name)
	}
	return nil
}

// payloadSize returns RequiredSize as an allocatable length.
func payloadSize(img *Image) (int, error) {
	size, err := RequiredSize(img)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPayloadSizeUnavailable, err)
	}
	if size > math.MaxInt {
		return 0, fmt.Errorf("%w: %d bytes", ErrSizeOverflow, size)
	}
	return int(size), nil
}

// readPayload reads and, if needed, decompresses the payload from r.
// available is the number of bytes left in the source, or -1 if unknown.
func readPayload(r io.Reader, img *Image, available int64) error {
	if !img.Binary {
		return fmt.Errorf("%w: ASCII payload", ErrUnsupportedFormat)
	}
	size, err := payloadSize(img)
	if err != nil {
		return err
	}

	if !img.Compressed {
		if available >= 0 && int64(size) > available {
			return fmt.Errorf("mha: payload of %d bytes exceeds %d available bytes: %w",
				size, available, io.ErrUnexpectedEOF)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return fmt.Errorf("mha: read payload of %d bytes: %w", size, err)
		}
		img.Data = data
		return nil
	}

	var encoded []byte
	switch {
	case img.CompressedSize > 0:
		if available >= 0 && img.CompressedSize > uint64(available) {
			return fmt.Errorf("mha: CompressedDataSize %d exceeds %d available bytes: %w",
				img.CompressedSize, available, io.ErrUnexpectedEOF)
		}
		if img.CompressedSize > math.MaxInt {
			return fmt.Errorf("%w: CompressedDataSize %d", ErrSizeOverflow, img.CompressedSize)
		}
		encoded = make([]byte, img.CompressedSize)
		_, err = io.ReadFull(r, encoded)
	case available >= 0:
		encoded = make([]byte, available)
		_, err = io.ReadFull(r, encoded)
	default:
		encoded, err = io.ReadAll(r)
	}
	if err != nil {
		return fmt.Errorf("mha: read compressed payload: %w", err)
	}

	data, err := compression.Inflate(encoded, uint64(size))
	if err != nil {
		return fmt.Errorf("mha: decompress payload: %w", err)
	}
	img.Data = data
	img.CompressedSize = uint64(len(encoded))
	return nil
}

// encodePayload returns a header copy describing how the payload will be
// stored, and the bytes to store. img is not modified.
func encodePayload(img *Image, opts *WriteOptions) (*Image, []byte, error) {
	if !img.Binary {
		return nil, nil, fmt.Errorf("%w: ASCII payload", ErrUnsupportedFormat)
	}
	if err := img.Validate(); err != nil {
		return nil, nil, err
	}
	size, err := payloadSize(img)
	if err != nil {
		return nil, nil, err
	}
	if len(img.Data) != size {
		return nil, nil, fmt.Errorf("%w: have %d bytes, want %d", ErrPayloadSizeMismatch, len(img.Data), size)
	}

	h := *img
	h.Compressed = opts != nil && opts.Compress
	h.CompressedSize = 0
	if !h.Compressed {
		return &h, img.Data, nil
	}

	encoded, err := compression.Deflate(img.Data, opts.Compression)
	if err != nil {
		return nil, nil, fmt.Errorf("mha: compress payload: %w", err)
	}
	h.CompressedSize = uint64(len(encoded))
	return &h, encoded, nil
}

// Write writes img to w with the payload inline after the header.
func Write(w io.Writer, img *Image, opts *WriteOptions) error {
	h, payload, err := encodePayload(img, opts)
	if err != nil {
		return err
	}
	if err := WriteHeader(w, h, LocalDataFile); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("mha: write payload: %w", err)
	}
	return nil
}

// WriteFile writes img to path. A .mha path stores the payload inline;
// a .mhd path stores it in a companion .raw (or .zraw when compressed) file
// with the same base name.
func WriteFile(path string, img *Image, opts *WriteOptions) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtInline && ext != ExtHeader {
		return fmt.Errorf("%w: %q", ErrUnsupportedExtension, filepath.Ext(path))
	}

	h, payload, err := encodePayload(img, opts)
	if err != nil {
		return err
	}

	if ext == ExtInline {
		return writeFileWith(path, func(w io.Writer) error {
			if err := WriteHeader(w, h, LocalDataFile); err != nil {
				return err
			}
			_, err := w.Write(payload)
			return err
		})
	}

	dataExt := ExtRaw
	if h.Compressed {
		dataExt = ExtCompressedRaw
	}
	dataPath := strings.TrimSuffix(path, filepath.Ext(path)) + dataExt
	if err := writeFileWith(dataPath, func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	}); err != nil {
		return err
	}
	return writeFileWith(path, func(w io.Writer) error {
		return WriteHeader(w, h, filepath.Base(dataPath))
	})
}

// writeFileWith creates path, runs fn against a buffered writer and removes
// the partial file if anything fails.
func writeFileWith(path string, fn func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(path)
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	if err = fn(bw); err != nil {
		return fmt.Errorf("mha: write %s: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("mha: write %s: %w", path, err)
	}
	return f.Close()
}
