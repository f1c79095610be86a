// Package compression provides the deflate codec used for MetaImage payloads.
//
// Voxel payloads routinely exceed 4 GiB, so both directions move data in
// bounded chunks of at most ChunkSize bytes. Decoding accepts zlib or gzip
// framing transparently; encoding produces whatever framing the Options
// select, zlib by default.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// MaxChunkSize is the ceiling on the number of bytes handed to the codec
// per call in either direction.
const MaxChunkSize = 1 << 30

// ChunkSize bounds the number of bytes handed to the codec per call. Values
// outside 1..MaxChunkSize are clamped. Each Inflate or Deflate call reads it
// once on entry.
var ChunkSize = MaxChunkSize

// chunkSize returns ChunkSize clamped to 1..MaxChunkSize.
func chunkSize() int {
	return min(max(ChunkSize, 1), MaxChunkSize)
}

// Codec errors
var (
	ErrDecompressedSizeMismatch = errors.New("compression: decompressed size does not match expected size")
	ErrOutOfMemory              = errors.New("compression: output exceeds addressable memory")
)

// Status classifies a failure reported by the deflate library.
type Status int

const (
	StatusStreamError Status = iota + 1
	StatusDataError
	StatusMemError
	StatusVersionError
)

// String returns the conventional zlib name for the status.
func (s Status) String() string {
	switch s {
	case StatusStreamError:
		return "stream error"
	case StatusDataError:
		return "data error"
	case StatusMemError:
		return "insufficient memory"
	case StatusVersionError:
		return "incompatible version"
	default:
		return "unknown error"
	}
}

// CodecError is returned when the underlying library rejects a stream.
type CodecError struct {
	Op     string // "inflate" or "deflate"
	Status Status
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("compression: %s: %s: %v", e.Op, e.Status, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// classify maps a library error onto a Status.
func classify(op string, err error) error {
	status := StatusStreamError
	var corrupt flate.CorruptInputError
	switch {
	case errors.As(err, &corrupt),
		errors.Is(err, zlib.ErrChecksum), errors.Is(err, zlib.ErrHeader), errors.Is(err, zlib.ErrDictionary),
		errors.Is(err, gzip.ErrChecksum), errors.Is(err, gzip.ErrHeader):
		status = StatusDataError
	case errors.Is(err, ErrOutOfMemory):
		status = StatusMemError
	}
	return &CodecError{Op: op, Status: status, Err: err}
}

// DetectFraming inspects the first bytes of an encoded buffer.
// Raw deflate streams carry no signature and are reported as FramingUnknown.
func DetectFraming(src []byte) Framing {
	if len(src) < 2 {
		return FramingUnknown
	}
	if src[0] == 0x1f && src[1] == 0x8b {
		return FramingGzip
	}
	if _, ok := DetectZlibFLevel(src); ok {
		return FramingZlib
	}
	return FramingUnknown
}

// FLevel represents the compression level category from zlib header.
// This is a 2-bit field in the zlib header indicating the general
// compression level category, not the exact level.
type FLevel int

const (
	FLevelFastest FLevel = 0 // Fastest algorithm (levels -2, 0, 1)
	FLevelFast    FLevel = 1 // Fast algorithm (levels 2, 3, 4, 5)
	FLevelDefault FLevel = 2 // Default algorithm (levels 6, -1)
	FLevelBest    FLevel = 3 // Maximum compression (levels 7, 8, 9)
)

// String returns a short name for the category.
func (f FLevel) String() string {
	switch f {
	case FLevelFastest:
		return "fastest"
	case FLevelFast:
		return "fast"
	case FLevelDefault:
		return "default"
	case FLevelBest:
		return "best"
	default:
		return "unknown"
	}
}

// levelToFLevel returns the header category written for a level.
func levelToFLevel(level int) FLevel {
	switch {
	case level == flate.DefaultCompression || level == 6:
		return FLevelDefault
	case level <= 1:
		return FLevelFastest
	case level <= 5:
		return FLevelFast
	default:
		return FLevelBest
	}
}

// DetectZlibFLevel extracts the FLEVEL from zlib compressed data.
// Returns the FLevel and true if successful, or 0 and false if the
// data is too short or has an invalid header.
func DetectZlibFLevel(data []byte) (FLevel, bool) {
	if len(data) < 2 {
		return 0, false
	}

	cmf := data[0]
	flg := data[1]

	// Deflate method with at most a 32K window
	if cmf&0x0f != 8 || cmf>>4 > 7 {
		return 0, false
	}

	h := uint16(cmf)<<8 | uint16(flg)
	if h%31 != 0 {
		return 0, false
	}

	return FLevel((flg >> 6) & 0x03), true
}

// chunkReader hands out the source in pieces no larger than limit.
type chunkReader struct {
	src   []byte
	pos   int
	limit int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.src) {
		return 0, io.EOF
	}
	n := min(len(p), c.limit, len(c.src)-c.pos)
	copy(p, c.src[c.pos:c.pos+n])
	c.pos += n
	return n, nil
}

// Pooled decoders. Each item owns its chunk reader so a reset only swaps
// the source slice.
type decoderPoolItem struct {
	src  chunkReader
	zlib io.ReadCloser
	gzip *gzip.Reader
	raw  io.ReadCloser
}

var decoderPool = sync.Pool{
	New: func() any {
		return &decoderPoolItem{}
	},
}

// reader returns a decoder for the framing, reusing pooled state when possible.
func (item *decoderPoolItem) reader(framing Framing) (io.Reader, error) {
	var err error
	switch framing {
	case FramingGzip:
		if item.gzip == nil {
			item.gzip, err = gzip.NewReader(&item.src)
		} else {
			err = item.gzip.Reset(&item.src)
		}
		if err != nil {
			return nil, err
		}
		item.gzip.Multistream(false)
		return item.gzip, nil
	case FramingRaw:
		if r, ok := item.raw.(flate.Resetter); ok {
			if err = r.Reset(&item.src, nil); err == nil {
				return item.raw, nil
			}
		}
		item.raw = flate.NewReader(&item.src)
		return item.raw, nil
	default:
		if r, ok := item.zlib.(zlib.Resetter); ok {
			if err = r.Reset(&item.src, nil); err != nil {
				return nil, err
			}
			return item.zlib, nil
		}
		item.zlib, err = zlib.NewReader(&item.src)
		if err != nil {
			item.zlib = nil
			return nil, err
		}
		return item.zlib, nil
	}
}

// Inflate decodes a zlib or gzip framed buffer that must expand to exactly
// expectedSize bytes. A stream that ends early, is truncated, or holds more
// data than expected fails with ErrDecompressedSizeMismatch.
func Inflate(src []byte, expectedSize uint64) ([]byte, error) {
	framing := FramingZlib
	if DetectFraming(src) == FramingGzip {
		framing = FramingGzip
	}
	return inflate(src, expectedSize, framing)
}

// InflateRaw decodes a raw deflate stream without zlib or gzip framing.
func InflateRaw(src []byte, expectedSize uint64) ([]byte, error) {
	return inflate(src, expectedSize, FramingRaw)
}

func inflate(src []byte, size uint64, framing Framing) ([]byte, error) {
	if size > math.MaxInt {
		return nil, classify("inflate", ErrOutOfMemory)
	}
	expectedSize := int(size)
	if len(src) == 0 {
		if expectedSize != 0 {
			return nil, fmt.Errorf("%w: got 0 bytes, want %d", ErrDecompressedSizeMismatch, expectedSize)
		}
		return []byte{}, nil
	}

	chunk := chunkSize()
	item := decoderPool.Get().(*decoderPoolItem)
	item.src = chunkReader{src: src, limit: chunk}
	defer func() {
		item.src = chunkReader{}
		decoderPool.Put(item)
	}()

	r, err := item.reader(framing)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream header truncated", ErrDecompressedSizeMismatch)
		}
		return nil, classify("inflate", err)
	}

	dst := make([]byte, expectedSize)
	cursor := 0
	for cursor < expectedSize {
		end := min(cursor+chunk, expectedSize)
		n, err := io.ReadFull(r, dst[cursor:end])
		cursor += n
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		return nil, classify("inflate", err)
	}

	if cursor != expectedSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrDecompressedSizeMismatch, cursor, expectedSize)
	}

	// The stream must end here: trailing output or a missing trailer both
	// mean the header and payload disagree.
	var probe [1]byte
	for {
		n, err := r.Read(probe[:])
		if n > 0 {
			return nil, fmt.Errorf("%w: stream holds more than %d bytes", ErrDecompressedSizeMismatch, expectedSize)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return dst, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream truncated after %d bytes", ErrDecompressedSizeMismatch, cursor)
		}
		return nil, classify("inflate", err)
	}
}

// Pool for zlib writers at the default settings, the common case when
// writing .mha files.
var zlibWriterPool = sync.Pool{
	New: func() any {
		w, _ := zlib.NewWriterLevel(io.Discard, 6)
		return w
	},
}

// newEncoder builds an encoder writing to dst. The returned release func
// must be called once the encoder is closed.
func newEncoder(dst io.Writer, opts Options) (io.WriteCloser, func(), error) {
	noop := func() {}
	level := opts.effectiveLevel()

	switch opts.Framing() {
	case FramingGzip:
		if opts.Strategy == StrategyRLE {
			level = flate.BestSpeed
		}
		w, err := gzip.NewWriterLevel(dst, level)
		return w, noop, err
	case FramingRaw:
		w, err := newFlateWriter(dst, opts, level)
		return w, noop, err
	}

	if _, custom := opts.customWindow(); custom {
		fw, err := newFlateWriter(dst, opts, level)
		if err != nil {
			return nil, noop, err
		}
		return newZlibWindowWriter(dst, fw, opts), noop, nil
	}

	if opts == DefaultOptions() {
		w := zlibWriterPool.Get().(*zlib.Writer)
		w.Reset(dst)
		return w, func() { zlibWriterPool.Put(w) }, nil
	}
	w, err := zlib.NewWriterLevel(dst, level)
	return w, noop, err
}

func newFlateWriter(dst io.Writer, opts Options, level int) (*flate.Writer, error) {
	if size, custom := opts.customWindow(); custom {
		return flate.NewWriterWindow(dst, size)
	}
	return flate.NewWriter(dst, level)
}

// Deflate compresses src with the given options and returns a new buffer
// holding exactly the encoded bytes. Input is fed to the encoder in
// ChunkSize pieces and the stream is finished after the last one.
func Deflate(src []byte, opts Options) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Compressed output is usually smaller than the input; the buffer grows
	// when it is not.
	out := new(bytes.Buffer)
	out.Grow(len(src))

	w, release, err := newEncoder(out, opts)
	if err != nil {
		return nil, classify("deflate", err)
	}
	defer release()

	chunk := chunkSize()
	for off := 0; off < len(src); off += chunk {
		end := min(off+chunk, len(src))
		if _, err := w.Write(src[off:end]); err != nil {
			w.Close()
			return nil, classify("deflate", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, classify("deflate", err)
	}

	result := make([]byte, out.Len())
	copy(result, out.Bytes())
	return result, nil
}
