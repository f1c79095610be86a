package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/flate"
)

// Option validation errors
var (
	ErrInvalidLevel      = errors.New("compression: level out of range (-1 to 9)")
	ErrInvalidMemLevel   = errors.New("compression: memory level out of range (1 to 9)")
	ErrInvalidWindowBits = errors.New("compression: unsupported window bits")
	ErrInvalidStrategy   = errors.New("compression: unknown strategy")
)

// Strategy is a hint about the data being compressed.
type Strategy int

const (
	// StrategyDefault is suitable for most data.
	StrategyDefault Strategy = iota
	// StrategyFiltered is accepted for zlib compatibility. The deflater has
	// no filtered mode, so it encodes like StrategyDefault.
	StrategyFiltered
	// StrategyHuffmanOnly disables string matching entirely.
	StrategyHuffmanOnly
	// StrategyRLE limits matches to a very short history, which suits long
	// runs of identical voxels such as background regions.
	StrategyRLE
	// StrategyFixed is accepted for zlib compatibility. The deflater picks
	// block types itself, so it encodes like StrategyDefault.
	StrategyFixed
)

var strategyNames = map[Strategy]string{
	StrategyDefault:     "default",
	StrategyFiltered:    "filtered",
	StrategyHuffmanOnly: "huffman",
	StrategyRLE:         "rle",
	StrategyFixed:       "fixed",
}

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy returns the strategy for a configuration name.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return StrategyDefault, fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
}

// Framing identifies the container wrapped around a deflate stream.
type Framing int

const (
	FramingUnknown Framing = iota
	FramingZlib
	FramingGzip
	FramingRaw
)

// String returns a short name for the framing.
func (f Framing) String() string {
	switch f {
	case FramingZlib:
		return "zlib"
	case FramingGzip:
		return "gzip"
	case FramingRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Options holds the deflate tunables.
//
// WindowBits follows the zlib convention: 8..15 selects zlib framing with a
// 2^WindowBits history, 16 is added for gzip framing (24..31), and a negative
// value (-15..-8) produces a raw deflate stream without any container.
//
// MemLevel is validated and carried for interoperability with configuration
// written for zlib; the pure Go deflater sizes its tables internally.
type Options struct {
	Level      int
	MemLevel   int
	WindowBits int
	Strategy   Strategy
}

// DefaultOptions returns the balanced preset.
func DefaultOptions() Options {
	return Options{
		Level:      6,
		MemLevel:   8,
		WindowBits: 15,
		Strategy:   StrategyDefault,
	}
}

// FastOptions returns the preset tuned for maximum speed.
func FastOptions() Options {
	return Options{
		Level:      flate.BestSpeed,
		MemLevel:   9,
		WindowBits: 15,
		Strategy:   StrategyRLE,
	}
}

// Validate reports whether the options can be used to build an encoder.
func (o Options) Validate() error {
	if o.Level < flate.DefaultCompression || o.Level > flate.BestCompression {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, o.Level)
	}
	if o.MemLevel < 1 || o.MemLevel > 9 {
		return fmt.Errorf("%w: %d", ErrInvalidMemLevel, o.MemLevel)
	}
	if o.Framing() == FramingUnknown {
		return fmt.Errorf("%w: %d", ErrInvalidWindowBits, o.WindowBits)
	}
	if _, ok := strategyNames[o.Strategy]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidStrategy, o.Strategy)
	}
	return nil
}

// Framing returns the container selected by WindowBits.
func (o Options) Framing() Framing {
	switch {
	case o.WindowBits >= 8 && o.WindowBits <= 15:
		return FramingZlib
	case o.WindowBits >= 24 && o.WindowBits <= 31:
		return FramingGzip
	case o.WindowBits >= -15 && o.WindowBits <= -8:
		return FramingRaw
	default:
		return FramingUnknown
	}
}

// windowSize returns the history size in bytes.
func (o Options) windowSize() int {
	bits := o.WindowBits
	switch o.Framing() {
	case FramingGzip:
		bits -= 16
	case FramingRaw:
		bits = -bits
	}
	return 1 << bits
}

// effectiveLevel maps the strategy onto a deflater level.
func (o Options) effectiveLevel() int {
	if o.Strategy == StrategyHuffmanOnly {
		return flate.HuffmanOnly
	}
	return o.Level
}

// customWindow reports whether the encoder needs a reduced history, and its size.
func (o Options) customWindow() (int, bool) {
	if o.Strategy == StrategyRLE {
		return rleWindowSize, true
	}
	if size := o.windowSize(); size < maxWindowSize {
		return size, true
	}
	return 0, false
}

const (
	maxWindowSize = 1 << 15
	// rleWindowSize is the smallest history the deflater accepts, so matches
	// stay local the way a run-length strategy expects.
	rleWindowSize = 32
)
