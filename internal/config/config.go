// Package config provides configuration loading and management for the
// MetaImage command-line tools. It handles loading configuration from YAML
// files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mrjoshuak/go-metaimage/compression"
	"github.com/mrjoshuak/go-metaimage/mha"
)

// Config errors
var (
	ErrUnknownPreset    = errors.New("config: unknown compression preset")
	ErrUnknownByteOrder = errors.New("config: byte order must be keep, little or big")
	ErrUnknownExtension = errors.New("config: output extension must be .mha or .mhd")
	ErrInvalidChunkSize = errors.New("config: chunkSize out of range")
)

// Byte order settings for Output.ByteOrder.
const (
	ByteOrderKeep   = "keep"
	ByteOrderLittle = "little"
	ByteOrderBig    = "big"
)

// Preset is a named set of zlib parameters.
type Preset struct {
	// Level is the compression level, -1 (library default) through 9
	Level int `yaml:"level"`

	// MemLevel is the zlib memory level, 1 through 9
	MemLevel int `yaml:"memLevel"`

	// WindowBits selects the window size and framing: 8..15 zlib,
	// 24..31 gzip, -15..-8 raw deflate
	WindowBits int `yaml:"windowBits"`

	// Strategy is one of default, filtered, huffman, rle or fixed
	Strategy string `yaml:"strategy"`
}

// Config represents the tool configuration loaded from YAML
type Config struct {
	// Compression parameters
	Compression struct {
		// Preset names the entry of Presets used when compressing
		Preset string `yaml:"preset"`

		// Presets holds the available parameter sets by name
		Presets map[string]Preset `yaml:"presets"`

		// ChunkSize bounds each input/output window handed to the codec,
		// at most compression.MaxChunkSize. Zero keeps the library default.
		ChunkSize int `yaml:"chunkSize"`
	} `yaml:"compression"`

	// Output parameters
	Output struct {
		// Extension is the default output layout, .mha or .mhd
		Extension string `yaml:"extension"`

		// Compress determines whether payloads are compressed on write
		Compress bool `yaml:"compress"`

		// ByteOrder is keep, little or big
		ByteOrder string `yaml:"byteOrder"`

		// Verbose controls progress output of the tools
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// PresetFromOptions converts codec options into a Preset.
func PresetFromOptions(o compression.Options) Preset {
	return Preset{
		Level:      o.Level,
		MemLevel:   o.MemLevel,
		WindowBits: o.WindowBits,
		Strategy:   o.Strategy.String(),
	}
}

// Options converts the preset into validated codec options.
func (p Preset) Options() (compression.Options, error) {
	strategy, err := compression.ParseStrategy(p.Strategy)
	if err != nil {
		return compression.Options{}, err
	}
	o := compression.Options{
		Level:      p.Level,
		MemLevel:   p.MemLevel,
		WindowBits: p.WindowBits,
		Strategy:   strategy,
	}
	if err := o.Validate(); err != nil {
		return compression.Options{}, err
	}
	return o, nil
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	best := compression.DefaultOptions()
	best.Level = 9
	best.MemLevel = 9

	cfg.Compression.Preset = "balanced"
	cfg.Compression.Presets = map[string]Preset{
		"balanced": PresetFromOptions(compression.DefaultOptions()),
		"fast":     PresetFromOptions(compression.FastOptions()),
		"best":     PresetFromOptions(best),
	}

	cfg.Output.Extension = mha.ExtInline
	cfg.Output.Compress = true
	cfg.Output.ByteOrder = ByteOrderKeep
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
// Presets in the file are merged over the built-in ones.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks every preset and output setting.
func (c *Config) Validate() error {
	for _, name := range c.PresetNames() {
		if _, err := c.Compression.Presets[name].Options(); err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
	}
	if _, ok := c.Compression.Presets[c.Compression.Preset]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, c.Compression.Preset)
	}
	if c.Compression.ChunkSize < 0 || c.Compression.ChunkSize > compression.MaxChunkSize {
		return fmt.Errorf("%w: %d (0 or 1..%d)", ErrInvalidChunkSize, c.Compression.ChunkSize, compression.MaxChunkSize)
	}
	if !slices.Contains([]string{ByteOrderKeep, ByteOrderLittle, ByteOrderBig}, c.Output.ByteOrder) {
		return fmt.Errorf("%w: %q", ErrUnknownByteOrder, c.Output.ByteOrder)
	}
	if c.Output.Extension != mha.ExtInline && c.Output.Extension != mha.ExtHeader {
		return fmt.Errorf("%w: %q", ErrUnknownExtension, c.Output.Extension)
	}
	return nil
}

// PresetNames returns the configured preset names in sorted order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Compression.Presets))
	for name := range c.Compression.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteOptions returns the write options for the named preset. An empty
// name selects Compression.Preset. The result compresses only when
// Output.Compress is set.
func (c *Config) WriteOptions(preset string) (*mha.WriteOptions, error) {
	if preset == "" {
		preset = c.Compression.Preset
	}
	p, ok := c.Compression.Presets[preset]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownPreset, preset, c.PresetNames())
	}
	opts, err := p.Options()
	if err != nil {
		return nil, fmt.Errorf("preset %q: %w", preset, err)
	}
	return &mha.WriteOptions{Compress: c.Output.Compress, Compression: opts}, nil
}

// Apply installs process-wide settings such as the codec chunk size.
func (c *Config) Apply() {
	if c.Compression.ChunkSize > 0 {
		compression.ChunkSize = c.Compression.ChunkSize
	}
}
