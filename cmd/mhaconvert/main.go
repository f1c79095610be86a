// mhaconvert rewrites MetaImage files with a different layout, compression
// or byte order.
//
// Usage:
//
//	mhaconvert [options] <input> <output>
//
// The output layout follows the output extension: .mha stores the payload
// inline, .mhd writes a companion .raw or .zraw file. An output without an
// extension gets the configured default.
//
// Compression parameters come from named presets in a YAML configuration
// file (see -write-config for the format). Flags override the file.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrjoshuak/go-metaimage/internal/config"
	"github.com/mrjoshuak/go-metaimage/mha"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	preset := flag.String("preset", "", "compression preset name (default from config)")
	compress := flag.Bool("compress", false, "compress the output payload")
	byteOrder := flag.String("byteorder", "", "output byte order: keep, little or big")
	verbose := flag.Bool("v", false, "verbose output")
	writeConfig := flag.String("write-config", "", "write the default configuration to this path and exit")
	showVersion := flag.Bool("version", false, "print version information")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("mhaconvert (go-metaimage) %s\n", version)
		os.Exit(0)
	}

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		os.Exit(0)
	}

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fatalf("%v", err)
		}
	}

	// Only flags given on the command line override the configuration.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "compress":
			cfg.Output.Compress = *compress
		case "byteorder":
			cfg.Output.ByteOrder = *byteOrder
		case "v":
			cfg.Output.Verbose = *verbose
		case "preset":
			cfg.Compression.Preset = *preset
		}
	})
	if err := cfg.Validate(); err != nil {
		fatalf("%v", err)
	}
	cfg.Apply()

	opts, err := cfg.WriteOptions("")
	if err != nil {
		fatalf("%v", err)
	}

	input, output := flag.Arg(0), flag.Arg(1)
	if filepath.Ext(output) == "" {
		output += cfg.Output.Extension
	}

	if err := convert(input, output, cfg, opts); err != nil {
		fatalf("%v", err)
	}
}

func convert(input, output string, cfg *config.Config, opts *mha.WriteOptions) error {
	verbose := cfg.Output.Verbose
	start := time.Now()

	if verbose {
		fmt.Fprintf(os.Stderr, "reading %s\n", input)
	}
	img, err := mha.ReadFile(input)
	if err != nil {
		return err
	}
	defer img.Release()

	if verbose {
		fmt.Fprintf(os.Stderr, "  %v %s x%d, %d payload bytes", img.DimSize, img.ElementType, img.Channels, len(img.Data))
		if img.Compressed {
			fmt.Fprintf(os.Stderr, " (%d compressed)", img.CompressedSize)
		}
		fmt.Fprintln(os.Stderr)
	}

	wantBig := img.BigEndian
	switch cfg.Output.ByteOrder {
	case config.ByteOrderLittle:
		wantBig = false
	case config.ByteOrderBig:
		wantBig = true
	}
	if wantBig != img.BigEndian {
		if verbose {
			fmt.Fprintf(os.Stderr, "swapping byte order to %s\n", cfg.Output.ByteOrder)
		}
		if err := img.SwapByteOrder(); err != nil {
			return err
		}
	}

	if verbose {
		if opts.Compress {
			fmt.Fprintf(os.Stderr, "writing %s (preset %s)\n", output, cfg.Compression.Preset)
		} else {
			fmt.Fprintf(os.Stderr, "writing %s (uncompressed)\n", output)
		}
	}
	if err := mha.WriteFile(output, img, opts); err != nil {
		return err
	}

	if verbose {
		if info, err := os.Stat(output); err == nil {
			fmt.Fprintf(os.Stderr, "  %d bytes written in %.2fs\n", info.Size(), time.Since(start).Seconds())
		}
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mhaconvert [options] <input> <output>

Convert a MetaImage file to another layout, compression or byte order.
The output layout follows its extension (.mha inline, .mhd + .raw/.zraw).

Options:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  mhaconvert -compress ct.mhd ct.mha          Pack a header/raw pair into one compressed file
  mhaconvert -preset fast -compress in.mha out.mhd
  mhaconvert -byteorder little big.mha little.mha
  mhaconvert -write-config mha.yaml           Write the default presets for editing
`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "mhaconvert: "+format+"\n", args...)
	os.Exit(1)
}
