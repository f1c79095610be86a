// mhainfo prints the header, metadata and optionally voxel statistics of
// MetaImage files.
//
// Usage:
//
//	mhainfo [-stats] <filename> [<filename> ...]
//
// Options:
//
//	-stats        decode the payload and print value statistics
//	-h, --help    print this message
//	--version     print version information
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mrjoshuak/go-metaimage/mha"
	"github.com/mrjoshuak/go-metaimage/mhameta"
	"github.com/mrjoshuak/go-metaimage/mhautil"
)

const version = "1.0.0"

func main() {
	withStats := false
	var files []string

	for _, arg := range os.Args[1:] {
		switch arg {
		case "-stats", "--stats":
			withStats = true
		case "-h", "--help":
			usageMessage(os.Stdout)
			os.Exit(0)
		case "--version":
			fmt.Printf("mhainfo (go-metaimage) %s\n", version)
			os.Exit(0)
		default:
			if strings.HasPrefix(arg, "-") {
				fmt.Fprintf(os.Stderr, "mhainfo: unknown option %s\n", arg)
				usageMessage(os.Stderr)
				os.Exit(2)
			}
			files = append(files, arg)
		}
	}

	if len(files) == 0 {
		usageMessage(os.Stderr)
		os.Exit(2)
	}

	failed := false
	for i, path := range files {
		if i > 0 {
			fmt.Println()
		}
		if err := printInfo(os.Stdout, path, withStats); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func usageMessage(w io.Writer) {
	fmt.Fprintln(w, `Usage: mhainfo [-stats] <filename> [<filename> ...]

Print the header, metadata and optionally voxel statistics of MetaImage files.

Options:
  -stats        decode the payload and print value statistics
  -h, --help    print this message
  --version     print version information`)
}

func printInfo(w io.Writer, path string, withStats bool) error {
	info, err := mhautil.GetFileInfo(path)
	if err != nil {
		return err
	}
	h, _, err := mha.ReadHeaderFile(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "file %s:\n\n", path)
	fmt.Fprintf(w, "dimensions        %d %v\n", info.NDims, info.DimSize)
	fmt.Fprintf(w, "element type      %s x%d\n", info.ElementType, info.Channels)
	fmt.Fprintf(w, "spacing           %v\n", info.Spacing)
	fmt.Fprintf(w, "offset            %v\n", h.Offset)
	fmt.Fprintf(w, "transform matrix  %v\n", h.TransformMatrix)
	if det, err := mhautil.Determinant(h); err == nil {
		handed := "right-handed"
		if det < 0 {
			handed = "left-handed"
		}
		fmt.Fprintf(w, "                  det %.4g, %s\n", det, handed)
	}
	if code, ok := mhameta.AnatomicalOrientation(h); ok {
		fmt.Fprintf(w, "orientation       %s\n", code)
	}
	if m, ok := mhameta.GetModality(h); ok {
		fmt.Fprintf(w, "modality          %s\n", m)
	}

	order := "little-endian"
	if info.BigEndian {
		order = "big-endian"
	}
	fmt.Fprintf(w, "byte order        %s\n", order)
	fmt.Fprintf(w, "header size       %d bytes\n", info.HeaderSize)
	fmt.Fprintf(w, "payload size      %d bytes\n", info.PayloadSize)
	if info.Compressed {
		ratio := 0.0
		if info.CompressedSize > 0 {
			ratio = float64(info.PayloadSize) / float64(info.CompressedSize)
		}
		fmt.Fprintf(w, "compressed size   %d bytes (%.2f:1)\n", info.CompressedSize, ratio)
	}
	if info.DataPath != "" {
		fmt.Fprintf(w, "data file         %s (%d bytes)\n", info.DataPath, info.DataFileSize)
	}

	if len(h.Metadata) > 0 {
		fmt.Fprintf(w, "\nmetadata:\n")
		keys := make([]string, 0, len(h.Metadata))
		for k := range h.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-24s %s\n", k, h.Metadata[k])
		}
	}

	if !withStats {
		return nil
	}

	img, err := mha.ReadFile(path)
	if err != nil {
		return err
	}
	defer img.Release()

	stats, err := mhautil.ComputeStats(img)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nstatistics:\n")
	fmt.Fprintf(w, "  values          %d\n", stats.Count)
	fmt.Fprintf(w, "  min / max       %g / %g\n", stats.Min, stats.Max)
	fmt.Fprintf(w, "  mean            %.6g\n", stats.Mean)
	fmt.Fprintf(w, "  std dev         %.6g\n", stats.StdDev)
	fmt.Fprintf(w, "  byte sum        %d\n", mhautil.ByteSum(img))
	return nil
}
