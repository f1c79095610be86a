// mhacheck validates MetaImage files for correctness.
//
// Usage:
//
//	mhacheck [-q|--quiet] [-s|--strict] <filename> [<filename> ...]
//
// Options:
//
//	-q, --quiet   Only output errors. Exit code indicates pass/fail.
//	-s, --strict  Also report header synonyms, layout mismatches and unusual tags.
//	-h, --help    Show this help message.
//	--version     Show version information.
//
// Exit codes:
//
//	0: All files valid
//	1: One or more files invalid
//	2: Error (file not found, etc.)
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrjoshuak/go-metaimage/compression"
	"github.com/mrjoshuak/go-metaimage/mha"
	"github.com/mrjoshuak/go-metaimage/mhameta"
	"github.com/mrjoshuak/go-metaimage/mhautil"
)

const version = "1.0.0"

// ValidationIssue represents a single validation problem found in a file.
type ValidationIssue struct {
	Severity string // "error" or "warning"
	Message  string
}

// ValidationResult contains all validation results for a file.
type ValidationResult struct {
	Filename string
	Issues   []ValidationIssue
	Checks   []string // List of checks performed
}

// IsValid returns true if there are no errors (warnings are ok).
func (r *ValidationResult) IsValid() bool {
	return !r.HasErrors()
}

// HasErrors returns true if there are any error-level issues.
func (r *ValidationResult) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}

func main() {
	quiet := false
	strict := false
	files := []string{}

	for i := 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		switch arg {
		case "-q", "--quiet":
			quiet = true
		case "-s", "--strict":
			strict = true
		case "-h", "--help":
			printUsage()
			os.Exit(0)
		case "--version":
			fmt.Printf("mhacheck version %s\n", version)
			fmt.Println("Part of go-metaimage - Pure Go MetaImage library")
			fmt.Println("https://github.com/mrjoshuak/go-metaimage")
			os.Exit(0)
		default:
			if strings.HasPrefix(arg, "-") {
				fmt.Fprintf(os.Stderr, "Unknown option: %s\n", arg)
				printUsage()
				os.Exit(2)
			}
			files = append(files, arg)
		}
	}

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Error: No input files specified")
		printUsage()
		os.Exit(2)
	}

	validCount := 0
	errorOccurred := false

	for _, filename := range files {
		result, err := validateFile(filename, strict)
		if err != nil {
			if !quiet {
				fmt.Fprintf(os.Stderr, "%s: error: %v\n", filename, err)
			}
			errorOccurred = true
			continue
		}

		if result.IsValid() {
			validCount++
		}

		if !quiet {
			printResult(result)
		} else if result.HasErrors() {
			for _, issue := range result.Issues {
				if issue.Severity == "error" {
					fmt.Fprintf(os.Stderr, "%s: %s\n", filename, issue.Message)
				}
			}
		}
	}

	if len(files) > 1 && !quiet {
		fmt.Printf("\nSummary: %d of %d files valid\n", validCount, len(files))
	}

	if errorOccurred {
		os.Exit(2)
	}
	if validCount < len(files) {
		os.Exit(1)
	}
	os.Exit(0)
}

func printUsage() {
	fmt.Println(`Usage: mhacheck [options] <filename> [<filename> ...]

Validate MetaImage (.mha/.mhd) files for correctness.

Options:
  -q, --quiet    Only output errors. Exit code indicates pass/fail.
  -s, --strict   Also report header synonyms, layout mismatches and unusual tags.
  -h, --help     Show this help message.
  --version      Show version information.

Exit codes:
  0: All files valid
  1: One or more files invalid
  2: Error (file not found, permission denied, etc.)

Examples:
  mhacheck volume.mha                 Validate a single file
  mhacheck -q *.mhd                   Validate all header files silently
  mhacheck -s volume.mha              Validate with strict mode`)
}

func printResult(result *ValidationResult) {
	if result.IsValid() {
		fmt.Printf("%s: OK\n", result.Filename)
	} else {
		fmt.Printf("%s: INVALID\n", result.Filename)
	}
	for _, issue := range result.Issues {
		fmt.Printf("  [%s] %s\n", strings.ToUpper(issue.Severity), issue.Message)
	}

	if len(result.Issues) > 0 {
		fmt.Printf("  Checks performed: %s\n", strings.Join(result.Checks, ", "))
	}
}

// validateFile validates a single MetaImage file and returns the results.
func validateFile(filename string, strict bool) (*ValidationResult, error) {
	result := &ValidationResult{
		Filename: filename,
		Issues:   []ValidationIssue{},
		Checks:   []string{},
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// 1. Parse header
	result.Checks = append(result.Checks, "header syntax")
	h, consumed, err := mha.ParseHeader(bufio.NewReader(file))
	if err != nil {
		result.addErrorf("failed to parse header: %v", err)
		return result, nil
	}

	// 2. Header fields
	result.Checks = append(result.Checks, "header fields")
	if !validateHeader(h, result) {
		return result, nil
	}

	// 3. Payload location
	result.Checks = append(result.Checks, "data file")
	payload, available, err := openPayload(filename, file, h, consumed, result)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return result, nil
	}
	if payload != file {
		defer payload.Close()
	}

	// 4. Payload size
	result.Checks = append(result.Checks, "payload size")
	validatePayloadSize(h, available, result)

	// 5. Compression framing
	if h.Compressed {
		result.Checks = append(result.Checks, "compression")
		validateFraming(payload, result, strict)
	}

	if result.HasErrors() {
		return result, nil
	}

	// 6. Decode payload
	result.Checks = append(result.Checks, "payload decode")
	img, err := mha.ReadFile(filename)
	if err != nil {
		var codecErr *compression.CodecError
		switch {
		case errors.Is(err, compression.ErrDecompressedSizeMismatch):
			result.addErrorf("decompressed size does not match DimSize: %v", err)
		case errors.As(err, &codecErr):
			result.addErrorf("compressed stream is corrupt (%s): %v", codecErr.Status, err)
		default:
			result.addErrorf("failed to read payload: %v", err)
		}
		return result, nil
	}
	defer img.Release()

	// 7. Geometry
	result.Checks = append(result.Checks, "geometry")
	validateGeometry(img, result)

	// 8. Strict mode additional checks
	if strict {
		result.Checks = append(result.Checks, "strict compliance")
		validateStrictCompliance(filename, consumed, img, result)
	}

	return result, nil
}

func (r *ValidationResult) addError(msg string) {
	r.Issues = append(r.Issues, ValidationIssue{Severity: "error", Message: msg})
}

func (r *ValidationResult) addWarning(msg string) {
	r.Issues = append(r.Issues, ValidationIssue{Severity: "warning", Message: msg})
}

func (r *ValidationResult) addErrorf(format string, args ...any) {
	r.addError(fmt.Sprintf(format, args...))
}

func (r *ValidationResult) addWarningf(format string, args ...any) {
	r.addWarning(fmt.Sprintf(format, args...))
}

// validateHeader checks the descriptor invariants. It returns false when the
// payload cannot be located or sized.
func validateHeader(h *mha.Image, result *ValidationResult) bool {
	ok := true
	if err := h.Validate(); err != nil {
		result.addErrorf("invalid header: %v", err)
		ok = false
	}
	if h.ElementType == mha.ElementNone {
		result.addError("ElementType is missing")
		ok = false
	} else if h.ElementType.Size() == 0 {
		result.addErrorf("ElementType %s has no defined width", h.ElementType)
		ok = false
	}
	if !h.Binary {
		result.addError("ASCII payloads (BinaryData = False) are not supported")
		ok = false
	}
	if _, err := mha.RequiredSize(h); err != nil {
		result.addErrorf("cannot compute payload size: %v", err)
		ok = false
	}
	if h.Channels > 4 {
		result.addWarningf("unusual channel count: %d", h.Channels)
	}
	return ok
}

// openPayload positions a reader at the first payload byte and returns it
// along with the number of payload bytes available. A nil reader means an
// error was recorded in result.
func openPayload(filename string, file *os.File, h *mha.Image, consumed int64, result *ValidationResult) (*os.File, int64, error) {
	if h.DataFile == mha.LocalDataFile {
		stat, err := file.Stat()
		if err != nil {
			return nil, 0, err
		}
		if _, err := file.Seek(consumed, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return file, stat.Size() - consumed, nil
	}

	if h.DataFile == "LIST" || strings.Contains(h.DataFile, "%") {
		result.addErrorf("multi-file ElementDataFile %q is not supported", h.DataFile)
		return nil, 0, nil
	}

	dataPath := filepath.Join(filepath.Dir(filename), h.DataFile)
	df, err := os.Open(dataPath)
	if err != nil {
		result.addErrorf("cannot open data file %s: %v", h.DataFile, err)
		return nil, 0, nil
	}
	stat, err := df.Stat()
	if err != nil {
		df.Close()
		return nil, 0, err
	}
	return df, stat.Size(), nil
}

func validatePayloadSize(h *mha.Image, available int64, result *ValidationResult) {
	required, _ := mha.RequiredSize(h)

	if !h.Compressed {
		switch {
		case uint64(available) < required:
			result.addErrorf("payload truncated: %d bytes available, DimSize requires %d", available, required)
		case uint64(available) > required:
			result.addWarningf("%d trailing bytes after payload", uint64(available)-required)
		}
		return
	}

	if h.CompressedSize == 0 {
		result.addWarning("CompressedDataSize is missing; the payload extends to end of file")
		return
	}
	switch {
	case h.CompressedSize > uint64(available):
		result.addErrorf("CompressedDataSize %d exceeds the %d bytes available", h.CompressedSize, available)
	case h.CompressedSize < uint64(available):
		result.addWarningf("%d trailing bytes after compressed payload", uint64(available)-h.CompressedSize)
	}
}

func validateFraming(payload io.Reader, result *ValidationResult, strict bool) {
	head := make([]byte, 2)
	n, _ := io.ReadFull(payload, head)
	head = head[:n]

	switch compression.DetectFraming(head) {
	case compression.FramingZlib:
		if level, ok := compression.DetectZlibFLevel(head); ok && strict && level == compression.FLevelFastest {
			result.addWarningf("payload compressed with the %s zlib level", level)
		}
	case compression.FramingGzip:
		if strict {
			result.addWarning("payload uses gzip framing; some MetaIO readers only accept zlib")
		}
	default:
		result.addErrorf("payload does not start with a zlib or gzip header (% x)", head)
	}
}

func validateGeometry(img *mha.Image, result *ValidationResult) {
	for i, s := range img.Spacing {
		if s <= 0 {
			result.addWarningf("ElementSpacing[%d] = %g is not positive", i, s)
		}
	}
	ok, err := mhautil.IsOrthonormal(img, 1e-4)
	switch {
	case err != nil:
		result.addWarningf("cannot check TransformMatrix: %v", err)
	case !ok:
		result.addWarning("TransformMatrix is not orthonormal")
	}
}

// synonyms maps accepted alternate header keys to their canonical names.
var synonyms = map[string]string{
	"ElementByteOrderMSB": "BinaryDataByteOrderMSB",
	"Rotation":            "TransformMatrix",
	"Orientation":         "TransformMatrix",
	"Origin":              "Offset",
	"Position":            "Offset",
}

// validateStrictCompliance re-reads the header text to report writer habits
// the parser tolerates silently.
func validateStrictCompliance(filename string, headerSize int64, img *mha.Image, result *ValidationResult) {
	f, err := os.Open(filename)
	if err != nil {
		result.addWarningf("cannot re-read header: %v", err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(io.LimitReader(f, headerSize))
	scanner.Buffer(make([]byte, 64*1024), int(max(headerSize, 64*1024)))
	seen := make(map[string]bool)
	crlf := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasSuffix(line, "\r") {
			crlf = true
			line = strings.TrimSuffix(line, "\r")
		}
		key, _, _ := strings.Cut(line, " = ")
		if canonical, ok := synonyms[key]; ok {
			result.addWarningf("header uses %s instead of %s", key, canonical)
		}
		if seen[key] {
			result.addWarningf("tag %s appears more than once", key)
		}
		seen[key] = true
	}
	if crlf {
		result.addWarning("header uses CRLF line endings")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == mha.ExtInline && img.DataFile != mha.LocalDataFile:
		result.addWarningf(".mha file references external data %s", img.DataFile)
	case ext == mha.ExtHeader && img.DataFile == mha.LocalDataFile:
		result.addWarning(".mhd file carries its payload inline")
	case ext != mha.ExtInline && ext != mha.ExtHeader:
		result.addWarningf("unexpected file extension %q", filepath.Ext(filename))
	}

	if code, ok := img.Metadata[mhameta.TagAnatomicalOrientation]; ok {
		if _, valid := mhameta.AnatomicalOrientation(img); !valid {
			result.addWarningf("invalid AnatomicalOrientation %q", code)
		}
	}
	if c, ok := img.Metadata[mhameta.TagCenterOfRotation]; ok && mhameta.CenterOfRotation(img) == nil {
		result.addWarningf("CenterOfRotation %q does not have %d values", c, img.NDims)
	}
	if _, ok := img.Metadata[mhameta.TagHeaderSize]; ok {
		result.addWarning("HeaderSize is set but not honored by this reader")
	}
}
