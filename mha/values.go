package mha

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Value parsing errors
var (
	ErrArrayLengthMismatch = errors.New("mha: array length does not match dimensionality")
	ErrInvalidValue        = errors.New("mha: invalid header value")
)

// parseBool accepts only the literals written by MetaIO.
func parseBool(key, value string) (bool, error) {
	switch value {
	case "True":
		return true, nil
	case "False":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s = %q is not True or False", ErrInvalidValue, key, value)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// splitArray splits a value into exactly n whitespace separated fields.
func splitArray(key, value string, n int) ([]string, error) {
	fields := strings.Fields(value)
	if len(fields) != n {
		return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrArrayLengthMismatch, key, len(fields), n)
	}
	return fields, nil
}

func parseFloatArray(key, value string, n int) ([]float64, error) {
	fields, err := splitArray(key, value, n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, f := range fields {
		out[i], err = strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d] = %q", ErrInvalidValue, key, i, f)
		}
	}
	return out, nil
}

func parseUint16Array(key, value string, n int) ([]uint16, error) {
	fields, err := splitArray(key, value, n)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d] = %q", ErrInvalidValue, key, i, f)
		}
		out[i] = uint16(v)
	}
	return out, nil
}

// formatFloat uses the shortest representation that parses back exactly.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeFloatArray appends each value prefixed by a space.
func writeFloatArray(b *strings.Builder, values []float64) {
	for _, v := range values {
		b.WriteByte(' ')
		b.WriteString(formatFloat(v))
	}
}

func writeUint16Array(b *strings.Builder, values []uint16) {
	for _, v := range values {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(v), 10))
	}
}
