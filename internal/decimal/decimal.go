// Package decimal converts between native floats and the exact-decimal
// string representation used by the job record store. The reference store
// (DynamoDB) has no binary float type; every numeric leaf of a job record
// must pass through this codec on write and its inverse on read.
package decimal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FromFloat encodes a native float as an exact decimal string in plain
// notation (no exponent). The shortest representation that round-trips to
// the same float64 is used.
// Parameters:
//   - f: value to encode.
// Returns:
//   - string: exact decimal representation.
//   - error: non-nil if f is NaN or infinite (not representable).
func FromFloat(f float64) (string, error) {
	if math.IsNaN(f) {
		return "", fmt.Errorf("cannot encode NaN as decimal")
	}
	if math.IsInf(f, 0) {
		return "", fmt.Errorf("cannot encode infinity as decimal")
	}
	// 'f' keeps plain notation; -1 picks the shortest exact representation.
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// ToFloat decodes an exact decimal string back into a native float.
// Parameters:
//   - s: decimal string produced by FromFloat or by the store.
// Returns:
//   - float64: decoded value.
//   - error: non-nil if s is not a valid decimal number.
func ToFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return f, nil
}

// FromInt encodes an integer for the store's numeric type.
func FromInt(i int) string {
	return strconv.Itoa(i)
}

// ToInt decodes a stored numeric string into an integer. Stores that write
// integral numbers with a fractional part ("1.0") are tolerated.
// Parameters:
//   - s: numeric string from the store.
// Returns:
//   - int: decoded value.
//   - error: non-nil if s is not an integral number.
func ToInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", s, err)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid integer %q: fractional value", s)
	}
	return int(f), nil
}
