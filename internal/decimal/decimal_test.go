package decimal

import (
	"math"
	"strings"
	"testing"
)

// TestFloatRoundTrip verifies that encoding then decoding yields the
// original value exactly.
func TestFloatRoundTrip(t *testing.T) {
	values := []float64{
		0,
		1,
		-1,
		99.87654321,
		70.0000001,
		0.000001,
		123456789.123456,
		-273.15,
		math.MaxFloat64,
		math.SmallestNonzeroFloat64,
	}

	for _, v := range values {
		s, err := FromFloat(v)
		if err != nil {
			t.Fatalf("FromFloat(%v) error: %v", v, err)
		}
		got, err := ToFloat(s)
		if err != nil {
			t.Fatalf("ToFloat(%q) error: %v", s, err)
		}
		if got != v {
			t.Errorf("round trip mismatch: %v -> %q -> %v", v, s, got)
		}
	}
}

// TestFromFloatPlainNotation verifies the encoding never uses exponent
// notation, which the store's numeric type does not accept.
func TestFromFloatPlainNotation(t *testing.T) {
	values := []float64{1e20, 1e-10, 99.9, 0.5}
	for _, v := range values {
		s, err := FromFloat(v)
		if err != nil {
			t.Fatalf("FromFloat(%v) error: %v", v, err)
		}
		if strings.ContainsAny(s, "eE") {
			t.Errorf("FromFloat(%v) = %q, want plain notation", v, s)
		}
	}
}

func TestFromFloatRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := FromFloat(v); err == nil {
			t.Errorf("FromFloat(%v) should fail", v)
		}
	}
}

func TestToInt(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "plain integer", input: "1", want: 1},
		{name: "zero", input: "0", want: 0},
		{name: "integral with fraction digits", input: "1.0", want: 1},
		{name: "whitespace", input: " 42 ", want: 42},
		{name: "fractional", input: "1.5", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToInt(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ToInt(%q) should fail, got %d", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToInt(%q) error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ToInt(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestFromInt(t *testing.T) {
	if got := FromInt(1); got != "1" {
		t.Errorf("FromInt(1) = %q, want \"1\"", got)
	}
	if got := FromInt(0); got != "0" {
		t.Errorf("FromInt(0) = %q, want \"0\"", got)
	}
}
