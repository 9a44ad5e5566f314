package domain

import (
	"strings"
	"testing"
)

// TestLabelsColumnEncoding verifies confidences reach the column as exact
// decimal strings, never binary-float JSON numbers.
func TestLabelsColumnEncoding(t *testing.T) {
	labels := Labels{
		{Name: "Chest", Confidence: 99.875},
		{Name: "X-Ray", Confidence: 70},
	}

	v, err := labels.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("column value is %T, want string", v)
	}
	if !strings.Contains(s, `"confidence":"99.875"`) || !strings.Contains(s, `"confidence":"70"`) {
		t.Errorf("confidences not decimal-encoded: %s", s)
	}

	var got Labels
	if err := got.Scan(s); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != len(labels) {
		t.Fatalf("got %d labels, want %d", len(got), len(labels))
	}
	for i := range labels {
		if got[i] != labels[i] {
			t.Errorf("label %d: got %+v, want %+v (order must be preserved)", i, got[i], labels[i])
		}
	}
}

func TestLabelsColumnNil(t *testing.T) {
	var labels Labels
	v, err := labels.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != "[]" {
		t.Errorf("nil labels encode as %v, want []", v)
	}

	var got Labels
	if err := got.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Scan(nil) = %v, want empty non-nil list", got)
	}
}
