package inference

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fixedClassifier is a test fallback with a recognizable answer.
type fixedClassifier struct {
	class int
	calls int
}

func (f *fixedClassifier) Classify(context.Context, []byte) (int, error) {
	f.calls++
	return f.class, nil
}

func TestModelClassifierWarmBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/classify":
			var req classifyRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
				t.Errorf("malformed classify request: %v", err)
			}
			one := 1
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(classifyResponse{Class: &one})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fallback := &fixedClassifier{class: 0}
	c := NewModelClassifier(&ModelConfig{Endpoint: srv.URL}, fallback)

	got, err := c.Classify(context.Background(), solidPNG(t, color.RGBA{A: 255}, 512))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got != 1 {
		t.Errorf("Classify = %d, want 1 from the model backend", got)
	}
	if fallback.calls != 0 {
		t.Error("fallback must not be consulted when the backend is warm")
	}
}

// TestModelClassifierColdFallback verifies a failed warm-up probe routes
// every call to the fallback classifier.
func TestModelClassifierColdFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fallback := &fixedClassifier{class: 1}
	c := NewModelClassifier(&ModelConfig{Endpoint: srv.URL}, fallback)

	png := solidPNG(t, color.RGBA{A: 255}, 512)
	for i := 0; i < 3; i++ {
		got, err := c.Classify(context.Background(), png)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if got != 1 {
			t.Errorf("Classify = %d, want fallback answer 1", got)
		}
	}
	if fallback.calls != 3 {
		t.Errorf("fallback called %d times, want 3", fallback.calls)
	}
}

func TestModelClassifierEmptyEndpointFallsBack(t *testing.T) {
	fallback := &fixedClassifier{class: 0}
	c := NewModelClassifier(&ModelConfig{}, fallback)

	if _, err := c.Classify(context.Background(), solidPNG(t, color.RGBA{A: 255}, 64)); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if fallback.calls != 1 {
		t.Error("fallback not consulted for empty endpoint")
	}
}

// TestModelClassifierWarmFailureIsError verifies a failed call on a warm
// backend surfaces ErrUnavailable instead of silently returning a class.
func TestModelClassifierWarmFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(classifyResponse{Error: "model exploded"})
		}
	}))
	defer srv.Close()

	fallback := &fixedClassifier{class: 1}
	c := NewModelClassifier(&ModelConfig{Endpoint: srv.URL}, fallback)

	_, err := c.Classify(context.Background(), solidPNG(t, color.RGBA{A: 255}, 512))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("want ErrUnavailable, got %v", err)
	}
	if fallback.calls != 0 {
		t.Error("fallback must not mask a warm backend failure")
	}
}

func TestModelClassifierRejectsOutOfRangeClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		seven := 7
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(classifyResponse{Class: &seven})
	}))
	defer srv.Close()

	c := NewModelClassifier(&ModelConfig{Endpoint: srv.URL}, &fixedClassifier{})
	_, err := c.Classify(context.Background(), solidPNG(t, color.RGBA{A: 255}, 512))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("want ErrUnavailable for class outside {0,1}, got %v", err)
	}
}
