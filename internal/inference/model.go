package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/logger"
)

// ModelConfig holds configuration for the model-serving classifier backend.
type ModelConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// ModelClassifier implements Classifier against an HTTP model-serving
// endpoint. Availability is probed exactly once per process on first use;
// when the probe fails every call falls back to the reference classifier.
// A failed call on a warm backend is an error, never a silent class 0.
type ModelClassifier struct {
	client   *resty.Client
	endpoint string
	fallback Classifier

	probeOnce sync.Once
	warm      bool
}

// Model-serving API request/response structures
type classifyRequest struct {
	Image string `json:"image"` // base64-encoded PNG
}

type classifyResponse struct {
	Class *int   `json:"class"`
	Error string `json:"error,omitempty"`
}

// NewModelClassifier creates a model-backed classifier with a fallback.
// Parameters:
//   - cfg: serving endpoint, credentials and call timeout.
//   - fallback: classifier used when the backend never warms up.
// Returns:
//   - *ModelClassifier: initialized classifier.
func NewModelClassifier(cfg *ModelConfig, fallback Classifier) *ModelClassifier {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	return &ModelClassifier{
		client:   client,
		endpoint: cfg.Endpoint,
		fallback: fallback,
	}
}

// warmUp resolves backend availability once per process. Concurrent first
// callers block on the same probe, so the model endpoint is hit once.
func (c *ModelClassifier) warmUp(ctx context.Context) bool {
	c.probeOnce.Do(func() {
		if c.endpoint == "" {
			return
		}
		resp, err := c.client.R().SetContext(ctx).Get(c.endpoint + "/healthz")
		if err != nil || resp.StatusCode() != 200 {
			logger.CtxWarn(ctx, "Classifier model backend unavailable, using reference classifier: endpoint=%s, err=%v",
				c.endpoint, err)
			return
		}
		c.warm = true
	})
	return c.warm
}

// Classify sends the PNG crop to the model backend, or to the fallback when
// the backend reported itself unavailable at warm-up.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - pngBytes: 512x512 PNG from the preprocessing chain.
// Returns:
//   - int: class id, 0 or 1.
//   - error: ErrUnavailable on a failed call to a warm backend.
func (c *ModelClassifier) Classify(ctx context.Context, pngBytes []byte) (int, error) {
	if !c.warmUp(ctx) {
		return c.fallback.Classify(ctx, pngBytes)
	}

	req := classifyRequest{
		Image: base64.StdEncoding.EncodeToString(pngBytes),
	}

	var resp classifyResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.endpoint + "/classify")

	if err != nil {
		return 0, fmt.Errorf("%w: classifier call failed: %v", ErrUnavailable, err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != "" {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error)
		}
		return 0, fmt.Errorf("%w: classifier returned %s", ErrUnavailable, errorMsg)
	}

	if resp.Class == nil {
		return 0, fmt.Errorf("%w: classifier response missing class", ErrUnavailable)
	}
	if *resp.Class != 0 && *resp.Class != 1 {
		return 0, fmt.Errorf("%w: classifier returned class %d outside {0,1}", ErrUnavailable, *resp.Class)
	}

	return *resp.Class, nil
}
