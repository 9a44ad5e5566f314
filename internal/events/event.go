// Package events consumes object-created notifications from the queue and
// hands each uploaded object to the processing pipeline.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMalformedKey marks an object key that does not follow the upload layout.
var ErrMalformedKey = errors.New("object key does not match uploads/{jobId}/{fileName}")

// S3Event is the notification document the object store publishes to the
// queue when an upload lands. Field names follow the S3 event schema.
type S3Event struct {
	// Event is set on configuration probes ("s3:TestEvent") which carry no
	// records and must be acknowledged without processing.
	Event   string          `json:"Event,omitempty"`
	Records []S3EventRecord `json:"Records"`
}

// S3EventRecord is one object-created entry within a notification.
type S3EventRecord struct {
	EventName string        `json:"eventName"`
	S3        S3EventEntity `json:"s3"`
}

// S3EventEntity identifies the bucket and object of a record.
type S3EventEntity struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

// S3Bucket names the bucket of a record.
type S3Bucket struct {
	Name string `json:"name"`
}

// S3Object identifies the object of a record. Key arrives URL-encoded.
type S3Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// ParseEvent decodes a raw queue message body into an S3Event.
// Parameters:
//   - body: raw message body bytes.
// Returns:
//   - *S3Event: decoded event, possibly a record-less test event.
//   - error: non-nil if the body is not a notification document.
func ParseEvent(body []byte) (*S3Event, error) {
	var ev S3Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event body: %w", err)
	}
	return &ev, nil
}

// IsTestEvent reports whether the event is a bucket-notification
// configuration probe rather than a real upload.
func (e *S3Event) IsTestEvent() bool {
	return e.Event == "s3:TestEvent"
}

// DecodeKey reverses the URL encoding applied to object keys in
// notifications, where spaces arrive as '+'.
// Parameters:
//   - raw: key exactly as delivered in the notification.
// Returns:
//   - string: the actual object key.
//   - error: non-nil if the encoding is invalid.
func DecodeKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode object key %q: %w", raw, err)
	}
	return key, nil
}

// JobIDFromKey extracts the job id from an upload key of the form
// uploads/{jobId}/{fileName}.
// Parameters:
//   - key: decoded object key.
// Returns:
//   - string: job id segment.
//   - error: ErrMalformedKey if the layout does not match.
func JobIDFromKey(key string) (string, error) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] != "uploads" || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return parts[1], nil
}
