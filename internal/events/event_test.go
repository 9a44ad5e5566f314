package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/config"
)

func TestParseEventObjectCreated(t *testing.T) {
	body := `{
		"Records": [{
			"eventName": "ObjectCreated:Put",
			"s3": {
				"bucket": {"name": "image-analysis-uploads"},
				"object": {"key": "uploads/abc-123/chest+x-ray.dcm", "size": 52428}
			}
		}]
	}`

	ev, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.IsTestEvent() {
		t.Error("real notification misidentified as test event")
	}
	if len(ev.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(ev.Records))
	}
	rec := ev.Records[0]
	if rec.S3.Bucket.Name != "image-analysis-uploads" {
		t.Errorf("bucket = %q", rec.S3.Bucket.Name)
	}
	if rec.S3.Object.Key != "uploads/abc-123/chest+x-ray.dcm" {
		t.Errorf("key = %q", rec.S3.Object.Key)
	}
}

func TestParseEventTestProbe(t *testing.T) {
	body := `{"Event": "s3:TestEvent", "Bucket": "image-analysis-uploads"}`
	ev, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if !ev.IsTestEvent() {
		t.Error("test event not recognized")
	}
}

func TestParseEventGarbage(t *testing.T) {
	if _, err := ParseEvent([]byte("not json")); err == nil {
		t.Error("garbage body must not parse")
	}
}

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "uploads/j1/scan.dcm", "uploads/j1/scan.dcm"},
		{"plus for space", "uploads/j1/chest+x-ray.dcm", "uploads/j1/chest x-ray.dcm"},
		{"percent encoding", "uploads/j1/caf%C3%A9.jpg", "uploads/j1/café.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeKey(tt.raw)
			if err != nil {
				t.Fatalf("DecodeKey(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("DecodeKey(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestJobIDFromKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"valid", "uploads/abc-123/scan.dcm", "abc-123", false},
		{"nested file name", "uploads/abc-123/dir/scan.dcm", "abc-123", false},
		{"wrong prefix", "converted/abc-123/converted.jpg", "", true},
		{"missing file", "uploads/abc-123/", "", true},
		{"missing job", "uploads//scan.dcm", "", true},
		{"bare key", "scan.dcm", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JobIDFromKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedKey) {
					t.Errorf("JobIDFromKey(%q) err = %v, want ErrMalformedKey", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("JobIDFromKey(%q): %v", tt.key, err)
			}
			if got != tt.want {
				t.Errorf("JobIDFromKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

// ---- consumer ----

type fakeQueue struct {
	mu       sync.Mutex
	deleted  []string
	received int
}

func (q *fakeQueue) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.received++
	return &sqs.ReceiveMessageOutput{}, nil
}

func (q *fakeQueue) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (q *fakeQueue) deletedHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

type recordingProcessor struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (p *recordingProcessor) Process(_ context.Context, jobID, sourceKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]string{jobID, sourceKey})
	return p.err
}

func newTestConsumer(q *fakeQueue, p Processor) *Consumer {
	return NewConsumer(q, p, &config.QueueConfig{
		URL:             "https://sqs.test/queue",
		WaitTimeSeconds: 1,
		MaxMessages:     5,
		Workers:         1,
	}, nil)
}

func message(body string) sqstypes.Message {
	return sqstypes.Message{
		Body:          aws.String(body),
		ReceiptHandle: aws.String("rh-1"),
	}
}

func TestHandleMessageProcessesAndDeletes(t *testing.T) {
	q := &fakeQueue{}
	p := &recordingProcessor{}
	c := newTestConsumer(q, p)

	c.handleMessage(context.Background(), message(`{
		"Records": [{
			"eventName": "ObjectCreated:Put",
			"s3": {
				"bucket": {"name": "b"},
				"object": {"key": "uploads/job-1/chest+x-ray.dcm"}
			}
		}]
	}`))

	if len(p.calls) != 1 {
		t.Fatalf("processor called %d times, want 1", len(p.calls))
	}
	if p.calls[0][0] != "job-1" || p.calls[0][1] != "uploads/job-1/chest x-ray.dcm" {
		t.Errorf("processed %v, want decoded key and job id", p.calls[0])
	}
	if len(q.deletedHandles()) != 1 {
		t.Error("message not deleted after successful processing")
	}
}

func TestHandleMessageKeepsFailedMessage(t *testing.T) {
	q := &fakeQueue{}
	p := &recordingProcessor{err: errors.New("record write failed")}
	c := newTestConsumer(q, p)

	c.handleMessage(context.Background(), message(`{
		"Records": [{
			"eventName": "ObjectCreated:Put",
			"s3": {"bucket": {"name": "b"}, "object": {"key": "uploads/job-1/a.jpg"}}
		}]
	}`))

	if len(p.calls) != 1 {
		t.Fatalf("processor called %d times, want 1", len(p.calls))
	}
	if len(q.deletedHandles()) != 0 {
		t.Error("failed message must stay on the queue for redelivery")
	}
}

func TestHandleMessageAcknowledgesTestEvent(t *testing.T) {
	q := &fakeQueue{}
	p := &recordingProcessor{}
	c := newTestConsumer(q, p)

	c.handleMessage(context.Background(), message(`{"Event": "s3:TestEvent"}`))

	if len(p.calls) != 0 {
		t.Error("test event must not reach the processor")
	}
	if len(q.deletedHandles()) != 1 {
		t.Error("test event must be acknowledged")
	}
}

func TestHandleMessageDropsGarbage(t *testing.T) {
	q := &fakeQueue{}
	p := &recordingProcessor{}
	c := newTestConsumer(q, p)

	c.handleMessage(context.Background(), message("not json"))

	if len(p.calls) != 0 {
		t.Error("garbage must not reach the processor")
	}
	if len(q.deletedHandles()) != 1 {
		t.Error("undecodable message must be deleted, not redelivered forever")
	}
}

func TestHandleMessageSkipsForeignKeys(t *testing.T) {
	q := &fakeQueue{}
	p := &recordingProcessor{}
	c := newTestConsumer(q, p)

	c.handleMessage(context.Background(), message(`{
		"Records": [{
			"eventName": "ObjectCreated:Put",
			"s3": {"bucket": {"name": "b"}, "object": {"key": "converted/job-1/converted.jpg"}}
		}]
	}`))

	if len(p.calls) != 0 {
		t.Error("converted-copy keys must not trigger processing")
	}
	if len(q.deletedHandles()) != 1 {
		t.Error("record outside the upload layout must still be acknowledged")
	}
}
