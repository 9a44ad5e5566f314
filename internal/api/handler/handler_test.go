package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/domain"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStore struct {
	created   []*domain.Job
	job       *domain.Job
	getErr    error
	createErr error
}

func (s *stubStore) CreatePending(_ context.Context, job *domain.Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, job)
	return nil
}

func (s *stubStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.job == nil || s.job.JobID != jobID {
		return nil, repository.ErrNotFound
	}
	return s.job, nil
}

func (s *stubStore) MarkComplete(context.Context, string, *domain.JobResult) error { return nil }
func (s *stubStore) MarkError(context.Context, string, string) error               { return nil }

type stubObjects struct {
	presignPutErr error
	lastKey       string
	lastType      string
}

func (o *stubObjects) Upload(context.Context, string, io.Reader, int64, string) error { return nil }
func (o *stubObjects) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (o *stubObjects) PresignPut(_ context.Context, key string, contentType string, _ time.Duration) (string, error) {
	if o.presignPutErr != nil {
		return "", o.presignPutErr
	}
	o.lastKey = key
	o.lastType = contentType
	return "https://signed.example/put/" + key, nil
}

func (o *stubObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/get/" + key, nil
}

func (o *stubObjects) Exists(context.Context, string) (bool, error) { return false, nil }
func (o *stubObjects) EnsureBucket(context.Context) error           { return nil }

func performJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---- uploads ----

func uploadRouter(store *stubStore, objects *stubObjects) *gin.Engine {
	r := gin.New()
	h := NewUploadHandler(store, objects, time.Hour)
	r.POST("/api/v1/uploads", h.CreateUpload)
	return r
}

func TestCreateUpload(t *testing.T) {
	store := &stubStore{}
	objects := &stubObjects{}
	r := uploadRouter(store, objects)

	w := performJSON(t, r, http.MethodPost, "/api/v1/uploads",
		`{"fileName": "scan.dcm", "fileType": "application/octet-stream"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		JobID     string `json:"jobId"`
		UploadURL string `json:"uploadUrl"`
		Key       string `json:"key"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" || resp.UploadURL == "" {
		t.Errorf("incomplete response: %+v", resp)
	}
	wantKey := "uploads/" + resp.JobID + "/scan.dcm"
	if resp.Key != wantKey {
		t.Errorf("key = %q, want %q", resp.Key, wantKey)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d records, want 1", len(store.created))
	}
	job := store.created[0]
	if job.Status != domain.JobStatusPending {
		t.Errorf("new job status = %s, want pending", job.Status)
	}
	// Declared generic type is corrected for medical-imaging suffixes so the
	// presigned PUT matches what the client sends.
	if job.FileType != "application/dicom" || objects.lastType != "application/dicom" {
		t.Errorf("fileType = %q / presigned %q, want application/dicom", job.FileType, objects.lastType)
	}
}

func TestResolveFileType(t *testing.T) {
	tests := []struct {
		fileName string
		declared string
		want     string
	}{
		{"scan.dcm", "", "application/dicom"},
		{"scan.DCM", "application/octet-stream", "application/dicom"},
		{"study.dicom", "image/jpeg", "application/dicom"},
		{"photo.jpg", "image/jpeg", "image/jpeg"},
		{"photo.png", "", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := resolveFileType(tt.fileName, tt.declared); got != tt.want {
			t.Errorf("resolveFileType(%q, %q) = %q, want %q", tt.fileName, tt.declared, got, tt.want)
		}
	}
}

func TestCreateUploadRejectsBadNames(t *testing.T) {
	store := &stubStore{}
	r := uploadRouter(store, &stubObjects{})

	bad := []string{
		`{"fileName": ""}`,
		`{"fileType": "image/jpeg"}`,
		`{"fileName": "../escape.jpg"}`,
		`{"fileName": "a/b.jpg"}`,
		`{"fileName": "a\\b.jpg"}`,
	}
	for _, body := range bad {
		w := performJSON(t, r, http.MethodPost, "/api/v1/uploads", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
	if len(store.created) != 0 {
		t.Error("rejected requests must not create records")
	}
}

func TestCreateUploadPresignFailure(t *testing.T) {
	store := &stubStore{}
	objects := &stubObjects{presignPutErr: errors.New("storage down")}
	r := uploadRouter(store, objects)

	w := performJSON(t, r, http.MethodPost, "/api/v1/uploads", `{"fileName": "a.jpg"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---- results ----

func resultsRouter(store *stubStore) *gin.Engine {
	r := gin.New()
	h := NewResultsHandler(store)
	r.GET("/api/v1/results", h.GetResult)
	return r
}

func TestGetResultComplete(t *testing.T) {
	flag := 1
	store := &stubStore{job: &domain.Job{
		JobID:      "job-1",
		Status:     domain.JobStatusComplete,
		Labels:     domain.Labels{{Name: "X-Ray", Confidence: 99.5}},
		ClassFlag:  &flag,
		DisplayURL: "https://signed.example/get/converted/job-1/converted.jpg",
	}}
	r := resultsRouter(store)

	w := performJSON(t, r, http.MethodGet, "/api/v1/results?jobId=job-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	for _, field := range []string{`"status":"complete"`, `"flag":1`, `"imageUrl"`, `"labels"`} {
		if !strings.Contains(body, field) {
			t.Errorf("response missing %s: %s", field, body)
		}
	}
	if strings.Contains(body, `"error"`) {
		t.Errorf("complete record must not expose an error field: %s", body)
	}
}

func TestGetResultMissingParam(t *testing.T) {
	r := resultsRouter(&stubStore{})
	w := performJSON(t, r, http.MethodGet, "/api/v1/results", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetResultNotFound(t *testing.T) {
	r := resultsRouter(&stubStore{})
	w := performJSON(t, r, http.MethodGet, "/api/v1/results?jobId=nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetResultStoreFailure(t *testing.T) {
	r := resultsRouter(&stubStore{getErr: errors.New("store down")})
	w := performJSON(t, r, http.MethodGet, "/api/v1/results?jobId=job-1", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---- notify ----

type stubProcessor struct {
	calls [][2]string
	err   error
}

func (p *stubProcessor) Process(_ context.Context, jobID, sourceKey string) error {
	p.calls = append(p.calls, [2]string{jobID, sourceKey})
	return p.err
}

func notifyRouter(p *stubProcessor) *gin.Engine {
	r := gin.New()
	h := NewNotifyHandler(p)
	r.POST("/internal/notify", h.Notify)
	return r
}

func TestNotifyProcessesRecords(t *testing.T) {
	p := &stubProcessor{}
	r := notifyRouter(p)

	w := performJSON(t, r, http.MethodPost, "/internal/notify", `{
		"Records": [{
			"eventName": "ObjectCreated:Put",
			"s3": {"bucket": {"name": "b"}, "object": {"key": "uploads/job-1/x.jpg"}}
		}]
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(p.calls) != 1 || p.calls[0][0] != "job-1" {
		t.Errorf("processor calls = %v", p.calls)
	}
}

func TestNotifyProcessingFailure(t *testing.T) {
	p := &stubProcessor{err: errors.New("record write failed")}
	r := notifyRouter(p)

	w := performJSON(t, r, http.MethodPost, "/internal/notify", `{
		"Records": [{
			"eventName": "ObjectCreated:Put",
			"s3": {"bucket": {"name": "b"}, "object": {"key": "uploads/job-1/x.jpg"}}
		}]
	}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotifyBadBody(t *testing.T) {
	r := notifyRouter(&stubProcessor{})
	w := performJSON(t, r, http.MethodPost, "/internal/notify", "not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
