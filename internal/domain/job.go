package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/decimal"
)

// JobStatus represents the lifecycle state of an analysis job.
// A job starts pending and moves exactly once to complete or error.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// Label is one detector result: a label name with its confidence in [0,100].
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// encodedLabel is the persisted form of Label. Confidence is stored as an
// exact decimal string so no binary float ever reaches the database column.
type encodedLabel struct {
	Name       string `json:"name"`
	Confidence string `json:"confidence"`
}

// Labels is an ordered list of detector results, stored as JSON text with
// codec-encoded confidences.
type Labels []Label

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded representation with decimal confidences.
//   - error: non-nil if encoding fails.
func (ls Labels) Value() (driver.Value, error) {
	if ls == nil {
		return "[]", nil
	}
	encoded := make([]encodedLabel, 0, len(ls))
	for _, l := range ls {
		c, err := decimal.FromFloat(l.Confidence)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, encodedLabel{Name: l.Name, Confidence: c})
	}
	b, err := json.Marshal(encoded)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (ls *Labels) Scan(value interface{}) error {
	if value == nil {
		*ls = Labels{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Labels")
		}
		bytes = []byte(str)
	}
	var encoded []encodedLabel
	if err := json.Unmarshal(bytes, &encoded); err != nil {
		return err
	}
	out := make(Labels, 0, len(encoded))
	for _, e := range encoded {
		c, err := decimal.ToFloat(e.Confidence)
		if err != nil {
			return err
		}
		out = append(out, Label{Name: e.Name, Confidence: c})
	}
	*ls = out
	return nil
}

// Job is the sole persistent entity: one record per uploaded image,
// keyed by JobID. The JSON tags match the attribute names of the
// original analysis-results table so deployments can share data.
type Job struct {
	JobID        string    `gorm:"column:job_id;type:text;primaryKey" json:"jobId"`
	Status       JobStatus `gorm:"type:text;default:pending" json:"status"`
	SourceKey    string    `gorm:"column:source_key;type:text;not null" json:"s3Key"`
	FileName     string    `gorm:"type:text" json:"fileName"`
	FileType     string    `gorm:"type:text" json:"fileType"`
	ConvertedKey string    `gorm:"column:converted_key;type:text" json:"convertedKey,omitempty"`
	Labels       Labels    `gorm:"type:text" json:"labels,omitempty"`
	ClassFlag    *int      `gorm:"column:class_flag" json:"flag,omitempty"`
	DisplayURL   string    `gorm:"column:display_url;type:text" json:"imageUrl,omitempty"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "analysis_jobs"
}

// JobResult carries the merged inference outputs of a successful pipeline
// run into the terminal record write.
type JobResult struct {
	Labels       Labels
	ClassFlag    int
	ConvertedKey string // empty unless the source required format conversion
	DisplayURL   string // empty unless ConvertedKey is set
}
