package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/config"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/decimal"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/domain"
)

// timeLayout is the stored timestamp format (ISO-8601, UTC).
const timeLayout = time.RFC3339

// DynamoStore is the reference JobStore backend. Attribute names match the
// original analysis-results table so a reimplementation can share a
// deployment with existing data. Every numeric leaf is written as the
// store's exact-decimal N type through the codec; the item-level UpdateItem
// used for terminal transitions is atomic per key.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoStore creates a DynamoDB-backed job store.
// Parameters:
//   - cfg: table name, region and optional local endpoint.
// Returns:
//   - *DynamoStore: initialized store.
//   - error: non-nil if the AWS configuration cannot be loaded.
func NewDynamoStore(cfg *config.DatabaseConfig) (*DynamoStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &DynamoStore{client: client, table: cfg.Table}, nil
}

// CreatePending inserts the initial pending record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: record carrying jobId, source key and file metadata.
// Returns:
//   - error: non-nil if the write fails.
func (s *DynamoStore) CreatePending(ctx context.Context, job *domain.Job) error {
	now := time.Now().UTC().Format(timeLayout)
	item := map[string]types.AttributeValue{
		"jobId":     &types.AttributeValueMemberS{Value: job.JobID},
		"status":    &types.AttributeValueMemberS{Value: string(domain.JobStatusPending)},
		"s3Key":     &types.AttributeValueMemberS{Value: job.SourceKey},
		"fileName":  &types.AttributeValueMemberS{Value: job.FileName},
		"fileType":  &types.AttributeValueMemberS{Value: job.FileType},
		"createdAt": &types.AttributeValueMemberS{Value: now},
		"updatedAt": &types.AttributeValueMemberS{Value: now},
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.JobID, err)
	}
	return nil
}

// MarkComplete transitions a job to complete. The update touches only the
// result fields and clears any prior error; jobId, file metadata and
// createdAt are never rewritten.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to transition.
//   - res: merged inference results.
// Returns:
//   - error: non-nil if the write fails.
func (s *DynamoStore) MarkComplete(ctx context.Context, jobID string, res *domain.JobResult) error {
	labels, err := labelsToAttr(res.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels for job %s: %w", jobID, err)
	}

	// "status" and "error" are DynamoDB reserved words, hence the name map.
	sets := []string{"#status = :status", "#labels = :labels", "#flag = :flag", "#updatedAt = :updatedAt"}
	names := map[string]string{
		"#status":    "status",
		"#labels":    "labels",
		"#flag":      "flag",
		"#updatedAt": "updatedAt",
		"#error":     "error",
	}
	values := map[string]types.AttributeValue{
		":status":    &types.AttributeValueMemberS{Value: string(domain.JobStatusComplete)},
		":labels":    labels,
		":flag":      &types.AttributeValueMemberN{Value: decimal.FromInt(res.ClassFlag)},
		":updatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(timeLayout)},
	}

	if res.ConvertedKey != "" {
		sets = append(sets, "#convertedKey = :convertedKey", "#imageUrl = :imageUrl")
		names["#convertedKey"] = "convertedKey"
		names["#imageUrl"] = "imageUrl"
		values[":convertedKey"] = &types.AttributeValueMemberS{Value: res.ConvertedKey}
		values[":imageUrl"] = &types.AttributeValueMemberS{Value: res.DisplayURL}
	}

	expr := "SET " + strings.Join(sets, ", ") + " REMOVE #error"

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("failed to mark job %s complete: %w", jobID, err)
	}
	return nil
}

// MarkError transitions a job to error with a descriptive message.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to transition.
//   - message: human-readable failure description.
// Returns:
//   - error: non-nil if the write fails.
func (s *DynamoStore) MarkError(ctx context.Context, jobID string, message string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key:       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
		UpdateExpression: aws.String(
			"SET #status = :status, #error = :error, #updatedAt = :updatedAt"),
		ExpressionAttributeNames: map[string]string{
			"#status":    "status",
			"#error":     "error",
			"#updatedAt": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":    &types.AttributeValueMemberS{Value: string(domain.JobStatusError)},
			":error":     &types.AttributeValueMemberS{Value: message},
			":updatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(timeLayout)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mark job %s errored: %w", jobID, err)
	}
	return nil
}

// Get reads a job record, decoding every stored numeric back to native
// floating point.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to read.
// Returns:
//   - *domain.Job: decoded record.
//   - error: ErrNotFound when absent, otherwise the store error.
func (s *DynamoStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return itemToJob(out.Item)
}

// labelsToAttr encodes ordered detector results as a DynamoDB list. The
// confidence is an N member built from the codec output so the store never
// receives a binary float.
func labelsToAttr(labels domain.Labels) (types.AttributeValue, error) {
	list := make([]types.AttributeValue, 0, len(labels))
	for _, l := range labels {
		c, err := decimal.FromFloat(l.Confidence)
		if err != nil {
			return nil, err
		}
		list = append(list, &types.AttributeValueMemberM{
			Value: map[string]types.AttributeValue{
				"name":       &types.AttributeValueMemberS{Value: l.Name},
				"confidence": &types.AttributeValueMemberN{Value: c},
			},
		})
	}
	return &types.AttributeValueMemberL{Value: list}, nil
}

// attrToLabels is the inverse of labelsToAttr.
func attrToLabels(attr types.AttributeValue) (domain.Labels, error) {
	list, ok := attr.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("labels attribute is not a list")
	}
	labels := make(domain.Labels, 0, len(list.Value))
	for _, item := range list.Value {
		m, ok := item.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("label entry is not a map")
		}
		var l domain.Label
		if name, ok := m.Value["name"].(*types.AttributeValueMemberS); ok {
			l.Name = name.Value
		}
		if conf, ok := m.Value["confidence"].(*types.AttributeValueMemberN); ok {
			f, err := decimal.ToFloat(conf.Value)
			if err != nil {
				return nil, err
			}
			l.Confidence = f
		}
		labels = append(labels, l)
	}
	return labels, nil
}

// itemToJob decodes a stored item into the domain record.
func itemToJob(item map[string]types.AttributeValue) (*domain.Job, error) {
	job := &domain.Job{
		JobID:        stringAttr(item, "jobId"),
		Status:       domain.JobStatus(stringAttr(item, "status")),
		SourceKey:    stringAttr(item, "s3Key"),
		FileName:     stringAttr(item, "fileName"),
		FileType:     stringAttr(item, "fileType"),
		ConvertedKey: stringAttr(item, "convertedKey"),
		DisplayURL:   stringAttr(item, "imageUrl"),
		Error:        stringAttr(item, "error"),
	}

	if attr, ok := item["labels"]; ok {
		labels, err := attrToLabels(attr)
		if err != nil {
			return nil, fmt.Errorf("failed to decode labels for job %s: %w", job.JobID, err)
		}
		job.Labels = labels
	}

	if attr, ok := item["flag"].(*types.AttributeValueMemberN); ok {
		flag, err := decimal.ToInt(attr.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode flag for job %s: %w", job.JobID, err)
		}
		job.ClassFlag = &flag
	}

	if ts := stringAttr(item, "createdAt"); ts != "" {
		if t, err := time.Parse(timeLayout, ts); err == nil {
			job.CreatedAt = t
		}
	}
	if ts := stringAttr(item, "updatedAt"); ts != "" {
		if t, err := time.Parse(timeLayout, ts); err == nil {
			job.UpdatedAt = t
		}
	}

	return job, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}
