package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/catscratchdisease/aws-dicom-analyzer/internal/config"
	"github.com/catscratchdisease/aws-dicom-analyzer/internal/logger"
)

// Processor runs the pipeline for one uploaded object. Implemented by
// *pipeline.Orchestrator.
type Processor interface {
	Process(ctx context.Context, jobID, sourceKey string) error
}

// queueAPI is the slice of the SQS client the consumer uses.
type queueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer long-polls the notification queue and fans messages out to a
// fixed pool of workers. A message is deleted only after every record in it
// processed to a terminal state; otherwise the visibility timeout returns it
// for redelivery.
type Consumer struct {
	client    queueAPI
	processor Processor
	queueURL  string
	waitTime  int32
	maxBatch  int32
	workers   int
	logger    *logger.Logger
}

// NewSQSClient creates the SQS client for the configured queue.
// Parameters:
//   - ctx: context for credential resolution.
//   - cfg: queue configuration including region and optional local endpoint.
// Returns:
//   - *sqs.Client: initialized client.
//   - error: non-nil if the AWS configuration cannot be loaded.
func NewSQSClient(ctx context.Context, cfg *config.QueueConfig) (*sqs.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return client, nil
}

// NewConsumer creates a Consumer.
// Parameters:
//   - client: SQS client or a test double.
//   - processor: pipeline entry point for each uploaded object.
//   - cfg: queue configuration.
//   - log: base logger; nil uses the default.
// Returns:
//   - *Consumer: initialized consumer.
func NewConsumer(client queueAPI, processor Processor, cfg *config.QueueConfig, log *logger.Logger) *Consumer {
	waitTime := cfg.WaitTimeSeconds
	if waitTime <= 0 {
		waitTime = 20
	}
	maxBatch := cfg.MaxMessages
	if maxBatch <= 0 || maxBatch > 10 {
		maxBatch = 5
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Consumer{
		client:    client,
		processor: processor,
		queueURL:  cfg.URL,
		waitTime:  int32(waitTime),
		maxBatch:  int32(maxBatch),
		workers:   workers,
		logger:    log,
	}
}

// Run polls the queue until the context is cancelled. Each received message
// is handled by one worker; receive errors are logged and retried after a
// short backoff.
// Parameters:
//   - ctx: context whose cancellation stops polling and drains the workers.
// Returns:
//   - error: ctx.Err() once the consumer has stopped.
func (c *Consumer) Run(ctx context.Context) error {
	messages := make(chan sqstypes.Message, c.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for msg := range messages {
				c.handleMessage(logger.WithField(ctx, "worker_id", workerID), msg)
			}
		}(i)
	}

	c.logger.WithFields(logger.Fields{
		"queue":   c.queueURL,
		"workers": c.workers,
	}).Info("Queue consumer started")

	for {
		select {
		case <-ctx.Done():
			close(messages)
			wg.Wait()
			c.logger.Info("Queue consumer stopped")
			return ctx.Err()
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: c.maxBatch,
			WaitTimeSeconds:     c.waitTime,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				continue
			}
			c.logger.WithError(err).Error("Failed to receive messages")
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, msg := range out.Messages {
			select {
			case messages <- msg:
			case <-ctx.Done():
			}
		}
	}
}

// handleMessage processes every record of one notification and deletes the
// message when all of them reached a terminal state. Bodies that are not
// notification documents are deleted immediately: redelivering them can
// never succeed.
func (c *Consumer) handleMessage(ctx context.Context, msg sqstypes.Message) {
	if msg.Body == nil {
		c.delete(ctx, msg)
		return
	}

	ev, err := ParseEvent([]byte(*msg.Body))
	if err != nil {
		c.log(ctx).WithError(err).Warn("Dropping undecodable message")
		c.delete(ctx, msg)
		return
	}
	if ev.IsTestEvent() {
		c.log(ctx).Info("Acknowledging bucket notification test event")
		c.delete(ctx, msg)
		return
	}

	failed := false
	for _, record := range ev.Records {
		if err := c.handleRecord(ctx, record); err != nil {
			failed = true
		}
	}
	if failed {
		// No delete: the message becomes visible again and the upsert-based
		// record writes make the redelivered run safe.
		return
	}
	c.delete(ctx, msg)
}

// handleRecord resolves one record's key and job id and runs the pipeline.
func (c *Consumer) handleRecord(ctx context.Context, record S3EventRecord) error {
	key, err := DecodeKey(record.S3.Object.Key)
	if err != nil {
		c.log(ctx).WithError(err).Warn("Skipping record with undecodable key")
		return nil
	}
	jobID, err := JobIDFromKey(key)
	if err != nil {
		// Objects outside the upload layout (manual uploads, converted
		// copies) are not jobs and are acknowledged without processing.
		c.log(ctx).WithField("key", key).Warn("Skipping record outside upload layout")
		return nil
	}

	start := time.Now()
	if err := c.processor.Process(ctx, jobID, key); err != nil {
		c.log(ctx).WithError(err).WithField("job_id", jobID).Error("Processing failed, message will be redelivered")
		return err
	}
	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug(ctx, "Record processed: job=%s", jobID)
	return nil
}

func (c *Consumer) delete(ctx context.Context, msg sqstypes.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.log(ctx).WithError(err).Warn("Failed to delete message")
	}
}

func (c *Consumer) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return c.logger
}
