package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes timestamped JSON snapshots for offline inspection.
type S3Archiver struct {
	api    s3PutAPI
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Archiver(api s3PutAPI, bucket string) *S3Archiver {
	if api == nil {
		panic("deadletter: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("deadletter: s3 bucket cannot be empty")
	}
	return &S3Archiver{
		api:    api,
		bucket: bucket,
		prefix: "dead-letters",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Archive uploads entries to <prefix>/YYYY/MM/DD/<timestamp>.json with
// contact details scrubbed.
func (a *S3Archiver) Archive(ctx context.Context, entries []Entry) error {
	data, err := json.MarshalIndent(redactEntries(entries), "", "  ")
	if err != nil {
		return fmt.Errorf("deadletter: marshal archive: %w", err)
	}
	now := a.now()
	key := path.Join(a.prefix, now.Format("2006/01/02"), now.Format("20060102T150405.000Z")+".json")
	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("deadletter: upload archive %s: %w", key, err)
	}
	return nil
}

type sqsSendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher mirrors entries onto an SQS dead-letter queue.
type SQSPublisher struct {
	api      sqsSendAPI
	queueURL string
}

func NewSQSPublisher(api sqsSendAPI, queueURL string) *SQSPublisher {
	if api == nil {
		panic("deadletter: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("deadletter: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{api: api, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(redactEntry(entry))
	if err != nil {
		return fmt.Errorf("deadletter: marshal entry %s: %w", entry.ID, err)
	}
	_, err = p.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"operation": {
				DataType:    aws.String("String"),
				StringValue: aws.String(entry.Operation),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deadletter: failed to send SQS message: %w", err)
	}
	return nil
}
