package audit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the archive bucket. Endpoint and path style cover
// MinIO in local development.
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Archiver moves aged audit events from the database into object storage.
// The sweeper drives it on a schedule; nothing in the request path touches it.
type S3Archiver struct {
	client *s3.Client
	bucket string
	source *DBLogger
}

// NewS3Archiver creates an archiver over the given event source.
func NewS3Archiver(ctx context.Context, cfg S3Config, source *DBLogger) (*S3Archiver, error) {
	var awsConfig aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: cfg.Bucket, source: source}, nil
}

// archiveBatchSize bounds one upload so a long backlog drains in pieces.
const archiveBatchSize = 5000

// Run archives and prunes everything older than the retention window.
// Returns the number of events removed from the database. Each batch is
// uploaded before its rows are pruned, so a crash between the two leaves
// duplicates in the bucket, never a gap.
func (a *S3Archiver) Run(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().UTC().Add(-policy.KeepFor)

	if !policy.Archive {
		return a.source.Prune(ctx, cutoff)
	}

	var total int64
	for {
		events, err := a.source.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			return total, nil
		}

		if err := a.upload(ctx, events); err != nil {
			return total, err
		}

		last := events[len(events)-1].OccurredAt.Add(time.Microsecond)
		pruned, err := a.source.Prune(ctx, last)
		if err != nil {
			return total, err
		}
		total += pruned

		if len(events) < archiveBatchSize {
			return total, nil
		}
	}
}

// upload writes one batch as newline-delimited JSON under a time-bucketed key.
func (a *S3Archiver) upload(ctx context.Context, events []Event) error {
	var buf bytes.Buffer
	for i := range events {
		line, err := events[i].ToJSON()
		if err != nil {
			return fmt.Errorf("failed to serialize audit event %d: %w", events[i].ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	first := events[0]
	key := fmt.Sprintf("audit/%s/events-%d-%d.ndjson",
		first.OccurredAt.UTC().Format("2006/01/02"), first.ID, events[len(events)-1].ID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload audit archive: %w", err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (a *S3Archiver) HealthCheck(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}
