package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/ILLUVRSE/serverquality/internal/canonical"
	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/store"
)

// Archiver copies events about to be purged to durable storage.
type Archiver interface {
	// Archive uploads batch and returns the object keys written. An empty
	// batch writes nothing.
	Archive(ctx context.Context, batch store.EventBatch, at time.Time) ([]string, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver writes one JSON-lines object per event kind:
//
//	s3://<bucket>/<prefix>/quality/YYYY/MM/DD/<run-id>/<kind>.jsonl
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
	newRunID func() string
}

// NewS3Archiver loads AWS configuration from the environment (AWS_REGION,
// AWS_PROFILE, static keys). region overrides the environment when set.
func NewS3Archiver(ctx context.Context, bucket, prefix, region string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	var opts []func(*awsConfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsConfig.WithRegion(region))
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Archiver(bucket, prefix, manager.NewUploader(s3.NewFromConfig(cfg))), nil
}

func newS3Archiver(bucket, prefix string, up uploader) *S3Archiver {
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: up,
		newRunID: func() string { return uuid.NewString() },
	}
}

func (s *S3Archiver) Archive(ctx context.Context, batch store.EventBatch, at time.Time) ([]string, error) {
	if batch.Empty() {
		return nil, nil
	}
	runID := s.newRunID()
	parts := []struct {
		kind   models.EventKind
		events []interface{}
	}{
		{models.KindInstallAttempt, toAny(batch.InstallAttempts)},
		{models.KindHealthCheck, toAny(batch.HealthChecks)},
		{models.KindUserFeedback, toAny(batch.UserFeedback)},
	}

	var keys []string
	for _, part := range parts {
		if len(part.events) == 0 {
			continue
		}
		body, err := encodeLines(part.events)
		if err != nil {
			return keys, fmt.Errorf("encode %s: %w", part.kind, err)
		}
		key := s.ObjectKey(at, runID, part.kind)
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:               aws.String(s.bucket),
			Key:                  aws.String(key),
			Body:                 bytes.NewReader(body),
			ContentType:          aws.String("application/x-ndjson"),
			ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		})
		if err != nil {
			return keys, fmt.Errorf("s3 upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ObjectKey builds the date-partitioned key for one kind of one run.
func (s *S3Archiver) ObjectKey(at time.Time, runID string, kind models.EventKind) string {
	year, month, day := at.UTC().Date()
	return path.Join(s.prefix, "quality",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		runID,
		string(kind)+".jsonl",
	)
}

func encodeLines(events []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range events {
		b, err := canonical.Marshal(ev)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func toAny[T any](in []T) []interface{} {
	out := make([]interface{}, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}
