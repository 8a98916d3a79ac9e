package feedback

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

	"github.com/ILLUVRSE/resource-selector/internal/canonical"
	"github.com/ILLUVRSE/resource-selector/internal/models"
)

// Archiver persists a rotated segment of one resource's feedback log and
// returns where it was written.
type Archiver interface {
	ArchiveSegment(ctx context.Context, resourceID string, records []models.FeedbackRecord) (string, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver writes segments as canonical JSON to
//
//	s3://<bucket>/<prefix>/feedback/YYYY/MM/DD/<resourceId>-<uuid>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
	now      func() time.Time
}

// NewS3Archiver picks up region and credentials from the standard AWS
// environment.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
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
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *S3Archiver) objectKey(resourceID string) string {
	year, month, day := s.now().Date()
	return path.Join(s.prefix, "feedback",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s-%s.json", resourceID, uuid.NewString()),
	)
}

func (s *S3Archiver) ArchiveSegment(ctx context.Context, resourceID string, records []models.FeedbackRecord) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("empty feedback segment")
	}
	body, err := canonical.Marshal(map[string]interface{}{
		"resourceId": resourceID,
		"count":      len(records),
		"records":    records,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize segment: %w", err)
	}
	key := s.objectKey(resourceID)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}
