// internal/worker/s3_uploader.go
package worker

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"insights-gateway/internal/config"
	"insights-gateway/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore is the storage client the persister writes through.
// body is positioned at offset 0 on entry and Upload may consume it; callers
// rewind before reusing it. Upload may fail; callers treat failures as
// warnings.
type ObjectStore interface {
	Upload(ctx context.Context, body io.ReadSeeker, size int64, bucket, key string) error
}

// S3Uploader writes archives to S3 (or an S3-compatible endpoint).
//   - one PutObject per call, no retries
//   - every call is bounded by cfg.S3Timeout
//   - body is rewound before sending so one file can feed several writes
type S3Uploader struct {
	cfg     config.Config
	metrics *metrics.Metrics
	client  *s3.Client
}

// NewS3Uploader builds the S3 client from the static credentials in cfg.
func NewS3Uploader(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*S3Uploader, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &S3Uploader{cfg: cfg, metrics: m, client: client}, nil
}

// newS3Client loads region and credentials. Retries are disabled at the SDK
// level: a failed write is reported once and never repeated.
func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(
		ctx,
		awsCfgLib.WithRegion(cfg.AWSRegion),
		awsCfgLib.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "",
		)),
		awsCfgLib.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// Upload performs a single PutObject of body into bucket/key.
func (u *S3Uploader) Upload(ctx context.Context, body io.ReadSeeker, size int64, bucket, key string) error {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind body: %w", err)
	}

	if u.cfg.S3Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.S3Timeout)
		defer cancel()
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)
		return err
	}

	atomic.AddInt64(&u.metrics.S3PutsTotal, 1)
	atomic.AddInt64(&u.metrics.S3BytesStoredTotal, size)
	return nil
}
