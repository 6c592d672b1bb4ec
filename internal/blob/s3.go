package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"finpasser/internal/config"
	"finpasser/internal/logger"
	apperrors "finpasser/pkg/errors"
	"finpasser/pkg/metrics"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Store talks to S3 or any S3-compatible endpoint such as MinIO.
type S3Store struct {
	client s3API
	bucket string
	region string
	logger logger.Logger
}

func NewS3Store(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Store(client, cfg.Bucket, cfg.Region, log), nil
}

func newS3Store(client s3API, bucket, region string, log logger.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, region: region, logger: log}
}

// Put streams body to key. body should be seekable when the endpoint is plain
// HTTP so the SDK can sign the payload.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (_ string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveBlobOperation("put", status(err), time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", classifyWriteError(err, s.bucket, key)
	}
	return key, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (_ io.ReadCloser, err error) {
	start := time.Now()
	defer func() { metrics.ObserveBlobOperation("get", status(err), time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyReadError(err, s.bucket, key)
	}
	return out.Body, nil
}

// EnsureBucket creates the bucket when HeadBucket reports it missing. Calling
// it on an existing bucket is a no-op.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return apperrors.ErrStorageUnavailable.WithCause(err).WithDetail("bucket", s.bucket)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		var exists *s3types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return apperrors.ErrStorageUnavailable.WithCause(err).WithDetail("bucket", s.bucket)
	}

	s.logger.Infow("Created blob bucket", "bucket", s.bucket)
	return nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func httpStatus(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return httpStatus(err) == http.StatusNotFound
}

// classifyWriteError separates a rejected write (4xx) from an unreachable store.
func classifyWriteError(err error, bucket, key string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := httpStatus(err)
	if code >= 400 && code < 500 {
		return apperrors.ErrWriteFailed.WithCause(err).WithDetail("bucket", bucket).WithDetail("key", key)
	}
	return apperrors.ErrStorageUnavailable.WithCause(err).WithDetail("bucket", bucket).WithDetail("key", key)
}

func classifyReadError(err error, bucket, key string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isNotFound(err) {
		return apperrors.ErrBlobNotFound.WithCause(err).WithDetail("key", key)
	}
	return apperrors.ErrStorageUnavailable.WithCause(err).WithDetail("bucket", bucket).WithDetail("key", key)
}
