package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used to read shards
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads shards from the archive's S3 bucket
type S3Source struct {
	client S3API
	bucket string
	logger *zap.Logger
}

// NewS3Client creates an S3 client from the default AWS credential chain
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// NewS3Source creates a source reading from bucket
func NewS3Source(client S3API, bucket string, logger *zap.Logger) *S3Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Source{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

// Open streams a shard object. The caller must close the returned body.
func (s *S3Source) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	key := strings.TrimPrefix(path, "/")

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("get object s3://%s/%s: %w", s.bucket, key, err)
	}

	s.logger.Debug("opened shard", zap.String("bucket", s.bucket), zap.String("key", key))
	return out.Body, nil
}
