package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ppiankov/biosbias/internal/model"
	"github.com/ppiankov/biosbias/internal/worker"
)

// Source kinds
const (
	SourceHTTP = "http"
	SourceS3   = "s3"
)

var (
	// ErrNotFound is returned when a shard does not exist in the archive
	ErrNotFound = errors.New("shard not found")
	// ErrDisallowed is returned when robots.txt forbids fetching a shard
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// ShardSource opens archive files by their path relative to the archive root
type ShardSource interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// NewSource builds the source selected by cfg.Fetch.Source
func NewSource(ctx context.Context, cfg *model.Config, limiter *worker.Limiter, logger *zap.Logger) (ShardSource, error) {
	switch cfg.Fetch.Source {
	case SourceHTTP, "":
		return NewHTTPSource(cfg.Fetch, limiter, logger), nil
	case SourceS3:
		client, err := NewS3Client(ctx, cfg.S3.Region)
		if err != nil {
			return nil, err
		}
		return NewS3Source(client, cfg.S3.Bucket, logger), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want %q or %q)", cfg.Fetch.Source, SourceHTTP, SourceS3)
	}
}
