// Package deadletter triages permanently failed work: listing, requeueing
// and copying dead letters to object storage.
package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// Nop discards dead letters. It is used when no bucket is configured.
type Nop struct{}

func (Nop) Archive(context.Context, entity.DeadLetter) error { return nil }

// ObjectPutter is the part of *s3.Client the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes each dead letter as one JSON object.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

func NewS3Archiver(ctx context.Context, bucket, prefix, region string, logger *slog.Logger) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewS3ArchiverWithClient(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *S3Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Key is prefix/stage/YYYY/MM/DD/id.json.
func (a *S3Archiver) Key(dl entity.DeadLetter) string {
	return fmt.Sprintf("%s%s/%s/%s.json", a.prefix, dl.Stage, dl.FailedAt.UTC().Format("2006/01/02"), dl.ID)
}

func (a *S3Archiver) Archive(ctx context.Context, dl entity.DeadLetter) error {
	body, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	key := a.Key(dl)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			a.logger.Warn("deadletter.archive.api_error", "key", key, "code", apiErr.ErrorCode(), "message", apiErr.ErrorMessage())
		}
		return fmt.Errorf("failed to upload dead letter to S3: %w", err)
	}
	a.logger.Info("deadletter.archived", "key", key, "bucket", a.bucket)
	return nil
}
