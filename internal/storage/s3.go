package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/replicate/kaniko-controller/internal/logging"
)

const uploadPartSize = 64 * 1024 * 1024 // 64MB per part

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	logger   *logging.Logger
}

func NewS3Store(client S3API, logger *logging.Logger) *S3Store {
	return &S3Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
		}),
		logger: logger.Named("s3"),
	}
}

func (s *S3Store) Get(ctx context.Context, bucket string, key string) (io.ReadCloser, error) {
	s.logger.Sugar().Debugw("getting object", "bucket", bucket, "key", key)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%s: %w", Location(bucket, key), ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3 (%s/%s): %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Put(ctx context.Context, bucket string, key string, body io.Reader) error {
	s.logger.Sugar().Debugw("putting object", "bucket", bucket, "key", key)

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to S3 (%s/%s): %w", bucket, key, err)
	}
	return nil
}
