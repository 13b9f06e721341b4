package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/watzon/markguard/internal/config"
)

// Objects at or above partSize are sent as multipart uploads.
const partSize = 5 * 1024 * 1024

// S3Backend stores objects in S3 or any S3-compatible service. Each logical
// bucket maps to the S3 bucket named bucketPrefix+bucket.
type S3Backend struct {
	client       *s3.Client
	bucketPrefix string
}

func NewS3Backend(ctx context.Context, cfg config.S3Config) (*S3Backend, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: region is required", ErrInvalidConfig)
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("%w: access_key_id and secret_access_key are required", ErrInvalidConfig)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Backend{
		client:       client,
		bucketPrefix: cfg.BucketPrefix,
	}, nil
}

func (b *S3Backend) bucketName(bucket string) string {
	return b.bucketPrefix + bucket
}

func (b *S3Backend) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	if err := validatePath(bucket, key); err != nil {
		return err
	}
	bucketName := b.bucketName(bucket)

	// Unknown sizes (compressed streams) are buffered one part at a time.
	if size < 0 || size >= partSize {
		return b.putMultipart(ctx, bucketName, key, r)
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucketName),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("putting object: %w", err)
	}

	return nil
}

// putMultipart reads r in partSize chunks. A stream that fits in a single
// chunk is sent with PutObject instead.
func (b *S3Backend) putMultipart(ctx context.Context, bucket, key string, r io.Reader) error {
	buf := make([]byte, partSize)

	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("reading object: %w", err)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			return fmt.Errorf("putting object: %w", err)
		}
		return nil
	}

	created, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("creating multipart upload: %w", err)
	}

	abort := func(cause error) error {
		_, _ = b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: created.UploadId,
		})
		return cause
	}

	var parts []types.CompletedPart
	for partNumber := int32(1); n > 0; partNumber++ {
		uploaded, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(bucket),
			Key:        aws.String(key),
			UploadId:   created.UploadId,
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(buf[:n]),
		})
		if err != nil {
			return abort(fmt.Errorf("uploading part %d: %w", partNumber, err))
		}

		parts = append(parts, types.CompletedPart{
			ETag:       uploaded.ETag,
			PartNumber: aws.Int32(partNumber),
		})

		n, err = io.ReadFull(r, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return abort(fmt.Errorf("reading part %d: %w", partNumber+1, err))
		}
	}

	_, err = b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: created.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("completing multipart upload: %w", err)
	}

	return nil
}

func (b *S3Backend) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := validatePath(bucket, key); err != nil {
		return nil, err
	}

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting object: %w", err)
	}

	return resp.Body, nil
}

func (b *S3Backend) Delete(ctx context.Context, bucket, key string) error {
	if err := validatePath(bucket, key); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}

	return nil
}

func (b *S3Backend) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := validatePath(bucket, key); err != nil {
		return false, err
	}

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking object existence: %w", err)
	}

	return true, nil
}
