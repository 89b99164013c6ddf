package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3 stores blobs as objects in a bucket under an optional key prefix.
type S3 struct {
	uploader   *s3manager.Uploader
	bucketName string
	prefix     string
}

// NewS3 creates an S3 blob store for bucketName in region.
func NewS3(region, bucketName, prefix string) (*S3, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}

	return &S3{
		uploader:   s3manager.NewUploader(sess),
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Put uploads r and returns the object key.
func (s *S3) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	key, err := s.objectKey(name)
	if err != nil {
		return "", fmt.Errorf("blobstore put %q: %w", name, err)
	}

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("blobstore put %q: %w", key, err)
	}
	return key, nil
}

func (s *S3) objectKey(name string) (string, error) {
	base, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return s.prefix + base, nil
}
