package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

type S3Store struct {
	client *s3.S3
	bucket string
	prefix string
}

func NewS3Store(config S3Config) (*S3Store, error) {
	conf := &aws.Config{
		Region: aws.String(config.Region),
	}

	// Fall back to the default credential chain unless static keys are set.
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		conf.Credentials = credentials.NewStaticCredentials(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)
	}
	if config.EndpointURL != "" {
		conf.Endpoint = aws.String(config.EndpointURL)
	}
	if config.ForcePathStyle {
		conf.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(conf)
	if err != nil {
		return nil, fmt.Errorf("create S3 session: %w", err)
	}

	return &S3Store{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: config.Prefix,
	}, nil
}

func (s *S3Store) keyFor(key string) string {
	return path.Join(s.prefix, key)
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	k := s.keyFor(key)
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &k,
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
				return nil, 0, ErrNotFound
			}
		}
		return nil, 0, fmt.Errorf("get object %s: %w", key, err)
	}

	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.ReadSeeker, contentType string, metadata map[string]string) error {
	k := s.keyFor(key)
	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &k,
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if len(metadata) > 0 {
		input.Metadata = make(map[string]*string, len(metadata))
		for mk, mv := range metadata {
			input.Metadata[mk] = aws.String(mv)
		}
	}

	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	k := s.keyFor(key)
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &k,
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	k := s.keyFor(key)
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &k,
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return url, nil
}
