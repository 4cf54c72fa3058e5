package mediastore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/env"
)

// ObjectStore is where media bytes live.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Client wraps the S3 client with media-specific functionality
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new S3 media client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible servers (MinIO, B2) expect path-style URLs
			o.UsePathStyle = true
		}
	})

	return &Client{s3Client: s3Client, config: cfg}, nil
}

// EnsureBucket checks the bucket and creates it outside production.
func (c *Client) EnsureBucket(ctx context.Context) error {
	bucket := c.config.BucketName
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		log.Infof("[Media] Using bucket: %s", bucket)
		return nil
	}
	if env.GetEnv("APP_ENV", "dev") == "prod" {
		return fmt.Errorf("bucket %s not accessible: %w", bucket, err)
	}

	log.Warnf("[Media] Bucket %s not found, attempting to create it", bucket)
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 and S3-compatible endpoints reject a location constraint
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}
	if _, err := c.s3Client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

func (c *Client) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.BucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		Metadata: map[string]string{
			"upload-source": "agencyhub-media",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debugf("[Media] Uploaded s3://%s/%s (%d bytes)", c.config.BucketName, key, size)
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	log.Debugf("[Media] Deleted s3://%s/%s", c.config.BucketName, key)
	return nil
}
