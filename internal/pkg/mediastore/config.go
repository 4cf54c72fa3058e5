package mediastore

import (
	"errors"
	"path"
	"strings"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/env"
)

const defaultMaxUploadBytes = 25 << 20

// Config holds the object storage settings of the media library
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string
	MaxUploadBytes  int64
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicBaseURL:   env.GetEnv("S3_PUBLIC_BASE_URL", ""),
		MaxUploadBytes:  int64(env.GetEnvInt("MEDIA_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
	}

	if config.AccessKeyID == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID is required")
	}
	if config.SecretAccessKey == "" {
		return nil, errors.New("S3_SECRET_ACCESS_KEY is required")
	}
	if config.BucketName == "" {
		return nil, errors.New("S3_BUCKET_NAME is required")
	}
	if config.PublicBaseURL == "" {
		return nil, errors.New("S3_PUBLIC_BASE_URL is required")
	}
	return config, nil
}

// ObjectKey generates the storage key of a media file.
// Format: media/<sub-account>/<media-id><ext>
func (c *Config) ObjectKey(subAccountID, mediaID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return "media/" + subAccountID + "/" + mediaID + ext
}

// PublicURL is the link stored on the media row.
func (c *Config) PublicURL(objectKey string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/" + objectKey
}
