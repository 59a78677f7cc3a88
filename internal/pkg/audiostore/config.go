package audiostore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tipcast/tipcast/internal/pkg/env"
)

// Config holds object storage configuration for narration audio
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Base URL overlays fetch audio from
	Enabled         bool
}

// LoadConfig loads storage configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicBaseURL:   env.GetEnv("S3_PUBLIC_BASE_URL", ""),
		Enabled:         env.GetEnv("AUDIO_STORAGE_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when audio storage is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when audio storage is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when audio storage is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if audio storage is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey generates a standardized object key for an alert's audio
func (c *Config) ObjectKey(audioUUID string, year, month int) string {
	// Format: alerts/YYYY/MM/UUID.mp3
	return fmt.Sprintf("alerts/%04d/%02d/%s.mp3", year, month, audioUUID)
}

// PublicURL returns the URL overlays use to fetch an uploaded object.
func (c *Config) PublicURL(objectKey string) string {
	base := strings.TrimRight(c.PublicBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(c.EndpointURL, "/") + "/" + c.BucketName
	}
	return base + "/" + objectKey
}
