package printdata

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/ArtFox/internal/pkg/env"
)

// Config holds the print data storage configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Optional CDN/base URL used in returned links
	LocalDir        string // Used when S3 is disabled
	Enabled         bool
}

// LoadConfig loads print data storage configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "eu-central-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicBaseURL:   strings.TrimRight(env.GetEnv("PRINT_DATA_PUBLIC_BASE_URL", ""), "/"),
		LocalDir:        env.GetEnv("PRINT_DATA_LOCAL_DIR", "./data/print-data"),
		Enabled:         env.GetEnvBool("S3_PRINT_DATA_ENABLED", false),
	}

	// Validate required fields if S3 storage is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 print data storage is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 print data storage is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 print data storage is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if print data is stored in S3
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey generates the storage key for an order's print sheet
func ObjectKey(orderID string, at time.Time) string {
	// Format: print-data/YYYY/MM/<orderId>.csv
	return fmt.Sprintf("print-data/%04d/%02d/%s.csv", at.Year(), int(at.Month()), orderID)
}

// ObjectURL returns the link stored on the order for key
func (c *Config) ObjectURL(key string) string {
	switch {
	case c.PublicBaseURL != "":
		return c.PublicBaseURL + "/" + key
	case c.EndpointURL != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.EndpointURL, "/"), c.BucketName, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.BucketName, c.Region, key)
	}
}
