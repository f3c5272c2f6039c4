package printdata

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// Uploader stores a generated print sheet and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// S3Uploader writes print sheets to an S3 compatible bucket
type S3Uploader struct {
	s3Client *s3.Client
	config   *Config
}

// NewS3Uploader creates a new S3 uploader and checks the bucket is reachable
func NewS3Uploader(ctx context.Context, cfg *Config) (*S3Uploader, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 print data storage is disabled")
	}

	// Create AWS config
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
			// S3-compatible services need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	if _, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.BucketName),
	}); err != nil {
		return nil, fmt.Errorf("bucket %s not accessible: %w", cfg.BucketName, err)
	}

	log.Infof("[PrintData] Successfully initialized S3 client for bucket: %s", cfg.BucketName)
	return &S3Uploader{s3Client: s3Client, config: cfg}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	bucketName := u.config.BucketName

	log.Infof("[PrintData] Starting upload: s3://%s/%s (Size: %d bytes)", bucketName, key, len(body))
	_, err := u.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"upload-source": "artfox-print-data",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	url := u.config.ObjectURL(key)
	log.Infof("[PrintData] Successfully uploaded: %s", url)
	return url, nil
}

// LocalUploader writes print sheets below a directory, for development
// setups without object storage.
type LocalUploader struct {
	dir string
}

func NewLocalUploader(dir string) *LocalUploader {
	return &LocalUploader{dir: dir}
}

func (u *LocalUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(u.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write print data: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs), nil
}
