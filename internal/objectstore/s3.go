// Package objectstore uploads message attachments to S3 and hands back
// public URLs.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/chatline/internal/apperr"
	"github.com/chatline/internal/config"
	"github.com/chatline/internal/logger"
)

// Executables and scripts are never accepted as attachments.
var blockedExt = map[string]bool{
	".exe": true, ".sh": true, ".js": true, ".bat": true, ".cmd": true,
	".php": true, ".py": true, ".rb": true,
}

type Store struct {
	client  *s3.Client
	bucket  string
	region  string
	baseURL string
	maxSize int64
}

func New(ctx context.Context, cfg *config.S3Config, maxSize int64) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}
	return &Store{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		maxSize: maxSize,
	}, nil
}

// Upload stores the attachment under a random key that keeps the original
// extension, and returns its public URL.
func (s *Store) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	defer logger.DeferLogDuration("objectstore: upload", time.Now())()

	if len(data) == 0 {
		return "", apperr.Validation("file is empty")
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", apperr.Validation(fmt.Sprintf("file exceeds the %d byte limit", s.maxSize))
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if blockedExt[ext] {
		return "", apperr.Validation("file type " + ext + " is not allowed")
	}

	key := "attachments/" + uuid.New().String() + ext
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", apperr.Infrastructuref(err, "objectstore: put %s", key)
	}
	return s.publicURL(key), nil
}

func (s *Store) publicURL(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
