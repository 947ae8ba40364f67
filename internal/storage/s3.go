// Package storage uploads generated artifacts (prompts, drift reports) to S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Storage handles S3 uploads for generated artifacts.
type Storage struct {
	client  S3API
	bucket  string
	baseURL string // e.g. "https://roleplay.apresai.dev"; empty means s3:// URLs
}

// New creates an S3 storage handler.
func New(client S3API, bucket, baseURL string) *Storage {
	return &Storage{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload stores data under key and returns its URL.
func (s *Storage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return s.URL(key), nil
}

// UploadFile uploads a local file under prefix/<basename>.
func (s *Storage) UploadFile(ctx context.Context, prefix, path string) (key, url string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	key = strings.Trim(prefix, "/") + "/" + filepath.Base(path)
	url, err = s.Upload(ctx, key, data, contentTypeFor(path))
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// URL is the public location of key.
func (s *Storage) URL(key string) string {
	if s.baseURL == "" {
		return "s3://" + s.bucket + "/" + key
	}
	return s.baseURL + "/" + key
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
