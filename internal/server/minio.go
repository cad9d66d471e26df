package server

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// normaliseEndpoint splits FFS_S3_ENDPOINT into the host:port minio-go
// expects and whether to use TLS. A bare host:port means plain HTTP.
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}
	if !strings.Contains(raw, "://") {
		return raw, false, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return "", false, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	case u.Host == "":
		return "", false, fmt.Errorf("invalid endpoint")
	case u.Path != "" && u.Path != "/":
		// The mirror addresses buckets by name, not by a path prefix.
		return "", false, fmt.Errorf("endpoint must not contain a path")
	}
	return u.Host, u.Scheme == "https", nil
}

// NewObjectStoreFromEnv builds a MinIO client from FFS_S3_* and FFS_BUCKET.
// It returns a nil client and no error when the mirror is not configured,
// and an error when the configuration is partial or the bucket is missing.
func NewObjectStoreFromEnv(ctx context.Context) (*minio.Client, string, error) {
	rawEndpoint := os.Getenv("FFS_S3_ENDPOINT")
	accessKey := os.Getenv("FFS_S3_ACCESS_KEY")
	secretKey := os.Getenv("FFS_S3_SECRET_KEY")
	bucket := os.Getenv("FFS_BUCKET")

	if rawEndpoint == "" && accessKey == "" && secretKey == "" && bucket == "" {
		return nil, "", nil
	}
	if rawEndpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, "", fmt.Errorf("object store configuration incomplete")
	}

	return newMinioClient(ctx, rawEndpoint, accessKey, secretKey, bucket)
}

func newMinioClient(ctx context.Context, rawEndpoint, accessKey, secretKey, bucket string) (*minio.Client, string, error) {
	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, "", err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, "", err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, "", fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		return nil, "", fmt.Errorf("bucket does not exist: %s", bucket)
	}

	return client, bucket, nil
}
