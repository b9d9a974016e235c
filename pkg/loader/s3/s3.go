package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/OFFIS-RIT/litgraph/pkg/loader"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the subset of *s3.Client the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3PaperLoader loads raw paper files from an S3 bucket. It is usually
// wrapped by a PDF loader.
type S3PaperLoader struct {
	bucket string
	client ObjectGetter
	cache  *loader.Cache
}

// NewS3PaperLoader creates a loader reading from bucket unless a file path
// names its own bucket as s3://bucket/key.
func NewS3PaperLoader(client ObjectGetter, bucket string) *S3PaperLoader {
	return &S3PaperLoader{
		bucket: bucket,
		client: client,
		cache:  loader.NewCache(),
	}
}

// ParseLocation splits a file path into bucket and key. Plain keys use
// fallbackBucket.
func ParseLocation(path, fallbackBucket string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		key = strings.TrimPrefix(path, "/")
		if fallbackBucket == "" {
			return "", "", fmt.Errorf("no bucket for key %q", path)
		}
		return fallbackBucket, key, nil
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", path)
	}
	return bucket, key, nil
}

// GetFileText retrieves the object behind file.
func (l *S3PaperLoader) GetFileText(ctx context.Context, file loader.PaperFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		bucket, key, err := ParseLocation(file.FilePath, l.bucket)
		if err != nil {
			return nil, err
		}

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}
