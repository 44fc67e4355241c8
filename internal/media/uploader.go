// Package media stores post cover images in an S3-compatible bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const MaxCoverBytes = 5 << 20

var (
	ErrUnsupportedType = errors.New("cover must be an image")
	ErrTooLarge        = errors.New("cover exceeds 5 MiB")
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Uploader struct {
	client    objectPutter
	bucket    string
	publicURL string
}

// NewUploader connects to the object store and creates the bucket when missing.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Printf("media: created bucket %s", cfg.Bucket)
	}

	publicURL := cfg.PublicURL
	if strings.TrimSpace(publicURL) == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	return newUploader(client, cfg.Bucket, publicURL), nil
}

func newUploader(client objectPutter, bucket, publicURL string) *Uploader {
	return &Uploader{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// PutCover stores the image under covers/<uuid><ext> and returns its public URL.
func (u *Uploader) PutCover(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", ErrUnsupportedType
	}
	if size > MaxCoverBytes {
		return "", ErrTooLarge
	}

	key := "covers/" + uuid.NewString() + coverExtension(filename, mediaType)
	if _, err := u.client.PutObject(ctx, u.bucket, key, r, size, minio.PutObjectOptions{ContentType: mediaType}); err != nil {
		return "", fmt.Errorf("put cover %s: %w", key, err)
	}
	return u.publicURL + "/" + key, nil
}

func coverExtension(filename, mediaType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext != "" && len(ext) <= 5 {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
