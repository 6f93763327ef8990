package distribute

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/macropulse/macropulse/internal/log"
)

// S3Options configures the object-store mirror.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// objectStore is the subset of *minio.Client the mirror uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var _ objectStore = (*minio.Client)(nil)

// S3Mirror copies each delivery to <prefix>/latest.json and
// <prefix>/history/<date>.json.
type S3Mirror struct {
	store    objectStore
	bucket   string
	region   string
	prefix   string
	initOnce sync.Once
	initErr  error
	now      func() time.Time
}

// NewS3Mirror creates a mirror backed by a minio client.
func NewS3Mirror(opts S3Options) (*S3Mirror, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return newS3Mirror(client, opts.Bucket, region, opts.Prefix), nil
}

func newS3Mirror(store objectStore, bucket, region, prefix string) *S3Mirror {
	return &S3Mirror{
		store:  store,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

// Name implements Distributor.
func (s *S3Mirror) Name() string { return "s3" }

// Distribute implements Distributor.
func (s *S3Mirror) Distribute(ctx context.Context, d Delivery) error {
	content, err := os.ReadFile(d.Path)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	date := d.Summary.Date
	if date == "" {
		date = s.now().UTC().Format(time.DateOnly)
	}
	for _, key := range []string{s.key("latest.json"), s.key("history", date+".json")} {
		_, err := s.store.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
			ContentType:  "application/json",
			UserMetadata: map[string]string{"digest": d.Digest, "run-id": d.RunID},
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		log.Debug(log.CatDistribute, "Mirrored object", "bucket", s.bucket, "key", key, "bytes", len(content))
	}
	return nil
}

func (s *S3Mirror) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.store.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.store.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3Mirror) key(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return path.Join(parts...)
}
