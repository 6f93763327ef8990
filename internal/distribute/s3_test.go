package distribute

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	exists     bool
	existsErr  error
	putErr     error
	made       int
	existCalls int
	objects    map[string][]byte
	meta       map[string]map[string]string
}

func (f *fakeStore) BucketExists(_ context.Context, _ string) (bool, error) {
	f.existCalls++
	return f.exists, f.existsErr
}

func (f *fakeStore) MakeBucket(_ context.Context, _ string, _ minio.MakeBucketOptions) error {
	f.made++
	f.exists = true
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, _ string, object string, reader io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.meta = map[string]map[string]string{}
	}
	f.objects[object] = data
	f.meta[object] = opts.UserMetadata
	return minio.UploadInfo{Key: object, Size: int64(len(data))}, nil
}

func writeArtifact(t *testing.T, content string) Delivery {
	t.Helper()
	p := filepath.Join(t.TempDir(), "latest.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	d := testDelivery()
	d.Path = p
	return d
}

func TestS3Mirror_PutsLatestAndHistory(t *testing.T) {
	store := &fakeStore{}
	m := newS3Mirror(store, "bucket", "us-east-1", "/macropulse/")
	d := writeArtifact(t, `{"a":1}`)
	ctx := context.Background()

	require.NoError(t, m.Distribute(ctx, d))
	require.NoError(t, m.Distribute(ctx, d))

	require.Equal(t, 1, store.made)
	require.Equal(t, 1, store.existCalls, "bucket is checked once")
	require.Equal(t, `{"a":1}`, string(store.objects["macropulse/latest.json"]))
	require.Equal(t, `{"a":1}`, string(store.objects["macropulse/history/2024-03-01.json"]))
	require.Equal(t, d.Digest, store.meta["macropulse/latest.json"]["digest"])
}

func TestS3Mirror_DateFallsBackToToday(t *testing.T) {
	store := &fakeStore{exists: true}
	m := newS3Mirror(store, "bucket", "", "")
	m.now = func() time.Time { return time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC) }
	d := writeArtifact(t, `{}`)
	d.Summary.Date = ""

	require.NoError(t, m.Distribute(context.Background(), d))

	require.Contains(t, store.objects, "history/2024-05-06.json")
	require.Zero(t, store.made)
}

func TestS3Mirror_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("bucket check", func(t *testing.T) {
		boom := errors.New("denied")
		m := newS3Mirror(&fakeStore{existsErr: boom}, "bucket", "", "")
		require.ErrorIs(t, m.Distribute(ctx, writeArtifact(t, `{}`)), boom)
	})

	t.Run("put", func(t *testing.T) {
		boom := errors.New("slow down")
		m := newS3Mirror(&fakeStore{exists: true, putErr: boom}, "bucket", "", "")
		require.ErrorIs(t, m.Distribute(ctx, writeArtifact(t, `{}`)), boom)
	})

	t.Run("missing artifact", func(t *testing.T) {
		m := newS3Mirror(&fakeStore{exists: true}, "bucket", "", "")
		d := testDelivery()
		d.Path = filepath.Join(t.TempDir(), "nope.json")
		require.ErrorIs(t, m.Distribute(ctx, d), os.ErrNotExist)
	})
}

func TestNewS3Mirror_Validation(t *testing.T) {
	_, err := NewS3Mirror(S3Options{Bucket: "b", AccessKey: "a", SecretKey: "s"})
	require.ErrorContains(t, err, "endpoint")

	_, err = NewS3Mirror(S3Options{Endpoint: "localhost:9000", Bucket: "b"})
	require.ErrorContains(t, err, "access key")

	_, err = NewS3Mirror(S3Options{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"})
	require.ErrorContains(t, err, "bucket")

	m, err := NewS3Mirror(S3Options{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	require.Equal(t, "s3", m.Name())
}
