package backend_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/backend"
)

// fakeS3Client is an in-memory stand-in for *s3.Client, narrowed to the
// subset ObjectStore drives. Using a fake here (rather than a real bucket
// via testcontainers) keeps this package's tests hermetic; ObjectStore's
// contract is exercised against a real S3-compatible endpoint by the
// integration suite at the repository root.
type fakeS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newFakeS3Client() *fakeS3Client {
	return &fakeS3Client{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3Client) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.meta[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	delete(f.objects, key)
	delete(f.meta, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3Client) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      f.meta[key],
	}, nil
}

func TestObjectStoreAddOpenRoundTrip(t *testing.T) {
	t.Parallel()

	client := newFakeS3Client()
	b := backend.NewObjectStoreWithClient(client, "blobs")
	ctx := context.Background()
	content := "object store content"
	d, n := digestOf(t, content)

	require.NoError(t, b.Add(ctx, d, n, strings.NewReader(content)))

	r, err := b.Open(ctx, d)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	info, err := b.GetInfo(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, d, info.Digest)
	assert.Equal(t, n, info.ContentLength)
}

func TestObjectStoreAddRejectsDigestMismatch(t *testing.T) {
	t.Parallel()

	client := newFakeS3Client()
	b := backend.NewObjectStoreWithClient(client, "blobs")

	wrongDigest, _ := digestOf(t, "something else entirely")
	err := b.Add(context.Background(), wrongDigest, 7, strings.NewReader("content"))
	assert.ErrorIs(t, err, core.ErrDigestMismatch)
}

func TestObjectStoreOpenNotFound(t *testing.T) {
	t.Parallel()

	client := newFakeS3Client()
	b := backend.NewObjectStoreWithClient(client, "blobs")
	_, err := b.Open(context.Background(), core.Digest("absent"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestObjectStoreDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	client := newFakeS3Client()
	b := backend.NewObjectStoreWithClient(client, "blobs")
	ctx := context.Background()
	d, n := digestOf(t, "gone soon")
	require.NoError(t, b.Add(ctx, d, n, strings.NewReader("gone soon")))

	require.NoError(t, b.Delete(ctx, d))
	require.NoError(t, b.Delete(ctx, d))

	has, err := b.Has(ctx, d)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestObjectStoreIterAndClearUnsupported(t *testing.T) {
	t.Parallel()

	b := backend.NewObjectStoreWithClient(newFakeS3Client(), "blobs")
	_, err := b.Iter(context.Background())
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.ErrorIs(t, b.Clear(context.Background()), core.ErrUnsupported)
}
