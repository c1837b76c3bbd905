package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/digest"
)

// s3Client is the subset of *s3.Client the ObjectStore backend drives,
// narrowed for testability.
type s3Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// digestMetadataKey is the S3 object metadata key ObjectStore stamps every
// object with, so GetInfo can cross-check the object's recorded digest
// against the key it was fetched by (blobular's s3.py does the same via
// boto3's Metadata field).
const digestMetadataKey = "cabs-digest"

// ObjectStore stores blobs as objects in an S3-compatible bucket, keyed by
// digest. Grounded on blobular's S3BlobStore. Iter is unsupported: listing
// an entire bucket to enumerate blobs is a refused, expensive operation,
// matching s3.py's NotImplementedError("refusing to iterate over S3 blobs").
type ObjectStore struct {
	client s3Client
	bucket string
	engine digest.Engine
}

var _ contracts.BlobBackend = (*ObjectStore)(nil)

// NewObjectStore returns an ObjectStore backend writing into bucket via client.
func NewObjectStore(client *s3.Client, bucket string) *ObjectStore {
	return NewObjectStoreWithClient(client, bucket)
}

// NewObjectStoreWithClient is NewObjectStore narrowed to the s3Client
// interface, letting tests substitute a fake in place of *s3.Client.
func NewObjectStoreWithClient(client s3Client, bucket string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, engine: digest.New()}
}

func (b *ObjectStore) Open(ctx context.Context, d core.Digest) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(d)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", d, err)
	}
	return out.Body, nil
}

func (b *ObjectStore) Add(ctx context.Context, d core.Digest, contentLength int64, r io.Reader) error {
	hasher := b.engine.NewHasher()
	data, err := io.ReadAll(io.TeeReader(r, hasher))
	if err != nil {
		return err
	}
	if contentLength != 0 && int64(len(data)) != contentLength {
		return fmt.Errorf("%w: read %d bytes, expected %d", core.ErrDigestMismatch, len(data), contentLength)
	}
	if got := hasher.Digest(); got != d {
		return fmt.Errorf("%w: computed %s, expected %s", core.ErrDigestMismatch, got, d)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(d)),
		Body:   bytes.NewReader(data),
		Metadata: map[string]string{
			digestMetadataKey: string(d),
		},
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", d, err)
	}
	return nil
}

func (b *ObjectStore) Has(ctx context.Context, d core.Digest) (bool, error) {
	_, err := b.GetInfo(ctx, d)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *ObjectStore) GetInfo(ctx context.Context, d core.Digest) (core.BlobInfo, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(d)),
	})
	if err != nil {
		if isNotFound(err) {
			return core.BlobInfo{}, core.ErrNotFound
		}
		return core.BlobInfo{}, fmt.Errorf("head object %s: %w", d, err)
	}
	if recorded := out.Metadata[digestMetadataKey]; recorded != "" && core.Digest(recorded) != d {
		return core.BlobInfo{}, fmt.Errorf("%w: object metadata records digest %s for key %s", core.ErrIntegrity, recorded, d)
	}
	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return core.BlobInfo{Digest: d, ContentLength: size}, nil
}

func (b *ObjectStore) Delete(ctx context.Context, d core.Digest) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(d)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", d, err)
	}
	return nil
}

// Iter is unsupported: enumerating an entire bucket to list blobs is an
// expensive, refused operation, matching blobular's s3.py.
func (b *ObjectStore) Iter(ctx context.Context) ([]core.Digest, error) {
	return nil, fmt.Errorf("object store: %w: iter", core.ErrUnsupported)
}

// Clear is unsupported for the same reason as Iter.
func (b *ObjectStore) Clear(ctx context.Context) error {
	return fmt.Errorf("object store: %w: clear", core.ErrUnsupported)
}

func isNotFound(err error) bool {
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	var nsb *types.NotFound
	return errors.As(err, &nsb)
}
