package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/digest"
)

// Remote talks to another cabs node's HTTP wire protocol. Grounded on
// blobular's CloudBlobStore, including its most important safety property:
// content downloaded from the network is re-hashed and its length
// re-counted before being handed to the caller, so a corrupted or truncated
// transfer is never silently treated as if it were the requested digest.
type Remote struct {
	baseURL    string
	httpClient *http.Client
	credential string
	engine     digest.Engine
}

var _ contracts.BlobBackend = (*Remote)(nil)

// NewRemote returns a Remote backend against baseURL (e.g.
// "https://cabs.example.com"), authenticating with credential if non-empty.
func NewRemote(baseURL string, credential string, httpClient *http.Client) *Remote {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Remote{baseURL: baseURL, credential: credential, httpClient: httpClient, engine: digest.New()}
}

func (b *Remote) blobURL(d core.Digest) string {
	u, _ := url.JoinPath(b.baseURL, "blob", string(d))
	return u
}

func (b *Remote) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if b.credential != "" {
		req.Header.Set("Authorization", "Bearer "+b.credential)
	}
	return req, nil
}

// Open downloads digest's content into a spooled temporary file, re-verifying
// its digest and length before returning it: a mismatch means "we downloaded
// bad", and is reported rather than handed to the caller. Spooling to disk
// rather than buffering in memory keeps a large download from blowing up
// process memory, mirroring blobular's CloudBlobStore.open use of a
// SpooledTemporaryFile.
func (b *Remote) Open(ctx context.Context, d core.Digest) (io.ReadCloser, error) {
	req, err := b.newRequest(ctx, http.MethodGet, b.blobURL(d), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch blob %s: %w", d, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, core.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, core.ErrAuth
	default:
		return nil, fmt.Errorf("fetch blob %s: unexpected status %s", d, resp.Status)
	}

	spool, err := os.CreateTemp("", "cabs-remote-*")
	if err != nil {
		return nil, fmt.Errorf("spool blob %s: %w", d, err)
	}
	cleanup := func() {
		spool.Close()
		os.Remove(spool.Name())
	}

	hasher := b.engine.NewHasher()
	n, err := io.Copy(spool, io.TeeReader(resp.Body, hasher))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("read blob %s: %w", d, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		cleanup()
		return nil, fmt.Errorf("%w: downloaded %d bytes, expected %d", core.ErrIntegrity, n, resp.ContentLength)
	}
	if got := hasher.Digest(); got != d {
		cleanup()
		return nil, fmt.Errorf("%w: downloaded content hashes to %s, expected %s", core.ErrIntegrity, got, d)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("rewind spooled blob %s: %w", d, err)
	}
	return &spooledFile{File: spool}, nil
}

// spooledFile deletes its backing temp file when closed, so a caller that
// reads digest content from the remote backend leaves nothing on disk.
type spooledFile struct {
	*os.File
}

func (f *spooledFile) Close() error {
	name := f.Name()
	err := f.File.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}

// Add uploads r as digest, skipping the upload entirely if the remote
// already has it (matching blobular's add-checks-has-first optimization).
func (b *Remote) Add(ctx context.Context, d core.Digest, contentLength int64, r io.Reader) error {
	if has, err := b.Has(ctx, d); err == nil && has {
		return nil
	}

	req, err := b.newRequest(ctx, http.MethodPut, b.blobURL(d), r)
	if err != nil {
		return err
	}
	if contentLength > 0 {
		req.ContentLength = contentLength
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", d, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusBadRequest:
		return core.ErrDigestMismatch
	case http.StatusRequestEntityTooLarge:
		return core.ErrQuotaExceeded
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrAuth
	default:
		return fmt.Errorf("upload blob %s: unexpected status %s", d, resp.Status)
	}
}

// Has issues a HEAD request for digest.
func (b *Remote) Has(ctx context.Context, d core.Digest) (bool, error) {
	req, err := b.newRequest(ctx, http.MethodHead, b.blobURL(d), nil)
	if err != nil {
		return false, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("head blob %s: %w", d, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// GetInfo issues a HEAD request and parses the Content-Length header.
func (b *Remote) GetInfo(ctx context.Context, d core.Digest) (core.BlobInfo, error) {
	req, err := b.newRequest(ctx, http.MethodHead, b.blobURL(d), nil)
	if err != nil {
		return core.BlobInfo{}, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return core.BlobInfo{}, fmt.Errorf("head blob %s: %w", d, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.BlobInfo{}, core.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return core.BlobInfo{}, fmt.Errorf("head blob %s: unexpected status %s", d, resp.Status)
	}
	length, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return core.BlobInfo{}, fmt.Errorf("parse content-length for %s: %w", d, err)
	}
	return core.BlobInfo{Digest: d, ContentLength: length}, nil
}

// Delete issues a DELETE request for digest.
func (b *Remote) Delete(ctx context.Context, d core.Digest) error {
	req, err := b.newRequest(ctx, http.MethodDelete, b.blobURL(d), nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", d, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete blob %s: unexpected status %s", d, resp.Status)
	}
	return nil
}

// Iter is unsupported: the wire protocol has no bulk-listing endpoint that
// doesn't imply a specific user's claim set, which belongs to the claim
// table, not a backend.
func (b *Remote) Iter(ctx context.Context) ([]core.Digest, error) {
	return nil, fmt.Errorf("remote backend: %w: iter", core.ErrUnsupported)
}

// Clear is unsupported for the same reason as Iter.
func (b *Remote) Clear(ctx context.Context) error {
	return fmt.Errorf("remote backend: %w: clear", core.ErrUnsupported)
}
