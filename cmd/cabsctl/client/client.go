// Package client implements an HTTP client for the cabs wire protocol
// served by internal/httpapi, grounded on the teacher's root-level Client
// (client.go) and its ClientOption functional-options pattern.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cabshq/cabs/core"
)

// Errors returned by Client methods, mirroring the teacher's client.go
// sentinel errors so cmd/cabsctl's formatError can branch on them.
var (
	ErrNotFound       = errors.New("cabsctl: blob not found")
	ErrUnauthorized   = errors.New("cabsctl: authentication failed")
	ErrDigestMismatch = errors.New("cabsctl: digest mismatch")
	ErrQuotaExceeded  = errors.New("cabsctl: quota exceeded")
	ErrServer         = errors.New("cabsctl: server error")
)

// BlobInfo mirrors the JSON body cabsd's GET /blob/{digest}/info returns.
type BlobInfo struct {
	Digest        string `json:"digest"`
	ContentLength int64  `json:"content_length"`
	IsPublic      bool   `json:"is_public"`
}

// PutResult mirrors the JSON body cabsd's PUT /blob/{digest} returns.
type PutResult struct {
	Digest        string `json:"digest"`
	ContentLength int64  `json:"content_length"`
	IsPublic      bool   `json:"is_public"`
	Created       bool   `json:"created"`
}

// UserInfo mirrors the JSON body cabsd's GET /user returns.
type UserInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Usage     int64  `json:"usage"`
	UsageH    string `json:"usage_h"`
	Quota     int64  `json:"quota"`
}

// Client talks to a single cabsd server over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client constructed by New.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a Client against baseURL (e.g. "http://localhost:8080"),
// authenticating every request with token as a bearer credential.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func responseError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusBadRequest:
		return ErrDigestMismatch
	case http.StatusRequestEntityTooLarge:
		return ErrQuotaExceeded
	default:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("%w: %s (status %d)", ErrServer, body.Error, resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	}
}

// Put uploads r (size bytes long) as a blob, asserting digest if non-empty
// (an empty digest lets the server compute and report it). progress may be
// nil.
func (c *Client) Put(ctx context.Context, digest core.Digest, size int64, isPublic bool, r io.Reader, progress ProgressCallback) (PutResult, error) {
	body := io.Reader(r)
	if progress != nil {
		body = newProgressReader(r, "push", size, progress)
	}

	path := "/blob/" + url.PathEscape(string(digest))
	if isPublic {
		path += "?is_public=true"
	}
	req, err := c.newRequest(ctx, http.MethodPut, path, body)
	if err != nil {
		return PutResult{}, err
	}
	req.ContentLength = size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PutResult{}, fmt.Errorf("put blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return PutResult{}, responseError(resp)
	}
	var result PutResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return PutResult{}, fmt.Errorf("decode put response: %w", err)
	}
	return result, nil
}

// Get streams digest's content, reporting download progress if progress is
// non-nil. The caller must Close the returned ReadCloser.
func (c *Client) Get(ctx context.Context, digest core.Digest, progress ProgressCallback) (io.ReadCloser, BlobInfo, error) {
	info, err := c.Stat(ctx, digest)
	if err != nil {
		return nil, BlobInfo{}, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/blob/"+url.PathEscape(string(digest)), nil)
	if err != nil {
		return nil, BlobInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, BlobInfo{}, fmt.Errorf("get blob: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, BlobInfo{}, responseError(resp)
	}

	body := resp.Body
	if progress != nil {
		body = struct {
			io.Reader
			io.Closer
		}{newProgressReader(resp.Body, "pull", info.ContentLength, progress), resp.Body}
	}
	return body, info, nil
}

// Stat returns digest's metadata without downloading its content.
func (c *Client) Stat(ctx context.Context, digest core.Digest) (BlobInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/blob/"+url.PathEscape(string(digest))+"/info", nil)
	if err != nil {
		return BlobInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return BlobInfo{}, fmt.Errorf("stat blob: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return BlobInfo{}, responseError(resp)
	}
	var info BlobInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return BlobInfo{}, fmt.Errorf("decode stat response: %w", err)
	}
	return info, nil
}

// Delete removes the caller's claim on digest.
func (c *Client) Delete(ctx context.Context, digest core.Digest) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/blob/"+url.PathEscape(string(digest)), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	return nil
}

// List returns every blob the caller has claimed.
func (c *Client) List(ctx context.Context) ([]BlobInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/blob", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var list struct {
		Blobs []BlobInfo `json:"blobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return list.Blobs, nil
}

// Usage returns the caller's current usage and quota.
func (c *Client) Usage(ctx context.Context) (UserInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return UserInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("get user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, responseError(resp)
	}
	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return UserInfo{}, fmt.Errorf("decode user response: %w", err)
	}
	return info, nil
}
