package httpapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/auth"
	"github.com/cabshq/cabs/internal/backend"
	"github.com/cabshq/cabs/internal/coreapi"
	"github.com/cabshq/cabs/internal/digest"
	"github.com/cabshq/cabs/internal/httpapi"
	"github.com/cabshq/cabs/internal/rowstore/memstore"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	svc := coreapi.New(backend.NewInMemory(0), memstore.New(), nil)
	resolver := auth.NewStaticResolver()
	resolver.Register("test-token", core.User{ID: "u1", Username: "alice"})
	srv := httpapi.NewServer(svc, resolver)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, "test-token"
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// digestFor computes the content's digest client-side, the way a real
// caller must before PUTting to /blob/{digest}.
func digestFor(t *testing.T, content string) string {
	t.Helper()
	d, _, err := digest.New().Sum(strings.NewReader(content))
	require.NoError(t, err)
	return string(d)
}

func put(t *testing.T, ts *httptest.Server, token, content string) map[string]any {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/blob/"+digestFor(t, content), strings.NewReader(content))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(authed(req, token))
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t)
	content := "hello over http"

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/blob/"+digestFor(t, content), strings.NewReader(content))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(authed(req, token))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	digest, _ := body["digest"].(string)
	require.NotEmpty(t, digest)

	getReq, err := http.NewRequest(http.MethodGet, ts.URL+"/blob/"+digest, nil)
	require.NoError(t, err)
	getResp, err := http.DefaultClient.Do(authed(getReq, token))
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	got, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestPutRejectsMismatchedDigest(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/blob/not-the-real-digest", strings.NewReader("mismatched"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(authed(req, token))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutWithoutAuthIsUnauthorized(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/blob/"+digestFor(t, "no token"), strings.NewReader("no token"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetUnknownDigestIsNotFound(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/blob/nonexistent", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(authed(req, token))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWithBadTokenIsUnauthorized(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/blob/nonexistent", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(authed(req, "wrong-token"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHeadReturnsHeadersWithoutBody(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t)

	body := put(t, ts, token, "head me")
	digest, _ := body["digest"].(string)

	headReq, err := http.NewRequest(http.MethodHead, ts.URL+"/blob/"+digest, nil)
	require.NoError(t, err)
	headResp, err := http.DefaultClient.Do(authed(headReq, token))
	require.NoError(t, err)
	defer headResp.Body.Close()
	assert.Equal(t, http.StatusOK, headResp.StatusCode)
	assert.Equal(t, "7", headResp.Header.Get("Content-Length"))

	got, err := io.ReadAll(headResp.Body)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t)

	body := put(t, ts, token, "delete me")
	digest, _ := body["digest"].(string)

	delReq, err := http.NewRequest(http.MethodDelete, ts.URL+"/blob/"+digest, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(authed(delReq, token))
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	getReq, err := http.NewRequest(http.MethodGet, ts.URL+"/blob/"+digest, nil)
	require.NoError(t, err)
	getResp, err := http.DefaultClient.Do(authed(getReq, token))
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestListBlobsReturnsOwnedClaims(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t)

	put(t, ts, token, "one")
	put(t, ts, token, "two")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/blob", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(authed(req, token))
	require.NoError(t, err)
	defer resp.Body.Close()

	var list struct {
		Blobs []map[string]any `json:"blobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Blobs, 2)
}

func TestGetUserReportsUsage(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t)

	put(t, ts, token, "12345")

	userReq, err := http.NewRequest(http.MethodGet, ts.URL+"/user", nil)
	require.NoError(t, err)
	userResp, err := http.DefaultClient.Do(authed(userReq, token))
	require.NoError(t, err)
	defer userResp.Body.Close()

	var user map[string]any
	require.NoError(t, json.NewDecoder(userResp.Body).Decode(&user))
	assert.EqualValues(t, 5, user["usage"])
}

func TestGetStatusIsUnauthenticated(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status["status"])
}

func TestQuotaExceededReturns413(t *testing.T) {
	t.Parallel()

	svc := coreapi.New(backend.NewInMemory(0), memstore.New(), nil)
	resolver := auth.NewStaticResolver()
	resolver.Register("tight-token", core.User{ID: "u2", Quota: 2})
	ts := httptest.NewServer(httpapi.NewServer(svc, resolver))
	t.Cleanup(ts.Close)

	content := "way too much data for this quota"
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/blob/"+digestFor(t, content), strings.NewReader(content))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(authed(req, "tight-token"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}
