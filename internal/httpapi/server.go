// Package httpapi implements the HTTP wire protocol described in spec.md
// §6.1: PUT/GET/HEAD/DELETE on /blob/{digest}, GET /blob for listing, and
// the supplemented GET /user and GET /status endpoints. Routing follows
// sapcc/keppel's internal/api pattern (an API type whose AddTo(*mux.Router)
// registers handleXxx methods); the handlers themselves translate
// internal/coreapi calls and core sentinel errors into the status codes
// spec.md §6.1 and §7 specify.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/felixge/fgprof"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/coreapi"
)

// Version is reported by GET /status.
const Version = "0.1.0"

// Server serves the cabs HTTP wire protocol.
type Server struct {
	svc      *coreapi.Service
	resolver contracts.AuthResolver
	logger   *slog.Logger
	router   *mux.Router
	debug    bool
}

// Option configures a Server constructed by NewServer.
type Option func(*Server)

// WithLogger overrides the Server's logger. The default discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithDebugEndpoints mounts /debug/fgprof for live CPU profiling, matching
// the teacher's cmd/profile use of felixge/fgprof. Off by default since it
// has no authentication of its own.
func WithDebugEndpoints() Option {
	return func(s *Server) { s.debug = true }
}

// NewServer returns a Server backed by svc, authenticating requests via
// resolver. Every response is served through gzhttp's transparent gzip
// compression, except the raw blob byte stream: PUT and GET on
// /blob/{digest} carry opaque, often-incompressible content and set their
// own Content-Length, so those two routes are registered outside the
// compressing handler.
func NewServer(svc *coreapi.Service, resolver contracts.AuthResolver, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		resolver: resolver,
		logger:   slog.New(slog.DiscardHandler),
		router:   mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Blob byte-stream routes bypass gzhttp entirely.
	s.router.Methods(http.MethodPut).Path("/blob/{digest}").HandlerFunc(s.handlePutBlob)
	s.router.Methods(http.MethodPut).Path("/blob/").HandlerFunc(s.handlePutBlob)
	s.router.Methods(http.MethodGet).Path("/blob/{digest}").HandlerFunc(s.handleGetBlob)

	if s.debug {
		s.router.PathPrefix("/debug/fgprof").Handler(fgprof.Handler())
	}

	// Everything else returns JSON or plain text and compresses well.
	// Registered last so the routes above, matched first by gorilla/mux in
	// registration order, take precedence over this catch-all.
	compressed := mux.NewRouter()
	compressed.Methods(http.MethodHead).Path("/blob/{digest}").HandlerFunc(s.handleHeadBlob)
	compressed.Methods(http.MethodGet).Path("/blob/{digest}/info").HandlerFunc(s.handleHeadBlob)
	compressed.Methods(http.MethodDelete).Path("/blob/{digest}").HandlerFunc(s.handleDeleteBlob)
	compressed.Methods(http.MethodGet).Path("/blob").HandlerFunc(s.handleListBlobs)
	compressed.Methods(http.MethodGet).Path("/user").HandlerFunc(s.handleGetUser)
	compressed.Methods(http.MethodGet).Path("/status").HandlerFunc(s.handleGetStatus)
	s.router.PathPrefix("/").Handler(gzhttp.GzipHandler(compressed))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) authenticate(r *http.Request) (core.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return core.User{}, core.ErrAuth
	}
	credential := strings.TrimPrefix(header, "Bearer ")
	return s.resolver.ResolveCredential(r.Context(), credential)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a core sentinel error to the status codes spec.md §6.1
// and §7 specify.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrDigestMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrQuotaExceeded):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, core.ErrUnsupported):
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	digest := core.Digest(mux.Vars(r)["digest"])
	isPublic, _ := strconv.ParseBool(r.URL.Query().Get("is_public"))
	// label is accepted for wire compatibility but, as in the reference
	// implementation, not persisted anywhere.

	result, err := s.svc.Put(r.Context(), user, digest, isPublic, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"digest":         result.Digest,
		"content_length": result.ContentLength,
		"is_public":      result.IsPublic,
		"created":        result.Created,
	})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	digest := core.Digest(mux.Vars(r)["digest"])
	body, claim, err := s.svc.Get(r.Context(), user, digest)
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(claim.ContentLength, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *Server) handleHeadBlob(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	digest := core.Digest(mux.Vars(r)["digest"])
	claim, err := s.svc.GetInfo(r.Context(), user, digest)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(claim.ContentLength, 10))
		w.Header().Set("X-Cabs-Digest", string(claim.Digest))
		w.Header().Set("X-Cabs-Public", strconv.FormatBool(claim.IsPublic))
		w.WriteHeader(http.StatusOK)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"digest":         claim.Digest,
		"content_length": claim.ContentLength,
		"is_public":      claim.IsPublic,
	})
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	digest := core.Digest(mux.Vars(r)["digest"])
	if err := s.svc.Delete(r.Context(), user, digest); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	claims, err := s.svc.List(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blobs": claims})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	usage, err := s.svc.Usage(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         user.ID,
		"username":   user.Username,
		"avatar_url": user.AvatarURL,
		"usage":      usage.Usage,
		"usage_h":    humanize.Bytes(uint64(usage.Usage)),
		"quota":      user.Quota,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": Version,
	})
}
