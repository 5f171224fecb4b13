package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/notes-service/internal/config"
	"github.com/JakeFAU/notes-service/internal/extract"
	"github.com/JakeFAU/notes-service/internal/links"
	"github.com/JakeFAU/notes-service/internal/metrics"
	"github.com/JakeFAU/notes-service/internal/worker"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	maxBodyBytes = 4 << 20
)

// Reconciler applies an article's desired link set.
type Reconciler interface {
	Reconcile(ctx context.Context, articleID, userID int64, desired []string) (links.Result, error)
	Forget(ctx context.Context, articleID int64) error
}

// LinkLister pages through a user's links.
type LinkLister interface {
	ListLinks(ctx context.Context, userID int64, offset, limit int) ([]links.Link, error)
}

// Extractor turns article markdown into text and links.
type Extractor interface {
	Extract(markdown string) extract.Info
}

// WorkerStatus reports the enrichment worker lifecycle.
type WorkerStatus interface {
	State() worker.State
}

// Server wires HTTP handlers to the reconciler and link store.
type Server struct {
	router     chi.Router
	reconciler Reconciler
	lister     LinkLister
	extractor  Extractor
	status     WorkerStatus
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	reconciler Reconciler,
	lister LinkLister,
	extractor Extractor,
	status WorkerStatus,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		reconciler: reconciler,
		lister:     lister,
		extractor:  extractor,
		status:     status,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(60 * time.Second))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(userMiddleware)
		r.Get("/links", s.listLinks)
		r.Put("/articles/{article_id}/links", s.putArticleLinks)
		r.Delete("/articles/{article_id}/links", s.deleteArticleLinks)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	state := s.status.State()
	if state != worker.StateRunning {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "worker": state.String()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "worker": state.String()})
}

func (s *Server) listLinks(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil || limit <= 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxLimit)

	rows, err := s.lister.ListLinks(r.Context(), userFrom(r.Context()), offset, limit)
	if err != nil {
		s.logger.Error("list links failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list links")
		return
	}
	if rows == nil {
		rows = []links.Link{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"links": rows, "offset": offset, "limit": limit})
}

type articleLinksRequest struct {
	Content *string  `json:"content"`
	URLs    []string `json:"urls"`
}

func (s *Server) putArticleLinks(w http.ResponseWriter, r *http.Request) {
	articleID, ok := s.articleID(w, r)
	if !ok {
		return
	}
	var req articleLinksRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Content != nil && req.URLs != nil {
		s.writeError(w, http.StatusBadRequest, "provide content or urls, not both")
		return
	}

	desired := req.URLs
	var info *extract.Info
	if req.Content != nil {
		extracted := s.extractor.Extract(*req.Content)
		info = &extracted
		desired = extracted.Links
	}

	result, err := s.reconciler.Reconcile(r.Context(), articleID, userFrom(r.Context()), desired)
	if err != nil {
		s.logger.Error("reconcile links failed", zap.Int64("article_id", articleID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to update links")
		return
	}

	resp := map[string]any{"article_id": articleID, "result": result}
	if info != nil {
		resp["preview"] = info.Preview
		resp["language"] = info.Language
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteArticleLinks(w http.ResponseWriter, r *http.Request) {
	articleID, ok := s.articleID(w, r)
	if !ok {
		return
	}
	if err := s.reconciler.Forget(r.Context(), articleID); err != nil {
		s.logger.Error("forget article links failed", zap.Int64("article_id", articleID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete links")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) articleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "article_id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid article id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

type (
	requestIDKey struct{}
	userIDKey    struct{}
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userMiddleware resolves the caller from X-User-ID.
func userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			writeJSON(zap.NewNop(), w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid X-User-ID"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.String("request_id", reqID),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(zap.NewNop(), w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
