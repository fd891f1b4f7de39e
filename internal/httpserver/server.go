package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackmichael/bsky-autoposter/internal/bluesky"
	"github.com/blackmichael/bsky-autoposter/internal/config"
	"github.com/blackmichael/bsky-autoposter/internal/domain"
	"github.com/blackmichael/bsky-autoposter/internal/metrics"
)

const (
	tokenHeader  = "X-Webhook-Token"
	maxBodyBytes = 1 << 20
)

// Publisher handles post transitions and connection checks.
type Publisher interface {
	HandleTransition(ctx context.Context, post domain.Post) bool
	TestConnection(ctx context.Context, handle, password string) error
}

// ActivityLog backs the log viewer endpoints.
type ActivityLog interface {
	Read() ([]byte, error)
	Clear() error
}

// Server is the HTTP server that receives post transition webhooks.
type Server struct {
	publisher  Publisher
	activity   ActivityLog
	token      string
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// NewServer creates a new HTTP server. Metrics are served from gatherer.
func NewServer(cfg *config.Config, publisher Publisher, activity ActivityLog, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		publisher: publisher,
		activity:  activity,
		token:     cfg.Server.WebhookToken,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(withLogging(logger))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(protected chi.Router) {
		protected.Use(s.requireToken)
		protected.Post("/hooks/transition", s.handleTransition)
		protected.Post("/test-connection", s.handleTestConnection)
		protected.Get("/logs", s.handleGetLogs)
		protected.Delete("/logs", s.handleClearLogs)
	})
	s.router = r

	// A transition is published synchronously, retries included, so writes
	// get far more time than reads.
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if s.token == "" {
		s.logger.Warn("server.webhook_token is not set: webhook and log endpoints are unauthenticated and /test-connection only checks the configured credentials")
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var post domain.Post
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&post); err != nil {
		s.logger.Warn("invalid transition payload", "error", err)
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be a JSON post")
		return
	}
	if post.ID == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "post id is required")
		return
	}

	metrics.EventsTotal.WithLabelValues("webhook").Inc()

	// The flow must finish even if the blog stops waiting for the answer.
	posted := s.publisher.HandleTransition(context.WithoutCancel(r.Context()), post)
	writeJSON(w, http.StatusOK, map[string]any{"post_id": post.ID, "posted": posted})
}

type testConnectionRequest struct {
	Handle      string `json:"handle"`
	AppPassword string `json:"app_password"`
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be a JSON object")
		return
	}

	// Request credentials are only honoured behind a webhook token.
	if s.token == "" && (req.Handle != "" || req.AppPassword != "") {
		writeError(w, http.StatusForbidden, "Forbidden", "credentials in the request require server.webhook_token to be set")
		return
	}

	err = s.publisher.TestConnection(r.Context(), req.Handle, req.AppPassword)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Connection successful"})
	case errors.Is(err, domain.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, bluesky.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, "AuthenticationFailed", err.Error())
	default:
		s.logger.Error("test connection failed", "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamError", err.Error())
	}
}

func (s *Server) handleGetLogs(w http.ResponseWriter, _ *http.Request) {
	b, err := s.activity.Read()
	if err != nil {
		s.logger.Error("failed to read activity log", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to read log")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func (s *Server) handleClearLogs(w http.ResponseWriter, _ *http.Request) {
	if err := s.activity.Clear(); err != nil {
		s.logger.Error("failed to clear activity log", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to clear log")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(tokenHeader)), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid webhook token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
