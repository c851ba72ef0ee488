// Package server exposes the HTTP surface: conversation messages, the
// approval decision endpoint, and direct story/chapter access.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/talemachine/talemachine/internal/agent"
	"github.com/talemachine/talemachine/internal/approval"
	"github.com/talemachine/talemachine/internal/config"
	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/logger"
	"github.com/talemachine/talemachine/internal/mutation"
	"github.com/talemachine/talemachine/internal/notify"
	"github.com/talemachine/talemachine/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
)

type Server struct {
	runtime  *agent.Runtime
	service  *mutation.Service
	store    store.Store
	gate     *approval.Gate
	notifier notify.Notifier
	http     *http.Server
}

func New(cfg config.ServerConfig, runtime *agent.Runtime, service *mutation.Service, st store.Store, gate *approval.Gate, notifier notify.Notifier) (*Server, error) {
	s := &Server{
		runtime:  runtime,
		service:  service,
		store:    st,
		gate:     gate,
		notifier: notifier,
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}
	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}
	idleTimeout, err := time.ParseDuration(cfg.IdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid idle_timeout: %w", err)
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(traceMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", s.handleSendMessage)
		r.Post("/messages/resume", s.handleResume)

		r.Get("/approvals", s.handleListApprovals)
		r.Get("/approvals/{threadID}", s.handlePendingApproval)

		r.Route("/stories", func(r chi.Router) {
			r.Post("/", s.handleCreateStory)
			r.Get("/", s.handleListStories)
			r.Get("/{storyID}", s.handleGetStory)
			r.Patch("/{storyID}", s.handleRenameStory)
			r.Delete("/{storyID}", s.handleDeleteStory)
			r.Get("/{storyID}/chapters", s.handleListChapters)
			r.Get("/{storyID}/images", s.handleListImages)
			r.Post("/{storyID}/graph/query", s.handleGraphQuery)
		})

		r.Get("/chapters/{chapterID}", s.handleGetChapter)
	})

	return r
}

func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithTraceID(r.Context(), ulid.Make().String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsCategory(err, apperrors.ErrInvalidInput):
		status = http.StatusBadRequest
	case apperrors.IsCategory(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case apperrors.IsCategory(err, apperrors.ErrConflict),
		apperrors.IsCategory(err, apperrors.ErrApprovalState):
		status = http.StatusConflict
	case apperrors.IsCategory(err, apperrors.ErrTransient):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{
		"error":    err.Error(),
		"category": apperrors.Category(err),
	})
}

func urlParamString(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func urlParamInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("invalid %s %q", name, raw))
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.InvalidInput("malformed request body")
	}
	return nil
}
