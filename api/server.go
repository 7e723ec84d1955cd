package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/samacharai/backend/internal/config"
	"github.com/samacharai/backend/internal/epaper"
	"github.com/samacharai/backend/internal/metrics"
	"github.com/samacharai/backend/internal/schema"
	"github.com/samacharai/backend/internal/store"
)

const (
	maxBodyBytes = 1 << 20
	storeTimeout = 5 * time.Second
)

type server struct {
	log       *slog.Logger
	cfg       *config.API
	store     *store.Gateway
	publisher epaper.Publisher
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/test", s.handleDiagnostics)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/layout/save", s.handleSaveLayout)
		r.Get("/layout/templates", s.handleListTemplates)
		r.Post("/epaper/export", s.handleEpaperExport)
		r.Get("/epaper/editions", s.handleListEditions)
	})

	return r
}

type detailResponse struct {
	Detail any `json:"detail"`
}

type createdResponse struct {
	ID string `json:"id"`
	OK bool   `json:"ok"`
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "SamacharAI backend is running"})
}

// readPayload reads the request body and validates it with decode. It writes the error
// response itself and reports whether the handler should continue.
func readPayload[T any](w http.ResponseWriter, r *http.Request, decode func([]byte) (T, error)) (T, bool) {
	var zero T

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, detailResponse{Detail: "request body too large"})
			return zero, false
		}
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "read request body"})
		return zero, false
	}

	v, err := decode(raw)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: verr.Violations})
			return zero, false
		}
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: err.Error()})
		return zero, false
	}
	return v, true
}

func (s *server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), storeTimeout)
}

// limit reads ?limit=. A missing or non-positive value selects the default and large values
// are capped; a non-integer is a validation failure.
func (s *server) limit(r *http.Request) (int, *schema.ValidationError) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return s.cfg.DefaultLimit, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &schema.ValidationError{Kind: "query", Violations: []schema.Violation{{
			Field:   "limit",
			Type:    "int_parsing",
			Message: "Input should be a valid integer",
		}}}
	}
	return clampInt(value, s.cfg.DefaultLimit, s.cfg.MaxLimit), nil
}

// listDocuments answers with an empty list when the store is unavailable.
func (s *server) listDocuments(w http.ResponseWriter, r *http.Request, entityType string) {
	limit, verr := s.limit(r)
	if verr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: verr.Violations})
		return
	}

	if !s.store.Available() {
		writeJSON(w, http.StatusOK, []store.Document{})
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	docs, err := s.store.Query(ctx, entityType, store.Document{}, limit)
	if err != nil {
		s.log.Error("list documents", slog.String("entity", entityType), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

func clampInt(value, fallback, max int) int {
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
