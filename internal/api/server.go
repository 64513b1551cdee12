// Package api exposes the HTTP interface for the title service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patronemptor/titlesvc/internal/metrics"
	"github.com/patronemptor/titlesvc/internal/titles"
)

// Enqueuer hands accepted requests to the asynchronous pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, task titles.Task) error
}

// Server wires HTTP handlers to the record store and the dispatcher.
type Server struct {
	router  chi.Router
	records titles.RecordStore
	enqueue Enqueuer
	idGen   titles.IDGenerator
	clock   titles.Clock
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	records titles.RecordStore,
	enqueue Enqueuer,
	idGen titles.IDGenerator,
	clock titles.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		records: records,
		enqueue: enqueue,
		idGen:   idGen,
		clock:   clock,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", s.submitRequest)
			r.Get("/{req_id}", s.getRequest)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type intakeRequest struct {
	URL string `json:"url"`
}

// response is the wire envelope shared by intake and query. The field names
// match what existing pollers consume.
type response struct {
	Status       int            `json:"status"`
	Message      string         `json:"message"`
	ProcessingID string         `json:"processing_id,omitempty"`
	Record       *titles.Record `json:"record,omitempty"`
}

// submitRequest validates the URL, creates a PENDING record, and dispatches
// it for asynchronous processing. The generated id is returned immediately;
// callers poll getRequest for the outcome.
func (s *Server) submitRequest(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFailure(w, http.StatusBadRequest, "bad request, invalid input")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeFailure(w, http.StatusBadRequest, "bad request, invalid input")
		return
	}

	reqID, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("id generation failed", zap.Error(err))
		s.writeFailure(w, http.StatusInternalServerError, "failed to process the request")
		return
	}

	if err := s.records.Create(r.Context(), reqID, req.URL); err != nil {
		s.logger.Error("record create failed", zap.String("req_id", reqID), zap.Error(err))
		s.writeFailure(w, http.StatusInternalServerError, "failed to process the request")
		return
	}

	enqueueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	task := titles.Task{
		ReqID:     reqID,
		Attempt:   1,
		Submitted: s.clock.Now().Unix(),
	}
	if err := s.enqueue.Enqueue(enqueueCtx, task); err != nil {
		// The record stays PENDING; an operator can re-dispatch the id.
		s.logger.Error("dispatch failed", zap.String("req_id", reqID), zap.Error(err))
		s.writeFailure(w, http.StatusInternalServerError, "failed to process the request")
		return
	}

	s.writeJSON(w, http.StatusOK, response{
		Status:       http.StatusOK,
		Message:      "successfully processed the request",
		ProcessingID: reqID,
	})
}

// getRequest returns the record's current state verbatim, including PENDING.
func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	reqID := chi.URLParam(r, "req_id")

	rec, err := s.records.Get(r.Context(), reqID)
	if err != nil {
		if errors.Is(err, titles.ErrNotFound) {
			s.writeFailure(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error("record read failed", zap.String("req_id", reqID), zap.Error(err))
		s.writeFailure(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	s.writeJSON(w, http.StatusOK, response{
		Status:  http.StatusOK,
		Message: "successfully found record",
		Record:  &rec,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, response{Status: status, Message: msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeFailure(w, http.StatusInternalServerError, "internal server error")
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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
