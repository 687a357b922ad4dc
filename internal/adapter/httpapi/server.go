// Package httpapi exposes the query API (compare, extremes), subscriber
// management, and the health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ondamlab/yesterday/internal/adapter/sqlite"
	"github.com/ondamlab/yesterday/internal/domain"
)

// Comparer answers the two comparison queries.
type Comparer interface {
	CompareNow(ctx context.Context, coord domain.Coordinate, loc *time.Location) (domain.ComparisonResult, error)
	CompareExtremes(ctx context.Context, coord domain.Coordinate, loc *time.Location) (domain.ExtremesComparison, error)
}

// SubscriberStore is the persistence surface the API needs.
type SubscriberStore interface {
	Upsert(ctx context.Context, sub *domain.Subscriber) error
	Get(ctx context.Context, id string) (domain.Subscriber, error)
	Delete(ctx context.Context, id string) error
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	Ping(ctx context.Context) error
}

// Pusher delivers test notifications.
type Pusher interface {
	Send(ctx context.Context, batch []domain.Notification) (int, error)
}

// Server is the HTTP front of the service.
type Server struct {
	httpServer *http.Server
	store      SubscriberStore
	comparer   Comparer
	pusher     Pusher
	defaultTZ  string
	logger     *slog.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(addr string, store SubscriberStore, comparer Comparer, pusher Pusher, defaultTZ string, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		comparer:  comparer,
		pusher:    pusher,
		defaultTZ: defaultTZ,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/compare", s.handleCompare)
		r.Get("/extremes", s.handleExtremes)
		r.Put("/subscribers", s.handleUpsertSubscriber)
		r.Get("/subscribers", s.handleListSubscribers)
		r.Get("/subscribers/{id}", s.handleGetSubscriber)
		r.Delete("/subscribers/{id}", s.handleDeleteSubscriber)
		r.Post("/push-test", s.handlePushTest)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	coord, loc, ok := s.queryLocation(w, r)
	if !ok {
		return
	}
	result, err := s.comparer.CompareNow(r.Context(), coord, loc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExtremes(w http.ResponseWriter, r *http.Request) {
	coord, loc, ok := s.queryLocation(w, r)
	if !ok {
		return
	}
	result, err := s.comparer.CompareExtremes(r.Context(), coord, loc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpsertSubscriber(w http.ResponseWriter, r *http.Request) {
	var sub domain.Subscriber
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}
	if err := s.store.Upsert(r.Context(), &sub); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscribers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscriber{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleGetSubscriber(w http.ResponseWriter, r *http.Request) {
	sub, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePushTest sends one notification straight through the configured push
// channel, bypassing the comparison. Used to verify push wiring end to end.
func (s *Server) handlePushTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "token is required")
		return
	}
	if req.Body == "" {
		req.Body = "push wiring test"
	}

	sent, err := s.pusher.Send(r.Context(), []domain.Notification{{
		Destination: req.Token,
		Title:       "어제보다",
		Body:        req.Body,
	}})
	if err != nil || sent == 0 {
		s.logger.Error("push test failed", "sent", sent, "error", err)
		writeErrorCode(w, http.StatusBadGateway, "push_failed", "push channel did not accept the message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// queryLocation parses lat, lon, and tz query parameters. A missing tz falls
// back to the service default.
func (s *Server) queryLocation(w http.ResponseWriter, r *http.Request) (domain.Coordinate, *time.Location, bool) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "lat and lon must be valid coordinates")
		return domain.Coordinate{}, nil, false
	}

	tz := r.URL.Query().Get("tz")
	if tz == "" {
		tz = s.defaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "unknown tz "+strconv.Quote(tz))
		return domain.Coordinate{}, nil, false
	}
	return domain.Coordinate{Lat: lat, Lon: lon}, loc, true
}

// writeError maps a domain error to its HTTP status and stable client code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, sqlite.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	code := domain.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "insufficient_data", "data_absent":
		// Expected early in a location's day; clients retry later.
		status = http.StatusServiceUnavailable
	case "provider_unavailable":
		status = http.StatusBadGateway
	case "invalid_subscriber":
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeErrorCode(w, status, code, err.Error())
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
