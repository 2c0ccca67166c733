package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultHistoryLimit = 50

// Acknowledger confirms delivery of an alert by recommendation ID.
type Acknowledger interface {
	Acknowledge(id string) bool
}

// HistoryReader lists a farm's recent recommendations.
type HistoryReader interface {
	History(ctx context.Context, farmID string, limit int) ([]domain.Recommendation, error)
}

// ReadinessChecks is ready when every member is ready.
type ReadinessChecks []sharedobs.ReadinessChecker

// CheckReadiness returns the joined errors of all members that are not ready.
func (c ReadinessChecks) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, checker := range c {
		if err := checker.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Server exposes health, readiness, metrics, acknowledgement, and history endpoints.
type Server struct {
	httpServer *http.Server
	acks       Acknowledger
	history    HistoryReader
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// POST /notifications/{id}/ack and GET /farms/{farmId}/recommendations routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, acks Acknowledger, history HistoryReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		acks:    acks,
		history: history,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /notifications/{id}/ack", s.handleAck)
	mux.HandleFunc("GET /farms/{farmId}/recommendations", s.handleHistory)

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

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.acks.Acknowledge(id) {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error": "no pending acknowledgement for " + id,
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	farmID := r.PathValue("farmId")
	recs, err := s.history.History(r.Context(), farmID, limit)
	if err != nil {
		s.logger.Error("history lookup failed", "farm_id", farmID, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, recs)
}
