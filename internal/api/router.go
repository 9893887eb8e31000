// Package api exposes the applicant and reviewer HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/evaluation"
	"induction-portal/internal/intake"
	"induction-portal/internal/review"
	"induction-portal/internal/store"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies wires the services behind the router.
type Dependencies struct {
	Store     store.Store
	Intake    *intake.Service
	Review    *review.Service
	Evaluator *evaluation.Evaluator
	Batch     *evaluation.BatchRunner

	// Reviewers maps login to bcrypt hash. Empty locks every reviewer route.
	Reviewers map[string]string
	// SubmitRateLimit is submissions per client per minute; negative disables.
	SubmitRateLimit int

	// Ready reports whether backing services are reachable. Nil means always ready.
	Ready func(ctx context.Context) error

	Logger logger.Logger
}

type handler struct {
	deps   Dependencies
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

// NewRouter builds the full route table.
func NewRouter(deps Dependencies) *mux.Router {
	log := logger.Component(deps.Logger, "api")
	h := &handler{
		deps:   deps,
		errors: apperrors.NewErrorHandler(log),
		logger: log,
	}

	r := mux.NewRouter()
	r.Use(metricsMiddleware, loggingMiddleware(log))

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	limiter := newClientLimiter(deps.SubmitRateLimit, h.errors)
	submit := api.NewRoute().Subrouter()
	submit.Use(limiter.middleware)
	submit.HandleFunc("/applications", h.submit).Methods(http.MethodPost)
	submit.HandleFunc("/applications/sections/{section}/validate", h.validateSection).Methods(http.MethodPost)

	auth := &basicAuth{reviewers: deps.Reviewers, errors: h.errors}
	reviewer := api.NewRoute().Subrouter()
	reviewer.Use(auth.middleware)
	reviewer.HandleFunc("/applications", h.list).Methods(http.MethodGet)
	reviewer.HandleFunc("/applications/{id}", h.get).Methods(http.MethodGet)
	reviewer.HandleFunc("/applications/{id}/transition", h.transition).Methods(http.MethodPost)
	reviewer.HandleFunc("/applications/{id}/select", h.selectApplication).Methods(http.MethodPost)
	reviewer.HandleFunc("/applications/{id}/evaluate", h.evaluate).Methods(http.MethodPost)
	reviewer.HandleFunc("/evaluations/batch", h.batch).Methods(http.MethodPost)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Ready(ctx); err != nil {
			h.logger.Warn("readiness check failed", map[string]interface{}{"error": err})
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
