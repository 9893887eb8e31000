package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/common/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	requestIDKey contextKey = "requestID"
	reviewerKey  contextKey = "reviewer"
)

// RequestID returns the id assigned by the logging middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Reviewer returns the authenticated reviewer login, if any.
func Reviewer(ctx context.Context) string {
	name, _ := ctx.Value(reviewerKey).(string)
	return name
}

// routeTemplate keeps metric labels bounded by using the mux pattern
// instead of the raw path.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// metricsMiddleware records request latency per route.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, routeTemplate(r), strconv.Itoa(wrapped.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

// loggingMiddleware tags each request with an X-Request-ID and logs it.
func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
			w.Header().Set("X-Request-ID", requestID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.Info("request", map[string]interface{}{
				"requestId":  requestID,
				"method":     r.Method,
				"route":      routeTemplate(r),
				"status":     wrapped.statusCode,
				"durationMs": time.Since(start).Milliseconds(),
			})
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// ==========================
// Reviewer authentication
// ==========================

// placeholder hash compared for unknown users so both paths cost a bcrypt check
var unknownUserHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-reviewer"), bcrypt.DefaultCost)

// basicAuth admits reviewers whose password matches the bcrypt hash
// configured for their username.
type basicAuth struct {
	reviewers map[string]string
	errors    *apperrors.ErrorHandler
}

func (a *basicAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			a.deny(w, r, "missing credentials")
			return
		}

		hash, known := a.reviewers[user]
		if !known {
			hash = string(unknownUserHash)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)); err != nil || !known {
			a.deny(w, r, "invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), reviewerKey, user)))
	})
}

func (a *basicAuth) deny(w http.ResponseWriter, r *http.Request, reason string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="reviewers", charset="UTF-8"`)
	a.errors.Write(w, r, apperrors.NewUnauthorizedError(reason))
}

// ==========================
// Submission rate limiting
// ==========================

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	errors   *apperrors.ErrorHandler
}

func newClientLimiter(perMinute int, errs *apperrors.ErrorHandler) *clientLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	burst := perMinute
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		errors:   errs,
	}
}

func (cl *clientLimiter) get(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	l, ok := cl.limiters[key]
	if !ok {
		// bound memory; buckets refill quickly enough that a reset is harmless
		if len(cl.limiters) >= 10000 {
			cl.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(cl.limit, cl.burst)
		cl.limiters[key] = l
	}
	return l
}

func (cl *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		}
		if !cl.get(key).Allow() {
			w.Header().Set("Retry-After", "60")
			cl.errors.Write(w, r, apperrors.NewRateLimitedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}
