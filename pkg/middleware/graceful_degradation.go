package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/coffee-queue/pkg/circuitbreaker"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// GracefulDegradation sheds non-essential traffic while handlers keep failing with 5xx
type GracefulDegradation struct {
	breaker         *circuitbreaker.CircuitBreaker
	logger          logger.Logger
	essentialPrefix []string
}

// NewGracefulDegradation creates the middleware. Paths starting with one of essentialPrefix
// are never shed.
func NewGracefulDegradation(logger logger.Logger, essentialPrefix ...string) *GracefulDegradation {
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		FailureThreshold: 10,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 5,
	})

	return &GracefulDegradation{
		breaker:         breaker,
		logger:          logger,
		essentialPrefix: essentialPrefix,
	}
}

// Middleware returns a middleware function
func (gd *GracefulDegradation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		essential := gd.isEssential(r.URL.Path)

		if !essential && !gd.breaker.Allow() {
			gd.logger.Warn("Circuit is open, request rejected",
				"path", r.URL.Path,
				"method", r.Method,
				"state", gd.breaker.GetState().String())
			writeMessage(w, http.StatusServiceUnavailable, "30", "Service is temporarily unavailable. Please try again later.")
			return
		}

		sw := NewStatusCodeWriter(w)
		next.ServeHTTP(sw, r)

		if essential {
			return
		}
		switch {
		case sw.StatusCode >= 500:
			gd.breaker.Failure()
		case sw.StatusCode < 400:
			gd.breaker.Success()
		}
	})
}

func (gd *GracefulDegradation) isEssential(path string) bool {
	for _, prefix := range gd.essentialPrefix {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// GetMetrics returns metrics about the circuit breaker
func (gd *GracefulDegradation) GetMetrics() map[string]interface{} {
	return gd.breaker.GetMetrics()
}

// Reset resets the circuit breaker
func (gd *GracefulDegradation) Reset() {
	gd.breaker.Reset()
}

// StatusCodeWriter records the status code written through it
type StatusCodeWriter struct {
	http.ResponseWriter
	StatusCode int
}

// NewStatusCodeWriter wraps w; the status defaults to 200
func NewStatusCodeWriter(w http.ResponseWriter) *StatusCodeWriter {
	return &StatusCodeWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader captures the status code and passes it on
func (scw *StatusCodeWriter) WriteHeader(code int) {
	scw.StatusCode = code
	scw.ResponseWriter.WriteHeader(code)
}
