package middleware

import (
	"net/http"
	"sync"

	"github.com/vaidashi/coffee-queue/pkg/logger"
	"github.com/vaidashi/coffee-queue/pkg/ratelimit"
)

// EndpointRateLimiterMiddleware limits selected "METHOD:/path" endpoints.
// Endpoints without an explicit limit pass through.
type EndpointRateLimiterMiddleware struct {
	mu       sync.RWMutex
	limiters map[string]*ratelimit.TokenBucket
	logger   logger.Logger
}

// NewEndpointRateLimiterMiddleware creates a new EndpointRateLimiterMiddleware
func NewEndpointRateLimiterMiddleware(logger logger.Logger) *EndpointRateLimiterMiddleware {
	return &EndpointRateLimiterMiddleware{
		limiters: make(map[string]*ratelimit.TokenBucket),
		logger:   logger,
	}
}

// SetLimit sets the limit for an endpoint key such as "POST:/orders"
func (m *EndpointRateLimiterMiddleware) SetLimit(endpoint string, maxTokens, refillRate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limiters[endpoint] = ratelimit.NewTokenBucket(maxTokens, refillRate)
}

// Middleware returns a middleware function for per-endpoint rate limiting
func (m *EndpointRateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + ":" + r.URL.Path

		m.mu.RLock()
		limiter, limited := m.limiters[endpoint]
		m.mu.RUnlock()

		if limited && !limiter.Allow() {
			m.logger.Warn("Endpoint rate limit exceeded", "endpoint", endpoint)
			writeMessage(w, http.StatusTooManyRequests, "5", "Endpoint rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetAllLimits returns all configured endpoint limits
func (m *EndpointRateLimiterMiddleware) GetAllLimits() map[string]map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]map[string]float64, len(m.limiters))
	for endpoint, limiter := range m.limiters {
		result[endpoint] = map[string]float64{
			"max_tokens":  limiter.MaxTokens(),
			"refill_rate": limiter.RefillRate(),
			"available":   limiter.Available(),
		}
	}
	return result
}
