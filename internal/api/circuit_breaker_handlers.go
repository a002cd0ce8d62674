package api

import (
	"net/http"
)

// getCircuitBreakerStatusHandler returns the state of the HTTP and order store circuit breakers
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"http": s.gracefulDegradation.GetMetrics(),
	}
	if s.storeBreaker != nil {
		data["store"] = s.storeBreaker.GetMetrics()
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data})
}

// resetCircuitBreakerHandler closes every circuit breaker
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	s.gracefulDegradation.Reset()
	if s.storeBreaker != nil {
		s.storeBreaker.Reset()
	}
	s.logger.Info("Circuit breakers reset")

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breaker reset successfully",
		},
	})
}
