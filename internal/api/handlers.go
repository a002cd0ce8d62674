package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vaidashi/coffee-queue/internal/lifecycle"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/store"
	"github.com/vaidashi/coffee-queue/internal/views"
	apperrors "github.com/vaidashi/coffee-queue/pkg/errors"
)

const (
	msgSpotsFull          = "Error: All collection spots are currently full."
	msgMissingUpdate      = "Missing required fields for update"
	msgMissingDeleteID    = "Missing order ID for deletion"
	msgInvalidPayload     = "Invalid request payload"
	msgOrderNotFound      = "Order not found"
	msgCancelNotAllowed   = "Order can no longer be cancelled"
	msgTransitionRejected = "Order cannot move to that status"
	msgConcurrentUpdate   = "Order was changed by someone else, please try again"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// MessageResponse is the body of every failed order request
type MessageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

// createOrderRequest accepts the legacy "name" field alongside customerName
type createOrderRequest struct {
	CustomerName string   `json:"customerName"`
	Name         string   `json:"name"`
	CoffeeType   string   `json:"coffeeType"`
	MilkOption   string   `json:"milkOption"`
	Extras       []string `json:"extras"`
	Notes        string   `json:"notes"`
}

// updateStatusRequest accepts the legacy "orderId" field alongside id
type updateStatusRequest struct {
	ID      string `json:"id"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   "0.1.0",
		Store:     s.config.StoreBackend,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("Health check database ping failed", "error", err)
			health.Status = "degraded"
			s.respondWithJSON(w, http.StatusServiceUnavailable, ApiResponse{Success: false, Data: health, Error: err.Error()})
			return
		}
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    health,
	})
}

// getOrdersHandler returns the visible orders, oldest first
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orderService.ListCurrentOrders(r.Context())
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to fetch orders")
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	s.respondWithJSON(w, http.StatusOK, orders)
}

// createOrderHandler creates a new Pending order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	defer r.Body.Close()

	if req.CustomerName == "" {
		req.CustomerName = req.Name
	}

	order, err := s.orderService.CreateOrder(r.Context(), models.NewOrder{
		CustomerName: req.CustomerName,
		CoffeeType:   req.CoffeeType,
		MilkOption:   req.MilkOption,
		Extras:       req.Extras,
		Notes:        req.Notes,
	})
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to create order")
		return
	}

	s.respondWithJSON(w, http.StatusCreated, order)
}

// updateOrderStatusHandler moves an order to a new status
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	defer r.Body.Close()

	id := req.ID
	if id == "" {
		id = req.OrderID
	}
	if id == "" || req.Status == "" {
		s.respondWithError(w, http.StatusBadRequest, msgMissingUpdate)
		return
	}

	status, ok := models.ParseStatus(req.Status)
	if !ok {
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status %q", req.Status))
		return
	}

	order, err := s.orderService.UpdateStatus(r.Context(), id, status)
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to update order")
		return
	}

	s.respondWithJSON(w, http.StatusOK, order)
}

// deleteOrderHandler cancels an order; ?policy=pending-only refuses orders that are no longer Pending
func (s *Server) deleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.respondWithError(w, http.StatusBadRequest, msgMissingDeleteID)
		return
	}

	policy, err := lifecycle.ParseCancelPolicy(r.URL.Query().Get("policy"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.orderService.CancelOrder(r.Context(), id, policy); err != nil {
		s.respondWithServiceError(w, err, "Failed to delete order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getQueueHandler returns the public queue screen; ?me= marks the caller's order
func (s *Server) getQueueHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orderService.ListCurrentOrders(r.Context())
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to fetch orders")
		return
	}

	s.respondWithJSON(w, http.StatusOK, views.BuildQueue(orders, r.URL.Query().Get("me")))
}

// getEventMetricsHandler reports the event pipeline counters
func (s *Server) getEventMetricsHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.outboxProcessor.GetMetrics()})
}

// respondWithServiceError maps an order service error to its status code.
// fallback is the message used for unexpected failures.
func (s *Server) respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		s.respondWithError(w, http.StatusBadRequest, "Invalid status")
	case errors.Is(err, apperrors.ErrInvalidInput):
		s.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, lifecycle.ErrOrderNotFound):
		s.respondWithError(w, http.StatusNotFound, msgOrderNotFound)
	case errors.Is(err, lifecycle.ErrSpotsExhausted):
		s.respondWithError(w, http.StatusConflict, msgSpotsFull)
	case errors.Is(err, lifecycle.ErrCancelNotAllowed):
		s.respondWithError(w, http.StatusConflict, msgCancelNotAllowed)
	case errors.Is(err, lifecycle.ErrTransitionNotAllowed):
		s.respondWithError(w, http.StatusConflict, msgTransitionRejected)
	case errors.Is(err, store.ErrStale):
		s.respondWithError(w, http.StatusConflict, msgConcurrentUpdate)
	case errors.Is(err, store.ErrUnavailable):
		s.logger.Error(fallback, "error", err)
		s.respondWithJSON(w, http.StatusServiceUnavailable, MessageResponse{Message: fallback, Error: err.Error()})
	default:
		s.logger.Error(fallback, "error", err)
		s.respondWithJSON(w, http.StatusInternalServerError, MessageResponse{Message: fallback, Error: err.Error()})
	}
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, MessageResponse{Message: message})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
