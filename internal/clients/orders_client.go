package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vaidashi/coffee-queue/internal/lifecycle"
	"github.com/vaidashi/coffee-queue/internal/models"
	apperrors "github.com/vaidashi/coffee-queue/pkg/errors"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// OrdersClient talks to the coffee queue HTTP API
type OrdersClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

type messageBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// NewOrdersClient creates a client for the API at baseURL. Each request is bounded by timeout.
func NewOrdersClient(baseURL string, timeout time.Duration, logger logger.Logger) *OrdersClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OrdersClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ListCurrentOrders fetches the visible orders
func (c *OrdersClient) ListCurrentOrders(ctx context.Context) ([]*models.Order, error) {
	var orders []*models.Order
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateOrder places a new order
func (c *OrdersClient) CreateOrder(ctx context.Context, in models.NewOrder) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, http.MethodPost, "/orders", in, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus requests a status transition
func (c *OrdersClient) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	body := map[string]string{"id": id, "status": string(status)}

	var order models.Order
	if err := c.do(ctx, http.MethodPatch, "/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder deletes an order under policy
func (c *OrdersClient) CancelOrder(ctx context.Context, id string, policy lifecycle.CancelPolicy) error {
	q := url.Values{}
	q.Set("id", id)
	q.Set("policy", policy.String())
	return c.do(ctx, http.MethodDelete, "/orders?"+q.Encode(), nil, nil)
}

func (c *OrdersClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to marshal request: %v", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return apperrors.NewTimeoutError("request timed out")
		}
		if ctx.Err() != nil {
			return apperrors.NewTimeoutError(ctx.Err().Error())
		}
		return apperrors.NewTemporaryError(fmt.Sprintf("failed to reach orders API: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewTemporaryError(fmt.Sprintf("failed to read response body: %v", err))
	}

	if resp.StatusCode >= 400 {
		var msg messageBody
		_ = json.Unmarshal(body, &msg)
		if msg.Message == "" {
			msg.Message = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("Orders API returned error", "method", method, "path", path,
			"status", resp.StatusCode, "message", msg.Message)
		return apperrors.FromStatus(resp.StatusCode, msg.Message)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}
