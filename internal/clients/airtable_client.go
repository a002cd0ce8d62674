package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vaidashi/coffee-queue/internal/config"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/store"
	"github.com/vaidashi/coffee-queue/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/coffee-queue/pkg/errors"
	"github.com/vaidashi/coffee-queue/pkg/logger"
	"github.com/vaidashi/coffee-queue/pkg/retry"
)

// Airtable field names of the Orders table
const (
	fieldName               = "Name"
	fieldCoffeeType         = "Coffee Type"
	fieldMilkOption         = "Milk Option"
	fieldExtras             = "Extras"
	fieldNotes              = "Notes"
	fieldStatus             = "Status"
	fieldCollectionSpot     = "Collection Spot"
	fieldOrderTimestamp     = "Order Timestamp"
	fieldCollectedTimestamp = "Collected Timestamp"
)

// AirtableClient stores orders in an Airtable table over its REST API
type AirtableClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	logger      logger.Logger
	retryConfig *retry.RetryConfig
	breaker     *circuitbreaker.CircuitBreaker
}

var _ store.OrderStore = (*AirtableClient)(nil)

type airtableFields struct {
	Name               string   `json:"Name"`
	CoffeeType         string   `json:"Coffee Type"`
	MilkOption         string   `json:"Milk Option"`
	Extras             []string `json:"Extras"`
	Notes              string   `json:"Notes"`
	Status             string   `json:"Status"`
	CollectionSpot     *int     `json:"Collection Spot"`
	OrderTimestamp     string   `json:"Order Timestamp"`
	CollectedTimestamp string   `json:"Collected Timestamp"`
}

type airtableRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      airtableFields `json:"fields"`
}

type airtableList struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset"`
}

type airtableWrite struct {
	Fields map[string]interface{} `json:"fields"`
}

type airtableError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAirtableClient creates a client for cfg's base and table. A missing key or base id
// is a configuration error.
func NewAirtableClient(cfg config.AirtableConfig, breaker *circuitbreaker.CircuitBreaker, logger logger.Logger) (*AirtableClient, error) {
	if cfg.APIKey == "" || cfg.BaseID == "" {
		return nil, apperrors.NewConfigurationError("missing Airtable API key or base id")
	}

	table := cfg.Table
	if table == "" {
		table = "Orders"
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.airtable.com/v0"
	}

	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		})
	}

	return &AirtableClient{
		baseURL:    fmt.Sprintf("%s/%s/%s", base, url.PathEscape(cfg.BaseID), url.PathEscape(table)),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
		retryConfig: &retry.RetryConfig{
			MaxAttempts: 3,
			BackoffStrategy: &retry.ExponentialBackoff{
				InitialInterval: 300 * time.Millisecond,
				MaxInterval:     3 * time.Second,
				Multiplier:      1.5,
				JitterFactor:    0.2,
			},
			Logger: logger,
			RetryableErrors: []error{
				apperrors.ErrTimeout,
				apperrors.ErrTemporaryFailure,
				apperrors.ErrServiceUnavailable,
				apperrors.ErrRateLimited,
			},
		},
		breaker: breaker,
	}, nil
}

// WithRetryConfig replaces the retry settings
func (c *AirtableClient) WithRetryConfig(cfg *retry.RetryConfig) *AirtableClient {
	c.retryConfig = cfg
	return c
}

// Breaker exposes the circuit breaker guarding Airtable calls
func (c *AirtableClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// List pages through the table, pushing the filter down as a formula
func (c *AirtableClient) List(ctx context.Context, filter store.ListFilter) ([]*models.Order, error) {
	query := url.Values{}
	query.Set("sort[0][field]", fieldOrderTimestamp)
	query.Set("sort[0][direction]", "asc")
	if formula := filterFormula(filter); formula != "" {
		query.Set("filterByFormula", formula)
	}

	var orders []*models.Order
	for {
		var page airtableList
		if err := c.do(ctx, http.MethodGet, "", query, nil, &page); err != nil {
			c.logger.Error("Failed to list orders from Airtable", "error", err)
			return nil, err
		}
		for _, rec := range page.Records {
			orders = append(orders, rec.toOrder())
		}
		if page.Offset == "" {
			break
		}
		query.Set("offset", page.Offset)
	}

	return orders, nil
}

// Get fetches one record
func (c *AirtableClient) Get(ctx context.Context, id string) (*models.Order, error) {
	var rec airtableRecord
	if err := c.do(ctx, http.MethodGet, id, nil, nil, &rec); err != nil {
		return nil, err
	}
	return rec.toOrder(), nil
}

// Create adds a Pending record. The table stamps Order Timestamp itself.
func (c *AirtableClient) Create(ctx context.Context, in models.NewOrder) (*models.Order, error) {
	fields := map[string]interface{}{
		fieldName:       in.CustomerName,
		fieldCoffeeType: in.CoffeeType,
		fieldMilkOption: in.MilkOption,
		fieldNotes:      in.Notes,
		fieldStatus:     string(models.StatusPending),
	}
	if len(in.Extras) > 0 {
		fields[fieldExtras] = in.Extras
	} else {
		fields[fieldExtras] = nil
	}

	var rec airtableRecord
	if err := c.do(ctx, http.MethodPost, "", nil, airtableWrite{Fields: fields}, &rec); err != nil {
		c.logger.Error("Failed to create order in Airtable", "error", err, "customer", in.CustomerName)
		return nil, err
	}
	return rec.toOrder(), nil
}

// Update patches the three status fields, sending explicit nulls for cleared ones
func (c *AirtableClient) Update(ctx context.Context, id string, update models.StatusUpdate) (*models.Order, error) {
	fields := map[string]interface{}{
		fieldStatus:             string(update.Status),
		fieldCollectionSpot:     nil,
		fieldCollectedTimestamp: nil,
	}
	if update.CollectionSpot != nil {
		fields[fieldCollectionSpot] = *update.CollectionSpot
	}
	if update.CollectedTimestamp != nil {
		fields[fieldCollectedTimestamp] = update.CollectedTimestamp.UTC().Format(time.RFC3339Nano)
	}

	var rec airtableRecord
	if err := c.do(ctx, http.MethodPatch, id, nil, airtableWrite{Fields: fields}, &rec); err != nil {
		c.logger.Error("Failed to update order in Airtable", "error", err, "orderID", id)
		return nil, err
	}
	return rec.toOrder(), nil
}

// Delete destroys a record
func (c *AirtableClient) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, id, nil, nil, nil); err != nil {
		c.logger.Error("Failed to delete order in Airtable", "error", err, "orderID", id)
		return err
	}
	return nil
}

// do runs one request under the retry policy and the circuit breaker.
// 404 becomes store.ErrNotFound; anything else that fails wraps store.ErrUnavailable.
func (c *AirtableClient) do(ctx context.Context, method, recordID string, query url.Values, body, out interface{}) error {
	target := c.baseURL
	if recordID != "" {
		target += "/" + url.PathEscape(recordID)
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to marshal request: %v", err))
		}
	}

	retryFunc := func() error {
		return c.breaker.Execute(func() error {
			return c.send(ctx, method, target, payload, out)
		}, apperrors.IsRetryable)
	}

	err := retry.Retry(ctx, retryFunc, c.retryConfig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return store.ErrNotFound
	case errors.Is(err, apperrors.ErrConfiguration):
		return err
	default:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}

func (c *AirtableClient) send(ctx context.Context, method, target string, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return apperrors.NewTimeoutError("airtable request timed out")
		}
		return apperrors.NewTemporaryError(fmt.Sprintf("failed to make request: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewTemporaryError(fmt.Sprintf("failed to read response body: %v", err))
	}

	if resp.StatusCode >= 400 {
		var apiErr airtableError
		_ = json.Unmarshal(respBody, &apiErr)
		msg := fmt.Sprintf("airtable returned %d", resp.StatusCode)
		if apiErr.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, apiErr.Error.Message)
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return store.ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.NewConfigurationError(msg)
		}
		return apperrors.FromStatus(resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}

// filterFormula renders a ListFilter as an Airtable formula
func filterFormula(f store.ListFilter) string {
	var clauses []string
	if f.Status != "" {
		clauses = append(clauses, fmt.Sprintf("{Status} = '%s'", f.Status))
	}
	if !f.VisibleSince.IsZero() {
		since := f.VisibleSince.UTC().Format(time.RFC3339Nano)
		clauses = append(clauses, fmt.Sprintf(
			"OR({Status} != 'Collected', AND({Status} = 'Collected', IS_AFTER({Collected Timestamp}, '%s')))", since))
	}

	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return clauses[0]
	default:
		return "AND(" + strings.Join(clauses, ", ") + ")"
	}
}

func (r airtableRecord) toOrder() *models.Order {
	f := r.Fields
	status, ok := models.ParseStatus(f.Status)
	if !ok {
		status = models.StatusPending
	}

	order := &models.Order{
		ID:             r.ID,
		CustomerName:   f.Name,
		CoffeeType:     f.CoffeeType,
		MilkOption:     f.MilkOption,
		Notes:          f.Notes,
		Status:         status,
		CollectionSpot: f.CollectionSpot,
		OrderTimestamp: parseTime(f.OrderTimestamp),
	}
	if len(f.Extras) > 0 {
		order.Extras = models.Extras(f.Extras)
	}
	if order.OrderTimestamp.IsZero() {
		order.OrderTimestamp = parseTime(r.CreatedTime)
	}
	if ts := parseTime(f.CollectedTimestamp); !ts.IsZero() {
		order.CollectedTimestamp = &ts
	}
	return order
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
