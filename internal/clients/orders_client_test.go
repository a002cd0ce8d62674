package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/coffee-queue/internal/lifecycle"
	"github.com/vaidashi/coffee-queue/internal/models"
	apperrors "github.com/vaidashi/coffee-queue/pkg/errors"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

func newOrdersClient(t *testing.T, handler http.HandlerFunc) *OrdersClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOrdersClient(srv.URL, time.Second, logger.NewNop())
}

func TestOrdersClientList(t *testing.T) {
	c := newOrdersClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		w.Write([]byte(`[{"id":"ord-1","customerName":"Alice","status":"Ready","collectionSpot":2,
			"orderTimestamp":"2024-03-01T08:00:00Z"}]`))
	})

	orders, err := c.ListCurrentOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.StatusReady, orders[0].Status)
	assert.Equal(t, 2, orders[0].SpotValue())
}

func TestOrdersClientUpdateStatus(t *testing.T) {
	c := newOrdersClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ord-1", body["id"])
		assert.Equal(t, "Collected", body["status"])
		w.Write([]byte(`{"id":"ord-1","status":"Collected"}`))
	})

	o, err := c.UpdateStatus(context.Background(), "ord-1", models.StatusCollected)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCollected, o.Status)
}

func TestOrdersClientMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad request", http.StatusBadRequest, apperrors.ErrInvalidInput},
		{"not found", http.StatusNotFound, apperrors.ErrNotFound},
		{"conflict", http.StatusConflict, apperrors.ErrConflict},
		{"server error", http.StatusInternalServerError, apperrors.ErrTemporaryFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newOrdersClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"Error: All collection spots are currently full."}`))
			})

			_, err := c.UpdateStatus(context.Background(), "ord-1", models.StatusReady)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			assert.Equal(t, "Error: All collection spots are currently full.", err.Error())
		})
	}
}

func TestOrdersClientCancel(t *testing.T) {
	c := newOrdersClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "ord-7", r.URL.Query().Get("id"))
		assert.Equal(t, "pending-only", r.URL.Query().Get("policy"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.CancelOrder(context.Background(), "ord-7", lifecycle.CancelPendingOnly))
}

func TestOrdersClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	c := NewOrdersClient(srv.URL, 20*time.Millisecond, logger.NewNop())
	_, err := c.ListCurrentOrders(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
}
