package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/coffee-queue/internal/config"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/store"
	apperrors "github.com/vaidashi/coffee-queue/pkg/errors"
	"github.com/vaidashi/coffee-queue/pkg/logger"
	"github.com/vaidashi/coffee-queue/pkg/retry"
)

func newAirtable(t *testing.T, handler http.HandlerFunc) *AirtableClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewAirtableClient(config.AirtableConfig{
		APIKey:  "key123",
		BaseID:  "appBase",
		Table:   "Orders",
		BaseURL: srv.URL,
	}, nil, logger.NewNop())
	require.NoError(t, err)

	c.WithRetryConfig(&retry.RetryConfig{
		MaxAttempts:     3,
		BackoffStrategy: &retry.ConstantBackoff{Interval: time.Millisecond},
		RetryableErrors: []error{apperrors.ErrTemporaryFailure, apperrors.ErrTimeout},
	})
	return c
}

func TestNewAirtableClientRequiresCredentials(t *testing.T) {
	_, err := NewAirtableClient(config.AirtableConfig{BaseID: "app"}, nil, logger.NewNop())
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestAirtableListPagesAndFilters(t *testing.T) {
	var calls int32
	c := newAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer key123", r.Header.Get("Authorization"))
		assert.Equal(t, "/appBase/Orders", r.URL.Path)
		assert.Equal(t, "Order Timestamp", r.URL.Query().Get("sort[0][field]"))
		assert.Contains(t, r.URL.Query().Get("filterByFormula"), "{Status} != 'Collected'")

		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			assert.Empty(t, r.URL.Query().Get("offset"))
			w.Write([]byte(`{"records":[{"id":"rec1","createdTime":"2024-03-01T08:00:00.000Z",
				"fields":{"Name":"Alice","Coffee Type":"Latte","Milk Option":"Oat","Status":"Pending"}}],
				"offset":"page2"}`))
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"records":[{"id":"rec2","createdTime":"2024-03-01T08:01:00.000Z",
			"fields":{"Name":"Bob","Coffee Type":"Piccolo","Milk Option":"None","Status":"Ready",
			"Collection Spot":4,"Extras":["Sugar"],"Order Timestamp":"2024-03-01T08:01:00.000Z"}}]}`))
	})

	orders, err := c.List(context.Background(), store.ListFilter{VisibleSince: time.Now()})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "rec1", orders[0].ID)
	assert.Equal(t, models.StatusPending, orders[0].Status)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), orders[0].OrderTimestamp)

	assert.Equal(t, models.StatusReady, orders[1].Status)
	assert.Equal(t, 4, orders[1].SpotValue())
	assert.Equal(t, models.Extras{"Sugar"}, orders[1].Extras)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestAirtableUpdateSendsExplicitNulls(t *testing.T) {
	c := newAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/appBase/Orders/rec9", r.URL.Path)

		var body struct {
			Fields map[string]interface{} `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Pending", body.Fields["Status"])
		v, ok := body.Fields["Collection Spot"]
		assert.True(t, ok)
		assert.Nil(t, v)

		w.Write([]byte(`{"id":"rec9","fields":{"Name":"Cara","Status":"Pending"}}`))
	})

	o, err := c.Update(context.Background(), "rec9", models.StatusUpdate{Status: models.StatusPending})
	require.NoError(t, err)
	assert.Nil(t, o.CollectionSpot)
}

func TestAirtableNotFound(t *testing.T) {
	c := newAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"NOT_FOUND","message":"Could not find record"}}`))
	})

	_, err := c.Get(context.Background(), "recX")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, c.Delete(context.Background(), "recX"), store.ErrNotFound)
}

func TestAirtableRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":"rec1","fields":{"Name":"Dee","Status":"Pending"}}`))
	})

	o, err := c.Create(context.Background(), models.NewOrder{CustomerName: "Dee", CoffeeType: "Latte", MilkOption: "Cow"})
	require.NoError(t, err)
	assert.Equal(t, "rec1", o.ID)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestAirtableUnavailableAfterRetries(t *testing.T) {
	c := newAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.List(context.Background(), store.ListFilter{})
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestFilterFormula(t *testing.T) {
	assert.Empty(t, filterFormula(store.ListFilter{}))
	assert.Equal(t, "{Status} = 'Ready'", filterFormula(store.ListFilter{Status: models.StatusReady}))

	since := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	f := filterFormula(store.ListFilter{Status: models.StatusCollected, VisibleSince: since})
	assert.Contains(t, f, "AND({Status} = 'Collected', OR(")
	assert.Contains(t, f, "2024-03-01T08:00:00Z")
}
