package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/bookingsaga/config"
	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.InventoryConfig{
		BaseURL:              srv.URL + "/",
		Timeout:              config.Duration(time.Second),
		MaxRetries:           2,
		RetryInitialInterval: config.Duration(time.Millisecond),
	})
}

func TestClient_GetFlight(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/flights/7", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":7,"price":100,"totalSeats":42,"flightNumber":"UK 808"}}`))
	})

	flight, err := client.GetFlight(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, &domain.Flight{ID: 7, Price: 100, AvailableSeats: 42}, flight)
}

func TestClient_GetFlight_NotFound(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetFlight(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrFlightNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GetFlight_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"price":55,"totalSeats":3}}`))
	})

	flight, err := client.GetFlight(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(55), flight.Price)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GetFlight_UpstreamUnavailable(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.GetFlight(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GetFlight_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":`))
	})

	_, err := client.GetFlight(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestClient_AdjustSeats(t *testing.T) {
	testCases := []struct {
		name      string
		direction Direction
		wantDec   bool
	}{
		{name: "debit", direction: Debit, wantDec: true},
		{name: "credit", direction: Credit, wantDec: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPatch, r.Method)
				assert.Equal(t, "/api/v1/flights/9/seats", r.URL.Path)

				var body adjustSeatsRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, 2, body.Seats)
				assert.Equal(t, tc.wantDec, body.Dec)
				w.WriteHeader(http.StatusOK)
			})

			assert.NoError(t, client.AdjustSeats(context.Background(), 9, 2, tc.direction))
		})
	}
}

func TestClient_AdjustSeats_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad seats"}`))
	})

	err := client.AdjustSeats(context.Background(), 9, 2, Debit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_AdjustSeats_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.InventoryConfig{
		BaseURL:    srv.URL,
		Timeout:    config.Duration(10 * time.Millisecond),
		MaxRetries: 0,
	})

	err := client.AdjustSeats(context.Background(), 9, 1, Credit)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_AdjustSeats_RejectsNonPositive(t *testing.T) {
	client := NewClient(config.InventoryConfig{BaseURL: "http://unused"})
	assert.Error(t, client.AdjustSeats(context.Background(), 1, 0, Debit))
}
