package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) CreateBooking(ctx context.Context, input booking.CreateBookingInput) (*domain.Booking, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ConfirmPayment(ctx context.Context, input booking.ConfirmPaymentInput) (*domain.Booking, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) Compensate(ctx context.Context, bookingID int64) (booking.CompensationResult, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(booking.CompensationResult), args.Error(1)
}

func (m *MockBookingUseCase) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingUseCase) GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    bookingResponse `json:"data"`
	Error   *ErrorData      `json:"error"`
}

func newRouter(service booking.BookingUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	NewBookingHandler(service).Register(router.Group("/api/v1/bookings"))
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestBookingHandler_create(t *testing.T) {
	mockService := &MockBookingUseCase{}
	created := &domain.Booking{
		ID:        1,
		FlightID:  1,
		UserID:    7,
		NoOfSeats: 2,
		TotalCost: 200,
		Status:    domain.BookingStatusInitiated,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	mockService.On("CreateBooking", mock.Anything, booking.CreateBookingInput{FlightID: 1, UserID: 7, NoOfSeats: 2}).Return(created, nil)

	w, resp := doRequest(t, newRouter(mockService), http.MethodPost, "/api/v1/bookings",
		map[string]interface{}{"flightId": 1, "userId": 7, "noOfSeats": 2}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(200), resp.Data.TotalCost)
	assert.Equal(t, "INITIATED", resp.Data.Status)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.Data.CreatedAt)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	mockService.AssertExpectations(t)
}

func TestBookingHandler_createMalformedBody(t *testing.T) {
	mockService := &MockBookingUseCase{}

	w, resp := doRequest(t, newRouter(mockService), http.MethodPost, "/api/v1/bookings", "{not json", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, string(domain.KindInvalidRequest), resp.Error.Code)
	assert.Equal(t, "invalid request", resp.Error.Message)
	mockService.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestBookingHandler_confirmPayment(t *testing.T) {
	mockService := &MockBookingUseCase{}
	paid := &domain.Booking{ID: 3, FlightID: 1, UserID: 7, NoOfSeats: 2, TotalCost: 200, Status: domain.BookingStatusBooked}
	mockService.On("ConfirmPayment", mock.Anything, booking.ConfirmPaymentInput{
		BookingID: 3, UserID: 7, Amount: 200, IdempotencyKey: "pay-1",
	}).Return(paid, nil)

	w, resp := doRequest(t, newRouter(mockService), http.MethodPost, "/api/v1/bookings/payments",
		map[string]interface{}{"bookingId": 3, "userId": 7, "totalCost": 200},
		map[string]string{IdempotencyKeyHeader: "pay-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BOOKED", resp.Data.Status)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_errorMapping(t *testing.T) {
	testCases := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{name: "expired", err: domain.ErrBookingExpired, wantStatus: http.StatusBadRequest, wantCode: "BOOKING_EXPIRED", wantMessage: "the booking has expired"},
		{name: "amount mismatch", err: domain.ErrAmountMismatch, wantStatus: http.StatusBadRequest, wantCode: "AMOUNT_MISMATCH", wantMessage: "the amount of payment doesn't match"},
		{name: "duplicate", err: domain.ErrDuplicatePaymentAttempt, wantStatus: http.StatusBadRequest, wantCode: "DUPLICATE_PAYMENT_ATTEMPT", wantMessage: "cannot retry a completed operation"},
		{name: "missing key", err: domain.ErrMissingIdempotencyKey, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST", wantMessage: "idempotency key missing"},
		{name: "not found", err: domain.ErrBookingNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND", wantMessage: "booking not found"},
		{name: "upstream", err: domain.ErrUpstreamUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "UPSTREAM_UNAVAILABLE", wantMessage: "flight service unavailable"},
		{name: "unclassified", err: errors.New("pgx: conn closed"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR", wantMessage: "something went wrong"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			mockService.On("ConfirmPayment", mock.Anything, mock.Anything).Return(nil, tc.err)

			w, resp := doRequest(t, newRouter(mockService), http.MethodPost, "/api/v1/bookings/payments",
				map[string]interface{}{"bookingId": 3, "userId": 7, "totalCost": 200}, nil)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
			assert.Equal(t, tc.wantMessage, resp.Error.Message)
		})
	}
}

func TestBookingHandler_get(t *testing.T) {
	mockService := &MockBookingUseCase{}
	mockService.On("GetBooking", mock.Anything, int64(5)).Return(&domain.Booking{ID: 5, Status: domain.BookingStatusCancelled}, nil)

	router := newRouter(mockService)

	w, resp := doRequest(t, router, http.MethodGet, "/api/v1/bookings/5", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", resp.Data.Status)

	w, resp = doRequest(t, router, http.MethodGet, "/api/v1/bookings/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)

	mockService.AssertExpectations(t)
}

func TestRequestID_Reused(t *testing.T) {
	mockService := &MockBookingUseCase{}
	mockService.On("GetBooking", mock.Anything, int64(5)).Return(nil, domain.ErrBookingNotFound)

	w, _ := doRequest(t, newRouter(mockService), http.MethodGet, "/api/v1/bookings/5", "",
		map[string]string{RequestIDHeader: "req-123"})

	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Recovery(zap.NewNop()))
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w, resp := doRequest(t, router, http.MethodGet, "/boom", "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
}

func TestLogger_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mockService := &MockBookingUseCase{}
	mockService.On("GetBooking", mock.Anything, int64(5)).Return(nil, domain.ErrBookingNotFound)
	mockService.On("GetBooking", mock.Anything, int64(6)).Return(nil, errors.New("pgx: conn closed"))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Logger(zap.New(core)))
	NewBookingHandler(mockService).Register(router.Group("/api/v1/bookings"))

	doRequest(t, router, http.MethodGet, "/api/v1/bookings/5", "", nil)
	doRequest(t, router, http.MethodGet, "/api/v1/bookings/6", "", nil)

	require.Equal(t, 1, logs.FilterMessage("client error").Len())
	serverErrors := logs.FilterMessage("server error").All()
	require.Len(t, serverErrors, 1)
	assert.Equal(t, "/api/v1/bookings/:id", serverErrors[0].ContextMap()["path"])
	assert.Contains(t, serverErrors[0].ContextMap()["errors"], "pgx: conn closed")
}
