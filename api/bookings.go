package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/service/booking"
	"github.com/gin-gonic/gin"
)

const IdempotencyKeyHeader = "X-Idempotency-Key"

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	FlightID  int64 `json:"flightId"`
	UserID    int64 `json:"userId"`
	NoOfSeats int   `json:"noOfSeats"`
}

type confirmPaymentRequest struct {
	BookingID int64 `json:"bookingId"`
	UserID    int64 `json:"userId"`
	TotalCost int64 `json:"totalCost"`
}

type bookingResponse struct {
	ID        int64  `json:"id"`
	FlightID  int64  `json:"flightId"`
	UserID    int64  `json:"userId"`
	NoOfSeats int    `json:"noOfSeats"`
	TotalCost int64  `json:"totalCost"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.POST("/payments", h.confirmPayment)
	router.GET("/:id", h.get)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, domain.ErrInvalidRequest.Wrap(err))
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		FlightID:  req.FlightID,
		UserID:    req.UserID,
		NoOfSeats: req.NoOfSeats,
	})
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, http.StatusCreated, toResponse(b))
}

func (h *BookingHandler) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, domain.ErrInvalidRequest.Wrap(err))
		return
	}

	b, err := h.service.ConfirmPayment(c.Request.Context(), booking.ConfirmPaymentInput{
		BookingID:      req.BookingID,
		UserID:         req.UserID,
		Amount:         req.TotalCost,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, http.StatusOK, toResponse(b))
}

func (h *BookingHandler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		Error(c, domain.NewError(domain.KindInvalidRequest, "booking id must be a positive integer"))
		return
	}

	b, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, http.StatusOK, toResponse(b))
}

func toResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:        b.ID,
		FlightID:  b.FlightID,
		UserID:    b.UserID,
		NoOfSeats: b.NoOfSeats,
		TotalCost: b.TotalCost,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
	if !b.UpdatedAt.IsZero() {
		resp.UpdatedAt = b.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
