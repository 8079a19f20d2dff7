package notify

import (
	"context"
	"testing"

	"github.com/Domenick1991/bookingsaga/internal/kafka"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMessage(t *testing.T) {
	testCases := []struct {
		name  string
		event kafka.BookingEvent
		want  string
		ok    bool
	}{
		{
			name:  "created",
			event: kafka.BookingEvent{Type: kafka.EventBookingCreated, BookingID: 1, FlightID: 9, NoOfSeats: 2, TotalCost: 200},
			want:  "Booking 1: 2 seat(s) on flight 9 held, pay 200 to confirm.",
			ok:    true,
		},
		{
			name:  "confirmed",
			event: kafka.BookingEvent{Type: kafka.EventBookingConfirmed, BookingID: 1, FlightID: 9, NoOfSeats: 2},
			want:  "Booking 1 confirmed: 2 seat(s) on flight 9.",
			ok:    true,
		},
		{
			name:  "cancelled",
			event: kafka.BookingEvent{Type: kafka.EventBookingCancelled, BookingID: 1, Reason: "expired"},
			want:  "Booking 1 cancelled (expired); seats released.",
			ok:    true,
		},
		{
			name:  "unknown",
			event: kafka.BookingEvent{Type: "booking.audited"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Message(tc.event)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNotifier_SendLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewNotifier(zap.New(core))

	err := n.Send(context.Background(), kafka.BookingEvent{Type: kafka.EventBookingConfirmed, BookingID: 5, UserID: 8})
	assert.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("notify user").Len())

	assert.NoError(t, n.Send(context.Background(), kafka.BookingEvent{Type: "other"}))
	assert.Equal(t, 1, logs.Len())
}
