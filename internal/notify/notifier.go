package notify

import (
	"context"
	"fmt"

	"github.com/Domenick1991/bookingsaga/internal/kafka"
	"go.uber.org/zap"
)

// Notifier turns booking lifecycle events into user-facing messages. Delivery
// is a structured log line; a mail or push transport can replace it.
type Notifier struct {
	log *zap.Logger
}

func NewNotifier(log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{log: log}
}

func (n *Notifier) Send(ctx context.Context, event kafka.BookingEvent) error {
	text, ok := Message(event)
	if !ok {
		n.log.Debug("skipping event without notification", zap.String("type", event.Type))
		return nil
	}
	n.log.Info("notify user",
		zap.Int64("user_id", event.UserID),
		zap.Int64("booking_id", event.BookingID),
		zap.String("event", event.Type),
		zap.String("text", text),
	)
	return nil
}

// Message renders the notification text for event.
func Message(event kafka.BookingEvent) (string, bool) {
	switch event.Type {
	case kafka.EventBookingCreated:
		return fmt.Sprintf("Booking %d: %d seat(s) on flight %d held, pay %d to confirm.",
			event.BookingID, event.NoOfSeats, event.FlightID, event.TotalCost), true
	case kafka.EventBookingConfirmed:
		return fmt.Sprintf("Booking %d confirmed: %d seat(s) on flight %d.",
			event.BookingID, event.NoOfSeats, event.FlightID), true
	case kafka.EventBookingCancelled:
		return fmt.Sprintf("Booking %d cancelled (%s); seats released.", event.BookingID, event.Reason), true
	default:
		return "", false
	}
}
