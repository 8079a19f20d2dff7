package domain

import "time"

type BookingStatus string

const (
	// BookingStatusPending marks a record whose seat debit has not been confirmed yet.
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusInitiated BookingStatus = "INITIATED"
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusBooked || s == BookingStatusCancelled
}

// CanTransitionTo enforces the monotonic lifecycle
// PENDING -> INITIATED -> BOOKED, with CANCELLED reachable from either open state.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingStatusPending:
		return next == BookingStatusInitiated || next == BookingStatusCancelled
	case BookingStatusInitiated:
		return next == BookingStatusBooked || next == BookingStatusCancelled
	default:
		return false
	}
}

type Booking struct {
	ID        int64
	FlightID  int64
	UserID    int64
	NoOfSeats int
	TotalCost int64
	Status    BookingStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the booking has outlived the reservation timeout at now.
func (b *Booking) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(b.CreatedAt) > timeout
}
