package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/bookingsaga/internal/domain"
)

// BookingRepository is the transactional booking store. Writes and locking reads
// happen inside a BookingTx; plain reads see committed data only.
type BookingRepository interface {
	Begin(ctx context.Context) (BookingTx, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	// ScanOlderThan returns up to limit committed bookings created before the
	// given instant whose status is not in excluding, oldest first.
	ScanOlderThan(ctx context.Context, before time.Time, excluding []domain.BookingStatus, limit int) ([]domain.Booking, error)
}

// BookingTx is one all-or-nothing unit of work. GetForUpdate locks the row until
// Commit or Rollback, so two transactions on the same booking are serialized.
// Rollback after Commit is a no-op.
type BookingTx interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
