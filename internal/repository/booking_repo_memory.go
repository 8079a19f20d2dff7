package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/bookingsaga/internal/domain"
)

var errTxDone = errors.New("booking tx already committed or rolled back")

// MemoryBookingRepository keeps bookings in process memory with per-row locks,
// giving the same read-committed + SELECT FOR UPDATE behavior as the Postgres
// store. Used for local runs and tests.
type MemoryBookingRepository struct {
	mu     sync.Mutex
	rows   map[int64]*memoryRow
	nextID int64
}

type memoryRow struct {
	// lock is a one-slot semaphore standing in for the row lock.
	lock    chan struct{}
	booking domain.Booking
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{rows: make(map[int64]*memoryRow)}
}

func (r *MemoryBookingRepository) Begin(ctx context.Context) (BookingTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryBookingTx{
		repo:    r,
		locked:  make(map[int64]*memoryRow),
		writes:  make(map[int64]domain.Booking),
		inserts: make(map[int64]domain.Booking),
	}, nil
}

func (r *MemoryBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	b := row.booking
	return &b, nil
}

func (r *MemoryBookingRepository) ScanOlderThan(ctx context.Context, before time.Time, excluding []domain.BookingStatus, limit int) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	skip := make(map[domain.BookingStatus]bool, len(excluding))
	for _, s := range excluding {
		skip[s] = true
	}

	var out []domain.Booking
	for _, row := range r.rows {
		if skip[row.booking.Status] || !row.booking.CreatedAt.Before(before) {
			continue
		}
		out = append(out, row.booking)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryBookingTx struct {
	repo    *MemoryBookingRepository
	locked  map[int64]*memoryRow
	writes  map[int64]domain.Booking
	inserts map[int64]domain.Booking
	done    bool
}

func (t *memoryBookingTx) Create(ctx context.Context, booking *domain.Booking) error {
	if t.done {
		return errTxDone
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	booking.UpdatedAt = booking.CreatedAt

	t.repo.mu.Lock()
	t.repo.nextID++
	booking.ID = t.repo.nextID
	t.repo.mu.Unlock()

	t.inserts[booking.ID] = *booking
	return nil
}

func (t *memoryBookingTx) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	if t.done {
		return nil, errTxDone
	}
	if b, ok := t.inserts[id]; ok {
		return &b, nil
	}
	if err := t.lock(ctx, id); err != nil {
		return nil, err
	}
	if b, ok := t.writes[id]; ok {
		return &b, nil
	}

	t.repo.mu.Lock()
	b := t.locked[id].booking
	t.repo.mu.Unlock()
	return &b, nil
}

func (t *memoryBookingTx) UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) error {
	if t.done {
		return errTxDone
	}
	if b, ok := t.inserts[id]; ok {
		b.Status = status
		b.UpdatedAt = time.Now()
		t.inserts[id] = b
		return nil
	}
	if err := t.lock(ctx, id); err != nil {
		return err
	}

	b, ok := t.writes[id]
	if !ok {
		t.repo.mu.Lock()
		b = t.locked[id].booking
		t.repo.mu.Unlock()
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	t.writes[id] = b
	return nil
}

func (t *memoryBookingTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true

	t.repo.mu.Lock()
	for id, b := range t.inserts {
		t.repo.rows[id] = &memoryRow{lock: make(chan struct{}, 1), booking: b}
	}
	for id, b := range t.writes {
		t.locked[id].booking = b
	}
	t.repo.mu.Unlock()

	t.unlockAll()
	return nil
}

func (t *memoryBookingTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.unlockAll()
	return nil
}

// lock acquires the row lock for id unless this tx already holds it.
func (t *memoryBookingTx) lock(ctx context.Context, id int64) error {
	if _, ok := t.locked[id]; ok {
		return nil
	}

	t.repo.mu.Lock()
	row, ok := t.repo.rows[id]
	t.repo.mu.Unlock()
	if !ok {
		return domain.ErrBookingNotFound
	}

	select {
	case row.lock <- struct{}{}:
		t.locked[id] = row
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memoryBookingTx) unlockAll() {
	for id, row := range t.locked {
		<-row.lock
		delete(t.locked, id)
	}
}

var _ BookingRepository = (*MemoryBookingRepository)(nil)
var _ BookingTx = (*memoryBookingTx)(nil)
