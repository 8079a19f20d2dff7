package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, flight_id, user_id, no_of_seats, total_cost, status, created_at, updated_at`

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) Begin(ctx context.Context) (BookingTx, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	return &pgBookingTx{tx: tx}, nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (r *PGBookingRepository) ScanOlderThan(ctx context.Context, before time.Time, excluding []domain.BookingStatus, limit int) ([]domain.Booking, error) {
	statuses := make([]string, 0, len(excluding))
	for _, s := range excluding {
		statuses = append(statuses, string(s))
	}

	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE created_at < $1 AND NOT (status = ANY($2))
		ORDER BY created_at
		LIMIT $3`, before, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("scan bookings: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

type pgBookingTx struct {
	tx pgx.Tx
}

func (t *pgBookingTx) Create(ctx context.Context, booking *domain.Booking) error {
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	booking.UpdatedAt = booking.CreatedAt

	err := t.tx.QueryRow(ctx, `INSERT INTO bookings (flight_id, user_id, no_of_seats, total_cost, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`, booking.FlightID, booking.UserID, booking.NoOfSeats, booking.TotalCost, string(booking.Status), booking.CreatedAt).
		Scan(&booking.ID)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *pgBookingTx) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id)
	return scanBooking(row)
}

func (t *pgBookingTx) UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update booking %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (t *pgBookingTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

func (t *pgBookingTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback booking tx: %w", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b      domain.Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.FlightID, &b.UserID, &b.NoOfSeats, &b.TotalCost, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = domain.BookingStatus(status)
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
var _ BookingTx = (*pgBookingTx)(nil)
