package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/inventory"
	"github.com/Domenick1991/bookingsaga/internal/kafka"
	"github.com/Domenick1991/bookingsaga/internal/metrics"
	"github.com/Domenick1991/bookingsaga/internal/repository"
	"github.com/Domenick1991/bookingsaga/internal/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultReservationTimeout = 5 * time.Minute
	DefaultSweepBatchSize     = 100

	publishTimeout = 2 * time.Second
)

// Compensation triggers, used as event reasons and metric labels.
const (
	reasonDebitFailed   = "debit_failed"
	reasonDebitOrphaned = "debit_orphaned"
	reasonPayment       = "expired_on_payment"
	reasonSweep         = "expired"
	reasonManual        = "compensation"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*domain.Booking, error)
	Compensate(ctx context.Context, bookingID int64) (CompensationResult, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
}

type InventoryClient interface {
	GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error)
	AdjustSeats(ctx context.Context, flightID int64, seats int, direction inventory.Direction) error
}

// IdempotencyGuard must make TryMark a single atomic check-and-set.
type IdempotencyGuard interface {
	TryMark(ctx context.Context, key string) (alreadyMarked bool, err error)
	Release(ctx context.Context, key string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CreateBookingInput struct {
	FlightID  int64 `json:"flightId"`
	UserID    int64 `json:"userId"`
	NoOfSeats int   `json:"noOfSeats"`
}

type ConfirmPaymentInput struct {
	BookingID      int64  `json:"bookingId"`
	UserID         int64  `json:"userId"`
	Amount         int64  `json:"totalCost"`
	IdempotencyKey string `json:"-"`
}

type CompensationResult int

const (
	// Cancelled: this call moved the booking to CANCELLED.
	Cancelled CompensationResult = iota + 1
	// AlreadyCancelled: nothing to do, no seats touched.
	AlreadyCancelled
	// AlreadyBooked: payment won the race, the booking is kept.
	AlreadyBooked
)

func (r CompensationResult) String() string {
	switch r {
	case Cancelled:
		return "cancelled"
	case AlreadyCancelled:
		return "already_cancelled"
	case AlreadyBooked:
		return "already_booked"
	default:
		return "unknown"
	}
}

type BookingService struct {
	bookings           repository.BookingRepository
	inventory          InventoryClient
	guard              IdempotencyGuard
	producer           Producer
	eventsTopic        string
	notificationsTopic string
	reservationTimeout time.Duration
	sweepBatchSize     int
	storeRetrier       *retry.Retrier
	now                func() time.Time
	log                *zap.Logger
	metrics            *metrics.Metrics
}

type BookingServiceOption func(*BookingService)

func WithProducer(producer Producer, eventsTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.eventsTopic = eventsTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithLogger(log *zap.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Metrics) BookingServiceOption {
	return func(s *BookingService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithSweepBatchSize(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.sweepBatchSize = n
		}
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	inventory InventoryClient,
	guard IdempotencyGuard,
	reservationTimeout time.Duration,
	opts ...BookingServiceOption,
) *BookingService {
	if reservationTimeout <= 0 {
		reservationTimeout = DefaultReservationTimeout
	}
	service := &BookingService{
		bookings:           bookings,
		inventory:          inventory,
		guard:              guard,
		reservationTimeout: reservationTimeout,
		sweepBatchSize:     DefaultSweepBatchSize,
		storeRetrier: retry.New(retry.Config{
			MaxRetries:      2,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
		}),
		now: time.Now,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking reserves seats for a user. The record is written first as
// PENDING, seats are debited outside any transaction, and the record is then
// promoted to INITIATED. A failed debit cancels the record without a credit.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	fields := []zap.Field{zap.Int64("flight_id", input.FlightID), zap.Int64("user_id", input.UserID), zap.Int("seats", input.NoOfSeats)}

	booking, err := s.createBooking(ctx, input)
	if err != nil {
		return nil, s.fail("create_booking", err, fields...)
	}

	s.metrics.BookingCreated()
	s.log.Info("booking created", append(fields, zap.Int64("booking_id", booking.ID), zap.Int64("total_cost", booking.TotalCost))...)
	s.publish(ctx, kafka.EventBookingCreated, booking, "")
	return booking, nil
}

func (s *BookingService) createBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	flight, err := s.inventory.GetFlight(ctx, input.FlightID)
	if err != nil {
		return nil, fmt.Errorf("get flight %d: %w", input.FlightID, err)
	}
	if input.NoOfSeats > flight.AvailableSeats {
		return nil, domain.ErrInsufficientSeats
	}

	booking := &domain.Booking{
		FlightID:  input.FlightID,
		UserID:    input.UserID,
		NoOfSeats: input.NoOfSeats,
		TotalCost: int64(input.NoOfSeats) * flight.Price,
		Status:    domain.BookingStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.insert(ctx, booking); err != nil {
		return nil, err
	}

	// Once the debit is sent, a caller disconnect must not strand the seats:
	// the rest of the saga runs detached, bounded by the inventory client timeout.
	sagaCtx := context.WithoutCancel(ctx)
	if err := s.inventory.AdjustSeats(sagaCtx, booking.FlightID, booking.NoOfSeats, inventory.Debit); err != nil {
		s.abandonPending(sagaCtx, booking, false)
		return nil, fmt.Errorf("debit seats for booking %d: %w", booking.ID, err)
	}

	if err := s.promote(sagaCtx, booking.ID); err != nil {
		s.abandonPending(sagaCtx, booking, true)
		return nil, err
	}

	booking.Status = domain.BookingStatusInitiated
	return booking, nil
}

func validateCreate(input CreateBookingInput) error {
	switch {
	case input.FlightID <= 0:
		return domain.NewError(domain.KindInvalidRequest, "flightId must be positive")
	case input.UserID <= 0:
		return domain.NewError(domain.KindInvalidRequest, "userId must be positive")
	case input.NoOfSeats <= 0:
		return domain.NewError(domain.KindInvalidRequest, "noOfSeats must be positive")
	}
	return nil
}

func (s *BookingService) insert(ctx context.Context, booking *domain.Booking) error {
	tx, err := s.bookings.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.Create(ctx, booking); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// promote moves a freshly debited booking from PENDING to INITIATED.
func (s *BookingService) promote(ctx context.Context, bookingID int64) error {
	return s.storeRetrier.Do(ctx, func(ctx context.Context) error {
		return s.transition(ctx, bookingID, domain.BookingStatusPending, domain.BookingStatusInitiated)
	}, nil)
}

// abandonPending cancels a PENDING record whose debit did not go through. When
// debited is set the seats were taken and are credited back first. If the
// record cannot be cancelled here it stays PENDING, and the sweeper cancels
// PENDING records without crediting.
func (s *BookingService) abandonPending(ctx context.Context, booking *domain.Booking, debited bool) {
	ctx = context.WithoutCancel(ctx)
	fields := []zap.Field{zap.Int64("booking_id", booking.ID), zap.Int64("flight_id", booking.FlightID)}

	if debited {
		if err := s.inventory.AdjustSeats(ctx, booking.FlightID, booking.NoOfSeats, inventory.Credit); err != nil {
			// The sweeper cancels PENDING records without a credit, so these
			// seats stay taken until an operator reconciles the flight.
			s.metrics.CompensationFailed(reasonDebitOrphaned)
			s.log.Error("seats permanently unaccounted for: debited for unrecorded booking and credit failed",
				append(fields, zap.Int("seats", booking.NoOfSeats), zap.Error(err))...)
			return
		}
	}

	err := s.storeRetrier.Do(ctx, func(ctx context.Context) error {
		return s.transition(ctx, booking.ID, domain.BookingStatusPending, domain.BookingStatusCancelled)
	}, nil)
	if err != nil {
		s.metrics.CompensationFailed(reasonDebitFailed)
		s.log.Error("failed to cancel booking after seat debit failure", append(fields, zap.Error(err))...)
		return
	}

	booking.Status = domain.BookingStatusCancelled
	s.metrics.BookingCancelled(reasonDebitFailed)
	s.log.Warn("booking cancelled after seat debit failure", fields...)
}

// transition applies from -> to under a row lock. It fails with a permanent
// error if the booking is no longer in from.
func (s *BookingService) transition(ctx context.Context, bookingID int64, from, to domain.BookingStatus) error {
	tx, err := s.bookings.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	current, err := tx.GetForUpdate(ctx, bookingID)
	if err != nil {
		if domain.IsNotFound(err) {
			return retry.Permanent(err)
		}
		return err
	}
	if current.Status != from {
		return retry.Permanent(fmt.Errorf("booking %d is %s, expected %s", bookingID, current.Status, from))
	}
	if err := tx.UpdateStatus(ctx, bookingID, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ConfirmPayment accepts payment for an INITIATED booking at most once per
// idempotency key. The key is claimed up front and released again on every
// failure, so only a successful payment keeps it.
func (s *BookingService) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*domain.Booking, error) {
	fields := []zap.Field{zap.Int64("booking_id", input.BookingID), zap.Int64("user_id", input.UserID), zap.String("idempotency_key", input.IdempotencyKey)}

	if input.IdempotencyKey == "" {
		return nil, s.fail("confirm_payment", domain.ErrMissingIdempotencyKey, fields...)
	}

	marked, err := s.guard.TryMark(ctx, input.IdempotencyKey)
	if err != nil {
		return nil, s.fail("confirm_payment", fmt.Errorf("claim idempotency key: %w", err), fields...)
	}
	if marked {
		return nil, s.fail("confirm_payment", domain.ErrDuplicatePaymentAttempt, fields...)
	}

	booking, err := s.confirmPayment(ctx, input)
	if err != nil {
		if rerr := s.guard.Release(context.WithoutCancel(ctx), input.IdempotencyKey); rerr != nil {
			s.log.Error("failed to release idempotency key", append(fields, zap.Error(rerr))...)
		}
		return nil, s.fail("confirm_payment", err, fields...)
	}

	s.metrics.BookingConfirmed()
	s.log.Info("payment confirmed", fields...)
	s.publish(ctx, kafka.EventBookingConfirmed, booking, "")
	return booking, nil
}

func (s *BookingService) confirmPayment(ctx context.Context, input ConfirmPaymentInput) (*domain.Booking, error) {
	tx, err := s.bookings.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	booking, err := tx.GetForUpdate(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}

	switch booking.Status {
	case domain.BookingStatusCancelled:
		return nil, domain.ErrBookingExpired
	case domain.BookingStatusBooked, domain.BookingStatusPending:
		return nil, domain.ErrBookingNotPayable
	}

	if booking.Expired(s.now(), s.reservationTimeout) {
		// The row lock must be gone before compensation locks the row again.
		if err := tx.Rollback(ctx); err != nil {
			return nil, err
		}
		if _, cerr := s.compensate(context.WithoutCancel(ctx), booking.ID, reasonPayment); cerr != nil {
			s.metrics.CompensationFailed(reasonPayment)
			s.log.Error("lazy expiry compensation failed, leaving booking to the sweeper",
				zap.Int64("booking_id", booking.ID), zap.Error(cerr))
			return nil, domain.ErrBookingExpired.Wrap(cerr)
		}
		return nil, domain.ErrBookingExpired
	}

	if input.Amount != booking.TotalCost {
		return nil, domain.ErrAmountMismatch
	}
	if input.UserID != booking.UserID {
		return nil, domain.ErrUserMismatch
	}

	if err := tx.UpdateStatus(ctx, booking.ID, domain.BookingStatusBooked); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatusBooked
	return booking, nil
}

// Compensate cancels a booking and credits its seats back. It is idempotent:
// an already cancelled booking is left untouched, and a booked one is kept.
func (s *BookingService) Compensate(ctx context.Context, bookingID int64) (CompensationResult, error) {
	result, err := s.compensate(ctx, bookingID, reasonManual)
	if err != nil {
		s.metrics.CompensationFailed(reasonManual)
		return 0, s.fail("compensate", err, zap.Int64("booking_id", bookingID))
	}
	return result, nil
}

func (s *BookingService) compensate(ctx context.Context, bookingID int64, reason string) (CompensationResult, error) {
	tx, err := s.bookings.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	booking, err := tx.GetForUpdate(ctx, bookingID)
	if err != nil {
		return 0, err
	}

	switch booking.Status {
	case domain.BookingStatusCancelled:
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		return AlreadyCancelled, nil
	case domain.BookingStatusBooked:
		return AlreadyBooked, nil
	case domain.BookingStatusInitiated:
		if err := s.inventory.AdjustSeats(ctx, booking.FlightID, booking.NoOfSeats, inventory.Credit); err != nil {
			return 0, fmt.Errorf("credit seats for booking %d: %w", booking.ID, err)
		}
	}
	// PENDING bookings never had their debit confirmed, so nothing is credited.

	if err := tx.UpdateStatus(ctx, booking.ID, domain.BookingStatusCancelled); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Error("seats credited but cancellation not committed",
			zap.Int64("booking_id", booking.ID), zap.Int64("flight_id", booking.FlightID), zap.Error(err))
		return 0, err
	}

	booking.Status = domain.BookingStatusCancelled
	s.metrics.BookingCancelled(reason)
	s.log.Info("booking cancelled", zap.Int64("booking_id", booking.ID), zap.String("reason", reason))
	s.publish(ctx, kafka.EventBookingCancelled, booking, reason)
	return Cancelled, nil
}

// SweepExpired compensates open bookings created more than the reservation
// timeout before now, oldest first, at most one batch per call. Failures on
// individual bookings are logged and left for the next cycle.
func (s *BookingService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	cutoff := now.Add(-s.reservationTimeout)

	expired, err := s.bookings.ScanOlderThan(ctx, cutoff,
		[]domain.BookingStatus{domain.BookingStatusBooked, domain.BookingStatusCancelled}, s.sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("scan expired bookings: %w", err)
	}

	compensated := 0
	for _, b := range expired {
		if ctx.Err() != nil {
			break
		}
		result, err := s.compensate(ctx, b.ID, reasonSweep)
		if err != nil {
			s.metrics.CompensationFailed(reasonSweep)
			s.log.Error("failed to compensate expired booking",
				zap.Int64("booking_id", b.ID),
				zap.Int64("flight_id", b.FlightID),
				zap.Time("created_at", b.CreatedAt),
				zap.Error(err),
			)
			continue
		}
		if result == Cancelled {
			compensated++
		}
	}

	s.metrics.SweepFinished(started, compensated)
	return compensated, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, s.fail("get_booking", err, zap.Int64("booking_id", bookingID))
	}
	return booking, nil
}

// publish emits a lifecycle event to the events topic and mirrors it to the
// notifications topic. Delivery is best effort and never fails the caller.
func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking, reason string) {
	if s.producer == nil {
		return
	}

	event := kafka.BookingEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		BookingID:  booking.ID,
		FlightID:   booking.FlightID,
		UserID:     booking.UserID,
		NoOfSeats:  booking.NoOfSeats,
		TotalCost:  booking.TotalCost,
		Status:     string(booking.Status),
		Reason:     reason,
		OccurredAt: s.now(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, topic := range []string{s.eventsTopic, s.notificationsTopic} {
		if topic == "" {
			continue
		}
		if err := s.producer.Publish(ctx, topic, event.Key(), event); err != nil {
			s.log.Warn("failed to publish booking event",
				zap.String("topic", topic),
				zap.String("type", eventType),
				zap.Int64("booking_id", booking.ID),
				zap.Error(err),
			)
		}
	}
}

// fail logs err and returns the caller-safe classified form of it, without
// any internal cause attached.
func (s *BookingService) fail(op string, err error, fields ...zap.Field) error {
	classified := domain.Classify(err)
	s.metrics.Rejected(op, classified.Kind)

	fields = append(fields, zap.String("op", op), zap.String("kind", string(classified.Kind)), zap.Error(err))
	switch classified.Kind.Class() {
	case domain.ClassClientFault, domain.ClassNotFound:
		s.log.Info("request rejected", fields...)
	default:
		s.log.Error("request failed", fields...)
	}
	return domain.NewError(classified.Kind, classified.Message)
}

var _ BookingUseCase = (*BookingService)(nil)
