package bootstrap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Domenick1991/bookingsaga/config"
	"github.com/Domenick1991/bookingsaga/internal/idempotency"
	"github.com/Domenick1991/bookingsaga/internal/inventory"
	"github.com/Domenick1991/bookingsaga/internal/kafka"
	"github.com/Domenick1991/bookingsaga/internal/metrics"
	"github.com/Domenick1991/bookingsaga/internal/repository"
	"github.com/Domenick1991/bookingsaga/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Components holds the saga engine and the clients it was built from.
type Components struct {
	Bookings *booking.BookingService
	Checks   map[string]HealthCheck

	closers []func()
}

// Close releases clients in reverse construction order.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build wires storage, idempotency, inventory and events according to cfg.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*Components, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Components{Checks: make(map[string]HealthCheck)}

	var (
		bookings repository.BookingRepository
		pool     *pgxpool.Pool
	)
	switch cfg.Storage.Driver {
	case "postgres":
		var err error
		pool, err = openPostgres(ctx, cfg.Database)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, pool.Close)
		c.Checks["postgres"] = pool.Ping

		if cfg.Database.AutoMigrate {
			if err := repository.EnsureSchema(ctx, pool); err != nil {
				c.Close()
				return nil, err
			}
		}
		bookings = repository.NewBookingRepository(pool)
	default:
		log.Warn("using in-memory booking storage")
		bookings = repository.NewMemoryBookingRepository()
	}

	var guard booking.IdempotencyGuard
	switch cfg.Idempotency.Backend {
	case "postgres":
		if pool == nil {
			c.Close()
			return nil, fmt.Errorf("postgres idempotency backend requires postgres storage")
		}
		guard = idempotency.NewPGGuard(pool)
	case "redis":
		redisGuard := idempotency.NewRedisGuard(cfg.Redis, cfg.Idempotency.RedisTTL.Std())
		c.closers = append(c.closers, func() {
			if err := redisGuard.Close(); err != nil {
				log.Warn("close redis", zap.Error(err))
			}
		})
		c.Checks["redis"] = redisGuard.Ping
		guard = redisGuard
	default:
		guard = idempotency.NewMemoryGuard()
	}

	opts := []booking.BookingServiceOption{
		booking.WithLogger(log.Named("booking")),
		booking.WithMetrics(metrics.New(reg)),
		booking.WithSweepBatchSize(cfg.Worker.BatchSize),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log.Named("kafka"))
		c.closers = append(c.closers, func() {
			if err := producer.Close(); err != nil {
				log.Warn("close kafka producer", zap.Error(err))
			}
		})
		c.Checks["kafka"] = producer.CheckConnection
		opts = append(opts,
			booking.WithProducer(producer, cfg.Kafka.BookingEventsTopic),
			booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		)
	}

	flights := inventory.NewClient(cfg.Inventory, inventory.WithLogger(log.Named("inventory")))

	c.Bookings = booking.NewBookingService(bookings, flights, guard, cfg.Booking.ReservationTimeout.Std(), opts...)
	return c, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if timeout := cfg.QueryTimeout.Std(); timeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(timeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
