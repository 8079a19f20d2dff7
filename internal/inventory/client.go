package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/bookingsaga/config"
	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/retry"
	"go.uber.org/zap"
)

// Direction distinguishes a seat debit (reserve) from a credit (release).
type Direction int

const (
	Debit Direction = iota
	Credit
)

func (d Direction) String() string {
	if d == Credit {
		return "credit"
	}
	return "debit"
}

// Client talks to the flight service over HTTP. It holds no state besides its
// connection pool and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retry.Retrier
	log        *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

func NewClient(cfg config.InventoryConfig, opts ...ClientOption) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries
	if cfg.RetryInitialInterval > 0 {
		rc.InitialInterval = cfg.RetryInitialInterval.Std()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retrier:    retry.New(rc),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type flightEnvelope struct {
	Data *flightPayload `json:"data"`
}

type flightPayload struct {
	ID         int64 `json:"id"`
	Price      int64 `json:"price"`
	TotalSeats int   `json:"totalSeats"`
}

type adjustSeatsRequest struct {
	Seats int  `json:"seats"`
	Dec   bool `json:"dec"`
}

// GetFlight reads the current price and remaining seats of a flight.
func (c *Client) GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error) {
	url := fmt.Sprintf("%s/api/v1/flights/%d", c.baseURL, flightID)

	var flight *domain.Flight
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		body, err := c.do(req)
		if err != nil {
			return err
		}

		var env flightEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return retry.Permanent(fmt.Errorf("decode flight %d: %w", flightID, err))
		}
		if env.Data == nil {
			return retry.Permanent(fmt.Errorf("decode flight %d: empty data", flightID))
		}
		flight = &domain.Flight{
			ID:             flightID,
			Price:          env.Data.Price,
			AvailableSeats: env.Data.TotalSeats,
		}
		return nil
	}, c.logRetry("get_flight", flightID))
	if err != nil {
		return nil, err
	}
	return flight, nil
}

// AdjustSeats debits or credits seats on a flight. It is retried on transport
// failures and 5xx responses, so the flight service sees it at least once.
func (c *Client) AdjustSeats(ctx context.Context, flightID int64, seats int, direction Direction) error {
	if seats <= 0 {
		return fmt.Errorf("adjust seats: seat count must be positive, got %d", seats)
	}

	url := fmt.Sprintf("%s/api/v1/flights/%d/seats", c.baseURL, flightID)
	payload, err := json.Marshal(adjustSeatsRequest{Seats: seats, Dec: direction == Debit})
	if err != nil {
		return fmt.Errorf("encode adjust seats: %w", err)
	}

	return c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		_, err = c.do(req)
		return err
	}, c.logRetry("adjust_seats_"+direction.String(), flightID))
}

// do executes req and maps the outcome onto domain errors. Non-retryable
// outcomes come back wrapped in retry.Permanent.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrUpstreamUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrUpstreamUnavailable.Wrap(err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(domain.ErrFlightNotFound)
	case resp.StatusCode >= 500:
		return nil, domain.ErrUpstreamUnavailable.Wrap(fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode))
	default:
		return nil, retry.Permanent(fmt.Errorf("%s %s: unexpected status %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncate(body, 256)))
	}
}

func (c *Client) logRetry(op string, flightID int64) retry.Callback {
	return func(attempt int, err error, wait time.Duration) {
		c.log.Warn("retrying flight service call",
			zap.String("op", op),
			zap.Int64("flight_id", flightID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
