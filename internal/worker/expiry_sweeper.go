package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultSweepInterval = 30 * time.Second

var ErrAlreadyRunning = errors.New("expiry sweeper already running")

type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type SweeperStats struct {
	Running        bool
	Cycles         int64
	TotalCancelled int64
	LastSweep      time.Time
	LastCancelled  int
	LastError      string
}

// ExpirySweeper runs one sweep cycle on start and then one per interval until
// stopped. Cycles never overlap.
type ExpirySweeper struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stats   SweeperStats
}

func NewExpirySweeper(sweeper Sweeper, interval time.Duration, log *zap.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpirySweeper{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
		log:      log.Named("expiry_sweeper"),
	}
}

func (w *ExpirySweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}
	w.running = true
	w.stats.Running = true
	w.stopCh = make(chan struct{})

	w.log.Info("starting expiry sweeper", zap.Duration("interval", w.interval))

	w.wg.Add(1)
	go w.loop(ctx, w.stopCh)
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.stats.Running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("expiry sweeper stopped")
}

// Run starts the sweeper and blocks until ctx is done.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

func (w *ExpirySweeper) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *ExpirySweeper) sweepOnce(ctx context.Context) {
	now := w.now()
	cancelled, err := w.sweeper.SweepExpired(ctx, now)

	w.mu.Lock()
	w.stats.Cycles++
	w.stats.LastSweep = now
	w.stats.LastCancelled = cancelled
	w.stats.TotalCancelled += int64(cancelled)
	w.stats.LastError = ""
	if err != nil {
		w.stats.LastError = err.Error()
	}
	w.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("sweep cycle failed", zap.Error(err))
		}
		return
	}
	if cancelled > 0 {
		w.log.Info("cancelled expired bookings", zap.Int("count", cancelled))
	}
}

func (w *ExpirySweeper) Stats() SweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
