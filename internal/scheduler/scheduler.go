package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ridepool/ridepool/internal/domain"
)

// Expirer cancels stale pending bookings created before cutoff and reports
// how the batch went.
type Expirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (domain.ExpiryReport, error)
}

// Notifier receives the aggregate summary of an expiry run. Fire-and-forget;
// implementations must not fail the caller.
type Notifier interface {
	SystemNotification(ctx context.Context, summary string, meta map[string]string)
}

type Config struct {
	// Interval between expiry runs. Defaults to one hour.
	Interval time.Duration
	// PendingTTL is how long a booking may stay pending before a run
	// cancels it. Defaults to 24 hours.
	PendingTTL time.Duration
	// Now supplies the clock; tests inject a fixed time. Defaults to
	// time.Now.
	Now func() time.Time
}

// Scheduler runs the booking expiry job: once immediately on Start, then on
// every interval tick until Stop or context cancellation.
type Scheduler struct {
	expirer    Expirer
	notifier   Notifier
	interval   time.Duration
	pendingTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}
}

func New(expirer Expirer, notifier Notifier, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 24 * time.Hour
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		expirer:    expirer,
		notifier:   notifier,
		interval:   cfg.Interval,
		pendingTTL: cfg.PendingTTL,
		now:        cfg.Now,
		logger:     logger,
	}
}

// Start launches the job loop. Calling Start on a running scheduler is a
// no-op. The first run happens immediately, not after the first interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quit != nil {
		return
	}

	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.quit, s.done)

	s.logger.Info("expiry scheduler started",
		"interval", s.interval,
		"pending_ttl", s.pendingTTL,
	)
}

// Stop prevents future ticks and waits for the loop to exit. A tick already
// in flight is not interrupted. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quit == nil {
		return
	}

	close(s.quit)
	<-s.done
	s.quit = nil
	s.done = nil

	s.logger.Info("expiry scheduler stopped")
}

// RunNow executes a single expiry run outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) domain.ExpiryReport {
	return s.tick(ctx)
}

func (s *Scheduler) loop(ctx context.Context, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) domain.ExpiryReport {
	cutoff := s.now().Add(-s.pendingTTL)

	report, err := s.expirer.ExpireStale(ctx, cutoff)
	if err != nil {
		// store unreachable or batch query failed: skip this run, the
		// next tick retries
		s.logger.Error("expiry run failed", "error", err)
		return domain.ExpiryReport{}
	}

	if report.Cancelled > 0 {
		summary := fmt.Sprintf(
			"Auto-cancelled %d stale pending booking(s) older than %s.",
			report.Cancelled, s.pendingTTL,
		)
		s.notifier.SystemNotification(ctx, summary, map[string]string{
			"cancelled": strconv.Itoa(report.Cancelled),
			"failed":    strconv.Itoa(report.Failed),
		})
	}

	return report
}
