package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ridepool/ridepool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExpirer struct {
	mu      sync.Mutex
	cutoffs []time.Time
	report  domain.ExpiryReport
	err     error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, cutoff time.Time) (domain.ExpiryReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.report, f.err
}

func (f *fakeExpirer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []string
	metas     []map[string]string
}

func (f *fakeNotifier) SystemNotification(_ context.Context, summary string, meta map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, summary)
	f.metas = append(f.metas, meta)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.summaries)
}

func TestScheduler_RunNow_CutoffBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expirer := &fakeExpirer{}
	notifier := &fakeNotifier{}

	s := New(expirer, notifier, newTestLogger(), Config{
		PendingTTL: 24 * time.Hour,
		Now:        func() time.Time { return now },
	})

	s.RunNow(context.Background())

	require.Equal(t, 1, expirer.calls())
	// a booking created at now-23h59m is after this cutoff and survives;
	// one created at now-24h01m is before it and gets cancelled
	assert.Equal(t, now.Add(-24*time.Hour), expirer.cutoffs[0])
}

func TestScheduler_NotifiesOnceForBatch(t *testing.T) {
	expirer := &fakeExpirer{report: domain.ExpiryReport{Cancelled: 3, Failed: 1}}
	notifier := &fakeNotifier{}

	s := New(expirer, notifier, newTestLogger(), Config{})

	report := s.RunNow(context.Background())

	assert.Equal(t, 3, report.Cancelled)
	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.summaries[0], "3")
	assert.Equal(t, "3", notifier.metas[0]["cancelled"])
	assert.Equal(t, "1", notifier.metas[0]["failed"])
}

func TestScheduler_NoNotificationWhenNothingCancelled(t *testing.T) {
	expirer := &fakeExpirer{}
	notifier := &fakeNotifier{}

	s := New(expirer, notifier, newTestLogger(), Config{})

	s.RunNow(context.Background())

	assert.Equal(t, 0, notifier.count())
}

func TestScheduler_BatchErrorSkipsTick(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("store unreachable")}
	notifier := &fakeNotifier{}

	s := New(expirer, notifier, newTestLogger(), Config{})

	report := s.RunNow(context.Background())

	assert.Zero(t, report)
	assert.Equal(t, 0, notifier.count())
}

func TestScheduler_StartRunsImmediatelyThenTicks(t *testing.T) {
	expirer := &fakeExpirer{}
	notifier := &fakeNotifier{}

	s := New(expirer, notifier, newTestLogger(), Config{
		Interval: 30 * time.Millisecond,
	})

	s.Start(context.Background())
	defer s.Stop()

	// immediate first run, no waiting for the first interval
	require.Eventually(t, func() bool {
		return expirer.calls() >= 1
	}, 20*time.Millisecond, time.Millisecond)

	require.Eventually(t, func() bool {
		return expirer.calls() >= 3
	}, 500*time.Millisecond, 5*time.Millisecond)
}

func TestScheduler_StartTwiceIsNoop(t *testing.T) {
	expirer := &fakeExpirer{}
	notifier := &fakeNotifier{}

	s := New(expirer, notifier, newTestLogger(), Config{
		Interval: time.Hour,
	})

	s.Start(context.Background())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return expirer.calls() == 1
	}, 100*time.Millisecond, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, expirer.calls(), "second Start must not spawn a second loop")
}

func TestScheduler_StopPreventsFurtherTicks(t *testing.T) {
	expirer := &fakeExpirer{}
	notifier := &fakeNotifier{}

	s := New(expirer, notifier, newTestLogger(), Config{
		Interval: 10 * time.Millisecond,
	})

	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return expirer.calls() >= 1
	}, 100*time.Millisecond, time.Millisecond)

	s.Stop()
	calls := expirer.calls()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, expirer.calls())

	// stopping again is a no-op
	s.Stop()
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	expirer := &fakeExpirer{}
	notifier := &fakeNotifier{}

	s := New(expirer, notifier, newTestLogger(), Config{
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	time.Sleep(30 * time.Millisecond)
	calls := expirer.calls()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, expirer.calls())

	s.Stop()
}
