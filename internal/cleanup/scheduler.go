package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type Sweeper interface {
	CleanupExpiredOrders(ctx context.Context) (booking.CleanupResult, error)
}

type Stats struct {
	Started      bool                  `json:"started"`
	Interval     string                `json:"interval"`
	InFlight     bool                  `json:"in_flight"`
	RunCount     int64                 `json:"run_count"`
	TotalCleaned int64                 `json:"total_cleaned"`
	Skipped      int64                 `json:"skipped"`
	LastError    string                `json:"last_error,omitempty"`
	LastRunAt    *time.Time            `json:"last_run_at,omitempty"`
	LastResult   booking.CleanupResult `json:"last_result"`
}

// Scheduler runs the expiry sweep on a ticker. Overlapping runs (a slow
// tick meeting a manual trigger) are skipped, never queued. The guard is
// per process: two replicas will sweep concurrently, which stays correct
// but duplicates work.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger

	inFlight atomic.Bool

	mu     sync.Mutex
	stats  Stats
	cancel context.CancelFunc
	done   chan struct{}

	runs, cleaned, skipped, failures metric.Int64Counter
}

func New(sw Sweeper, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{sweeper: sw, interval: interval, log: log}

	m := telemetry.Meter()
	s.runs = counter(m, "booking.cleanup.runs")
	s.cleaned = counter(m, "booking.cleanup.orders_expired")
	s.skipped = counter(m, "booking.cleanup.skipped")
	s.failures = counter(m, "booking.cleanup.errors")
	return s
}

func counter(m metric.Meter, name string) metric.Int64Counter {
	c, err := m.Int64Counter(name)
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// Start launches the loop; it reports false when it is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.stats.Started = true
	go s.loop(ctx, s.done)
	s.log.Info("cleanup scheduler started", "interval", s.interval)
	return true
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.stats.Started = false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("cleanup scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		_, _, _ = s.RunNow(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunNow sweeps once. skipped=true means another sweep was in flight.
func (s *Scheduler) RunNow(ctx context.Context) (res booking.CleanupResult, skipped bool, err error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.stats.Skipped++
		s.mu.Unlock()
		s.skipped.Add(ctx, 1)
		s.log.Debug("cleanup skipped, previous run still in flight")
		return res, true, nil
	}
	defer s.inFlight.Store(false)

	res, err = s.sweeper.CleanupExpiredOrders(ctx)
	now := time.Now()

	s.mu.Lock()
	s.stats.RunCount++
	s.stats.TotalCleaned += int64(res.CleanedCount)
	s.stats.LastRunAt = &now
	s.stats.LastResult = res
	s.stats.LastError = ""
	if err != nil {
		s.stats.LastError = err.Error()
	}
	s.mu.Unlock()

	s.runs.Add(ctx, 1)
	s.cleaned.Add(ctx, int64(res.CleanedCount))
	if err != nil {
		s.failures.Add(ctx, 1)
		s.log.Error("cleanup run failed", "cleaned", res.CleanedCount, "found", res.TotalFound, "err", err)
	}
	return res, false, err
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Interval = s.interval.String()
	st.InFlight = s.inFlight.Load()
	if st.LastRunAt != nil {
		t := *st.LastRunAt
		st.LastRunAt = &t
	}
	return st
}

// ResetStats clears counters; the loop state is kept.
func (s *Scheduler) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{Started: s.stats.Started}
}
