package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	_ "time/tzdata" // the wipe hour is defined in the restaurant's zone

	"taboon/internal/monitoring"
)

// Pruner is the part of the order store retention needs
type Pruner interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Config controls retention
type Config struct {
	Timezone     string        `yaml:"timezone"`
	WipeHour     int           `yaml:"wipe_hour"`
	WipeWindow   time.Duration `yaml:"wipe_window"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// DefaultConfig wipes at 05:00 Jerusalem time, checking every 30 seconds
func DefaultConfig() Config {
	return Config{
		Timezone:     "Asia/Jerusalem",
		WipeHour:     5,
		WipeWindow:   2 * time.Minute,
		TickInterval: 30 * time.Second,
	}
}

// Scheduler runs the opportunistic rolling prune and the daily wipe. A day
// is only marked done after the store succeeded, so failures are retried
// on the next trigger.
type Scheduler struct {
	orders   Pruner
	cfg      Config
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	metrics  *monitoring.Metrics
	monitor  *monitoring.Monitor
	mu       sync.Mutex
	prunedOn string
	wipedOn  string
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics counts deleted orders
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithMonitor records when retention last ran
func WithMonitor(m *monitoring.Monitor) Option {
	return func(s *Scheduler) { s.monitor = m }
}

// NewScheduler validates cfg and loads its timezone
func NewScheduler(orders Pruner, cfg Config, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	def := DefaultConfig()
	if cfg.Timezone == "" {
		cfg.Timezone = def.Timezone
	}
	if cfg.WipeWindow <= 0 {
		cfg.WipeWindow = def.WipeWindow
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.WipeHour < 0 || cfg.WipeHour > 23 {
		return nil, fmt.Errorf("wipe hour out of range: %d", cfg.WipeHour)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		orders: orders,
		cfg:    cfg,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Location is the timezone that defines the business day
func (s *Scheduler) Location() *time.Location { return s.loc }

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// MaybePrune deletes orders created before yesterday 00:00 local time. It
// does real work at most once per local calendar day.
func (s *Scheduler) MaybePrune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := s.now().In(s.loc)
	today := dayKey(local)
	if s.prunedOn == today {
		return 0, nil
	}

	cutoff := time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, s.loc)
	n, err := s.orders.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("rolling prune failed", "error", err)
		return 0, err
	}

	s.prunedOn = today
	s.metrics.RetentionDeleted("prune", n)
	if s.monitor != nil {
		s.monitor.RecordEvent("retention_prune")
	}
	if n > 0 {
		s.logger.Info("pruned old orders", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// Tick performs the daily wipe when local time is inside the wipe window
// and today has not been wiped yet. It reports whether a wipe happened.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := s.now().In(s.loc)
	today := dayKey(local)
	if s.wipedOn == today {
		return false
	}

	start := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.WipeHour, 0, 0, 0, s.loc)
	if local.Before(start) || !local.Before(start.Add(s.cfg.WipeWindow)) {
		return false
	}

	n, err := s.orders.DeleteAll(ctx)
	if err != nil {
		s.logger.Error("daily wipe failed", "error", err)
		return false
	}

	s.wipedOn = today
	s.metrics.RetentionDeleted("wipe", n)
	if s.monitor != nil {
		s.monitor.RecordEvent("retention_wipe")
	}
	s.logger.Info("daily wipe completed", "deleted", n, "day", today)
	return true
}

// Run ticks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("retention scheduler started",
		"timezone", s.loc.String(), "wipe_hour", s.cfg.WipeHour, "interval", s.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
