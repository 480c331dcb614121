package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// NoShowMarker is the part of the appointment service the sweeper drives.
type NoShowMarker interface {
	MarkNoShows(ctx context.Context, grace time.Duration) (int, error)
}

// NoShowSweeper periodically flags scheduled appointments that ended more than
// Grace ago as no-shows.
type NoShowSweeper struct {
	svc     NoShowMarker
	grace   time.Duration
	timeout time.Duration
	log     *slog.Logger
	cron    *cron.Cron
}

type SweeperConfig struct {
	// Schedule is a standard five-field cron expression or a descriptor such
	// as "@every 15m". Empty disables the sweeper.
	Schedule string
	Grace    time.Duration
	// Timeout bounds a single run; zero means one minute.
	Timeout  time.Duration
	Location *time.Location
}

// NewNoShowSweeper returns nil when cfg.Schedule is empty.
func NewNoShowSweeper(svc NoShowMarker, cfg SweeperConfig, log *slog.Logger) (*NoShowSweeper, error) {
	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		return nil, nil
	}
	if svc == nil {
		return nil, errors.New("no-show sweeper needs a service")
	}
	if cfg.Grace < 0 {
		return nil, errors.New("no-show grace must not be negative")
	}
	if log == nil {
		log = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	s := &NoShowSweeper{
		svc:     svc,
		grace:   cfg.Grace,
		timeout: timeout,
		log:     log.With(slog.String("component", "jobs.noshow")),
	}
	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *NoShowSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("no-show sweep failed", slog.Any("err", err))
	}
}

// RunOnce performs a single sweep and returns how many appointments changed.
func (s *NoShowSweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.svc.MarkNoShows(ctx, s.grace)
	if err != nil {
		return 0, err
	}
	s.log.Info("no-show sweep finished",
		slog.Int("marked", n),
		slog.Duration("grace", s.grace),
		slog.Duration("took", time.Since(start)),
	)
	return n, nil
}

func (s *NoShowSweeper) Start() {
	s.log.Info("no-show sweeper started")
	s.cron.Start()
}

// Stop prevents further runs and waits for a running sweep, up to ctx.
func (s *NoShowSweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("no-show sweeper stopped")
	case <-ctx.Done():
		s.log.Warn("no-show sweeper stop timed out")
	}
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{slog.Any("err", err)}, keysAndValues...)...)
}
