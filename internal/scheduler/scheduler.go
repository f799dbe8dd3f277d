// Package scheduler runs the two background sweeps: the daily analysis of
// every farmer with a device, and the periodic critical-moisture check.
// Each sweep kind runs at most once at a time; overlapping triggers are
// rejected with ErrSweepInProgress.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/observability"
	"github.com/tbourn/agrisense-backend/internal/repo"
	"github.com/tbourn/agrisense-backend/internal/services"
)

// Sweep kinds.
const (
	KindDaily    = "daily"
	KindMoisture = "moisture"
)

// lockTTL bounds how long a crashed instance can block the other replicas.
const lockTTL = 3 * time.Hour

// ErrSweepInProgress is returned when a sweep of the same kind is running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// ErrStopping is returned by the Trigger methods once Stop has begun.
var ErrStopping = errors.New("scheduler is stopping")

// DailyRunner analyzes one farmer and dispatches any alert.
type DailyRunner interface {
	RunDaily(ctx context.Context, f *domain.Farmer) (*services.DispatchOutcome, error)
}

// MoistureDispatcher alerts one farmer about critically dry soil.
type MoistureDispatcher interface {
	DispatchMoisture(ctx context.Context, row repo.CriticalMoistureRow) *services.DispatchOutcome
}

// RunResult summarizes one sweep.
type RunResult struct {
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Processed int       `json:"processed"`
	Alerts    int       `json:"alerts"`
	Failures  int       `json:"failures"`
	Error     string    `json:"error,omitempty"`
}

// KindStatus is the state of one sweep kind.
type KindStatus struct {
	Running bool       `json:"running"`
	LastRun *RunResult `json:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// Status reports both sweep kinds.
type Status struct {
	Enabled  bool       `json:"enabled"`
	Timezone string     `json:"timezone"`
	Daily    KindStatus `json:"daily"`
	Moisture KindStatus `json:"moisture"`
}

// Service owns the sweep timers and their state.
type Service struct {
	DB       *gorm.DB
	Daily    DailyRunner
	Moisture MoistureDispatcher
	Lock     Locker
	Cfg      config.SchedulerConfig
	Now      func() time.Time

	loc          *time.Location
	hour, minute int

	mu      sync.Mutex
	running map[string]bool
	last    map[string]*RunResult
	next    map[string]time.Time
	base    context.Context
	cancel  context.CancelFunc
	closing bool
	wg      sync.WaitGroup
}

// New validates cfg and returns an idle service. A nil lock means
// in-process locking.
func New(cfg config.SchedulerConfig, db *gorm.DB, daily DailyRunner, moisture MoistureDispatcher, lock Locker) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone %q: %w", cfg.Timezone, err)
	}
	h, m, err := config.ParseClock(cfg.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler daily time %q: %w", cfg.DailyAt, err)
	}
	if lock == nil {
		lock = NewLocalLocker()
	}
	return &Service{
		DB: db, Daily: daily, Moisture: moisture, Lock: lock, Cfg: cfg,
		loc: loc, hour: h, minute: m,
		running: map[string]bool{},
		last:    map[string]*RunResult{},
		next:    map[string]time.Time{},
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger(kind string) *zerolog.Logger {
	l := log.With().Str("component", "scheduler").Str("sweep", kind).Logger()
	return &l
}

// Start arms both timers. It returns immediately; Stop or cancelling ctx
// ends the loops and interrupts any sweep between farmers.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	s.base, s.cancel = context.WithCancel(ctx)
	base := s.base
	s.mu.Unlock()

	s.wg.Add(2)
	go s.loop(base, KindDaily, func(now time.Time) time.Time {
		return NextDaily(now, s.loc, s.hour, s.minute)
	})
	go s.loop(base, KindMoisture, func(now time.Time) time.Time {
		return NextAligned(now, s.loc, s.Cfg.MoistureEvery)
	})
	log.Info().Str("component", "scheduler").Str("timezone", s.loc.String()).
		Str("daily_at", s.Cfg.DailyAt).Dur("moisture_every", s.Cfg.MoistureEvery).Msg("scheduler started")
}

// Stop cancels the timers and waits for running sweeps to return.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	if cancel == nil || s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.mu.Unlock()
	cancel()
	s.wg.Wait()
	s.mu.Lock()
	s.cancel, s.base = nil, nil
	s.closing = false
	s.next = map[string]time.Time{}
	s.mu.Unlock()
	log.Info().Str("component", "scheduler").Msg("scheduler stopped")
}

func (s *Service) loop(ctx context.Context, kind string, next func(time.Time) time.Time) {
	defer s.wg.Done()
	lg := s.logger(kind)
	for {
		at := next(s.now())
		s.mu.Lock()
		s.next[kind] = at
		s.mu.Unlock()
		lg.Debug().Time("next_run", at).Msg("sweep scheduled")

		t := time.NewTimer(time.Until(at))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if _, err := s.run(ctx, kind); err != nil {
			if errors.Is(err, ErrSweepInProgress) {
				lg.Warn().Msg("previous sweep still running, skipping this tick")
			} else {
				lg.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// RunDaily runs the daily sweep synchronously.
func (s *Service) RunDaily(ctx context.Context) (*RunResult, error) { return s.run(ctx, KindDaily) }

// RunMoisture runs the critical-moisture sweep synchronously.
func (s *Service) RunMoisture(ctx context.Context) (*RunResult, error) {
	return s.run(ctx, KindMoisture)
}

// TriggerDaily starts a daily sweep in the background.
func (s *Service) TriggerDaily(ctx context.Context) error { return s.trigger(ctx, KindDaily) }

// TriggerMoisture starts a moisture sweep in the background.
func (s *Service) TriggerMoisture(ctx context.Context) error { return s.trigger(ctx, KindMoisture) }

// trigger acquires the lock before returning so a busy sweep is reported to
// the caller; the sweep itself outlives the request.
func (s *Service) trigger(ctx context.Context, kind string) error {
	release, err := s.acquire(ctx, kind)
	if err != nil {
		return err
	}
	// Add under mu so it is ordered before a concurrent Stop's Wait.
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		release()
		return ErrStopping
	}
	runCtx := context.Background()
	if s.base != nil {
		runCtx = s.base
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		defer release()
		if _, err := s.sweep(runCtx, kind); err != nil {
			s.logger(kind).Error().Err(err).Msg("triggered sweep failed")
		}
	}()
	return nil
}

func (s *Service) run(ctx context.Context, kind string) (*RunResult, error) {
	release, err := s.acquire(ctx, kind)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.sweep(ctx, kind)
}

func (s *Service) acquire(ctx context.Context, kind string) (func(), error) {
	s.mu.Lock()
	if s.running[kind] {
		s.mu.Unlock()
		return nil, ErrSweepInProgress
	}
	s.running[kind] = true
	s.mu.Unlock()

	unlock, ok, err := s.Lock.TryLock(ctx, kind, lockTTL)
	if err != nil || !ok {
		s.mu.Lock()
		s.running[kind] = false
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, ErrSweepInProgress
	}
	return func() {
		unlock()
		s.mu.Lock()
		s.running[kind] = false
		s.mu.Unlock()
	}, nil
}

func (s *Service) sweep(ctx context.Context, kind string) (*RunResult, error) {
	ctx, span := otel.Tracer("scheduler").Start(ctx, "Sweep", trace.WithAttributes(attribute.String("sweep.kind", kind)))
	defer span.End()

	started := s.now()
	res := &RunResult{Kind: kind, StartedAt: started.UTC()}
	var err error
	switch kind {
	case KindDaily:
		err = s.daily(ctx, res)
	case KindMoisture:
		err = s.moisture(ctx, res)
	default:
		err = fmt.Errorf("unknown sweep kind %q", kind)
	}
	res.Duration = s.now().Sub(started).Round(time.Millisecond).String()
	if err != nil {
		res.Error = err.Error()
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Int("sweep.processed", res.Processed), attribute.Int("sweep.alerts", res.Alerts))
	observability.ObserveSweep(kind, started, err)

	s.mu.Lock()
	s.last[kind] = res
	s.mu.Unlock()

	s.logger(kind).Info().Int("processed", res.Processed).Int("alerts", res.Alerts).
		Int("failures", res.Failures).Str("duration", res.Duration).Err(err).Msg("sweep finished")
	return res, err
}

func (s *Service) daily(ctx context.Context, res *RunResult) error {
	lg := s.logger(KindDaily)
	farmers, err := repo.ListFarmersWithDevices(ctx, s.DB)
	if err != nil {
		return fmt.Errorf("list farmers: %w", err)
	}
	lg.Info().Int("farmers", len(farmers)).Msg("daily sweep started")
	for i := range farmers {
		if i > 0 {
			if err := sleep(ctx, s.Cfg.FarmerDelay); err != nil {
				return err
			}
		}
		f := &farmers[i]
		out, err := s.Daily.RunDaily(ctx, f)
		res.Processed++
		if err != nil {
			res.Failures++
			lg.Warn().Err(err).Str("user_id", f.ID).Msg("farmer analysis failed")
			continue
		}
		if out != nil {
			res.Alerts++
		}
	}
	return nil
}

func (s *Service) moisture(ctx context.Context, res *RunResult) error {
	lg := s.logger(KindMoisture)
	rows, err := repo.ListCriticalMoisture(ctx, s.DB, s.Cfg.CriticalMoisture)
	if err != nil {
		return fmt.Errorf("list critical moisture: %w", err)
	}
	lg.Info().Int("devices", len(rows)).Float64("threshold", s.Cfg.CriticalMoisture).Msg("moisture sweep started")
	for i, row := range rows {
		if i > 0 {
			if err := sleep(ctx, s.Cfg.AlertDelay); err != nil {
				return err
			}
		}
		out := s.Moisture.DispatchMoisture(ctx, row)
		res.Processed++
		if out != nil && out.Alert != nil {
			res.Alerts++
		} else {
			res.Failures++
		}
	}
	return nil
}

// Status snapshots both sweep kinds.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Enabled: s.cancel != nil, Timezone: s.loc.String()}
	fill := func(kind string) KindStatus {
		ks := KindStatus{Running: s.running[kind]}
		if r := s.last[kind]; r != nil {
			c := *r
			ks.LastRun = &c
		}
		if t, ok := s.next[kind]; ok {
			ks.NextRun = &t
		}
		return ks
	}
	st.Daily = fill(KindDaily)
	st.Moisture = fill(KindMoisture)
	return st
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
