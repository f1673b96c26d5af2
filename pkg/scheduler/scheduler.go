package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/redis"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultSweepInterval  = time.Minute
	DefaultHealthInterval = 5 * time.Minute
	DefaultLockTTL        = 60 * time.Second
	DefaultBatchSize      = 100

	// LockKeyPrefix is the prefix for scheduler locks
	LockKeyPrefix = "thistle:schedule:"
)

// Store lists the connections that are due for a sync run.
type Store interface {
	ListDueConnections(ctx context.Context, now time.Time, limit int) ([]models.SyncConnection, error)
}

// Dispatcher hands a triple to whatever executes runs: the job stream or an in-process pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, key models.SyncKey) error
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Reporter interface {
	Report(ctx context.Context, now time.Time) ([]models.Alert, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often due connections are dispatched
	PollInterval time.Duration

	// SweepInterval is how often overdue interactions are escalated
	SweepInterval time.Duration

	// HealthInterval is how often sync health alerts are evaluated
	HealthInterval time.Duration

	// LockTTL bounds how long one instance owns dispatching a triple
	LockTTL time.Duration

	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   DefaultPollInterval,
		SweepInterval:  DefaultSweepInterval,
		HealthInterval: DefaultHealthInterval,
		LockTTL:        DefaultLockTTL,
		BatchSize:      DefaultBatchSize,
	}
}

// Scheduler polls for due connections and runs the periodic escalation and health jobs.
type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	locker     *redis.Locker
	escalator  Sweeper
	monitor    Reporter
	config     Config
	logger     ectologger.Logger
	now        func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewScheduler creates a scheduler. locker may be nil when a single instance runs;
// escalator and monitor may be nil to disable their loops.
func NewScheduler(
	store Store,
	dispatcher Dispatcher,
	locker *redis.Locker,
	escalator Sweeper,
	monitor Reporter,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.HealthInterval <= 0 {
		config.HealthInterval = defaults.HealthInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		locker:     locker,
		escalator:  escalator,
		monitor:    monitor,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})

	ctx = context.WithoutCancel(ctx)
	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s sweep_interval=%s health_interval=%s",
		s.config.PollInterval, s.config.SweepInterval, s.config.HealthInterval)

	s.loop(ctx, s.config.PollInterval, func(ctx context.Context) { _, _ = s.RunCycle(ctx) })
	if s.escalator != nil {
		s.loop(ctx, s.config.SweepInterval, s.sweep)
	}
	if s.monitor != nil {
		s.loop(ctx, s.config.HealthInterval, s.report)
	}
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// loop runs fn immediately and then every interval until Stop.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	stopCh := s.stopCh
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn(ctx)
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// RunCycle dispatches every due connection once and returns how many were dispatched.
func (s *Scheduler) RunCycle(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunCycle")
	defer span.End()

	start := s.now()
	connections, err := s.store.ListDueConnections(ctx, start, s.config.BatchSize)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list due connections")
		return 0, err
	}
	if len(connections) == 0 {
		s.logger.WithContext(ctx).Debug("No connections due")
		return 0, nil
	}

	scheduled, skipped := 0, 0
	for _, conn := range connections {
		if err := s.schedule(ctx, conn.Key()); err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				skipped++
				continue
			}
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to dispatch sync for %s", conn.Key())
			continue
		}
		scheduled++
	}

	s.logger.WithContext(ctx).Infof("Scheduling cycle completed: scheduled=%d skipped=%d duration=%s",
		scheduled, skipped, time.Since(start))
	return scheduled, nil
}

func (s *Scheduler) schedule(ctx context.Context, key models.SyncKey) error {
	ctx = appctx.SetSellerID(ctx, key.SellerID)

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, key.String(), s.config.LockTTL)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	s.logger.WithContext(ctx).Debugf("Dispatching sync for %s", key)
	return s.dispatcher.Dispatch(ctx, key)
}

func (s *Scheduler) sweep(ctx context.Context) {
	escalated, err := s.escalator.Sweep(ctx, s.now())
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Escalation sweep failed")
		return
	}
	if escalated > 0 {
		s.logger.WithContext(ctx).Infof("Escalated %d overdue interactions", escalated)
	}
}

func (s *Scheduler) report(ctx context.Context) {
	if _, err := s.monitor.Report(ctx, s.now()); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Sync health report failed")
	}
}
