package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// Runner is the ingestion entry point used by the scheduler. It adds the
// in-flight guard, the hard budget, retries and run recording around Ingestor.Run.
type Runner struct {
	ingestor *Ingestor
	store    Store
	guard    Guard
	blocker  Blocker
	config   Config
	logger   ectologger.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRunner(ingestor *Ingestor, store Store, guard Guard, blocker Blocker, config Config, logger ectologger.Logger) *Runner {
	return &Runner{
		ingestor: ingestor,
		store:    store,
		guard:    guard,
		blocker:  blocker,
		config:   config.withDefaults(),
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Trigger runs ingestion for key once. A triple that is already running is
// skipped with ErrRunInProgress. Run-level failures are recorded on the
// returned run and never returned as errors.
func (r *Runner) Trigger(ctx context.Context, key models.SyncKey) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "Runner.Trigger")
	defer span.End()

	release, err := r.guard.Acquire(ctx, key.String(), r.config.lockTTL())
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			metrics.RecordSkippedRun(key)
			r.logger.WithContext(ctx).WithField("sync_key", key.String()).Info("Sync run already in progress, skipping trigger")
		}
		return nil, err
	}
	defer release()

	run := models.NewSyncRun(key, r.now())
	ctx = appctx.SetSellerID(ctx, key.SellerID)
	ctx = appctx.SetRunID(ctx, run.ID.String())
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"sync_key": key.String(),
		"run_id":   run.ID,
	})

	if blocked, wait, err := r.isBlocked(ctx, key); blocked {
		run.RateLimited = true
		log.Infof("Source still rate limited for %s, not fetching", wait)
		r.finish(ctx, run, nil)
		return run, nil
	} else if err != nil {
		log.WithError(err).Warn("Rate limit check failed, running anyway")
	}

	var runErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := r.config.backoff(attempt)
			log.WithError(runErr).Warnf("Retrying sync run in %s (attempt %d of %d)", wait, attempt+1, r.config.MaxRetries+1)
			if err := r.sleep(ctx, wait); err != nil {
				break
			}
		}

		run.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.config.HardBudget)
		runErr = r.ingestor.Run(attemptCtx, key, run)
		cancel()

		if runErr == nil || !Retriable(Classify(runErr)) || ctx.Err() != nil {
			break
		}
	}

	r.finish(ctx, run, runErr)
	return run, nil
}

func (r *Runner) isBlocked(ctx context.Context, key models.SyncKey) (bool, time.Duration, error) {
	if r.blocker == nil {
		return false, 0, nil
	}
	return r.blocker.IsBlocked(ctx, key.String())
}

func (r *Runner) finish(ctx context.Context, run *models.SyncRun, runErr error) {
	run.FinishedAt = r.now()
	if runErr != nil {
		kind := Classify(runErr)
		run.ErrorKind = &kind
		run.ErrorDetail = models.Ptr(runErr.Error())
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"sync_key":     run.Key().String(),
		"run_id":       run.ID,
		"fetched":      run.Fetched,
		"created":      run.Created,
		"updated":      run.Updated,
		"skipped":      run.Skipped,
		"errors":       run.Errors,
		"rate_limited": run.RateLimited,
		"attempts":     run.Attempts,
		"duration":     run.Duration().String(),
	})
	if runErr != nil {
		log.WithError(runErr).Error("Sync run failed")
	} else {
		log.Info("Sync run completed")
	}

	// The run record outlives a cancelled run context.
	if err := r.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to record sync run")
	}
	metrics.RecordSyncRun(run)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
