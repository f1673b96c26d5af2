package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/ingest"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/redis"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// StreamDispatcher publishes sync jobs to the Redis stream consumed by Processor.
type StreamDispatcher struct {
	streams *redis.Streams
	stream  string
	now     func() time.Time
}

func NewStreamDispatcher(streams *redis.Streams, stream string) *StreamDispatcher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamDispatcher{streams: streams, stream: stream, now: time.Now}
}

func (d *StreamDispatcher) Dispatch(ctx context.Context, key models.SyncKey) error {
	job := redis.NewSyncJob(key, d.now())
	job.TraceParent = tracing.GetTraceParent(ctx)
	_, err := d.streams.Publish(ctx, d.stream, job)
	return err
}

// LocalDispatcher runs sync jobs in-process on a bounded set of goroutines.
// Used when no Redis is configured.
type LocalDispatcher struct {
	runner Triggerer
	logger ectologger.Logger
	slots  chan struct{}
	wg     sync.WaitGroup
}

func NewLocalDispatcher(runner Triggerer, workers int, logger ectologger.Logger) *LocalDispatcher {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	return &LocalDispatcher{
		runner: runner,
		logger: logger,
		slots:  make(chan struct{}, workers),
	}
}

// Dispatch waits for a free worker slot and starts the run in the background.
func (d *LocalDispatcher) Dispatch(ctx context.Context, key models.SyncKey) error {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()

		status := "success"
		run, err := d.runner.Trigger(runCtx, key)
		switch {
		case errors.Is(err, ingest.ErrRunInProgress):
			status = "skipped"
		case err != nil:
			status = "failed"
			d.logger.WithContext(runCtx).WithError(err).Errorf("Sync run for %s failed", key)
		case run != nil && !run.Succeeded():
			status = "failed"
		}
		metrics.RecordQueueJob(status)
	}()
	return nil
}

// Wait blocks until every dispatched run has finished.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
