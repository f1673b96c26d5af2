package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/ingest"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/redis"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

var (
	// ErrProcessorAlreadyRunning is returned when Start is called twice
	ErrProcessorAlreadyRunning = errors.New("processor already running")
)

const (
	DefaultStream       = "thistle:sync-jobs"
	DefaultGroup        = "thistle-workers"
	DefaultBatchSize    = 10
	DefaultBlockTimeout = 5 * time.Second
	DefaultWorkerCount  = 4
)

// Triggerer runs one sync for a triple. ingest.Runner implements it.
type Triggerer interface {
	Trigger(ctx context.Context, key models.SyncKey) (*models.SyncRun, error)
}

// ProcessorConfig holds configuration for the job processor
type ProcessorConfig struct {
	Stream       string
	Group        string
	ConsumerName string
	BatchSize    int
	BlockTimeout time.Duration
	WorkerCount  int
}

func DefaultProcessorConfig() ProcessorConfig {
	hostname, _ := os.Hostname()
	return ProcessorConfig{
		Stream:       DefaultStream,
		Group:        DefaultGroup,
		ConsumerName: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
		WorkerCount:  DefaultWorkerCount,
	}
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	defaults := DefaultProcessorConfig()
	if c.Stream == "" {
		c.Stream = defaults.Stream
	}
	if c.Group == "" {
		c.Group = defaults.Group
	}
	if c.ConsumerName == "" {
		c.ConsumerName = defaults.ConsumerName
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = defaults.BlockTimeout
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = defaults.WorkerCount
	}
	return c
}

// Processor consumes sync jobs from a Redis stream and hands them to a pool of workers.
type Processor struct {
	streams *redis.Streams
	runner  Triggerer
	config  ProcessorConfig
	logger  ectologger.Logger

	jobsCh  chan redis.StreamMessage
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewProcessor(streams *redis.Streams, runner Triggerer, config ProcessorConfig, logger ectologger.Logger) *Processor {
	return &Processor{
		streams: streams,
		runner:  runner,
		config:  config.withDefaults(),
		logger:  logger,
	}
}

// Start creates the consumer group and starts the consume loop and workers.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrProcessorAlreadyRunning
	}

	if err := p.streams.CreateConsumerGroup(ctx, p.config.Stream, p.config.Group); err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to create consumer group %s", p.config.Group)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.jobsCh = make(chan redis.StreamMessage, p.config.WorkerCount)
	p.running = true

	p.wg.Add(1)
	go p.consumeLoop(loopCtx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(loopCtx, i)
	}

	p.logger.WithContext(ctx).Infof("Job processor started: stream=%s group=%s consumer=%s workers=%d",
		p.config.Stream, p.config.Group, p.config.ConsumerName, p.config.WorkerCount)
	return nil
}

// Stop stops consuming and waits for in-flight jobs, bounded by ctx.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.WithContext(ctx).Info("Job processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Job processor shutdown timed out")
		return ctx.Err()
	}
}

func (p *Processor) consumeLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.jobsCh)

	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := p.streams.Consume(ctx, p.config.Stream, p.config.Group, p.config.ConsumerName,
			int64(p.config.BatchSize), p.config.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithContext(ctx).WithError(err).Error("Failed to consume sync jobs")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range messages {
			select {
			case p.jobsCh <- msg:
			case <-ctx.Done():
				// unacked messages stay pending for this consumer
				return
			}
		}
	}
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.WithContext(ctx).Debugf("Worker %d started", id)

	for msg := range p.jobsCh {
		p.processJob(ctx, msg)
	}

	p.logger.WithContext(ctx).Debugf("Worker %d stopped", id)
}

// processJob runs the job and acks it. Runs that started are recorded by the
// runner itself, so a job is never redelivered after it reached Trigger.
func (p *Processor) processJob(ctx context.Context, msg redis.StreamMessage) {
	ctx = context.WithoutCancel(ctx)
	if msg.Job.TraceParent != "" {
		ctx = tracing.WithTraceParent(ctx, msg.Job.TraceParent)
	}
	ctx, span := tracing.StartSpan(ctx, "Processor.processJob")
	defer span.End()

	key := msg.Job.Key()
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":     msg.Job.ID,
		"message_id": msg.ID,
		"sync_key":   key.String(),
	})

	status := "success"
	run, err := p.runner.Trigger(ctx, key)
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		status = "skipped"
	case err != nil:
		status = "failed"
		log.WithError(err).Error("Sync job failed")
	case run != nil && !run.Succeeded():
		status = "failed"
	}
	metrics.RecordQueueJob(status)

	if err := p.streams.Ack(ctx, msg.Stream, p.config.Group, msg.ID); err != nil {
		log.WithError(err).Warn("Failed to ack sync job")
		return
	}
	log.Debugf("Sync job finished with status %s", status)
}
