package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/thistle/pkg/models"
)

// SyncJob asks a worker to run ingestion for one triple
type SyncJob struct {
	ID          string         `json:"id"`
	SellerID    int64          `json:"seller_id"`
	Marketplace string         `json:"marketplace"`
	Channel     models.Channel `json:"channel"`
	TraceParent string         `json:"traceparent,omitempty"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
}

func NewSyncJob(key models.SyncKey, now time.Time) *SyncJob {
	return &SyncJob{
		ID:          uuid.New().String(),
		SellerID:    key.SellerID,
		Marketplace: key.Marketplace,
		Channel:     key.Channel,
		EnqueuedAt:  now,
	}
}

func (j *SyncJob) Key() models.SyncKey {
	return models.SyncKey{SellerID: j.SellerID, Marketplace: j.Marketplace, Channel: j.Channel}
}

// StreamMessage is a decoded job with its stream id
type StreamMessage struct {
	ID     string
	Stream string
	Job    SyncJob
}

// Streams provides Redis Streams operations for the sync job queue
type Streams struct {
	client *Client
}

func NewStreams(client *Client) *Streams {
	return &Streams{client: client}
}

func (s *Streams) Publish(ctx context.Context, stream string, job *SyncJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	id, err := s.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": string(payload)},
	}).Result()
	if err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to stream %s", stream)
		return "", err
	}

	s.client.logger.WithContext(ctx).Debugf("Published job %s to stream %s (message ID: %s)", job.ID, stream, id)
	return id, nil
}

// CreateConsumerGroup is idempotent
func (s *Streams) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := s.client.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Consume reads new messages for consumer. Undecodable messages are acked and dropped.
func (s *Streams) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	results, err := s.client.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, result := range results {
		for _, msg := range result.Messages {
			data, _ := msg.Values["data"].(string)

			var job SyncJob
			if err := json.Unmarshal([]byte(data), &job); err != nil {
				s.client.logger.WithContext(ctx).WithError(err).Warnf("Dropping undecodable message %s", msg.ID)
				_ = s.Ack(ctx, result.Stream, group, msg.ID)
				continue
			}

			messages = append(messages, StreamMessage{ID: msg.ID, Stream: result.Stream, Job: job})
		}
	}

	return messages, nil
}

func (s *Streams) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.client.rdb.XAck(ctx, stream, group, ids...).Err()
}

func (s *Streams) Len(ctx context.Context, stream string) (int64, error) {
	return s.client.rdb.XLen(ctx, stream).Result()
}
