package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

type Config struct {
	Brokers           []string
	InteractionsTopic string
	AlertsTopic       string
}

// ParseBrokers splits a comma-separated broker list
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes interaction changes and health alerts
type Producer struct {
	interactions      messageWriter
	alerts            messageWriter
	interactionsTopic string
	alertsTopic       string
	logger            ectologger.Logger
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	return &Producer{
		interactions:      newWriter(cfg.Brokers, cfg.InteractionsTopic),
		alerts:            newWriter(cfg.Brokers, cfg.AlertsTopic),
		interactionsTopic: cfg.InteractionsTopic,
		alertsTopic:       cfg.AlertsTopic,
		logger:            logger,
	}
}

func (p *Producer) Close() error {
	var firstErr error
	if err := p.interactions.Close(); err != nil {
		firstErr = err
	}
	if err := p.alerts.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// InteractionMessage is the change feed payload
type InteractionMessage struct {
	Type        models.ChangeType   `json:"type"`
	SellerID    int64               `json:"seller_id"`
	Interaction *models.Interaction `json:"interaction"`
	Timestamp   time.Time           `json:"timestamp"`
	TraceID     string              `json:"trace_id,omitempty"`
}

// AlertMessage carries one health finding
type AlertMessage struct {
	Alert     models.Alert `json:"alert"`
	Timestamp time.Time    `json:"timestamp"`
}

// PublishInteractionChange is keyed by interaction id so changes to one
// interaction stay ordered on a partition.
func (p *Producer) PublishInteractionChange(ctx context.Context, change models.InteractionChange) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishInteractionChange")
	defer span.End()

	i := change.Interaction
	if i == nil {
		return fmt.Errorf("interaction change without interaction")
	}
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.interactionsTopic),
		attribute.String("change_type", string(change.Type)),
	)

	data, err := json.Marshal(InteractionMessage{
		Type:        change.Type,
		SellerID:    i.SellerID,
		Interaction: i,
		Timestamp:   time.Now().UTC(),
		TraceID:     tracing.GetTraceID(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal interaction change: %w", err)
	}

	msg := kafka.Message{
		Key:     []byte(i.ID.String()),
		Value:   data,
		Headers: headers(ctx, i.SellerID, string(change.Type)),
	}
	if err := p.interactions.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordKafkaPublish(p.interactionsTopic, "error")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish interaction change to Kafka topic %s", p.interactionsTopic)
		return err
	}
	metrics.RecordKafkaPublish(p.interactionsTopic, "success")
	return nil
}

func (p *Producer) PublishAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishAlerts")
	defer span.End()

	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, alert := range alerts {
		data, err := json.Marshal(AlertMessage{Alert: alert, Timestamp: now})
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(alert.Key().String() + ":" + string(alert.Kind)),
			Value:   data,
			Headers: headers(ctx, alert.SellerID, string(alert.Kind)),
		})
	}

	if err := p.alerts.WriteMessages(ctx, msgs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordKafkaPublish(p.alertsTopic, "error")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish %d alerts to Kafka topic %s", len(msgs), p.alertsTopic)
		return err
	}
	metrics.RecordKafkaPublish(p.alertsTopic, "success")
	return nil
}

func headers(ctx context.Context, sellerID int64, eventType string) []kafka.Header {
	h := []kafka.Header{
		{Key: "seller_id", Value: []byte(strconv.FormatInt(sellerID, 10))},
		{Key: "type", Value: []byte(eventType)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		h = append(h, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	return h
}
