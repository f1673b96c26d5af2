package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestProducer() (*Producer, *fakeWriter, *fakeWriter) {
	interactions, alerts := &fakeWriter{}, &fakeWriter{}
	return &Producer{
		interactions:      interactions,
		alerts:            alerts,
		interactionsTopic: "thistle.interactions",
		alertsTopic:       "thistle.alerts",
		logger:            ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
	}, interactions, alerts
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, ParseBrokers(""))
}

func TestProducer_PublishInteractionChange(t *testing.T) {
	p, interactions, _ := newTestProducer()
	i := &models.Interaction{ID: uuid.New(), SellerID: 7, Marketplace: "wb", Channel: models.ChannelChat, ExternalID: "c1"}

	require.NoError(t, p.PublishInteractionChange(context.Background(), models.InteractionChange{Type: models.ChangeCreated, Interaction: i}))
	require.Len(t, interactions.messages, 1)

	msg := interactions.messages[0]
	assert.Equal(t, i.ID.String(), string(msg.Key))
	assert.Equal(t, "7", header(msg, "seller_id"))
	assert.Equal(t, "interaction.created", header(msg, "type"))

	var body InteractionMessage
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, models.ChangeCreated, body.Type)
	assert.Equal(t, "c1", body.Interaction.ExternalID)

	assert.Error(t, p.PublishInteractionChange(context.Background(), models.InteractionChange{Type: models.ChangeCreated}))
}

func TestProducer_PublishAlerts(t *testing.T) {
	p, _, alerts := newTestProducer()
	ctx := context.Background()

	require.NoError(t, p.PublishAlerts(ctx, nil))
	assert.Empty(t, alerts.messages)

	findings := []models.Alert{
		{Kind: models.AlertStale, Severity: models.SeverityCritical, SellerID: 7, Marketplace: "wb", Channel: models.ChannelChat, ObservedAt: time.Now()},
		{Kind: models.AlertRateLimited, Severity: models.SeverityWarning, SellerID: 7, Marketplace: "wb", Channel: models.ChannelReview, ObservedAt: time.Now()},
	}
	require.NoError(t, p.PublishAlerts(ctx, findings))
	require.Len(t, alerts.messages, 2)
	assert.Equal(t, "7:wb:chat:stale", string(alerts.messages[0].Key))

	alerts.err = errors.New("broker down")
	assert.Error(t, p.PublishAlerts(ctx, findings))
}
