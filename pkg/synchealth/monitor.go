package synchealth

import (
	"context"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

type Store interface {
	ListRunsSince(ctx context.Context, since time.Time) ([]models.SyncRun, error)
	// ListRunAnchors returns, per triple, the first run and the latest
	// successful run among the runs started before cutoff.
	ListRunAnchors(ctx context.Context, cutoff time.Time) ([]models.SyncRun, error)
	ListConnections(ctx context.Context) ([]models.SyncConnection, error)
}

type AlertPublisher interface {
	PublishAlerts(ctx context.Context, alerts []models.Alert) error
}

// Monitor is a read model over recent sync runs. It never blocks ingestion.
type Monitor struct {
	store     Store
	publisher AlertPublisher
	config    Config
	logger    ectologger.Logger
}

func NewMonitor(store Store, publisher AlertPublisher, config Config, logger ectologger.Logger) *Monitor {
	return &Monitor{
		store:     store,
		publisher: publisher,
		config:    config.withDefaults(),
		logger:    logger,
	}
}

// Check evaluates current alerts. sellerID 0 returns alerts for every seller.
func (m *Monitor) Check(ctx context.Context, sellerID int64, now time.Time) ([]models.Alert, error) {
	ctx, span := tracing.StartSpan(ctx, "Monitor.Check")
	defer span.End()

	since := now.Add(-m.config.Lookback())
	recent, err := m.store.ListRunsSince(ctx, since)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Error("Failed to load sync runs")
		return nil, err
	}
	// anchors carry the last success and first run from before the window
	runs, err := m.store.ListRunAnchors(ctx, since)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Error("Failed to load sync run anchors")
		return nil, err
	}
	runs = append(runs, recent...)
	connections, err := m.store.ListConnections(ctx)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Error("Failed to load sync connections")
		return nil, err
	}

	if sellerID != 0 {
		runs = ectolinq.Filter(runs, func(r models.SyncRun) bool { return r.SellerID == sellerID })
		connections = ectolinq.Filter(connections, func(c models.SyncConnection) bool { return c.SellerID == sellerID })
	}

	return Evaluate(runs, connections, now, m.config), nil
}

// Report runs a full check, refreshes the alert gauge and forwards alerts to the publisher.
func (m *Monitor) Report(ctx context.Context, now time.Time) ([]models.Alert, error) {
	alerts, err := m.Check(ctx, 0, now)
	if err != nil {
		return nil, err
	}

	metrics.SetActiveAlerts(alerts)
	for _, a := range alerts {
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"kind":        a.Kind,
			"severity":    a.Severity,
			"seller_id":   a.SellerID,
			"marketplace": a.Marketplace,
			"channel":     a.Channel,
		}).Warn(a.Message)
	}

	if m.publisher != nil && len(alerts) > 0 {
		if err := m.publisher.PublishAlerts(ctx, alerts); err != nil {
			m.logger.WithContext(ctx).WithError(err).Warn("Failed to publish sync alerts")
		}
	}
	return alerts, nil
}
