package profiles

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProfile(ctx context.Context, key models.ProfileKey) (*models.CustomerProfile, error)
	SaveProfile(ctx context.Context, profile *models.CustomerProfile) error
}

type Aggregator struct {
	store  Store
	config Config
	logger ectologger.Logger
	now    func() time.Time
}

func NewAggregator(store Store, config Config, logger ectologger.Logger) *Aggregator {
	defaults := DefaultConfig()
	if config.SentimentWindow <= 0 {
		config.SentimentWindow = defaults.SentimentWindow
	}
	if config.TrendThreshold <= 0 {
		config.TrendThreshold = defaults.TrendThreshold
	}
	if config.ComplaintThreshold <= 0 {
		config.ComplaintThreshold = defaults.ComplaintThreshold
	}
	return &Aggregator{store: store, config: config, logger: logger, now: time.Now}
}

// Apply folds i into its customer's profile. The read-modify-write runs in one
// transaction, joining the caller's when there is one. Interactions without a
// customer id are skipped.
func (a *Aggregator) Apply(ctx context.Context, i *models.Interaction, outcome Outcome) (*models.CustomerProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "Aggregator.Apply")
	defer span.End()

	if i.CustomerID == nil || strings.TrimSpace(*i.CustomerID) == "" {
		a.logger.WithContext(ctx).WithField("interaction_id", i.ID).Debug("No customer correlation key, skipping profile")
		return nil, nil
	}

	var profile *models.CustomerProfile
	err := a.store.WithinTx(ctx, func(ctx context.Context) error {
		key := models.ProfileKey{SellerID: i.SellerID, Marketplace: i.Marketplace, CustomerID: *i.CustomerID}
		current, err := a.store.GetProfile(ctx, key)
		if err != nil {
			return err
		}

		now := a.now()
		if current == nil {
			current = NewProfile(i, now)
		}
		Fold(current, i, outcome, a.config, now)

		if err := a.store.SaveProfile(ctx, current); err != nil {
			return err
		}
		profile = current
		return nil
	})
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).WithField("interaction_id", i.ID).Error("Failed to apply interaction to customer profile")
		return nil, err
	}
	return profile, nil
}
