package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const customerProfilesTable = "customer_profiles"

var customerProfileStruct = database.NewStruct(new(models.CustomerProfile))

type CustomerProfileRepository struct {
	*Repository
}

func NewCustomerProfileRepository(db database.DB, logger ectologger.Logger) *CustomerProfileRepository {
	return &CustomerProfileRepository{Repository: NewRepository(db, logger)}
}

// GetProfile returns nil when the customer has no profile yet.
func (r *CustomerProfileRepository) GetProfile(ctx context.Context, key models.ProfileKey) (*models.CustomerProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomerProfileRepository.GetProfile")
	defer span.End()

	sb := customerProfileStruct.SelectFrom(customerProfilesTable)
	sb.Where(
		sb.Equal("seller_id", key.SellerID),
		sb.Equal("marketplace", key.Marketplace),
		sb.Equal("customer_id", key.CustomerID),
	)

	query, args := sb.Build()
	var profile models.CustomerProfile
	err := r.q(ctx).GetContext(ctx, &profile, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.internal(ctx, err, map[string]any{
			"seller_id":   key.SellerID,
			"customer_id": key.CustomerID,
		}, "failed to get customer profile")
	}
	return &profile, nil
}

// SaveProfile upserts on (seller, marketplace, customer) and reloads the stored id.
func (r *CustomerProfileRepository) SaveProfile(ctx context.Context, profile *models.CustomerProfile) error {
	ctx, span := tracing.StartSpan(ctx, "CustomerProfileRepository.SaveProfile")
	defer span.End()

	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}

	ib := customerProfileStruct.InsertInto(customerProfilesTable, profile)
	ib.OnConflictUpdate([]string{"seller_id", "marketplace", "customer_id"},
		"total_interactions", "review_count", "question_count", "chat_count",
		"rating_count", "average_rating", "first_interaction_at", "last_interaction_at",
		"recent_sentiments", "sentiment_trend", "is_repeat_complainer", "is_vip", "updated_at")
	ib.SQL("RETURNING id, created_at")

	query, args := ib.Build()
	if err := r.q(ctx).GetContext(ctx, profile, query, args...); err != nil {
		return r.internal(ctx, err, map[string]any{
			"seller_id":   profile.SellerID,
			"customer_id": profile.CustomerID,
		}, "failed to save customer profile")
	}
	return nil
}
