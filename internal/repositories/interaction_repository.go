package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const interactionsTable = "interactions"

var interactionStruct = database.NewStruct(new(models.Interaction))

// InteractionRepository handles database operations for interactions
type InteractionRepository struct {
	*Repository
}

func NewInteractionRepository(db database.DB, logger ectologger.Logger) *InteractionRepository {
	return &InteractionRepository{Repository: NewRepository(db, logger)}
}

// GetInteraction returns nil when the interaction does not exist.
func (r *InteractionRepository) GetInteraction(ctx context.Context, id uuid.UUID) (*models.Interaction, error) {
	ctx, span := tracing.StartSpan(ctx, "InteractionRepository.GetInteraction")
	defer span.End()

	sb := interactionStruct.SelectFrom(interactionsTable)
	sb.Where(sb.Equal("id", id))

	return r.getOne(ctx, sb, map[string]any{"interaction_id": id})
}

func (r *InteractionRepository) GetInteractionByIdentity(ctx context.Context, key models.IdentityKey) (*models.Interaction, error) {
	ctx, span := tracing.StartSpan(ctx, "InteractionRepository.GetInteractionByIdentity")
	defer span.End()

	sb := interactionStruct.SelectFrom(interactionsTable)
	sb.Where(
		sb.Equal("seller_id", key.SellerID),
		sb.Equal("marketplace", key.Marketplace),
		sb.Equal("channel", key.Channel),
		sb.Equal("external_id", key.ExternalID),
	)

	return r.getOne(ctx, sb, map[string]any{
		"seller_id":   key.SellerID,
		"marketplace": key.Marketplace,
		"channel":     key.Channel,
		"external_id": key.ExternalID,
	})
}

func (r *InteractionRepository) getOne(ctx context.Context, sb *database.SelectBuilder, fields map[string]any) (*models.Interaction, error) {
	query, args := sb.Build()
	var i models.Interaction
	err := r.q(ctx).GetContext(ctx, &i, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.internal(ctx, err, fields, "failed to get interaction")
	}
	return &i, nil
}

func (r *InteractionRepository) CreateInteraction(ctx context.Context, i *models.Interaction) error {
	ctx, span := tracing.StartSpan(ctx, "InteractionRepository.CreateInteraction")
	defer span.End()

	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}

	query, args := interactionStruct.InsertInto(interactionsTable, i).Build()
	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, map[string]any{
			"seller_id":   i.SellerID,
			"external_id": i.ExternalID,
		}, "failed to create interaction")
	}

	r.logger.WithContext(ctx).Debugf("Created %s %s (%s/%s/%s)", interactionsTable, i.ID, i.Marketplace, i.Channel, i.ExternalID)
	return nil
}

// UpdateInteraction writes the mutable columns. Identity and created_at never change.
func (r *InteractionRepository) UpdateInteraction(ctx context.Context, i *models.Interaction) error {
	ctx, span := tracing.StartSpan(ctx, "InteractionRepository.UpdateInteraction")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(interactionsTable).Set(
		ub.Assign("customer_id", i.CustomerID),
		ub.Assign("order_id", i.OrderID),
		ub.Assign("product_id", i.ProductID),
		ub.Assign("subject", i.Subject),
		ub.Assign("text", i.Text),
		ub.Assign("rating", i.Rating),
		ub.Assign("sentiment_score", i.SentimentScore),
		ub.Assign("status", i.Status),
		ub.Assign("priority", i.Priority),
		ub.Assign("needs_response", i.NeedsResponse),
		ub.Assign("unread_count", i.UnreadCount),
		ub.Assign("sla_rule_id", i.SLARuleID),
		ub.Assign("sla_deadline_at", i.SLADeadlineAt),
		ub.Assign("escalated_at", i.EscalatedAt),
		ub.Assign("source", i.Source),
		ub.Assign("occurred_at", i.OccurredAt),
		ub.Assign("updated_at", i.UpdatedAt),
	).Where(ub.Equal("id", i.ID))

	query, args := ub.Build()
	result, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return r.internal(ctx, err, map[string]any{"interaction_id": i.ID}, "failed to update interaction")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return NotFound("interaction %s does not exist", i.ID)
	}
	return nil
}

// ListInteractionsInWindow returns the seller's interactions whose reference time
// falls in [from, to], most recent first.
func (r *InteractionRepository) ListInteractionsInWindow(ctx context.Context, sellerID int64, from, to time.Time, limit int) ([]models.Interaction, error) {
	ctx, span := tracing.StartSpan(ctx, "InteractionRepository.ListInteractionsInWindow")
	defer span.End()

	sb := interactionStruct.SelectFrom(interactionsTable)
	sb.Where(sb.Equal("seller_id", sellerID), sb.Between("COALESCE(occurred_at, created_at)", from, to))
	sb.OrderBy("COALESCE(occurred_at, created_at) DESC", "id")
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.list(ctx, sb, map[string]any{"seller_id": sellerID})
}

// ListOverdue returns unescalated interactions that need a response past their deadline.
func (r *InteractionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Interaction, error) {
	ctx, span := tracing.StartSpan(ctx, "InteractionRepository.ListOverdue")
	defer span.End()

	sb := interactionStruct.SelectFrom(interactionsTable)
	sb.Where(
		sb.Equal("needs_response", true),
		sb.IsNull("escalated_at"),
		sb.LessThan("sla_deadline_at", now),
	)
	sb.OrderBy("sla_deadline_at")
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.list(ctx, sb, nil)
}

// ListSellerInteractions pages through a seller's interactions ordered by creation.
func (r *InteractionRepository) ListSellerInteractions(ctx context.Context, sellerID int64, offset, limit int) ([]models.Interaction, error) {
	ctx, span := tracing.StartSpan(ctx, "InteractionRepository.ListSellerInteractions")
	defer span.End()

	sb := interactionStruct.SelectFrom(interactionsTable)
	sb.Where(sb.Equal("seller_id", sellerID))
	sb.OrderBy("created_at", "id")
	if limit > 0 {
		sb.Limit(limit)
	}
	if offset > 0 {
		sb.Offset(offset)
	}

	return r.list(ctx, sb, map[string]any{"seller_id": sellerID})
}

func (r *InteractionRepository) list(ctx context.Context, sb *database.SelectBuilder, fields map[string]any) ([]models.Interaction, error) {
	query, args := sb.Build()
	var interactions []models.Interaction
	if err := r.q(ctx).SelectContext(ctx, &interactions, query, args...); err != nil {
		return nil, r.internal(ctx, err, fields, "failed to list interactions")
	}
	return interactions, nil
}
