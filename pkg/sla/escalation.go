package sla

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/google/uuid"
)

// Store is the slice of the transactional store the sweep needs.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Interaction, error)
	GetInteraction(ctx context.Context, id uuid.UUID) (*models.Interaction, error)
	UpdateInteraction(ctx context.Context, i *models.Interaction) error
	AppendEvents(ctx context.Context, events ...models.InteractionEvent) error
}

type ChangePublisher interface {
	PublishInteractionChange(ctx context.Context, change models.InteractionChange) error
}

// Escalator raises overdue interactions to the escalation tier.
type Escalator struct {
	store     Store
	publisher ChangePublisher
	config    Config
	logger    ectologger.Logger
}

func NewEscalator(store Store, publisher ChangePublisher, config Config, logger ectologger.Logger) *Escalator {
	return &Escalator{
		store:     store,
		publisher: publisher,
		config:    NewEngine(config, logger).Config(),
		logger:    logger,
	}
}

// Sweep escalates every interaction that still needs a response past its deadline.
// An interaction is escalated once per unanswered stretch; handled interactions are never touched.
func (e *Escalator) Sweep(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Escalator.Sweep")
	defer span.End()

	overdue, err := e.store.ListOverdue(ctx, now, e.config.SweepBatchSize)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to list overdue interactions")
		return 0, err
	}

	escalated := 0
	for idx := range overdue {
		candidate := overdue[idx]
		var updated *models.Interaction

		err := e.store.WithinTx(ctx, func(ctx context.Context) error {
			current, err := e.store.GetInteraction(ctx, candidate.ID)
			if err != nil || current == nil {
				return err
			}
			if !IsOverdue(current, now) {
				return nil
			}

			previous := current.Priority
			current.Priority = e.config.EscalationPriority
			current.EscalatedAt = models.Ptr(now)
			current.UpdatedAt = now
			if err := e.store.UpdateInteraction(ctx, current); err != nil {
				return err
			}

			event := models.NewEvent(current, models.EventEscalated, map[string]any{
				"previous_priority": string(previous),
				"deadline_at":       current.SLADeadlineAt.UTC().Format(time.RFC3339),
				"overdue_seconds":   int64(now.Sub(*current.SLADeadlineAt).Seconds()),
			}, now)
			if err := e.store.AppendEvents(ctx, event); err != nil {
				return err
			}
			updated = current
			return nil
		})
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("interaction_id", candidate.ID).Error("Failed to escalate interaction")
			continue
		}
		if updated == nil {
			continue
		}

		escalated++
		metrics.RecordEscalation(updated.Channel)
		if e.publisher != nil {
			change := models.InteractionChange{Type: models.ChangeEscalated, Interaction: updated}
			if err := e.publisher.PublishInteractionChange(ctx, change); err != nil {
				e.logger.WithContext(ctx).WithError(err).Warn("Failed to publish escalation")
			}
		}
	}

	if escalated > 0 {
		e.logger.WithContext(ctx).Infof("Escalated %d overdue interactions", escalated)
	}
	return escalated, nil
}

// IsOverdue reports whether i still needs a response past its deadline and has not been escalated.
func IsOverdue(i *models.Interaction, now time.Time) bool {
	return i.NeedsResponse && i.EscalatedAt == nil && i.SLADeadlineAt != nil && i.SLADeadlineAt.Before(now)
}
