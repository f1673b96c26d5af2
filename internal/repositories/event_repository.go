package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const interactionEventsTable = "interaction_events"

var eventStruct = database.NewStruct(new(models.InteractionEvent))

// EventRepository appends and reads the interaction event log
type EventRepository struct {
	*Repository
}

func NewEventRepository(db database.DB, logger ectologger.Logger) *EventRepository {
	return &EventRepository{Repository: NewRepository(db, logger)}
}

// ListEvents returns the interaction's events in append order.
func (r *EventRepository) ListEvents(ctx context.Context, interactionID uuid.UUID) ([]models.InteractionEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "EventRepository.ListEvents")
	defer span.End()

	sb := eventStruct.SelectFrom(interactionEventsTable)
	sb.Where(sb.Equal("interaction_id", interactionID))
	sb.OrderBy("seq")

	query, args := sb.Build()
	var events []models.InteractionEvent
	if err := r.q(ctx).SelectContext(ctx, &events, query, args...); err != nil {
		return nil, r.internal(ctx, err, map[string]any{"interaction_id": interactionID}, "failed to list interaction events")
	}
	return events, nil
}

func (r *EventRepository) AppendEvents(ctx context.Context, events ...models.InteractionEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "EventRepository.AppendEvents")
	defer span.End()

	values := make([]any, 0, len(events))
	for idx := range events {
		if events[idx].ID == uuid.Nil {
			events[idx].ID = uuid.New()
		}
		values = append(values, &events[idx])
	}

	query, args := eventStruct.InsertInto(interactionEventsTable, values...).Build()
	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, map[string]any{"count": len(events)}, "failed to append interaction events")
	}

	r.logger.WithContext(ctx).Debugf("Appended %d %s", len(events), interactionEventsTable)
	return nil
}
