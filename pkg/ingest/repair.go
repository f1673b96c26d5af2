package ingest

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/sla"
	"github.com/Ramsey-B/thistle/pkg/status"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const repairPageSize = 200

// RepairResult counts what a bulk recompute touched.
type RepairResult struct {
	Scanned int `json:"scanned"`
	Changed int `json:"changed"`
}

// Repairer re-derives status and SLA for stored interactions with the same
// functions ingestion uses, so backfills cannot diverge from the live path.
type Repairer struct {
	store  Store
	sla    *sla.Engine
	logger ectologger.Logger
	now    func() time.Time
}

func NewRepairer(store Store, engine *sla.Engine, logger ectologger.Logger) *Repairer {
	return &Repairer{store: store, sla: engine, logger: logger, now: time.Now}
}

// RecomputeSeller walks every interaction of the seller. Each interaction is
// fixed in its own transaction.
func (r *Repairer) RecomputeSeller(ctx context.Context, sellerID int64) (*RepairResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Repairer.RecomputeSeller")
	defer span.End()

	rules, err := r.store.ListActiveSLARules(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	result := &RepairResult{}
	for offset := 0; ; offset += repairPageSize {
		page, err := r.store.ListSellerInteractions(ctx, sellerID, offset, repairPageSize)
		if err != nil {
			return result, err
		}
		for idx := range page {
			changed, err := r.recompute(ctx, page[idx].ID, rules)
			if err != nil {
				return result, err
			}
			result.Scanned++
			if changed {
				result.Changed++
			}
		}
		if len(page) < repairPageSize {
			break
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"seller_id": sellerID,
		"scanned":   result.Scanned,
		"changed":   result.Changed,
	}).Info("Recomputed interaction status and SLA")
	return result, nil
}

func (r *Repairer) recompute(ctx context.Context, id uuid.UUID, rules []models.SLARule) (bool, error) {
	changed := false
	err := r.store.WithinTx(ctx, func(ctx context.Context) error {
		current, err := r.store.GetInteraction(ctx, id)
		if err != nil || current == nil {
			return err
		}
		history, err := r.store.ListEvents(ctx, current.ID)
		if err != nil {
			return err
		}

		now := r.now()
		i := current.Clone()
		var events []models.InteractionEvent

		if status.Apply(i, status.Recompute(i, history)) {
			changed = true
			if i.Status != current.Status {
				events = append(events, models.NewEvent(i, models.EventStatusChanged, map[string]any{
					"from":   string(current.Status),
					"to":     string(i.Status),
					"repair": true,
				}, now))
			}
		}

		assignment := r.sla.Evaluate(ctx, i, rules)
		if sla.Apply(i, assignment) {
			changed = true
			events = append(events, slaEvent(i, assignment, now))
		}

		if !changed {
			return nil
		}
		i.UpdatedAt = now
		if err := r.store.UpdateInteraction(ctx, i); err != nil {
			return err
		}
		return r.store.AppendEvents(ctx, events...)
	})
	return changed, err
}
