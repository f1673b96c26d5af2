package repositories

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const syncRunsTable = "sync_runs"

var syncRunStruct = database.NewStruct(new(models.SyncRun))

// SyncRunRepository is the run history read by the health monitor and the ops API
type SyncRunRepository struct {
	*Repository
}

func NewSyncRunRepository(db database.DB, logger ectologger.Logger) *SyncRunRepository {
	return &SyncRunRepository{Repository: NewRepository(db, logger)}
}

func (r *SyncRunRepository) RecordRun(ctx context.Context, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.RecordRun")
	defer span.End()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query, args := syncRunStruct.InsertInto(syncRunsTable, run).Build()
	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, map[string]any{"sync_key": run.Key().String(), "run_id": run.ID}, "failed to record sync run")
	}
	return nil
}

// ListRunsSince returns runs started at or after since, oldest first.
func (r *SyncRunRepository) ListRunsSince(ctx context.Context, since time.Time) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.ListRunsSince")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.GreaterEqualThan("started_at", since))
	sb.OrderBy("started_at")

	return r.list(ctx, sb, map[string]any{"since": since})
}

// runAnchorsQuery selects, per triple, the first run and the latest successful
// run started before the cutoff.
const runAnchorsQuery = `
	(SELECT DISTINCT ON (seller_id, marketplace, channel) * FROM sync_runs
		WHERE started_at < $1
		ORDER BY seller_id, marketplace, channel, started_at ASC)
	UNION
	(SELECT DISTINCT ON (seller_id, marketplace, channel) * FROM sync_runs
		WHERE started_at < $1 AND error_kind IS NULL
		ORDER BY seller_id, marketplace, channel, started_at DESC)
	ORDER BY started_at`

// ListRunAnchors returns the runs that bound each triple's history before cutoff.
func (r *SyncRunRepository) ListRunAnchors(ctx context.Context, cutoff time.Time) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.ListRunAnchors")
	defer span.End()

	var runs []models.SyncRun
	if err := r.q(ctx).SelectContext(ctx, &runs, runAnchorsQuery, cutoff); err != nil {
		return nil, r.internal(ctx, err, map[string]any{"cutoff": cutoff}, "failed to list sync run anchors")
	}
	return runs, nil
}

// ListRecentRuns returns a seller's runs, newest first.
func (r *SyncRunRepository) ListRecentRuns(ctx context.Context, sellerID int64, limit int) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.ListRecentRuns")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("seller_id", sellerID))
	sb.OrderBy("started_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.list(ctx, sb, map[string]any{"seller_id": sellerID})
}

func (r *SyncRunRepository) list(ctx context.Context, sb *database.SelectBuilder, fields map[string]any) ([]models.SyncRun, error) {
	query, args := sb.Build()
	var runs []models.SyncRun
	if err := r.q(ctx).SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, r.internal(ctx, err, fields, "failed to list sync runs")
	}
	return runs, nil
}
