package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const syncCursorsTable = "sync_cursors"

var syncCursorStruct = database.NewStruct(new(models.SyncCursor))

// SyncCursorRepository stores the last committed position per triple
type SyncCursorRepository struct {
	*Repository
}

func NewSyncCursorRepository(db database.DB, logger ectologger.Logger) *SyncCursorRepository {
	return &SyncCursorRepository{Repository: NewRepository(db, logger)}
}

// LoadCursor returns nil when the triple has never committed a cursor.
func (r *SyncCursorRepository) LoadCursor(ctx context.Context, key models.SyncKey) (*models.SyncCursor, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncCursorRepository.LoadCursor")
	defer span.End()

	sb := syncCursorStruct.SelectFrom(syncCursorsTable)
	sb.Where(
		sb.Equal("seller_id", key.SellerID),
		sb.Equal("marketplace", key.Marketplace),
		sb.Equal("channel", key.Channel),
	)

	query, args := sb.Build()
	var cursor models.SyncCursor
	err := r.q(ctx).GetContext(ctx, &cursor, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.internal(ctx, err, map[string]any{"sync_key": key.String()}, "failed to load sync cursor")
	}
	return &cursor, nil
}

func (r *SyncCursorRepository) SaveCursor(ctx context.Context, cursor *models.SyncCursor) error {
	ctx, span := tracing.StartSpan(ctx, "SyncCursorRepository.SaveCursor")
	defer span.End()

	ib := syncCursorStruct.InsertInto(syncCursorsTable, cursor)
	ib.OnConflictUpdate([]string{"seller_id", "marketplace", "channel"}, "cursor", "updated_at")

	query, args := ib.Build()
	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, map[string]any{"sync_key": cursor.Key().String()}, "failed to save sync cursor")
	}

	r.logger.WithContext(ctx).WithField("sync_key", cursor.Key().String()).Debugf("Saved %s at %s", syncCursorsTable, cursor.Cursor)
	return nil
}
