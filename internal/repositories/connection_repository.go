package repositories

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const (
	syncConnectionsTable = "sync_connections"
	maxDueConnections    = 1000
)

// ConnectionRepository stores the triples the scheduler polls
type ConnectionRepository struct {
	*Repository
}

func NewConnectionRepository(db database.DB, logger ectologger.Logger) *ConnectionRepository {
	return &ConnectionRepository{Repository: NewRepository(db, logger)}
}

func (r *ConnectionRepository) SaveConnection(ctx context.Context, conn *models.SyncConnection) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.SaveConnection")
	defer span.End()

	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncConnectionsTable).
		Cols("seller_id", "marketplace", "channel", "enabled", "poll_interval_seconds", "created_at").
		Values(conn.SellerID, conn.Marketplace, conn.Channel, conn.Enabled, conn.PollIntervalSeconds, conn.CreatedAt)
	ib.OnConflictUpdate([]string{"seller_id", "marketplace", "channel"}, "enabled", "poll_interval_seconds")

	query, args := ib.Build()
	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, map[string]any{"sync_key": conn.Key().String()}, "failed to save sync connection")
	}
	return nil
}

// connectionsQuery selects enabled connections with the start of their latest run.
const connectionsQuery = `
	SELECT c.seller_id, c.marketplace, c.channel, c.enabled, c.poll_interval_seconds, c.created_at,
		MAX(r.started_at) AS last_run_at
	FROM sync_connections c
	LEFT JOIN sync_runs r
		ON r.seller_id = c.seller_id AND r.marketplace = c.marketplace AND r.channel = c.channel
	WHERE c.enabled
	GROUP BY c.seller_id, c.marketplace, c.channel, c.enabled, c.poll_interval_seconds, c.created_at`

// ListConnections returns enabled connections.
func (r *ConnectionRepository) ListConnections(ctx context.Context) ([]models.SyncConnection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.ListConnections")
	defer span.End()

	query := connectionsQuery + `
	ORDER BY c.seller_id, c.marketplace, c.channel`

	var conns []models.SyncConnection
	if err := r.q(ctx).SelectContext(ctx, &conns, query); err != nil {
		return nil, r.internal(ctx, err, nil, "failed to list sync connections")
	}
	return conns, nil
}

// ListDueConnections returns enabled connections whose poll interval has elapsed since their last run.
func (r *ConnectionRepository) ListDueConnections(ctx context.Context, now time.Time, limit int) ([]models.SyncConnection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.ListDueConnections")
	defer span.End()

	if limit <= 0 {
		limit = maxDueConnections
	}

	query := connectionsQuery + `
	HAVING MAX(r.started_at) IS NULL
		OR MAX(r.started_at) + c.poll_interval_seconds * INTERVAL '1 second' <= $1
	ORDER BY MAX(r.started_at) NULLS FIRST, c.seller_id, c.marketplace, c.channel
	LIMIT $2`

	var conns []models.SyncConnection
	if err := r.q(ctx).SelectContext(ctx, &conns, query, now, limit); err != nil {
		return nil, r.internal(ctx, err, nil, "failed to list due sync connections")
	}
	return conns, nil
}
