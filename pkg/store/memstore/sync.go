package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
)

func (s *Store) LoadCursor(ctx context.Context, key models.SyncKey) (*models.SyncCursor, error) {
	var out *models.SyncCursor
	s.read(ctx, func(st *state) {
		if c, ok := st.cursors[key]; ok {
			out = &c
		}
	})
	return out, nil
}

func (s *Store) SaveCursor(ctx context.Context, cursor *models.SyncCursor) error {
	return s.write(ctx, func(st *state) error {
		st.cursors[cursor.Key()] = *cursor
		return nil
	})
}

func (s *Store) RecordRun(ctx context.Context, run *models.SyncRun) error {
	return s.write(ctx, func(st *state) error {
		st.runs = append(st.runs, *run)
		return nil
	})
}

// ListRunsSince returns runs started at or after since, oldest first.
func (s *Store) ListRunsSince(ctx context.Context, since time.Time) ([]models.SyncRun, error) {
	var out []models.SyncRun
	s.read(ctx, func(st *state) {
		for _, r := range st.runs {
			if !r.StartedAt.Before(since) {
				out = append(out, r)
			}
		}
	})
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].StartedAt.Before(out[b].StartedAt)
	})
	return out, nil
}

// ListRunAnchors returns, per triple, the first run and the latest successful
// run among the runs started before cutoff.
func (s *Store) ListRunAnchors(ctx context.Context, cutoff time.Time) ([]models.SyncRun, error) {
	first := map[models.SyncKey]models.SyncRun{}
	success := map[models.SyncKey]models.SyncRun{}
	s.read(ctx, func(st *state) {
		for _, r := range st.runs {
			if !r.StartedAt.Before(cutoff) {
				continue
			}
			if f, ok := first[r.Key()]; !ok || r.StartedAt.Before(f.StartedAt) {
				first[r.Key()] = r
			}
			if l, ok := success[r.Key()]; r.Succeeded() && (!ok || r.StartedAt.After(l.StartedAt)) {
				success[r.Key()] = r
			}
		}
	})

	out := make([]models.SyncRun, 0, len(first)+len(success))
	for key, f := range first {
		out = append(out, f)
		if l, ok := success[key]; ok && l.ID != f.ID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].StartedAt.Before(out[b].StartedAt)
	})
	return out, nil
}

// ListRecentRuns returns a seller's runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, sellerID int64, limit int) ([]models.SyncRun, error) {
	var out []models.SyncRun
	s.read(ctx, func(st *state) {
		for _, r := range st.runs {
			if r.SellerID == sellerID {
				out = append(out, r)
			}
		}
	})
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveConnection upserts a connection. An existing row keeps its created_at.
func (s *Store) SaveConnection(ctx context.Context, conn *models.SyncConnection) error {
	return s.write(ctx, func(st *state) error {
		if existing, ok := st.connections[conn.Key()]; ok {
			conn.CreatedAt = existing.CreatedAt
		} else if conn.CreatedAt.IsZero() {
			conn.CreatedAt = time.Now().UTC()
		}
		st.connections[conn.Key()] = *conn
		return nil
	})
}

// ListConnections returns enabled connections.
func (s *Store) ListConnections(ctx context.Context) ([]models.SyncConnection, error) {
	var out []models.SyncConnection
	s.read(ctx, func(st *state) {
		for _, c := range st.connections {
			if c.Enabled {
				out = append(out, c)
			}
		}
	})
	sort.Slice(out, func(a, b int) bool {
		return out[a].Key().String() < out[b].Key().String()
	})
	return out, nil
}

// ListDueConnections returns enabled connections whose poll interval has elapsed since their last run.
func (s *Store) ListDueConnections(ctx context.Context, now time.Time, limit int) ([]models.SyncConnection, error) {
	conns, err := s.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	lastRun := map[models.SyncKey]time.Time{}
	s.read(ctx, func(st *state) {
		for _, r := range st.runs {
			if r.StartedAt.After(lastRun[r.Key()]) {
				lastRun[r.Key()] = r.StartedAt
			}
		}
	})

	var due []models.SyncConnection
	for _, c := range conns {
		last, ok := lastRun[c.Key()]
		if ok {
			c.LastRunAt = &last
			if last.Add(c.PollInterval()).After(now) {
				continue
			}
		}
		due = append(due, c)
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}
