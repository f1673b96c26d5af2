package models

import (
	"strconv"
	"strings"
	"time"
)

// SyncCursor is the last committed position for one sync triple.
type SyncCursor struct {
	SellerID    int64     `db:"seller_id" json:"seller_id"`
	Marketplace string    `db:"marketplace" json:"marketplace"`
	Channel     Channel   `db:"channel" json:"channel"`
	Cursor      string    `db:"cursor" json:"cursor"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (SyncCursor) TableName() string {
	return "sync_cursors"
}

func (c *SyncCursor) Key() SyncKey {
	return SyncKey{SellerID: c.SellerID, Marketplace: c.Marketplace, Channel: c.Channel}
}

// CompareCursors orders two cursor tokens when both are integers or both are
// RFC3339 timestamps. comparable is false for opaque tokens.
func CompareCursors(a, b string) (cmp int, comparable bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)

	if ai, err := strconv.ParseInt(a, 10, 64); err == nil {
		if bi, err := strconv.ParseInt(b, 10, 64); err == nil {
			return compare(ai, bi), true
		}
		return 0, false
	}

	at, errA := time.Parse(time.RFC3339Nano, a)
	bt, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		return compare(at.UnixNano(), bt.UnixNano()), true
	}
	return 0, false
}

func compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
