package models

import "time"

// SyncConnection enables polling for one triple.
type SyncConnection struct {
	SellerID            int64      `db:"seller_id" json:"seller_id"`
	Marketplace         string     `db:"marketplace" json:"marketplace"`
	Channel             Channel    `db:"channel" json:"channel"`
	Enabled             bool       `db:"enabled" json:"enabled"`
	PollIntervalSeconds int        `db:"poll_interval_seconds" json:"poll_interval_seconds"`
	LastRunAt           *time.Time `db:"last_run_at" json:"last_run_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

func (SyncConnection) TableName() string {
	return "sync_connections"
}

func (c *SyncConnection) Key() SyncKey {
	return SyncKey{SellerID: c.SellerID, Marketplace: c.Marketplace, Channel: c.Channel}
}

func (c *SyncConnection) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
