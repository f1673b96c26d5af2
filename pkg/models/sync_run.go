package models

import (
	"time"

	"github.com/google/uuid"
)

// ErrorKind classifies why a sync run failed.
type ErrorKind string

const (
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
	ErrorKindCommit    ErrorKind = "commit"
	ErrorKindTimeout   ErrorKind = "timeout"
)

// SyncRun is the metrics record produced by one ingestion run.
type SyncRun struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	SellerID        int64      `db:"seller_id" json:"seller_id"`
	Marketplace     string     `db:"marketplace" json:"marketplace"`
	Channel         Channel    `db:"channel" json:"channel"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	FinishedAt      time.Time  `db:"finished_at" json:"finished_at"`
	Batches         int        `db:"batches" json:"batches"`
	Fetched         int        `db:"fetched" json:"fetched"`
	Created         int        `db:"created" json:"created"`
	Updated         int        `db:"updated" json:"updated"`
	Skipped         int        `db:"skipped" json:"skipped"`
	Errors          int        `db:"errors" json:"errors"`
	RateLimited     bool       `db:"rate_limited" json:"rate_limited"`
	Attempts        int        `db:"attempts" json:"attempts"`
	DraftsRequested int        `db:"drafts_requested" json:"drafts_requested"`
	DraftsFailed    int        `db:"drafts_failed" json:"drafts_failed"`
	ErrorKind       *ErrorKind `db:"error_kind" json:"error_kind,omitempty"`
	ErrorDetail     *string    `db:"error_detail" json:"error_detail,omitempty"`
	CursorBefore    *string    `db:"cursor_before" json:"cursor_before,omitempty"`
	CursorAfter     *string    `db:"cursor_after" json:"cursor_after,omitempty"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

func NewSyncRun(key SyncKey, startedAt time.Time) *SyncRun {
	return &SyncRun{
		ID:          uuid.New(),
		SellerID:    key.SellerID,
		Marketplace: key.Marketplace,
		Channel:     key.Channel,
		StartedAt:   startedAt,
	}
}

func (r *SyncRun) Key() SyncKey {
	return SyncKey{SellerID: r.SellerID, Marketplace: r.Marketplace, Channel: r.Channel}
}

// Succeeded is true for runs that finished without a run-level error. Rate limiting is not an error.
func (r *SyncRun) Succeeded() bool {
	return r.ErrorKind == nil
}

func (r *SyncRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
