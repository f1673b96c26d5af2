package models

import "time"

type AlertKind string

const (
	AlertStale           AlertKind = "stale"
	AlertErrorSpike      AlertKind = "error_spike"
	AlertRateLimited     AlertKind = "rate_limited"
	AlertQualityDegraded AlertKind = "quality_degraded"
)

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is an advisory finding over recent sync run history.
type Alert struct {
	Kind        AlertKind      `json:"kind"`
	Severity    AlertSeverity  `json:"severity"`
	SellerID    int64          `json:"seller_id"`
	Marketplace string         `json:"marketplace"`
	Channel     Channel        `json:"channel"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ObservedAt  time.Time      `json:"observed_at"`
}

func (a Alert) Key() SyncKey {
	return SyncKey{SellerID: a.SellerID, Marketplace: a.Marketplace, Channel: a.Channel}
}
