// Package metrics provides Prometheus metrics for the thistle service.
package metrics

import (
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks ingestion runs by final outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs by outcome",
		},
		[]string{"marketplace", "channel", "outcome"},
	)

	// SyncRunDuration tracks ingestion run duration in seconds
	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "thistle",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"marketplace", "channel"},
	)

	// SyncRecordsTotal tracks raw records by dedup outcome
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of raw records processed by outcome",
		},
		[]string{"marketplace", "channel", "outcome"},
	)

	// SyncRunsSkipped tracks triggers skipped because a run was already in flight
	SyncRunsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "sync",
			Name:      "runs_skipped_total",
			Help:      "Total number of triggers skipped because the triple was busy",
		},
		[]string{"marketplace", "channel"},
	)

	// EscalationsTotal tracks interactions escalated past their SLA deadline
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "sla",
			Name:      "escalations_total",
			Help:      "Total number of interactions escalated past their deadline",
		},
		[]string{"channel"},
	)

	// LinkUpdatesTotal tracks link candidate writes by action
	LinkUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "linking",
			Name:      "updates_total",
			Help:      "Total number of link candidate changes by action",
		},
		[]string{"action"},
	)

	// DraftsTotal tracks drafting collaborator calls by status
	DraftsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "drafting",
			Name:      "drafts_total",
			Help:      "Total number of reply drafts requested by status",
		},
		[]string{"channel", "status"},
	)

	// ActiveAlerts tracks the current number of health alerts by kind
	ActiveAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "thistle",
			Subsystem: "health",
			Name:      "active_alerts",
			Help:      "Number of sync health alerts from the latest check",
		},
		[]string{"kind", "severity"},
	)

	// QueueJobsProcessed tracks sync jobs consumed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of sync jobs processed from the queue",
		},
		[]string{"status"},
	)

	// KafkaMessagesPublished tracks messages published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

func RecordSyncRun(run *models.SyncRun) {
	outcome := "success"
	switch {
	case run.ErrorKind != nil:
		outcome = string(*run.ErrorKind)
	case run.RateLimited:
		outcome = "rate_limited"
	}
	labels := []string{run.Marketplace, string(run.Channel)}
	SyncRunsTotal.WithLabelValues(append(labels, outcome)...).Inc()
	SyncRunDuration.WithLabelValues(labels...).Observe(run.Duration().Seconds())
	SyncRecordsTotal.WithLabelValues(append(labels, "created")...).Add(float64(run.Created))
	SyncRecordsTotal.WithLabelValues(append(labels, "updated")...).Add(float64(run.Updated))
	SyncRecordsTotal.WithLabelValues(append(labels, "skipped")...).Add(float64(run.Skipped))
	SyncRecordsTotal.WithLabelValues(append(labels, "error")...).Add(float64(run.Errors))
}

func RecordSkippedRun(key models.SyncKey) {
	SyncRunsSkipped.WithLabelValues(key.Marketplace, string(key.Channel)).Inc()
}

func RecordEscalation(channel models.Channel) {
	EscalationsTotal.WithLabelValues(string(channel)).Inc()
}

// RecordLinkUpdates counts committed link candidate writes. Zero is a no-op.
func RecordLinkUpdates(action string, n int) {
	if n > 0 {
		LinkUpdatesTotal.WithLabelValues(action).Add(float64(n))
	}
}

func RecordDraft(channel models.Channel, status string) {
	DraftsTotal.WithLabelValues(string(channel), status).Inc()
}

// SetActiveAlerts replaces the alert gauge with the latest findings.
func SetActiveAlerts(alerts []models.Alert) {
	ActiveAlerts.Reset()
	for _, a := range alerts {
		ActiveAlerts.WithLabelValues(string(a.Kind), string(a.Severity)).Inc()
	}
}

func RecordQueueJob(status string) {
	QueueJobsProcessed.WithLabelValues(status).Inc()
}

func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
