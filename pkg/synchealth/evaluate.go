// Package synchealth turns recent sync run history into advisory alerts.
package synchealth

import (
	"fmt"
	"sort"
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
)

type Config struct {
	// FreshnessWindow is how long a triple may go without a successful run.
	FreshnessWindow time.Duration
	// ErrorWindow is the trailing window for error and draft-failure rates.
	ErrorWindow        time.Duration
	ErrorRateThreshold float64
	MinAttempts        int
	// RateLimitStreak is the number of consecutive rate-limited runs that raises an alert.
	RateLimitStreak         int
	QualityFailureThreshold float64
	MinDraftRequests        int
}

func DefaultConfig() Config {
	return Config{
		FreshnessWindow:         3 * time.Hour,
		ErrorWindow:             time.Hour,
		ErrorRateThreshold:      0.2,
		MinAttempts:             1,
		RateLimitStreak:         3,
		QualityFailureThreshold: 0.5,
		MinDraftRequests:        3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = d.FreshnessWindow
	}
	if c.ErrorWindow <= 0 {
		c.ErrorWindow = d.ErrorWindow
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = d.ErrorRateThreshold
	}
	if c.MinAttempts <= 0 {
		c.MinAttempts = d.MinAttempts
	}
	if c.RateLimitStreak <= 0 {
		c.RateLimitStreak = d.RateLimitStreak
	}
	if c.QualityFailureThreshold <= 0 {
		c.QualityFailureThreshold = d.QualityFailureThreshold
	}
	if c.MinDraftRequests <= 0 {
		c.MinDraftRequests = d.MinDraftRequests
	}
	return c
}

// Lookback is how far back run history must reach for Evaluate.
func (c Config) Lookback() time.Duration {
	c = c.withDefaults()
	if c.FreshnessWindow > c.ErrorWindow {
		return c.FreshnessWindow
	}
	return c.ErrorWindow
}

// Evaluate classifies run history per triple. connections are the triples
// expected to sync; triples that only appear in runs are evaluated too.
// runs must include each triple's first run and latest successful run even
// when those are older than Lookback, so staleness sees the full history.
func Evaluate(runs []models.SyncRun, connections []models.SyncConnection, now time.Time, config Config) []models.Alert {
	config = config.withDefaults()

	byKey := map[models.SyncKey][]models.SyncRun{}
	for _, r := range runs {
		byKey[r.Key()] = append(byKey[r.Key()], r)
	}

	since := map[models.SyncKey]time.Time{}
	for _, c := range connections {
		since[c.Key()] = c.CreatedAt
		if _, ok := byKey[c.Key()]; !ok {
			byKey[c.Key()] = nil
		}
	}

	keys := make([]models.SyncKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a].String() < keys[b].String() })

	var alerts []models.Alert
	for _, key := range keys {
		history := byKey[key]
		sort.SliceStable(history, func(a, b int) bool { return history[a].StartedAt.Before(history[b].StartedAt) })

		if a, ok := stale(key, history, since[key], now, config); ok {
			alerts = append(alerts, a)
		}
		if a, ok := errorSpike(key, history, now, config); ok {
			alerts = append(alerts, a)
		}
		if a, ok := rateLimited(key, history, now, config); ok {
			alerts = append(alerts, a)
		}
		if a, ok := qualityDegraded(key, history, now, config); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func newAlert(key models.SyncKey, kind models.AlertKind, severity models.AlertSeverity, now time.Time, details map[string]any, format string, args ...any) models.Alert {
	return models.Alert{
		Kind:        kind,
		Severity:    severity,
		SellerID:    key.SellerID,
		Marketplace: key.Marketplace,
		Channel:     key.Channel,
		Message:     fmt.Sprintf(format, args...),
		Details:     details,
		ObservedAt:  now,
	}
}

func stale(key models.SyncKey, history []models.SyncRun, connectedAt, now time.Time, config Config) (models.Alert, bool) {
	var lastSuccess time.Time
	for _, r := range history {
		if r.Succeeded() && r.FinishedAt.After(lastSuccess) {
			lastSuccess = r.FinishedAt
		}
	}

	if !lastSuccess.IsZero() {
		if now.Sub(lastSuccess) <= config.FreshnessWindow {
			return models.Alert{}, false
		}
		return newAlert(key, models.AlertStale, models.SeverityCritical, now,
			map[string]any{"last_success_at": lastSuccess},
			"no successful sync for %s (last success %s)", now.Sub(lastSuccess).Round(time.Minute), lastSuccess.Format(time.RFC3339)), true
	}

	// never succeeded: allow a new connection one freshness window to catch up
	if !connectedAt.IsZero() && now.Sub(connectedAt) <= config.FreshnessWindow {
		return models.Alert{}, false
	}
	if connectedAt.IsZero() && len(history) > 0 && now.Sub(history[0].StartedAt) <= config.FreshnessWindow {
		return models.Alert{}, false
	}
	var details map[string]any
	if len(history) > 0 {
		details = map[string]any{"first_run_at": history[0].StartedAt}
	}
	return newAlert(key, models.AlertStale, models.SeverityCritical, now, details, "no successful sync has ever been recorded"), true
}

func errorSpike(key models.SyncKey, history []models.SyncRun, now time.Time, config Config) (models.Alert, bool) {
	attempts, errs, failedRuns := 0, 0, 0
	for _, r := range history {
		if now.Sub(r.StartedAt) > config.ErrorWindow {
			continue
		}
		attempts += r.Fetched
		errs += r.Errors
		if !r.Succeeded() {
			attempts++
			errs++
			failedRuns++
		}
	}
	if attempts < config.MinAttempts || attempts == 0 {
		return models.Alert{}, false
	}

	rate := float64(errs) / float64(attempts)
	if rate <= config.ErrorRateThreshold {
		return models.Alert{}, false
	}
	return newAlert(key, models.AlertErrorSpike, models.SeverityCritical, now,
		map[string]any{"errors": errs, "attempts": attempts, "failed_runs": failedRuns, "error_rate": rate},
		"error rate %.0f%% over the last %s (%d of %d)", rate*100, config.ErrorWindow, errs, attempts), true
}

func rateLimited(key models.SyncKey, history []models.SyncRun, now time.Time, config Config) (models.Alert, bool) {
	streak := 0
	for k := len(history) - 1; k >= 0; k-- {
		if !history[k].RateLimited || now.Sub(history[k].StartedAt) > config.Lookback() {
			break
		}
		streak++
	}
	if streak < config.RateLimitStreak {
		return models.Alert{}, false
	}
	return newAlert(key, models.AlertRateLimited, models.SeverityWarning, now,
		map[string]any{"consecutive_runs": streak},
		"%d consecutive rate-limited runs", streak), true
}

func qualityDegraded(key models.SyncKey, history []models.SyncRun, now time.Time, config Config) (models.Alert, bool) {
	requested, failed := 0, 0
	for _, r := range history {
		if now.Sub(r.StartedAt) > config.ErrorWindow {
			continue
		}
		requested += r.DraftsRequested
		failed += r.DraftsFailed
	}
	if requested < config.MinDraftRequests {
		return models.Alert{}, false
	}

	rate := float64(failed) / float64(requested)
	if rate <= config.QualityFailureThreshold {
		return models.Alert{}, false
	}
	return newAlert(key, models.AlertQualityDegraded, models.SeverityWarning, now,
		map[string]any{"drafts_requested": requested, "drafts_failed": failed},
		"%d of %d reply drafts failed", failed, requested), true
}
