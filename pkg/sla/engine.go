// Package sla assigns priority and response deadlines from seller rules and
// escalates interactions whose deadline has passed.
package sla

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/thistle/pkg/models"
)

type Config struct {
	DefaultPriority    models.Priority
	DefaultDeadline    time.Duration
	EscalationPriority models.Priority
	SweepBatchSize     int
}

func DefaultConfig() Config {
	return Config{
		DefaultPriority:    models.PriorityNormal,
		DefaultDeadline:    24 * time.Hour,
		EscalationPriority: models.PriorityUrgent,
		SweepBatchSize:     500,
	}
}

// Assignment is the outcome of evaluating a rule set against one interaction.
type Assignment struct {
	Priority   models.Priority
	DeadlineAt time.Time
	// RuleID is nil when the system default applied.
	RuleID *int64
}

func (a Assignment) IsDefault() bool {
	return a.RuleID == nil
}

type Engine struct {
	config  Config
	logger  ectologger.Logger
	matcher *matcher
}

func NewEngine(config Config, logger ectologger.Logger) *Engine {
	defaults := DefaultConfig()
	if !config.DefaultPriority.Valid() {
		config.DefaultPriority = defaults.DefaultPriority
	}
	if config.DefaultDeadline <= 0 {
		config.DefaultDeadline = defaults.DefaultDeadline
	}
	if !config.EscalationPriority.Valid() {
		config.EscalationPriority = defaults.EscalationPriority
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = defaults.SweepBatchSize
	}
	return &Engine{config: config, logger: logger, matcher: &matcher{}}
}

func (e *Engine) Config() Config {
	return e.config
}

// Order sorts rules by priority descending, then id ascending.
func Order(rules []models.SLARule) []models.SLARule {
	ordered := append([]models.SLARule(nil), rules...)
	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].Priority != ordered[b].Priority {
			return ordered[a].Priority > ordered[b].Priority
		}
		return ordered[a].ID < ordered[b].ID
	})
	return ordered
}

// Evaluate applies the first matching active rule. The result depends only on
// the interaction and the rule set, never on storage order.
func (e *Engine) Evaluate(ctx context.Context, i *models.Interaction, rules []models.SLARule) Assignment {
	ref := i.ReferenceTime()

	for _, rule := range Order(rules) {
		if !rule.IsActive {
			continue
		}
		ok, err := e.matcher.match(rule, i)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"seller_id": i.SellerID,
				"rule_id":   rule.ID,
			}).Warn("Skipping SLA rule with invalid condition")
			continue
		}
		if !ok {
			continue
		}

		priority := rule.PriorityLabel
		if !priority.Valid() {
			priority = e.config.DefaultPriority
		}
		return Assignment{
			Priority:   priority,
			DeadlineAt: ref.Add(time.Duration(rule.DeadlineMinutes) * time.Minute),
			RuleID:     models.Ptr(rule.ID),
		}
	}

	return Assignment{
		Priority:   e.config.DefaultPriority,
		DeadlineAt: ref.Add(e.config.DefaultDeadline),
	}
}

// Apply copies the assignment onto the interaction and reports whether anything changed.
// An escalated interaction keeps its escalation priority while it still needs a
// response. Once answered the escalation is cleared, so a customer reopening the
// conversation makes it eligible for the sweep again.
func Apply(i *models.Interaction, a Assignment) bool {
	priority := a.Priority
	escalatedAt := i.EscalatedAt
	if escalatedAt != nil {
		if i.NeedsResponse {
			priority = i.Priority
		} else {
			escalatedAt = nil
		}
	}

	changed := i.Priority != priority ||
		!sameTime(i.EscalatedAt, escalatedAt) ||
		!sameTime(i.SLADeadlineAt, &a.DeadlineAt) ||
		!sameID(i.SLARuleID, a.RuleID)

	i.Priority = priority
	i.EscalatedAt = escalatedAt
	i.SLADeadlineAt = models.Ptr(a.DeadlineAt)
	i.SLARuleID = a.RuleID
	return changed
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
