package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const slaRulesTable = "sla_rules"

var slaRuleStruct = database.NewStruct(new(models.SLARule))

type SLARuleRepository struct {
	*Repository
}

func NewSLARuleRepository(db database.DB, logger ectologger.Logger) *SLARuleRepository {
	return &SLARuleRepository{Repository: NewRepository(db, logger)}
}

// SaveSLARule inserts a rule without an id and updates it otherwise.
func (r *SLARuleRepository) SaveSLARule(ctx context.Context, rule *models.SLARule) error {
	ctx, span := tracing.StartSpan(ctx, "SLARuleRepository.SaveSLARule")
	defer span.End()

	fields := map[string]any{"seller_id": rule.SellerID, "rule_name": rule.Name}

	if rule.ID == 0 {
		ib := database.NewInsertBuilder()
		ib.InsertInto(slaRulesTable).
			Cols("seller_id", "name", "condition_type", "condition_value", "deadline_minutes", "priority", "priority_label", "is_active").
			Values(rule.SellerID, rule.Name, rule.ConditionType, rule.ConditionValue, rule.DeadlineMinutes, rule.Priority, rule.PriorityLabel, rule.IsActive)
		ib.SQL("RETURNING id, created_at")

		query, args := ib.Build()
		if err := r.q(ctx).GetContext(ctx, rule, query, args...); err != nil {
			return r.internal(ctx, err, fields, "failed to create sla rule")
		}
		r.logger.WithContext(ctx).WithFields(fields).Infof("Created %s %d", slaRulesTable, rule.ID)
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update(slaRulesTable).Set(
		ub.Assign("name", rule.Name),
		ub.Assign("condition_type", rule.ConditionType),
		ub.Assign("condition_value", rule.ConditionValue),
		ub.Assign("deadline_minutes", rule.DeadlineMinutes),
		ub.Assign("priority", rule.Priority),
		ub.Assign("priority_label", rule.PriorityLabel),
		ub.Assign("is_active", rule.IsActive),
	).Where(ub.Equal("id", rule.ID), ub.Equal("seller_id", rule.SellerID))

	query, args := ub.Build()
	result, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return r.internal(ctx, err, fields, "failed to update sla rule")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return NotFound("sla rule %d does not exist", rule.ID)
	}
	return nil
}

// ListActiveSLARules returns active rules in id order; callers apply evaluation order.
func (r *SLARuleRepository) ListActiveSLARules(ctx context.Context, sellerID int64) ([]models.SLARule, error) {
	ctx, span := tracing.StartSpan(ctx, "SLARuleRepository.ListActiveSLARules")
	defer span.End()

	sb := slaRuleStruct.SelectFrom(slaRulesTable)
	sb.Where(sb.Equal("seller_id", sellerID), sb.Equal("is_active", true))
	sb.OrderBy("id")

	query, args := sb.Build()
	var rules []models.SLARule
	if err := r.q(ctx).SelectContext(ctx, &rules, query, args...); err != nil {
		return nil, r.internal(ctx, err, map[string]any{"seller_id": sellerID}, "failed to list sla rules")
	}
	return rules, nil
}
