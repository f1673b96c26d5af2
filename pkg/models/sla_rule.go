package models

import "time"

type ConditionType string

const (
	ConditionKeyword   ConditionType = "keyword"
	ConditionChatType  ConditionType = "chat_type"
	ConditionRating    ConditionType = "rating"
	ConditionTimeBased ConditionType = "time_based"
)

// SLARule is a seller-defined response-time commitment. Higher Priority is evaluated first.
type SLARule struct {
	ID              int64         `db:"id" json:"id"`
	SellerID        int64         `db:"seller_id" json:"seller_id"`
	Name            string        `db:"name" json:"name"`
	ConditionType   ConditionType `db:"condition_type" json:"condition_type"`
	ConditionValue  string        `db:"condition_value" json:"condition_value"`
	DeadlineMinutes int           `db:"deadline_minutes" json:"deadline_minutes"`
	Priority        int           `db:"priority" json:"priority"`
	PriorityLabel   Priority      `db:"priority_label" json:"priority_label"`
	IsActive        bool          `db:"is_active" json:"is_active"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

func (SLARule) TableName() string {
	return "sla_rules"
}
