package models

import (
	"time"

	"github.com/google/uuid"
)

type InteractionStatus string

const (
	StatusWaiting       InteractionStatus = "waiting"
	StatusClientReplied InteractionStatus = "client-replied"
	StatusResponded     InteractionStatus = "responded"
	StatusAutoResponse  InteractionStatus = "auto-response"
)

// NeedsResponse reports whether the seller still owes the customer a reply.
func (s InteractionStatus) NeedsResponse() bool {
	return s == StatusWaiting || s == StatusClientReplied
}

// Priority is the SLA urgency label copied from the matching rule.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Source string

const (
	SourceAPI      Source = "api"
	SourceFallback Source = "fallback"
)

// Interaction is the unified record of one review, question or chat.
type Interaction struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SellerID    int64     `db:"seller_id" json:"seller_id"`
	Marketplace string    `db:"marketplace" json:"marketplace"`
	Channel     Channel   `db:"channel" json:"channel"`
	ExternalID  string    `db:"external_id" json:"external_id"`

	CustomerID *string `db:"customer_id" json:"customer_id,omitempty"`
	OrderID    *string `db:"order_id" json:"order_id,omitempty"`
	ProductID  *string `db:"product_id" json:"product_id,omitempty"`

	Subject        string   `db:"subject" json:"subject"`
	Text           string   `db:"text" json:"text"`
	Rating         *int     `db:"rating" json:"rating,omitempty"`
	SentimentScore *float64 `db:"sentiment_score" json:"sentiment_score,omitempty"`

	Status        InteractionStatus `db:"status" json:"status"`
	Priority      Priority          `db:"priority" json:"priority"`
	NeedsResponse bool              `db:"needs_response" json:"needs_response"`
	UnreadCount   int               `db:"unread_count" json:"unread_count"`
	SLARuleID     *int64            `db:"sla_rule_id" json:"sla_rule_id,omitempty"`
	SLADeadlineAt *time.Time        `db:"sla_deadline_at" json:"sla_deadline_at,omitempty"`
	EscalatedAt   *time.Time        `db:"escalated_at" json:"escalated_at,omitempty"`

	Source     Source     `db:"source" json:"source"`
	OccurredAt *time.Time `db:"occurred_at" json:"occurred_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

func (Interaction) TableName() string {
	return "interactions"
}

func (i *Interaction) Identity() IdentityKey {
	return IdentityKey{
		SellerID:    i.SellerID,
		Marketplace: i.Marketplace,
		Channel:     i.Channel,
		ExternalID:  i.ExternalID,
	}
}

// ReferenceTime is occurred_at when the source supplied it, else the ingestion time.
func (i *Interaction) ReferenceTime() time.Time {
	if i.OccurredAt != nil {
		return *i.OccurredAt
	}
	return i.CreatedAt
}

func (i *Interaction) Clone() *Interaction {
	if i == nil {
		return nil
	}
	c := *i
	c.CustomerID = clonePtr(i.CustomerID)
	c.OrderID = clonePtr(i.OrderID)
	c.ProductID = clonePtr(i.ProductID)
	c.Rating = clonePtr(i.Rating)
	c.SentimentScore = clonePtr(i.SentimentScore)
	c.SLARuleID = clonePtr(i.SLARuleID)
	c.SLADeadlineAt = clonePtr(i.SLADeadlineAt)
	c.EscalatedAt = clonePtr(i.EscalatedAt)
	c.OccurredAt = clonePtr(i.OccurredAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
