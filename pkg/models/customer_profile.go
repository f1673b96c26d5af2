package models

import (
	"time"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/google/uuid"
)

type SentimentTrend string

const (
	TrendImproving SentimentTrend = "improving"
	TrendStable    SentimentTrend = "stable"
	TrendDeclining SentimentTrend = "declining"
	TrendNeutral   SentimentTrend = "neutral"
)

// CustomerProfile holds rolling aggregates for one (seller, marketplace, customer).
type CustomerProfile struct {
	ID                 uuid.UUID                 `db:"id" json:"id"`
	SellerID           int64                     `db:"seller_id" json:"seller_id"`
	Marketplace        string                    `db:"marketplace" json:"marketplace"`
	CustomerID         string                    `db:"customer_id" json:"customer_id"`
	TotalInteractions  int                       `db:"total_interactions" json:"total_interactions"`
	ReviewCount        int                       `db:"review_count" json:"review_count"`
	QuestionCount      int                       `db:"question_count" json:"question_count"`
	ChatCount          int                       `db:"chat_count" json:"chat_count"`
	RatingCount        int                       `db:"rating_count" json:"rating_count"`
	AverageRating      *float64                  `db:"average_rating" json:"average_rating,omitempty"`
	FirstInteractionAt *time.Time                `db:"first_interaction_at" json:"first_interaction_at,omitempty"`
	LastInteractionAt  *time.Time                `db:"last_interaction_at" json:"last_interaction_at,omitempty"`
	RecentSentiments   database.JSONB[[]float64] `db:"recent_sentiments" json:"recent_sentiments"`
	SentimentTrend     SentimentTrend            `db:"sentiment_trend" json:"sentiment_trend"`
	IsRepeatComplainer bool                      `db:"is_repeat_complainer" json:"is_repeat_complainer"`
	IsVIP              bool                      `db:"is_vip" json:"is_vip"`
	CreatedAt          time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time                 `db:"updated_at" json:"updated_at"`
}

func (CustomerProfile) TableName() string {
	return "customer_profiles"
}

type ProfileKey struct {
	SellerID    int64
	Marketplace string
	CustomerID  string
}

func (p *CustomerProfile) Key() ProfileKey {
	return ProfileKey{SellerID: p.SellerID, Marketplace: p.Marketplace, CustomerID: p.CustomerID}
}

func (p *CustomerProfile) Clone() *CustomerProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.AverageRating = clonePtr(p.AverageRating)
	c.FirstInteractionAt = clonePtr(p.FirstInteractionAt)
	c.LastInteractionAt = clonePtr(p.LastInteractionAt)
	c.RecentSentiments = database.NewJSONB(append([]float64(nil), p.RecentSentiments.Data...))
	return &c
}
