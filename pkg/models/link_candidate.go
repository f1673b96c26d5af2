package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PairKey is an unordered interaction pair stored with A < B.
type PairKey struct {
	A uuid.UUID
	B uuid.UUID
}

// NewPairKey canonicalizes (x, y) so both endpoints produce the same key.
func NewPairKey(x, y uuid.UUID) PairKey {
	if bytes.Compare(x[:], y[:]) > 0 {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

func (p PairKey) Other(id uuid.UUID) uuid.UUID {
	if p.A == id {
		return p.B
	}
	return p.A
}

// LinkCandidate is a scored hypothesis that two interactions share a customer journey.
type LinkCandidate struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	SellerID       int64          `db:"seller_id" json:"seller_id"`
	InteractionAID uuid.UUID      `db:"interaction_a_id" json:"interaction_a_id"`
	InteractionBID uuid.UUID      `db:"interaction_b_id" json:"interaction_b_id"`
	Confidence     float64        `db:"confidence" json:"confidence"`
	MatchedOn      pq.StringArray `db:"matched_on" json:"matched_on"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

func (LinkCandidate) TableName() string {
	return "link_candidates"
}

func (l *LinkCandidate) Pair() PairKey {
	return PairKey{A: l.InteractionAID, B: l.InteractionBID}
}
