package models

import (
	"time"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/google/uuid"
)

type EventType string

const (
	EventMessage        EventType = "message"
	EventStatusChanged  EventType = "status_changed"
	EventSLAAssigned    EventType = "sla_assigned"
	EventEscalated      EventType = "escalated"
	EventLinkUpdated    EventType = "link_updated"
	EventDraftGenerated EventType = "draft_generated"
	EventDraftFailed    EventType = "draft_failed"
)

// InteractionEvent is an append-only lifecycle fact owned by one interaction.
type InteractionEvent struct {
	ID            uuid.UUID                      `db:"id" json:"id"`
	InteractionID uuid.UUID                      `db:"interaction_id" json:"interaction_id"`
	SellerID      int64                          `db:"seller_id" json:"seller_id"`
	EventType     EventType                      `db:"event_type" json:"event_type"`
	Details       database.JSONB[map[string]any] `db:"details" json:"details"`
	CreatedAt     time.Time                      `db:"created_at" json:"created_at"`
}

func (InteractionEvent) TableName() string {
	return "interaction_events"
}

func NewEvent(i *Interaction, eventType EventType, details map[string]any, now time.Time) InteractionEvent {
	if details == nil {
		details = map[string]any{}
	}
	return InteractionEvent{
		ID:            uuid.New(),
		InteractionID: i.ID,
		SellerID:      i.SellerID,
		EventType:     eventType,
		Details:       database.NewJSONB(details),
		CreatedAt:     now,
	}
}

type AuthorRole string

const (
	AuthorCustomer AuthorRole = "customer"
	AuthorSeller   AuthorRole = "seller"
	AuthorSystem   AuthorRole = "system"
)

// Message is one chat message as carried by a message event.
type Message struct {
	ExternalID string     `json:"external_id"`
	Author     AuthorRole `json:"author"`
	Text       string     `json:"text"`
	SentAt     time.Time  `json:"sent_at"`
}

func NewMessageEvent(i *Interaction, m Message, now time.Time) InteractionEvent {
	return NewEvent(i, EventMessage, map[string]any{
		"external_id": m.ExternalID,
		"author":      string(m.Author),
		"text":        m.Text,
		"sent_at":     m.SentAt.UTC().Format(time.RFC3339Nano),
	}, now)
}

// Message decodes a message event. ok is false for other event types.
func (e InteractionEvent) Message() (Message, bool) {
	if e.EventType != EventMessage {
		return Message{}, false
	}
	d := e.Details.Data
	m := Message{
		ExternalID: stringField(d, "external_id"),
		Author:     AuthorRole(stringField(d, "author")),
		Text:       stringField(d, "text"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringField(d, "sent_at")); err == nil {
		m.SentAt = ts
	} else {
		m.SentAt = e.CreatedAt
	}
	return m, true
}

func stringField(d map[string]any, key string) string {
	v, _ := d[key].(string)
	return v
}
