package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareCursors(t *testing.T) {
	tests := []struct {
		name       string
		a, b       string
		cmp        int
		comparable bool
	}{
		{"integers ascending", "99", "100", -1, true},
		{"integers equal with spaces", " 42", "42 ", 0, true},
		{"integers descending", "205", "200", 1, true},
		{"timestamps", "2024-05-01T10:00:00Z", "2024-05-01T09:59:59Z", 1, true},
		{"timestamps across zones", "2024-05-01T12:00:00+02:00", "2024-05-01T10:00:00Z", 0, true},
		{"opaque tokens", "eyJwYWdlIjoyfQ", "eyJwYWdlIjozfQ", 0, false},
		{"integer against timestamp", "100", "2024-05-01T10:00:00Z", 0, false},
		{"timestamp against opaque", "2024-05-01T10:00:00Z", "next", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp, comparable := CompareCursors(tt.a, tt.b)
			assert.Equal(t, tt.comparable, comparable)
			assert.Equal(t, tt.cmp, cmp)
		})
	}
}

func TestNewPairKeyIsOrderIndependent(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	assert.Equal(t, NewPairKey(low, high), NewPairKey(high, low))
	pair := NewPairKey(high, low)
	assert.Equal(t, low, pair.A)
	assert.Equal(t, high, pair.B)
	assert.Equal(t, high, pair.Other(low))
	assert.Equal(t, low, pair.Other(high))
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel(" Chat ")
	require.NoError(t, err)
	assert.Equal(t, ChannelChat, c)

	_, err = ParseChannel("email")
	assert.Error(t, err)
}

func TestStatusNeedsResponse(t *testing.T) {
	assert.True(t, StatusWaiting.NeedsResponse())
	assert.True(t, StatusClientReplied.NeedsResponse())
	assert.False(t, StatusResponded.NeedsResponse())
	assert.False(t, StatusAutoResponse.NeedsResponse())
}

func TestMessageEventRoundTrip(t *testing.T) {
	i := &Interaction{ID: uuid.New(), SellerID: 7}
	sentAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now := sentAt.Add(time.Minute)

	event := NewMessageEvent(i, Message{ExternalID: "m-1", Author: AuthorCustomer, Text: "where is my order?", SentAt: sentAt}, now)
	assert.Equal(t, EventMessage, event.EventType)
	assert.Equal(t, i.ID, event.InteractionID)

	m, ok := event.Message()
	require.True(t, ok)
	assert.Equal(t, "m-1", m.ExternalID)
	assert.Equal(t, AuthorCustomer, m.Author)
	assert.True(t, sentAt.Equal(m.SentAt))

	_, ok = NewEvent(i, EventEscalated, nil, now).Message()
	assert.False(t, ok)
}

func TestMessageFallsBackToEventTime(t *testing.T) {
	i := &Interaction{ID: uuid.New()}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := NewEvent(i, EventMessage, map[string]any{"author": "seller", "text": "hi"}, now)

	m, ok := event.Message()
	require.True(t, ok)
	assert.Equal(t, now, m.SentAt)
}

func TestInteractionClone(t *testing.T) {
	i := &Interaction{ID: uuid.New(), CustomerID: Ptr("c-1"), Rating: Ptr(4)}
	c := i.Clone()
	*c.CustomerID = "c-2"
	*c.Rating = 1

	assert.Equal(t, "c-1", *i.CustomerID)
	assert.Equal(t, 4, *i.Rating)
	assert.Nil(t, (*Interaction)(nil).Clone())
}

func TestReferenceTime(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	occurred := created.Add(-time.Hour)

	i := &Interaction{CreatedAt: created}
	assert.Equal(t, created, i.ReferenceTime())
	i.OccurredAt = &occurred
	assert.Equal(t, occurred, i.ReferenceTime())
}
