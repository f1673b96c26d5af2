package profiles

import (
	"testing"
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func review(rating int, at time.Time) *models.Interaction {
	return &models.Interaction{
		ID:          uuid.New(),
		SellerID:    7,
		Marketplace: "wb",
		Channel:     models.ChannelReview,
		CustomerID:  models.Ptr("cust-1"),
		Rating:      models.Ptr(rating),
		OccurredAt:  models.Ptr(at),
		CreatedAt:   at,
	}
}

func TestPushSentimentKeepsLastFiveInOrder(t *testing.T) {
	var scores []float64
	for k := 1; k <= 7; k++ {
		scores = PushSentiment(scores, float64(k)/10, 5)
	}
	assert.Equal(t, []float64{0.3, 0.4, 0.5, 0.6, 0.7}, scores)
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   models.SentimentTrend
	}{
		{"no samples", nil, models.TrendNeutral},
		{"one sample", []float64{-1}, models.TrendNeutral},
		{"two rising", []float64{-0.5, 0.5}, models.TrendImproving},
		{"odd count ignores middle", []float64{-1, -1, 1, -1, -1}, models.TrendStable},
		{"declining", []float64{1, 0.5, 0, -0.5, -1}, models.TrendDeclining},
		{"small change is stable", []float64{0.1, 0.2, 0.25, 0.2}, models.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Trend(tt.scores, 0.2))
		})
	}
}

func TestFold(t *testing.T) {
	config := DefaultConfig()
	config.VIPThreshold = 3

	first := review(5, day)
	p := NewProfile(first, day)
	Fold(p, first, OutcomeCreated, config, day)

	require.NotNil(t, p.AverageRating)
	assert.Equal(t, 5.0, *p.AverageRating)
	assert.Equal(t, 1, p.TotalInteractions)
	assert.Equal(t, 1, p.ReviewCount)
	assert.Equal(t, models.TrendNeutral, p.SentimentTrend)

	earlier := review(1, day.Add(-48*time.Hour))
	Fold(p, earlier, OutcomeCreated, config, day)
	assert.InDelta(t, 3.0, *p.AverageRating, 1e-9)
	assert.Equal(t, day, *p.FirstInteractionAt, "first timestamp is set once")
	assert.Equal(t, day, *p.LastInteractionAt, "last timestamp never moves backwards")
	assert.Equal(t, []float64{1, -1}, p.RecentSentiments.Data)
	assert.Equal(t, models.TrendDeclining, p.SentimentTrend)

	chat := &models.Interaction{
		ID:             uuid.New(),
		Channel:        models.ChannelChat,
		CustomerID:     models.Ptr("cust-1"),
		SentimentScore: models.Ptr(-0.4),
		OccurredAt:     models.Ptr(day.Add(time.Hour)),
	}
	Fold(p, chat, OutcomeCreated, config, day)
	assert.Equal(t, 1, p.ChatCount)
	assert.Equal(t, 3, p.TotalInteractions)
	assert.Equal(t, 2, p.RatingCount, "chats do not affect the rating average")
	assert.True(t, p.IsVIP)
	assert.False(t, p.IsRepeatComplainer)
	assert.Equal(t, day.Add(time.Hour), *p.LastInteractionAt)

	// an edit of an existing interaction is not counted again
	Fold(p, chat, OutcomeUpdated, config, day)
	assert.Equal(t, 3, p.TotalInteractions)
	assert.Len(t, p.RecentSentiments.Data, 3)
}

func TestFoldRepeatComplainer(t *testing.T) {
	config := DefaultConfig()
	p := NewProfile(review(1, day), day)

	for k := 0; k < 3; k++ {
		Fold(p, review(1, day.Add(time.Duration(k)*time.Hour)), OutcomeCreated, config, day)
	}
	assert.True(t, p.IsRepeatComplainer)
	assert.False(t, p.IsVIP)

	for k := 0; k < 3; k++ {
		Fold(p, review(5, day.Add(time.Duration(10+k)*time.Hour)), OutcomeCreated, config, day)
	}
	assert.False(t, p.IsRepeatComplainer, "older complaints fall out of the window")
	assert.Equal(t, models.TrendImproving, p.SentimentTrend)
}
