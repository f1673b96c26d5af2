// Package profiles maintains rolling per-customer aggregates.
package profiles

import (
	"time"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/google/uuid"
)

type Config struct {
	// SentimentWindow is the number of most recent sentiment scores retained.
	SentimentWindow int
	// TrendThreshold is the minimum difference between half means that counts as a trend.
	TrendThreshold float64
	// ComplaintThreshold is the number of negative retained scores that marks a repeat complainer.
	ComplaintThreshold int
	// VIPThreshold is the interaction count at which a customer becomes VIP.
	VIPThreshold int
}

func DefaultConfig() Config {
	return Config{
		SentimentWindow:    5,
		TrendThreshold:     0.2,
		ComplaintThreshold: 3,
		VIPThreshold:       10,
	}
}

// Outcome tells the fold whether the interaction is new to the store.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// NewProfile returns an empty profile for the interaction's customer.
func NewProfile(i *models.Interaction, now time.Time) *models.CustomerProfile {
	return &models.CustomerProfile{
		ID:               uuid.New(),
		SellerID:         i.SellerID,
		Marketplace:      i.Marketplace,
		CustomerID:       *i.CustomerID,
		RecentSentiments: database.NewJSONB([]float64{}),
		SentimentTrend:   models.TrendNeutral,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Fold applies one interaction to the profile in place. Only a created outcome
// contributes counts, rating and sentiment; updates advance the timeline only.
func Fold(p *models.CustomerProfile, i *models.Interaction, outcome Outcome, config Config, now time.Time) {
	at := i.ReferenceTime()
	if p.FirstInteractionAt == nil {
		p.FirstInteractionAt = models.Ptr(at)
	}
	if p.LastInteractionAt == nil || at.After(*p.LastInteractionAt) {
		p.LastInteractionAt = models.Ptr(at)
	}

	if outcome == OutcomeCreated {
		p.TotalInteractions++
		switch i.Channel {
		case models.ChannelReview:
			p.ReviewCount++
		case models.ChannelQuestion:
			p.QuestionCount++
		case models.ChannelChat:
			p.ChatCount++
		}

		if i.Channel == models.ChannelReview && i.Rating != nil {
			foldRating(p, float64(*i.Rating))
		}
		if score, ok := Sentiment(i); ok {
			p.RecentSentiments.Data = PushSentiment(p.RecentSentiments.Data, score, config.SentimentWindow)
		}
	}

	p.SentimentTrend = Trend(p.RecentSentiments.Data, config.TrendThreshold)
	p.IsRepeatComplainer = countNegative(p.RecentSentiments.Data) >= config.ComplaintThreshold
	p.IsVIP = config.VIPThreshold > 0 && p.TotalInteractions >= config.VIPThreshold
	p.UpdatedAt = now
}

func foldRating(p *models.CustomerProfile, rating float64) {
	p.RatingCount++
	if p.AverageRating == nil || p.RatingCount == 1 {
		p.AverageRating = models.Ptr(rating)
		return
	}
	avg := *p.AverageRating + (rating-*p.AverageRating)/float64(p.RatingCount)
	p.AverageRating = &avg
}

// Sentiment returns the interaction's score in [-1, 1]: the source score when
// present, otherwise one derived from a review rating.
func Sentiment(i *models.Interaction) (float64, bool) {
	if i.SentimentScore != nil {
		return *i.SentimentScore, true
	}
	if i.Channel == models.ChannelReview && i.Rating != nil {
		return (float64(*i.Rating) - 3) / 2, true
	}
	return 0, false
}

// PushSentiment appends score, dropping the oldest entries beyond window.
func PushSentiment(scores []float64, score float64, window int) []float64 {
	out := append(append([]float64(nil), scores...), score)
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

// Trend compares the mean of the most recent half of scores with the earlier
// half. For odd counts the middle score belongs to neither half.
func Trend(scores []float64, threshold float64) models.SentimentTrend {
	if len(scores) < 2 {
		return models.TrendNeutral
	}
	half := len(scores) / 2
	earlier := mean(scores[:half])
	recent := mean(scores[len(scores)-half:])

	switch {
	case recent-earlier > threshold:
		return models.TrendImproving
	case earlier-recent > threshold:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func countNegative(scores []float64) int {
	n := 0
	for _, s := range scores {
		if s < 0 {
			n++
		}
	}
	return n
}
