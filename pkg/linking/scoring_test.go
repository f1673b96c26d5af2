package linking

import (
	"testing"
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var base = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func interaction(channel models.Channel, customer, order, product string, at time.Time) *models.Interaction {
	i := &models.Interaction{
		ID:          uuid.New(),
		SellerID:    7,
		Marketplace: "wb",
		Channel:     channel,
		ExternalID:  uuid.NewString(),
		OccurredAt:  models.Ptr(at),
		CreatedAt:   at,
	}
	if customer != "" {
		i.CustomerID = models.Ptr(customer)
	}
	if order != "" {
		i.OrderID = models.Ptr(order)
	}
	if product != "" {
		i.ProductID = models.Ptr(product)
	}
	return i
}

func TestScore(t *testing.T) {
	config := DefaultConfig()

	tests := []struct {
		name           string
		a, b           *models.Interaction
		wantConfidence float64
		wantMatchedOn  []string
		wantRetained   bool
	}{
		{
			name:           "customer and order at the same moment clamps to one",
			a:              interaction(models.ChannelChat, "c1", "o1", "p1", base),
			b:              interaction(models.ChannelReview, "c1", "o1", "p1", base),
			wantConfidence: 1,
			wantMatchedOn:  []string{EvidenceCustomer, EvidenceOrder, EvidenceProduct, EvidenceTemporal},
			wantRetained:   true,
		},
		{
			name:           "customer with half window decay",
			a:              interaction(models.ChannelChat, "c1", "", "", base),
			b:              interaction(models.ChannelQuestion, "C1 ", "", "", base.Add(36*time.Hour)),
			wantConfidence: 0.5,
			wantMatchedOn:  []string{EvidenceCustomer, EvidenceTemporal},
			wantRetained:   false,
		},
		{
			name:           "order and product outside window",
			a:              interaction(models.ChannelChat, "", "o9", "p9", base),
			b:              interaction(models.ChannelReview, "", "o9", "p9", base.Add(100*time.Hour)),
			wantConfidence: 0.7,
			wantMatchedOn:  []string{EvidenceOrder, EvidenceProduct},
			wantRetained:   true,
		},
		{
			name:           "temporal only",
			a:              interaction(models.ChannelChat, "c1", "", "", base),
			b:              interaction(models.ChannelChat, "c2", "", "", base),
			wantConfidence: 0.1,
			wantMatchedOn:  []string{EvidenceTemporal},
			wantRetained:   false,
		},
		{
			name:           "blank keys never match",
			a:              interaction(models.ChannelChat, " ", "", "", base),
			b:              interaction(models.ChannelChat, " ", "", "", base.Add(72*time.Hour)),
			wantConfidence: 0,
			wantRetained:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.a, tt.b, config)
			assert.InDelta(t, tt.wantConfidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.wantMatchedOn, got.MatchedOn)
			assert.Equal(t, tt.wantRetained, got.Retained(config))

			reverse := Score(tt.b, tt.a, config)
			assert.Equal(t, got, reverse)
		})
	}
}
