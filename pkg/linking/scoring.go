// Package linking scores and maintains cross-channel link candidates between
// interactions of the same seller.
package linking

import (
	"math"
	"strings"
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
)

const (
	EvidenceCustomer = "customer_id"
	EvidenceOrder    = "order_id"
	EvidenceProduct  = "product_id"
	EvidenceTemporal = "temporal"
)

type Weights struct {
	Customer float64
	Order    float64
	Product  float64
	// Temporal is the weight at zero distance; it decays linearly to 0 at the window edge.
	Temporal float64
}

type Config struct {
	Weights       Weights
	MinConfidence float64
	Window        time.Duration
	MaxCandidates int
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Customer: 0.45,
			Order:    0.45,
			Product:  0.25,
			Temporal: 0.10,
		},
		MinConfidence: 0.5,
		Window:        72 * time.Hour,
		MaxCandidates: 200,
	}
}

// Evidence is the scored comparison of one interaction pair.
type Evidence struct {
	Confidence float64
	MatchedOn  []string
}

// Score compares two interactions. It is symmetric: Score(a, b, c) == Score(b, a, c).
func Score(a, b *models.Interaction, config Config) Evidence {
	var ev Evidence
	w := config.Weights

	if sameKey(a.CustomerID, b.CustomerID) {
		ev.add(EvidenceCustomer, w.Customer)
	}
	if sameKey(a.OrderID, b.OrderID) {
		ev.add(EvidenceOrder, w.Order)
	}
	if sameKey(a.ProductID, b.ProductID) {
		ev.add(EvidenceProduct, w.Product)
	}
	if p := proximity(a.ReferenceTime(), b.ReferenceTime(), config.Window); p > 0 {
		ev.add(EvidenceTemporal, w.Temporal*p)
	}

	ev.Confidence = math.Round(clamp(ev.Confidence)*10000) / 10000
	return ev
}

// Retained reports whether the evidence clears the confidence threshold.
func (e Evidence) Retained(config Config) bool {
	return e.Confidence > config.MinConfidence
}

func (e *Evidence) add(kind string, weight float64) {
	if weight <= 0 {
		return
	}
	e.Confidence += weight
	e.MatchedOn = append(e.MatchedOn, kind)
}

func sameKey(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	x, y := strings.TrimSpace(*a), strings.TrimSpace(*b)
	return x != "" && strings.EqualFold(x, y)
}

// proximity is 1 for simultaneous events, decaying linearly to 0 at the window edge.
func proximity(a, b time.Time, window time.Duration) float64 {
	if window <= 0 || a.IsZero() || b.IsZero() {
		return 0
	}
	diff := math.Abs(float64(a.Sub(b)))
	if diff >= float64(window) {
		return 0
	}
	return 1 - diff/float64(window)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
