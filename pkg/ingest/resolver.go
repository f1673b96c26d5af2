package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ramsey-B/thistle/pkg/adapters"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/sla"
	"github.com/Ramsey-B/thistle/pkg/status"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// answerExternalID names the synthetic message recording a marketplace answer
// to a review or question.
const answerExternalID = "answer"

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// Candidate is a normalized raw record, not yet matched against the store.
type Candidate struct {
	Interaction *models.Interaction
	Messages    []models.Message
	Answered    bool
	AnswerText  string
}

// Resolution is what the resolver did with one candidate.
type Resolution struct {
	Outcome     Outcome
	Interaction *models.Interaction
	// NewCustomer is set when this write attached the interaction to a customer
	// it was not attached to before.
	NewCustomer bool
	Changes     []string
}

type Resolver struct {
	store    Store
	sla      *sla.Engine
	validate *validator.Validate
	logger   ectologger.Logger
}

func NewResolver(store Store, engine *sla.Engine, logger ectologger.Logger) *Resolver {
	return &Resolver{
		store:    store,
		sla:      engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Normalize validates raw and maps it onto the unified interaction shape.
func (r *Resolver) Normalize(key models.SyncKey, raw adapters.RawRecord) (*Candidate, error) {
	raw.ExternalID = strings.TrimSpace(raw.ExternalID)
	if raw.ParseError != nil {
		return nil, &ValidationError{ExternalID: raw.ExternalID, Err: raw.ParseError}
	}
	if err := r.validate.Struct(raw); err != nil {
		return nil, &ValidationError{ExternalID: raw.ExternalID, Err: validationMessage(err)}
	}

	i := &models.Interaction{
		SellerID:       key.SellerID,
		Marketplace:    key.Marketplace,
		Channel:        key.Channel,
		ExternalID:     raw.ExternalID,
		CustomerID:     optional(raw.CustomerID),
		OrderID:        optional(raw.OrderID),
		ProductID:      optional(raw.ProductID),
		Subject:        strings.TrimSpace(raw.Subject),
		Text:           raw.Text,
		SentimentScore: raw.SentimentScore,
		Source:         raw.Source,
		Priority:       models.PriorityNormal,
		Status:         models.StatusWaiting,
		NeedsResponse:  true,
	}
	if i.Source == "" {
		i.Source = models.SourceAPI
	}
	if raw.OccurredAt != nil && !raw.OccurredAt.IsZero() {
		i.OccurredAt = models.Ptr(raw.OccurredAt.UTC())
	}
	// Ratings only exist on reviews.
	if key.Channel == models.ChannelReview {
		i.Rating = raw.Rating
	}

	c := &Candidate{Interaction: i, Answered: raw.Answered, AnswerText: raw.AnswerText}
	seen := map[string]bool{}
	for _, m := range raw.Messages {
		if seen[m.ExternalID] {
			continue
		}
		seen[m.ExternalID] = true
		c.Messages = append(c.Messages, models.Message{
			ExternalID: m.ExternalID,
			Author:     m.Author,
			Text:       m.Text,
			SentAt:     m.SentAt.UTC(),
		})
	}
	if i.OccurredAt == nil && len(c.Messages) > 0 {
		first := c.Messages[0].SentAt
		for _, m := range c.Messages[1:] {
			if m.SentAt.Before(first) {
				first = m.SentAt
			}
		}
		i.OccurredAt = &first
	}
	return c, nil
}

// Resolve inserts or merges the candidate by identity key. It must run inside
// the batch transaction. Status and SLA are re-derived from the stored history
// with the same pure functions the repair path uses.
func (r *Resolver) Resolve(ctx context.Context, c *Candidate, rules []models.SLARule, now time.Time) (*Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "Resolver.Resolve")
	defer span.End()

	existing, err := r.store.GetInteractionByIdentity(ctx, c.Interaction.Identity())
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return r.create(ctx, c, rules, now)
	}
	return r.merge(ctx, existing, c, rules, now)
}

func (r *Resolver) create(ctx context.Context, c *Candidate, rules []models.SLARule, now time.Time) (*Resolution, error) {
	i := c.Interaction.Clone()
	i.ID = uuid.New()
	i.CreatedAt = now
	i.UpdatedAt = now

	events := r.newMessageEvents(i, c, nil, now)
	status.Apply(i, status.Recompute(i, events))

	assignment := r.sla.Evaluate(ctx, i, rules)
	sla.Apply(i, assignment)
	events = append(events, slaEvent(i, assignment, now))

	if err := r.store.CreateInteraction(ctx, i); err != nil {
		return nil, err
	}
	if err := r.store.AppendEvents(ctx, events...); err != nil {
		return nil, err
	}

	return &Resolution{Outcome: OutcomeCreated, Interaction: i, NewCustomer: i.CustomerID != nil}, nil
}

func (r *Resolver) merge(ctx context.Context, existing *models.Interaction, c *Candidate, rules []models.SLARule, now time.Time) (*Resolution, error) {
	history, err := r.store.ListEvents(ctx, existing.ID)
	if err != nil {
		return nil, err
	}

	i := existing.Clone()
	changes := mergeContent(i, c.Interaction)

	added := r.newMessageEvents(i, c, history, now)
	if len(added) > 0 {
		changes = append(changes, "messages")
	}
	events := append([]models.InteractionEvent(nil), added...)

	previous := i.Status
	if status.Apply(i, status.Recompute(i, append(history, added...))) {
		changes = append(changes, "status")
		if previous != i.Status {
			events = append(events, models.NewEvent(i, models.EventStatusChanged, map[string]any{
				"from": string(previous),
				"to":   string(i.Status),
			}, now))
		}
	}

	assignment := r.sla.Evaluate(ctx, i, rules)
	if sla.Apply(i, assignment) {
		changes = append(changes, "sla")
		events = append(events, slaEvent(i, assignment, now))
	}

	if len(changes) == 0 {
		return &Resolution{Outcome: OutcomeSkipped, Interaction: existing}, nil
	}

	i.UpdatedAt = now
	if err := r.store.UpdateInteraction(ctx, i); err != nil {
		return nil, err
	}
	if err := r.store.AppendEvents(ctx, events...); err != nil {
		return nil, err
	}

	return &Resolution{
		Outcome:     OutcomeUpdated,
		Interaction: i,
		NewCustomer: customerChanged(existing.CustomerID, i.CustomerID),
		Changes:     changes,
	}, nil
}

// newMessageEvents returns message events for messages not yet in history,
// plus the marketplace answer of a review or question.
func (r *Resolver) newMessageEvents(i *models.Interaction, c *Candidate, history []models.InteractionEvent, now time.Time) []models.InteractionEvent {
	known := map[string]bool{}
	sellerReplied := false
	for _, m := range status.MessagesFromEvents(history) {
		known[m.ExternalID] = true
		if m.Author == models.AuthorSeller || m.Author == models.AuthorSystem {
			sellerReplied = true
		}
	}

	var events []models.InteractionEvent
	for _, m := range c.Messages {
		if known[m.ExternalID] {
			continue
		}
		known[m.ExternalID] = true
		events = append(events, models.NewMessageEvent(i, m, now))
	}

	if i.Channel != models.ChannelChat && c.Answered && !sellerReplied && !known[answerExternalID] {
		events = append(events, models.NewMessageEvent(i, models.Message{
			ExternalID: answerExternalID,
			Author:     models.AuthorSeller,
			Text:       c.AnswerText,
			SentAt:     now,
		}, now))
	}
	return events
}

// mergeContent copies mutable fields from incoming onto i. Identity and audit
// fields are never touched. Missing incoming values keep what is stored.
func mergeContent(i, incoming *models.Interaction) []string {
	var changes []string

	mergeString := func(name string, dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changes = append(changes, name)
		}
	}
	mergeOptional := func(name string, dst **string, src *string) {
		if src != nil && (*dst == nil || **dst != *src) {
			*dst = models.Ptr(*src)
			changes = append(changes, name)
		}
	}

	mergeString("subject", &i.Subject, incoming.Subject)
	mergeString("text", &i.Text, incoming.Text)
	mergeOptional("customer_id", &i.CustomerID, incoming.CustomerID)
	mergeOptional("order_id", &i.OrderID, incoming.OrderID)
	mergeOptional("product_id", &i.ProductID, incoming.ProductID)

	if incoming.Rating != nil && (i.Rating == nil || *i.Rating != *incoming.Rating) {
		i.Rating = models.Ptr(*incoming.Rating)
		changes = append(changes, "rating")
	}
	if incoming.SentimentScore != nil && (i.SentimentScore == nil || *i.SentimentScore != *incoming.SentimentScore) {
		i.SentimentScore = models.Ptr(*incoming.SentimentScore)
		changes = append(changes, "sentiment_score")
	}
	if i.OccurredAt == nil && incoming.OccurredAt != nil {
		i.OccurredAt = models.Ptr(*incoming.OccurredAt)
		changes = append(changes, "occurred_at")
	}
	return changes
}

func customerChanged(before, after *string) bool {
	if after == nil {
		return false
	}
	return before == nil || *before != *after
}

func slaEvent(i *models.Interaction, a sla.Assignment, now time.Time) models.InteractionEvent {
	details := map[string]any{
		"priority":    string(a.Priority),
		"deadline_at": a.DeadlineAt.UTC().Format(time.RFC3339),
	}
	if a.RuleID != nil {
		details["rule_id"] = *a.RuleID
	}
	return models.NewEvent(i, models.EventSLAAssigned, details, now)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func validationMessage(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}
