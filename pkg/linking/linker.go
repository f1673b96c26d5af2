package linking

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store is the slice of the transactional store the linker needs.
type Store interface {
	GetInteraction(ctx context.Context, id uuid.UUID) (*models.Interaction, error)
	ListInteractionsInWindow(ctx context.Context, sellerID int64, from, to time.Time, limit int) ([]models.Interaction, error)
	GetLink(ctx context.Context, pair models.PairKey) (*models.LinkCandidate, error)
	ListLinks(ctx context.Context, interactionID uuid.UUID) ([]models.LinkCandidate, error)
	UpsertLink(ctx context.Context, link *models.LinkCandidate) error
	DeleteLink(ctx context.Context, pair models.PairKey) error
	AppendEvents(ctx context.Context, events ...models.InteractionEvent) error
}

// RefreshResult counts the link changes made for one interaction.
type RefreshResult struct {
	Created []models.PairKey
	Updated []models.PairKey
	Removed []models.PairKey
}

func (r *RefreshResult) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Removed) > 0
}

type Linker struct {
	store  Store
	config Config
	logger ectologger.Logger
	now    func() time.Time
}

func NewLinker(store Store, config Config, logger ectologger.Logger) *Linker {
	defaults := DefaultConfig()
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = defaults.MaxCandidates
	}
	if config.Weights == (Weights{}) {
		config.Weights = defaults.Weights
	}
	return &Linker{store: store, config: config, logger: logger, now: time.Now}
}

// Refresh re-scores every partner of i: interactions of the same seller inside
// the time window plus partners it is already linked to. It must run inside the
// caller's transaction so link changes commit with the interaction.
func (l *Linker) Refresh(ctx context.Context, i *models.Interaction) (*RefreshResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Linker.Refresh")
	defer span.End()

	ref := i.ReferenceTime()
	nearby, err := l.store.ListInteractionsInWindow(ctx, i.SellerID, ref.Add(-l.config.Window), ref.Add(l.config.Window), l.config.MaxCandidates+1)
	if err != nil {
		return nil, err
	}

	partners := map[uuid.UUID]*models.Interaction{}
	for idx := range nearby {
		if nearby[idx].ID != i.ID {
			partners[nearby[idx].ID] = &nearby[idx]
		}
	}

	existing, err := l.store.ListLinks(ctx, i.ID)
	if err != nil {
		return nil, err
	}
	for _, link := range existing {
		other := link.Pair().Other(i.ID)
		if _, ok := partners[other]; ok {
			continue
		}
		partner, err := l.store.GetInteraction(ctx, other)
		if err != nil {
			return nil, err
		}
		if partner == nil {
			continue
		}
		partners[other] = partner
	}

	ids := make([]uuid.UUID, 0, len(partners))
	for id := range partners {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	result := &RefreshResult{}
	now := l.now()
	for _, id := range ids {
		if err := l.refreshPair(ctx, i, partners[id], now, result); err != nil {
			return nil, err
		}
	}

	if result.Changed() {
		event := models.NewEvent(i, models.EventLinkUpdated, map[string]any{
			"created": pairStrings(i.ID, result.Created),
			"updated": pairStrings(i.ID, result.Updated),
			"removed": pairStrings(i.ID, result.Removed),
		}, now)
		if err := l.store.AppendEvents(ctx, event); err != nil {
			return nil, err
		}
		l.logger.WithContext(ctx).WithFields(map[string]any{
			"interaction_id": i.ID,
			"created":        len(result.Created),
			"updated":        len(result.Updated),
			"removed":        len(result.Removed),
		}).Debug("Refreshed link candidates")
	}

	return result, nil
}

func (l *Linker) refreshPair(ctx context.Context, i, partner *models.Interaction, now time.Time, result *RefreshResult) error {
	if partner.SellerID != i.SellerID {
		return nil
	}

	pair := models.NewPairKey(i.ID, partner.ID)
	// score in canonical order so both endpoints produce identical evidence
	a, b := i, partner
	if pair.A != i.ID {
		a, b = partner, i
	}
	ev := Score(a, b, l.config)

	current, err := l.store.GetLink(ctx, pair)
	if err != nil {
		return err
	}

	if !ev.Retained(l.config) {
		if current == nil {
			return nil
		}
		if err := l.store.DeleteLink(ctx, pair); err != nil {
			return err
		}
		result.Removed = append(result.Removed, pair)
		return nil
	}

	if current != nil && current.Confidence == ev.Confidence && slices.Equal([]string(current.MatchedOn), ev.MatchedOn) {
		return nil
	}

	link := &models.LinkCandidate{
		ID:             uuid.New(),
		SellerID:       i.SellerID,
		InteractionAID: pair.A,
		InteractionBID: pair.B,
		Confidence:     ev.Confidence,
		MatchedOn:      pq.StringArray(ev.MatchedOn),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if current != nil {
		link.ID = current.ID
		link.CreatedAt = current.CreatedAt
	}
	if err := l.store.UpsertLink(ctx, link); err != nil {
		return err
	}

	if current == nil {
		result.Created = append(result.Created, pair)
	} else {
		result.Updated = append(result.Updated, pair)
	}
	return nil
}

func pairStrings(self uuid.UUID, pairs []models.PairKey) []string {
	return ectolinq.Map(pairs, func(p models.PairKey) string {
		return p.Other(self).String()
	})
}
