package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/google/uuid"
)

func (s *Store) GetInteraction(ctx context.Context, id uuid.UUID) (*models.Interaction, error) {
	var out *models.Interaction
	s.read(ctx, func(st *state) {
		out = st.interactions[id].Clone()
	})
	return out, nil
}

func (s *Store) GetInteractionByIdentity(ctx context.Context, key models.IdentityKey) (*models.Interaction, error) {
	var out *models.Interaction
	s.read(ctx, func(st *state) {
		if id, ok := st.identities[key]; ok {
			out = st.interactions[id].Clone()
		}
	})
	return out, nil
}

func (s *Store) CreateInteraction(ctx context.Context, i *models.Interaction) error {
	return s.write(ctx, func(st *state) error {
		key := i.Identity()
		if _, exists := st.identities[key]; exists {
			return ErrDuplicateIdentity
		}
		st.identities[key] = i.ID
		st.interactions[i.ID] = i.Clone()
		return nil
	})
}

func (s *Store) UpdateInteraction(ctx context.Context, i *models.Interaction) error {
	return s.write(ctx, func(st *state) error {
		existing, ok := st.interactions[i.ID]
		if !ok {
			return ErrNotFound
		}
		updated := i.Clone()
		// identity and creation time are immutable
		updated.SellerID = existing.SellerID
		updated.Marketplace = existing.Marketplace
		updated.Channel = existing.Channel
		updated.ExternalID = existing.ExternalID
		updated.CreatedAt = existing.CreatedAt
		st.interactions[i.ID] = updated
		return nil
	})
}

// ListInteractionsInWindow returns the seller's interactions whose reference time
// falls in [from, to], most recent first.
func (s *Store) ListInteractionsInWindow(ctx context.Context, sellerID int64, from, to time.Time, limit int) ([]models.Interaction, error) {
	var out []models.Interaction
	s.read(ctx, func(st *state) {
		for _, i := range st.interactions {
			if i.SellerID != sellerID {
				continue
			}
			ref := i.ReferenceTime()
			if ref.Before(from) || ref.After(to) {
				continue
			}
			out = append(out, *i.Clone())
		}
	})
	sort.Slice(out, func(a, b int) bool {
		ra, rb := out[a].ReferenceTime(), out[b].ReferenceTime()
		if !ra.Equal(rb) {
			return ra.After(rb)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Interaction, error) {
	var out []models.Interaction
	s.read(ctx, func(st *state) {
		for _, i := range st.interactions {
			if i.NeedsResponse && i.EscalatedAt == nil && i.SLADeadlineAt != nil && i.SLADeadlineAt.Before(now) {
				out = append(out, *i.Clone())
			}
		}
	})
	sort.Slice(out, func(a, b int) bool {
		return out[a].SLADeadlineAt.Before(*out[b].SLADeadlineAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListSellerInteractions pages through a seller's interactions ordered by creation.
func (s *Store) ListSellerInteractions(ctx context.Context, sellerID int64, offset, limit int) ([]models.Interaction, error) {
	var out []models.Interaction
	s.read(ctx, func(st *state) {
		for _, i := range st.interactions {
			if i.SellerID == sellerID {
				out = append(out, *i.Clone())
			}
		}
	})
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountInteractions(ctx context.Context) int {
	n := 0
	s.read(ctx, func(st *state) {
		n = len(st.interactions)
	})
	return n
}

func (s *Store) ListEvents(ctx context.Context, interactionID uuid.UUID) ([]models.InteractionEvent, error) {
	var out []models.InteractionEvent
	s.read(ctx, func(st *state) {
		out = append(out, st.events[interactionID]...)
	})
	return out, nil
}

func (s *Store) AppendEvents(ctx context.Context, events ...models.InteractionEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.write(ctx, func(st *state) error {
		for _, e := range events {
			if _, ok := st.interactions[e.InteractionID]; !ok {
				return ErrNotFound
			}
			st.events[e.InteractionID] = append(st.events[e.InteractionID], e)
		}
		return nil
	})
}
