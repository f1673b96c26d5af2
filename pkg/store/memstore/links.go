package memstore

import (
	"context"
	"sort"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/google/uuid"
)

func (s *Store) GetLink(ctx context.Context, pair models.PairKey) (*models.LinkCandidate, error) {
	var out *models.LinkCandidate
	s.read(ctx, func(st *state) {
		if l, ok := st.links[pair]; ok {
			l.MatchedOn = append([]string(nil), l.MatchedOn...)
			out = &l
		}
	})
	return out, nil
}

func (s *Store) UpsertLink(ctx context.Context, link *models.LinkCandidate) error {
	return s.write(ctx, func(st *state) error {
		pair := link.Pair()
		if existing, ok := st.links[pair]; ok {
			link.ID = existing.ID
			link.CreatedAt = existing.CreatedAt
		}
		stored := *link
		stored.MatchedOn = append([]string(nil), link.MatchedOn...)
		st.links[pair] = stored
		return nil
	})
}

func (s *Store) DeleteLink(ctx context.Context, pair models.PairKey) error {
	return s.write(ctx, func(st *state) error {
		delete(st.links, pair)
		return nil
	})
}

// ListLinks returns every candidate touching the interaction, strongest first.
func (s *Store) ListLinks(ctx context.Context, interactionID uuid.UUID) ([]models.LinkCandidate, error) {
	var out []models.LinkCandidate
	s.read(ctx, func(st *state) {
		for _, l := range st.links {
			if l.InteractionAID == interactionID || l.InteractionBID == interactionID {
				l.MatchedOn = append([]string(nil), l.MatchedOn...)
				out = append(out, l)
			}
		}
	})
	sort.Slice(out, func(a, b int) bool {
		if out[a].Confidence != out[b].Confidence {
			return out[a].Confidence > out[b].Confidence
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return out, nil
}
