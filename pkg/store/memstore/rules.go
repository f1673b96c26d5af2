package memstore

import (
	"context"
	"sort"

	"github.com/Ramsey-B/thistle/pkg/models"
)

func (s *Store) SaveSLARule(ctx context.Context, rule *models.SLARule) error {
	return s.write(ctx, func(st *state) error {
		if rule.ID == 0 {
			for id := range st.rules {
				if id > rule.ID {
					rule.ID = id
				}
			}
			rule.ID++
		}
		st.rules[rule.ID] = *rule
		return nil
	})
}

// ListActiveSLARules returns active rules in id order; callers apply evaluation order.
func (s *Store) ListActiveSLARules(ctx context.Context, sellerID int64) ([]models.SLARule, error) {
	var out []models.SLARule
	s.read(ctx, func(st *state) {
		for _, r := range st.rules {
			if r.SellerID == sellerID && r.IsActive {
				out = append(out, r)
			}
		}
	})
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}
