package memstore

import (
	"context"

	"github.com/Ramsey-B/thistle/pkg/models"
)

func (s *Store) GetProfile(ctx context.Context, key models.ProfileKey) (*models.CustomerProfile, error) {
	var out *models.CustomerProfile
	s.read(ctx, func(st *state) {
		out = st.profiles[key].Clone()
	})
	return out, nil
}

func (s *Store) SaveProfile(ctx context.Context, profile *models.CustomerProfile) error {
	return s.write(ctx, func(st *state) error {
		st.profiles[profile.Key()] = profile.Clone()
		return nil
	})
}
