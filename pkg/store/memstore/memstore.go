// Package memstore is an in-memory implementation of the interaction store.
// Transactions run against a private copy of the state that replaces the
// shared state only when the transaction function succeeds.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/google/uuid"
)

var (
	ErrDuplicateIdentity = errors.New("interaction identity already exists")
	ErrNotFound          = errors.New("record not found")
)

type txKey struct{}

type state struct {
	interactions map[uuid.UUID]*models.Interaction
	identities   map[models.IdentityKey]uuid.UUID
	events       map[uuid.UUID][]models.InteractionEvent
	cursors      map[models.SyncKey]models.SyncCursor
	rules        map[int64]models.SLARule
	profiles     map[models.ProfileKey]*models.CustomerProfile
	links        map[models.PairKey]models.LinkCandidate
	runs         []models.SyncRun
	connections  map[models.SyncKey]models.SyncConnection
}

func newState() *state {
	return &state{
		interactions: map[uuid.UUID]*models.Interaction{},
		identities:   map[models.IdentityKey]uuid.UUID{},
		events:       map[uuid.UUID][]models.InteractionEvent{},
		cursors:      map[models.SyncKey]models.SyncCursor{},
		rules:        map[int64]models.SLARule{},
		profiles:     map[models.ProfileKey]*models.CustomerProfile{},
		links:        map[models.PairKey]models.LinkCandidate{},
		connections:  map[models.SyncKey]models.SyncConnection{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, i := range s.interactions {
		c.interactions[id] = i.Clone()
	}
	for k, v := range s.identities {
		c.identities[k] = v
	}
	for id, events := range s.events {
		c.events[id] = append([]models.InteractionEvent(nil), events...)
	}
	for k, v := range s.cursors {
		c.cursors[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, p := range s.profiles {
		c.profiles[k] = p.Clone()
	}
	for k, l := range s.links {
		l.MatchedOn = append([]string(nil), l.MatchedOn...)
		c.links[k] = l
	}
	c.runs = append([]models.SyncRun(nil), s.runs...)
	for k, v := range s.connections {
		c.connections[k] = v
	}
	return c
}

type Store struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *state

	// BeforeCommit, when set, runs before a transaction is published.
	// Returning an error aborts the transaction.
	BeforeCommit func(ctx context.Context) error
}

func New() *Store {
	return &Store{state: newState()}
}

// WithinTx runs fn against a private copy of the store. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	txCtx := context.WithValue(ctx, txKey{}, working)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.BeforeCommit != nil {
		if err := s.BeforeCommit(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// read runs fn against the transaction state carried by ctx, or the committed state.
func (s *Store) read(ctx context.Context, fn func(st *state)) {
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		fn(st)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// write runs fn inside the caller's transaction or an implicit one.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*state))
	})
}
