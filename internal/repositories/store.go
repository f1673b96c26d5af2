package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// Store composes the table repositories into the transactional store the
// ingest, sla, linking, profiles, synchealth and scheduler packages consume.
type Store struct {
	*InteractionRepository
	*EventRepository
	*SLARuleRepository
	*SyncCursorRepository
	*CustomerProfileRepository
	*LinkCandidateRepository
	*SyncRunRepository
	*ConnectionRepository

	db database.DB
}

func NewStore(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		InteractionRepository:     NewInteractionRepository(db, logger),
		EventRepository:           NewEventRepository(db, logger),
		SLARuleRepository:         NewSLARuleRepository(db, logger),
		SyncCursorRepository:      NewSyncCursorRepository(db, logger),
		CustomerProfileRepository: NewCustomerProfileRepository(db, logger),
		LinkCandidateRepository:   NewLinkCandidateRepository(db, logger),
		SyncRunRepository:         NewSyncRunRepository(db, logger),
		ConnectionRepository:      NewConnectionRepository(db, logger),
		db:                        db,
	}
}

// WithinTx runs fn in one database transaction. Nested calls join the open
// transaction and every repository call made with the returned ctx uses it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "Store.WithinTx")
	defer span.End()

	return database.WithTx(ctx, s.db, fn)
}
