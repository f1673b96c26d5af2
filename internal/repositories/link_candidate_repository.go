package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const linkCandidatesTable = "link_candidates"

var linkCandidateStruct = database.NewStruct(new(models.LinkCandidate))

// LinkCandidateRepository stores scored interaction pairs keyed by (a, b) with a < b
type LinkCandidateRepository struct {
	*Repository
}

func NewLinkCandidateRepository(db database.DB, logger ectologger.Logger) *LinkCandidateRepository {
	return &LinkCandidateRepository{Repository: NewRepository(db, logger)}
}

func (r *LinkCandidateRepository) GetLink(ctx context.Context, pair models.PairKey) (*models.LinkCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "LinkCandidateRepository.GetLink")
	defer span.End()

	sb := linkCandidateStruct.SelectFrom(linkCandidatesTable)
	sb.Where(sb.Equal("interaction_a_id", pair.A), sb.Equal("interaction_b_id", pair.B))

	query, args := sb.Build()
	var link models.LinkCandidate
	err := r.q(ctx).GetContext(ctx, &link, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.internal(ctx, err, pairFields(pair), "failed to get link candidate")
	}
	return &link, nil
}

// UpsertLink keeps the id and created_at of an existing pair.
func (r *LinkCandidateRepository) UpsertLink(ctx context.Context, link *models.LinkCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "LinkCandidateRepository.UpsertLink")
	defer span.End()

	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	ib := linkCandidateStruct.InsertInto(linkCandidatesTable, link)
	ib.OnConflictUpdate([]string{"interaction_a_id", "interaction_b_id"}, "confidence", "matched_on", "updated_at")
	ib.SQL("RETURNING id, created_at")

	query, args := ib.Build()
	if err := r.q(ctx).GetContext(ctx, link, query, args...); err != nil {
		return r.internal(ctx, err, pairFields(link.Pair()), "failed to upsert link candidate")
	}
	return nil
}

func (r *LinkCandidateRepository) DeleteLink(ctx context.Context, pair models.PairKey) error {
	ctx, span := tracing.StartSpan(ctx, "LinkCandidateRepository.DeleteLink")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(linkCandidatesTable).
		Where(db.Equal("interaction_a_id", pair.A), db.Equal("interaction_b_id", pair.B))

	query, args := db.Build()
	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, pairFields(pair), "failed to delete link candidate")
	}
	return nil
}

// ListLinks returns every candidate touching the interaction, strongest first.
func (r *LinkCandidateRepository) ListLinks(ctx context.Context, interactionID uuid.UUID) ([]models.LinkCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "LinkCandidateRepository.ListLinks")
	defer span.End()

	sb := linkCandidateStruct.SelectFrom(linkCandidatesTable)
	sb.Where(sb.Or(sb.Equal("interaction_a_id", interactionID), sb.Equal("interaction_b_id", interactionID)))
	sb.OrderBy("confidence DESC", "id")

	query, args := sb.Build()
	var links []models.LinkCandidate
	if err := r.q(ctx).SelectContext(ctx, &links, query, args...); err != nil {
		return nil, r.internal(ctx, err, map[string]any{"interaction_id": interactionID}, "failed to list link candidates")
	}
	return links, nil
}

func pairFields(pair models.PairKey) map[string]any {
	return map[string]any{"interaction_a_id": pair.A, "interaction_b_id": pair.B}
}
