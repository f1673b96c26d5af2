// Package ingest orchestrates incremental sync runs: it pulls batches from a
// channel adapter, resolves them against the store by identity key and
// advances the cursor only after the batch commits.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/adapters"
	"github.com/Ramsey-B/thistle/pkg/drafting"
	"github.com/Ramsey-B/thistle/pkg/linking"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/profiles"
	"github.com/Ramsey-B/thistle/pkg/status"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// Blocker remembers source backpressure per triple.
type Blocker interface {
	BlockFor(ctx context.Context, key string, d time.Duration) error
	IsBlocked(ctx context.Context, key string) (bool, time.Duration, error)
}

// Components are the collaborators of an Ingestor. Drafter and Publisher are optional.
type Components struct {
	Store      Store
	Registry   *adapters.Registry
	Resolver   *Resolver
	Linker     *linking.Linker
	Aggregator *profiles.Aggregator
	Blocker    Blocker
	Drafter    drafting.Drafter
	Publisher  ChangePublisher
}

type Ingestor struct {
	Components
	config Config
	logger ectologger.Logger
	now    func() time.Time
}

func NewIngestor(components Components, config Config, logger ectologger.Logger) *Ingestor {
	return &Ingestor{Components: components, config: config.withDefaults(), logger: logger, now: time.Now}
}

type batchResult struct {
	created, updated, skipped, invalid int
	linkActions                        map[string]int
	changes                            []models.InteractionChange
	drafts                             []*models.Interaction
	// position is the Position of the last record processed, valid or not.
	position string
}

// Run drains the adapter for key, adding counts to run. It returns the
// run-level error, if any; progress committed before the error is kept.
func (g *Ingestor) Run(ctx context.Context, key models.SyncKey, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "Ingestor.Run")
	defer span.End()

	log := g.logger.WithContext(ctx).WithField("sync_key", key.String())

	adapter, err := g.Registry.Get(key.Marketplace, key.Channel)
	if err != nil {
		return &PermanentSourceError{Err: err}
	}

	stored, err := g.Store.LoadCursor(ctx, key)
	if err != nil {
		return &CommitFailure{Err: err}
	}
	var cursor *string
	if stored != nil {
		cursor = models.Ptr(stored.Cursor)
		if run.CursorBefore == nil {
			run.CursorBefore = models.Ptr(stored.Cursor)
		}
	} else {
		log.Info("No cursor stored, starting full backfill")
	}

	rules, err := g.Store.ListActiveSLARules(ctx, key.SellerID)
	if err != nil {
		return &CommitFailure{Err: err}
	}
	if len(rules) == 0 {
		log.WithError(&ConfigurationError{Reason: "no active SLA rules"}).Debug("Falling back to default SLA")
	}

	softDeadline := g.now().Add(g.config.SoftBudget)

	for batch := 0; batch < g.config.MaxBatches; batch++ {
		if batch > 0 && g.now().After(softDeadline) {
			log.Infof("Soft budget of %s reached after %d batches, stopping", g.config.SoftBudget, batch)
			return nil
		}

		result, err := adapter.Fetch(ctx, adapters.FetchRequest{Key: key, Cursor: cursor, Limit: g.config.BatchSize})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.WithError(err).Warn("Adapter fetch failed")
			return sourceError(err)
		}
		if result.Status == adapters.StatusError {
			return &TransientSourceError{Err: errors.New("adapter reported an error status")}
		}

		run.Batches++
		run.Fetched += len(result.Records)

		br, err := g.processBatch(ctx, key, result.Records, rules)
		if err != nil {
			log.WithError(err).Error("Batch commit failed, cursor not advanced")
			return err
		}

		run.Created += br.created
		run.Updated += br.updated
		run.Skipped += br.skipped
		run.Errors += br.invalid
		for action, n := range br.linkActions {
			metrics.RecordLinkUpdates(action, n)
		}

		next := nextCursor(result, br.position)
		if next != nil && (cursor == nil || *next != *cursor) {
			saved, err := g.saveCursor(ctx, key, cursor, *next)
			if err != nil {
				return err
			}
			if saved {
				cursor = next
				run.CursorAfter = models.Ptr(*next)
			}
		}

		g.publish(ctx, br.changes)
		g.draft(ctx, br.drafts, run)

		if result.Status == adapters.StatusRateLimited {
			run.RateLimited = true
			if g.Blocker != nil && result.RetryAfter > 0 {
				if err := g.Blocker.BlockFor(ctx, key.String(), result.RetryAfter); err != nil {
					log.WithError(err).Warn("Failed to record rate limit block")
				}
			}
			log.WithField("retry_after", result.RetryAfter.String()).Info("Source rate limited, stopping run")
			return nil
		}

		if !result.HasMore || len(result.Records) == 0 {
			return nil
		}
		if next == nil {
			log.Warn("Source reported more data without a new cursor, stopping run")
			return nil
		}
	}

	log.Warnf("Run stopped after %d batches", g.config.MaxBatches)
	return nil
}

// nextCursor prefers the adapter's cursor, then the last record's position.
func nextCursor(result *adapters.FetchResult, position string) *string {
	if result.NextCursor != nil && *result.NextCursor != "" {
		return result.NextCursor
	}
	if position != "" {
		return &position
	}
	return nil
}

// saveCursor persists next after its batch committed. A value that orders
// before the current cursor is not saved.
func (g *Ingestor) saveCursor(ctx context.Context, key models.SyncKey, current *string, next string) (bool, error) {
	if current != nil {
		if cmp, ok := models.CompareCursors(next, *current); ok && cmp < 0 {
			g.logger.WithContext(ctx).WithFields(map[string]any{
				"sync_key": key.String(),
				"current":  *current,
				"next":     next,
			}).Warn("Refusing to move cursor backwards")
			return false, nil
		}
	}

	err := g.Store.SaveCursor(ctx, &models.SyncCursor{
		SellerID:    key.SellerID,
		Marketplace: key.Marketplace,
		Channel:     key.Channel,
		Cursor:      next,
		UpdatedAt:   g.now(),
	})
	if err != nil {
		return false, &CommitFailure{Err: err}
	}
	return true, nil
}

// processBatch applies the records in source order inside one transaction.
// Every mutation of an interaction (upsert, events, links, profile) commits together.
func (g *Ingestor) processBatch(ctx context.Context, key models.SyncKey, records []adapters.RawRecord, rules []models.SLARule) (*batchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Ingestor.processBatch")
	defer span.End()

	var br *batchResult
	err := g.Store.WithinTx(ctx, func(ctx context.Context) error {
		br = &batchResult{linkActions: map[string]int{}}
		now := g.now()

		for _, raw := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if raw.Position != "" {
				br.position = raw.Position
			}

			candidate, err := g.Resolver.Normalize(key, raw)
			if err != nil {
				var verr *ValidationError
				if errors.As(err, &verr) {
					br.invalid++
					g.logger.WithContext(ctx).WithError(err).WithField("sync_key", key.String()).Warn("Skipping invalid record")
					continue
				}
				return err
			}

			res, err := g.Resolver.Resolve(ctx, candidate, rules, now)
			if err != nil {
				return err
			}
			if res.Outcome == OutcomeSkipped {
				br.skipped++
				continue
			}

			links, err := g.Linker.Refresh(ctx, res.Interaction)
			if err != nil {
				return err
			}
			br.linkActions["created"] += len(links.Created)
			br.linkActions["updated"] += len(links.Updated)
			br.linkActions["removed"] += len(links.Removed)

			fold := profiles.OutcomeUpdated
			if res.Outcome == OutcomeCreated || res.NewCustomer {
				fold = profiles.OutcomeCreated
			}
			if _, err := g.Aggregator.Apply(ctx, res.Interaction, fold); err != nil {
				return err
			}

			change := models.InteractionChange{Type: models.ChangeUpdated, Interaction: res.Interaction}
			if res.Outcome == OutcomeCreated {
				br.created++
				change.Type = models.ChangeCreated
				if res.Interaction.NeedsResponse {
					br.drafts = append(br.drafts, res.Interaction)
				}
			} else {
				br.updated++
			}
			br.changes = append(br.changes, change)
		}
		return nil
	})
	if err != nil {
		return nil, &CommitFailure{Err: err}
	}
	return br, nil
}

func (g *Ingestor) publish(ctx context.Context, changes []models.InteractionChange) {
	if g.Publisher == nil {
		return
	}
	for _, change := range changes {
		if err := g.Publisher.PublishInteractionChange(ctx, change); err != nil {
			g.logger.WithContext(ctx).WithError(err).WithField("interaction_id", change.Interaction.ID).Warn("Failed to publish interaction change")
		}
	}
}

// draft asks for suggested replies to newly created interactions. Results are
// appended as events in their own transaction; failures never fail the run.
func (g *Ingestor) draft(ctx context.Context, created []*models.Interaction, run *models.SyncRun) {
	if !g.config.DraftingEnabled || g.Drafter == nil {
		return
	}

	for _, i := range created {
		if ctx.Err() != nil {
			return
		}
		run.DraftsRequested++

		events, err := g.Store.ListEvents(ctx, i.ID)
		if err != nil {
			g.logger.WithContext(ctx).WithError(err).Warn("Failed to load history for drafting")
		}

		var event models.InteractionEvent
		text, err := g.Drafter.Draft(ctx, drafting.Request{Interaction: i, Messages: status.MessagesFromEvents(events)})
		if err != nil {
			run.DraftsFailed++
			metrics.RecordDraft(i.Channel, "failed")
			g.logger.WithContext(ctx).WithError(err).WithField("interaction_id", i.ID).Warn("Draft generation failed")
			event = models.NewEvent(i, models.EventDraftFailed, map[string]any{"error": err.Error()}, g.now())
		} else {
			metrics.RecordDraft(i.Channel, "generated")
			event = models.NewEvent(i, models.EventDraftGenerated, map[string]any{"text": text}, g.now())
		}

		if err := g.Store.AppendEvents(ctx, event); err != nil {
			g.logger.WithContext(ctx).WithError(err).WithField("interaction_id", i.ID).Warn("Failed to record draft event")
		}
	}
}
