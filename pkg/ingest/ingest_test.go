package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/adapters"
	"github.com/Ramsey-B/thistle/pkg/drafting"
	"github.com/Ramsey-B/thistle/pkg/linking"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/profiles"
	"github.com/Ramsey-B/thistle/pkg/sla"
	"github.com/Ramsey-B/thistle/pkg/store/memstore"
)

var (
	chatKey   = models.SyncKey{SellerID: 7, Marketplace: "wb", Channel: models.ChannelChat}
	reviewKey = models.SyncKey{SellerID: 7, Marketplace: "wb", Channel: models.ChannelReview}
	t0        = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

// scriptedAdapter replays queued responses; the last one repeats.
type scriptedAdapter struct {
	mu        sync.Mutex
	calls     []adapters.FetchRequest
	responses []response
}

type response struct {
	result *adapters.FetchResult
	err    error
	// wait blocks the fetch until the context is done.
	wait bool
}

func (a *scriptedAdapter) Fetch(ctx context.Context, req adapters.FetchRequest) (*adapters.FetchResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	resp := a.responses[0]
	if len(a.responses) > 1 {
		a.responses = a.responses[1:]
	}
	a.mu.Unlock()

	if resp.wait {
		<-ctx.Done()
		return nil, adapters.Transient(ctx.Err(), 0)
	}
	return resp.result, resp.err
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type recordingPublisher struct {
	changes []models.InteractionChange
}

func (p *recordingPublisher) PublishInteractionChange(_ context.Context, change models.InteractionChange) error {
	p.changes = append(p.changes, change)
	return nil
}

type fakeDrafter struct {
	fail map[string]bool
}

func (d *fakeDrafter) Draft(_ context.Context, req drafting.Request) (string, error) {
	if d.fail[req.Interaction.ExternalID] {
		return "", errors.New("model unavailable")
	}
	return "Спасибо за обращение!", nil
}

type fixture struct {
	store     *memstore.Store
	registry  *adapters.Registry
	blocker   *LocalBlocker
	guard     *LocalGuard
	publisher *recordingPublisher
	ingestor  *Ingestor
	runner    *Runner
}

func newFixture(t *testing.T, config Config, drafter drafting.Drafter) *fixture {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := memstore.New()
	engine := sla.NewEngine(sla.DefaultConfig(), logger)

	f := &fixture{
		store:     store,
		registry:  adapters.NewRegistry(),
		blocker:   NewLocalBlocker(),
		guard:     NewLocalGuard(),
		publisher: &recordingPublisher{},
	}
	f.ingestor = NewIngestor(Components{
		Store:      store,
		Registry:   f.registry,
		Resolver:   NewResolver(store, engine, logger),
		Linker:     linking.NewLinker(store, linking.DefaultConfig(), logger),
		Aggregator: profiles.NewAggregator(store, profiles.DefaultConfig(), logger),
		Blocker:    f.blocker,
		Drafter:    drafter,
		Publisher:  f.publisher,
	}, config, logger)
	f.runner = NewRunner(f.ingestor, store, f.guard, f.blocker, config, logger)
	f.runner.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func (f *fixture) register(key models.SyncKey, responses ...response) *scriptedAdapter {
	a := &scriptedAdapter{responses: responses}
	f.registry.Register(key.Marketplace, key.Channel, a)
	return a
}

func (f *fixture) cursor(t *testing.T, key models.SyncKey) *string {
	t.Helper()
	c, err := f.store.LoadCursor(context.Background(), key)
	require.NoError(t, err)
	if c == nil {
		return nil
	}
	return &c.Cursor
}

func (f *fixture) interaction(t *testing.T, key models.SyncKey, externalID string) *models.Interaction {
	t.Helper()
	i, err := f.store.GetInteractionByIdentity(context.Background(), models.IdentityKey{
		SellerID: key.SellerID, Marketplace: key.Marketplace, Channel: key.Channel, ExternalID: externalID,
	})
	require.NoError(t, err)
	require.NotNil(t, i)
	return i
}

func chatRecord(id, position string, messages ...adapters.RawMessage) adapters.RawRecord {
	return adapters.RawRecord{ExternalID: id, Position: position, Messages: messages}
}

func message(id string, author models.AuthorRole, minute int) adapters.RawMessage {
	return adapters.RawMessage{ExternalID: id, Author: author, Text: string(author), SentAt: t0.Add(time.Duration(minute) * time.Minute)}
}

func ok(next string, hasMore bool, records ...adapters.RawRecord) response {
	r := &adapters.FetchResult{Status: adapters.StatusOK, Records: records, HasMore: hasMore}
	if next != "" {
		r.NextCursor = models.Ptr(next)
	}
	return response{result: r}
}

func TestTrigger_IdempotentOnRedelivery(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	batch := ok("", false,
		chatRecord("c1", "", message("m1", models.AuthorCustomer, 1)),
		chatRecord("c2", "", message("m2", models.AuthorCustomer, 2)),
	)
	f.register(chatKey, batch)

	first, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Skipped)

	assert.Equal(t, 2, f.store.CountInteractions(context.Background()))
	assert.Len(t, f.publisher.changes, 2)
}

func TestTrigger_CommitFailureKeepsCursor(t *testing.T) {
	f := newFixture(t, Config{MaxRetries: 2}, nil)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCursor(ctx, &models.SyncCursor{SellerID: 7, Marketplace: "wb", Channel: models.ChannelChat, Cursor: "205"}))

	adapter := f.register(chatKey, ok("301", false,
		chatRecord("c1", "300", message("m1", models.AuthorCustomer, 1)),
		chatRecord("c2", "301", message("m2", models.AuthorCustomer, 2)),
	))
	f.store.BeforeCommit = func(context.Context) error { return errors.New("disk full") }

	run, err := f.runner.Trigger(ctx, chatKey)
	require.NoError(t, err)

	require.NotNil(t, run.ErrorKind)
	assert.Equal(t, models.ErrorKindCommit, *run.ErrorKind)
	assert.Equal(t, 3, run.Attempts)
	assert.Equal(t, 3, adapter.callCount())
	assert.Nil(t, run.CursorAfter)

	f.store.BeforeCommit = nil
	assert.Equal(t, "205", *f.cursor(t, chatKey))
	assert.Equal(t, 0, f.store.CountInteractions(ctx))
	for _, req := range adapter.calls {
		assert.Equal(t, "205", *req.Cursor)
	}
}

func TestTrigger_PagesUntilDrained(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	adapter := f.register(chatKey,
		ok("2", true, chatRecord("c1", "", message("m1", models.AuthorCustomer, 1))),
		ok("3", false, chatRecord("c2", "", message("m2", models.AuthorCustomer, 2))),
	)

	run, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)

	assert.Nil(t, run.ErrorKind)
	assert.Equal(t, 2, run.Batches)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, "3", *f.cursor(t, chatKey))
	require.Len(t, adapter.calls, 2)
	assert.Nil(t, adapter.calls[0].Cursor)
	assert.Equal(t, "2", *adapter.calls[1].Cursor)
}

func TestTrigger_RateLimitedKeepsPartialProgress(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	adapter := f.register(chatKey, response{result: &adapters.FetchResult{
		Status:     adapters.StatusRateLimited,
		RetryAfter: time.Minute,
		Records: []adapters.RawRecord{
			chatRecord("c1", "10", message("m1", models.AuthorCustomer, 1)),
			chatRecord("c2", "11", message("m2", models.AuthorCustomer, 2)),
		},
	}})

	run, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	assert.True(t, run.RateLimited)
	assert.Nil(t, run.ErrorKind)
	assert.True(t, run.Succeeded())
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, "11", *f.cursor(t, chatKey))

	blocked, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	assert.True(t, blocked.RateLimited)
	assert.Equal(t, 0, blocked.Fetched)
	assert.Equal(t, 1, adapter.callCount())
}

func TestTrigger_ValidationErrorsSkipRecord(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.register(reviewKey, ok("", false,
		adapters.RawRecord{ExternalID: "  "},
		adapters.RawRecord{ExternalID: "r1", Rating: models.Ptr(9)},
		adapters.RawRecord{ExternalID: "r2", Rating: models.Ptr(2), Text: "пришел брак"},
	))

	run, err := f.runner.Trigger(context.Background(), reviewKey)
	require.NoError(t, err)
	assert.Nil(t, run.ErrorKind)
	assert.Equal(t, 2, run.Errors)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 3, run.Fetched)
}

func TestTrigger_SkipsBusyTriple(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	adapter := f.register(chatKey, ok("", false))

	release, err := f.guard.Acquire(context.Background(), chatKey.String(), time.Minute)
	require.NoError(t, err)

	run, err := f.runner.Trigger(context.Background(), chatKey)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, run)
	assert.Equal(t, 0, adapter.callCount())

	release()
	_, err = f.runner.Trigger(context.Background(), chatKey)
	assert.NoError(t, err)
}

func TestTrigger_Retries(t *testing.T) {
	t.Run("transient error is retried", func(t *testing.T) {
		f := newFixture(t, Config{MaxRetries: 2}, nil)
		f.register(chatKey,
			response{err: adapters.Transient(errors.New("connection reset"), 0)},
			ok("5", false, chatRecord("c1", "", message("m1", models.AuthorCustomer, 1))),
		)

		run, err := f.runner.Trigger(context.Background(), chatKey)
		require.NoError(t, err)
		assert.Nil(t, run.ErrorKind)
		assert.Equal(t, 2, run.Attempts)
		assert.Equal(t, 1, run.Created)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		f := newFixture(t, Config{MaxRetries: 2}, nil)
		f.register(chatKey, response{err: adapters.Permanent(errors.New("token revoked"), 401)})

		run, err := f.runner.Trigger(context.Background(), chatKey)
		require.NoError(t, err)
		require.NotNil(t, run.ErrorKind)
		assert.Equal(t, models.ErrorKindPermanent, *run.ErrorKind)
		assert.Equal(t, 1, run.Attempts)
		assert.Nil(t, f.cursor(t, chatKey))
	})

	t.Run("exhausted retries are recorded", func(t *testing.T) {
		f := newFixture(t, Config{MaxRetries: 1}, nil)
		f.register(chatKey, response{err: adapters.Transient(errors.New("502"), 502)})

		run, err := f.runner.Trigger(context.Background(), chatKey)
		require.NoError(t, err)
		require.NotNil(t, run.ErrorKind)
		assert.Equal(t, models.ErrorKindTransient, *run.ErrorKind)
		assert.Equal(t, 2, run.Attempts)

		runs, err := f.store.ListRecentRuns(context.Background(), 7, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
	})
}

func TestTrigger_HardBudgetAbortsRun(t *testing.T) {
	f := newFixture(t, Config{HardBudget: 20 * time.Millisecond}, nil)
	f.register(chatKey, response{wait: true})

	run, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	require.NotNil(t, run.ErrorKind)
	assert.Equal(t, models.ErrorKindTimeout, *run.ErrorKind)
	assert.Equal(t, 1, run.Attempts)
}

func TestTrigger_SoftBudgetStopsAfterCurrentBatch(t *testing.T) {
	f := newFixture(t, Config{SoftBudget: time.Nanosecond}, nil)
	f.register(chatKey,
		ok("2", true, chatRecord("c1", "", message("m1", models.AuthorCustomer, 1))),
		ok("3", false, chatRecord("c2", "", message("m2", models.AuthorCustomer, 2))),
	)

	run, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	assert.Nil(t, run.ErrorKind)
	assert.Equal(t, 1, run.Batches)
	assert.Equal(t, "2", *f.cursor(t, chatKey))
}

func TestTrigger_CursorNeverRegresses(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCursor(ctx, &models.SyncCursor{SellerID: 7, Marketplace: "wb", Channel: models.ChannelChat, Cursor: "500"}))
	f.register(chatKey, ok("301", false, chatRecord("c1", "", message("m1", models.AuthorCustomer, 1))))

	run, err := f.runner.Trigger(ctx, chatKey)
	require.NoError(t, err)
	assert.Nil(t, run.ErrorKind)
	assert.Equal(t, "500", *f.cursor(t, chatKey))
}

func TestTrigger_ChatStatusFollowsMessages(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.register(chatKey,
		ok("1", false, chatRecord("c1", "",
			message("m1", models.AuthorCustomer, 1),
			message("m2", models.AuthorSeller, 2),
			message("m3", models.AuthorCustomer, 3),
		)),
		ok("2", false, chatRecord("c1", "",
			message("m3", models.AuthorCustomer, 3),
			message("m4", models.AuthorSeller, 4),
		)),
	)

	_, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	i := f.interaction(t, chatKey, "c1")
	assert.Equal(t, models.StatusClientReplied, i.Status)
	assert.True(t, i.NeedsResponse)
	assert.Equal(t, 1, i.UnreadCount)
	require.NotNil(t, i.OccurredAt)
	assert.True(t, i.OccurredAt.Equal(t0.Add(time.Minute)))

	run, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated)

	updated := f.interaction(t, chatKey, "c1")
	assert.Equal(t, models.StatusResponded, updated.Status)
	assert.False(t, updated.NeedsResponse)
	assert.Equal(t, 0, updated.UnreadCount)
	assert.True(t, updated.CreatedAt.Equal(i.CreatedAt))
	assert.Equal(t, i.ID, updated.ID)

	events, err := f.store.ListEvents(context.Background(), i.ID)
	require.NoError(t, err)
	messages, statusChanges := 0, 0
	for _, e := range events {
		switch e.EventType {
		case models.EventMessage:
			messages++
		case models.EventStatusChanged:
			statusChanges++
		}
	}
	assert.Equal(t, 4, messages)
	assert.Equal(t, 1, statusChanges)
}

func TestTrigger_SLAFirstMatch(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	// The rating rule is stored first and must still lose to the higher priority keyword rule.
	require.NoError(t, f.store.SaveSLARule(ctx, &models.SLARule{SellerID: 7, Name: "low rating", ConditionType: models.ConditionRating, ConditionValue: "1-2", DeadlineMinutes: 120, Priority: 100, PriorityLabel: models.PriorityHigh, IsActive: true}))
	require.NoError(t, f.store.SaveSLARule(ctx, &models.SLARule{SellerID: 7, Name: "defect", ConditionType: models.ConditionKeyword, ConditionValue: "брак", DeadlineMinutes: 30, Priority: 200, PriorityLabel: models.PriorityUrgent, IsActive: true}))

	occurred := t0
	f.register(reviewKey, ok("", false, adapters.RawRecord{ExternalID: "r1", Rating: models.Ptr(1), Text: "Пришел брак", OccurredAt: &occurred}))

	_, err := f.runner.Trigger(ctx, reviewKey)
	require.NoError(t, err)

	i := f.interaction(t, reviewKey, "r1")
	require.NotNil(t, i.SLADeadlineAt)
	assert.True(t, i.SLADeadlineAt.Equal(t0.Add(30*time.Minute)))
	assert.Equal(t, models.PriorityUrgent, i.Priority)
}

func TestTrigger_AnsweredReviewDoesNotNeedResponse(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.register(reviewKey, ok("", false,
		adapters.RawRecord{ExternalID: "r1", Rating: models.Ptr(5), Answered: true, AnswerText: "Спасибо!"},
		adapters.RawRecord{ExternalID: "r2", Rating: models.Ptr(3)},
	))

	_, err := f.runner.Trigger(context.Background(), reviewKey)
	require.NoError(t, err)

	answered := f.interaction(t, reviewKey, "r1")
	assert.Equal(t, models.StatusResponded, answered.Status)
	assert.False(t, answered.NeedsResponse)

	open := f.interaction(t, reviewKey, "r2")
	assert.Equal(t, models.StatusWaiting, open.Status)
	assert.True(t, open.NeedsResponse)
}

func TestTrigger_LinksAndProfiles(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	occurred := t0
	f.register(chatKey, ok("", false, adapters.RawRecord{
		ExternalID: "c1", CustomerID: "cust-1", OrderID: "ord-1", OccurredAt: &occurred,
		Messages: []adapters.RawMessage{message("m1", models.AuthorCustomer, 0)},
	}))
	later := t0.Add(2 * time.Hour)
	f.register(reviewKey, ok("", false, adapters.RawRecord{
		ExternalID: "r1", CustomerID: "cust-1", OrderID: "ord-1", Rating: models.Ptr(1), OccurredAt: &later,
	}))

	_, err := f.runner.Trigger(ctx, chatKey)
	require.NoError(t, err)
	_, err = f.runner.Trigger(ctx, reviewKey)
	require.NoError(t, err)

	chat := f.interaction(t, chatKey, "c1")
	review := f.interaction(t, reviewKey, "r1")

	link, err := f.store.GetLink(ctx, models.NewPairKey(chat.ID, review.ID))
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Greater(t, link.Confidence, 0.9)
	assert.Contains(t, []string(link.MatchedOn), linking.EvidenceCustomer)

	profile, err := f.store.GetProfile(ctx, models.ProfileKey{SellerID: 7, Marketplace: "wb", CustomerID: "cust-1"})
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 2, profile.TotalInteractions)
	assert.Equal(t, 1, profile.ReviewCount)
	assert.Equal(t, 1, profile.ChatCount)
	require.NotNil(t, profile.AverageRating)
	assert.InDelta(t, 1.0, *profile.AverageRating, 1e-9)
}

func TestTrigger_Drafting(t *testing.T) {
	f := newFixture(t, Config{DraftingEnabled: true}, &fakeDrafter{fail: map[string]bool{"c2": true}})
	f.register(chatKey, ok("", false,
		chatRecord("c1", "", message("m1", models.AuthorCustomer, 1)),
		chatRecord("c2", "", message("m2", models.AuthorCustomer, 2)),
		chatRecord("c3", "", message("m3", models.AuthorCustomer, 3), message("m4", models.AuthorSeller, 4)),
	))

	run, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)
	assert.Equal(t, 2, run.DraftsRequested)
	assert.Equal(t, 1, run.DraftsFailed)

	hasEvent := func(externalID string, eventType models.EventType) bool {
		events, err := f.store.ListEvents(context.Background(), f.interaction(t, chatKey, externalID).ID)
		require.NoError(t, err)
		for _, e := range events {
			if e.EventType == eventType {
				return true
			}
		}
		return false
	}
	assert.True(t, hasEvent("c1", models.EventDraftGenerated))
	assert.True(t, hasEvent("c2", models.EventDraftFailed))
	assert.False(t, hasEvent("c3", models.EventDraftGenerated))
}

func TestRepairer_RecomputeSeller(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	f.register(chatKey, ok("", false,
		chatRecord("c1", "", message("m1", models.AuthorCustomer, 1)),
		chatRecord("c2", "", message("m2", models.AuthorCustomer, 2), message("m3", models.AuthorSeller, 3)),
	))
	_, err := f.runner.Trigger(ctx, chatKey)
	require.NoError(t, err)

	broken := f.interaction(t, chatKey, "c1")
	broken.Status = models.StatusResponded
	broken.NeedsResponse = false
	broken.SLADeadlineAt = nil
	require.NoError(t, f.store.UpdateInteraction(ctx, broken))

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	repairer := NewRepairer(f.store, sla.NewEngine(sla.DefaultConfig(), logger), logger)

	result, err := repairer.RecomputeSeller(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Changed)

	fixed := f.interaction(t, chatKey, "c1")
	assert.Equal(t, models.StatusWaiting, fixed.Status)
	assert.True(t, fixed.NeedsResponse)
	assert.NotNil(t, fixed.SLADeadlineAt)

	again, err := repairer.RecomputeSeller(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Changed)
}

func TestSweep_ReescalatesReopenedChat(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	f.register(chatKey,
		ok("1", false, chatRecord("c1", "", message("m1", models.AuthorCustomer, 1))),
		ok("2", false, chatRecord("c1", "", message("m2", models.AuthorSeller, 2))),
		ok("3", false, chatRecord("c1", "", message("m3", models.AuthorCustomer, 3))),
	)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	escalator := sla.NewEscalator(f.store, nil, sla.DefaultConfig(), logger)

	_, err := f.runner.Trigger(ctx, chatKey)
	require.NoError(t, err)
	escalated, err := escalator.Sweep(ctx, t0.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, escalated)
	assert.Equal(t, models.PriorityUrgent, f.interaction(t, chatKey, "c1").Priority)

	_, err = f.runner.Trigger(ctx, chatKey)
	require.NoError(t, err)
	answered := f.interaction(t, chatKey, "c1")
	assert.False(t, answered.NeedsResponse)
	assert.Equal(t, models.PriorityNormal, answered.Priority)
	assert.Nil(t, answered.EscalatedAt)

	_, err = f.runner.Trigger(ctx, chatKey)
	require.NoError(t, err)
	reopened := f.interaction(t, chatKey, "c1")
	assert.Equal(t, models.StatusClientReplied, reopened.Status)
	assert.True(t, reopened.NeedsResponse)

	escalated, err = escalator.Sweep(ctx, t0.Add(100*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, escalated)
	assert.Equal(t, models.PriorityUrgent, f.interaction(t, chatKey, "c1").Priority)

	escalated, err = escalator.Sweep(ctx, t0.Add(101*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, escalated)
}

func TestTrigger_ReassignedCustomerCountsForNewProfile(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	f.register(reviewKey,
		ok("1", false, adapters.RawRecord{ExternalID: "r1", CustomerID: "cust-a", Rating: models.Ptr(2)}),
		ok("2", false, adapters.RawRecord{ExternalID: "r1", CustomerID: "cust-b", Rating: models.Ptr(2)}),
	)

	_, err := f.runner.Trigger(ctx, reviewKey)
	require.NoError(t, err)
	run, err := f.runner.Trigger(ctx, reviewKey)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated)

	profile, err := f.store.GetProfile(ctx, models.ProfileKey{SellerID: 7, Marketplace: "wb", CustomerID: "cust-b"})
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 1, profile.TotalInteractions)
	assert.Equal(t, 1, profile.ReviewCount)
}

func TestTrigger_CountsEachLinkUpdateOnce(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	occurred := t0
	record := func(id string) adapters.RawRecord {
		return adapters.RawRecord{
			ExternalID: id, CustomerID: "cust-9", OrderID: "ord-9", OccurredAt: &occurred,
			Messages: []adapters.RawMessage{message(id+"-m1", models.AuthorCustomer, 0)},
		}
	}
	f.register(chatKey, ok("", false, record("c1"), record("c2")))

	created := metrics.LinkUpdatesTotal.WithLabelValues("created")
	before := testutil.ToFloat64(created)

	_, err := f.runner.Trigger(context.Background(), chatKey)
	require.NoError(t, err)

	links, err := f.store.ListLinks(context.Background(), f.interaction(t, chatKey, "c1").ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(created)-before)
}

func TestTrigger_UndecodableRecordIsSkippedAndCursorAdvances(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.register(reviewKey, ok("", false,
		adapters.RawRecord{ExternalID: "r1", Position: "1", Rating: models.Ptr(4)},
		adapters.RawRecord{ExternalID: "r2", Position: "2", ParseError: errors.New(`cannot parse "not-a-date"`)},
	))

	run, err := f.runner.Trigger(context.Background(), reviewKey)
	require.NoError(t, err)
	assert.Nil(t, run.ErrorKind)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.Errors)

	f.interaction(t, reviewKey, "r1")
	missing, err := f.store.GetInteractionByIdentity(context.Background(), models.IdentityKey{
		SellerID: reviewKey.SellerID, Marketplace: reviewKey.Marketplace, Channel: reviewKey.Channel, ExternalID: "r2",
	})
	require.NoError(t, err)
	assert.Nil(t, missing)

	cursor := f.cursor(t, reviewKey)
	require.NotNil(t, cursor)
	assert.Equal(t, "2", *cursor)
}
