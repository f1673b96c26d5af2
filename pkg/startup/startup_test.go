package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

func (r *recorder) dep(name string, needs []string, startErrs ...error) Func {
	calls := 0
	return Func{
		ID:    name,
		Needs: needs,
		OnStart: func(context.Context) error {
			calls++
			if calls <= len(startErrs) && startErrs[calls-1] != nil {
				r.events = append(r.events, "fail "+name)
				return startErrs[calls-1]
			}
			r.events = append(r.events, "start "+name)
			return nil
		},
		OnStop: func(context.Context) error {
			r.events = append(r.events, "stop "+name)
			return nil
		},
	}
}

func newTestStartup(maxAttempts int) (*Startup, *[]time.Duration) {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	var waits []time.Duration
	s.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return s, &waits
}

func TestStartRespectsDependencies(t *testing.T) {
	s, _ := newTestStartup(1)
	r := &recorder{}
	s.Add(r.dep("scheduler", []string{"queue", "postgres"}))
	s.Add(r.dep("queue", []string{"redis"}))
	s.Add(r.dep("postgres", nil))
	s.Add(r.dep("redis", nil))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start redis", "start queue", "start postgres", "start scheduler"}, r.events)
	assert.Equal(t, StatusStarted, s.Status("scheduler"))

	r.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop scheduler", "stop postgres", "stop queue", "stop redis"}, r.events)
	assert.Equal(t, StatusStopped, s.Status("redis"))
}

func TestStartRetriesWithBackoff(t *testing.T) {
	s, waits := newTestStartup(5)
	r := &recorder{}
	unavailable := errors.New("connection refused")
	s.Add(r.dep("postgres", nil))
	s.Add(r.dep("redis", nil, unavailable, unavailable, unavailable))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []time.Duration{time.Second, time.Second, 2 * time.Second}, *waits)
	// postgres started once and was kept across attempts
	assert.Equal(t, []string{"start postgres", "fail redis", "fail redis", "fail redis", "start redis"}, r.events)
}

func TestStartGivesUp(t *testing.T) {
	s, _ := newTestStartup(2)
	r := &recorder{}
	down := errors.New("down")
	s.Add(r.dep("redis", nil, down, down, down))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.Equal(t, StatusFailed, s.Status("redis"))
}

func TestStartRejectsUnknownAndCyclicDependencies(t *testing.T) {
	s, _ := newTestStartup(1)
	s.Add(Func{ID: "queue", Needs: []string{"redis"}})
	assert.ErrorContains(t, s.Start(context.Background()), `unknown startup dependency "redis"`)

	s, _ = newTestStartup(1)
	s.Add(Func{ID: "a", Needs: []string{"b"}})
	s.Add(Func{ID: "b", Needs: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}

func TestStartHonorsCancellation(t *testing.T) {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), 3)
	s.Add(Func{ID: "redis", OnStart: func(context.Context) error { return errors.New("down") }})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}
