package circuitbreaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/re-search/internal/circuitbreaker"
)

var errUpstream = errors.New("upstream failed")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		Now:              clock.Now,
		OnStateChange: func(from, to circuitbreaker.State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	require.ErrorIs(t, b.Execute(func() error { return errUpstream }), errUpstream)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	require.ErrorIs(t, b.Execute(func() error { return errUpstream }), errUpstream)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.False(t, called)

	clock.now = clock.now.Add(time.Minute)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, OpenTimeout: time.Second, Now: clock.Now})

	b.Record(errUpstream)
	require.Equal(t, circuitbreaker.StateOpen, b.State())

	clock.now = clock.now.Add(2 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, circuitbreaker.StateHalfOpen, b.State())

	b.Record(errUpstream)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
	require.ErrorIs(t, b.Allow(), circuitbreaker.ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2})
	b.Record(errUpstream)
	b.Record(nil)
	b.Record(errUpstream)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}
