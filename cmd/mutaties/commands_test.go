package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type runnerFunc func(ctx context.Context, stopAt time.Time) error

func (f runnerFunc) Run(ctx context.Context, stopAt time.Time) error { return f(ctx, stopAt) }

func TestRunQueuesCancelsSiblingOnFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	cancelled := make(chan struct{})
	blocking := runnerFunc(func(ctx context.Context, _ time.Time) error {
		<-ctx.Done()
		close(cancelled)
		return nil
	})
	failing := runnerFunc(func(context.Context, time.Time) error {
		return errors.New("count bestel mutations: connection reset")
	})

	done := make(chan error, 1)
	go func() {
		done <- runQueues(context.Background(), time.Now().Add(time.Hour), []runner{blocking, failing})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	case <-time.After(2 * time.Second):
		t.Fatal("sibling processor kept running")
	}
	select {
	case <-cancelled:
	default:
		t.Fatal("sibling context was not cancelled")
	}
}

func TestRunQueuesPassesStopTime(t *testing.T) {
	stopAt := time.Date(2026, 3, 1, 10, 58, 0, 0, time.UTC)
	var got []time.Time
	record := runnerFunc(func(_ context.Context, at time.Time) error {
		got = append(got, at)
		return nil
	})

	require.NoError(t, runQueues(context.Background(), stopAt, []runner{record}))
	assert.Equal(t, []time.Time{stopAt}, got)
}
