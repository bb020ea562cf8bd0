package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestWaitProcessedBacksOffWithinBudget(t *testing.T) {
	var slept []time.Duration
	checks := 0
	done, err := WaitProcessed(context.Background(), WaitConfig{Sleep: recordingSleep(&slept)}, func(context.Context) (bool, error) {
		checks++
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
	}, slept)
	assert.Equal(t, 4, checks)
}

func TestWaitProcessedReturnsEarly(t *testing.T) {
	var slept []time.Duration
	checks := 0
	done, err := WaitProcessed(context.Background(), WaitConfig{Sleep: recordingSleep(&slept)}, func(context.Context) (bool, error) {
		checks++
		return checks == 2, nil
	})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Len(t, slept, 2)
}

func TestWaitProcessedPropagatesCheckError(t *testing.T) {
	var slept []time.Duration
	boom := errors.New("db down")
	_, err := WaitProcessed(context.Background(), WaitConfig{Sleep: recordingSleep(&slept)}, func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWaitProcessedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitProcessed(ctx, DefaultWaitConfig(), func(context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
