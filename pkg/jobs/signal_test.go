package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSignalCoalescesPings(t *testing.T) {
	s := NewLocalSignal()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Ping(ctx))

	woke, err := s.WaitForPing(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, woke)

	woke, err = s.WaitForPing(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, woke)
}

func TestLocalSignalWaitCancelled(t *testing.T) {
	s := NewLocalSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	woke, err := s.WaitForPing(ctx, time.Second)
	assert.False(t, woke)
	assert.ErrorIs(t, err, context.Canceled)
}
