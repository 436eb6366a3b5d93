package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	out := Retry(context.Background(), RetryPolicy{Attempts: 3}, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errors.New("flaky")
		}
		return "done", nil
	})
	require.True(t, out.OK())
	assert.Equal(t, "done", out.Value)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustedReturnsLastError(t *testing.T) {
	out := Retry(context.Background(), RetryPolicy{Attempts: 2}, func(_ context.Context, attempt int) (int, error) {
		return 0, errors.New("attempt " + string(rune('0'+attempt)))
	})
	require.False(t, out.OK())
	assert.EqualError(t, out.Err, "attempt 2")
	assert.Equal(t, 2, out.Attempts)
}

func TestRetryPermanentStops(t *testing.T) {
	sentinel := errors.New("conflict")
	calls := 0
	out := Retry(context.Background(), RetryPolicy{Attempts: 5}, func(context.Context, int) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, sentinel, out.Err)
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	Retry(context.Background(), RetryPolicy{}, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("x")
	})
	assert.Equal(t, 1, calls)
}

func TestRetrySleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	out := Retry(ctx, RetryPolicy{Attempts: 3, Delay: time.Hour}, func(context.Context, int) (int, error) {
		cancel()
		return 0, errors.New("boom")
	})
	assert.Less(t, time.Since(start), time.Minute)
	assert.True(t, errors.Is(out.Err, context.Canceled))
	assert.Equal(t, 1, out.Attempts)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateAllocating, StateSubtopicPending))
	assert.True(t, CanTransition(StateProposalsDone, StateFailed))
	assert.True(t, CanTransition(StateJudging, StateCommitted))
	assert.False(t, CanTransition(StateProposalsCollecting, StateFailed))
	assert.False(t, CanTransition(StateCommitted, StateFailed))
	assert.False(t, CanTransition(StateFailed, StateSubtopicPending))
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateJudging.Terminal())
}
