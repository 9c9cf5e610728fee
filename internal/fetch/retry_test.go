package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"futbars/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyOutcomes(t *testing.T) {
	boom := errors.New("boom")
	bar := []market.Bar{{Timestamp: day(2024, 1, 2), Close: 1}}

	tests := []struct {
		name        string
		results     []error
		final       []market.Bar
		wantOutcome Outcome
		wantFaults  int
		wantCalls   int
	}{
		{name: "first try", final: bar, wantOutcome: OutcomeSuccess, wantCalls: 1},
		{name: "two faults then success", results: []error{boom, boom}, final: bar, wantOutcome: OutcomeSuccess, wantFaults: 2, wantCalls: 3},
		{name: "empty", final: []market.Bar{}, wantOutcome: OutcomeNoData, wantCalls: 1},
		{name: "exhausted", results: []error{boom, boom, boom}, wantOutcome: OutcomeAbandoned, wantFaults: 3, wantCalls: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls, faults := 0, 0
			res, err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(), nil,
				func(context.Context) ([]market.Bar, error) {
					calls++
					if calls <= len(tc.results) {
						return nil, tc.results[calls-1]
					}
					return tc.final, nil
				},
				func(attempt int, err error) error {
					faults++
					assert.Equal(t, faults, attempt)
					return nil
				})
			require.NoError(t, err)
			assert.Equal(t, tc.wantOutcome, res.Outcome)
			assert.Equal(t, tc.wantFaults, faults)
			assert.Equal(t, tc.wantCalls, calls)
			assert.Equal(t, tc.wantCalls, res.Attempts)
		})
	}
}

func TestRetryPolicyFaultHandlerErrorStops(t *testing.T) {
	ledgerDown := errors.New("ledger down")
	calls := 0
	res, err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(), nil,
		func(context.Context) ([]market.Bar, error) { calls++; return nil, errors.New("boom") },
		func(int, error) error { return ledgerDown })
	assert.ErrorIs(t, err, ledgerDown)
	assert.Equal(t, 1, calls)
	assert.Equal(t, OutcomeAbandoned, res.Outcome)
}

func TestRetryPolicyBackoffHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res, err := RetryPolicy{MaxAttempts: 3, Backoff: time.Hour}.Do(ctx, nil,
		func(context.Context) ([]market.Bar, error) { calls++; return nil, errors.New("boom") },
		func(int, error) error { cancel(); return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyWaitsBeforeEachAttempt(t *testing.T) {
	waits := 0
	_, err := RetryPolicy{MaxAttempts: 2}.Do(context.Background(),
		func(context.Context) error { waits++; return nil },
		func(context.Context) ([]market.Bar, error) { return nil, errors.New("boom") },
		nil)
	require.NoError(t, err)
	assert.Equal(t, 2, waits)
}

func TestRetryPolicyWaitFailureIsDeadline(t *testing.T) {
	limiterErr := errors.New("rate: Wait(n=1) would exceed context deadline")
	calls := 0
	res, err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(),
		func(context.Context) error { return limiterErr },
		func(context.Context) ([]market.Bar, error) {
			calls++
			return nil, nil
		}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "would exceed context deadline")
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Zero(t, calls)
}
