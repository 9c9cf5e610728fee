package circuit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("bridge", 2, time.Minute)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	ctx := context.Background()
	assert.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return boom }), boom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return boom }), boom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("bridge", 1, time.Second)
	b.now = func() time.Time { return now }
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestCancellationIsNotAFailure(t *testing.T) {
	b := New("bridge", 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestTransportTimeoutUnderLiveContextCounts(t *testing.T) {
	b := New("bridge", 2, time.Minute)
	// http.Client.Timeout 的错误同样匹配 context.DeadlineExceeded。
	timeout := fmt.Errorf("Client.Timeout exceeded while awaiting headers: %w", context.DeadlineExceeded)
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Execute(context.Background(), func(context.Context) error { return timeout }), context.DeadlineExceeded)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestDisabledBreaker(t *testing.T) {
	b := New("off", 0, time.Minute)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.True(t, b.Allow())
}
