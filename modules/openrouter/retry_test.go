package openrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport records the model of every attempt and answers from a
// per-model script.
type scriptedTransport struct {
	models   []string
	failures map[string]error
	response *ChatResponse
}

func (s *scriptedTransport) ChatCompletions(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	s.models = append(s.models, req.Model)
	if err, ok := s.failures[req.Model]; ok && err != nil {
		return nil, err
	}
	if s.response != nil {
		return s.response, nil
	}
	return &ChatResponse{}, nil
}

func noSleep(ctx context.Context, d time.Duration) {}

func TestDelayForExponentialNoJitter(t *testing.T) {
	e := NewEscalator(nil, 2, 800*time.Millisecond)

	assert.Equal(t, 800*time.Millisecond, e.DelayFor(0))
	assert.Equal(t, 1600*time.Millisecond, e.DelayFor(1))
	assert.Equal(t, 3200*time.Millisecond, e.DelayFor(2))
}

func TestFirstAttemptSuccessSkipsRetryAndEscalation(t *testing.T) {
	transport := &scriptedTransport{}
	e := NewEscalator(transport, 2, time.Millisecond)
	e.SetSleep(func(ctx context.Context, d time.Duration) {
		t.Fatal("sleep must not be called on first-attempt success")
	})

	resp, err := e.Do(context.Background(), &ChatRequest{}, "primary", "fallback")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []string{"primary"}, transport.models)
}

func TestPrimaryExhaustsBudgetBeforeFallback(t *testing.T) {
	transport := &scriptedTransport{
		failures: map[string]error{
			"primary":  errors.New("upstream 500"),
			"fallback": errors.New("upstream 500"),
		},
	}
	e := NewEscalator(transport, 2, 800*time.Millisecond)

	var slept []time.Duration
	e.SetSleep(func(ctx context.Context, d time.Duration) {
		slept = append(slept, d)
	})

	_, err := e.Do(context.Background(), &ChatRequest{}, "primary", "fallback")
	require.Error(t, err)

	// Each model gets maxRetries+1 attempts, primary strictly first.
	assert.Equal(t, []string{"primary", "primary", "primary", "fallback", "fallback", "fallback"}, transport.models)
	assert.LessOrEqual(t, len(transport.models), 2*(2+1))

	// Two backoff sleeps per model, final attempt never sleeps.
	assert.Equal(t, []time.Duration{
		800 * time.Millisecond, 1600 * time.Millisecond,
		800 * time.Millisecond, 1600 * time.Millisecond,
	}, slept)
}

func TestFallbackSucceedsAfterPrimaryExhaustion(t *testing.T) {
	transport := &scriptedTransport{
		failures: map[string]error{"primary": errors.New("model overloaded")},
	}
	e := NewEscalator(transport, 2, time.Millisecond)
	e.SetSleep(noSleep)

	resp, err := e.Do(context.Background(), &ChatRequest{}, "primary", "fallback")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []string{"primary", "primary", "primary", "fallback"}, transport.models)
}

func TestEmptyFallbackSkipsEscalation(t *testing.T) {
	transport := &scriptedTransport{
		failures: map[string]error{"primary": errors.New("bad gateway")},
	}
	e := NewEscalator(transport, 2, time.Millisecond)
	e.SetSleep(noSleep)

	_, err := e.Do(context.Background(), &ChatRequest{}, "primary", "")
	require.Error(t, err)
	assert.Equal(t, []string{"primary", "primary", "primary"}, transport.models)
}

func TestIdenticalFallbackSkipsEscalation(t *testing.T) {
	transport := &scriptedTransport{
		failures: map[string]error{"primary": errors.New("bad gateway")},
	}
	e := NewEscalator(transport, 1, time.Millisecond)
	e.SetSleep(noSleep)

	_, err := e.Do(context.Background(), &ChatRequest{}, "primary", "primary")
	require.Error(t, err)
	assert.Equal(t, []string{"primary", "primary"}, transport.models)
}

func TestExhaustionErrorWrapsLastTransportError(t *testing.T) {
	rootErr := errors.New("quota exceeded")
	transport := &scriptedTransport{
		failures: map[string]error{"primary": rootErr},
	}
	e := NewEscalator(transport, 0, time.Millisecond)
	e.SetSleep(noSleep)

	_, err := e.Do(context.Background(), &ChatRequest{}, "primary", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, rootErr)
	assert.Contains(t, err.Error(), "exhausted 1 attempts")
}

func TestCancelledContextStopsAttempts(t *testing.T) {
	transport := &scriptedTransport{
		failures: map[string]error{"primary": errors.New("upstream 500")},
	}
	e := NewEscalator(transport, 5, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	e.SetSleep(func(ctx context.Context, d time.Duration) {
		cancel()
	})

	_, err := e.Do(ctx, &ChatRequest{}, "primary", "fallback")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// One real attempt, then the context check short-circuits the loop.
	assert.Equal(t, []string{"primary"}, transport.models)
}

func TestRequestModelOverwrittenPerAttempt(t *testing.T) {
	transport := &scriptedTransport{}
	e := NewEscalator(transport, 0, time.Millisecond)

	req := &ChatRequest{Model: "stale-model"}
	_, err := e.Do(context.Background(), req, "primary", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"primary"}, transport.models)
	// The caller's request is copied per attempt, not mutated.
	assert.Equal(t, "stale-model", req.Model)
}
