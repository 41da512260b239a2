package openrouter

import (
	"context"
	"fmt"
	"log"
	"time"
)

type escalatorState int

const (
	stateAttemptPrimary escalatorState = iota
	stateAttemptFallback
	stateDone
	stateFailed
)

// Escalator wraps a transport with bounded retry and one-time model
// escalation. The primary model gets maxRetries+1 attempts with exponential
// backoff; on exhaustion the fallback model gets the same budget once. An
// empty fallback model skips escalation.
type Escalator struct {
	transport  Transport
	maxRetries int
	baseDelay  time.Duration

	// sleep is swapped out in tests. Must not be called while holding locks.
	sleep func(ctx context.Context, d time.Duration)
	logf  func(string)
}

func NewEscalator(transport Transport, maxRetries int, baseDelay time.Duration) *Escalator {
	return &Escalator{
		transport:  transport,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      ctxSleep,
		logf:       func(line string) { log.Printf("%s", line) },
	}
}

// SetLogger redirects attempt/retry/escalation lines to an external sink.
func (e *Escalator) SetLogger(logf func(string)) {
	if logf != nil {
		e.logf = logf
	}
}

// SetSleep injects the backoff sleep. Tests pass a recorder.
func (e *Escalator) SetSleep(sleep func(ctx context.Context, d time.Duration)) {
	if sleep != nil {
		e.sleep = sleep
	}
}

// DelayFor returns the backoff delay for a 0-indexed attempt,
// baseDelay * 2^attempt. Pure function; no jitter.
func (e *Escalator) DelayFor(attempt int) time.Duration {
	return e.baseDelay * (1 << uint(attempt))
}

// Do runs one logical call through the state machine. The request's Model
// field is overwritten per attempt.
func (e *Escalator) Do(ctx context.Context, req *ChatRequest, primaryModel, fallbackModel string) (*ChatResponse, error) {
	state := stateAttemptPrimary
	var lastErr error

	for {
		switch state {
		case stateAttemptPrimary:
			resp, err := e.runModel(ctx, req, primaryModel)
			if err == nil {
				return resp, nil
			}
			lastErr = err
			if fallbackModel == "" || fallbackModel == primaryModel {
				state = stateFailed
				continue
			}
			e.logf(fmt.Sprintf("Primary model %s failed with error: %v; escalating to %s", primaryModel, err, fallbackModel))
			state = stateAttemptFallback

		case stateAttemptFallback:
			resp, err := e.runModel(ctx, req, fallbackModel)
			if err == nil {
				return resp, nil
			}
			lastErr = err
			state = stateFailed

		case stateFailed:
			return nil, lastErr
		}
	}
}

// runModel gives one model its full retry budget.
func (e *Escalator) runModel(ctx context.Context, req *ChatRequest, model string) (*ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptReq := *req
		attemptReq.Model = model

		resp, err := e.transport.ChatCompletions(ctx, &attemptReq)
		if err == nil {
			if attempt > 0 {
				e.logf(fmt.Sprintf("Model %s succeeded on attempt %d", model, attempt+1))
			}
			return resp, nil
		}
		lastErr = err

		if attempt < e.maxRetries {
			delay := e.DelayFor(attempt)
			e.logf(fmt.Sprintf("Retrying after error: %v (sleep %.1fs)", err, delay.Seconds()))
			e.sleep(ctx, delay)
		}
	}

	return nil, fmt.Errorf("model %s exhausted %d attempts: %w", model, e.maxRetries+1, lastErr)
}

func ctxSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
