/*
PURPOSE:
  Thin layer between the conversation loop and the provider adapters.
  Owns the retry policy for provider calls.

REQUIREMENTS:
  User-specified:
  - Adapters never retry; the loop decides whether to retry or abort.

  Implementation-discovered:
  - Transient failures (network, 429, 5xx) are worth another attempt.
  - Missing credentials must stop immediately.
  - Sleeping between attempts must honour context cancellation (Ctrl-C).

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/loop.go
  - Uses: internal/provider

ERROR HANDLING:
  - Returns the last adapter error unchanged so callers can inspect Kind.

IMPLEMENTATION RULES:
  - Attempts = 1 + MaxRetries.
  - Wait RetryDelay between attempts.

RELATED FILES:
  - internal/provider/errors.go (Retryable)
*/

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/output"
	"github.com/daryltucker/agent-bench/internal/provider"
)

// Sender delivers a conversation to a provider. *provider.Client implements it.
type Sender interface {
	Send(ctx context.Context, cfg model.ProviderConfig, history model.Conversation) (model.AgentReply, error)
}

// ToolRunner executes tool directives. *tools.Executor implements it.
type ToolRunner interface {
	Execute(ctx context.Context, d model.ToolDirective) model.ToolResult
}

// RetryPolicy controls how often a failed provider call is repeated.
type RetryPolicy struct {
	MaxRetries int
	RetryDelay time.Duration
}

// sendWithRetry calls the sender until it succeeds, fails permanently, or
// the attempts run out. attempts reports how many calls were made.
func sendWithRetry(ctx context.Context, s Sender, p RetryPolicy, cfg model.ProviderConfig, history model.Conversation, m *Metrics) (reply model.AgentReply, attempts int, err error) {
	for i := 0; i <= p.MaxRetries; i++ {
		if i > 0 {
			output.Logger.Info().
				Str("provider", string(cfg.ID)).
				Int("attempt", i+1).
				Err(err).
				Msg("Retrying provider call...")
			if werr := wait(ctx, p.RetryDelay); werr != nil {
				return model.AgentReply{}, attempts, err
			}
		}

		attempts++
		start := time.Now()
		reply, err = s.Send(ctx, cfg, history)
		m.observeRequest(cfg.ID, time.Since(start))
		if err == nil {
			return reply, attempts, nil
		}
		if !retryable(err) {
			return model.AgentReply{}, attempts, err
		}
	}
	return model.AgentReply{}, attempts, err
}

func retryable(err error) bool {
	var pe *provider.Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Retryable()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
