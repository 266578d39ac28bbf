package ai

import (
	"context"
	"sync"

	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/rs/zerolog/log"
)

type contextKey string

const taskContextKey contextKey = "generationTask"

func ContextWithTask(ctx context.Context, task string) context.Context {
	return context.WithValue(ctx, taskContextKey, task)
}

func TaskFromContext(ctx context.Context) string {
	if v := ctx.Value(taskContextKey); v != nil {
		if task, ok := v.(string); ok {
			return task
		}
	}
	return ""
}

// TokenTracker accumulates token usage and exports it per generation task.
type TokenTracker struct {
	mu         sync.RWMutex
	prompt     int64
	completion int64
	metrics    *metrics.Metrics
}

func NewTokenTracker(m *metrics.Metrics) *TokenTracker {
	return &TokenTracker{metrics: m}
}

// Add is safe on a nil tracker.
func (t *TokenTracker) Add(ctx context.Context, prompt, completion int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.prompt += prompt
	t.completion += completion
	t.mu.Unlock()

	task := TaskFromContext(ctx)
	if task == "" {
		task = "unknown"
	}
	t.metrics.AddTokens(task, prompt, completion)
	log.Debug().
		Str("task", task).
		Int64("prompt_tokens", prompt).
		Int64("completion_tokens", completion).
		Msg("AI tokens used")
}

func (t *TokenTracker) Totals() (prompt, completion int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.prompt, t.completion
}
