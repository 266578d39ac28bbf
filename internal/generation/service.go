// Package generation runs the AI-backed career tools. Every request is charged
// against the caller's usage quota before the model is called.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blagoySimandov/careerpilot/internal/account"
	"github.com/blagoySimandov/careerpilot/internal/ai"
	"github.com/blagoySimandov/careerpilot/internal/apperr"
	"github.com/blagoySimandov/careerpilot/internal/config"
	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/rs/zerolog/log"
)

type UsageLedger interface {
	IncrementUsage(ctx context.Context, userID string) (*models.Account, error)
}

type Usage struct {
	UsageCount int64       `json:"usageCount"`
	Limit      int64       `json:"limit"`
	Unlimited  bool        `json:"unlimited"`
	Tier       models.Tier `json:"tier"`
}

type Result struct {
	Task    Task            `json:"task"`
	Content string          `json:"content,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Model   string          `json:"model"`
	Usage   Usage           `json:"usage"`
}

type Service struct {
	ledger  UsageLedger
	client  ai.Client
	maxLen  int
	metrics *metrics.Metrics
}

func NewService(ledger UsageLedger, client ai.Client, cfg config.AIConfig, m *metrics.Metrics) *Service {
	return &Service{
		ledger:  ledger,
		client:  client,
		maxLen:  cfg.MaxJobDescriptionLen,
		metrics: m,
	}
}

func (s *Service) Generate(ctx context.Context, userID string, task Task, jobDescription string) (*Result, error) {
	spec, ok := taskSpecs[task]
	if !ok {
		return nil, apperr.NotFound("generation.generate", fmt.Sprintf("unknown generation task %q", task))
	}
	jobDescription = strings.TrimSpace(jobDescription)
	if jobDescription == "" {
		return nil, apperr.Validation("Job description cannot be empty")
	}
	if s.maxLen > 0 && utf8.RuneCountInString(jobDescription) > s.maxLen {
		return nil, apperr.Validation(fmt.Sprintf("Job description exceeds %d characters", s.maxLen))
	}

	acct, err := s.ledger.IncrementUsage(ctx, userID)
	if err != nil {
		var quotaErr *account.QuotaExceededError
		if errors.As(err, &quotaErr) {
			s.metrics.ObserveQuotaRejection(string(quotaErr.Tier))
			s.metrics.ObserveGeneration(string(task), "quota_exceeded")
		} else {
			s.metrics.ObserveGeneration(string(task), "error")
		}
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("task", string(task)).
		Int("job_description_length", len(jobDescription)).
		Int64("usage_count", acct.UsageCount).
		Msg("Generation requested")

	completion, err := s.client.Generate(ai.ContextWithTask(ctx, string(task)), ai.Request{
		SystemInstruction: spec.instruction,
		UserContent:       jobDescription,
		JSON:              spec.json,
	})
	if err != nil {
		s.metrics.ObserveGeneration(string(task), "error")
		return nil, apperr.Upstream("ai.generate", err)
	}

	limit, unlimited := account.Limit(acct.Tier)
	result := &Result{
		Task:  task,
		Model: completion.Model,
		Usage: Usage{UsageCount: acct.UsageCount, Limit: limit, Unlimited: unlimited, Tier: acct.Tier},
	}
	if spec.json {
		data, err := ai.ExtractJSON(completion.Text)
		if err != nil {
			s.metrics.ObserveGeneration(string(task), "invalid_output")
			return nil, apperr.Upstream("ai.generate", err)
		}
		result.Data = data
	} else {
		result.Content = completion.Text
	}

	s.metrics.ObserveGeneration(string(task), "ok")
	return result, nil
}
