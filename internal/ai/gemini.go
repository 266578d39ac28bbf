package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/config"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
	timeout   time.Duration
	baseURL   string
	tracker   *TokenTracker
}

type GeminiClientFuncOptions = func(client *GeminiClient) error

func NewGeminiClient(ctx context.Context, cfg config.AIConfig, opts ...GeminiClientFuncOptions) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	g := &GeminiClient{
		model:     cfg.Model,
		maxTokens: int32(cfg.MaxOutputTokens),
		timeout:   cfg.Timeout,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, fmt.Errorf("failed to apply options: %w", err)
		}
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	g.client = client
	return g, nil
}

func WithModel(model string) GeminiClientFuncOptions {
	return func(client *GeminiClient) error {
		if model == "" {
			return errors.New("model must not be empty")
		}
		client.model = model
		return nil
	}
}

func WithTokenTracker(tracker *TokenTracker) GeminiClientFuncOptions {
	return func(client *GeminiClient) error {
		client.tracker = tracker
		return nil
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(baseURL string) GeminiClientFuncOptions {
	return func(client *GeminiClient) error {
		client.baseURL = baseURL
		return nil
	}
}

func (g *GeminiClient) Generate(ctx context.Context, req Request) (*Completion, error) {
	if strings.TrimSpace(req.UserContent) == "" {
		return nil, errors.New("prompt must not be empty")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	genCfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if g.maxTokens > 0 {
		genCfg.MaxOutputTokens = g.maxTokens
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.UserContent), genCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, errors.New("gemini api returned empty response")
	}

	completion := &Completion{Text: text, Model: g.model}
	if um := result.UsageMetadata; um != nil {
		completion.PromptTokens = int64(um.PromptTokenCount)
		completion.CompletionTokens = int64(um.TotalTokenCount - um.PromptTokenCount)
	}
	g.tracker.Add(ctx, completion.PromptTokens, completion.CompletionTokens)

	return completion, nil
}
