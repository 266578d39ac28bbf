// Package ai wraps the generative model used by the generation endpoints.
package ai

import "context"

type Request struct {
	SystemInstruction string
	UserContent       string
	// JSON asks the model for an application/json response.
	JSON bool
}

type Completion struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

type Client interface {
	Generate(ctx context.Context, req Request) (*Completion, error)
}
