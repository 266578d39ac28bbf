package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoJSON = errors.New("model output contains no JSON document")

const codeFence = "```"

// ExtractJSON returns the JSON document in a model answer. Models wrap JSON in a
// fenced block or surround it with prose even when asked for raw JSON.
func ExtractJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(unfence(content))
	if json.Valid([]byte(content)) {
		return json.RawMessage(content), nil
	}

	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return nil, ErrNoJSON
	}
	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end <= start {
		return nil, ErrNoJSON
	}
	candidate := content[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, ErrNoJSON
	}
	return json.RawMessage(candidate), nil
}

// unfence returns the body of the first fenced block, dropping its info string.
func unfence(content string) string {
	_, rest, ok := strings.Cut(content, codeFence)
	if !ok {
		return content
	}
	body, _, _ := strings.Cut(rest, codeFence)
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	return body
}
