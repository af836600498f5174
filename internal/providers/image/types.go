package image

import (
	"context"
	"strings"
)

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt    string
	Model     string
	Size      string
	Quality   string
	RequestID string
}

// Result is the provider's answer: a transient URL to the generated image
// and, when the provider rewrote the prompt, the revised text. Provider
// URLs expire; callers persist the bytes and keep their own reference.
type Result struct {
	URL           string
	RevisedPrompt string
}

// Generator is the contract implemented by all image providers. The call
// is opaque to the rest of the system: it may take seconds and may fail.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Result, error)
}

// NormalizeSize sanitizes free-form size input into a supported value.
func NormalizeSize(size string) string {
	switch strings.TrimSpace(size) {
	case "1792x1024", "1024x1792", "512x512", "256x256":
		return strings.TrimSpace(size)
	default:
		return "1024x1024"
	}
}
