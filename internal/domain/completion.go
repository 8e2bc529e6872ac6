package domain

import "context"

// CompletionMode selects the model tier and response shape for one call.
type CompletionMode string

const (
	// ModeFast is a low-latency model for classification and extraction.
	ModeFast CompletionMode = "fast"
	// ModeQuality is a higher-quality model for persona-voiced generation.
	ModeQuality CompletionMode = "quality"
	// ModeJSON is the fast model constrained to emit a JSON object. The core
	// parses the result optimistically; a parse failure means the extraction
	// was inconclusive, not that the call errored.
	ModeJSON CompletionMode = "json"
)

// Completer is the text-completion collaborator behind classification,
// extraction, and persona rendering.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string, mode CompletionMode) (string, error)
	Name() string
	Healthy(ctx context.Context) error
}
