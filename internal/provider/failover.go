package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

// Failover tries multiple completers in order, falling back to the next one
// when the current fails. It implements domain.Completer.
type Failover struct {
	completers []domain.Completer
	logger     *slog.Logger
}

// NewFailover creates a failover chain from the given completers.
// At least one completer is required.
func NewFailover(completers []domain.Completer, logger *slog.Logger) *Failover {
	return &Failover{
		completers: completers,
		logger:     logger,
	}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.completers))
	for i, c := range f.completers {
		names[i] = c.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (f *Failover) Healthy(ctx context.Context) error {
	for _, c := range f.completers {
		if err := c.Healthy(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no healthy completer in failover chain")
}

// Complete tries each completer in order and returns the first success.
func (f *Failover) Complete(ctx context.Context, systemPrompt, userMessage string, mode domain.CompletionMode) (string, error) {
	var lastErr error
	for i, c := range f.completers {
		out, err := c.Complete(ctx, systemPrompt, userMessage, mode)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback completer",
					"completer", c.Name(),
					"attempt", i+1,
				)
			}
			return out, nil
		}
		lastErr = err
		f.logger.Warn("failover: completer failed, trying next",
			"completer", c.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	return "", fmt.Errorf("all completers in failover chain failed: %w", lastErr)
}
