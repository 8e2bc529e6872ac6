package assist

import (
	"context"
	"fmt"
	"log/slog"

	"concierge/internal/domain"
	"concierge/internal/persona"
)

// Aggregator reduces the dispatcher's results to one reply. Zero claims fall
// back to the conversational specialist, one claim passes through (rendered
// if structured), several are fused into a single persona message.
type Aggregator struct {
	general  domain.Specialist
	renderer *persona.Renderer
	logger   *slog.Logger
}

func NewAggregator(general domain.Specialist, renderer *persona.Renderer, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{general: general, renderer: renderer, logger: logger}
}

func (a *Aggregator) Aggregate(ctx context.Context, uc *domain.UserContext, results []Result) (string, error) {
	var claimed []Result
	for _, r := range results {
		if !r.Outcome.Empty() {
			claimed = append(claimed, r)
		}
	}

	switch len(claimed) {
	case 0:
		// Only this path appends the turn to conversation history; action
		// confirmations stay out of the transcript.
		out, err := a.general.Handle(ctx, uc)
		if err != nil {
			return "", fmt.Errorf("fallback: %w", err)
		}
		return out.Text, nil

	case 1:
		o := claimed[0].Outcome
		if o.Kind == domain.OutcomeText {
			return o.Text, nil
		}
		return a.renderer.Confirm(ctx, uc.Profile, o.Report)

	default:
		// Completed-action confirmations first, then free text, then reports
		// that still need something from the user.
		var confirmations, texts, questions []string
		for _, r := range claimed {
			switch {
			case r.Outcome.Kind == domain.OutcomeText:
				texts = append(texts, r.Outcome.Text)
			case r.Outcome.Report.Status == "needs_clarification":
				questions = append(questions, r.Outcome.Report.Detail)
			default:
				confirmations = append(confirmations, "Done: "+r.Outcome.Report.Detail)
			}
		}
		parts := append(append(confirmations, texts...), questions...)
		return a.renderer.Fuse(ctx, uc.Profile, parts)
	}
}
