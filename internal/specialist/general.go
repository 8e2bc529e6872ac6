package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
	"concierge/internal/persona"
)

// General is the conversational fallback. It never declines, answers in the
// persona's voice with recent history as context, and is the only specialist
// that writes the turn to persisted history.
type General struct {
	completer domain.Completer
	renderer  *persona.Renderer
	history   domain.HistoryStore
	logger    *slog.Logger
}

func NewGeneral(completer domain.Completer, renderer *persona.Renderer, history domain.HistoryStore, logger *slog.Logger) *General {
	if logger == nil {
		logger = slog.Default()
	}
	return &General{completer: completer, renderer: renderer, history: history, logger: logger}
}

func (g *General) Name() string { return "general" }

func (g *General) Handle(ctx context.Context, uc *domain.UserContext) (domain.Outcome, error) {
	system := g.renderer.SystemPrompt(uc.Profile)

	var b strings.Builder
	if len(uc.History) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range uc.History {
			fmt.Fprintf(&b, "User: %s\nYou: %s\n", t.UserText, t.AssistantText)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User: %s", uc.Text)

	reply, err := g.completer.Complete(ctx, system, b.String(), domain.ModeQuality)
	if err != nil {
		return domain.Declined(), fmt.Errorf("general completion: %w", err)
	}
	reply = strings.TrimSpace(reply)

	if err := g.history.AppendTurn(ctx, uc.SenderID, uc.Text, reply); err != nil {
		// A lost history row must not lose the answer.
		g.logger.Warn("cannot persist turn", "turn", uc.TurnID, "sender", uc.SenderID, "err", err)
	}

	return domain.Handled(reply), nil
}
