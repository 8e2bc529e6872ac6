package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

const defaultSystem = `You are {{name}}, a personal assistant ({{gender}}). Your personality traits: {{traits}}.
You are talking with {{user}}. Be natural and conversational, never robotic.
You MUST answer exclusively in {{language}}, regardless of the language of the input.`

const defaultConfirm = `Rewrite the following action confirmation in your own voice, as a single short message. Do not add information that is not in the confirmation.`

const defaultFuse = `Combine the following answer parts into ONE coherent message in your own voice.
Rules:
- Do not repeat information.
- Confirmations of completed actions come before questions or suggestions.
- Keep it short and natural.`

// Renderer turns structured specialist output into persona-voiced text. Every
// method forces the output language to the profile's configured language.
type Renderer struct {
	completer domain.Completer
	pack      *Pack
	logger    *slog.Logger
}

func NewRenderer(completer domain.Completer, pack *Pack, logger *slog.Logger) *Renderer {
	if pack == nil {
		pack = &Pack{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{completer: completer, pack: pack, logger: logger}
}

// SystemPrompt builds the persona system prompt for a profile. The general
// conversational specialist uses this directly.
func (r *Renderer) SystemPrompt(p domain.Profile) string {
	tpl := r.pack.System
	if tpl == "" {
		tpl = defaultSystem
	}
	name := p.PersonaName
	if name == "" {
		name = "Assistant"
	}
	language := p.Language
	if language == "" {
		language = "English"
	}
	user := p.SenderID
	repl := strings.NewReplacer(
		"{{name}}", name,
		"{{gender}}", p.Gender,
		"{{traits}}", strings.Join(p.Traits, ", "),
		"{{language}}", language,
		"{{user}}", user,
	)
	return repl.Replace(tpl)
}

// Confirm voices a single action report as one short persona message.
func (r *Renderer) Confirm(ctx context.Context, p domain.Profile, report *domain.ActionReport) (string, error) {
	instruction := r.pack.Confirm
	if instruction == "" {
		instruction = defaultConfirm
	}
	system := r.SystemPrompt(p) + "\n\n" + instruction
	user := fmt.Sprintf("Action: %s\nStatus: %s\nFact to confirm: %s", report.Action, report.Status, report.Detail)

	text, err := r.completer.Complete(ctx, system, user, domain.ModeQuality)
	if err != nil {
		return "", fmt.Errorf("persona confirm: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Fuse merges multiple answer parts into one non-redundant persona message.
// Parts arrive in dispatch order; completed-action confirmations are listed
// first so the model keeps them ahead of questions.
func (r *Renderer) Fuse(ctx context.Context, p domain.Profile, parts []string) (string, error) {
	if len(parts) == 1 {
		return parts[0], nil
	}
	instruction := r.pack.Fuse
	if instruction == "" {
		instruction = defaultFuse
	}
	system := r.SystemPrompt(p) + "\n\n" + instruction

	var b strings.Builder
	for i, part := range parts {
		fmt.Fprintf(&b, "Part %d:\n%s\n\n", i+1, part)
	}

	text, err := r.completer.Complete(ctx, system, b.String(), domain.ModeQuality)
	if err != nil {
		return "", fmt.Errorf("persona fuse: %w", err)
	}
	return strings.TrimSpace(text), nil
}
