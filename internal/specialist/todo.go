package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

const todoExtractPrompt = `You extract todo items and reminders from chat messages.
Respond with a JSON object only:
{"found": bool, "title": string, "due": string, "list": bool}
"found" is true when the message creates a task or reminder; "list" is true when the user asks to see their pending tasks instead. "due" is RFC 3339 or empty when no deadline is given. Current time: %s.`

// Todo creates reminders and lists the pending ones.
type Todo struct {
	completer domain.Completer
	store     domain.ActionStore
	logger    *slog.Logger
	now       func() string // injected for tests
}

func NewTodo(completer domain.Completer, store domain.ActionStore, logger *slog.Logger) *Todo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Todo{completer: completer, store: store, logger: logger}
}

func (t *Todo) Name() string { return "todo" }

func (t *Todo) Handle(ctx context.Context, uc *domain.UserContext) (domain.Outcome, error) {
	now := nowInZone(uc.Profile.Timezone, t.now)
	raw, err := t.completer.Complete(ctx, fmt.Sprintf(todoExtractPrompt, now), uc.Text, domain.ModeJSON)
	if err != nil {
		return domain.Declined(), fmt.Errorf("reminder extraction: %w", err)
	}

	var ext struct {
		Found bool   `json:"found"`
		Title string `json:"title"`
		Due   string `json:"due"`
		List  bool   `json:"list"`
	}
	if !decodeJSON(raw, &ext) {
		t.logger.Debug("inconclusive reminder extraction", "turn", uc.TurnID, "raw", raw)
		return domain.Declined(), nil
	}

	if ext.List {
		return t.listOpen(ctx, uc)
	}

	ext.Title = strings.TrimSpace(ext.Title)
	if !ext.Found || ext.Title == "" {
		return domain.Declined(), nil
	}

	r := domain.Reminder{SenderID: uc.SenderID, Title: ext.Title}
	if due, ok := parseWhen(ext.Due, uc.Profile.Timezone); ok {
		r.DueAt = &due
	}
	id, err := t.store.AddReminder(ctx, r)
	if err != nil {
		return domain.Declined(), fmt.Errorf("save reminder: %w", err)
	}

	t.logger.Info("reminder created", "turn", uc.TurnID, "sender", uc.SenderID, "id", id, "title", ext.Title)

	detail := fmt.Sprintf("task %q", ext.Title)
	if r.DueAt != nil {
		detail += " due " + r.DueAt.Format("Mon Jan 2 15:04")
	}
	return domain.HandledReport(domain.ActionReport{
		Task:   "todo",
		Status: "registered",
		Action: "reminder_created",
		Detail: detail,
	}), nil
}

func (t *Todo) listOpen(ctx context.Context, uc *domain.UserContext) (domain.Outcome, error) {
	open, err := t.store.ListOpenReminders(ctx, uc.SenderID, 20)
	if err != nil {
		return domain.Declined(), fmt.Errorf("list reminders: %w", err)
	}
	if len(open) == 0 {
		return domain.HandledReport(domain.ActionReport{
			Task: "todo", Status: "ok", Action: "reminders_listed", Detail: "no pending tasks",
		}), nil
	}
	var b strings.Builder
	for _, r := range open {
		b.WriteString("- " + r.Title)
		if r.DueAt != nil {
			b.WriteString(" (due " + r.DueAt.Format("Mon Jan 2 15:04") + ")")
		}
		b.WriteString("\n")
	}
	return domain.HandledReport(domain.ActionReport{
		Task: "todo", Status: "ok", Action: "reminders_listed",
		Detail: fmt.Sprintf("%d pending tasks:\n%s", len(open), strings.TrimRight(b.String(), "\n")),
	}), nil
}
