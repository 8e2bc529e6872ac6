package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

const calendarExtractPrompt = `You extract calendar events from chat messages.
Respond with a JSON object only:
{"found": bool, "title": string, "starts_at": string, "duration_min": number, "list": bool}
"found" is true when the message schedules something at a concrete date or time; "list" is true when the user asks for their agenda instead. "starts_at" is RFC 3339. Current time: %s.`

// Calendar schedules events and answers agenda queries.
type Calendar struct {
	completer domain.Completer
	store     domain.ActionStore
	logger    *slog.Logger
	now       func() string // injected for tests
}

func NewCalendar(completer domain.Completer, store domain.ActionStore, logger *slog.Logger) *Calendar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calendar{completer: completer, store: store, logger: logger}
}

func (c *Calendar) Name() string { return "calendar" }

func (c *Calendar) Handle(ctx context.Context, uc *domain.UserContext) (domain.Outcome, error) {
	now := nowInZone(uc.Profile.Timezone, c.now)
	raw, err := c.completer.Complete(ctx, fmt.Sprintf(calendarExtractPrompt, now), uc.Text, domain.ModeJSON)
	if err != nil {
		return domain.Declined(), fmt.Errorf("event extraction: %w", err)
	}

	var ext struct {
		Found       bool   `json:"found"`
		Title       string `json:"title"`
		StartsAt    string `json:"starts_at"`
		DurationMin int    `json:"duration_min"`
		List        bool   `json:"list"`
	}
	if !decodeJSON(raw, &ext) {
		c.logger.Debug("inconclusive event extraction", "turn", uc.TurnID, "raw", raw)
		return domain.Declined(), nil
	}

	if ext.List {
		return c.listUpcoming(ctx, uc)
	}

	ext.Title = strings.TrimSpace(ext.Title)
	starts, ok := parseWhen(ext.StartsAt, uc.Profile.Timezone)
	if !ext.Found || ext.Title == "" || !ok {
		return domain.Declined(), nil
	}

	id, err := c.store.AddEvent(ctx, domain.Event{
		SenderID:    uc.SenderID,
		Title:       ext.Title,
		StartsAt:    starts,
		DurationMin: ext.DurationMin,
	})
	if err != nil {
		return domain.Declined(), fmt.Errorf("save event: %w", err)
	}

	c.logger.Info("event scheduled", "turn", uc.TurnID, "sender", uc.SenderID,
		"id", id, "title", ext.Title, "starts_at", starts)

	return domain.HandledReport(domain.ActionReport{
		Task:   "calendar",
		Status: "registered",
		Action: "event_scheduled",
		Detail: fmt.Sprintf("%q on %s", ext.Title, starts.Format("Mon Jan 2 15:04")),
	}), nil
}

func (c *Calendar) listUpcoming(ctx context.Context, uc *domain.UserContext) (domain.Outcome, error) {
	events, err := c.store.ListUpcomingEvents(ctx, uc.SenderID, 20)
	if err != nil {
		return domain.Declined(), fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return domain.HandledReport(domain.ActionReport{
			Task: "calendar", Status: "ok", Action: "agenda_listed", Detail: "no upcoming events",
		}), nil
	}
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "- %s on %s\n", e.Title, e.StartsAt.Format("Mon Jan 2 15:04"))
	}
	return domain.HandledReport(domain.ActionReport{
		Task: "calendar", Status: "ok", Action: "agenda_listed",
		Detail: fmt.Sprintf("%d upcoming events:\n%s", len(events), strings.TrimRight(b.String(), "\n")),
	}), nil
}
