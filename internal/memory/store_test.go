package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"concierge/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{
		DBPath:   filepath.Join(t.TempDir(), "test.db"),
		MaxTurns: 5,
		Defaults: domain.Profile{
			PersonaName: "Ana",
			Gender:      "female",
			Traits:      []string{"warm", "practical"},
			Language:    "Portuguese",
			Timezone:    "America/Sao_Paulo",
		},
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetProfileDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p, err := store.GetProfile(ctx, "unknown-sender")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.SenderID != "unknown-sender" {
		t.Errorf("expected sender id filled in, got %q", p.SenderID)
	}
	if p.PersonaName != "Ana" || p.Language != "Portuguese" {
		t.Errorf("expected defaults, got %+v", p)
	}
}

func TestSaveProfileRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := domain.Profile{
		SenderID:    "u1",
		PersonaName: "Max",
		Gender:      "male",
		Traits:      []string{"dry", "precise"},
		Language:    "English",
		Timezone:    "Europe/Berlin",
		AudioReply:  true,
	}
	if err := store.SaveProfile(ctx, in); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	out, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if out.PersonaName != "Max" || out.Language != "English" || !out.AudioReply {
		t.Errorf("roundtrip mismatch: %+v", out)
	}
	if len(out.Traits) != 2 || out.Traits[0] != "dry" {
		t.Errorf("traits mismatch: %v", out.Traits)
	}

	// Upsert path.
	in.Language = "German"
	if err := store.SaveProfile(ctx, in); err != nil {
		t.Fatalf("SaveProfile update: %v", err)
	}
	out, _ = store.GetProfile(ctx, "u1")
	if out.Language != "German" {
		t.Errorf("expected updated language, got %q", out.Language)
	}
}

func TestHistoryAppendAndTrim(t *testing.T) {
	store := newTestStore(t) // MaxTurns: 5
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if err := store.AppendTurn(ctx, "u1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	all, err := store.LoadAll(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected history trimmed to 5 turns, got %d", len(all))
	}
	if all[0].UserText != "q3" || all[4].UserText != "q7" {
		t.Errorf("expected trailing window q3..q7, got %q..%q", all[0].UserText, all[4].UserText)
	}
}

func TestLoadRecentOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		store.AppendTurn(ctx, "u1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	store.AppendTurn(ctx, "other", "x", "y")

	recent, err := store.LoadRecent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(recent))
	}
	// Chronological order, most recent last.
	if recent[0].UserText != "q2" || recent[1].UserText != "q3" {
		t.Errorf("unexpected ordering: %q, %q", recent[0].UserText, recent[1].UserText)
	}
}

func TestExpenses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.AddExpense(ctx, domain.Expense{
		SenderID: "u1", Amount: 42.50, Currency: "BRL", Category: "food", Description: "lunch",
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero id")
	}
	store.AddExpense(ctx, domain.Expense{SenderID: "other", Amount: 9})

	list, err := store.ListExpenses(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(list) != 1 || list[0].Amount != 42.50 || list[0].Category != "food" {
		t.Errorf("unexpected expenses: %+v", list)
	}
}

func TestReminders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour)
	if _, err := store.AddReminder(ctx, domain.Reminder{SenderID: "u1", Title: "pay rent", DueAt: &due}); err != nil {
		t.Fatalf("AddReminder: %v", err)
	}
	if _, err := store.AddReminder(ctx, domain.Reminder{SenderID: "u1", Title: "no due date"}); err != nil {
		t.Fatalf("AddReminder: %v", err)
	}

	open, err := store.ListOpenReminders(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListOpenReminders: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open reminders, got %d", len(open))
	}
	if open[0].Title != "pay rent" || open[0].DueAt == nil {
		t.Errorf("unexpected first reminder: %+v", open[0])
	}
	if open[1].DueAt != nil {
		t.Errorf("expected nil due date, got %v", open[1].DueAt)
	}
}

func TestEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddEvent(ctx, domain.Event{SenderID: "u1", Title: "past", StartsAt: time.Now().Add(-time.Hour)})
	store.AddEvent(ctx, domain.Event{SenderID: "u1", Title: "dentist", StartsAt: time.Now().Add(2 * time.Hour)})
	store.AddEvent(ctx, domain.Event{SenderID: "u1", Title: "gym", StartsAt: time.Now().Add(time.Hour), DurationMin: 90})

	upcoming, err := store.ListUpcomingEvents(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListUpcomingEvents: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 upcoming events, got %d", len(upcoming))
	}
	if upcoming[0].Title != "gym" || upcoming[0].DurationMin != 90 {
		t.Errorf("expected gym first, got %+v", upcoming[0])
	}
}

func TestPurgeOld(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AppendTurn(ctx, "u1", "q", "a")
	if _, err := store.db.Exec(
		`INSERT INTO history (sender_id, user_text, assistant_text, created_at) VALUES (?, ?, ?, ?)`,
		"u1", "old", "old", time.Now().AddDate(0, 0, -90),
	); err != nil {
		t.Fatalf("seed old row: %v", err)
	}

	if err := store.PurgeOld(ctx, 30); err != nil {
		t.Fatalf("PurgeOld: %v", err)
	}

	all, _ := store.LoadAll(ctx, "u1")
	if len(all) != 1 || all[0].UserText != "q" {
		t.Errorf("expected only recent turn to survive, got %+v", all)
	}
}
