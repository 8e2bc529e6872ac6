package domain

import (
	"context"
	"time"
)

// Expense is a registered spending entry.
type Expense struct {
	ID          int64     `json:"id"`
	SenderID    string    `json:"sender_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reminder is a pending todo item.
type Reminder struct {
	ID        int64      `json:"id"`
	SenderID  string     `json:"sender_id"`
	Title     string     `json:"title"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	Done      bool       `json:"done"`
	CreatedAt time.Time  `json:"created_at"`
}

// Event is a calendar entry.
type Event struct {
	ID          int64     `json:"id"`
	SenderID    string    `json:"sender_id"`
	Title       string    `json:"title"`
	StartsAt    time.Time `json:"starts_at"`
	DurationMin int       `json:"duration_min"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActionStore persists the side effects of domain specialists. This is the
// live database state specialists read back from; it is not conversation
// history.
type ActionStore interface {
	AddExpense(ctx context.Context, e Expense) (int64, error)
	ListExpenses(ctx context.Context, senderID string, limit int) ([]Expense, error)

	AddReminder(ctx context.Context, r Reminder) (int64, error)
	ListOpenReminders(ctx context.Context, senderID string, limit int) ([]Reminder, error)

	AddEvent(ctx context.Context, e Event) (int64, error)
	ListUpcomingEvents(ctx context.Context, senderID string, limit int) ([]Event, error)
}
