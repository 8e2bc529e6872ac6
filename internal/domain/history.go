package domain

import (
	"context"
	"time"
)

// Turn is one persisted user/assistant exchange.
type Turn struct {
	SenderID      string    `json:"sender_id"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryStore persists the conversational history per sender. AppendTurn
// trims each sender's log to a bounded trailing window. Only the fallback
// conversational path writes here; domain specialists do not.
type HistoryStore interface {
	AppendTurn(ctx context.Context, senderID, userText, assistantText string) error
	LoadRecent(ctx context.Context, senderID string, limit int) ([]Turn, error)
	LoadAll(ctx context.Context, senderID string) ([]Turn, error)
}
