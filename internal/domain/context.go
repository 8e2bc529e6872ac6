package domain

// UserContext is the ephemeral value assembled once per flush and shared by
// every specialist in that turn. It is immutable for the duration of one
// orchestration pass and never persisted.
type UserContext struct {
	TurnID      string
	Channel     string
	ChatID      string
	SenderID    string
	DisplayName string
	Text        string // merged turn text, timestamp-ordered
	Profile     Profile
	History     []Turn // bounded trailing window, oldest first
}
