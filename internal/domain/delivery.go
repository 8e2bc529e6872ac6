package domain

import "context"

// SendOptions carries everything a channel needs to finish delivery,
// including the voice-reply decision it makes downstream.
type SendOptions struct {
	Channel      string
	ChatID       string
	Profile      Profile
	OriginalText string
}

// Sender delivers final reply text to a user.
type Sender interface {
	Send(ctx context.Context, senderID, text string, opts SendOptions) error
}
