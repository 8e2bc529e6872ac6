package domain

import "context"

// Profile is a per-sender configuration snapshot: how the assistant presents
// itself to this user and in which language it must answer.
type Profile struct {
	SenderID    string   `json:"sender_id"`
	PersonaName string   `json:"persona_name"`
	Gender      string   `json:"gender"`
	Traits      []string `json:"traits"`
	Language    string   `json:"language"`
	Timezone    string   `json:"timezone"`
	AudioReply  bool     `json:"audio_reply"`
}

// ProfileStore looks up per-sender configuration. Lookup must never fail a
// turn: absence of a record yields the documented defaults, and transport
// errors are resolved to defaults by the caller.
type ProfileStore interface {
	GetProfile(ctx context.Context, senderID string) (Profile, error)
	SaveProfile(ctx context.Context, p Profile) error
}
