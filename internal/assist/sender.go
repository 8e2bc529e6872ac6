package assist

import (
	"context"

	"concierge/internal/domain"
)

// BusSender delivers replies by handing them to the message bus; the channel
// that registered for the outbound handler finishes delivery.
type BusSender struct {
	bus domain.MessageBus
}

func NewBusSender(b domain.MessageBus) *BusSender {
	return &BusSender{bus: b}
}

func (s *BusSender) Send(_ context.Context, senderID, text string, opts domain.SendOptions) error {
	chatID := opts.ChatID
	if chatID == "" {
		chatID = senderID
	}
	s.bus.SendOutbound(domain.OutboundMessage{
		Channel:      opts.Channel,
		ChatID:       chatID,
		Content:      text,
		Voice:        opts.Profile.AudioReply,
		OriginalText: opts.OriginalText,
	})
	return nil
}
