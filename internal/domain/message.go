package domain

// InboundMessage is one unit of inbound content from a channel: a text
// message, or the transcription of a voice note. Channels normalize media to
// plain text before publishing; the core only ever sees text.
type InboundMessage struct {
	Channel     string
	ChatID      string
	SenderID    string // stable external handle, e.g. phone number as digits
	DisplayName string
	Content     string
	Timestamp   int64 // epoch seconds as reported by the platform
}

// OutboundMessage is a finished reply on its way back to a channel.
type OutboundMessage struct {
	Channel      string
	ChatID       string
	Content      string
	Voice        bool   // user prefers an audio reply; channel decides if it can
	OriginalText string // the user text that produced this reply
}

// MessageBus routes messages between channels and the assistant core.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
