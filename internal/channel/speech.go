package channel

import (
	"context"
	"io"

	"concierge/internal/provider"
)

// Speech bundles the optional speech providers channels use at the edge:
// inbound voice notes are transcribed before publishing, and replies are
// synthesized when the profile asks for audio. Either side may be nil.
type Speech struct {
	STT *provider.STT
	TTS *provider.TTS
}

func (s *Speech) canTranscribe() bool { return s != nil && s.STT != nil }
func (s *Speech) canSynthesize() bool { return s != nil && s.TTS != nil }

func (s *Speech) transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	tr, err := s.STT.Transcribe(ctx, audio, filename)
	if err != nil {
		return "", err
	}
	return tr.Text, nil
}
