package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TTSConfig configures the text-to-speech provider used for audio replies.
type TTSConfig struct {
	APIBase string
	APIKey  string
	Model   string // e.g. "tts-1"
	Voice   string // e.g. "alloy", "nova", "shimmer"
	Logger  *slog.Logger
}

// TTS synthesizes final reply text into speech for users whose profile asks
// for audio replies.
type TTS struct {
	apiBase string
	apiKey  string
	model   string
	voice   string
	client  *http.Client
	logger  *slog.Logger
}

// NewTTS creates a new text-to-speech provider.
func NewTTS(cfg TTSConfig) *TTS {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TTS{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		voice:   cfg.Voice,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Synthesize converts text to MP3 audio bytes.
func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"model": t.model,
		"input": text,
		"voice": t.voice,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	url := t.apiBase + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TTS API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	t.logger.Debug("speech synthesized", "text_len", len(text), "audio_bytes", len(audio))
	return audio, nil
}
