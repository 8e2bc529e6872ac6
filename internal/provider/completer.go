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

	"concierge/internal/domain"
	"concierge/internal/metrics"
)

// Client implements domain.Completer against an OpenAI-compatible
// chat-completions endpoint. Mode selects the model tier: fast for
// classification and extraction, quality for persona-voiced generation,
// json for fast extraction constrained to a JSON object.
type Client struct {
	name         string
	apiKey       string
	apiBase      string
	fastModel    string
	qualityModel string
	client       *http.Client
	logger       *slog.Logger
}

type ClientConfig struct {
	Name         string
	APIKey       string
	APIBase      string
	FastModel    string
	QualityModel string
	Logger       *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.FastModel == "" {
		cfg.FastModel = "gpt-4o-mini"
	}
	if cfg.QualityModel == "" {
		cfg.QualityModel = "gpt-4o"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		name:         cfg.Name,
		apiKey:       cfg.APIKey,
		apiBase:      cfg.APIBase,
		fastModel:    cfg.FastModel,
		qualityModel: cfg.QualityModel,
		client:       SharedHTTPClient(defaultHTTPTimeout),
		logger:       cfg.Logger,
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s not reachable: %w", c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: invalid API key", c.name)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", c.name, resp.StatusCode)
	}
	return nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"` // "json_object"
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Complete performs one chat completion. The fast model is used for
// ModeFast and ModeJSON; ModeQuality uses the quality model with a higher
// temperature suited to persona generation.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string, mode domain.CompletionMode) (string, error) {
	model := c.fastModel
	temp := 0.2
	var format *responseFormat

	switch mode {
	case domain.ModeQuality:
		model = c.qualityModel
		temp = 0.7
	case domain.ModeJSON:
		format = &responseFormat{Type: "json_object"}
	}

	msgs := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userMessage})

	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       msgs,
		Temperature:    &temp,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, c.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return req, nil
	}, c.logger)
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CompletionErrors.Inc()
		return "", fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.CompletionErrors.Inc()
		return "", fmt.Errorf("%s %d: %s", c.name, resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", c.name)
	}

	c.logger.Debug("completion done",
		"provider", c.name,
		"model", model,
		"mode", string(mode),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return parsed.Choices[0].Message.Content, nil
}
