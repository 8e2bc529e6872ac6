package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"concierge/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram implements domain.Channel over long polling. Voice notes are
// transcribed at the edge; replies can go out as voice messages.
type Telegram struct {
	token     string
	allowFrom []int64 // allowed user IDs, empty means allow all
	speech    *Speech

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
	client *http.Client
}

type TelegramChannelConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	Speech    *Speech
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramChannelConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		speech:    cfg.Speech,
		logger:    cfg.Logger,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		t.deliver(ctx, chatID, msg)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user", "user_id", userID, "username", update.Message.From.UserName)
		t.sendText(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	content := strings.TrimSpace(update.Message.Text)
	if content == "" && update.Message.Voice != nil {
		text, err := t.transcribeVoice(ctx, update.Message.Voice.FileID)
		if err != nil {
			t.logger.Error("voice note transcription failed", "user_id", userID, "err", err)
			return
		}
		content = text
	}
	if content == "" {
		return
	}

	t.logger.Info("telegram message received", "user_id", userID, "chat_id", chatID, "text_len", len(content))

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	displayName := strings.TrimSpace(update.Message.From.FirstName + " " + update.Message.From.LastName)

	t.bus.Publish(domain.InboundMessage{
		Channel:     "telegram",
		ChatID:      strconv.FormatInt(chatID, 10),
		SenderID:    strconv.FormatInt(userID, 10),
		DisplayName: displayName,
		Content:     content,
		Timestamp:   int64(update.Message.Date),
	})
}

func (t *Telegram) transcribeVoice(ctx context.Context, fileID string) (string, error) {
	if !t.speech.canTranscribe() {
		return "", fmt.Errorf("no STT configured")
	}

	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve voice file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download voice file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download voice file: status %d", resp.StatusCode)
	}

	return t.speech.transcribe(ctx, resp.Body, "voice.ogg")
}

func (t *Telegram) deliver(ctx context.Context, chatID int64, msg domain.OutboundMessage) {
	if msg.Content == "" {
		return
	}
	if msg.Voice && t.speech.canSynthesize() {
		err := t.sendVoice(ctx, chatID, msg.Content)
		if err == nil {
			return
		}
		t.logger.Warn("telegram voice reply failed, falling back to text", "chat_id", chatID, "err", err)
	}
	t.sendText(chatID, msg.Content)
}

func (t *Telegram) sendVoice(ctx context.Context, chatID int64, text string) error {
	audio, err := t.speech.TTS.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "reply.mp3", Bytes: audio})
	if _, err := t.bot.Send(voice); err != nil {
		return fmt.Errorf("send voice: %w", err)
	}
	return nil
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendText(chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends one message with retry and rate limit handling.
func (t *Telegram) sendChunk(chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter, "attempt", attempt+1)
			time.Sleep(retryAfter)
			continue
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
	}
}
