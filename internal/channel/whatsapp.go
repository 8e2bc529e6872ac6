package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"concierge/internal/config"
	"concierge/internal/domain"
)

const (
	whatsappAPIBase   = "https://graph.facebook.com/v21.0"
	whatsappMaxMsgLen = 4000
)

// WhatsApp implements domain.Channel for the WhatsApp Business Cloud API.
// Inbound voice notes are transcribed before publishing; replies go out as
// audio when the turn asks for it and a TTS provider is wired.
type WhatsApp struct {
	cfg     config.WhatsAppConfig
	speech  *Speech
	bus     domain.MessageBus
	logger  *slog.Logger
	client  *http.Client
	mux     *http.ServeMux
	apiBase string
}

type WhatsAppChannelConfig struct {
	Config  config.WhatsAppConfig
	Speech  *Speech
	Logger  *slog.Logger
	APIBase string // overridable for tests
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = whatsappAPIBase
	}
	w := &WhatsApp{
		cfg:     cfg.Config,
		speech:  cfg.Speech,
		logger:  cfg.Logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: cfg.APIBase,
	}

	webhookPath := w.cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhook/whatsapp"
	}
	w.mux = http.NewServeMux()
	w.mux.HandleFunc("GET "+webhookPath, w.handleVerification)
	w.mux.HandleFunc("POST "+webhookPath, w.handleIncoming)

	return w
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	w.bus = bus

	bus.OnOutbound("whatsapp", func(msg domain.OutboundMessage) {
		w.deliver(ctx, msg)
	})

	w.logger.Info("whatsapp channel ready")
	return nil
}

func (w *WhatsApp) Stop() error { return nil }

// Handler returns the webhook handler for mounting on the gateway server.
func (w *WhatsApp) Handler() http.Handler {
	if w.mux == nil {
		return http.NotFoundHandler()
	}
	return w.mux
}

func (w *WhatsApp) deliver(ctx context.Context, msg domain.OutboundMessage) {
	if msg.Content == "" {
		return
	}
	if msg.Voice && w.speech.canSynthesize() {
		err := w.sendAudio(ctx, msg.ChatID, msg.Content)
		if err == nil {
			return
		}
		w.logger.Warn("whatsapp audio reply failed, falling back to text", "chat", msg.ChatID, "err", err)
	}
	for _, chunk := range splitMessage(msg.Content, whatsappMaxMsgLen) {
		if err := w.sendText(ctx, msg.ChatID, chunk); err != nil {
			w.logger.Error("whatsapp send failed", "chat", msg.ChatID, "err", err)
			return
		}
	}
}

// --- Webhook handlers ---

// handleVerification answers the webhook subscription challenge.
func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == w.cfg.VerifyToken {
		w.logger.Info("whatsapp webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if w.cfg.AppSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if !w.verifySignature(body, sig) {
			w.logger.Warn("whatsapp invalid signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		w.logger.Warn("whatsapp bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	rw.WriteHeader(http.StatusOK)

	// Processing runs detached so the handler returns and the 200 reaches
	// the wire before any transcription work; Meta retries on timeout. The
	// request context dies with the handler, so the work gets its own.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		for _, entry := range payload.Entry {
			for _, change := range entry.Changes {
				names := displayNames(change.Value.Contacts)
				for _, msg := range change.Value.Messages {
					w.handleMessage(ctx, msg, names[msg.From])
				}
			}
		}
	}()
}

func (w *WhatsApp) handleMessage(ctx context.Context, msg waMessage, displayName string) {
	content := ""
	switch {
	case msg.Type == "text" && msg.Text != nil:
		content = msg.Text.Body
	case (msg.Type == "audio" || msg.Type == "voice") && msg.Audio != nil:
		if !w.speech.canTranscribe() {
			w.logger.Warn("voice note received but no STT configured", "from", msg.From)
			return
		}
		text, err := w.transcribeMedia(ctx, msg.Audio.ID)
		if err != nil {
			w.logger.Error("voice note transcription failed", "from", msg.From, "err", err)
			return
		}
		content = text
	default:
		w.logger.Debug("ignoring unsupported whatsapp message", "type", msg.Type, "from", msg.From)
		return
	}
	if content == "" || w.bus == nil {
		return
	}

	ts, err := strconv.ParseInt(msg.Timestamp, 10, 64)
	if err != nil {
		ts = time.Now().Unix()
	}

	w.logger.Info("whatsapp message received", "from", msg.From, "type", msg.Type, "text_len", len(content))

	w.bus.Publish(domain.InboundMessage{
		Channel:     "whatsapp",
		ChatID:      msg.From,
		SenderID:    msg.From,
		DisplayName: displayName,
		Content:     content,
		Timestamp:   ts,
	})
}

// verifySignature checks the X-Hub-Signature-256 header.
func (w *WhatsApp) verifySignature(body []byte, signature string) bool {
	if len(signature) < 7 || signature[:7] != "sha256=" {
		return false
	}
	expected := signature[7:]

	mac := hmac.New(sha256.New, []byte(w.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// --- Graph API calls ---

func (w *WhatsApp) sendText(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	return w.postMessage(ctx, payload)
}

// sendAudio synthesizes the reply, uploads it as media, and sends an audio
// message referencing the uploaded ID.
func (w *WhatsApp) sendAudio(ctx context.Context, to, text string) error {
	audio, err := w.speech.TTS.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	mediaID, err := w.uploadMedia(ctx, audio)
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "audio",
		"audio":             map[string]string{"id": mediaID},
	}
	return w.postMessage(ctx, payload)
}

func (w *WhatsApp) postMessage(ctx context.Context, payload map[string]any) error {
	url := fmt.Sprintf("%s/%s/messages", w.apiBase, w.cfg.PhoneNumberID)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (w *WhatsApp) uploadMedia(ctx context.Context, audio []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.WriteField("messaging_product", "whatsapp")
	writer.WriteField("type", "audio/mpeg")
	part, err := writer.CreateFormFile("file", "reply.mp3")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	writer.Close()

	url := fmt.Sprintf("%s/%s/media", w.apiBase, w.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("media upload %d: %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// transcribeMedia resolves a media ID to its download URL, fetches the audio,
// and runs it through the STT provider.
func (w *WhatsApp) transcribeMedia(ctx context.Context, mediaID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.apiBase+"/"+mediaID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve media: status %d", resp.StatusCode)
	}

	var meta struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", err
	}

	dl, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return "", err
	}
	dl.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	audio, err := w.client.Do(dl)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer audio.Body.Close()
	if audio.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download media: status %d", audio.StatusCode)
	}

	return w.speech.transcribe(ctx, audio.Body, "voice.ogg")
}

func displayNames(contacts []waContact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if c.Profile != nil {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}

// --- Webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Contacts         []waContact `json:"contacts"`
	Messages         []waMessage `json:"messages"`
}

type waContact struct {
	WaID    string     `json:"wa_id"`
	Profile *waProfile `json:"profile,omitempty"`
}

type waProfile struct {
	Name string `json:"name"`
}

type waMessage struct {
	From      string   `json:"from"`
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Timestamp string   `json:"timestamp"`
	Text      *waText  `json:"text,omitempty"`
	Audio     *waAudio `json:"audio,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waAudio struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}
