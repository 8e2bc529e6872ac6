package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"concierge/internal/bus"
	"concierge/internal/domain"
	"concierge/internal/metrics"
)

// apologyText is the fixed terminal reply for failed turns. Deliberately
// persona-less: when the pipeline is broken we cannot trust it to render.
const apologyText = "Sorry, something went wrong on my side. Please try again in a moment."

// OrchestratorConfig wires one orchestrator.
type OrchestratorConfig struct {
	Classifier *Classifier
	Dispatcher *Dispatcher
	Aggregator *Aggregator
	Profiles   domain.ProfileStore
	History    domain.HistoryStore
	Sender     domain.Sender

	DefaultProfile domain.Profile
	HistoryWindow  int
	TurnTimeout    time.Duration

	Events *bus.EventBus
	Logger *slog.Logger
}

// Orchestrator runs one coalesced turn end to end: profile and history load,
// classification, concurrent dispatch, aggregation, delivery. Any failure
// past intake degrades to the fixed apology; the user always hears back
// unless delivery itself fails.
type Orchestrator struct {
	cfg OrchestratorConfig
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg}
}

// HandleTurn processes one flushed turn. It never returns an error: every
// outcome is either a delivered reply or a logged terminal state.
func (o *Orchestrator) HandleTurn(ctx context.Context, req FlushRequest) {
	start := time.Now()
	turnID := uuid.NewString()[:8]
	logger := o.cfg.Logger.With("turn", turnID, "sender", req.SenderID, "channel", req.Channel)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("turn panicked", "panic", r)
			o.apologize(logger, req)
		}
		metrics.TurnLatency.Observe(time.Since(start).Seconds())
	}()

	logger.Info("turn started", "text_len", len(req.Text))

	profile := o.loadProfile(ctx, logger, req.SenderID)
	history := o.loadHistory(ctx, logger, req.SenderID)

	uc := &domain.UserContext{
		TurnID:      turnID,
		Channel:     req.Channel,
		ChatID:      req.ChatID,
		SenderID:    req.SenderID,
		DisplayName: req.DisplayName,
		Text:        req.Text,
		Profile:     profile,
		History:     history,
	}

	keywords, err := o.cfg.Classifier.Classify(ctx, req.Text, transcript(history))
	if err != nil {
		logger.Error("classification failed", "err", err)
		o.emit(bus.EventProviderError, map[string]any{"turn": turnID, "stage": "classify", "err": err.Error()})
		o.apologize(logger, req)
		return
	}
	logger.Info("turn classified", "keywords", keywords)
	o.emit(bus.EventTurnClassified, map[string]any{"turn": turnID, "keywords": keywords})

	results := o.cfg.Dispatcher.Dispatch(ctx, keywords, uc)

	text, err := o.cfg.Aggregator.Aggregate(ctx, uc, results)
	if err != nil {
		logger.Error("aggregation failed", "err", err)
		o.emit(bus.EventProviderError, map[string]any{"turn": turnID, "stage": "aggregate", "err": err.Error()})
		o.apologize(logger, req)
		return
	}
	if strings.TrimSpace(text) == "" {
		logger.Error("aggregation produced empty reply")
		o.apologize(logger, req)
		return
	}

	if err := o.deliver(ctx, req, profile, text); err != nil {
		logger.Error("delivery failed", "err", err)
		return
	}

	metrics.TurnsDelivered.Inc()
	o.emit(bus.EventTurnDelivered, map[string]any{"turn": turnID, "sender": req.SenderID})
	logger.Info("turn delivered", "elapsed", time.Since(start).Round(time.Millisecond))
}

func (o *Orchestrator) loadProfile(ctx context.Context, logger *slog.Logger, senderID string) domain.Profile {
	p, err := o.cfg.Profiles.GetProfile(ctx, senderID)
	if err != nil {
		logger.Warn("profile lookup failed, using defaults", "err", err)
		p = o.cfg.DefaultProfile
		p.SenderID = senderID
	}
	return p
}

func (o *Orchestrator) loadHistory(ctx context.Context, logger *slog.Logger, senderID string) []domain.Turn {
	turns, err := o.cfg.History.LoadRecent(ctx, senderID, o.cfg.HistoryWindow)
	if err != nil {
		logger.Warn("history lookup failed, proceeding without", "err", err)
		return nil
	}
	return turns
}

func (o *Orchestrator) deliver(ctx context.Context, req FlushRequest, profile domain.Profile, text string) error {
	return o.cfg.Sender.Send(ctx, req.SenderID, text, domain.SendOptions{
		Channel:      req.Channel,
		ChatID:       req.ChatID,
		Profile:      profile,
		OriginalText: req.Text,
	})
}

// apologize sends the fixed failure reply. Best effort on a fresh deadline,
// since the turn context may already be dead.
func (o *Orchestrator) apologize(logger *slog.Logger, req FlushRequest) {
	metrics.TurnsApologized.Inc()
	o.emit(bus.EventTurnApologized, map[string]any{"sender": req.SenderID})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := o.cfg.Sender.Send(ctx, req.SenderID, apologyText, domain.SendOptions{
		Channel: req.Channel,
		ChatID:  req.ChatID,
	})
	if err != nil {
		logger.Error("apology delivery failed", "err", err)
	}
}

func (o *Orchestrator) emit(eventType string, payload map[string]any) {
	if o.cfg.Events != nil {
		o.cfg.Events.EmitAsync(bus.Event{Type: eventType, Source: "orchestrator", Payload: payload})
	}
}

// transcript flattens recent turns for the classifier's context window.
func transcript(turns []domain.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.UserText, t.AssistantText)
	}
	return strings.TrimRight(b.String(), "\n")
}
