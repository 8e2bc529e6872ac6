package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concierge/internal/assist"
	"concierge/internal/bus"
	"concierge/internal/channel"
	"concierge/internal/config"
	"concierge/internal/domain"
	"concierge/internal/memory"
	"concierge/internal/metrics"
	"concierge/internal/persona"
	"concierge/internal/provider"
	"concierge/internal/specialist"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "concierge",
		Short: "Concierge: persona-driven personal assistant",
		Long:  "Concierge buffers bursts of chat messages into turns, routes them to task specialists, and replies in a configurable persona over WhatsApp, Telegram, Discord, Slack, or the terminal.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.concierge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	applyLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	go core.pump()

	cliCh := channel.NewCLI(channel.CLIChannelConfig{
		PersonaName: cfg.Persona.Name,
		Logger:      logger,
	})
	return cliCh.Start(ctx, core.bus)
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start gateway (all enabled channels)",
		Long:  "Starts every enabled channel plus the HTTP gateway for webhooks and metrics. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	if err := core.completer.Healthy(ctx); err != nil {
		logger.Warn("completion provider unhealthy at startup", "provider", core.completer.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", core.completer.Name())
	}

	go core.pump()

	if cfg.Memory.RetentionDays > 0 {
		go core.purgeLoop(ctx, cfg.Memory.RetentionDays)
	}

	speech := buildSpeech(cfg)
	channels := enabledChannels(cfg, speech)
	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled; enable at least one under channels in %s", cfgPath)
	}

	for _, ch := range channels {
		ch := ch
		go func() {
			if err := ch.Start(ctx, core.bus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}()
		logger.Info("channel enabled", "channel", ch.Name())
	}

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down gateway...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			ch.Stop()
		}
		core.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			completer, err := buildCompleter(cfg)
			if err != nil {
				logger.Info("provider", "configured", false, "err", err)
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := completer.Healthy(ctx); err != nil {
				logger.Info("provider", "name", completer.Name(), "healthy", false, "err", err)
			} else {
				logger.Info("provider", "name", completer.Name(), "healthy", true)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.defaultProvider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. assistant.debounceSeconds 3)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("resulting config invalid: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func applyLogLevel(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	out := os.Stderr
	if cfg.General.LogFile != "" {
		if f, err := os.OpenFile(config.ExpandPath(cfg.General.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		} else {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// core holds the message pipeline shared by the chat and gateway commands.
type core struct {
	bus       *bus.InMemoryBus
	events    *bus.EventBus
	store     *memory.SQLiteStore
	completer domain.Completer
	buffer    *assist.Buffer
}

func buildCore(cfg *config.Config) (*core, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	completer, err := buildCompleter(cfg)
	if err != nil {
		return nil, err
	}

	defaults := domain.Profile{
		PersonaName: cfg.Persona.Name,
		Gender:      cfg.Persona.Gender,
		Traits:      cfg.Persona.Traits,
		Language:    cfg.Persona.Language,
		Timezone:    cfg.Persona.Timezone,
	}

	store, err := memory.NewSQLiteStore(memory.Config{
		DBPath:   config.ExpandPath(cfg.Memory.DBPath),
		MaxTurns: cfg.Memory.MaxTurnsPerSender,
		Defaults: defaults,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	pack, err := persona.LoadPack(config.ExpandPath(cfg.Assistant.PromptPack), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("prompt pack: %w", err)
	}
	renderer := persona.NewRenderer(completer, pack, logger)

	general := specialist.NewGeneral(completer, renderer, store, logger)

	registry := specialist.NewRegistry()
	registry.Register("general", general)
	registry.Register("finance", specialist.NewFinance(completer, store, cfg.Persona.Currency, logger))
	registry.Register("todo", specialist.NewTodo(completer, store, logger))
	registry.Register("calendar", specialist.NewCalendar(completer, store, logger))

	events := bus.NewEventBus(logger)
	messageBus := bus.New(100, logger)

	orch := assist.NewOrchestrator(assist.OrchestratorConfig{
		Classifier:     assist.NewClassifier(completer, pack.Vocabulary, logger),
		Dispatcher:     assist.NewDispatcher(registry, time.Duration(cfg.Assistant.SpecialistTimeoutSeconds)*time.Second, events, logger),
		Aggregator:     assist.NewAggregator(general, renderer, logger),
		Profiles:       store,
		History:        store,
		Sender:         assist.NewBusSender(messageBus),
		DefaultProfile: defaults,
		HistoryWindow:  cfg.Assistant.HistoryWindow,
		TurnTimeout:    time.Duration(cfg.Assistant.TurnTimeoutSeconds) * time.Second,
		Events:         events,
		Logger:         logger,
	})

	buffer := assist.NewBuffer(assist.BufferConfig{
		Debounce:    time.Duration(cfg.Assistant.DebounceSeconds) * time.Second,
		IdleTimeout: time.Duration(cfg.Assistant.WorkerIdleSeconds) * time.Second,
		MailboxSize: cfg.Assistant.MailboxSize,
		Logger:      logger,
		Events:      events,
	}, orch.HandleTurn)

	return &core{
		bus:       messageBus,
		events:    events,
		store:     store,
		completer: completer,
		buffer:    buffer,
	}, nil
}

// pump feeds inbound channel messages into the debounce buffer. It returns
// when the message bus closes.
func (c *core) pump() {
	for msg := range c.bus.Subscribe() {
		c.buffer.Enqueue(msg)
	}
}

func (c *core) purgeLoop(ctx context.Context, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.store.PurgeOld(ctx, retentionDays); err != nil {
				logger.Error("retention purge failed", "err", err)
			}
		}
	}
}

func (c *core) Close() {
	c.buffer.Close()
	c.bus.Close()
	c.store.Close()
}

func buildCompleter(cfg *config.Config) (domain.Completer, error) {
	names := append([]string{cfg.General.DefaultProvider}, cfg.General.FailoverChain...)
	seen := make(map[string]bool)
	var chain []domain.Completer
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		pc, ok := cfg.Providers[name]
		if !ok || !pc.Enabled {
			continue
		}
		chain = append(chain, provider.NewClient(provider.ClientConfig{
			Name:         name,
			APIKey:       pc.APIKey,
			APIBase:      pc.APIBase,
			FastModel:    pc.FastModel,
			QualityModel: pc.QualityModel,
			Logger:       logger,
		}))
	}
	switch len(chain) {
	case 0:
		return nil, fmt.Errorf("no enabled completion provider (defaultProvider=%q)", cfg.General.DefaultProvider)
	case 1:
		return chain[0], nil
	default:
		return provider.NewFailover(chain, logger), nil
	}
}

func buildSpeech(cfg *config.Config) *channel.Speech {
	speech := &channel.Speech{}
	if cfg.Speech.STT.Enabled {
		speech.STT = provider.NewSTT(provider.STTConfig{
			APIBase:  cfg.Speech.STT.APIBase,
			APIKey:   cfg.Speech.STT.APIKey,
			Model:    cfg.Speech.STT.Model,
			Language: cfg.Speech.STT.Language,
			Logger:   logger,
		})
	}
	if cfg.Speech.TTS.Enabled {
		speech.TTS = provider.NewTTS(provider.TTSConfig{
			APIBase: cfg.Speech.TTS.APIBase,
			APIKey:  cfg.Speech.TTS.APIKey,
			Model:   cfg.Speech.TTS.Model,
			Voice:   cfg.Speech.TTS.Voice,
			Logger:  logger,
		})
	}
	if speech.STT == nil && speech.TTS == nil {
		return nil
	}
	return speech
}

// enabledChannels builds every channel the config turns on. The HTTP gateway
// is included when anything needs to be served over HTTP: the WhatsApp
// webhook or the metrics endpoint.
func enabledChannels(cfg *config.Config, speech *channel.Speech) []domain.Channel {
	var channels []domain.Channel
	var gw *channel.Gateway

	ensureGateway := func(host string, port int) *channel.Gateway {
		if gw == nil {
			gw = channel.NewGateway(channel.GatewayConfig{Host: host, Port: port, Logger: logger})
			channels = append(channels, gw)
		}
		return gw
	}

	if cfg.Channels.WhatsApp.Enabled {
		wa := channel.NewWhatsApp(channel.WhatsAppChannelConfig{
			Config: cfg.Channels.WhatsApp,
			Speech: speech,
			Logger: logger,
		})
		channels = append(channels, wa)
		webhookPath := cfg.Channels.WhatsApp.WebhookPath
		if webhookPath == "" {
			webhookPath = "/webhook/whatsapp"
		}
		ensureGateway(cfg.Channels.WhatsApp.Host, cfg.Channels.WhatsApp.Port).Mount(webhookPath, wa.Handler())
	}

	if cfg.Metrics.Enabled {
		endpoint := cfg.Metrics.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		ensureGateway("0.0.0.0", cfg.Metrics.Port).Mount(endpoint, metrics.Collector.Handler())
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		channels = append(channels, channel.NewTelegram(channel.TelegramChannelConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Speech:    speech,
			Logger:    logger,
		}))
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		channels = append(channels, channel.NewDiscord(channel.DiscordChannelConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		}))
	}

	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.BotToken != "" {
		channels = append(channels, channel.NewSlack(channel.SlackChannelConfig{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
			Logger:   logger,
		}))
	}

	if cfg.Channels.CLI.Enabled {
		channels = append(channels, channel.NewCLI(channel.CLIChannelConfig{
			PersonaName: cfg.Persona.Name,
			Logger:      logger,
		}))
	}

	return channels
}
