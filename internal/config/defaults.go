package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:        "info",
			DefaultProvider: "openai",
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled:      true,
				APIBase:      "https://api.openai.com/v1",
				FastModel:    "gpt-4o-mini",
				QualityModel: "gpt-4o",
			},
		},
		Assistant: AssistantConfig{
			DebounceSeconds:          2,
			WorkerIdleSeconds:        60,
			MailboxSize:              64,
			SpecialistTimeoutSeconds: 60,
			TurnTimeoutSeconds:       120,
			HistoryWindow:            10,
		},
		Persona: PersonaDefaults{
			Name:     "Ana",
			Gender:   "female",
			Traits:   []string{"warm", "practical", "direct"},
			Language: "Portuguese",
			Timezone: "America/Sao_Paulo",
			Currency: "BRL",
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:     false,
				WebhookPath: "/webhook/whatsapp",
				Host:        "0.0.0.0",
				Port:        8080,
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
			Discord: DiscordConfig{
				Enabled: false,
			},
			Slack: SlackConfig{
				Enabled: false,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Memory: MemoryConfig{
			DBPath:            "~/.concierge/concierge.db",
			MaxTurnsPerSender: 50,
			RetentionDays:     365,
		},
		Speech: SpeechConfig{
			STT: STTConfig{
				Enabled: false,
				APIBase: "https://api.groq.com/openai/v1",
				Model:   "whisper-large-v3",
			},
			TTS: TTSConfig{
				Enabled: false,
				APIBase: "https://api.openai.com/v1",
				Model:   "tts-1",
				Voice:   "alloy",
			},
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
			Port:     9091,
		},
	}
}
