package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for Concierge.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Providers map[string]ProviderConfig `json:"providers"`
	Assistant AssistantConfig           `json:"assistant"`
	Persona   PersonaDefaults           `json:"persona"`
	Channels  ChannelsConfig            `json:"channels"`
	Memory    MemoryConfig              `json:"memory"`
	Speech    SpeechConfig              `json:"speech"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel        string   `json:"logLevel"`
	LogFile         string   `json:"logFile,omitempty"`
	DefaultProvider string   `json:"defaultProvider"`
	FailoverChain   []string `json:"failoverChain,omitempty"` // provider failover order
}

// ProviderConfig configures one OpenAI-compatible completion endpoint.
type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	FastModel    string `json:"fastModel,omitempty"`    // classification / extraction
	QualityModel string `json:"qualityModel,omitempty"` // persona-voiced generation
}

// AssistantConfig tunes the debounce/orchestration pipeline.
type AssistantConfig struct {
	DebounceSeconds          int    `json:"debounceSeconds"`          // quiet period before a turn flushes
	WorkerIdleSeconds        int    `json:"workerIdleSeconds"`        // per-sender worker retires after this much idle time
	MailboxSize              int    `json:"mailboxSize"`              // per-sender buffered message bound
	SpecialistTimeoutSeconds int    `json:"specialistTimeoutSeconds"` // per-specialist deadline
	TurnTimeoutSeconds       int    `json:"turnTimeoutSeconds"`       // whole-turn deadline
	HistoryWindow            int    `json:"historyWindow"`            // trailing turns fed to classifier and fallback
	PromptPack               string `json:"promptPack,omitempty"`     // optional YAML prompt-pack path
}

// PersonaDefaults is the persona applied to senders without a stored profile.
type PersonaDefaults struct {
	Name     string   `json:"name"`
	Gender   string   `json:"gender"`
	Traits   []string `json:"traits"`
	Language string   `json:"language"`
	Timezone string   `json:"timezone"`
	Currency string   `json:"currency,omitempty"` // default currency for expense extraction
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
	Slack    SlackConfig    `json:"slack,omitempty"`
	CLI      CLIConfig      `json:"cli"`
}

type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled"`
	AppSecret     string `json:"appSecret,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	WebhookPath   string `json:"webhookPath,omitempty"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"` // optional: restrict to specific guild
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"` // required for Socket Mode
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type MemoryConfig struct {
	DBPath            string `json:"dbPath"`
	MaxTurnsPerSender int    `json:"maxTurnsPerSender"` // history trimmed to this trailing window
	RetentionDays     int    `json:"retentionDays"`
}

// SpeechConfig configures speech-to-text (inbound voice notes) and
// text-to-speech (audio replies) at the channel edge.
type SpeechConfig struct {
	STT STTConfig `json:"stt"`
	TTS TTSConfig `json:"tts"`
}

type STTConfig struct {
	Enabled  bool   `json:"enabled"`
	APIBase  string `json:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"` // optional ISO-639-1 hint
}

type TTSConfig struct {
	Enabled bool   `json:"enabled"`
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
	Voice   string `json:"voice,omitempty"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	Port     int    `json:"port"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.concierge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".concierge"
	}
	return filepath.Join(home, ".concierge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Assistant.PromptPack = ExpandPath(cfg.Assistant.PromptPack)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Assistant.DebounceSeconds < 1 || cfg.Assistant.DebounceSeconds > 60 {
		errs = append(errs, "assistant.debounceSeconds must be between 1 and 60")
	}
	if cfg.Assistant.WorkerIdleSeconds < cfg.Assistant.DebounceSeconds {
		errs = append(errs, "assistant.workerIdleSeconds must be >= assistant.debounceSeconds")
	}
	if cfg.Assistant.MailboxSize < 1 {
		errs = append(errs, "assistant.mailboxSize must be >= 1")
	}
	if cfg.Assistant.SpecialistTimeoutSeconds < 1 {
		errs = append(errs, "assistant.specialistTimeoutSeconds must be >= 1")
	}
	if cfg.Assistant.TurnTimeoutSeconds < cfg.Assistant.SpecialistTimeoutSeconds {
		errs = append(errs, "assistant.turnTimeoutSeconds must be >= assistant.specialistTimeoutSeconds")
	}
	if cfg.Assistant.HistoryWindow < 1 {
		errs = append(errs, "assistant.historyWindow must be >= 1")
	}

	if cfg.Persona.Language == "" {
		errs = append(errs, "persona.language must not be empty")
	}

	if cfg.Memory.MaxTurnsPerSender < 1 {
		errs = append(errs, "memory.maxTurnsPerSender must be >= 1")
	}
	if cfg.Memory.RetentionDays < 1 {
		errs = append(errs, "memory.retentionDays must be >= 1")
	}

	if cfg.Channels.WhatsApp.Port < 0 || cfg.Channels.WhatsApp.Port > 65535 {
		errs = append(errs, "channels.whatsapp.port must be between 0 and 65535")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if cfg.General.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.General.DefaultProvider]; !ok {
			errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
		}
	}
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}
	for name, pc := range cfg.Providers {
		if pc.Enabled && pc.APIBase == "" {
			errs = append(errs, fmt.Sprintf("providers.%s: apiBase is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
