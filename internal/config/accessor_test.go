package config

import (
	"strings"
	"testing"
)

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "general.defaultProvider")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "openai" {
		t.Fatalf("expected 'openai', got %v", val)
	}

	val, err = GetByPath(cfg, "assistant.debounceSeconds")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != float64(2) {
		t.Fatalf("expected 2, got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "persona.name", "Clara"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Persona.Name != "Clara" {
		t.Fatalf("expected 'Clara', got %q", cfg.Persona.Name)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "channels.telegram.enabled", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Fatal("expected channels.telegram.enabled=true")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "assistant.debounceSeconds", "5"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Assistant.DebounceSeconds != 5 {
		t.Fatalf("expected 5, got %d", cfg.Assistant.DebounceSeconds)
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"
	cfg.Providers["openai"] = ProviderConfig{
		Enabled: true,
		APIKey:  "sk-1234567890abcdefghijklmnop",
	}

	sanitized := Sanitize(cfg)

	if sanitized.Channels.Telegram.Token == cfg.Channels.Telegram.Token {
		t.Fatal("telegram token should be masked")
	}
	if sanitized.Providers["openai"].APIKey == cfg.Providers["openai"].APIKey {
		t.Fatal("API key should be masked")
	}
	if cfg.Channels.Telegram.Token != "123456789:ABCdefGHIjklMNOpqrSTUvwxyz" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_MasksWhatsAppSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.WhatsApp.AccessToken = "EAALongMetaAccessTokenValue12345"
	cfg.Channels.WhatsApp.AppSecret = "app-secret-value"

	sanitized := Sanitize(cfg)

	if sanitized.Channels.WhatsApp.AccessToken == cfg.Channels.WhatsApp.AccessToken {
		t.Fatal("access token should be masked")
	}
	if sanitized.Channels.WhatsApp.AppSecret != "***" {
		t.Fatalf("app secret should be fully masked, got %q", sanitized.Channels.WhatsApp.AppSecret)
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "short"

	sanitized := Sanitize(cfg)
	if sanitized.Channels.Telegram.Token != "***" {
		t.Fatalf("short secret should be fully masked, got %q", sanitized.Channels.Telegram.Token)
	}
}

func TestSanitize_MaskKeepsEdges(t *testing.T) {
	cfg := Defaults()
	cfg.Speech.STT.APIKey = "gsk_abcdefghijklmnop"

	sanitized := Sanitize(cfg)
	masked := sanitized.Speech.STT.APIKey
	if !strings.HasPrefix(masked, "gsk_") || !strings.HasSuffix(masked, "mnop") {
		t.Fatalf("mask should keep first and last 4 chars, got %q", masked)
	}
	if strings.Contains(masked, "abcdefghijkl") {
		t.Fatalf("mask leaked the middle: %q", masked)
	}
}

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty path map")
	}
	if _, ok := paths["general.defaultProvider"]; !ok {
		t.Fatal("expected general.defaultProvider in paths")
	}
	if _, ok := paths["memory.dbPath"]; !ok {
		t.Fatal("expected memory.dbPath in paths")
	}
}
