package persona

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"concierge/internal/domain"
)

type fakeCompleter struct {
	lastSystem string
	lastUser   string
	lastMode   domain.CompletionMode
	reply      string
	err        error
	calls      int
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string, mode domain.CompletionMode) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastUser = user
	f.lastMode = mode
	return f.reply, f.err
}

func (f *fakeCompleter) Name() string                  { return "fake" }
func (f *fakeCompleter) Healthy(context.Context) error { return nil }

func testProfile() domain.Profile {
	return domain.Profile{
		SenderID:    "u1",
		PersonaName: "Ana",
		Gender:      "female",
		Traits:      []string{"warm", "direct"},
		Language:    "Portuguese",
	}
}

func TestSystemPromptSubstitution(t *testing.T) {
	r := NewRenderer(&fakeCompleter{}, nil, slog.Default())
	prompt := r.SystemPrompt(testProfile())

	for _, want := range []string{"Ana", "female", "warm, direct", "Portuguese"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "{{") {
		t.Errorf("unexpanded placeholder left in prompt:\n%s", prompt)
	}
}

func TestSystemPromptDefaults(t *testing.T) {
	r := NewRenderer(&fakeCompleter{}, nil, slog.Default())
	prompt := r.SystemPrompt(domain.Profile{SenderID: "u1"})
	if !strings.Contains(prompt, "Assistant") || !strings.Contains(prompt, "English") {
		t.Errorf("expected fallback name and language:\n%s", prompt)
	}
}

func TestConfirmUsesQualityMode(t *testing.T) {
	fc := &fakeCompleter{reply: "  Anotei o almoço de R$42.  "}
	r := NewRenderer(fc, nil, slog.Default())

	text, err := r.Confirm(context.Background(), testProfile(), &domain.ActionReport{
		Task: "finance", Status: "registered", Action: "expense_registered", Detail: "R$42 lunch",
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if text != "Anotei o almoço de R$42." {
		t.Errorf("expected trimmed reply, got %q", text)
	}
	if fc.lastMode != domain.ModeQuality {
		t.Errorf("expected quality mode, got %q", fc.lastMode)
	}
	if !strings.Contains(fc.lastUser, "R$42 lunch") {
		t.Errorf("report detail missing from user message: %q", fc.lastUser)
	}
	if !strings.Contains(fc.lastSystem, "Portuguese") {
		t.Errorf("language constraint missing from system prompt")
	}
}

func TestConfirmPropagatesError(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("boom")}
	r := NewRenderer(fc, nil, slog.Default())
	if _, err := r.Confirm(context.Background(), testProfile(), &domain.ActionReport{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFuseSinglePartShortCircuits(t *testing.T) {
	fc := &fakeCompleter{reply: "should not be used"}
	r := NewRenderer(fc, nil, slog.Default())

	text, err := r.Fuse(context.Background(), testProfile(), []string{"only part"})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if text != "only part" {
		t.Errorf("expected passthrough, got %q", text)
	}
	if fc.calls != 0 {
		t.Errorf("expected no completion call, got %d", fc.calls)
	}
}

func TestFuseMultipleParts(t *testing.T) {
	fc := &fakeCompleter{reply: "fused"}
	r := NewRenderer(fc, nil, slog.Default())

	text, err := r.Fuse(context.Background(), testProfile(), []string{"expense saved", "reminder created"})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if text != "fused" {
		t.Errorf("got %q", text)
	}
	if !strings.Contains(fc.lastUser, "expense saved") || !strings.Contains(fc.lastUser, "reminder created") {
		t.Errorf("parts missing from user message: %q", fc.lastUser)
	}
	if fc.lastMode != domain.ModeQuality {
		t.Errorf("expected quality mode, got %q", fc.lastMode)
	}
}

func TestLoadPackOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.yaml")
	content := "system: \"You are {{name}} speaking {{language}}.\"\nvocabulary:\n  - crypto\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	pack, err := LoadPack(path, slog.Default())
	if err != nil {
		t.Fatalf("LoadPack: %v", err)
	}
	if len(pack.Vocabulary) != 1 || pack.Vocabulary[0] != "crypto" {
		t.Errorf("vocabulary not loaded: %v", pack.Vocabulary)
	}

	r := NewRenderer(&fakeCompleter{}, pack, slog.Default())
	prompt := r.SystemPrompt(testProfile())
	if prompt != "You are Ana speaking Portuguese." {
		t.Errorf("override not applied: %q", prompt)
	}
}

func TestLoadPackMissingFile(t *testing.T) {
	pack, err := LoadPack(filepath.Join(t.TempDir(), "nope.yaml"), slog.Default())
	if err != nil {
		t.Fatalf("expected nil error for missing pack, got %v", err)
	}
	if pack.System != "" {
		t.Errorf("expected empty pack, got %+v", pack)
	}
}
