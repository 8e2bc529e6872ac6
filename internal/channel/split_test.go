package channel

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageShort(t *testing.T) {
	got := splitMessage("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("got %v", got)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	msg := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	got := splitMessage(msg, 100)
	if len(got) != 2 {
		t.Fatalf("got %d chunks", len(got))
	}
	if !strings.HasSuffix(got[0], "\n") {
		t.Errorf("first chunk should end at the newline: %q", got[0])
	}
	if got[1] != strings.Repeat("b", 60) {
		t.Errorf("second chunk = %q", got[1])
	}
}

func TestSplitMessageHardCut(t *testing.T) {
	msg := strings.Repeat("x", 250)
	got := splitMessage(msg, 100)
	if len(got) != 3 {
		t.Fatalf("got %d chunks", len(got))
	}
	for i, chunk := range got {
		if len(chunk) > 100 {
			t.Errorf("chunk %d exceeds limit: %d", i, len(chunk))
		}
	}
	if strings.Join(got, "") != msg {
		t.Error("chunks do not reassemble the original")
	}
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	// "ã" is 2 bytes, so an odd byte limit lands mid-rune without backoff.
	msg := strings.Repeat("ã", 120)
	got := splitMessage(msg, 101)
	if len(got) < 2 {
		t.Fatalf("got %d chunks", len(got))
	}
	for i, chunk := range got {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, chunk)
		}
		if len(chunk) > 101 {
			t.Errorf("chunk %d exceeds limit: %d", i, len(chunk))
		}
	}
	if strings.Join(got, "") != msg {
		t.Error("chunks do not reassemble the original")
	}
}
