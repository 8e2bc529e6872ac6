package channel

import (
	"strings"
	"unicode/utf8"
)

// splitMessage splits a reply into chunks that fit a platform's message
// limit, preferring newline boundaries in the second half of a chunk.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		// A hard cut must not bisect a multi-byte rune.
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if idx := strings.LastIndex(msg[:cut], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
