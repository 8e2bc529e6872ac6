package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concierge/internal/domain"
)

// DefaultVocabulary is the closed keyword set the classifier may emit.
// Keywords without a registered specialist are still valid output; the
// dispatcher ignores them.
var DefaultVocabulary = []string{
	"calendar", "finance", "market", "goals", "ideas",
	"files", "vault", "gym", "todo", "study", "general",
}

const classifyPrompt = `You route a user's message to task handlers.
Allowed keywords: %s.
Reply with the matching keywords as a comma-separated list, nothing else.
A message can match several keywords. Reply "none" when nothing applies.`

// Classifier maps a turn's text onto the keyword vocabulary with one
// fast-mode completion call.
type Classifier struct {
	completer  domain.Completer
	vocabulary []string
	vocabSet   map[string]struct{}
	logger     *slog.Logger
}

// NewClassifier builds a classifier over the default vocabulary plus any
// extra keywords (from the prompt pack).
func NewClassifier(completer domain.Completer, extra []string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	vocab := make([]string, 0, len(DefaultVocabulary)+len(extra))
	set := make(map[string]struct{})
	for _, kw := range append(append([]string{}, DefaultVocabulary...), extra...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := set[kw]; dup {
			continue
		}
		set[kw] = struct{}{}
		vocab = append(vocab, kw)
	}
	return &Classifier{completer: completer, vocabulary: vocab, vocabSet: set, logger: logger}
}

// Classify returns the matching keywords in model order, deduplicated and
// restricted to the vocabulary. An empty result is valid: it means no
// specialist claimed the turn and the fallback will answer.
func (c *Classifier) Classify(ctx context.Context, text, history string) ([]string, error) {
	system := fmt.Sprintf(classifyPrompt, strings.Join(c.vocabulary, ", "))
	user := text
	if history != "" {
		user = "Recent context:\n" + history + "\n\nMessage: " + text
	}

	raw, err := c.completer.Complete(ctx, system, user, domain.ModeFast)
	if err != nil {
		return nil, fmt.Errorf("classification: %w", err)
	}

	keywords := c.parse(raw)
	c.logger.Debug("classified", "keywords", keywords, "raw", raw)
	return keywords, nil
}

func (c *Classifier) parse(raw string) []string {
	raw = strings.ReplaceAll(raw, "\n", ",")
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.ToLower(strings.Trim(tok, " \t`\"'.;:-*"))
		if tok == "" || tok == "none" {
			continue
		}
		if _, ok := c.vocabSet[tok]; !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
