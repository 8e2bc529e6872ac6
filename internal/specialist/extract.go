package specialist

import (
	"encoding/json"
	"strings"
	"time"
)

// decodeJSON parses a model response as a JSON object, tolerating markdown
// code fences and surrounding prose. A failed parse is not an error for
// callers; it means the extraction was inconclusive.
func decodeJSON(raw string, v any) bool {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	// Clamp to the outermost braces when the model adds prose around them.
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}
	return json.Unmarshal([]byte(s), v) == nil
}

// nowInZone formats the current time in the user's timezone for extraction
// prompts. The override hook keeps extraction tests deterministic.
func nowInZone(tz string, override func() string) string {
	if override != nil {
		return override()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}
	return time.Now().In(loc).Format(time.RFC3339)
}

// parseWhen parses a model-emitted timestamp. RFC 3339 first, then a couple
// of bare layouts interpreted in the user's timezone.
func parseWhen(s, tz string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
