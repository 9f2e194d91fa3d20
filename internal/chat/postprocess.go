package chat

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const titleQuotes = "\"'`“”‘’«»"

// cleanTitle trims wrapping quotes and labels and keeps at most maxWords words.
func cleanTitle(raw string, maxWords int) string {
	title := strings.TrimSpace(raw)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if lower := strings.ToLower(title); strings.HasPrefix(lower, "title:") {
		title = title[len("title:"):]
	}
	title = strings.Trim(strings.TrimSpace(title), titleQuotes)
	title = strings.TrimRight(title, ".")

	words := strings.Fields(title)
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

func cleanSummary(raw string, maxRunes int) string {
	summary := strings.Join(strings.Fields(raw), " ")
	summary = strings.Trim(summary, titleQuotes)
	return truncateRunes(summary, maxRunes)
}

// truncateRunes keeps the result within max runes, ellipsis included.
func truncateRunes(input string, max int) string {
	if max <= 0 {
		return input
	}
	if utf8.RuneCountInString(input) <= max {
		return input
	}

	var builder strings.Builder
	count := 0
	for _, r := range input {
		if count >= max-1 {
			builder.WriteRune('…')
			break
		}
		builder.WriteRune(r)
		count++
	}

	return builder.String()
}

// extractJSONObject returns the JSON object in raw, tolerating code fences or
// prose around it.
func extractJSONObject(raw string) (json.RawMessage, bool) {
	text := strings.TrimSpace(raw)
	if !gjson.Valid(text) {
		start := strings.IndexByte(text, '{')
		end := strings.LastIndexByte(text, '}')
		if start < 0 || end <= start {
			return nil, false
		}
		text = text[start : end+1]
		if !gjson.Valid(text) {
			return nil, false
		}
	}

	parsed := gjson.Parse(text)
	if !parsed.IsObject() {
		return nil, false
	}
	return json.RawMessage(parsed.Raw), true
}
