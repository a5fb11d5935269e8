// Package answer turns raw model output into user-facing text.
package answer

import (
	"regexp"
	"strings"
)

// Non-greedy and dot-matches-newline so each <think>…</think> pair is
// removed on its own even when it spans lines.
var reasoningPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes every paired reasoning segment and trims the result.
func StripReasoning(text string) string {
	return strings.TrimSpace(reasoningPattern.ReplaceAllString(text, ""))
}

// Finalize strips reasoning and falls back when nothing visible is left.
func Finalize(text string, fallback string) string {
	if cleaned := StripReasoning(text); cleaned != "" {
		return cleaned
	}
	return strings.TrimSpace(fallback)
}
