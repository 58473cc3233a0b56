package llm

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/joseph-ayodele/casting-aggregator/constants"
)

// MaxPromptTextRunes bounds the raw text embedded in the user message.
const MaxPromptTextRunes = 4000

// BuildPrompt composes the extraction prompt for one piece of raw text.
// Hints are the learned high-confidence patterns per category. The output is
// deterministic for a given (text, hints) so it can be used as a cache key.
func BuildPrompt(text string, hints map[constants.PatternCategory][]string) Prompt {
	return Prompt{
		System: BuildSystemPrompt(hints),
		User:   BuildUserPrompt(text),
	}
}

// BuildSystemPrompt composes the classification rules, the learned hints and the schema.
func BuildSystemPrompt(hints map[constants.PatternCategory][]string) string {
	parts := []string{
		"You classify and extract casting calls for actors, models, extras and voice talent from Arabic or English posts.",
		"A casting call actively recruits talent for a specific upcoming production and tells applicants how to apply.",
		"Announcements of finished work, premieres, screenings, workshops, courses and training offers are NOT casting calls.",
		"If the text is not a casting call, return {\"is_casting_call\": false, \"rejection_reason\": \"...\"} and nothing else.",
		"If it is, set is_casting_call to true and fill title, description, company and location. Never invent values; omit unknown optional fields.",
		"Write the deadline as YYYY-MM-DD. Keep the original language for free-text fields.",
		"Never output null. Return ONLY JSON that matches the provided JSON Schema.",
	}
	if h := formatHints(hints); h != "" {
		parts = append(parts, "Signals that usually indicate a genuine casting call in this feed: "+h)
	}
	parts = append(parts, "JSON Schema:\n"+mustJSON(CastingCallJSONSchema()))
	return strings.Join(parts, "\n")
}

// BuildUserPrompt wraps the raw text, trimmed to MaxPromptTextRunes.
func BuildUserPrompt(text string) string {
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > MaxPromptTextRunes {
		text = string(r[:MaxPromptTextRunes])
	}
	var b strings.Builder
	b.WriteString("Post:\n")
	b.WriteString(text)
	return b.String()
}

func formatHints(hints map[constants.PatternCategory][]string) string {
	var lines []string
	for _, cat := range constants.Categories() {
		ps := hints[cat]
		if len(ps) == 0 {
			continue
		}
		sorted := append([]string(nil), ps...)
		slices.Sort(sorted)
		lines = append(lines, string(cat)+": "+strings.Join(sorted, ", "))
	}
	return strings.Join(lines, "; ")
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
