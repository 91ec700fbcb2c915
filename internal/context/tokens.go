package context

import (
	"fmt"
	"strings"
)

// estimateTokens approximates a token count at 4 characters per
// token.
func estimateTokens(text string) int {
	return len(text) / 4
}

// truncateToTokens cuts text to roughly maxTokens, preferring to break
// on a newline within the last 20% of the truncated prefix.
func truncateToTokens(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}

	truncated := text[:maxChars]
	if lastNewline := strings.LastIndex(truncated, "\n"); lastNewline > int(float64(maxChars)*0.8) {
		return truncated[:lastNewline]
	}
	return truncated
}

// distributeBudget splits maxTokens across contextTypes by their
// renormalized source weight.
func distributeBudget(contextTypes []string, maxTokens int) (map[string]int, error) {
	var invalid []string
	for _, t := range contextTypes {
		if _, ok := sourceWeights[t]; !ok {
			invalid = append(invalid, t)
		}
	}
	if len(invalid) > 0 {
		return nil, &ErrInvalidContextType{Type: invalid[0], Valid: validContextTypes()}
	}
	if maxTokens < 1 {
		return nil, fmt.Errorf("max_tokens must be positive, got %d", maxTokens)
	}
	if maxTokens > 100000 {
		return nil, fmt.Errorf("max_tokens %d exceeds maximum of 100000", maxTokens)
	}

	totalWeight := 0.0
	for _, t := range contextTypes {
		totalWeight += sourceWeights[t]
	}

	budget := make(map[string]int, len(contextTypes))
	for _, t := range contextTypes {
		budget[t] = int((sourceWeights[t] / totalWeight) * float64(maxTokens))
	}
	return budget, nil
}

func validContextTypes() []string {
	return []string{"memories", "code", "experiences", "values", "commits"}
}

// capItemTokens truncates content to at most maxItemFraction of
// sourceBudget tokens, annotating the cut with a note tailored to the
// item's source.
func capItemTokens(content string, sourceBudget int, metadata map[string]any, source string) (string, bool) {
	maxItemTokens := int(float64(sourceBudget) * maxItemFraction)
	if estimateTokens(content) <= maxItemTokens {
		return content, false
	}

	truncated := truncateToTokens(content, maxItemTokens)

	var note string
	switch source {
	case "code":
		note = fmt.Sprintf("\n\n*(truncated, see full at %v:%v)*", metadataOr(metadata, "file_path", "unknown"), metadataOr(metadata, "start_line", "?"))
	case "experience":
		note = fmt.Sprintf("\n\n*(truncated, full experience ID: %v)*", metadataOr(metadata, "id", "unknown"))
	default:
		note = "\n\n*(truncated)*"
	}

	return truncated + "..." + note, true
}

func metadataOr(m map[string]any, key string, fallback any) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return fallback
}
