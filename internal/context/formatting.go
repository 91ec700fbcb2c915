package context

import (
	"fmt"
	"strings"
)

func formatMemory(m map[string]any) string {
	content := metadataOr(m, "content", "")
	category := metadataOr(m, "category", "")
	importance := toFloat(metadataOr(m, "importance", 0.0))

	return fmt.Sprintf("**Memory**: %v\n*Category: %v, Importance: %.2f*", content, category, importance)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func formatCode(m map[string]any) string {
	unitType := capitalize(fmt.Sprint(metadataOr(m, "unit_type", "")))
	name := metadataOr(m, "qualified_name", "")
	filePath := metadataOr(m, "file_path", "")
	lineStart := metadataOr(m, "line_start", metadataOr(m, "start_line", 0))
	language := metadataOr(m, "language", "python")
	code := metadataOr(m, "code", "")
	docstring := m["docstring"]

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%v` in `%v:%v`\n", unitType, name, filePath, lineStart)
	fmt.Fprintf(&b, "```%v\n%v\n", language, code)
	if docstring != nil && docstring != "" {
		fmt.Fprintf(&b, "\"\"\"%v\"\"\"\n", docstring)
	}
	b.WriteString("```")
	return b.String()
}

func formatExperience(m map[string]any) string {
	domain := metadataOr(m, "domain", "")
	strategy := metadataOr(m, "strategy", "")
	goal := metadataOr(m, "goal", "")
	hypothesis := metadataOr(m, "hypothesis", "")
	action := metadataOr(m, "action", "")
	prediction := metadataOr(m, "prediction", "")
	outcomeStatus := metadataOr(m, "outcome_status", "")
	outcomeResult := metadataOr(m, "outcome_result", "")
	surprise := m["surprise"]
	lesson := m["lesson"]

	var b strings.Builder
	fmt.Fprintf(&b, "**Experience**: %v | %v\n", domain, strategy)
	fmt.Fprintf(&b, "- **Goal**: %v\n", goal)
	fmt.Fprintf(&b, "- **Hypothesis**: %v\n", hypothesis)
	fmt.Fprintf(&b, "- **Action**: %v\n", action)
	fmt.Fprintf(&b, "- **Prediction**: %v\n", prediction)
	fmt.Fprintf(&b, "- **Outcome**: %v - %v\n", outcomeStatus, outcomeResult)

	if s, ok := surprise.(string); ok && s != "" {
		fmt.Fprintf(&b, "- **Surprise**: %v\n", s)
	}

	if lesson != nil {
		whatWorked := lessonWhatWorked(lesson)
		fmt.Fprintf(&b, "- **Lesson**: %v\n", whatWorked)
	}

	return b.String()
}

func lessonWhatWorked(lesson any) string {
	switch l := lesson.(type) {
	case map[string]any:
		if v, ok := l["what_worked"].(string); ok {
			return v
		}
		return ""
	case fmt.Stringer:
		return l.String()
	default:
		return fmt.Sprint(lesson)
	}
}

func formatValue(m map[string]any) string {
	axis := metadataOr(m, "axis", "")
	memberCount := metadataOr(m, "member_count", metadataOr(m, "cluster_size", 0))
	text := metadataOr(m, "text", "")

	return fmt.Sprintf("**Value** (%v, cluster size: %v):\n%v", axis, memberCount, text)
}

func formatCommit(m map[string]any) string {
	sha := fmt.Sprint(metadataOr(m, "sha", ""))
	if len(sha) > 7 {
		sha = sha[:7]
	}
	author := metadataOr(m, "author", "")
	timestamp := metadataOr(m, "committed_at", "unknown")
	message := metadataOr(m, "message", "")

	var b strings.Builder
	fmt.Fprintf(&b, "**Commit** `%v` by %v on %v\n", sha, author, timestamp)
	fmt.Fprintf(&b, "%v\n", message)

	if files, ok := m["files_changed"].([]string); ok && len(files) > 0 {
		shown := files
		suffix := ""
		if len(files) > 3 {
			shown = files[:3]
			suffix = fmt.Sprintf(", ... (%d more)", len(files)-3)
		}
		fmt.Fprintf(&b, "*Files: %s%s*", strings.Join(shown, ", "), suffix)
	}

	return b.String()
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

var sourceTitles = map[string]string{
	"memories":    "Memories",
	"code":        "Code",
	"experiences": "Experiences",
	"values":      "Values",
	"commits":     "Commits",
}

// assembleMarkdown renders the standard, by-source markdown layout.
func assembleMarkdown(itemsBySource map[string][]Item) string {
	var sections []string
	sections = append(sections, "# Context\n")

	totalItems := 0
	sourcesCount := 0

	for _, source := range orderedSources(itemsBySource, []string{"memories", "code", "experiences", "values", "commits"}) {
		items := itemsBySource[source]
		if len(items) == 0 {
			continue
		}

		title := sourceTitles[source]
		if title == "" {
			title = capitalize(source)
		}
		sections = append(sections, fmt.Sprintf("\n## %s\n", title))

		for _, item := range items {
			sections = append(sections, fmt.Sprintf("\n%s\n", item.Content))
			totalItems++
		}
		sourcesCount++
	}

	sections = append(sections, fmt.Sprintf("\n---\n*%d items from %d sources*", totalItems, sourcesCount))
	return strings.Join(sections, "\n")
}

var premortemSectionOrder = []string{"full", "strategy", "surprise", "root_cause"}

var premortemSectionTitles = map[string]string{
	"full":       "Common Failures",
	"strategy":   "Strategy Performance",
	"surprise":   "Unexpected Outcomes",
	"root_cause": "Root Causes to Watch",
}

// assemblePremortemMarkdown groups experiences by axis into named
// subsections and appends a principles section from values.
func assemblePremortemMarkdown(itemsBySource map[string][]Item, domain, strategy string) string {
	header := fmt.Sprintf("# Premortem: %s", orDefault(domain, "Unknown Domain"))
	if strategy != "" {
		header += fmt.Sprintf(" with %s", strategy)
	}

	sections := []string{header + "\n"}

	expItems := itemsBySource["experiences"]
	experienceCount := 0

	for _, axis := range premortemSectionOrder {
		var axisItems []Item
		for _, item := range expItems {
			if a, _ := item.Metadata["axis"].(string); a == axis {
				axisItems = append(axisItems, item)
			}
		}
		if len(axisItems) == 0 {
			continue
		}
		sections = append(sections, fmt.Sprintf("\n## %s\n", premortemSectionTitles[axis]))
		for _, item := range axisItems {
			sections = append(sections, fmt.Sprintf("\n%s\n", item.Content))
			experienceCount++
		}
	}

	if valueItems := itemsBySource["values"]; len(valueItems) > 0 {
		sections = append(sections, "\n## Relevant Principles\n")
		for _, item := range valueItems {
			sections = append(sections, fmt.Sprintf("\n%s\n", item.Content))
		}
	}

	sections = append(sections, fmt.Sprintf("\n---\n*Based on %d past experiences*", experienceCount))
	return strings.Join(sections, "\n")
}

func orderedSources(itemsBySource map[string][]Item, preferred []string) []string {
	seen := make(map[string]bool, len(preferred))
	out := make([]string, 0, len(itemsBySource))
	for _, p := range preferred {
		if _, ok := itemsBySource[p]; ok {
			out = append(out, p)
			seen[p] = true
		}
	}
	for k := range itemsBySource {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
