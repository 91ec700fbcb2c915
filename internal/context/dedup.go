package context

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/pmezard/go-difflib/difflib"
)

// maxFuzzyContentLength bounds how large an item's content may be
// before it's skipped by fuzzy matching — a sequence-matcher pass
// over a huge string is not worth the cost.
const maxFuzzyContentLength = 2000

// similarityThreshold is the minimum difflib-style ratio for two
// items to be considered near-duplicates.
const similarityThreshold = 0.85

// deduplicateItems merges items sharing an exact key, preferring the
// higher-relevance one, then folds in fuzzy near-duplicates detected
// by sequence similarity over short content.
func deduplicateItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}

	seen := make(map[string]Item)
	order := make([]string, 0, len(items))

	for _, item := range items {
		key := dedupKey(item)

		if existing, ok := seen[key]; ok {
			if item.Relevance > existing.Relevance {
				seen[key] = item
			}
			continue
		}

		candidates := make([]Item, 0, len(seen))
		for _, k := range order {
			candidates = append(candidates, seen[k])
		}

		if dup, ok := findFuzzyDuplicate(item, candidates); ok {
			dupKey := dedupKey(dup)
			if item.Relevance > dup.Relevance {
				seen[dupKey] = item
			}
			continue
		}

		seen[key] = item
		order = append(order, key)
	}

	out := make([]Item, 0, len(seen))
	for _, k := range order {
		out = append(out, seen[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	return out
}

func dedupKey(item Item) string {
	if v, ok := item.Metadata["ghap_id"].(string); ok && v != "" {
		return "ghap:" + v
	}
	if v, ok := item.Metadata["file_path"].(string); ok && v != "" {
		return "file:" + v
	}
	if v, ok := item.Metadata["sha"].(string); ok && v != "" {
		return "commit:" + v
	}
	if v, ok := item.Metadata["id"].(string); ok && v != "" {
		return "memory:" + v
	}
	return fmt.Sprintf("content:%d", contentHash(item.Content))
}

func contentHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// findFuzzyDuplicate looks for a candidate whose content is a
// near-duplicate of item's, by difflib-style sequence similarity over
// items short enough to be worth comparing and within a 20% length
// window of each other.
func findFuzzyDuplicate(item Item, candidates []Item) (Item, bool) {
	if len(item.Content) > maxFuzzyContentLength {
		return Item{}, false
	}

	itemLen := len(item.Content)
	minLen := int(float64(itemLen) * 0.8)
	maxLen := int(float64(itemLen) * 1.2)

	for _, candidate := range candidates {
		candidateLen := len(candidate.Content)
		if candidateLen < minLen || candidateLen > maxLen {
			continue
		}
		if candidateLen > maxFuzzyContentLength {
			continue
		}

		if sequenceRatio(item.Content, candidate.Content) >= similarityThreshold {
			return candidate, true
		}
	}
	return Item{}, false
}

// sequenceRatio mirrors Python's difflib.SequenceMatcher(None, a,
// b).ratio() over characters.
func sequenceRatio(a, b string) float64 {
	matcher := difflib.NewMatcher(splitChars(a), splitChars(b))
	return matcher.Ratio()
}

func splitChars(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
