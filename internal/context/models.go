// Package context implements bounded, deduplicated multi-source
// composition (§4.7): fan out a query across memories, code,
// experiences, values, and commits, merge and dedupe the results, fit
// them into a token budget, and render markdown for agent injection.
package context

import "fmt"

// Item is one deduplicated, formatted piece of context pulled from a
// single source.
type Item struct {
	Source    string
	Content   string
	Relevance float32
	Metadata  map[string]any
}

// Result bundles the composed markdown alongside the bookkeeping an
// agent needs to reason about what it received.
type Result struct {
	Markdown       string
	Items          []Item
	TokenCount     int
	SourcesUsed    map[string]int
	BudgetExceeded bool
	TruncatedItems []string
}

// sourceWeights are the fixed renormalized budget shares per source.
var sourceWeights = map[string]float64{
	"memories":    0.3,
	"code":        0.3,
	"experiences": 0.2,
	"commits":     0.1,
	"values":      0.1,
}

// maxItemFraction caps a single item at this fraction of its source's
// budget.
const maxItemFraction = 0.25

// ErrInvalidContextType is returned when a requested source isn't one
// of the five known kinds.
type ErrInvalidContextType struct {
	Type  string
	Valid []string
}

func (e *ErrInvalidContextType) Error() string {
	return fmt.Sprintf("invalid context type %q, valid: %v", e.Type, e.Valid)
}
