package context

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/search"
)

// Assembler gathers and formats multi-source context for agent
// injection, bounded by a token budget.
type Assembler struct {
	searcher SearcherCapability
	logger   *slog.Logger
}

// New constructs an Assembler over a SearcherCapability.
func New(searcher SearcherCapability, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{searcher: searcher, logger: logger}
}

// AssembleContext fans a query out across contextTypes, dedupes and
// budgets the results, and composes markdown.
func (a *Assembler) AssembleContext(ctx context.Context, query string, contextTypes []string, limit, maxTokens int) (*Result, error) {
	for _, t := range contextTypes {
		if _, ok := sourceWeights[t]; !ok {
			return nil, &ErrInvalidContextType{Type: t, Valid: validContextTypes()}
		}
	}

	a.logger.Info("assembling_context", "query", query, "context_types", contextTypes, "limit", limit, "max_tokens", maxTokens)

	itemsBySource := a.querySources(ctx, query, contextTypes, limit)

	var allItems []Item
	for _, items := range itemsBySource {
		allItems = append(allItems, items...)
	}

	deduped := deduplicateItems(allItems)
	a.logger.Info("deduplication_complete", "original_count", len(allItems), "deduplicated_count", len(deduped))

	tokenBudget, err := distributeBudget(contextTypes, maxTokens)
	if err != nil {
		return nil, err
	}

	selectedBySource, truncatedIDs := a.selectItems(deduped, tokenBudget)

	markdown := assembleMarkdown(selectedBySource)
	tokenCount := estimateTokens(markdown)

	var allSelected []Item
	sourcesUsed := make(map[string]int)
	for source, items := range selectedBySource {
		allSelected = append(allSelected, items...)
		sourcesUsed[source] = len(items)
	}

	budgetExceeded := tokenCount > maxTokens
	if budgetExceeded {
		a.logger.Warn("token_budget_exceeded", "budget", maxTokens, "actual", tokenCount)
	}

	return &Result{
		Markdown:       markdown,
		Items:          allSelected,
		TokenCount:     tokenCount,
		SourcesUsed:    sourcesUsed,
		BudgetExceeded: budgetExceeded,
		TruncatedItems: truncatedIDs,
	}, nil
}

// GetPremortemContext assembles a domain/strategy-focused brief:
// past failures, surprises, root causes, and distilled principles.
func (a *Assembler) GetPremortemContext(ctx context.Context, domain string, strategy string, limit, maxTokens int) (*Result, error) {
	a.logger.Info("assembling_premortem", "domain", domain, "strategy", strategy, "limit", limit)

	type axisQuery struct {
		axis  model.Axis
		query string
	}
	queries := []axisQuery{
		{model.AxisFull, fmt.Sprintf("failures and issues in %s", domain)},
	}
	if strategy != "" {
		queries = append(queries, axisQuery{model.AxisStrategy, fmt.Sprintf("outcomes using %s strategy", strategy)})
	}
	queries = append(queries,
		axisQuery{model.AxisSurprise, fmt.Sprintf("unexpected outcomes in %s", domain)},
		axisQuery{model.AxisRootCause, fmt.Sprintf("why hypotheses fail in %s", domain)},
	)

	valueQuery := fmt.Sprintf("principles for %s", domain)
	if strategy != "" {
		valueQuery += fmt.Sprintf(" using %s", strategy)
	}

	expResults := make([][]search.ExperienceResult, len(queries))
	var valueResults []search.ValueResult

	g, gCtx := errgroup.WithContext(ctx)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			params := search.ExperienceSearchParams{Axis: q.axis, Domain: model.Domain(domain)}
			if q.axis == model.AxisFull {
				params.Outcome = model.OutcomeFalsified
			}
			if q.axis == model.AxisStrategy {
				params.Strategy = model.Strategy(strategy)
			}
			results, err := a.searcher.SearchExperiences(gCtx, q.query, params, limit, model.ModeSemantic)
			if err != nil {
				a.logger.Warn("premortem_query_partial_failure", "axis", string(q.axis), "error", err)
				return nil
			}
			expResults[i] = results
			return nil
		})
	}

	g.Go(func() error {
		results, err := a.searcher.SearchValues(gCtx, valueQuery, "", 5, model.ModeSemantic)
		if err != nil {
			a.logger.Warn("premortem_query_partial_failure", "query", "values", "error", err)
			return nil
		}
		valueResults = results
		return nil
	})

	_ = g.Wait()

	var items []Item
	for i, q := range queries {
		for _, r := range expResults[i] {
			items = append(items, experienceResultToItem(r, string(q.axis)))
		}
	}
	for _, r := range valueResults {
		items = append(items, valueResultToItem(r))
	}

	itemsBySource := map[string][]Item{
		"experiences": filterBySource(items, "experience"),
		"values":      filterBySource(items, "value"),
	}

	markdown := assemblePremortemMarkdown(itemsBySource, domain, strategy)
	tokenCount := estimateTokens(markdown)

	sourcesUsed := map[string]int{
		"experiences": len(itemsBySource["experiences"]),
		"values":      len(itemsBySource["values"]),
	}

	return &Result{
		Markdown:       markdown,
		Items:          items,
		TokenCount:     tokenCount,
		SourcesUsed:    sourcesUsed,
		BudgetExceeded: tokenCount > maxTokens,
	}, nil
}

func filterBySource(items []Item, source string) []Item {
	var out []Item
	for _, i := range items {
		if i.Source == source {
			out = append(out, i)
		}
	}
	return out
}

// querySources dispatches one search per requested context type
// concurrently; a failing source logs a warning and contributes an
// empty list rather than failing the whole call.
func (a *Assembler) querySources(ctx context.Context, query string, contextTypes []string, limit int) map[string][]Item {
	itemsBySource := make(map[string][]Item, len(contextTypes))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for _, source := range contextTypes {
		source := source
		g.Go(func() error {
			items, err := a.queryOneSource(gCtx, source, query, limit)
			if err != nil {
				a.logger.Warn("source_query_partial_failure", "source", source, "error", err)
				items = nil
			}
			mu.Lock()
			itemsBySource[source] = items
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return itemsBySource
}

func (a *Assembler) queryOneSource(ctx context.Context, source, query string, limit int) ([]Item, error) {
	switch source {
	case "memories":
		results, err := a.searcher.SearchMemories(ctx, query, "", limit, model.ModeSemantic)
		if err != nil {
			return nil, err
		}
		items := make([]Item, len(results))
		for i, r := range results {
			items[i] = Item{
				Source:    "memory",
				Content:   formatMemory(memoryMetadata(r)),
				Relevance: r.Score,
				Metadata:  memoryMetadata(r),
			}
		}
		return items, nil

	case "code":
		results, err := a.searcher.SearchCode(ctx, query, search.CodeSearchParams{}, limit, model.ModeSemantic)
		if err != nil {
			return nil, err
		}
		items := make([]Item, len(results))
		for i, r := range results {
			md := codeMetadata(r)
			items[i] = Item{Source: "code", Content: formatCode(md), Relevance: r.Score, Metadata: md}
		}
		return items, nil

	case "experiences":
		results, err := a.searcher.SearchExperiences(ctx, query, search.ExperienceSearchParams{Axis: model.AxisFull}, limit, model.ModeSemantic)
		if err != nil {
			return nil, err
		}
		items := make([]Item, len(results))
		for i, r := range results {
			items[i] = experienceResultToItem(r, "full")
		}
		return items, nil

	case "values":
		results, err := a.searcher.SearchValues(ctx, query, "", 5, model.ModeSemantic)
		if err != nil {
			return nil, err
		}
		items := make([]Item, len(results))
		for i, r := range results {
			items[i] = valueResultToItem(r)
		}
		return items, nil

	case "commits":
		results, err := a.searcher.SearchCommits(ctx, query, search.CommitSearchParams{}, limit, model.ModeSemantic)
		if err != nil {
			return nil, err
		}
		items := make([]Item, len(results))
		for i, r := range results {
			md := commitMetadata(r)
			items[i] = Item{Source: "commit", Content: formatCommit(md), Relevance: r.Score, Metadata: md}
		}
		return items, nil

	default:
		return nil, nil
	}
}

func experienceResultToItem(r search.ExperienceResult, axis string) Item {
	md := experienceMetadata(r)
	md["axis"] = axis
	return Item{Source: "experience", Content: formatExperience(md), Relevance: r.Score, Metadata: md}
}

func valueResultToItem(r search.ValueResult) Item {
	md := valueMetadata(r)
	return Item{Source: "value", Content: formatValue(md), Relevance: r.Score, Metadata: md}
}

func memoryMetadata(r search.MemoryResult) map[string]any {
	return map[string]any{"id": r.ID, "content": r.Content, "category": r.Category}
}

func codeMetadata(r search.CodeResult) map[string]any {
	return map[string]any{
		"file_path":      r.FilePath,
		"qualified_name": r.QualifiedName,
		"code":           r.Code,
		"docstring":      r.Docstring,
		"language":       r.Language,
		"unit_type":      r.UnitType,
	}
}

func experienceMetadata(r search.ExperienceResult) map[string]any {
	return map[string]any{
		"id":             r.ID,
		"ghap_id":        r.GHAPID,
		"domain":         r.Domain,
		"strategy":       r.Strategy,
		"goal":           "",
		"hypothesis":     "",
		"action":         "",
		"prediction":     "",
		"outcome_status": r.OutcomeStatus,
		"outcome_result": "",
	}
}

func valueMetadata(r search.ValueResult) map[string]any {
	return map[string]any{"id": r.ID, "text": r.Text, "axis": r.Axis, "cluster_size": r.ClusterSize}
}

func commitMetadata(r search.CommitResult) map[string]any {
	return map[string]any{"sha": r.SHA, "author": r.Author, "committed_at": r.CommittedAt, "message": r.Message}
}

// selectItems assigns each source's deduped items to its token
// budget, then redistributes unused budget across sources with more
// candidates than they could fit.
func (a *Assembler) selectItems(items []Item, tokenBudget map[string]int) (map[string][]Item, []string) {
	bySource := make(map[string][]Item)
	for _, item := range items {
		plural := pluralSource(item.Source)
		bySource[plural] = append(bySource[plural], item)
	}

	selected := make(map[string][]Item)
	var truncatedIDs []string
	unusedBudget := make(map[string]int)

	for source, sourceItems := range bySource {
		budget := tokenBudget[source]
		if budget == 0 {
			continue
		}

		usedTokens := 0
		for _, item := range sourceItems {
			cappedContent, truncated := capItemTokens(item.Content, budget, item.Metadata, item.Source)
			if truncated {
				truncatedIDs = append(truncatedIDs, idOrUnknown(item.Metadata))
			}

			itemTokens := estimateTokens(cappedContent)
			if usedTokens+itemTokens > budget {
				break
			}

			selected[source] = append(selected[source], Item{Source: item.Source, Content: cappedContent, Relevance: item.Relevance, Metadata: item.Metadata})
			usedTokens += itemTokens
		}

		if unused := budget - usedTokens; unused > 0 {
			unusedBudget[source] = unused
		}
	}

	totalUnused := 0
	for _, u := range unusedBudget {
		totalUnused += u
	}

	if totalUnused > 0 {
		var needMore []string
		for source := range bySource {
			if len(bySource[source]) > len(selected[source]) {
				needMore = append(needMore, source)
			}
		}
		sort.Strings(needMore)

		if len(needMore) > 0 {
			extraPerSource := totalUnused / len(needMore)

			for _, source := range needMore {
				newBudget := tokenBudget[source] + extraPerSource
				usedTokens := 0
				for _, item := range selected[source] {
					usedTokens += estimateTokens(item.Content)
				}

				for _, item := range bySource[source][len(selected[source]):] {
					cappedContent, truncated := capItemTokens(item.Content, newBudget, item.Metadata, item.Source)
					if truncated {
						truncatedIDs = append(truncatedIDs, idOrUnknown(item.Metadata))
					}

					itemTokens := estimateTokens(cappedContent)
					if usedTokens+itemTokens > newBudget {
						break
					}

					selected[source] = append(selected[source], Item{Source: item.Source, Content: cappedContent, Relevance: item.Relevance, Metadata: item.Metadata})
					usedTokens += itemTokens
				}
			}
		}
	}

	return selected, truncatedIDs
}

func pluralSource(source string) string {
	switch source {
	case "memory":
		return "memories"
	case "experience":
		return "experiences"
	case "value":
		return "values"
	case "commit":
		return "commits"
	default:
		return source
	}
}

func idOrUnknown(metadata map[string]any) string {
	if v, ok := metadata["id"].(string); ok && v != "" {
		return v
	}
	return "unknown"
}
