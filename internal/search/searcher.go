// Package search implements the unified query surface (§4.5): mode
// dispatch across semantic, keyword, and hybrid search, over typed
// results for each collection kind.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/telemetry"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

// keywordScrollLimit bounds how many rows keyword mode scrolls
// through per query, capping memory use on a collection scan.
const keywordScrollLimit = 1000

// hybridKeywordBoost is added to a semantic score when the same id
// also surfaces in the keyword pass.
const hybridKeywordBoost = 0.15

// Searcher is the unified query interface across all vector
// collections.
type Searcher struct {
	embedder         embedding.Provider
	store            vectorstore.Store
	collectionPrefix string
	duration         metric.Float64Histogram
}

// New constructs a Searcher. collectionPrefix must match the prefix
// the Persister and Clusterer were constructed with, since experience
// collections are named "{prefix}_{axis}".
func New(embedder embedding.Provider, store vectorstore.Store, collectionPrefix string) *Searcher {
	duration, _ := telemetry.Meter("kessa/search").Float64Histogram(
		"kessa.search.duration",
		metric.WithDescription("Duration of a dispatched search, in seconds"),
		metric.WithUnit("s"),
	)
	return &Searcher{embedder: embedder, store: store, collectionPrefix: collectionPrefix, duration: duration}
}

func attrCollection(collection string) attribute.KeyValue {
	return attribute.String("collection", collection)
}

func attrMode(mode string) attribute.KeyValue {
	return attribute.String("mode", mode)
}

func validateMode(mode model.SearchMode) error {
	if mode == "" {
		return nil
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: invalid search mode %q", errs.ErrValidation, mode)
	}
	return nil
}

func resolveMode(mode model.SearchMode) model.SearchMode {
	if mode == "" {
		return model.ModeSemantic
	}
	return mode
}

// buildFilters converts a map of optional values into a vectorstore
// Filter, dropping nils and converting time.Time into a $gte range.
func buildFilters(kv map[string]any) vectorstore.Filter {
	filters := vectorstore.Filter{}
	for k, v := range kv {
		if v == nil {
			continue
		}
		if t, ok := v.(time.Time); ok {
			filters[k] = &vectorstore.Op{Gte: float64(t.Unix())}
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		filters[k] = v
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

func (s *Searcher) dispatch(ctx context.Context, mode model.SearchMode, collection string, fields []string, query string, limit int, filters vectorstore.Filter) ([]vectorstore.Scored, error) {
	start := time.Now()
	resolved := resolveMode(mode)
	defer func() {
		if s.duration != nil {
			s.duration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attrCollection(collection), attrMode(string(resolved))))
		}
	}()

	switch resolved {
	case model.ModeKeyword:
		return s.keywordSearch(ctx, collection, fields, query, limit, filters)
	case model.ModeHybrid:
		return s.hybridSearch(ctx, collection, fields, query, limit, filters)
	default:
		return s.semanticSearch(ctx, collection, query, limit, filters)
	}
}

func (s *Searcher) semanticSearch(ctx context.Context, collection, query string, limit int, filters vectorstore.Filter) ([]vectorstore.Scored, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEmbeddingFailure, err)
	}
	results, err := s.store.Search(ctx, collection, vec, limit, filters)
	if err != nil {
		return nil, mapCollectionError(err)
	}
	return results, nil
}

func (s *Searcher) keywordSearch(ctx context.Context, collection string, fields []string, query string, limit int, filters vectorstore.Filter) ([]vectorstore.Scored, error) {
	candidates, err := s.store.Scroll(ctx, collection, keywordScrollLimit, filters, false)
	if err != nil {
		return nil, mapCollectionError(err)
	}

	scored := make([]vectorstore.Scored, 0, len(candidates))
	for _, c := range candidates {
		score := keywordMatchScore(query, c.Payload, fields)
		if score > 0 {
			scored = append(scored, vectorstore.Scored{Point: c, Score: float32(score)})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *Searcher) hybridSearch(ctx context.Context, collection string, fields []string, query string, limit int, filters vectorstore.Filter) ([]vectorstore.Scored, error) {
	semantic, err := s.semanticSearch(ctx, collection, query, limit, filters)
	if err != nil {
		return nil, err
	}
	keyword, err := s.keywordSearch(ctx, collection, fields, query, limit, filters)
	if err != nil {
		return nil, err
	}

	keywordScores := make(map[string]float32, len(keyword))
	for _, r := range keyword {
		keywordScores[r.ID] = r.Score
	}

	merged := make(map[string]vectorstore.Scored, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))
	for _, r := range semantic {
		score := r.Score
		if _, ok := keywordScores[r.ID]; ok {
			score = r.Score + hybridKeywordBoost
			if score > 1.0 {
				score = 1.0
			}
		}
		merged[r.ID] = vectorstore.Scored{Point: r.Point, Score: score}
		order = append(order, r.ID)
	}
	for _, r := range keyword {
		if _, ok := merged[r.ID]; !ok {
			merged[r.ID] = r
			order = append(order, r.ID)
		}
	}

	out := make([]vectorstore.Scored, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func mapCollectionError(err error) error {
	if errors.Is(err, errs.ErrCollectionNotFound) {
		return err
	}
	if strings.Contains(strings.ToLower(err.Error()), "collection") {
		return fmt.Errorf("%w: %v", errs.ErrCollectionNotFound, err)
	}
	return err
}

// keywordMatchScore scores how well query matches any of fields in
// payload, per §4.5's formula: exact full-field match is 1.0; a full
// substring match is 0.6 plus a length-ratio bonus up to <1.0;
// otherwise a term-hit ratio scaled to 0.3. The max across fields
// wins.
func keywordMatchScore(query string, payload vectorstore.Payload, fields []string) float64 {
	queryLower := strings.ToLower(query)
	queryTerms := strings.Fields(queryLower)

	best := 0.0
	for _, field := range fields {
		value := asString(payload, field)
		if value == "" {
			continue
		}
		valueLower := strings.ToLower(value)

		if queryLower == valueLower {
			return 1.0
		}

		if strings.Contains(valueLower, queryLower) {
			ratio := float64(len(queryLower)) / float64(max(len(valueLower), 1))
			score := 0.6 + 0.4*ratio
			if score > best {
				best = score
			}
			continue
		}

		if len(queryTerms) > 0 {
			matched := 0
			for _, t := range queryTerms {
				if strings.Contains(valueLower, t) {
					matched++
				}
			}
			if matched > 0 {
				score := 0.3 * (float64(matched) / float64(len(queryTerms)))
				if score > best {
					best = score
				}
			}
		}
	}
	return best
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SearchMemories queries the memories collection.
func (s *Searcher) SearchMemories(ctx context.Context, query string, category model.MemoryCategory, limit int, mode model.SearchMode) ([]MemoryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if err := validateMode(mode); err != nil {
		return nil, err
	}

	filters := buildFilters(map[string]any{"category": string(category)})
	results, err := s.dispatch(ctx, mode, collectionMemories, textFields[collectionMemories], query, limit, filters)
	if err != nil {
		return nil, err
	}

	out := make([]MemoryResult, len(results))
	for i, r := range results {
		out[i] = memoryResultFrom(r)
	}
	return out, nil
}

// CodeSearchParams narrows a code search by optional project,
// language, and unit type.
type CodeSearchParams struct {
	Project  string
	Language string
	UnitType model.CodeUnitType
}

// SearchCode queries the code_units collection.
func (s *Searcher) SearchCode(ctx context.Context, query string, params CodeSearchParams, limit int, mode model.SearchMode) ([]CodeResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if err := validateMode(mode); err != nil {
		return nil, err
	}

	filters := buildFilters(map[string]any{
		"project":   params.Project,
		"language":  params.Language,
		"unit_type": string(params.UnitType),
	})
	results, err := s.dispatch(ctx, mode, collectionCode, textFields[collectionCode], query, limit, filters)
	if err != nil {
		return nil, err
	}

	out := make([]CodeResult, len(results))
	for i, r := range results {
		out[i] = codeResultFrom(r)
	}
	return out, nil
}

// ExperienceSearchParams narrows an experience search by axis plus
// optional domain/strategy/outcome.
type ExperienceSearchParams struct {
	Axis     model.Axis
	Domain   model.Domain
	Strategy model.Strategy
	Outcome  model.OutcomeStatus
}

// SearchExperiences queries one {prefix}_{axis} collection.
func (s *Searcher) SearchExperiences(ctx context.Context, query string, params ExperienceSearchParams, limit int, mode model.SearchMode) ([]ExperienceResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if err := validateMode(mode); err != nil {
		return nil, err
	}

	axis := params.Axis
	if axis == "" {
		axis = model.AxisFull
	}
	collection, err := experienceCollection(s.collectionPrefix, axis)
	if err != nil {
		return nil, err
	}

	filters := buildFilters(map[string]any{
		"domain":         string(params.Domain),
		"strategy":       string(params.Strategy),
		"outcome_status": string(params.Outcome),
	})
	results, err := s.dispatch(ctx, mode, collection, experienceTextFields(axis), query, limit, filters)
	if err != nil {
		return nil, err
	}

	out := make([]ExperienceResult, len(results))
	for i, r := range results {
		out[i] = experienceResultFrom(r)
	}
	return out, nil
}

// SearchValues queries the values collection, optionally scoped to one axis.
func (s *Searcher) SearchValues(ctx context.Context, query string, axis model.Axis, limit int, mode model.SearchMode) ([]ValueResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if err := validateMode(mode); err != nil {
		return nil, err
	}

	filters := buildFilters(map[string]any{"axis": string(axis)})
	results, err := s.dispatch(ctx, mode, collectionValues, textFields[collectionValues], query, limit, filters)
	if err != nil {
		return nil, err
	}

	out := make([]ValueResult, len(results))
	for i, r := range results {
		out[i] = valueResultFrom(r)
	}
	return out, nil
}

// CommitSearchParams narrows a commit search by optional author and
// since-date.
type CommitSearchParams struct {
	Author string
	Since  *time.Time
}

// SearchCommits queries the commits collection.
func (s *Searcher) SearchCommits(ctx context.Context, query string, params CommitSearchParams, limit int, mode model.SearchMode) ([]CommitResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if err := validateMode(mode); err != nil {
		return nil, err
	}

	kv := map[string]any{"author": params.Author}
	if params.Since != nil {
		kv["committed_at"] = *params.Since
	}
	filters := buildFilters(kv)
	results, err := s.dispatch(ctx, mode, collectionCommits, textFields[collectionCommits], query, limit, filters)
	if err != nil {
		return nil, err
	}

	out := make([]CommitResult, len(results))
	for i, r := range results {
		out[i] = commitResultFrom(r)
	}
	return out, nil
}
