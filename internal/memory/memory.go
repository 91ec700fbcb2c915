// Package memory implements store/retrieve/list/delete over the
// freeform Memory record (§3.5): facts, preferences, context,
// workflow notes, and goals recorded outside the GHAP flow.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/ids"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

const collectionName = "memories"

// Store embeds and persists Memory records into the vector store's
// "memories" collection.
type Store struct {
	embedder embedding.Provider
	vstore   vectorstore.Store
}

// New constructs a Store.
func New(embedder embedding.Provider, vstore vectorstore.Store) *Store {
	return &Store{embedder: embedder, vstore: vstore}
}

// EnsureCollection provisions the memories collection if absent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	return s.vstore.CreateCollection(ctx, collectionName, s.embedder.Dimensions(), vectorstore.Cosine)
}

// StoreMemory validates category and importance, embeds content, and
// upserts the memory.
func (s *Store) StoreMemory(ctx context.Context, content string, category model.MemoryCategory, importance float64, tags []string) (*model.Memory, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content must not be empty", errs.ErrValidation)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: invalid category %q", errs.ErrValidation, category)
	}
	if importance < 0 || importance > 1 {
		return nil, fmt.Errorf("%w: importance must be within [0, 1]", errs.ErrValidation)
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEmbeddingFailure, err)
	}

	m := &model.Memory{
		ID:         ids.Memory(),
		Content:    content,
		Category:   category,
		Importance: importance,
		Tags:       tags,
		CreatedAt:  time.Now().UTC(),
	}

	point := vectorstore.Point{
		ID:      m.ID,
		Vector:  vec,
		Payload: memoryPayload(m),
	}
	if err := s.vstore.Upsert(ctx, collectionName, []vectorstore.Point{point}); err != nil {
		return nil, fmt.Errorf("%w: upsert memory: %v", errs.ErrInternal, err)
	}
	return m, nil
}

// RetrieveMemories runs a semantic search over stored memories,
// optionally narrowed by category and a minimum importance.
func (s *Store) RetrieveMemories(ctx context.Context, query string, category model.MemoryCategory, minImportance float64, limit int) ([]model.Memory, error) {
	if query == "" {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEmbeddingFailure, err)
	}

	filter := vectorstore.Filter{}
	if category != "" {
		filter["category"] = string(category)
	}
	if minImportance > 0 {
		filter["importance"] = &vectorstore.Op{Gte: minImportance}
	}

	scored, err := s.vstore.Search(ctx, collectionName, vec, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: search memories: %v", errs.ErrInternal, err)
	}

	out := make([]model.Memory, 0, len(scored))
	for _, sc := range scored {
		out = append(out, memoryFromPayload(sc.ID, sc.Payload))
	}
	return out, nil
}

// ListMemories scrolls the full collection, optionally filtered by
// category, sorted newest-first.
func (s *Store) ListMemories(ctx context.Context, category model.MemoryCategory, limit int) ([]model.Memory, error) {
	filter := vectorstore.Filter{}
	if category != "" {
		filter["category"] = string(category)
	}

	points, err := s.vstore.Scroll(ctx, collectionName, 0, filter, false)
	if err != nil {
		return nil, fmt.Errorf("%w: scroll memories: %v", errs.ErrInternal, err)
	}

	out := make([]model.Memory, 0, len(points))
	for _, p := range points {
		out = append(out, memoryFromPayload(p.ID, p.Payload))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteMemory removes a memory by id. Memories are the one record
// kind in this system that may be deleted outright (§3.7: "values
// are append-only; memories may be deleted by id").
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	if err := s.vstore.Delete(ctx, collectionName, id); err != nil {
		return fmt.Errorf("%w: delete memory %s: %v", errs.ErrNotFound, id, err)
	}
	return nil
}

func memoryPayload(m *model.Memory) vectorstore.Payload {
	tags := make([]any, len(m.Tags))
	for i, t := range m.Tags {
		tags[i] = t
	}
	return vectorstore.Payload{
		"content":    m.Content,
		"category":   string(m.Category),
		"importance": m.Importance,
		"tags":       tags,
		"created_at": m.CreatedAt.Format(time.RFC3339Nano),
	}
}

func memoryFromPayload(id string, p vectorstore.Payload) model.Memory {
	var tags []string
	if raw, ok := p["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	} else if raw, ok := p["tags"].([]string); ok {
		tags = raw
	}

	createdAt := time.Time{}
	if iso, ok := p["created_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, iso); err == nil {
			createdAt = parsed
		}
	}

	importance, _ := p["importance"].(float64)

	return model.Memory{
		ID:         id,
		Content:    asString(p["content"]),
		Category:   model.MemoryCategory(asString(p["category"])),
		Importance: importance,
		Tags:       tags,
		CreatedAt:  createdAt,
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
