package context

import (
	"context"

	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/search"
)

// SearcherCapability is the trait the assembler depends on, rather
// than the concrete Searcher. It exposes exactly the five search
// operations context assembly needs, keeping the dependency one-way:
// search has no knowledge of this package.
type SearcherCapability interface {
	SearchMemories(ctx context.Context, query string, category model.MemoryCategory, limit int, mode model.SearchMode) ([]search.MemoryResult, error)
	SearchCode(ctx context.Context, query string, params search.CodeSearchParams, limit int, mode model.SearchMode) ([]search.CodeResult, error)
	SearchExperiences(ctx context.Context, query string, params search.ExperienceSearchParams, limit int, mode model.SearchMode) ([]search.ExperienceResult, error)
	SearchValues(ctx context.Context, query string, axis model.Axis, limit int, mode model.SearchMode) ([]search.ValueResult, error)
	SearchCommits(ctx context.Context, query string, params search.CommitSearchParams, limit int, mode model.SearchMode) ([]search.CommitResult, error)
}
