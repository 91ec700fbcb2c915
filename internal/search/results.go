package search

import (
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

// asString reads a string payload field, defaulting to "".
func asString(p vectorstore.Payload, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func asFloat(p vectorstore.Payload, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func asInt(p vectorstore.Payload, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return 0
}

// MemoryResult is a search hit against the memories collection.
type MemoryResult struct {
	ID       string  `json:"id"`
	Score    float32 `json:"score"`
	Content  string  `json:"content"`
	Category string  `json:"category"`
}

func memoryResultFrom(s vectorstore.Scored) MemoryResult {
	return MemoryResult{
		ID:       s.ID,
		Score:    s.Score,
		Content:  asString(s.Payload, "content"),
		Category: asString(s.Payload, "category"),
	}
}

// CodeResult is a search hit against the code_units collection.
type CodeResult struct {
	ID            string  `json:"id"`
	Score         float32 `json:"score"`
	FilePath      string  `json:"file_path"`
	QualifiedName string  `json:"qualified_name"`
	Code          string  `json:"code"`
	Docstring     string  `json:"docstring,omitempty"`
	Language      string  `json:"language"`
	UnitType      string  `json:"unit_type"`
}

func codeResultFrom(s vectorstore.Scored) CodeResult {
	return CodeResult{
		ID:            s.ID,
		Score:         s.Score,
		FilePath:      asString(s.Payload, "file_path"),
		QualifiedName: asString(s.Payload, "qualified_name"),
		Code:          asString(s.Payload, "code"),
		Docstring:     asString(s.Payload, "docstring"),
		Language:      asString(s.Payload, "language"),
		UnitType:      asString(s.Payload, "unit_type"),
	}
}

// ExperienceResult is a search hit against one {prefix}_{axis}
// collection.
type ExperienceResult struct {
	ID             string  `json:"id"`
	Score          float32 `json:"score"`
	GHAPID         string  `json:"ghap_id"`
	Domain         string  `json:"domain"`
	Strategy       string  `json:"strategy"`
	OutcomeStatus  string  `json:"outcome_status"`
	ConfidenceTier string  `json:"confidence_tier,omitempty"`
}

func experienceResultFrom(s vectorstore.Scored) ExperienceResult {
	return ExperienceResult{
		ID:             s.ID,
		Score:          s.Score,
		GHAPID:         asString(s.Payload, "ghap_id"),
		Domain:         asString(s.Payload, "domain"),
		Strategy:       asString(s.Payload, "strategy"),
		OutcomeStatus:  asString(s.Payload, "outcome_status"),
		ConfidenceTier: asString(s.Payload, "confidence_tier"),
	}
}

// ValueResult is a search hit against the values collection.
type ValueResult struct {
	ID          string  `json:"id"`
	Score       float32 `json:"score"`
	Text        string  `json:"text"`
	Axis        string  `json:"axis"`
	ClusterSize int     `json:"cluster_size"`
}

func valueResultFrom(s vectorstore.Scored) ValueResult {
	return ValueResult{
		ID:          s.ID,
		Score:       s.Score,
		Text:        asString(s.Payload, "text"),
		Axis:        asString(s.Payload, "axis"),
		ClusterSize: asInt(s.Payload, "cluster_size"),
	}
}

// CommitResult is a search hit against the commits collection.
type CommitResult struct {
	ID          string  `json:"id"`
	Score       float32 `json:"score"`
	SHA         string  `json:"sha"`
	Message     string  `json:"message"`
	Author      string  `json:"author"`
	CommittedAt float64 `json:"committed_at"`
}

func commitResultFrom(s vectorstore.Scored) CommitResult {
	return CommitResult{
		ID:          s.ID,
		Score:       s.Score,
		SHA:         asString(s.Payload, "sha"),
		Message:     asString(s.Payload, "message"),
		Author:      asString(s.Payload, "author"),
		CommittedAt: asFloat(s.Payload, "committed_at"),
	}
}
