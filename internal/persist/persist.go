// Package persist projects a resolved GHAP entry into the vector
// store along one or more semantic axes (§4.2).
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kessa-dev/kessa/internal/embedding"
	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/telemetry"
	"github.com/kessa-dev/kessa/internal/vectorstore"
)

// Axis template identifiers, named for logging only — rendering lives
// in the render* functions below rather than as literal template
// strings, following the teacher's plain string-building convention.
const (
	TemplateFull      = "full"
	TemplateStrategy  = "strategy"
	TemplateSurprise  = "surprise"
	TemplateRootCause = "root_cause"
)

// Persister projects resolved GHAP entries into one Qdrant-style
// collection per axis, named "{prefix}_{axis}".
type Persister struct {
	embedder         embedding.Provider
	store            vectorstore.Store
	collectionPrefix string
	logger           *slog.Logger
	duration         metric.Float64Histogram
}

// New constructs a Persister. collectionPrefix is typically "ghap".
func New(embedder embedding.Provider, store vectorstore.Store, collectionPrefix string, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	duration, err := telemetry.Meter("kessa/persist").Float64Histogram(
		"kessa.persist.duration",
		metric.WithDescription("Duration of a Persist call, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("persist_histogram_init_failed", "error", err.Error())
	}
	return &Persister{embedder: embedder, store: store, collectionPrefix: collectionPrefix, logger: logger, duration: duration}
}

func (p *Persister) collectionName(axis model.Axis) string {
	return fmt.Sprintf("%s_%s", p.collectionPrefix, axis)
}

// EnsureCollections provisions the per-axis collections. Existing
// collections are left untouched; failures provisioning one
// collection are logged, not fatal, so a partially-initialized store
// doesn't block the rest.
func (p *Persister) EnsureCollections(ctx context.Context) error {
	for _, axis := range model.Axes() {
		name := p.collectionName(axis)
		if err := p.store.CreateCollection(ctx, name, p.embedder.Dimensions(), vectorstore.Cosine); err != nil {
			p.logger.Warn("collection already exists or could not be created", "collection", name, "error", err)
		}
	}
	return nil
}

// determineAxes decides which axes a resolved entry projects onto.
// full and strategy always apply; surprise requires both a falsified
// outcome and a non-empty Surprise field — a confirmed or abandoned
// entry never produces a surprise/root_cause projection even if it
// happens to carry a surprise value; root_cause additionally requires
// a RootCause.
func determineAxes(entry *model.GHAPEntry) []model.Axis {
	axes := []model.Axis{model.AxisFull, model.AxisStrategy}
	if entry.Outcome == nil || entry.Outcome.Status != model.OutcomeFalsified || entry.Surprise == "" {
		return axes
	}
	axes = append(axes, model.AxisSurprise)
	if entry.RootCause != nil {
		axes = append(axes, model.AxisRootCause)
	}
	return axes
}

// Persist embeds and upserts entry into every axis collection it
// qualifies for. entry must be resolved (Outcome set).
func (p *Persister) Persist(ctx context.Context, entry *model.GHAPEntry) error {
	start := time.Now()
	defer func() {
		if p.duration != nil {
			p.duration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	if entry.Outcome == nil {
		return fmt.Errorf("%w: entry must be resolved before persisting", errs.ErrValidation)
	}

	baseMetadata := buildMetadata(entry)

	for _, axis := range determineAxes(entry) {
		text := renderTemplate(axis, entry)
		vec, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("%w: axis %s: %v", errs.ErrEmbeddingFailure, axis, err)
		}

		payload := buildAxisMetadata(entry, axis, baseMetadata)
		id := entry.ID
		if axis != model.AxisFull {
			id = fmt.Sprintf("%s_%s", axis, entry.ID)
		}
		point := vectorstore.Point{
			ID:      id,
			Vector:  vec,
			Payload: payload,
		}
		if err := p.store.Upsert(ctx, p.collectionName(axis), []vectorstore.Point{point}); err != nil {
			return fmt.Errorf("%w: upsert axis %s: %v", errs.ErrInternal, axis, err)
		}
	}
	return nil
}

// PersistBatch validates every entry up front, then persists each in
// turn. No partial persistence on a validation failure: the whole
// batch is rejected before any embedding or upsert happens.
func (p *Persister) PersistBatch(ctx context.Context, entries []*model.GHAPEntry) error {
	for _, e := range entries {
		if e.Outcome == nil {
			return fmt.Errorf("%w: entry %s must be resolved before persisting", errs.ErrValidation, e.ID)
		}
	}
	for _, e := range entries {
		if err := p.Persist(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func buildMetadata(entry *model.GHAPEntry) map[string]any {
	m := map[string]any{
		"ghap_id":         entry.ID,
		"session_id":      entry.SessionID,
		"created_at":      float64(entry.CreatedAt.Unix()),
		"domain":          string(entry.Domain),
		"strategy":        string(entry.Strategy),
		"iteration_count": entry.IterationCount,
	}
	if entry.Outcome != nil {
		m["outcome_status"] = string(entry.Outcome.Status)
		m["captured_at"] = float64(entry.Outcome.CapturedAt.Unix())
	}
	if entry.ConfidenceTier != nil {
		m["confidence_tier"] = string(*entry.ConfidenceTier)
	} else {
		m["confidence_tier"] = nil
	}
	return m
}

// buildAxisMetadata layers axis-specific fields onto the shared
// metadata. surprise and root_cause axes additionally carry the root
// cause category, since both collections are searched for
// falsification analysis.
func buildAxisMetadata(entry *model.GHAPEntry, axis model.Axis, base map[string]any) vectorstore.Payload {
	out := make(vectorstore.Payload, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	if (axis == model.AxisSurprise || axis == model.AxisRootCause) && entry.RootCause != nil {
		out["root_cause_category"] = string(entry.RootCause.Category)
	}
	return out
}

func renderTemplate(axis model.Axis, entry *model.GHAPEntry) string {
	switch axis {
	case model.AxisStrategy:
		return renderStrategy(entry)
	case model.AxisSurprise:
		return renderSurprise(entry)
	case model.AxisRootCause:
		return renderRootCause(entry)
	default:
		return renderFull(entry)
	}
}

func renderFull(entry *model.GHAPEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", entry.Goal)
	fmt.Fprintf(&b, "Hypothesis: %s\n", entry.Hypothesis)
	fmt.Fprintf(&b, "Action: %s\n", entry.Action)
	fmt.Fprintf(&b, "Prediction: %s\n", entry.Prediction)
	if entry.Outcome != nil {
		fmt.Fprintf(&b, "Outcome: %s - %s\n", entry.Outcome.Status, entry.Outcome.Result)
	}
	if entry.Surprise != "" {
		fmt.Fprintf(&b, "Surprise: %s\n", entry.Surprise)
	}
	if entry.Lesson != nil && entry.Lesson.WhatWorked != "" {
		fmt.Fprintf(&b, "Lesson: %s\n", entry.Lesson.WhatWorked)
	}
	return b.String()
}

func renderStrategy(entry *model.GHAPEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Strategy: %s\n", entry.Strategy)
	fmt.Fprintf(&b, "Applied to: %s\n", entry.Goal)
	if entry.Outcome != nil {
		fmt.Fprintf(&b, "Outcome: %s after %d iteration(s)\n", entry.Outcome.Status, entry.IterationCount)
	}
	if entry.Lesson != nil && entry.Lesson.WhatWorked != "" {
		fmt.Fprintf(&b, "What worked: %s\n", entry.Lesson.WhatWorked)
	}
	return b.String()
}

func renderSurprise(entry *model.GHAPEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expected: %s\n", entry.Prediction)
	if entry.Outcome != nil {
		fmt.Fprintf(&b, "Actual: %s\n", entry.Outcome.Result)
	}
	fmt.Fprintf(&b, "Surprise: %s\n", entry.Surprise)
	if entry.RootCause != nil {
		fmt.Fprintf(&b, "Root cause: %s - %s\n", entry.RootCause.Category, entry.RootCause.Description)
	}
	return b.String()
}

func renderRootCause(entry *model.GHAPEntry) string {
	var b strings.Builder
	if entry.RootCause != nil {
		fmt.Fprintf(&b, "Category: %s\n", entry.RootCause.Category)
		fmt.Fprintf(&b, "Description: %s\n", entry.RootCause.Description)
	}
	fmt.Fprintf(&b, "Context: %s - %s\n", entry.Domain, entry.Strategy)
	fmt.Fprintf(&b, "Original hypothesis: %s\n", entry.Hypothesis)
	return b.String()
}
