package mcp

import (
	"github.com/kessa-dev/kessa/internal/cluster"
	"github.com/kessa-dev/kessa/internal/model"
)

// maxCompactText bounds individual text fields folded into a compact
// list response, keeping each entry within §6's 500-byte-per-entry
// contract.
const maxCompactText = 200

// truncate returns s capped to maxLen runes, with a "..." suffix when
// cut.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// compactGHAPEntry drops History (the verbose iteration log) and caps
// free-text fields, keeping the response within the get-active-ghap
// 2000-byte contract while still carrying everything an agent acts on.
func compactGHAPEntry(e *model.GHAPEntry) map[string]any {
	m := map[string]any{
		"id":              e.ID,
		"session_id":      e.SessionID,
		"domain":          string(e.Domain),
		"strategy":        string(e.Strategy),
		"goal":            truncate(e.Goal, maxCompactText),
		"hypothesis":      truncate(e.Hypothesis, maxCompactText),
		"action":          truncate(e.Action, maxCompactText),
		"prediction":      truncate(e.Prediction, maxCompactText),
		"iteration_count": e.IterationCount,
		"created_at":      e.CreatedAt,
	}
	if len(e.Notes) > 0 {
		m["notes"] = e.Notes
	}
	if e.Outcome != nil {
		m["outcome"] = map[string]any{
			"status":        string(e.Outcome.Status),
			"result":        truncate(e.Outcome.Result, maxCompactText),
			"auto_captured": e.Outcome.AutoCaptured,
		}
	}
	if e.Surprise != "" {
		m["surprise"] = truncate(e.Surprise, maxCompactText)
	}
	if e.RootCause != nil {
		m["root_cause"] = map[string]any{
			"category":    string(e.RootCause.Category),
			"description": truncate(e.RootCause.Description, maxCompactText),
		}
	}
	if e.Lesson != nil {
		m["lesson"] = map[string]any{
			"what_worked": truncate(e.Lesson.WhatWorked, maxCompactText),
			"takeaway":    truncate(e.Lesson.Takeaway, maxCompactText),
		}
	}
	if e.ConfidenceTier != nil {
		m["confidence_tier"] = string(*e.ConfidenceTier)
	}
	return m
}

// compactGHAPListEntry is the ≤500-byte-per-entry shape used by
// list_ghap_entries: no history, no notes, shorter text caps.
func compactGHAPListEntry(e model.GHAPEntry) map[string]any {
	const listTextCap = 120
	m := map[string]any{
		"id":         e.ID,
		"domain":     string(e.Domain),
		"strategy":   string(e.Strategy),
		"goal":       truncate(e.Goal, listTextCap),
		"created_at": e.CreatedAt,
	}
	if e.Outcome != nil {
		m["status"] = string(e.Outcome.Status)
		m["result"] = truncate(e.Outcome.Result, listTextCap)
	}
	if e.ConfidenceTier != nil {
		m["confidence_tier"] = string(*e.ConfidenceTier)
	}
	return m
}

func compactMemory(m model.Memory) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"content":    truncate(m.Content, maxCompactText),
		"category":   string(m.Category),
		"importance": m.Importance,
		"tags":       m.Tags,
		"created_at": m.CreatedAt,
	}
}

// compactCluster drops Centroid and the full MemberIDs list — a
// get_clusters response lists clusters to pick from, not their raw
// vectors or membership.
func compactCluster(c cluster.ClusterInfo) map[string]any {
	return map[string]any{
		"cluster_id": c.ClusterID,
		"axis":       string(c.Axis),
		"label":      c.Label,
		"size":       c.Size,
		"avg_weight": c.AvgWeight,
	}
}

func compactValue(v *model.Value) map[string]any {
	return map[string]any{
		"id":           v.ID,
		"text":         truncate(v.Text, maxCompactText),
		"cluster_id":   v.ClusterID,
		"axis":         string(v.Axis),
		"cluster_size": v.ClusterSize,
		"created_at":   v.CreatedAt,
	}
}
