package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	kessacontext "github.com/kessa-dev/kessa/internal/context"
	"github.com/kessa-dev/kessa/internal/journal"
	"github.com/kessa-dev/kessa/internal/model"
	"github.com/kessa-dev/kessa/internal/search"
)

// enumOf renders a slice of model enumerators as plain strings for a
// tool schema's Enum constraint, keeping the schema's enum set equal
// to the validation code's enum set by construction.
func enumOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func (s *Server) registerTools() {
	s.registerGHAPTools()
	s.registerMemoryTools()
	s.registerSearchTools()
	s.registerClusterTools()
	s.registerContextTools()
}

// --- GHAP lifecycle -------------------------------------------------

func (s *Server) registerGHAPTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("start_ghap",
			mcplib.WithDescription(`Open a GHAP entry before acting on a hypothesis.

WHEN TO USE: before taking any action whose result you're not certain of.
Call this with what you believe, what you're about to do, and what you
expect to happen. Only one entry can be active at a time — resolve or
abandon the current one first.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithString("domain", mcplib.Description("Category of work"), mcplib.Required(), mcplib.Enum(enumOf(model.Domains())...)),
			mcplib.WithString("strategy", mcplib.Description("Approach being taken"), mcplib.Required(), mcplib.Enum(enumOf(model.Strategies())...)),
			mcplib.WithString("goal", mcplib.Description("What you're trying to accomplish"), mcplib.Required()),
			mcplib.WithString("hypothesis", mcplib.Description("What you believe is true"), mcplib.Required()),
			mcplib.WithString("action", mcplib.Description("What you're about to do"), mcplib.Required()),
			mcplib.WithString("prediction", mcplib.Description("What you expect to happen"), mcplib.Required()),
		),
		s.handleStartGHAP,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("update_ghap",
			mcplib.WithDescription(`Update the active GHAP entry as understanding changes.

Changing hypothesis, action, or prediction pushes the prior values onto
history and starts a new iteration. Changing strategy or adding a note
does not. All fields are optional — send only what changed.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithString("hypothesis", mcplib.Description("Revised hypothesis")),
			mcplib.WithString("action", mcplib.Description("Revised action")),
			mcplib.WithString("prediction", mcplib.Description("Revised prediction")),
			mcplib.WithString("strategy", mcplib.Description("Revised strategy"), mcplib.Enum(enumOf(model.Strategies())...)),
			mcplib.WithString("note", mcplib.Description("A note to append without closing an iteration")),
		),
		s.handleUpdateGHAP,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("resolve_ghap",
			mcplib.WithDescription(`Resolve the active GHAP entry once the action concludes.

Always provide status and result. If the prediction turned out wrong,
also provide surprise, root_cause_category, root_cause_description,
lesson_what_worked, and lesson_takeaway — this is what turns the entry
into a searchable experience.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithString("status", mcplib.Description("How the hypothesis played out"), mcplib.Required(), mcplib.Enum(enumOf(model.OutcomeStatuses())...)),
			mcplib.WithString("result", mcplib.Description("What actually happened"), mcplib.Required()),
			mcplib.WithString("surprise", mcplib.Description("What didn't match the prediction, if anything")),
			mcplib.WithString("root_cause_category", mcplib.Description("Why the prediction was wrong"), mcplib.Enum(enumOf(model.RootCauseCategories())...)),
			mcplib.WithString("root_cause_description", mcplib.Description("Details of the root cause")),
			mcplib.WithString("lesson_what_worked", mcplib.Description("What actually worked")),
			mcplib.WithString("lesson_takeaway", mcplib.Description("Forward-looking takeaway")),
		),
		s.handleResolveGHAP,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_active_ghap",
			mcplib.WithDescription("Return the currently active GHAP entry, or null if none is open."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
		),
		s.handleGetActiveGHAP,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("list_ghap_entries",
			mcplib.WithDescription(`List resolved GHAP entries from this session and past sessions.

Use domain/outcome/since to narrow results. Returns newest first.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("domain", mcplib.Description("Filter by domain"), mcplib.Enum(enumOf(model.Domains())...)),
			mcplib.WithString("outcome", mcplib.Description("Filter by outcome status"), mcplib.Enum(enumOf(model.OutcomeStatuses())...)),
			mcplib.WithString("since", mcplib.Description("RFC3339 timestamp; only entries created at or after this time")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum entries to return"), mcplib.Min(1), mcplib.Max(200), mcplib.DefaultNumber(20)),
		),
		s.handleListGHAPEntries,
	)
}

func (s *Server) handleStartGHAP(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	domain := model.Domain(request.GetString("domain", ""))
	strategy := model.Strategy(request.GetString("strategy", ""))
	if !domain.Valid() {
		return errorResultMsg(fmt.Sprintf("invalid domain %q", domain)), nil
	}
	if !strategy.Valid() {
		return errorResultMsg(fmt.Sprintf("invalid strategy %q", strategy)), nil
	}
	goal := request.GetString("goal", "")
	hypothesis := request.GetString("hypothesis", "")
	action := request.GetString("action", "")
	prediction := request.GetString("prediction", "")
	if goal == "" || hypothesis == "" || action == "" || prediction == "" {
		return errorResultMsg("goal, hypothesis, action, and prediction are all required"), nil
	}

	entry, err := s.journal.CreateGHAP(ctx, domain, strategy, goal, hypothesis, action, prediction)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(compactGHAPEntry(entry))
}

func (s *Server) handleUpdateGHAP(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var p journal.UpdateParams
	if v := request.GetString("hypothesis", ""); v != "" {
		p.Hypothesis = &v
	}
	if v := request.GetString("action", ""); v != "" {
		p.Action = &v
	}
	if v := request.GetString("prediction", ""); v != "" {
		p.Prediction = &v
	}
	if v := request.GetString("strategy", ""); v != "" {
		strategy := model.Strategy(v)
		if !strategy.Valid() {
			return errorResultMsg(fmt.Sprintf("invalid strategy %q", v)), nil
		}
		p.Strategy = &strategy
	}
	if v := request.GetString("note", ""); v != "" {
		p.Note = &v
	}

	entry, err := s.journal.UpdateGHAP(ctx, p)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(compactGHAPEntry(entry))
}

func (s *Server) handleResolveGHAP(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	status := model.OutcomeStatus(request.GetString("status", ""))
	if !status.Valid() {
		return errorResultMsg(fmt.Sprintf("invalid status %q", status)), nil
	}
	result := request.GetString("result", "")
	if result == "" {
		return errorResultMsg("result is required"), nil
	}

	p := journal.ResolveParams{Status: status, Result: result}
	if v := request.GetString("surprise", ""); v != "" {
		p.Surprise = &v
	}
	if cat := request.GetString("root_cause_category", ""); cat != "" {
		category := model.RootCauseCategory(cat)
		if !category.Valid() {
			return errorResultMsg(fmt.Sprintf("invalid root_cause_category %q", cat)), nil
		}
		p.RootCause = &model.RootCause{
			Category:    category,
			Description: request.GetString("root_cause_description", ""),
		}
	}
	if worked := request.GetString("lesson_what_worked", ""); worked != "" {
		p.Lesson = &model.Lesson{
			WhatWorked: worked,
			Takeaway:   request.GetString("lesson_takeaway", ""),
		}
	}

	entry, err := s.journal.ResolveGHAP(ctx, p)
	if err != nil {
		return errorResult(err), nil
	}

	if persistErr := s.persistResolved(ctx, entry); persistErr != nil {
		s.logger.Warn("resolve_ghap_persist_failed", "id", entry.ID, "error", persistErr.Error())
		return errorResult(persistErr), nil
	}

	return jsonResult(compactGHAPEntry(entry))
}

func (s *Server) handleGetActiveGHAP(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	entry, err := s.journal.GetCurrent(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if entry == nil {
		return jsonResult(map[string]any{"active": nil})
	}
	return jsonResult(compactGHAPEntry(entry))
}

func (s *Server) handleListGHAPEntries(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionEntries, err := s.journal.GetSessionEntries(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	archived, err := s.journal.ListArchivedEntries(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	all := append(archived, sessionEntries...)

	domain := model.Domain(request.GetString("domain", ""))
	outcome := model.OutcomeStatus(request.GetString("outcome", ""))
	since := request.GetString("since", "")
	limit := request.GetInt("limit", 20)

	var sinceTime time.Time
	if since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			sinceTime = t
		}
	}

	filtered := make([]model.GHAPEntry, 0, len(all))
	for _, e := range all {
		if domain != "" && e.Domain != domain {
			continue
		}
		if outcome != "" && (e.Outcome == nil || e.Outcome.Status != outcome) {
			continue
		}
		if !sinceTime.IsZero() && e.CreatedAt.Before(sinceTime) {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.After(filtered[j].CreatedAt) })
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}

	out := make([]map[string]any, 0, len(filtered))
	for _, e := range filtered {
		out = append(out, compactGHAPListEntry(e))
	}
	return jsonResult(map[string]any{"entries": out, "count": len(out)})
}

// --- Memory -----------------------------------------------------------

func (s *Server) registerMemoryTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("store_memory",
			mcplib.WithDescription("Store a durable fact, preference, or piece of context outside the GHAP flow."),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithString("content", mcplib.Description("The memory text"), mcplib.Required()),
			mcplib.WithString("category", mcplib.Description("Kind of memory"), mcplib.Required(), mcplib.Enum(enumOf(model.MemoryCategories())...)),
			mcplib.WithNumber("importance", mcplib.Description("0.0-1.0, how important this is to recall later"), mcplib.Min(0), mcplib.Max(1), mcplib.DefaultNumber(0.5)),
			mcplib.WithArray("tags", mcplib.Description("Optional free-form tags")),
		),
		s.handleStoreMemory,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("retrieve_memories",
			mcplib.WithDescription("Semantically search stored memories, optionally filtered by category and minimum importance."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query", mcplib.Description("Natural language query"), mcplib.Required()),
			mcplib.WithString("category", mcplib.Description("Filter by category"), mcplib.Enum(enumOf(model.MemoryCategories())...)),
			mcplib.WithNumber("min_importance", mcplib.Description("Minimum importance threshold"), mcplib.Min(0), mcplib.Max(1), mcplib.DefaultNumber(0)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(10)),
		),
		s.handleRetrieveMemories,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("list_memories",
			mcplib.WithDescription("List stored memories, newest first, optionally filtered by category."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("category", mcplib.Description("Filter by category"), mcplib.Enum(enumOf(model.MemoryCategories())...)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results"), mcplib.Min(1), mcplib.Max(200), mcplib.DefaultNumber(20)),
		),
		s.handleListMemories,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("delete_memory",
			mcplib.WithDescription("Delete a memory by id. Memories are the only record kind that can be deleted outright."),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("id", mcplib.Description("The memory id"), mcplib.Required()),
		),
		s.handleDeleteMemory,
	)
}

func (s *Server) handleStoreMemory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	content := request.GetString("content", "")
	category := model.MemoryCategory(request.GetString("category", ""))
	importance := request.GetFloat("importance", 0.5)
	tags := stringSliceArg(request, "tags")

	m, err := s.memStore.StoreMemory(ctx, content, category, importance, tags)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(compactMemory(*m))
}

func (s *Server) handleRetrieveMemories(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	category := model.MemoryCategory(request.GetString("category", ""))
	minImportance := request.GetFloat("min_importance", 0)
	limit := request.GetInt("limit", 10)

	memories, err := s.memStore.RetrieveMemories(ctx, query, category, minImportance, limit)
	if err != nil {
		return errorResult(err), nil
	}

	out := make([]map[string]any, 0, len(memories))
	for _, m := range memories {
		out = append(out, compactMemory(m))
	}
	return jsonResult(map[string]any{"memories": out, "count": len(out)})
}

func (s *Server) handleListMemories(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	category := model.MemoryCategory(request.GetString("category", ""))
	limit := request.GetInt("limit", 20)

	memories, err := s.memStore.ListMemories(ctx, category, limit)
	if err != nil {
		return errorResult(err), nil
	}

	out := make([]map[string]any, 0, len(memories))
	for _, m := range memories {
		out = append(out, compactMemory(m))
	}
	return jsonResult(map[string]any{"memories": out, "count": len(out)})
}

func (s *Server) handleDeleteMemory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return errorResultMsg("id is required"), nil
	}
	if err := s.memStore.DeleteMemory(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"deleted": id})
}

// --- Search -------------------------------------------------------------

func (s *Server) registerSearchTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("search_memories",
			mcplib.WithDescription("Search memories by meaning, keyword, or both."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query", mcplib.Description("Search text"), mcplib.Required()),
			mcplib.WithString("category", mcplib.Description("Filter by category"), mcplib.Enum(enumOf(model.MemoryCategories())...)),
			mcplib.WithString("mode", mcplib.Description("Search mode"), mcplib.Enum(enumOf(model.SearchModes())...)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(10)),
		),
		s.handleSearchMemories,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("search_code",
			mcplib.WithDescription("Search indexed code units by meaning, keyword, or both."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query", mcplib.Description("Search text"), mcplib.Required()),
			mcplib.WithString("project", mcplib.Description("Filter by project")),
			mcplib.WithString("language", mcplib.Description("Filter by source language")),
			mcplib.WithString("unit_type", mcplib.Description("Filter by code unit type"), mcplib.Enum(enumOf(model.CodeUnitTypes())...)),
			mcplib.WithString("mode", mcplib.Description("Search mode"), mcplib.Enum(enumOf(model.SearchModes())...)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(10)),
		),
		s.handleSearchCode,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("search_experiences",
			mcplib.WithDescription("Search resolved GHAP experiences along one axis: full entry, strategy, surprise, or root cause."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query", mcplib.Description("Search text"), mcplib.Required()),
			mcplib.WithString("axis", mcplib.Description("Which facet of the experience to search"), mcplib.Enum(enumOf(model.Axes())...)),
			mcplib.WithString("domain", mcplib.Description("Filter by domain"), mcplib.Enum(enumOf(model.Domains())...)),
			mcplib.WithString("strategy", mcplib.Description("Filter by strategy"), mcplib.Enum(enumOf(model.Strategies())...)),
			mcplib.WithString("outcome", mcplib.Description("Filter by outcome status"), mcplib.Enum(enumOf(model.OutcomeStatuses())...)),
			mcplib.WithString("mode", mcplib.Description("Search mode"), mcplib.Enum(enumOf(model.SearchModes())...)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(10)),
		),
		s.handleSearchExperiences,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("search_values",
			mcplib.WithDescription("Search distilled values (generalized principles) along one axis."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query", mcplib.Description("Search text"), mcplib.Required()),
			mcplib.WithString("axis", mcplib.Description("Restrict to one axis"), mcplib.Enum(enumOf(model.Axes())...)),
			mcplib.WithString("mode", mcplib.Description("Search mode"), mcplib.Enum(enumOf(model.SearchModes())...)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(10)),
		),
		s.handleSearchValues,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("search_commits",
			mcplib.WithDescription("Search indexed git commits by meaning, keyword, or both."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query", mcplib.Description("Search text"), mcplib.Required()),
			mcplib.WithString("author", mcplib.Description("Filter by commit author")),
			mcplib.WithString("since", mcplib.Description("RFC3339 timestamp; only commits at or after this time")),
			mcplib.WithString("mode", mcplib.Description("Search mode"), mcplib.Enum(enumOf(model.SearchModes())...)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(10)),
		),
		s.handleSearchCommits,
	)
}

func resolveSearchMode(request mcplib.CallToolRequest) model.SearchMode {
	return model.SearchMode(request.GetString("mode", string(model.ModeSemantic)))
}

func (s *Server) handleSearchMemories(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	category := model.MemoryCategory(request.GetString("category", ""))
	limit := request.GetInt("limit", 10)

	results, err := s.searcher.SearchMemories(ctx, query, category, limit, resolveSearchMode(request))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleSearchCode(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	params := search.CodeSearchParams{
		Project:  request.GetString("project", ""),
		Language: request.GetString("language", ""),
		UnitType: model.CodeUnitType(request.GetString("unit_type", "")),
	}
	limit := request.GetInt("limit", 10)

	results, err := s.searcher.SearchCode(ctx, query, params, limit, resolveSearchMode(request))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleSearchExperiences(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	params := search.ExperienceSearchParams{
		Axis:     model.Axis(request.GetString("axis", "")),
		Domain:   model.Domain(request.GetString("domain", "")),
		Strategy: model.Strategy(request.GetString("strategy", "")),
		Outcome:  model.OutcomeStatus(request.GetString("outcome", "")),
	}
	limit := request.GetInt("limit", 10)

	results, err := s.searcher.SearchExperiences(ctx, query, params, limit, resolveSearchMode(request))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleSearchValues(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	axis := model.Axis(request.GetString("axis", ""))
	limit := request.GetInt("limit", 10)

	results, err := s.searcher.SearchValues(ctx, query, axis, limit, resolveSearchMode(request))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleSearchCommits(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	params := search.CommitSearchParams{Author: request.GetString("author", "")}
	if v := request.GetString("since", ""); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.Since = &t
		}
	}
	limit := request.GetInt("limit", 10)

	results, err := s.searcher.SearchCommits(ctx, query, params, limit, resolveSearchMode(request))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"results": results, "count": len(results)})
}

// --- Clusters and values -------------------------------------------------

func (s *Server) registerClusterTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("get_clusters",
			mcplib.WithDescription("List experience clusters found along one axis. Requires at least 20 resolved experiences on that axis."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("axis", mcplib.Description("Axis to cluster"), mcplib.Required(), mcplib.Enum(enumOf(model.Axes())...)),
		),
		s.handleGetClusters,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_cluster_members",
			mcplib.WithDescription("List the experience ids belonging to a cluster."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("cluster_id", mcplib.Description("Cluster id, as returned by get_clusters"), mcplib.Required()),
		),
		s.handleGetClusterMembers,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("validate_value",
			mcplib.WithDescription("Check whether a candidate value statement is consistent with a cluster, before storing it."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("text", mcplib.Description("Candidate value statement"), mcplib.Required()),
			mcplib.WithString("cluster_id", mcplib.Description("Cluster to validate against"), mcplib.Required()),
		),
		s.handleValidateValue,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("store_value",
			mcplib.WithDescription(`Store a value distilled from a cluster. Rejected if it fails validation against the cluster.

Values are append-only; they cannot be deleted or edited once stored.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithString("text", mcplib.Description("The value statement"), mcplib.Required()),
			mcplib.WithString("cluster_id", mcplib.Description("Cluster this value is distilled from"), mcplib.Required()),
		),
		s.handleStoreValue,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("list_values",
			mcplib.WithDescription("List stored values, newest first, optionally filtered by axis."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("axis", mcplib.Description("Filter by axis"), mcplib.Enum(enumOf(model.Axes())...)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results"), mcplib.Min(1), mcplib.Max(200), mcplib.DefaultNumber(20)),
		),
		s.handleListValues,
	)
}

func (s *Server) handleGetClusters(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	axis := model.Axis(request.GetString("axis", ""))
	if !axis.Valid() {
		return errorResultMsg(fmt.Sprintf("invalid axis %q", axis)), nil
	}

	clusters, err := s.values.GetClusters(ctx, axis)
	if err != nil {
		return errorResult(err), nil
	}

	out := make([]map[string]any, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, compactCluster(c))
	}
	return jsonResult(map[string]any{"clusters": out, "count": len(out)})
}

func (s *Server) handleGetClusterMembers(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	clusterID := request.GetString("cluster_id", "")
	if clusterID == "" {
		return errorResultMsg("cluster_id is required"), nil
	}

	members, err := s.values.GetClusterMembers(ctx, clusterID)
	if err != nil {
		return errorResult(err), nil
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return jsonResult(map[string]any{"cluster_id": clusterID, "member_ids": ids, "count": len(ids)})
}

func (s *Server) handleValidateValue(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := request.GetString("text", "")
	clusterID := request.GetString("cluster_id", "")
	if text == "" || clusterID == "" {
		return errorResultMsg("text and cluster_id are required"), nil
	}

	validation, err := s.values.ValidateValueCandidate(ctx, text, clusterID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(validation)
}

func (s *Server) handleStoreValue(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := request.GetString("text", "")
	clusterID := request.GetString("cluster_id", "")
	if text == "" || clusterID == "" {
		return errorResultMsg("text and cluster_id are required"), nil
	}

	axis, err := axisFromClusterID(clusterID)
	if err != nil {
		return errorResultMsg(fmt.Sprintf("invalid cluster_id %q", clusterID)), nil
	}

	value, err := s.values.StoreValue(ctx, text, clusterID, axis)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(compactValue(value))
}

func (s *Server) handleListValues(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	axis := model.Axis(request.GetString("axis", ""))
	limit := request.GetInt("limit", 20)

	values, err := s.values.ListValues(ctx, axis, limit)
	if err != nil {
		return errorResult(err), nil
	}

	out := make([]map[string]any, 0, len(values))
	for _, v := range values {
		out = append(out, compactValue(v))
	}
	return jsonResult(map[string]any{"values": out, "count": len(out)})
}

// --- Context assembly -----------------------------------------------------

func (s *Server) registerContextTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("assemble_context",
			mcplib.WithDescription(`Pull relevant memories, code, experiences, values, and commits into one budgeted context block.

context_types selects which sources to pull from; omit for all of them.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query", mcplib.Description("What you need context for"), mcplib.Required()),
			mcplib.WithArray("context_types", mcplib.Description("Which sources to draw from: memories, code, experiences, commits, values. Defaults to all.")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum items per source"), mcplib.Min(1), mcplib.Max(50), mcplib.DefaultNumber(10)),
			mcplib.WithNumber("max_tokens", mcplib.Description("Total token budget for the assembled context"), mcplib.Min(100), mcplib.DefaultNumber(2000)),
		),
		s.handleAssembleContext,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("get_premortem_context",
			mcplib.WithDescription(`Pull prior experiences and distilled values relevant to a domain and strategy, before attempting it.

Use this when a strategy has failed before in this domain, to see what went wrong last time.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("domain", mcplib.Description("Domain you're about to work in"), mcplib.Required(), mcplib.Enum(enumOf(model.Domains())...)),
			mcplib.WithString("strategy", mcplib.Description("Strategy you're about to use"), mcplib.Required(), mcplib.Enum(enumOf(model.Strategies())...)),
			mcplib.WithNumber("limit", mcplib.Description("Maximum items per source"), mcplib.Min(1), mcplib.Max(50), mcplib.DefaultNumber(10)),
			mcplib.WithNumber("max_tokens", mcplib.Description("Total token budget for the assembled context"), mcplib.Min(100), mcplib.DefaultNumber(2000)),
		),
		s.handleGetPremortemContext,
	)
}

func (s *Server) handleAssembleContext(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResultMsg("query is required"), nil
	}
	contextTypes := stringSliceArg(request, "context_types")
	if len(contextTypes) == 0 {
		contextTypes = []string{"memories", "code", "experiences", "commits", "values"}
	}
	limit := request.GetInt("limit", 10)
	maxTokens := request.GetInt("max_tokens", 2000)

	result, err := s.assembler.AssembleContext(ctx, query, contextTypes, limit, maxTokens)
	if err != nil {
		var invalid *kessacontext.ErrInvalidContextType
		if errors.As(err, &invalid) {
			return errorResultMsg(err.Error()), nil
		}
		return errorResult(err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleGetPremortemContext(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	domain := request.GetString("domain", "")
	strategy := request.GetString("strategy", "")
	limit := request.GetInt("limit", 10)
	maxTokens := request.GetInt("max_tokens", 2000)

	result, err := s.assembler.GetPremortemContext(ctx, domain, strategy, limit, maxTokens)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(result)
}

// --- shared helpers ---------------------------------------------------

// axisFromClusterID extracts the axis portion of a "{axis}_{label}"
// cluster id, the same format internal/cluster assigns.
func axisFromClusterID(clusterID string) (model.Axis, error) {
	idx := strings.LastIndex(clusterID, "_")
	if idx < 0 {
		return "", fmt.Errorf("malformed cluster id")
	}
	axis := model.Axis(clusterID[:idx])
	if !axis.Valid() {
		return "", fmt.Errorf("unknown axis in cluster id")
	}
	if _, err := strconv.Atoi(clusterID[idx+1:]); err != nil {
		return "", fmt.Errorf("malformed cluster id")
	}
	return axis, nil
}

func stringSliceArg(request mcplib.CallToolRequest, field string) []string {
	raw, ok := request.GetArguments()[field].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
