package model

import "time"

// HistoryEntry records one prior iteration of a GHAP entry's
// hypothesis/action/prediction, pushed onto History whenever an
// update changes any of the hap-bearing fields.
type HistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Hypothesis string    `json:"hypothesis"`
	Action     string    `json:"action"`
	Prediction string    `json:"prediction"`
}

// Outcome records how a GHAP entry was resolved.
type Outcome struct {
	Status       OutcomeStatus `json:"status"`
	Result       string        `json:"result"`
	CapturedAt   time.Time     `json:"captured_at"`
	AutoCaptured bool          `json:"auto_captured"`
}

// RootCause classifies why a hypothesis was falsified.
type RootCause struct {
	Category    RootCauseCategory `json:"category"`
	Description string            `json:"description"`
}

// Lesson records what a resolved entry taught, optionally with a
// forward-looking takeaway.
type Lesson struct {
	WhatWorked string `json:"what_worked"`
	Takeaway   string `json:"takeaway,omitempty"`
}

// GHAPEntry is the in-progress or resolved unit of observation: a
// goal, a hypothesis about how to achieve it, the action taken, and a
// prediction of the result.
type GHAPEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`

	Domain     Domain   `json:"domain"`
	Strategy   Strategy `json:"strategy"`
	Goal       string   `json:"goal"`
	Hypothesis string   `json:"hypothesis"`
	Action     string   `json:"action"`
	Prediction string   `json:"prediction"`

	IterationCount int            `json:"iteration_count"`
	History        []HistoryEntry `json:"history"`
	Notes          []string       `json:"notes"`

	Outcome        *Outcome        `json:"outcome,omitempty"`
	Surprise       string          `json:"surprise,omitempty"`
	RootCause      *RootCause      `json:"root_cause,omitempty"`
	Lesson         *Lesson         `json:"lesson,omitempty"`
	ConfidenceTier *ConfidenceTier `json:"confidence_tier,omitempty"`
}

// Active reports whether the entry is still open (not yet resolved).
func (e *GHAPEntry) Active() bool {
	return e.Outcome == nil
}

// Session groups GHAP entries created within one working period,
// archived to its own journal file on rotation.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	ToolCalls int       `json:"tool_calls"`
}

// Memory is a free-form fact, preference, or piece of context
// recorded outside the GHAP flow.
type Memory struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Category   MemoryCategory `json:"category"`
	Importance float64        `json:"importance"`
	Tags       []string       `json:"tags,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CodeUnit is an indexed span of source code (function, class, or
// method) tracked by the MetadataStore and projected into the vector
// store for semantic search.
type CodeUnit struct {
	ID            string       `json:"id"`
	FilePath      string       `json:"file_path"`
	QualifiedName string       `json:"qualified_name"`
	Type          CodeUnitType `json:"type"`
	Code          string       `json:"code"`
	Docstring     string       `json:"docstring,omitempty"`
	StartLine     int          `json:"start_line"`
	EndLine       int          `json:"end_line"`
	Language      string       `json:"language"`
	IndexedAt     time.Time    `json:"indexed_at"`
}

// Commit is an indexed git commit.
type Commit struct {
	SHA       string    `json:"sha"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Files     []string  `json:"files"`
	Additions int       `json:"additions"`
	Deletions int       `json:"deletions"`
	CommittedAt time.Time `json:"committed_at"`
}

// ValidationResult records why a candidate was accepted or rejected
// as a cluster-derived Value.
type ValidationResult struct {
	Accepted         bool    `json:"accepted"`
	CandidateDistance float64 `json:"candidate_distance"`
	MeanDistance     float64 `json:"mean_distance"`
	StdDistance      float64 `json:"std_distance"`
	Threshold        float64 `json:"threshold"`
	Similarity       float64 `json:"similarity"`
	Reason           string  `json:"reason,omitempty"`
}

// Value is a generalized principle distilled from a cluster of
// similar GHAP experiences along one axis.
type Value struct {
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	ClusterID   string            `json:"cluster_id"`
	Axis        Axis              `json:"axis"`
	ClusterLabel int              `json:"cluster_label"`
	ClusterSize int               `json:"cluster_size"`
	CreatedAt   time.Time         `json:"created_at"`
	Validation  ValidationResult  `json:"validation"`
}

// Cluster is a group of members assigned the same density-clustering
// label along one axis.
type Cluster struct {
	Axis         Axis      `json:"axis"`
	Label        int       `json:"label"`
	MemberIDs    []string  `json:"member_ids"`
	Centroid     []float32 `json:"centroid"`
	MeanDistance float64   `json:"mean_distance"`
	StdDistance  float64   `json:"std_distance"`
}
