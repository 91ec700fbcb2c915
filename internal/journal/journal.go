// Package journal implements the ObservationCollector: a crash-safe,
// filesystem-backed state machine for the currently active GHAP entry
// and its session archive.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/ids"
	"github.com/kessa-dev/kessa/internal/model"
)

// Collector is the local GHAP state machine using file-based
// persistence. One Collector owns one journal directory; concurrent
// agents must use distinct directories.
type Collector struct {
	journalDir string
	archiveDir string
	logger     *slog.Logger
}

// New creates a Collector rooted at journalDir, creating the
// directory (and its archive subdirectory) if absent.
func New(journalDir string, logger *slog.Logger) (*Collector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(journalDir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create journal dir: %w", err)
	}
	archiveDir := filepath.Join(journalDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create archive dir: %w", err)
	}
	return &Collector{journalDir: journalDir, archiveDir: archiveDir, logger: logger}, nil
}

func (c *Collector) currentPath() string        { return filepath.Join(c.journalDir, "current_ghap.json") }
func (c *Collector) sessionEntriesPath() string { return filepath.Join(c.journalDir, "session_entries.jsonl") }
func (c *Collector) sessionIDPath() string      { return filepath.Join(c.journalDir, ".session_id") }
func (c *Collector) toolCountPath() string      { return filepath.Join(c.journalDir, ".tool_count") }

// === GHAP lifecycle ===

// CreateGHAP starts a new active entry. Fails with ErrAlreadyActive if
// one is already open.
func (c *Collector) CreateGHAP(ctx context.Context, domain model.Domain, strategy model.Strategy, goal, hypothesis, action, prediction string) (*model.GHAPEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := c.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		c.logger.Warn("ghap_already_active", "current_id", current.ID)
		return nil, fmt.Errorf("%w: GHAP entry %s is already active", errs.ErrAlreadyActive, current.ID)
	}

	sessionID, err := c.GetSessionID(ctx)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID, err = c.StartSession(ctx)
		if err != nil {
			return nil, err
		}
	}

	entry := &model.GHAPEntry{
		ID:             ids.GHAP(time.Now()),
		SessionID:      sessionID,
		CreatedAt:      time.Now().UTC(),
		Domain:         domain,
		Strategy:       strategy,
		Goal:           truncateText(goal),
		Hypothesis:     truncateText(hypothesis),
		Action:         truncateText(action),
		Prediction:     truncateText(prediction),
		IterationCount: 1,
		History:        []model.HistoryEntry{},
		Notes:          []string{},
	}

	if err := c.saveCurrent(entry); err != nil {
		return nil, err
	}

	c.logger.Info("ghap_created", "ghap_id", entry.ID, "domain", string(entry.Domain), "strategy", string(entry.Strategy))
	return entry, nil
}

// UpdateParams carries the optional fields of an update call; a nil
// pointer means "leave unchanged."
type UpdateParams struct {
	Hypothesis *string
	Action     *string
	Prediction *string
	Strategy   *model.Strategy
	Note       *string
}

// UpdateGHAP mutates the current entry. Fails with ErrNotFound if none
// is active.
func (c *Collector) UpdateGHAP(ctx context.Context, p UpdateParams) (*model.GHAPEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := c.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		c.logger.Warn("no_active_ghap_for_update")
		return nil, fmt.Errorf("%w: no active GHAP entry to update", errs.ErrNotFound)
	}

	hapChanging := (p.Hypothesis != nil && *p.Hypothesis != current.Hypothesis) ||
		(p.Action != nil && *p.Action != current.Action) ||
		(p.Prediction != nil && *p.Prediction != current.Prediction)

	if hapChanging {
		current.History = append(current.History, model.HistoryEntry{
			Timestamp:  time.Now().UTC(),
			Hypothesis: current.Hypothesis,
			Action:     current.Action,
			Prediction: current.Prediction,
		})
		current.IterationCount++

		if p.Hypothesis != nil {
			current.Hypothesis = truncateText(*p.Hypothesis)
		}
		if p.Action != nil {
			current.Action = truncateText(*p.Action)
		}
		if p.Prediction != nil {
			current.Prediction = truncateText(*p.Prediction)
		}
	}

	if p.Strategy != nil {
		current.Strategy = *p.Strategy
	}
	if p.Note != nil {
		current.Notes = append(current.Notes, truncateText(*p.Note))
	}

	if err := c.saveCurrent(current); err != nil {
		return nil, err
	}

	c.logger.Info("ghap_updated", "ghap_id", current.ID, "iteration", current.IterationCount, "hap_changed", hapChanging)
	return current, nil
}

// ResolveParams carries the arguments of a resolve call.
type ResolveParams struct {
	Status       model.OutcomeStatus
	Result       string
	Surprise     *string
	RootCause    *model.RootCause
	Lesson       *model.Lesson
	AutoCaptured bool
}

// ResolveGHAP seals the current entry, computes its confidence tier,
// appends it to the session archive, and clears current_ghap.json.
func (c *Collector) ResolveGHAP(ctx context.Context, p ResolveParams) (*model.GHAPEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := c.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		c.logger.Warn("no_active_ghap_for_resolve")
		return nil, fmt.Errorf("%w: no active GHAP entry to resolve", errs.ErrNotFound)
	}

	current.Outcome = &model.Outcome{
		Status:       p.Status,
		Result:       truncateText(p.Result),
		CapturedAt:   time.Now().UTC(),
		AutoCaptured: p.AutoCaptured,
	}
	if p.Surprise != nil {
		current.Surprise = truncateText(*p.Surprise)
	}
	if p.RootCause != nil {
		current.RootCause = p.RootCause
	}
	if p.Lesson != nil {
		current.Lesson = p.Lesson
	}

	tier := computeConfidenceTier(current)
	current.ConfidenceTier = &tier

	if err := c.appendSessionEntry(current); err != nil {
		return nil, err
	}
	if err := c.clearCurrent(); err != nil {
		return nil, err
	}

	c.logger.Info("ghap_resolved", "ghap_id", current.ID, "status", string(p.Status), "tier", string(tier), "iterations", current.IterationCount)
	return current, nil
}

// AbandonGHAP resolves the current entry with status "abandoned".
func (c *Collector) AbandonGHAP(ctx context.Context, reason string) (*model.GHAPEntry, error) {
	return c.ResolveGHAP(ctx, ResolveParams{
		Status:       model.OutcomeAbandoned,
		Result:       reason,
		AutoCaptured: false,
	})
}

// === State access ===

// GetCurrent returns the active entry, or nil if none.
func (c *Collector) GetCurrent(ctx context.Context) (*model.GHAPEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.loadCurrent()
}

// GetSessionEntries returns all resolved entries appended to the
// current session's log so far.
func (c *Collector) GetSessionEntries(ctx context.Context) ([]model.GHAPEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.loadSessionEntries()
}

// ListArchivedEntries reads every entry archived from past sessions,
// across all archive/*.jsonl files, oldest file first. A corrupt line
// is logged and skipped rather than failing the whole read.
func (c *Collector) ListArchivedEntries(ctx context.Context) ([]model.GHAPEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(c.archiveDir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("journal: glob archive dir: %w", err)
	}
	sort.Strings(matches)

	entries := make([]model.GHAPEntry, 0)
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("error_reading_archive_file", "path", path, "error", err.Error())
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var entry model.GHAPEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				c.logger.Warn("corrupt_archive_entry_skipped", "path", path, "line_num", i+1, "error", err.Error())
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// HasOrphanedEntry reports whether current_ghap.json exists but
// belongs to a session other than the current one.
func (c *Collector) HasOrphanedEntry(ctx context.Context) (bool, error) {
	current, err := c.GetCurrent(ctx)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}
	sessionID, err := c.GetSessionID(ctx)
	if err != nil {
		return false, err
	}
	return current.SessionID != sessionID, nil
}

// GetOrphanedEntry returns the orphaned entry, or nil if there is none.
func (c *Collector) GetOrphanedEntry(ctx context.Context) (*model.GHAPEntry, error) {
	orphaned, err := c.HasOrphanedEntry(ctx)
	if err != nil || !orphaned {
		return nil, err
	}
	return c.GetCurrent(ctx)
}

// AdoptOrphan rewrites the orphan's session_id to the current session,
// preserving every other field. Returns nil if there is no orphan.
func (c *Collector) AdoptOrphan(ctx context.Context) (*model.GHAPEntry, error) {
	orphan, err := c.GetOrphanedEntry(ctx)
	if err != nil || orphan == nil {
		return nil, err
	}

	currentSession, err := c.GetSessionID(ctx)
	if err != nil {
		return nil, err
	}
	if currentSession == "" {
		currentSession, err = c.StartSession(ctx)
		if err != nil {
			return nil, err
		}
	}

	orphan.SessionID = currentSession
	if err := c.saveCurrent(orphan); err != nil {
		return nil, err
	}

	c.logger.Info("orphan_adopted", "ghap_id", orphan.ID, "new_session_id", currentSession)
	return orphan, nil
}

// AbandonOrphan seals the orphan as abandoned and archives it to its
// ORIGINAL session's archive file, leaving the current session's
// entries untouched. Returns nil if there is no orphan.
func (c *Collector) AbandonOrphan(ctx context.Context, reason string) (*model.GHAPEntry, error) {
	orphan, err := c.GetOrphanedEntry(ctx)
	if err != nil || orphan == nil {
		return nil, err
	}

	orphan.Outcome = &model.Outcome{
		Status:       model.OutcomeAbandoned,
		Result:       truncateText(reason),
		CapturedAt:   time.Now().UTC(),
		AutoCaptured: false,
	}
	tier := model.TierAbandoned
	orphan.ConfidenceTier = &tier

	if err := c.archiveEntryToSession(orphan, orphan.SessionID); err != nil {
		return nil, err
	}
	if err := c.clearCurrent(); err != nil {
		return nil, err
	}

	c.logger.Info("orphan_abandoned", "ghap_id", orphan.ID, "original_session_id", orphan.SessionID)
	return orphan, nil
}

// === Session management ===

// StartSession archives the previous session's entries (if any),
// generates a new session id, and writes it atomically.
func (c *Collector) StartSession(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	oldSessionID, err := c.GetSessionID(ctx)
	if err != nil {
		return "", err
	}
	if oldSessionID != "" {
		entries, err := c.GetSessionEntries(ctx)
		if err != nil {
			return "", err
		}
		if len(entries) > 0 {
			if err := c.archiveSession(oldSessionID, entries); err != nil {
				return "", err
			}
			if err := c.clearSessionEntries(); err != nil {
				return "", err
			}
		}
	}

	newSessionID := ids.Session(time.Now())
	if err := atomicWrite(c.sessionIDPath(), []byte(newSessionID)); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrJournalCorrupted, err)
	}

	c.logger.Info("session_started", "session_id", newSessionID)
	return newSessionID, nil
}

// GetSessionID returns the current session id, or "" if none started.
func (c *Collector) GetSessionID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(c.sessionIDPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		c.logger.Error("error_reading_session_id", "error", err.Error())
		return "", nil
	}
	return strings.TrimSpace(string(data)), nil
}

// EndSession abandons any active entry with reason "session ended",
// archives the session's entries, and clears session-scoped files.
func (c *Collector) EndSession(ctx context.Context) ([]model.GHAPEntry, error) {
	current, err := c.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if _, err := c.AbandonGHAP(ctx, "session ended"); err != nil {
			return nil, err
		}
	}

	entries, err := c.GetSessionEntries(ctx)
	if err != nil {
		return nil, err
	}

	sessionID, err := c.GetSessionID(ctx)
	if err != nil {
		return nil, err
	}
	if sessionID != "" && len(entries) > 0 {
		if err := c.archiveSession(sessionID, entries); err != nil {
			return nil, err
		}
	}

	if err := c.clearSessionEntries(); err != nil {
		return nil, err
	}
	if err := removeIfExists(c.sessionIDPath()); err != nil {
		return nil, err
	}
	if err := removeIfExists(c.toolCountPath()); err != nil {
		return nil, err
	}

	c.logger.Info("session_ended", "session_id", sessionID, "entries_archived", len(entries))
	return entries, nil
}

// === Tool check-in ===

// IncrementToolCount increments and persists the tool-call counter,
// returning the new value.
func (c *Collector) IncrementToolCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	current := 0
	data, err := os.ReadFile(c.toolCountPath())
	if err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil {
			current = n
		}
	}

	next := current + 1
	if err := atomicWrite(c.toolCountPath(), []byte(strconv.Itoa(next))); err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrJournalCorrupted, err)
	}
	return next, nil
}

// ShouldCheckIn reports whether the tool counter has reached
// frequency AND an entry is currently active.
func (c *Collector) ShouldCheckIn(ctx context.Context, frequency int) (bool, error) {
	current, err := c.GetCurrent(ctx)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}

	data, err := os.ReadFile(c.toolCountPath())
	if err != nil {
		return false, nil
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, nil
	}
	return count >= frequency, nil
}

// ResetToolCount resets the tool counter to zero.
func (c *Collector) ResetToolCount(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := atomicWrite(c.toolCountPath(), []byte("0")); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrJournalCorrupted, err)
	}
	return nil
}

// === Internal helpers ===

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("journal: remove %s: %w", path, err)
	}
	return nil
}

func (c *Collector) loadCurrent() (*model.GHAPEntry, error) {
	path := c.currentPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("io_error_reading_ghap", "path", path, "error", err.Error())
		return nil, fmt.Errorf("%w: %v", errs.ErrJournalCorrupted, err)
	}

	var entry model.GHAPEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		backupPath := fmt.Sprintf("%s.corrupted.%d", strings.TrimSuffix(path, ".json"), time.Now().Unix())
		if renameErr := os.Rename(path, backupPath); renameErr != nil {
			c.logger.Error("corrupted_ghap_backup_failed", "file", path, "error", renameErr.Error())
		} else {
			c.logger.Error("corrupted_ghap_backed_up", "file", path, "backup", backupPath, "error", err.Error())
		}
		return nil, nil
	}
	return &entry, nil
}

func (c *Collector) saveCurrent(entry *model.GHAPEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	if err := atomicWrite(c.currentPath(), data); err != nil {
		c.logger.Error("io_error_writing_ghap", "path", c.currentPath(), "error", err.Error())
		return fmt.Errorf("%w: %v", errs.ErrJournalCorrupted, err)
	}
	c.logger.Debug("ghap_saved", "ghap_id", entry.ID)
	return nil
}

func (c *Collector) clearCurrent() error {
	return removeIfExists(c.currentPath())
}

func (c *Collector) loadSessionEntries() ([]model.GHAPEntry, error) {
	path := c.sessionEntriesPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.GHAPEntry{}, nil
	}
	if err != nil {
		c.logger.Error("error_reading_session_entries", "error", err.Error())
		return []model.GHAPEntry{}, nil
	}

	entries := make([]model.GHAPEntry, 0)
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry model.GHAPEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			c.logger.Warn("corrupt_entry_skipped", "line_num", i+1, "error", err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Collector) appendSessionEntry(entry *model.GHAPEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	if err := appendLine(c.sessionEntriesPath(), data); err != nil {
		c.logger.Error("error_appending_session_entry", "error", err.Error())
		return fmt.Errorf("%w: %v", errs.ErrJournalCorrupted, err)
	}
	return nil
}

func (c *Collector) clearSessionEntries() error {
	return removeIfExists(c.sessionEntriesPath())
}

func archiveFileName(sessionID string) string {
	parts := strings.Split(sessionID, "_")
	dateStr := time.Now().UTC().Format("20060102")
	if len(parts) > 1 {
		dateStr = parts[1]
	}
	return fmt.Sprintf("%s_%s.jsonl", dateStr, sessionID)
}

func (c *Collector) archiveSession(sessionID string, entries []model.GHAPEntry) error {
	if len(entries) == 0 {
		return nil
	}
	path := filepath.Join(c.archiveDir, archiveFileName(sessionID))

	var b strings.Builder
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("journal: marshal archived entry: %w", err)
		}
		b.Write(data)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		c.logger.Error("error_archiving_session", "session_id", sessionID, "error", err.Error())
		return fmt.Errorf("%w: %v", errs.ErrJournalCorrupted, err)
	}

	c.logger.Info("session_archived", "session_id", sessionID, "archive_file", archiveFileName(sessionID), "entry_count", len(entries))
	return nil
}

func (c *Collector) archiveEntryToSession(entry *model.GHAPEntry, sessionID string) error {
	path := filepath.Join(c.archiveDir, archiveFileName(sessionID))
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	if err := appendLine(path, data); err != nil {
		c.logger.Error("error_archiving_entry", "ghap_id", entry.ID, "error", err.Error())
		return fmt.Errorf("%w: %v", errs.ErrJournalCorrupted, err)
	}
	c.logger.Info("entry_archived_to_session", "ghap_id", entry.ID, "session_id", sessionID, "archive_file", archiveFileName(sessionID))
	return nil
}
