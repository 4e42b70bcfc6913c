package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/scianalytics/agentcore/pkg/models"
)

// CharsPerToken is the approximate character-to-token ratio used for the
// cheap token estimate that drives the compaction threshold check. An
// estimate is sufficient here: this check only decides when it is time to
// archive a conversation's prefix, and a provider that still rejects a
// request as too large triggers a forced compaction in the Agent Runner.
const CharsPerToken = 4

// CompactionState tracks where a session sits in the compaction lifecycle.
type CompactionState string

const (
	CompactionIdle       CompactionState = "idle"
	CompactionInProgress CompactionState = "in_progress"
)

// CompactionConfig controls when and how a session's history is archived.
type CompactionConfig struct {
	// ThresholdPercent is the percentage (0-100) of MaxContextTokens that,
	// once exceeded by the estimated size of a session's history, triggers
	// compaction on the next NeedsCompaction call.
	ThresholdPercent int

	// MaxContextTokens is the target model's context window.
	MaxContextTokens int

	// KeepRecentMessages is the number of most-recent messages that are
	// always kept verbatim rather than folded into the summary, so the
	// immediate conversational turn never loses fidelity.
	KeepRecentMessages int
}

// DefaultCompactionConfig returns sensible defaults for an 80%-threshold,
// recent-20-messages-verbatim policy.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		ThresholdPercent:   80,
		MaxContextTokens:   100_000,
		KeepRecentMessages: 20,
	}
}

// Summarizer produces a natural-language summary of a message prefix. The
// Agent Runner supplies an implementation backed by the Model Router; tests
// supply a deterministic stub.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.ConversationMessage) (string, error)
}

type sessionCompactionState struct {
	state     CompactionState
	checkedAt time.Time
}

// Compactor monitors per-session history size and, once over threshold,
// replaces the oldest messages with a single summary message while
// preserving the replaced messages in an archive file for later retrieval.
// It generalizes a threshold/confirmation state machine and a token-estimate
// chunking heuristic into a single prefix-summarization contract appropriate
// for a durable, on-disk conversation log rather than an in-memory-only one.
type Compactor struct {
	mu         sync.Mutex
	cfg        CompactionConfig
	summarizer Summarizer
	archiveDir string
	sessions   map[string]*sessionCompactionState
}

// NewCompactor creates a Compactor that writes archived prefixes under
// archiveDir and asks summarizer to condense them.
func NewCompactor(archiveDir string, summarizer Summarizer, cfg CompactionConfig) *Compactor {
	return &Compactor{
		cfg:        cfg,
		summarizer: summarizer,
		archiveDir: archiveDir,
		sessions:   make(map[string]*sessionCompactionState),
	}
}

// EstimateTokens approximates the token count of a message from its
// character length.
func EstimateTokens(msg models.ConversationMessage) int {
	chars := len(msg.Content)
	for _, tc := range msg.ToolCalls {
		chars += len(tc.Arguments) + len(tc.Name)
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

func estimateTotalTokens(history []models.ConversationMessage) int {
	total := 0
	for _, msg := range history {
		total += EstimateTokens(msg)
	}
	return total
}

// NeedsCompaction reports whether history's estimated size exceeds the
// configured threshold percentage of the context window.
func (c *Compactor) NeedsCompaction(sessionID string, history []models.ConversationMessage) bool {
	c.mu.Lock()
	st := c.sessions[sessionID]
	if st == nil {
		st = &sessionCompactionState{state: CompactionIdle}
		c.sessions[sessionID] = st
	}
	st.checkedAt = time.Now()
	busy := st.state == CompactionInProgress
	c.mu.Unlock()

	if busy || c.cfg.MaxContextTokens <= 0 {
		return false
	}
	if len(history) <= c.cfg.KeepRecentMessages {
		return false
	}
	usedPercent := estimateTotalTokens(history) * 100 / c.cfg.MaxContextTokens
	return usedPercent >= c.cfg.ThresholdPercent
}

// Result describes the outcome of a Compact call.
type Result struct {
	// Kept is the new history: one synthetic summary message (if any
	// messages were archived) followed by the preserved recent messages.
	Kept []models.ConversationMessage
	// ArchivedCount is how many messages were folded into the summary.
	ArchivedCount int
}

// Compact summarizes the archivable prefix of history (everything except
// the last KeepRecentMessages messages, with the cut moved earlier while
// it would leave a tool result kept apart from its call), writes the replaced messages to
// an archive file under archiveDir, and returns the new, shortened history.
// It is the caller's responsibility to persist Result.Kept back to the
// session's Log (via Rewrite) and to update its in-memory view.
func (c *Compactor) Compact(ctx context.Context, sessionID string, history []models.ConversationMessage) (Result, error) {
	c.mu.Lock()
	st := c.sessions[sessionID]
	if st == nil {
		st = &sessionCompactionState{}
		c.sessions[sessionID] = st
	}
	st.state = CompactionInProgress
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		st.state = CompactionIdle
		c.mu.Unlock()
	}()

	keep := c.cfg.KeepRecentMessages
	if keep < 0 {
		keep = 0
	}
	if len(history) <= keep {
		return Result{Kept: history}, nil
	}

	splitAt := len(history) - keep
	for splitAt > 0 && splitAt < len(history) && history[splitAt].IsTool() {
		splitAt--
	}
	if splitAt == 0 {
		return Result{Kept: history}, nil
	}
	archivable := history[:splitAt]
	recent := history[splitAt:]

	if err := c.archive(sessionID, archivable); err != nil {
		return Result{}, fmt.Errorf("session: archive prefix: %w", err)
	}

	summaryText := "No prior history."
	if c.summarizer != nil {
		text, err := c.summarizer.Summarize(ctx, archivable)
		if err != nil {
			return Result{}, fmt.Errorf("session: summarize prefix: %w", err)
		}
		summaryText = text
	}

	summaryMsg := models.ConversationMessage{
		ID:        "summary-" + sessionID,
		SessionID: sessionID,
		Role:      models.RoleSystem,
		Content:   fmt.Sprintf("Summary of %d earlier messages:\n%s", len(archivable), summaryText),
		EventType: models.EventContextCompressed,
		CreatedAt: time.Now(),
	}

	kept := make([]models.ConversationMessage, 0, len(recent)+1)
	kept = append(kept, summaryMsg)
	kept = append(kept, recent...)

	return Result{Kept: kept, ArchivedCount: len(archivable)}, nil
}

// archive appends the replaced prefix to a per-session archive file so the
// original messages remain retrievable even though they have been dropped
// from the active log. Archiving never blocks a later Compact: failures to
// write the archive are still surfaced to the caller, since losing history
// silently would defeat the point of keeping an archive at all.
func (c *Compactor) archive(sessionID string, messages []models.ConversationMessage) error {
	if len(messages) == 0 {
		return nil
	}
	if err := os.MkdirAll(c.archiveDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(c.archiveDir, sessionID+".archive.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var sb strings.Builder
	for _, msg := range messages {
		line, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return err
	}
	return f.Sync()
}
