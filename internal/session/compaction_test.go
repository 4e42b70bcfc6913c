package session

import (
	"context"
	"strings"
	"testing"

	"github.com/scianalytics/agentcore/pkg/models"
)

type stubSummarizer struct{ summary string }

func (s stubSummarizer) Summarize(ctx context.Context, messages []models.ConversationMessage) (string, error) {
	return s.summary, nil
}

func makeHistory(n int, contentLen int) []models.ConversationMessage {
	history := make([]models.ConversationMessage, n)
	for i := range history {
		history[i] = models.ConversationMessage{
			ID:      "m" + string(rune('a'+i%26)),
			Role:    models.RoleUser,
			Content: strings.Repeat("x", contentLen),
		}
	}
	return history
}

func TestCompactor_NeedsCompactionFalseUnderThreshold(t *testing.T) {
	c := NewCompactor(t.TempDir(), stubSummarizer{}, CompactionConfig{
		ThresholdPercent: 80, MaxContextTokens: 1_000_000, KeepRecentMessages: 2,
	})
	history := makeHistory(5, 10)
	if c.NeedsCompaction("s1", history) {
		t.Fatal("expected no compaction needed for a tiny history")
	}
}

func TestCompactor_NeedsCompactionTrueOverThreshold(t *testing.T) {
	c := NewCompactor(t.TempDir(), stubSummarizer{}, CompactionConfig{
		ThresholdPercent: 10, MaxContextTokens: 100, KeepRecentMessages: 2,
	})
	history := makeHistory(20, 400)
	if !c.NeedsCompaction("s1", history) {
		t.Fatal("expected compaction to be needed once over threshold")
	}
}

func TestCompactor_CompactKeepsRecentAndSummarizesPrefix(t *testing.T) {
	c := NewCompactor(t.TempDir(), stubSummarizer{summary: "condensed history"}, CompactionConfig{
		ThresholdPercent: 10, MaxContextTokens: 100, KeepRecentMessages: 2,
	})
	history := makeHistory(10, 10)

	result, err := c.Compact(context.Background(), "s1", history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.ArchivedCount != 8 {
		t.Errorf("ArchivedCount = %d, want 8", result.ArchivedCount)
	}
	if len(result.Kept) != 3 {
		t.Fatalf("len(Kept) = %d, want 3 (1 summary + 2 recent)", len(result.Kept))
	}
	if !strings.Contains(result.Kept[0].Content, "condensed history") {
		t.Errorf("summary message = %q", result.Kept[0].Content)
	}
	if result.Kept[0].EventType != models.EventContextCompressed {
		t.Errorf("EventType = %v, want EventContextCompressed", result.Kept[0].EventType)
	}
}

func TestCompactor_CompactNoOpWhenHistoryFitsInKeepWindow(t *testing.T) {
	c := NewCompactor(t.TempDir(), stubSummarizer{}, CompactionConfig{
		ThresholdPercent: 10, MaxContextTokens: 100, KeepRecentMessages: 5,
	})
	history := makeHistory(3, 10)

	result, err := c.Compact(context.Background(), "s1", history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.ArchivedCount != 0 {
		t.Errorf("ArchivedCount = %d, want 0", result.ArchivedCount)
	}
	if len(result.Kept) != 3 {
		t.Errorf("len(Kept) = %d, want 3", len(result.Kept))
	}
}
