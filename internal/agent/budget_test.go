package agent

import (
	"strings"
	"testing"

	"github.com/scianalytics/agentcore/pkg/models"
)

func textHistory(n, charsEach int) []models.ConversationMessage {
	out := make([]models.ConversationMessage, n)
	for i := range out {
		out[i] = models.ConversationMessage{
			ID:      "m",
			Role:    models.RoleUser,
			Content: strings.Repeat("a", charsEach),
		}
	}
	return out
}

func TestExceedsSoftCap_FalseForSmallHistory(t *testing.T) {
	cfg := BudgetConfig{ContextWindowTokens: 1_000_000, SoftCapPercent: 80}
	if ExceedsSoftCap(textHistory(5, 10), cfg) {
		t.Fatal("expected no soft-cap breach for a tiny history")
	}
}

func TestExceedsSoftCap_TrueForLargeHistory(t *testing.T) {
	cfg := BudgetConfig{ContextWindowTokens: 100, SoftCapPercent: 10}
	if !ExceedsSoftCap(textHistory(10, 400), cfg) {
		t.Fatal("expected a soft-cap breach")
	}
}

func TestTrimToFit_KeepsMostRecentWithinBudget(t *testing.T) {
	cfg := BudgetConfig{ContextWindowTokens: 10, ReserveTokens: 0}
	history := textHistory(20, 4) // 1 token each
	result := TrimToFit(history, cfg)
	if len(result.Kept) != 10 {
		t.Fatalf("len(Kept) = %d, want the 10 most recent messages", len(result.Kept))
	}
	if result.Dropped+len(result.Kept) != len(history) {
		t.Errorf("Dropped (%d) + len(Kept) (%d) != len(history) (%d)", result.Dropped, len(result.Kept), len(history))
	}
}

func TestTrimToFit_NeverSplitsToolCallPair(t *testing.T) {
	history := []models.ConversationMessage{
		{Role: models.RoleUser, Content: strings.Repeat("x", 400)},
		{
			Role:      models.RoleAssistant,
			ToolCalls: []models.ToolCallRequest{{ID: "call-1", Name: "compute", Arguments: "{}"}},
		},
		{Role: models.RoleTool, ToolCallID: "call-1", Content: "6"},
		{Role: models.RoleAssistant, Content: "the answer is 6"},
	}
	cfg := BudgetConfig{ContextWindowTokens: 5, ReserveTokens: 0} // force a cut mid-pair
	result := TrimToFit(history, cfg)

	if len(result.Kept) > 0 && result.Kept[0].IsTool() {
		t.Fatalf("trim left a dangling tool result with no paired call: %+v", result.Kept[0])
	}
}

func TestTrimToFit_NoBudgetReturnsEverything(t *testing.T) {
	history := textHistory(3, 10)
	result := TrimToFit(history, BudgetConfig{ContextWindowTokens: 0})
	if len(result.Kept) != len(history) {
		t.Fatalf("len(Kept) = %d, want %d", len(result.Kept), len(history))
	}
}
