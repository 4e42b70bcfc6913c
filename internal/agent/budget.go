package agent

import (
	"github.com/scianalytics/agentcore/internal/session"
	"github.com/scianalytics/agentcore/pkg/models"
)

// BudgetConfig controls how much of a session's history the runner packs
// into a single model request, generalizing the packing-diagnostics shape
// of internal/agent/context.Packer (MaxChars/MaxMessages budget, trim from
// the end backwards) into the spec's token-budget contract.
type BudgetConfig struct {
	// ContextWindowTokens is the target model's context window.
	ContextWindowTokens int

	// ReserveTokens is held back for the model's own response.
	ReserveTokens int

	// SoftCapPercent is the percentage (0-100) of ContextWindowTokens that,
	// once the estimated prompt exceeds it, triggers auto-compression
	// before the model call (spec §4.6 "Auto-compression").
	SoftCapPercent int
}

// DefaultBudgetConfig returns a 100k-token window with an 80% soft cap and
// a 2k-token response reserve.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{ContextWindowTokens: 100_000, ReserveTokens: 2_000, SoftCapPercent: 80}
}

// hardBudget is the token count available for history once the response
// reserve is subtracted.
func (c BudgetConfig) hardBudget() int {
	budget := c.ContextWindowTokens - c.ReserveTokens
	if budget < 0 {
		return 0
	}
	return budget
}

// ExceedsSoftCap reports whether history's estimated size exceeds the
// configured soft cap, meaning the runner should compress before the next
// model call rather than risk a hard provider context-overflow error.
func ExceedsSoftCap(history []models.ConversationMessage, cfg BudgetConfig) bool {
	if cfg.ContextWindowTokens <= 0 {
		return false
	}
	used := estimateHistoryTokens(history)
	usedPercent := used * 100 / cfg.ContextWindowTokens
	return usedPercent >= cfg.SoftCapPercent
}

func estimateHistoryTokens(history []models.ConversationMessage) int {
	total := 0
	for _, msg := range history {
		total += session.EstimateTokens(msg)
	}
	return total
}

// TrimResult is the outcome of fitting history into a request budget.
type TrimResult struct {
	Kept    []models.ConversationMessage
	Dropped int
}

// TrimToFit selects the most recent messages from history that fit within
// cfg's hard budget, scanning backwards from the end. If the natural cut
// point would split a tool_call/tool_result pair, the cut is moved earlier
// to keep the pair together — the same invariant the Conversation Log's
// compress(policy) contract upholds for archival cuts.
func TrimToFit(history []models.ConversationMessage, cfg BudgetConfig) TrimResult {
	budget := cfg.hardBudget()
	if budget <= 0 || len(history) == 0 {
		return TrimResult{Kept: history}
	}

	used := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		tokens := session.EstimateTokens(history[i])
		if used+tokens > budget && cut != len(history) {
			break
		}
		used += tokens
		cut = i
	}

	cut = avoidSplittingToolPair(history, cut)

	return TrimResult{
		Kept:    history[cut:],
		Dropped: cut,
	}
}

// avoidSplittingToolPair walks cut backwards while the message at cut is a
// tool-role message whose matching assistant tool_calls entry sits before
// the cut, so a trimmed prompt never shows a dangling tool result with no
// corresponding call.
func avoidSplittingToolPair(history []models.ConversationMessage, cut int) int {
	for cut > 0 && cut < len(history) && history[cut].IsTool() {
		wantID := history[cut].ToolCallID
		pairedIndex := -1
		for j := cut - 1; j >= 0; j-- {
			if !history[j].IsAssistant() {
				continue
			}
			for _, tc := range history[j].ToolCalls {
				if tc.ID == wantID {
					pairedIndex = j
				}
			}
			if pairedIndex >= 0 {
				break
			}
		}
		if pairedIndex < 0 || pairedIndex >= cut {
			return cut
		}
		cut = pairedIndex
	}
	return cut
}
