// Package providers adapts each upstream model SDK to router.Provider,
// translating its native stream into router.NormalizedChunk. Reasoning is
// taken only from a provider's structured reasoning field; inline <think>
// markers are left in the text, and text deltas are passed on as received
// without cumulative-stream diffing. Grounded on the per-vendor
// shape of internal/agent/providers/{anthropic,openai,bedrock,google}.go,
// narrowed to stream the closed NormalizedChunk sum type instead of the
// teacher's open CompletionChunk struct.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/scianalytics/agentcore/internal/router"
)

// AnthropicConfig configures the Claude adapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Anthropic adapts the Claude Messages streaming API to router.Provider.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropic constructs a Claude adapter. Mirrors the validation shape of
// the teacher's NewAnthropicProvider, minus the retry/backoff loop — that
// concern now lives in router.Router, not the adapter.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), defaultModel: cfg.DefaultModel}, nil
}

func (a *Anthropic) Name() string        { return "anthropic" }
func (a *Anthropic) SupportsTools() bool { return true }

func (a *Anthropic) model(req router.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return a.defaultModel
}

// Complete streams a single Messages request, converting each SSE delta
// event into a NormalizedChunk. Text deltas accumulate directly; tool-use
// input JSON arrives as partial_json fragments keyed by content-block
// index and is forwarded as ToolCallDelta fragments with IsFinal set once
// the block stops.
func (a *Anthropic) Complete(ctx context.Context, req router.CompletionRequest) (<-chan router.NormalizedChunk, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, router.NewProviderError("anthropic", a.model(req), err).WithMessage("invalid request: " + err.Error())
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model(req)),
		Messages:  messages,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	out := make(chan router.NormalizedChunk)

	go func() {
		defer close(out)
		start := time.Now()
		// toolIndex tracks the id/name announced at content_block_start for
		// each block index, since partial_json deltas only carry the index.
		toolIndex := map[int64]string{}
		toolName := map[int64]string{}

		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if variant.ContentBlock.Type == "tool_use" {
					toolIndex[variant.Index] = variant.ContentBlock.ID
					toolName[variant.Index] = variant.ContentBlock.Name
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					out <- router.NormalizedChunk{Kind: router.ChunkText, TextDelta: delta.Text}
				case anthropic.ThinkingDelta:
					out <- router.NormalizedChunk{Kind: router.ChunkReason, ReasoningDelta: delta.Thinking}
				case anthropic.InputJSONDelta:
					out <- router.NormalizedChunk{Kind: router.ChunkToolCall, ToolCallDelta: &router.ToolCallFragment{
						ID:        toolIndex[variant.Index],
						Name:      toolName[variant.Index],
						ArgsDelta: delta.PartialJSON,
					}}
				}
			case anthropic.ContentBlockStopEvent:
				if id, ok := toolIndex[variant.Index]; ok {
					out <- router.NormalizedChunk{Kind: router.ChunkToolCall, ToolCallDelta: &router.ToolCallFragment{
						ID: id, Name: toolName[variant.Index], IsFinal: true,
					}}
				}
			case anthropic.MessageDeltaEvent:
				reason := string(variant.Delta.StopReason)
				if reason != "" {
					out <- router.NormalizedChunk{Kind: router.ChunkFinish, Finish: &router.FinishInfo{
						Reason: normalizeStopReason(reason), Duration: time.Since(start),
					}}
				}
				out <- router.NormalizedChunk{Kind: router.ChunkUsage, Usage: &router.Usage{
					OutputTokens: int(variant.Usage.OutputTokens),
				}}
			}
		}
		if err := stream.Err(); err != nil {
			out <- router.NormalizedChunk{Kind: router.ChunkError, Err: router.NewProviderError("anthropic", a.model(req), err)}
		}
	}()

	return out, nil
}

func normalizeStopReason(r string) string {
	switch r {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "stop_sequence", "end_turn":
		return "stop"
	default:
		return r
	}
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

func convertMessages(msgs []router.CompletionMessage) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			for _, tr := range m.ToolResults {
				out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError)))
			}
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func convertTools(tools []router.ToolDescriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: t.Parameters["properties"],
		}, t.Name))
	}
	return out
}
