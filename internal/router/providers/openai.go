package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scianalytics/agentcore/internal/router"
)

// OpenAIConfig configures the Chat Completions adapter, grounded on
// internal/agent/providers/openai.go's OpenAIConfig shape.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAI adapts the Chat Completions streaming API to router.Provider.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openai.GPT4o
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), defaultModel: cfg.DefaultModel}, nil
}

func (o *OpenAI) Name() string        { return "openai" }
func (o *OpenAI) SupportsTools() bool { return true }

func (o *OpenAI) model(req router.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return o.defaultModel
}

// Complete streams a ChatCompletion request. Unlike Anthropic, OpenAI emits
// each tool call's id/name once on the first delta and only argument
// fragments afterward, keyed by the tool call's array index rather than a
// persistent id — the adapter tracks index->id so later fragments can be
// attributed correctly.
func (o *OpenAI) Complete(ctx context.Context, req router.CompletionRequest) (<-chan router.NormalizedChunk, error) {
	messages, err := convertOpenAIMessages(req.Messages)
	if err != nil {
		return nil, router.NewProviderError("openai", o.model(req), err).WithMessage("invalid request: " + err.Error())
	}

	request := openai.ChatCompletionRequest{
		Model:     o.model(req),
		Messages:  messages,
		MaxTokens: maxTokensOrDefault(req.MaxTokens),
		Stream:    true,
	}
	if req.System != "" {
		request.Messages = append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: req.System}}, request.Messages...)
	}
	if len(req.Tools) > 0 {
		request.Tools = convertOpenAITools(req.Tools)
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, router.NewProviderError("openai", o.model(req), err)
	}

	out := make(chan router.NormalizedChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		start := time.Now()
		toolIDByIndex := map[int]string{}
		toolNameByIndex := map[int]string{}

		for {
			resp, err := stream.Recv()
			if err != nil {
				if err.Error() == "EOF" || strings.Contains(err.Error(), "EOF") {
					return
				}
				out <- router.NormalizedChunk{Kind: router.ChunkError, Err: router.NewProviderError("openai", o.model(req), err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			delta := choice.Delta

			if delta.Content != "" {
				out <- router.NormalizedChunk{Kind: router.ChunkText, TextDelta: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				if tc.ID != "" {
					toolIDByIndex[idx] = tc.ID
				}
				if tc.Function.Name != "" {
					toolNameByIndex[idx] = tc.Function.Name
				}
				out <- router.NormalizedChunk{Kind: router.ChunkToolCall, ToolCallDelta: &router.ToolCallFragment{
					ID:        toolIDByIndex[idx],
					Name:      toolNameByIndex[idx],
					ArgsDelta: tc.Function.Arguments,
				}}
			}
			if choice.FinishReason != "" {
				for idx, id := range toolIDByIndex {
					out <- router.NormalizedChunk{Kind: router.ChunkToolCall, ToolCallDelta: &router.ToolCallFragment{
						ID: id, Name: toolNameByIndex[idx], IsFinal: true,
					}}
				}
				out <- router.NormalizedChunk{Kind: router.ChunkFinish, Finish: &router.FinishInfo{
					Reason:   normalizeOpenAIFinishReason(string(choice.FinishReason)),
					Duration: time.Since(start),
				}}
				if resp.Usage != nil {
					out <- router.NormalizedChunk{Kind: router.ChunkUsage, Usage: &router.Usage{
						InputTokens:  resp.Usage.PromptTokens,
						OutputTokens: resp.Usage.CompletionTokens,
					}}
				}
				return
			}
		}
	}()

	return out, nil
}

func normalizeOpenAIFinishReason(r string) string {
	switch r {
	case "tool_calls":
		return "tool_calls"
	case "length":
		return "length"
	case "content_filter":
		return "content_filter"
	default:
		return "stop"
	}
}

func convertOpenAIMessages(msgs []router.CompletionMessage) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, msg)
		case "tool":
			for _, tr := range m.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func convertOpenAITools(tools []router.ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
