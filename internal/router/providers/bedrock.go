package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/scianalytics/agentcore/internal/router"
)

// BedrockConfig configures the Bedrock Converse adapter, grounded on
// internal/agent/providers/bedrock.go's use of the AWS SDK v2 runtime
// client rather than a vendor-specific REST client.
type BedrockConfig struct {
	Region       string
	DefaultModel string // e.g. "anthropic.claude-3-5-sonnet-20241022-v2:0"
}

// Bedrock adapts the Converse streaming API to router.Provider, used as
// the failover target when direct Anthropic/OpenAI access is unavailable
// (e.g. region lockdown, or as a secondary account with its own quota).
type Bedrock struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// NewBedrock loads the default AWS credential chain for the given region.
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	if cfg.DefaultModel == "" {
		return nil, fmt.Errorf("bedrock: default model is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}
	return &Bedrock{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (b *Bedrock) Name() string        { return "bedrock" }
func (b *Bedrock) SupportsTools() bool { return true }

func (b *Bedrock) model(req router.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return b.defaultModel
}

// Complete streams via ConverseStream, translating the event stream's
// union of content-block deltas into NormalizedChunk the same way the
// Anthropic adapter does for Claude-on-Bedrock, generalized to any
// Converse-compatible model family.
func (b *Bedrock) Complete(ctx context.Context, req router.CompletionRequest) (<-chan router.NormalizedChunk, error) {
	messages, err := convertBedrockMessages(req.Messages)
	if err != nil {
		return nil, router.NewProviderError("bedrock", b.model(req), err).WithMessage("invalid request: " + err.Error())
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(b.model(req)),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokensOrDefault(req.MaxTokens))),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = convertBedrockTools(req.Tools)
	}

	resp, err := b.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, router.NewProviderError("bedrock", b.model(req), err)
	}

	out := make(chan router.NormalizedChunk)
	go func() {
		defer close(out)
		start := time.Now()
		stream := resp.GetStream()
		defer stream.Close()

		toolID := map[int32]string{}
		toolName := map[int32]string{}

		for event := range stream.Events() {
			switch v := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if tu, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolID[v.Value.ContentBlockIndex] = aws.ToString(tu.Value.ToolUseId)
					toolName[v.Value.ContentBlockIndex] = aws.ToString(tu.Value.Name)
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch d := v.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					out <- router.NormalizedChunk{Kind: router.ChunkText, TextDelta: d.Value}
				case *types.ContentBlockDeltaMemberToolUse:
					idx := v.Value.ContentBlockIndex
					out <- router.NormalizedChunk{Kind: router.ChunkToolCall, ToolCallDelta: &router.ToolCallFragment{
						ID:        toolID[idx],
						Name:      toolName[idx],
						ArgsDelta: aws.ToString(d.Value.Input),
					}}
				}
			case *types.ConverseStreamOutputMemberContentBlockStop:
				idx := v.Value.ContentBlockIndex
				if id, ok := toolID[idx]; ok {
					out <- router.NormalizedChunk{Kind: router.ChunkToolCall, ToolCallDelta: &router.ToolCallFragment{
						ID: id, Name: toolName[idx], IsFinal: true,
					}}
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				out <- router.NormalizedChunk{Kind: router.ChunkFinish, Finish: &router.FinishInfo{
					Reason:   normalizeBedrockStopReason(string(v.Value.StopReason)),
					Duration: time.Since(start),
				}}
			case *types.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					out <- router.NormalizedChunk{Kind: router.ChunkUsage, Usage: &router.Usage{
						InputTokens:  int(aws.ToInt32(v.Value.Usage.InputTokens)),
						OutputTokens: int(aws.ToInt32(v.Value.Usage.OutputTokens)),
					}}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- router.NormalizedChunk{Kind: router.ChunkError, Err: router.NewProviderError("bedrock", b.model(req), err)}
		}
	}()

	return out, nil
}

func normalizeBedrockStopReason(r string) string {
	switch r {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "content_filtered":
		return "content_filter"
	default:
		return "stop"
	}
}

func convertBedrockMessages(msgs []router.CompletionMessage) ([]types.Message, error) {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		case "assistant":
			blocks := []types.ContentBlock{}
			if m.Content != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
				}})
			}
			out = append(out, types.Message{Role: types.ConversationRoleAssistant, Content: blocks})
		case "tool":
			for _, tr := range m.ToolResults {
				out = append(out, types.Message{
					Role: types.ConversationRoleUser,
					Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
						ToolUseId: aws.String(tr.ToolCallID),
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
					}}},
				})
			}
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func convertBedrockTools(tools []router.ToolDescriptor) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.Parameters)},
		}})
	}
	return &types.ToolConfiguration{Tools: specs}
}
