package providers

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/scianalytics/agentcore/internal/router"
)

// GoogleConfig configures the Gemini adapter.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
}

// Google adapts the Gemini streaming API to router.Provider.
type Google struct {
	client       *genai.Client
	defaultModel string
}

func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("google: new client: %w", err)
	}
	return &Google{client: client, defaultModel: cfg.DefaultModel}, nil
}

func (g *Google) Name() string        { return "google" }
func (g *Google) SupportsTools() bool { return true }

func (g *Google) model(req router.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.defaultModel
}

// Complete streams GenerateContent, the one provider in the pack whose
// function-call arguments arrive as a single complete JSON object per
// chunk rather than incremental fragments — the adapter still emits a
// ToolCallDelta with IsFinal true immediately, keeping the sum type
// uniform for callers even though no accumulation is needed here.
func (g *Google) Complete(ctx context.Context, req router.CompletionRequest) (<-chan router.NormalizedChunk, error) {
	contents, err := convertGoogleMessages(req.Messages)
	if err != nil {
		return nil, router.NewProviderError("google", g.model(req), err).WithMessage("invalid request: " + err.Error())
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = convertGoogleTools(req.Tools)
	}

	stream := g.client.Models.GenerateContentStream(ctx, g.model(req), contents, config)
	out := make(chan router.NormalizedChunk)

	go func() {
		defer close(out)
		start := time.Now()
		var usage *genai.GenerateContentResponseUsageMetadata

		for resp, err := range stream {
			if err != nil {
				out <- router.NormalizedChunk{Kind: router.ChunkError, Err: router.NewProviderError("google", g.model(req), err)}
				return
			}
			if resp.UsageMetadata != nil {
				usage = resp.UsageMetadata
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					switch {
					case part.Text != "" && part.Thought:
						out <- router.NormalizedChunk{Kind: router.ChunkReason, ReasoningDelta: part.Text}
					case part.Text != "":
						out <- router.NormalizedChunk{Kind: router.ChunkText, TextDelta: part.Text}
					case part.FunctionCall != nil:
						args, _ := genai.MarshalJSON(part.FunctionCall.Args)
						out <- router.NormalizedChunk{Kind: router.ChunkToolCall, ToolCallDelta: &router.ToolCallFragment{
							ID:        part.FunctionCall.ID,
							Name:      part.FunctionCall.Name,
							ArgsDelta: string(args),
							IsFinal:   true,
						}}
					}
				}
				if cand.FinishReason != "" {
					out <- router.NormalizedChunk{Kind: router.ChunkFinish, Finish: &router.FinishInfo{
						Reason:   normalizeGoogleFinishReason(string(cand.FinishReason)),
						Duration: time.Since(start),
					}}
				}
			}
		}
		if usage != nil {
			out <- router.NormalizedChunk{Kind: router.ChunkUsage, Usage: &router.Usage{
				InputTokens:  int(usage.PromptTokenCount),
				OutputTokens: int(usage.CandidatesTokenCount),
			}}
		}
	}()

	return out, nil
}

func normalizeGoogleFinishReason(r string) string {
	switch r {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

func convertGoogleMessages(msgs []router.CompletionMessage) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		case "assistant":
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		case "tool":
			for _, tr := range m.ToolResults {
				resp := map[string]any{"result": tr.Content}
				out = append(out, genai.NewContentFromFunctionResponse(tr.ToolCallID, resp, genai.RoleUser))
			}
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func convertGoogleTools(tools []router.ToolDescriptor) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
