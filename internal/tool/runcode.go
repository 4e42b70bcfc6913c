package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scianalytics/agentcore/internal/sandbox"
	"github.com/scianalytics/agentcore/pkg/models"
)

// RunCodeTool exposes the Sandbox Executor as a model-callable tool: the
// model submits a language and a snippet, the session's registered
// datasets are made available to it by name, and the result comes back as
// the uniform ToolResultEnvelope the executor already assembles.
type RunCodeTool struct {
	executor *sandbox.Executor
	policy   models.SandboxPolicy
}

// NewRunCodeTool wraps executor behind the tool contract, applying policy
// to every invocation regardless of what the model requests.
func NewRunCodeTool(executor *sandbox.Executor, policy models.SandboxPolicy) *RunCodeTool {
	return &RunCodeTool{executor: executor, policy: policy}
}

func (t *RunCodeTool) Name() string { return "run_code" }

func (t *RunCodeTool) Description() string {
	return "Executes a Python or R snippet in an isolated subprocess against the session's loaded datasets, returning stdout, any produced chart/dataframe, and collected artifacts."
}

func (t *RunCodeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"language": map[string]any{
				"type": "string",
				"enum": []any{"python", "r"},
			},
			"code": map[string]any{
				"type":        "string",
				"description": "The snippet to run. Each requested dataset is bound by name to the path of its CSV file (a string in Python, a character value in R).",
			},
			"datasets": map[string]any{
				"type":                 "array",
				"items":                map[string]any{"type": "string"},
				"description":          "Names of session datasets to make available to the snippet.",
				"additionalProperties": false,
			},
		},
		"required": []any{"language", "code"},
	}
}

func (t *RunCodeTool) IsIdempotent() bool { return false }
func (t *RunCodeTool) ExposeToLLM() bool  { return true }

func (t *RunCodeTool) Execute(ctx context.Context, sess *models.Session, args []byte) (models.ToolResultEnvelope, error) {
	var req struct {
		Language string   `json:"language"`
		Code     string   `json:"code"`
		Datasets []string `json:"datasets"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return models.ToolResultEnvelope{}, fmt.Errorf("run_code: decode arguments: %w", err)
	}

	datasets := make(map[string]string, len(req.Datasets))
	for _, name := range req.Datasets {
		ds, ok := sess.Datasets[name]
		if !ok {
			continue
		}
		if path, ok := ds.Handle.(string); ok {
			datasets[name] = path
		}
	}

	return t.executor.Run(ctx, sess.ID, sandbox.Params{
		Language: req.Language,
		Code:     req.Code,
		Datasets: datasets,
		Timeout:  t.policy.WallClockLimit,
		Policy:   t.policy,
	})
}
