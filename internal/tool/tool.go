// Package tool defines the uniform tool contract and the registry that
// validates, dispatches, and guards tool execution on behalf of the Lane
// Queue and Agent Runner.
package tool

import (
	"context"

	"github.com/scianalytics/agentcore/pkg/models"
)

// Tool is any object conforming to the spec's tool contract: a stable
// snake_case name, a model-facing description, a JSON-Schema describing
// its arguments, idempotency/exposure flags, and an async Execute method.
// Generalizes the teacher's agent.Tool interface (internal/agent/executor.go)
// with the two bool fields the spec requires and that teacher lacked.
type Tool interface {
	// Name is the stable, snake_case tool identifier used as the registry
	// key and as the function-call name shown to the model.
	Name() string

	// Description is natural-language text shown to the model.
	Description() string

	// Parameters is the JSON-Schema object describing this tool's
	// arguments, used both for the model-facing function-call descriptor
	// and for pre-execute argument validation.
	Parameters() map[string]any

	// IsIdempotent reports whether repeating this call with the same
	// arguments is safe. The Lane Queue does not read it: it runs each
	// submitted call once and never retries a call.
	IsIdempotent() bool

	// ExposeToLLM reports whether this tool should be offered to the model
	// as a callable function. Internal-only tools (e.g. ones only invoked
	// by the runner itself) return false here.
	ExposeToLLM() bool

	// Execute runs the tool against the given session and JSON arguments,
	// returning a uniform result envelope. Execute must never panic across
	// the tool boundary for expected failures — it reports failure via
	// envelope.Success=false. The registry additionally recovers from
	// unexpected panics.
	Execute(ctx context.Context, session *models.Session, args []byte) (models.ToolResultEnvelope, error)
}

// Descriptor is the JSON-Schema function-call descriptor shown to a model,
// returned by Registry.ListExposedForModel.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
