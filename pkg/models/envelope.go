package models

import "encoding/json"

// ToolResultEnvelope is the uniform structure returned by every tool.
// Invariant: when Success is false, Message must be a non-empty
// diagnostic; Data may be empty. A tool never raises across the tool
// boundary — unexpected failures are converted into a Success=false
// envelope by the registry (internal/tool.Registry.Execute).
type ToolResultEnvelope struct {
	Success bool `json:"success"`

	// Message is human text shown to both the model and the UI.
	Message string `json:"message"`

	// Data is structured, JSON-serializable tool output.
	Data json.RawMessage `json:"data,omitempty"`

	HasChart  bool            `json:"has_chart,omitempty"`
	ChartData json.RawMessage `json:"chart_data,omitempty"` // Plotly JSON

	HasDataframe     bool              `json:"has_dataframe,omitempty"`
	DataframePreview *DataframePreview `json:"dataframe_preview,omitempty"`

	Artifacts []ArtifactRef `json:"artifacts,omitempty"`

	// Metadata is an open extension point. Well-known keys: "error_kind"
	// (set by Failed/Cancelled), "warnings" ([]string, set by the sandbox
	// for artifact-collection failures), and two the runner reads:
	// "ask_user_question" (clarification request) and "retrieval"
	// (retrieval hint, re-emitted as a retrieval event).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DataframePreview summarizes a tabular result without shipping the full
// dataset back through the event stream.
type DataframePreview struct {
	Columns []ColumnInfo `json:"columns"`
	Rows    [][]any      `json:"rows"`
	RowCount int         `json:"row_count"`
}

// ColumnInfo describes one column of a DataframePreview.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ArtifactRef is the envelope-embedded reference to an Artifact file;
// DownloadURL is filled in by the producer (the sandbox executor resolves
// it through its configured artifact route).
type ArtifactRef struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Format      string `json:"format,omitempty"`
	DownloadURL string `json:"download_url"`
}

// Failed builds a Success=false envelope with a sanitized diagnostic
// message. Used by the tool registry to convert panics/unexpected errors
// and schema-validation failures into the uniform envelope shape — no
// stack traces leak to the model.
func Failed(message string, errorKind string) ToolResultEnvelope {
	meta := map[string]any{}
	if errorKind != "" {
		meta["error_kind"] = errorKind
	}
	return ToolResultEnvelope{
		Success:  false,
		Message:  message,
		Metadata: meta,
	}
}

// Cancelled builds the envelope returned for Lane Queue items dropped or
// interrupted by a session's cancellation token.
func Cancelled(reason string) ToolResultEnvelope {
	return ToolResultEnvelope{
		Success: false,
		Message: reason,
		Metadata: map[string]any{
			"error_kind": "cancelled",
		},
	}
}

// AskUserQuestion reports whether this envelope requests clarification,
// and if so the structured question list carried in Metadata.
func (e ToolResultEnvelope) AskUserQuestion() ([]ClarifyingQuestion, bool) {
	raw, ok := e.Metadata["ask_user_question"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []ClarifyingQuestion:
		return v, len(v) > 0
	default:
		return nil, false
	}
}
