package models

import "time"

// SandboxPolicy is the static allow/deny configuration consulted before a
// sandbox subprocess is spawned. Violations fail fast with a typed error
// carrying the offending line and token; no subprocess is launched.
type SandboxPolicy struct {
	// AllowedImports is the set of module names a snippet may import.
	AllowedImports map[string]struct{} `json:"-"`

	// BannedCalls is the set of dotted call targets that are never
	// permitted even if their module is allowed (e.g. "os.system",
	// "subprocess.Popen", "__import__").
	BannedCalls map[string]struct{} `json:"-"`

	// WallClockLimit bounds subprocess run time.
	WallClockLimit time.Duration `json:"wall_clock_limit"`

	// MemoryLimitBytes bounds the subprocess address space via
	// RLIMIT_AS. Applies whenever > 0 — no implicit floor (spec §9 defect
	// fix; the teacher's original only applied the ceiling at >= 1024MB).
	MemoryLimitBytes int64 `json:"memory_limit_bytes"`
}

// PolicyViolation is the typed error the sandbox's static guard returns
// before any subprocess is spawned.
type PolicyViolation struct {
	Reason string
	Line   int
	Token  string
}

func (v *PolicyViolation) Error() string {
	return "policy violation: " + v.Reason
}

// Artifact is a file produced by a tool or sandbox run, written under
// data/sessions/{session_id}/artifacts/. Identified by filename; served
// read-only by the gateway. Referenced by reference (not content) in the
// log and the tool result envelope.
type Artifact struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // "json" | "csv" | "png" | "svg" | "pdf" | "plotly_json"
	Format    string    `json:"format,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// DownloadPath returns the artifact's on-disk relative path under the
// session artifact tree, per spec §6 layout.
func (a Artifact) DownloadPath() string {
	return "data/sessions/" + a.SessionID + "/artifacts/" + a.Name
}
