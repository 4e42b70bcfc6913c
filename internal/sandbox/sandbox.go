// Package sandbox executes Python (and, when available, R) snippets in an
// isolated subprocess: parse/policy-check before spawn, a capability
// envelope wrapping the snippet, POSIX resource limits on the subprocess,
// and artifact collection from its scratch directory afterward.
//
// Generalizes internal/tools/sandbox/executor.go's ExecuteParams/
// prepareWorkspace/timeout pattern, substituting a direct os/exec
// subprocess for the teacher's Docker/Firecracker/Daytona container
// backend — this pipeline's threat model assumes policy-checked, not
// adversarial, code (spec Non-goals), so a container's isolation
// boundary buys nothing the AST/lexical gate and rlimits don't already
// provide, and the container step would only duplicate the parse-before-
// spawn work this package already does.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scianalytics/agentcore/pkg/models"
)

// ErrorKind enumerates the execute-time error taxonomy.
type ErrorKind string

const (
	ErrorKindPolicy      ErrorKind = "policy"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindMemory      ErrorKind = "memory"
	ErrorKindRuntime     ErrorKind = "runtime"
	ErrorKindOutputParse ErrorKind = "output_parse"
)

// Guard is implemented by each language's static policy checker
// (pyguard.Guard, rguard.Guard): parse + walk, rejecting before any
// subprocess is spawned.
type Guard interface {
	Check(snippet string, policy models.SandboxPolicy) error
	MainFilename() string
	Command(mainFile string) []string
}

var (
	rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "sandbox",
		Name:      "rejections_total",
		Help:      "Sandbox executions rejected before or during a run, by error_kind.",
	}, []string{"language", "error_kind"})

	figureWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "sandbox",
		Name:      "figure_collection_warnings_total",
		Help:      "Figure/artifact collection failures, surfaced rather than swallowed.",
	}, []string{"language"})
)

func init() {
	prometheus.MustRegister(rejections, figureWarnings)
}

// Params are the execution inputs for a single snippet run.
type Params struct {
	Language string // "python" | "r"
	Code     string
	Stdin    string
	Datasets map[string]string // dataset name -> CSV path, bound as a variable in the snippet
	Timeout  time.Duration
	Policy   models.SandboxPolicy
}

// Executor runs snippets against registered per-language Guards.
type Executor struct {
	guards        map[string]Guard
	scratchRoot   string
	artifactRoute func(sessionID, name string) string
	logger        *slog.Logger
}

// NewExecutor creates a sandbox executor rooted at scratchRoot, with
// artifactRoute resolving a session/name pair to the download URL recorded
// in collected artifacts.
func NewExecutor(scratchRoot string, artifactRoute func(sessionID, name string) string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		guards:        make(map[string]Guard),
		scratchRoot:   scratchRoot,
		artifactRoute: artifactRoute,
		logger:        logger,
	}
}

// RegisterGuard wires a language's static policy checker. R is only
// registered by the caller when the Rscript runtime is detected on PATH
// at startup, per spec.
func (e *Executor) RegisterGuard(language string, g Guard) {
	e.guards[language] = g
}

// SupportsLanguage reports whether a guard (and therefore a runnable
// pipeline) is registered for the language.
func (e *Executor) SupportsLanguage(language string) bool {
	_, ok := e.guards[language]
	return ok
}

// Run executes the six-step safety pipeline: parse/policy check, capability
// envelope, resource-limited subprocess, artifact collection, envelope
// assembly. Every failure mode returns Success=false with a typed
// metadata.error_kind rather than a Go error — only a Go error escapes for
// conditions the caller (not the model) must act on, such as an
// unregistered language.
func (e *Executor) Run(ctx context.Context, sessionID string, params Params) (models.ToolResultEnvelope, error) {
	guard, ok := e.guards[params.Language]
	if !ok {
		return models.ToolResultEnvelope{}, fmt.Errorf("sandbox: no guard registered for language %q", params.Language)
	}

	if err := guard.Check(params.Code, params.Policy); err != nil {
		var violation *models.PolicyViolation
		if errors.As(err, &violation) {
			rejections.WithLabelValues(params.Language, string(ErrorKindPolicy)).Inc()
			return models.Failed("policy violation: "+violation.Reason, string(ErrorKindPolicy)), nil
		}
		rejections.WithLabelValues(params.Language, string(ErrorKindPolicy)).Inc()
		return models.Failed("policy violation: "+err.Error(), string(ErrorKindPolicy)), nil
	}

	scratch, err := e.prepareScratch(sessionID, params, guard)
	if err != nil {
		return models.ToolResultEnvelope{}, fmt.Errorf("sandbox: prepare scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runResult, err := e.spawn(runCtx, params, guard, scratch)
	if err != nil {
		if errors.Is(err, errResourceLimitUnavailable) {
			// Platform cannot enforce a configured ceiling: fail closed
			// rather than run unconstrained.
			rejections.WithLabelValues(params.Language, string(ErrorKindMemory)).Inc()
			return models.Failed("sandbox: "+err.Error(), string(ErrorKindMemory)), nil
		}
		rejections.WithLabelValues(params.Language, string(ErrorKindRuntime)).Inc()
		return models.Failed("sandbox: failed to spawn subprocess: "+err.Error(), string(ErrorKindRuntime)), nil
	}

	if runResult.timedOut {
		rejections.WithLabelValues(params.Language, string(ErrorKindTimeout)).Inc()
		return models.Failed(fmt.Sprintf("execution exceeded %s timeout", timeout), string(ErrorKindTimeout)), nil
	}
	if runResult.memoryExceeded {
		rejections.WithLabelValues(params.Language, string(ErrorKindMemory)).Inc()
		return models.Failed("execution exceeded the configured memory ceiling", string(ErrorKindMemory)), nil
	}
	if runResult.exitCode != 0 {
		rejections.WithLabelValues(params.Language, string(ErrorKindRuntime)).Inc()
		return models.Failed(
			fmt.Sprintf("snippet exited %d: %s", runResult.exitCode, lastLines(runResult.stderr, 20)),
			string(ErrorKindRuntime),
		), nil
	}

	return e.collectArtifacts(sessionID, params.Language, scratch, runResult)
}

// errResourceLimitUnavailable distinguishes "platform can't enforce the
// configured ceiling" from an ordinary subprocess launch failure.
var errResourceLimitUnavailable = errors.New("resource limit enforcement unavailable")

type runResult struct {
	stdout         string
	stderr         string
	exitCode       int
	timedOut       bool
	memoryExceeded bool
}

// prepareScratch writes the wrapped snippet and any dataset references into
// a private per-run scratch directory under scratchRoot/<sessionID>. The
// directory is not inside the session's artifacts directory.
func (e *Executor) prepareScratch(sessionID string, params Params, guard Guard) (string, error) {
	root := filepath.Join(e.scratchRoot, sessionID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	scratch, err := os.MkdirTemp(root, "run-*")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(scratch, "plots"), 0o755); err != nil {
		os.RemoveAll(scratch)
		return "", err
	}

	wrapped := capabilityEnvelope(params.Language, params.Code, params.Datasets)
	if err := os.WriteFile(filepath.Join(scratch, guard.MainFilename()), []byte(wrapped), 0o644); err != nil {
		os.RemoveAll(scratch)
		return "", err
	}
	return scratch, nil
}

func (e *Executor) spawn(ctx context.Context, params Params, guard Guard, scratch string) (runResult, error) {
	cmd := exec.CommandContext(ctx, guard.Command(guard.MainFilename())[0], guard.Command(guard.MainFilename())[1:]...)
	cmd.Dir = scratch
	cmd.Env = restrictedEnv()
	if params.Stdin != "" {
		cmd.Stdin = strings.NewReader(params.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = boundedWriter{&stdout, 1 << 20}
	cmd.Stderr = boundedWriter{&stderr, 1 << 20}

	if err := applyResourceLimits(cmd, params.Policy); err != nil {
		return runResult{}, fmt.Errorf("%w: %v", errResourceLimitUnavailable, err)
	}

	err := cmd.Run()
	res := runResult{stdout: stdout.String(), stderr: stderr.String()}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.timedOut = true
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
			if wasOOMKilled(exitErr) || strings.Contains(res.stderr, "MemoryError") || strings.Contains(res.stderr, "cannot allocate vector") {
				res.memoryExceeded = true
			}
		} else {
			return runResult{}, err
		}
	}
	return res, nil
}

// collectArtifacts scans the scratch directory for the conventional output
// files per spec step 5: result.json, output_df.csv, plots/*.
func (e *Executor) collectArtifacts(sessionID, language, scratch string, run runResult) (models.ToolResultEnvelope, error) {
	envelope := models.ToolResultEnvelope{Success: true, Message: run.stdout}

	resultPath := filepath.Join(scratch, "result.json")
	if data, err := os.ReadFile(resultPath); err == nil {
		var decoded json.RawMessage
		if err := json.Unmarshal(data, &decoded); err != nil {
			return models.Failed("sandbox: result.json was not valid JSON: "+err.Error(), string(ErrorKindOutputParse)), nil
		}
		envelope.Data = decoded
	}

	warnings := []string{}
	if preview, err := readDataframePreview(filepath.Join(scratch, "output_df.csv")); err != nil {
		e.warnFigureCollection(sessionID, language, "output_df", err)
		warnings = append(warnings, "output_df: "+err.Error())
	} else if preview != nil {
		envelope.HasDataframe = true
		envelope.DataframePreview = preview
	}

	plotsDir := filepath.Join(scratch, "plots")
	entries, err := os.ReadDir(plotsDir)
	if err != nil {
		e.warnFigureCollection(sessionID, language, "plots", err)
		warnings = append(warnings, "plots: "+err.Error())
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ref := models.ArtifactRef{
			Name:        name,
			Format:      strings.TrimPrefix(filepath.Ext(name), "."),
			DownloadURL: e.artifactRoute(sessionID, name),
		}
		switch {
		case strings.HasSuffix(name, ".json"):
			ref.Type = "chart"
			if strings.Contains(name, "plotly") {
				envelope.HasChart = true
				if data, err := os.ReadFile(filepath.Join(plotsDir, name)); err == nil {
					envelope.ChartData = data
				} else {
					e.warnFigureCollection(sessionID, language, name, err)
					warnings = append(warnings, name+": "+err.Error())
				}
			}
		case strings.HasSuffix(name, ".png"), strings.HasSuffix(name, ".svg"), strings.HasSuffix(name, ".pdf"):
			ref.Type = "image"
		default:
			ref.Type = "artifact"
		}
		envelope.Artifacts = append(envelope.Artifacts, ref)
	}
	if len(warnings) > 0 {
		if envelope.Metadata == nil {
			envelope.Metadata = map[string]any{}
		}
		envelope.Metadata["warnings"] = warnings
	}
	return envelope, nil
}

// warnFigureCollection implements the observability requirement: a figure-
// collection failure is logged, counted, and surfaced — never silently
// dropped.
func (e *Executor) warnFigureCollection(sessionID, language, what string, err error) {
	figureWarnings.WithLabelValues(language).Inc()
	e.logger.Warn("sandbox artifact collection failed",
		"session_id", sessionID, "language", language, "artifact", what, "error", err)
}

func capabilityEnvelope(language, code string, datasets map[string]string) string {
	switch language {
	case "r":
		return rEnvelope(code, datasets)
	default:
		return pyEnvelope(code, datasets)
	}
}

func pyEnvelope(code string, datasets map[string]string) string {
	var b strings.Builder
	b.WriteString("import json, os\n")
	b.WriteString("os.chdir(os.path.dirname(os.path.abspath(__file__)))\n")
	for name, path := range datasets {
		fmt.Fprintf(&b, "%s = %q\n", pyIdentifier(name), path)
	}
	b.WriteString(code)
	return b.String()
}

func rEnvelope(code string, datasets map[string]string) string {
	var b strings.Builder
	for name, path := range datasets {
		fmt.Fprintf(&b, "%s <- %q\n", name, path)
	}
	b.WriteString(code)
	return b.String()
}

func pyIdentifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func restrictedEnv() []string {
	return []string{"PATH=" + os.Getenv("PATH"), "HOME=/tmp", "LANG=C.UTF-8"}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// boundedWriter caps how much of a subprocess's stdout/stderr is retained,
// matching spec step 4's "bounded buffers" requirement.
type boundedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w boundedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
	} else {
		w.buf.Write(p)
	}
	return len(p), nil
}
