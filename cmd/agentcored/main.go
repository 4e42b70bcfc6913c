// Command agentcored is the thin standalone entry point for the Agent
// Runtime: it wires the Model Router, Tool Registry, Lane Queue, Session
// Manager, and External Adapters together behind an EventSink boundary and
// drives a single conversational turn, streaming the resulting event
// envelope as newline-delimited JSON to stdout. The HTTP/WebSocket gateway
// that would normally front this process is an external collaborator, out
// of scope here (spec §1); agentcored exists so the core is runnable and
// inspectable without one, the way the teacher's nexus-plugin-runner is a
// thin, flag-driven process around a single subsystem rather than the full
// gateway binary.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/scianalytics/agentcore/internal/adapter"
	"github.com/scianalytics/agentcore/internal/agent"
	"github.com/scianalytics/agentcore/internal/config"
	"github.com/scianalytics/agentcore/internal/lane"
	"github.com/scianalytics/agentcore/internal/router"
	"github.com/scianalytics/agentcore/internal/router/providers"
	"github.com/scianalytics/agentcore/internal/sandbox"
	"github.com/scianalytics/agentcore/internal/sandbox/pyguard"
	"github.com/scianalytics/agentcore/internal/sandbox/rguard"
	"github.com/scianalytics/agentcore/internal/session"
	"github.com/scianalytics/agentcore/internal/tool"
	"github.com/scianalytics/agentcore/pkg/models"
)

func main() {
	configPath := flag.String("config", "agentcore.yaml", "path to the YAML configuration file")
	sessionID := flag.String("session", "", "session id to run the turn against (default: a generated id)")
	message := flag.String("message", "", "user message text; reads stdin if empty")
	dataDir := flag.String("data-dir", "data", "root directory for conversation logs, archives, and sandbox scratch space")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	text := *message
	if text == "" {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			logger.Error("read message from stdin", "error", err)
			os.Exit(1)
		}
		text = string(data)
	}
	if text == "" {
		fmt.Fprintln(os.Stderr, "a message is required via -message or stdin")
		os.Exit(2)
	}

	sid := *sessionID
	if sid == "" {
		sid = uuid.NewString()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt := buildRuntime(cfg, *dataDir, logger)

	sink := agent.NewCallbackSink(func(_ context.Context, e models.AgentEvent) {
		line, err := json.Marshal(e)
		if err != nil {
			logger.Warn("marshal event for stdout", "error", err)
			return
		}
		fmt.Println(string(line))
	})

	if err := rt.Run(ctx, sid, text, sink); err != nil {
		logger.Error("turn failed", "session_id", sid, "error", err)
		os.Exit(1)
	}
}

// buildRuntime assembles a Runtime from cfg: a router candidate per
// configured provider with credentials present, a run_code tool backed by
// the sandbox executor, a fresh lane/session manager pair, and a Nop
// adapter set (no knowledge/intent/profile backends are configured for the
// standalone binary).
func buildRuntime(cfg config.Config, dataDir string, logger *slog.Logger) *agent.Runtime {
	candidates := buildCandidates(cfg, logger)
	r := router.NewRouter(candidates, router.DefaultConfig(), logger)

	registry := tool.NewRegistry(logger)
	executor := sandbox.NewExecutor(dataDir+"/scratch", func(sessionID, name string) string {
		return "/sessions/" + sessionID + "/artifacts/" + name
	}, logger)
	executor.RegisterGuard("python", pyguard.New())
	if cfg.R.Enabled {
		if _, err := exec.LookPath("Rscript"); err == nil {
			executor.RegisterGuard("r", rguard.New())
		} else {
			logger.Warn("r.enabled is set but Rscript is not on PATH; R is not registered")
		}
	}
	policy := models.SandboxPolicy{
		WallClockLimit:   cfg.Sandbox.WallClock(),
		MemoryLimitBytes: cfg.Sandbox.MaxMemoryBytes,
	}
	if err := registry.Register(tool.NewRunCodeTool(executor, policy)); err != nil {
		logger.Error("register run_code tool", "error", err)
	}

	rtCfg := agent.DefaultConfig()
	rtCfg.MaxIterations = cfg.Agent.MaxIterations
	rtCfg.LogDir = dataDir + "/conversations"
	rtCfg.ArchiveDir = dataDir + "/conversations/archive"

	systemPrompt := "You are a local-first scientific-analysis assistant. " +
		"Use the run_code tool to execute Python or R against the session's datasets; " +
		"explain your reasoning before each tool call and summarize results for a domain scientist."

	return agent.NewRuntime(r, registry, lane.NewManager(), session.NewManager(), nil, rtCfg, systemPrompt, logger, adapter.NewNop())
}

// buildCandidates constructs one router.Candidate per provider entry in
// cfg.LLM.Providers that carries an API key (or, for bedrock, a non-empty
// model — credentials come from the AWS default chain instead). Entries
// that fail to construct are logged and skipped rather than aborting
// startup, so a partially configured deployment still runs against
// whichever providers are reachable.
func buildCandidates(cfg config.Config, logger *slog.Logger) []router.Candidate {
	var out []router.Candidate
	for name, pc := range cfg.LLM.Providers {
		switch name {
		case "anthropic":
			if pc.APIKey == "" {
				continue
			}
			p, err := providers.NewAnthropic(providers.AnthropicConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.Model})
			if err != nil {
				logger.Error("construct anthropic provider", "error", err)
				continue
			}
			out = append(out, router.Candidate{Provider: p, Model: pc.Model, Priority: pc.Priority})
		case "openai":
			if pc.APIKey == "" {
				continue
			}
			p, err := providers.NewOpenAI(providers.OpenAIConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.Model})
			if err != nil {
				logger.Error("construct openai provider", "error", err)
				continue
			}
			out = append(out, router.Candidate{Provider: p, Model: pc.Model, Priority: pc.Priority})
		case "google":
			if pc.APIKey == "" {
				continue
			}
			p, err := providers.NewGoogle(context.Background(), providers.GoogleConfig{APIKey: pc.APIKey, DefaultModel: pc.Model})
			if err != nil {
				logger.Error("construct google provider", "error", err)
				continue
			}
			out = append(out, router.Candidate{Provider: p, Model: pc.Model, Priority: pc.Priority})
		case "bedrock":
			// Bedrock has no API key; base_url doubles as the AWS region
			// since ProviderConfig has no dedicated region field.
			if pc.Model == "" {
				continue
			}
			p, err := providers.NewBedrock(context.Background(), providers.BedrockConfig{Region: pc.BaseURL, DefaultModel: pc.Model})
			if err != nil {
				logger.Error("construct bedrock provider", "error", err)
				continue
			}
			out = append(out, router.Candidate{Provider: p, Model: pc.Model, Priority: pc.Priority})
		default:
			logger.Warn("unknown provider in config, skipping", "provider", name)
		}
	}
	return out
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
