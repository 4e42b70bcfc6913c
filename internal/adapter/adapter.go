// Package adapter defines the narrow external-context contracts the Agent
// Runner calls through during prompt assembly: knowledge retrieval, intent
// classification, research-profile lookup, and conversation-title
// generation. None of these are core to the ReAct loop — the runner treats
// every one of them as a best-effort enrichment that degrades to "no
// context" on error rather than aborting a turn, matching the teacher's
// convention for optional collaborators (internal/rag's Injector, the
// plugin system's Nop fallbacks) of logging and continuing rather than
// propagating a hard failure up through the loop.
package adapter

import (
	"context"
	"log/slog"
)

// KnowledgeProvider retrieves passages relevant to a query, formatted for
// direct inclusion in a prompt. An empty string with a nil error means "no
// relevant context found", not a failure.
type KnowledgeProvider interface {
	Retrieve(ctx context.Context, sessionID, query string) (string, error)
}

// IntentProvider classifies the likely intent behind a user message, e.g.
// "exploratory_analysis" or "debugging", for the runner to fold into the
// system prompt as a steering hint.
type IntentProvider interface {
	Classify(ctx context.Context, sessionID, text string) (string, error)
}

// ProfileProvider returns a short research-profile blurb for a session —
// the user's domain, preferred libraries, or prior findings — that the
// runner injects alongside tool guidance.
type ProfileProvider interface {
	Profile(ctx context.Context, sessionID string) (string, error)
}

// TitleGenerator derives a short human-readable title for a session from
// its opening message. Gateways use this for conversation list labels; the
// core never blocks a turn on it.
type TitleGenerator interface {
	Title(ctx context.Context, sessionID, firstMessage string) (string, error)
}

// NopKnowledgeProvider always reports no relevant context.
type NopKnowledgeProvider struct{}

func (NopKnowledgeProvider) Retrieve(ctx context.Context, sessionID, query string) (string, error) {
	return "", nil
}

// NopIntentProvider always reports no classified intent.
type NopIntentProvider struct{}

func (NopIntentProvider) Classify(ctx context.Context, sessionID, text string) (string, error) {
	return "", nil
}

// NopProfileProvider always reports no profile.
type NopProfileProvider struct{}

func (NopProfileProvider) Profile(ctx context.Context, sessionID string) (string, error) {
	return "", nil
}

// NopTitleGenerator always reports no generated title, leaving the
// gateway's own fallback (e.g. first N characters of the message) in
// effect.
type NopTitleGenerator struct{}

func (NopTitleGenerator) Title(ctx context.Context, sessionID, firstMessage string) (string, error) {
	return "", nil
}

// Adapters bundles the four provider contracts a Runtime consults during
// prompt assembly. A zero-value Adapters is not usable directly; construct
// one with New or NewNop.
type Adapters struct {
	Knowledge KnowledgeProvider
	Intent    IntentProvider
	Profile   ProfileProvider
	Title     TitleGenerator
	logger    *slog.Logger
}

// New builds an Adapters from explicit providers. A nil field falls back to
// its Nop implementation so callers can wire only the providers they have.
func New(knowledge KnowledgeProvider, intent IntentProvider, profile ProfileProvider, title TitleGenerator, logger *slog.Logger) *Adapters {
	if knowledge == nil {
		knowledge = NopKnowledgeProvider{}
	}
	if intent == nil {
		intent = NopIntentProvider{}
	}
	if profile == nil {
		profile = NopProfileProvider{}
	}
	if title == nil {
		title = NopTitleGenerator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapters{Knowledge: knowledge, Intent: intent, Profile: profile, Title: title, logger: logger}
}

// NewNop builds an Adapters backed entirely by Nop implementations — the
// degrade-to-nothing default a Runtime uses when no external collaborators
// are configured.
func NewNop() *Adapters {
	return New(nil, nil, nil, nil, nil)
}

// Context assembles the optional profile/knowledge/intent context a prompt
// may include, calling each provider in turn and logging-and-continuing on
// any individual failure rather than failing the turn. Providers that
// return "" contribute nothing. The result is empty if every provider
// degrades.
func (a *Adapters) Context(ctx context.Context, sessionID, userText string) string {
	if a == nil {
		return ""
	}

	var out string

	if profile, err := a.Profile.Profile(ctx, sessionID); err != nil {
		a.logger.Warn("profile provider failed, continuing without profile context", "session_id", sessionID, "error", err)
	} else if profile != "" {
		out += "## Research Profile\n" + profile + "\n\n"
	}

	if intent, err := a.Intent.Classify(ctx, sessionID, userText); err != nil {
		a.logger.Warn("intent provider failed, continuing without intent context", "session_id", sessionID, "error", err)
	} else if intent != "" {
		out += "## Inferred Intent\n" + intent + "\n\n"
	}

	if knowledge, err := a.Knowledge.Retrieve(ctx, sessionID, userText); err != nil {
		a.logger.Warn("knowledge provider failed, continuing without retrieved context", "session_id", sessionID, "error", err)
	} else if knowledge != "" {
		out += "## Retrieved Context\n" + knowledge + "\n\n"
	}

	return out
}

// GenerateTitle asks the configured TitleGenerator for a session title,
// degrading to "" on failure so callers can apply their own fallback.
func (a *Adapters) GenerateTitle(ctx context.Context, sessionID, firstMessage string) string {
	if a == nil {
		return ""
	}
	title, err := a.Title.Title(ctx, sessionID, firstMessage)
	if err != nil {
		a.logger.Warn("title generator failed, leaving session untitled", "session_id", sessionID, "error", err)
		return ""
	}
	return title
}
