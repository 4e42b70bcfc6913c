package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewNop_AllProvidersDegradeToEmpty(t *testing.T) {
	a := NewNop()
	ctx := context.Background()

	if got := a.Context(ctx, "sess-1", "what's in this dataset"); got != "" {
		t.Errorf("Context() = %q, want empty", got)
	}
	if got := a.GenerateTitle(ctx, "sess-1", "hello"); got != "" {
		t.Errorf("GenerateTitle() = %q, want empty", got)
	}
}

type stubKnowledge struct{ text string }

func (s stubKnowledge) Retrieve(ctx context.Context, sessionID, query string) (string, error) {
	return s.text, nil
}

type failingIntent struct{}

func (failingIntent) Classify(ctx context.Context, sessionID, text string) (string, error) {
	return "", errors.New("classifier unavailable")
}

func TestContext_AssemblesOnlySuccessfulProviders(t *testing.T) {
	a := New(stubKnowledge{text: "prior finding: dataset has 3 outliers"}, failingIntent{}, nil, nil, nil)

	out := a.Context(context.Background(), "sess-2", "any outliers?")
	if !strings.Contains(out, "prior finding") {
		t.Errorf("Context() = %q, want it to contain the knowledge provider's text", out)
	}
	if strings.Contains(out, "Inferred Intent") {
		t.Errorf("Context() = %q, want no intent section when the provider errors", out)
	}
}

type failingTitle struct{}

func (failingTitle) Title(ctx context.Context, sessionID, firstMessage string) (string, error) {
	return "", errors.New("title service down")
}

func TestGenerateTitle_DegradesOnError(t *testing.T) {
	a := New(nil, nil, nil, failingTitle{}, nil)

	if got := a.GenerateTitle(context.Background(), "sess-3", "help me analyze this"); got != "" {
		t.Errorf("GenerateTitle() = %q, want empty on provider error", got)
	}
}

func TestContext_NilAdapters(t *testing.T) {
	var a *Adapters
	if got := a.Context(context.Background(), "sess-4", "hi"); got != "" {
		t.Errorf("Context() on nil Adapters = %q, want empty", got)
	}
}
