package rguard

import (
	"testing"

	"github.com/scianalytics/agentcore/pkg/models"
)

func TestGuard_RejectsSystemCall(t *testing.T) {
	g := New()
	if err := g.Check("system(\"rm -rf /\")", models.SandboxPolicy{}); err == nil {
		t.Fatal("expected a policy violation for system()")
	}
}

func TestGuard_RejectsEvalParsePattern(t *testing.T) {
	g := New()
	if err := g.Check("eval(parse(text=\"1+1\"))", models.SandboxPolicy{}); err == nil {
		t.Fatal("expected a policy violation for eval(parse(...))")
	}
}

func TestGuard_AllowsOrdinaryComputation(t *testing.T) {
	g := New()
	if err := g.Check("x <- mean(c(1,2,3))\nprint(x)", models.SandboxPolicy{}); err != nil {
		t.Fatalf("expected no violation, got %v", err)
	}
}

func TestGuard_RejectsLibraryOutsideAllowlist(t *testing.T) {
	g := New()
	policy := models.SandboxPolicy{AllowedImports: map[string]struct{}{"dplyr": {}}}
	if err := g.Check("library(parallel)", policy); err == nil {
		t.Fatal("expected a policy violation for a non-allowlisted package")
	}
}
