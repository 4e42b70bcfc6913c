package session

import (
	"testing"
	"time"

	"github.com/scianalytics/agentcore/pkg/models"
)

func TestLog_AppendThenReadAllRoundTrips(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenLog(dir, "s1")
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	defer log.Close()

	msgs := []models.ConversationMessage{
		{ID: "m1", SessionID: "s1", Role: models.RoleUser, Content: "hello", CreatedAt: time.Now()},
		{ID: "m2", SessionID: "s1", Role: models.RoleAssistant, Content: "hi there", CreatedAt: time.Now()},
	}
	for _, m := range msgs {
		if err := log.Append(m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := ReadAll(dir, "s1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].Content != "hello" || got[1].Content != "hi there" {
		t.Errorf("got = %+v", got)
	}
}

func TestReadAll_MissingLogIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	got, err := ReadAll(dir, "nonexistent")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for a missing log, got %+v", got)
	}
}

func TestRewrite_ReplacesLogContents(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenLog(dir, "s1")
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	if err := log.Append(models.ConversationMessage{ID: "m1", Content: "first"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	log.Close()

	replacement := []models.ConversationMessage{{ID: "summary", Content: "condensed"}}
	if err := Rewrite(dir, "s1", replacement); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	got, err := ReadAll(dir, "s1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1 || got[0].Content != "condensed" {
		t.Fatalf("got = %+v", got)
	}
}
