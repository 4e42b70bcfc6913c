package session

import "testing"

func TestManager_GetOrCreateReturnsSameSessionOnSecondCall(t *testing.T) {
	m := NewManager()
	a := m.GetOrCreate("s1")
	b := m.GetOrCreate("s1")
	if a != b {
		t.Fatal("expected the same session instance on repeated GetOrCreate")
	}
}

func TestManager_GetOrCreateGeneratesIDWhenEmpty(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("")
	if s.ID == "" {
		t.Fatal("expected a generated session id")
	}
}

func TestManager_GetUnknownReturnsErrNotFound(t *testing.T) {
	m := NewManager()
	if _, err := m.Get("missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestManager_DeleteRemovesSession(t *testing.T) {
	m := NewManager()
	m.GetOrCreate("s1")
	m.Delete("s1")
	if _, err := m.Get("s1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after Delete, got %v", err)
	}
}

func TestManager_ListContainsAllSessions(t *testing.T) {
	m := NewManager()
	m.GetOrCreate("a")
	m.GetOrCreate("b")
	list := m.List()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
}
