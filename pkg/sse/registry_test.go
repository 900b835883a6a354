package sse

import (
	"fmt"
	"sync"
	"testing"
)

func newRegisteredSession(t *testing.T, reg *Registry, id string) *Session {
	t.Helper()
	session := newSession(id, StreamConfig{Route: "/sse/stream-sse"}, func() (Event, error) {
		return Event{Data: "x"}, nil
	}, &fakeSink{}, streamTestLogger{})
	reg.register(session)
	return session
}

func TestRegistry_RegisterAndLen(t *testing.T) {
	reg := NewRegistry()

	if got := reg.Len(); got != 0 {
		t.Fatalf("expected empty registry, got %d", got)
	}

	first := newRegisteredSession(t, reg, "first")
	second := newRegisteredSession(t, reg, "second")

	if got := reg.Len(); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}

	reg.unregister(first.ID())
	if got := reg.Len(); got != 1 {
		t.Fatalf("expected 1 session after unregister, got %d", got)
	}

	// Unregistering an unknown id is a no-op.
	reg.unregister("missing")
	if got := reg.Len(); got != 1 {
		t.Fatalf("expected 1 session, got %d", got)
	}

	reg.unregister(second.ID())
	if got := reg.Len(); got != 0 {
		t.Fatalf("expected empty registry, got %d", got)
	}
}

func TestRegistry_ListActive(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 3; i++ {
		newRegisteredSession(t, reg, fmt.Sprintf("session-%d", i))
	}

	infos := reg.ListActive()
	if len(infos) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(infos))
	}

	seen := make(map[string]bool)
	for _, info := range infos {
		seen[info.ID] = true
		if info.Route != "/sse/stream-sse" {
			t.Errorf("unexpected route %q", info.Route)
		}
		if info.State != StateActive {
			t.Errorf("expected active state, got %s", info.State)
		}
	}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("session-%d", i)
		if !seen[id] {
			t.Errorf("missing session %s", id)
		}
	}
}

func TestRegistry_CancelAll(t *testing.T) {
	reg := NewRegistry()
	sessions := make([]*Session, 0, 4)
	for i := 0; i < 4; i++ {
		sessions = append(sessions, newRegisteredSession(t, reg, fmt.Sprintf("session-%d", i)))
	}

	// Mirror the engine wiring: terminal sessions remove themselves.
	for _, session := range sessions {
		session.OnTerminal(func(s *Session) {
			reg.unregister(s.ID())
		})
	}

	reg.CancelAll()

	for _, session := range sessions {
		if session.State() != StateCancelled {
			t.Errorf("session %s not cancelled: %s", session.ID(), session.State())
		}
	}
	if got := reg.Len(); got != 0 {
		t.Errorf("expected registry drained after CancelAll, got %d", got)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", i)
			session := newSession(id, StreamConfig{}, func() (Event, error) {
				return Event{Data: "x"}, nil
			}, &fakeSink{}, streamTestLogger{})
			reg.register(session)
			reg.ListActive()
			reg.unregister(id)
		}(i)
	}
	wg.Wait()

	if got := reg.Len(); got != 0 {
		t.Errorf("expected empty registry, got %d", got)
	}
}
