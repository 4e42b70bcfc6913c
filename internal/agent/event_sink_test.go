package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scianalytics/agentcore/pkg/models"
)

func TestChanSink_Emit(t *testing.T) {
	ch := make(chan models.AgentEvent, 10)
	sink := NewChanSink(ch)

	event := models.AgentEvent{Type: models.EventText, SessionID: "test"}
	sink.Emit(context.Background(), event)

	select {
	case received := <-ch:
		if received.SessionID != "test" {
			t.Errorf("SessionID = %q, want %q", received.SessionID, "test")
		}
	default:
		t.Error("expected event in channel")
	}
}

func TestChanSink_FullChannel(t *testing.T) {
	ch := make(chan models.AgentEvent, 1)
	sink := NewChanSink(ch)

	sink.Emit(context.Background(), models.AgentEvent{SessionID: "first"})

	done := make(chan struct{})
	go func() {
		sink.Emit(context.Background(), models.AgentEvent{SessionID: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("ChanSink.Emit blocked on full channel")
	}
}

func TestChanSink_ContextCancelled(t *testing.T) {
	ch := make(chan models.AgentEvent, 1)
	sink := NewChanSink(ch)

	sink.Emit(context.Background(), models.AgentEvent{SessionID: "first"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sink.Emit(ctx, models.AgentEvent{SessionID: "cancelled"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("ChanSink.Emit blocked with a cancelled context")
	}
}

func TestMultiSink_Emit(t *testing.T) {
	var order []string
	var mu sync.Mutex

	sink1 := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		mu.Lock()
		order = append(order, "sink1")
		mu.Unlock()
	})
	sink2 := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		mu.Lock()
		order = append(order, "sink2")
		mu.Unlock()
	})

	multi := NewMultiSink(sink1, sink2)
	multi.Emit(context.Background(), models.AgentEvent{})

	mu.Lock()
	defer mu.Unlock()

	if len(order) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(order))
	}
	if order[0] != "sink1" || order[1] != "sink2" {
		t.Errorf("order = %v, want [sink1 sink2]", order)
	}
}

func TestMultiSink_FiltersNil(t *testing.T) {
	var called bool
	sink := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		called = true
	})

	multi := NewMultiSink(nil, sink, nil)
	multi.Emit(context.Background(), models.AgentEvent{})

	if !called {
		t.Error("expected the non-nil sink to be called")
	}
}

func TestCallbackSink_Emit(t *testing.T) {
	var received models.AgentEvent
	sink := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		received = e
	})

	event := models.AgentEvent{Type: models.EventDone, SessionID: "callback-test"}
	sink.Emit(context.Background(), event)

	if received.SessionID != "callback-test" {
		t.Errorf("SessionID = %q, want %q", received.SessionID, "callback-test")
	}
}

func TestCallbackSink_NilFunc(t *testing.T) {
	sink := NewCallbackSink(nil)
	sink.Emit(context.Background(), models.AgentEvent{}) // must not panic
}

func TestNopSink_Emit(t *testing.T) {
	sink := NopSink{}
	sink.Emit(context.Background(), models.AgentEvent{}) // must not panic
}

func TestBackpressureSink_NonDroppableNeverDropped(t *testing.T) {
	sink, out := NewBackpressureSink(BackpressureConfig{HighPriBuffer: 1, LowPriBuffer: 1})
	defer sink.Close()

	for i := 0; i < 3; i++ {
		sink.Emit(context.Background(), models.AgentEvent{Type: models.EventToolCall})
	}

	received := 0
	for received < 3 {
		select {
		case <-out:
			received++
		case <-time.After(time.Second):
			t.Fatalf("only received %d/3 non-droppable events", received)
		}
	}
}

func TestBackpressureSink_DroppableDroppedUnderPressure(t *testing.T) {
	sink, _ := NewBackpressureSink(BackpressureConfig{HighPriBuffer: 1, LowPriBuffer: 1})
	defer sink.Close()

	for i := 0; i < 5; i++ {
		sink.Emit(context.Background(), models.AgentEvent{Type: models.EventText})
	}

	if sink.DroppedCount() == 0 {
		t.Error("expected some text events to be dropped once the low-priority lane filled")
	}
}

func TestBackpressureSink_EmitAfterClose(t *testing.T) {
	sink, out := NewBackpressureSink(DefaultBackpressureConfig())
	sink.Close()
	sink.Emit(context.Background(), models.AgentEvent{Type: models.EventDone})

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected no event after Close")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("merged channel never closed")
	}
}
