package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventType_Constants(t *testing.T) {
	tests := []struct {
		constant EventType
		expected string
	}{
		{EventSession, "session"},
		{EventIterationStart, "iteration_start"},
		{EventText, "text"},
		{EventReasoning, "reasoning"},
		{EventToolCall, "tool_call"},
		{EventToolResult, "tool_result"},
		{EventChart, "chart"},
		{EventData, "data"},
		{EventArtifact, "artifact"},
		{EventImage, "image"},
		{EventRetrieval, "retrieval"},
		{EventAnalysisPlan, "analysis_plan"},
		{EventPlanStepUpdate, "plan_step_update"},
		{EventPlanProgress, "plan_progress"},
		{EventTaskAttempt, "task_attempt"},
		{EventAskUserQuestion, "ask_user_question"},
		{EventWorkspaceUpdate, "workspace_update"},
		{EventCodeExecution, "code_execution"},
		{EventContextCompressed, "context_compressed"},
		{EventSessionTitle, "session_title"},
		{EventDone, "done"},
		{EventStopped, "stopped"},
		{EventError, "error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestEventType_Droppable(t *testing.T) {
	tests := []struct {
		typ  EventType
		want bool
	}{
		{EventText, true},
		{EventReasoning, true},
		{EventToolCall, false},
		{EventToolResult, false},
		{EventDone, false},
		{EventError, false},
		{EventIterationStart, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.Droppable(); got != tt.want {
				t.Errorf("Droppable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAgentEvent_TurnCorrelation(t *testing.T) {
	now := time.Now()
	events := []AgentEvent{
		{Version: 1, Type: EventIterationStart, Time: now, Sequence: 1, SessionID: "s1", TurnID: "t1"},
		{Version: 1, Type: EventToolCall, Time: now, Sequence: 2, SessionID: "s1", TurnID: "t1", ToolCallID: "c1", ToolName: "compute"},
		{Version: 1, Type: EventToolResult, Time: now, Sequence: 3, SessionID: "s1", TurnID: "t1", ToolCallID: "c1", ToolName: "compute"},
		{Version: 1, Type: EventDone, Time: now, Sequence: 4, SessionID: "s1", TurnID: "t1"},
	}

	for _, e := range events {
		if e.TurnID != "t1" {
			t.Fatalf("event %v: TurnID = %q, want t1", e.Type, e.TurnID)
		}
	}
	if events[1].ToolCallID != events[2].ToolCallID {
		t.Error("tool_call and tool_result must share ToolCallID")
	}
}

func TestAgentEvent_JSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	original := AgentEvent{
		Version:    1,
		Type:       EventToolCall,
		Time:       now,
		Sequence:   5,
		SessionID:  "s1",
		TurnID:     "t1",
		ToolCallID: "c1",
		ToolName:   "compute",
		Data:       MustMarshalPayload(ToolCallPayload{Name: "compute", Arguments: `{"values":[1,2,3]}`}),
		Metadata:   map[string]any{"seq": float64(5)},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded AgentEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.Type != original.Type {
		t.Errorf("Type = %v, want %v", decoded.Type, original.Type)
	}
	if decoded.ToolCallID != original.ToolCallID {
		t.Errorf("ToolCallID = %q, want %q", decoded.ToolCallID, original.ToolCallID)
	}

	var payload ToolCallPayload
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("payload unmarshal error: %v", err)
	}
	if payload.Name != "compute" {
		t.Errorf("payload.Name = %q, want compute", payload.Name)
	}
}

func TestToolResultPayload_Struct(t *testing.T) {
	payload := ToolResultPayload{Status: "success", Message: "6"}
	if payload.Status != "success" {
		t.Errorf("Status = %q, want success", payload.Status)
	}
	if payload.Message != "6" {
		t.Errorf("Message = %q, want 6", payload.Message)
	}
}

func TestErrorPayload_Struct(t *testing.T) {
	payload := ErrorPayload{Code: "sandbox_timeout", Message: "execution exceeded wall clock limit"}
	if payload.Code != "sandbox_timeout" {
		t.Errorf("Code = %q, want sandbox_timeout", payload.Code)
	}
}

func TestContextCompressedPayload_Struct(t *testing.T) {
	payload := ContextCompressedPayload{
		ArchivedCount:  42,
		SummaryChars:   900,
		ArchiveKey:     "archive/20260730T000000.jsonl",
		TriggerPercent: 80,
	}
	if payload.ArchivedCount != 42 {
		t.Errorf("ArchivedCount = %d, want 42", payload.ArchivedCount)
	}
	if payload.TriggerPercent != 80 {
		t.Errorf("TriggerPercent = %d, want 80", payload.TriggerPercent)
	}
}

func TestMustMarshalPayload_PanicsOnUnmarshalable(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for unmarshalable payload")
		}
	}()
	MustMarshalPayload(make(chan int))
}
