package models

import (
	"testing"
	"time"
)

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleTool, "tool"},
		{RoleSystem, "system"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestConversationMessage_RoleHelpers(t *testing.T) {
	user := ConversationMessage{Role: RoleUser}
	if !user.IsUser() || user.IsAssistant() || user.IsTool() {
		t.Errorf("user message role helpers wrong: %+v", user)
	}

	assistant := ConversationMessage{Role: RoleAssistant, ToolCalls: []ToolCallRequest{
		{ID: "c1", Name: "compute", Arguments: `{"values":[1,2,3]}`},
	}}
	if !assistant.IsAssistant() {
		t.Error("expected IsAssistant true")
	}
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "c1" {
		t.Errorf("ToolCalls = %+v", assistant.ToolCalls)
	}

	tool := ConversationMessage{Role: RoleTool, ToolCallID: "c1", Content: "6"}
	if !tool.IsTool() {
		t.Error("expected IsTool true")
	}
	if tool.ToolCallID != assistant.ToolCalls[0].ID {
		t.Error("tool message ToolCallID must match the assistant ToolCalls entry")
	}
}

func TestConversationMessage_EventDerivedEntry(t *testing.T) {
	now := time.Now()
	msg := ConversationMessage{
		ID:        "m1",
		SessionID: "s1",
		Role:      RoleAssistant,
		EventType: EventChart,
		Payload:   MustMarshalPayload(ChartPayload{Plotly: []byte(`{"data":[]}`)}),
		CreatedAt: now,
	}

	if msg.EventType != EventChart {
		t.Errorf("EventType = %v, want %v", msg.EventType, EventChart)
	}
	if len(msg.Payload) == 0 {
		t.Error("expected non-empty Payload for an event-derived entry")
	}
}

func TestToolCallRequest_Struct(t *testing.T) {
	req := ToolCallRequest{ID: "c1", Name: "web_search", Arguments: `{"query":"test"}`}
	if req.ID != "c1" {
		t.Errorf("ID = %q, want c1", req.ID)
	}
	if req.Name != "web_search" {
		t.Errorf("Name = %q, want web_search", req.Name)
	}
}
