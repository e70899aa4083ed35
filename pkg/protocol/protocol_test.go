package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"ask", ModeAsk, false},
		{"rag", ModeRAG, false},
		{"agent", ModeAgent, false},
		{"", "", true},
		{"chat", "", true},
		{"RAG", "", true},
		{"ask ", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestMode_Valid(t *testing.T) {
	for _, mode := range []Mode{ModeAsk, ModeRAG, ModeAgent} {
		if !mode.Valid() {
			t.Errorf("%v should be valid", mode)
		}
	}
	for _, mode := range []Mode{"", "chat", "Ask"} {
		if mode.Valid() {
			t.Errorf("%v should not be valid", mode)
		}
	}
}

func TestCreateMessages(t *testing.T) {
	user := CreateUserMessage("What is metformin?")
	if user.Role != RoleUser || user.Content != "What is metformin?" {
		t.Errorf("CreateUserMessage() = %+v", user)
	}

	assistant := CreateAssistantMessage("Metformin is a biguanide.")
	if assistant.Role != RoleAssistant {
		t.Errorf("CreateAssistantMessage() role = %v", assistant.Role)
	}
}

func TestRequest_JSONShape(t *testing.T) {
	raw := `{
		"message": "What interacts with warfarin?",
		"mode": "rag",
		"history": [
			{"role": "user", "content": "Hi"},
			{"role": "assistant", "content": "Hello, how can I help?"}
		],
		"stream": true
	}`

	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}

	if req.Message != "What interacts with warfarin?" {
		t.Errorf("message = %q", req.Message)
	}
	if req.Mode != ModeRAG {
		t.Errorf("mode = %v", req.Mode)
	}
	if len(req.History) != 2 {
		t.Fatalf("history length = %d", len(req.History))
	}
	if req.History[1].Role != RoleAssistant {
		t.Errorf("history[1].role = %v", req.History[1].Role)
	}
	if !req.Stream {
		t.Error("stream flag lost")
	}
}

func TestResponse_JSONShape(t *testing.T) {
	resp := Response{
		Text: "Aspirin increases bleeding risk with warfarin.",
		Mode: ModeRAG,
		Sources: []Source{
			{ID: "doc-1", Title: "Warfarin", Content: "Warfarin is...", Score: 0.92},
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded["response"] != resp.Text {
		t.Errorf(`"response" field = %v`, decoded["response"])
	}
	if decoded["mode"] != "rag" {
		t.Errorf(`"mode" field = %v`, decoded["mode"])
	}
	if _, ok := decoded["sources"]; !ok {
		t.Error(`"sources" field missing`)
	}
	if _, ok := decoded["tool_calls"]; ok {
		t.Error(`empty "tool_calls" should be omitted`)
	}
}

func TestActionTraceEntry_JSONShape(t *testing.T) {
	entry := ActionTraceEntry{
		Action:     "pubmed_search",
		Parameters: map[string]any{"query": "metformin lactic acidosis"},
		Result:     "3 articles found",
		Success:    true,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal entry: %v", err)
	}

	s := string(data)
	for _, want := range []string{`"action":"pubmed_search"`, `"success":true`, `"result":"3 articles found"`} {
		if !strings.Contains(s, want) {
			t.Errorf("marshaled entry missing %s: %s", want, s)
		}
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("successful entry should omit error field: %s", s)
	}

	failed := ActionTraceEntry{Action: "neo4j_query", Error: "no active server", Success: false}
	data, err = json.Marshal(failed)
	if err != nil {
		t.Fatalf("marshal failed entry: %v", err)
	}
	if !strings.Contains(string(data), `"success":false`) {
		t.Errorf("failed entry should carry success=false: %s", data)
	}
}

func TestEventConstructors(t *testing.T) {
	content := ContentEvent("hello")
	if content.Type != StreamEventContent || content.Content != "hello" {
		t.Errorf("ContentEvent() = %+v", content)
	}

	sources := SourcesEvent([]Source{{ID: "a"}})
	if sources.Type != StreamEventSources || len(sources.Sources) != 1 {
		t.Errorf("SourcesEvent() = %+v", sources)
	}

	action := ActionEvent(ActionTraceEntry{Action: "web_search", Success: true})
	if action.Type != StreamEventAction || action.Action == nil || action.Action.Action != "web_search" {
		t.Errorf("ActionEvent() = %+v", action)
	}

	errEvent := ErrorEvent("retrieval failed")
	if errEvent.Type != StreamEventError || errEvent.Error != "retrieval failed" {
		t.Errorf("ErrorEvent() = %+v", errEvent)
	}

	done := DoneEvent(nil)
	if done.Type != StreamEventDone || done.ToolCalls != nil {
		t.Errorf("DoneEvent(nil) = %+v", done)
	}

	doneWithTrace := DoneEvent([]ActionTraceEntry{{Action: "read_file"}})
	if len(doneWithTrace.ToolCalls) != 1 {
		t.Errorf("DoneEvent(trace) = %+v", doneWithTrace)
	}
}
