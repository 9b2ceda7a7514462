package llm

import (
	"errors"
	"testing"
)

func TestInput_NormalizeText(t *testing.T) {
	msgs, err := Text("one", "two").Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Role != RoleUser {
			t.Errorf("expected user role, got %s", m.Role)
		}
	}
}

func TestInput_NormalizeTurns(t *testing.T) {
	msgs, err := Turns(SystemMessage("sys"), UserMessage("hi"), AssistantMessage("hello")).Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 || msgs[2].Role != RoleAssistant {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestInput_NormalizeRejects(t *testing.T) {
	tests := []struct {
		name  string
		input Input
	}{
		{"empty", Input{}},
		{"blank text", Text("  ")},
		{"unknown role", Turns(Message{Role: "tool", Content: "x"})},
		{"empty user turn", Turns(UserMessage(""))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.input.Normalize()
			var invalid *InvalidMessageError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidMessageError, got %v", err)
			}
		})
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := SplitSystem([]Message{
		SystemMessage("a"),
		UserMessage("q"),
		SystemMessage("b"),
	})
	if system != "a\n\nb" {
		t.Errorf("expected joined system prompt, got %q", system)
	}
	if len(turns) != 1 || turns[0].Content != "q" {
		t.Errorf("unexpected turns %+v", turns)
	}
}

func TestStatusError_Permanent(t *testing.T) {
	for code, want := range map[int]bool{400: true, 401: true, 404: true, 408: false, 429: false, 500: false, 503: false} {
		se := &StatusError{Provider: "p", StatusCode: code}
		if se.Permanent() != want {
			t.Errorf("status %d: expected permanent=%v", code, want)
		}
	}
	if !IsAuthError(&ProviderCallError{Err: &StatusError{StatusCode: 401}}) {
		t.Error("expected wrapped 401 to be an auth error")
	}
}
