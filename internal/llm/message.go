package llm

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the recognized conversation roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Validate checks the role and that user/assistant turns carry content.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return &InvalidMessageError{Reason: fmt.Sprintf("unknown role %q", m.Role)}
	}
	if m.Role != RoleSystem && strings.TrimSpace(m.Content) == "" {
		return &InvalidMessageError{Reason: fmt.Sprintf("%s message has empty content", m.Role)}
	}
	return nil
}

// Input is what a caller hands to a conversational send: either plain
// text (one or more user turns) or fully formed turns. The zero value is
// empty and rejected by Normalize.
type Input struct {
	texts []string
	turns []Message
}

// Text builds an Input of one user turn per argument.
func Text(texts ...string) Input {
	return Input{texts: texts}
}

// Turns builds an Input of already structured messages.
func Turns(turns ...Message) Input {
	return Input{turns: turns}
}

// Normalize converts the input into messages. Texts become user turns.
// Empty input, empty text and turns failing Message.Validate are rejected.
func (in Input) Normalize() ([]Message, error) {
	if len(in.texts) > 0 && len(in.turns) > 0 {
		return nil, &InvalidMessageError{Reason: "input mixes text and turns"}
	}

	if len(in.texts) > 0 {
		msgs := make([]Message, 0, len(in.texts))
		for i, t := range in.texts {
			if strings.TrimSpace(t) == "" {
				return nil, &InvalidMessageError{Reason: fmt.Sprintf("text #%d is empty", i+1)}
			}
			msgs = append(msgs, UserMessage(t))
		}
		return msgs, nil
	}

	if len(in.turns) == 0 {
		return nil, &InvalidMessageError{Reason: "input is empty"}
	}

	msgs := make([]Message, len(in.turns))
	for i, m := range in.turns {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("turn #%d: %w", i+1, err)
		}
		msgs[i] = m
	}
	return msgs, nil
}

type StopReason string

const (
	StopReasonStop   StopReason = "stop"
	StopReasonLength StopReason = "length"
)

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
