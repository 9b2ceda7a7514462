package llm

// DefaultMaxChatHistory bounds a conversation when nothing else is configured.
const DefaultMaxChatHistory = 10

// History is the ordered message log of one conversation. It keeps at
// most one leading system message and at most max messages in total,
// dropping the oldest turns first. It is not safe for concurrent use.
type History struct {
	max      int
	system   string
	messages []Message
}

func NewHistory(max int, systemPrompt string) *History {
	if max < 2 {
		max = 2
	}
	h := &History{max: max}
	h.SetSystemPrompt(systemPrompt)
	return h
}

func (h *History) Max() int {
	return h.max
}

func (h *History) SystemPrompt() string {
	return h.system
}

// SetSystemPrompt replaces the leading system entry, or inserts one when
// absent. An empty prompt removes it.
func (h *History) SetSystemPrompt(prompt string) {
	h.system = prompt
	if len(h.messages) > 0 && h.messages[0].Role == RoleSystem {
		if prompt == "" {
			h.messages = h.messages[1:]
			return
		}
		h.messages[0].Content = prompt
		return
	}
	if prompt == "" {
		return
	}
	h.messages = append([]Message{SystemMessage(prompt)}, h.messages...)
}

// Structure appends msgs, trims and returns a copy of the resulting
// history, ready to be sent. System messages in msgs replace the stored
// system prompt instead of being appended.
func (h *History) Structure(msgs ...Message) []Message {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			h.SetSystemPrompt(m.Content)
			continue
		}
		h.messages = append(h.messages, m)
	}
	h.trim()
	return h.Messages()
}

// Append records a single turn, typically the assistant reply.
func (h *History) Append(m Message) {
	h.Structure(m)
}

// Clear drops every turn, keeping only the system prompt.
func (h *History) Clear() {
	h.messages = nil
	if h.system != "" {
		h.messages = []Message{SystemMessage(h.system)}
	}
}

func (h *History) Len() int {
	return len(h.messages)
}

// Clone returns an independent copy, used to roll back a failed send.
func (h *History) Clone() *History {
	return &History{max: h.max, system: h.system, messages: h.Messages()}
}

// Messages returns a copy of the history.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) trim() {
	turns := h.messages
	if len(turns) > 0 && turns[0].Role == RoleSystem {
		turns = turns[1:]
	}

	limit := h.max
	if h.system != "" {
		limit--
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	out := make([]Message, 0, len(turns)+1)
	if h.system != "" {
		out = append(out, SystemMessage(h.system))
	}
	h.messages = append(out, turns...)
}
