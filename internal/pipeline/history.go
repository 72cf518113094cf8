package pipeline

import "askdata/internal/llm"

// History is the append-only conversation log threaded through repair
// steps. With returns a new log instead of mutating the receiver, so a
// retried attempt can never alias an earlier one.
type History []llm.Turn

// With returns a copy of the history with one turn appended.
func (h History) With(role llm.Role, text string) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, llm.Turn{Role: role, Text: text})
}

// Turns exposes the log in the shape the completion client consumes.
func (h History) Turns() []llm.Turn {
	return []llm.Turn(h)
}
