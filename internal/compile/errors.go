package compile

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Message is one esbuild diagnostic.
type Message struct {
	File   string
	Line   int
	Column int
	Text   string
}

func (m Message) String() string {
	if m.File == "" {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.File, m.Line, m.Column, m.Text)
}

// Error reports a failed esbuild stage with its diagnostics.
type Error struct {
	Stage    string
	Messages []Message
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return e.Stage + " build failed"
	}
	msg := fmt.Sprintf("%s build failed: %s", e.Stage, e.Messages[0])
	if n := len(e.Messages) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

func convertMessages(msgs []api.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		cm := Message{Text: m.Text}
		if m.Location != nil {
			cm.File = m.Location.File
			cm.Line = m.Location.Line
			cm.Column = m.Location.Column
		}
		out = append(out, cm)
	}
	return out
}

func stageError(stage string, msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return &Error{Stage: stage, Messages: convertMessages(msgs)}
}

func warningStrings(msgs []api.Message) []string {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]string, 0, len(msgs))
	for _, m := range convertMessages(msgs) {
		out = append(out, strings.TrimSpace(m.String()))
	}
	return out
}
