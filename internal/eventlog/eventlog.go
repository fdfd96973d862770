// Package eventlog carries request/response log entries emitted while steps execute.
// Log calls never block the caller.
package eventlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"
)

// Logger is the logging collaborator used by the step executor.
type Logger interface {
	Log(kind Kind, label string, payload any)
}

// Entry is the serialized form shipped to sinks.
type Entry struct {
	ID       string    `json:"id"`
	Instance string    `json:"instance"`
	Kind     Kind      `json:"kind"`
	Label    string    `json:"label"`
	Payload  string    `json:"payload"`
	LoggedAt time.Time `json:"logged_at"`
}

// Serialize renders a payload as text. Strings and byte slices are taken verbatim,
// errors by message, everything else as JSON.
func Serialize(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}

// ZerologLogger writes entries to a zerolog logger at debug level, errors at warn.
type ZerologLogger struct {
	log zerolog.Logger
}

func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log}
}

func (z *ZerologLogger) Log(kind Kind, label string, payload any) {
	ev := z.log.Debug()
	if kind == KindError {
		ev = z.log.Warn()
	}
	ev.Str("kind", string(kind)).Str("label", label).Str("payload", Serialize(payload)).Msg("step event")
}

// Multi fans out every entry to each logger in order.
type Multi []Logger

func (m Multi) Log(kind Kind, label string, payload any) {
	for _, l := range m {
		if l != nil {
			l.Log(kind, label, payload)
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Log(Kind, string, any) {}
