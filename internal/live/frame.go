package live

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nhle/labconsole/internal/model"
)

// MessageTypeNotification is the only envelope type this client acts on.
const MessageTypeNotification = "notification.message"

// ErrIgnoredFrame is returned for well-formed frames of another type.
var ErrIgnoredFrame = errors.New("live: frame type not handled")

// MalformedMessageError describes a frame that could not be decoded or
// lacks the expected shape. The frame is dropped; the connection stays up.
type MalformedMessageError struct {
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed live message: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed live message: %s", e.Reason)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a MalformedMessageError.
func IsMalformed(err error) bool {
	var m *MalformedMessageError
	return errors.As(err, &m)
}

type envelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// DecodeFrame decodes a text frame of the shape
// {"type": "notification.message", "message": {...}}. The returned
// notification is not yet normalized.
func DecodeFrame(data []byte) (model.Notification, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Notification{}, &MalformedMessageError{Reason: "invalid JSON", Err: err}
	}

	if env.Type != MessageTypeNotification {
		return model.Notification{}, ErrIgnoredFrame
	}

	msg := bytes.TrimSpace(env.Message)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return model.Notification{}, &MalformedMessageError{Reason: "missing message"}
	}

	var n model.Notification
	if err := json.Unmarshal(msg, &n); err != nil {
		return model.Notification{}, &MalformedMessageError{Reason: "invalid notification", Err: err}
	}
	return n, nil
}
