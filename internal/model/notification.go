package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationType determines the icon and styling a notification gets
// in the consoles that render it.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// ParseNotificationType maps a wire value onto a known type. Anything
// unrecognized, including the empty string, becomes NotificationInfo.
func ParseNotificationType(s string) NotificationType {
	switch t := NotificationType(strings.ToLower(strings.TrimSpace(s))); t {
	case NotificationInfo, NotificationSuccess, NotificationWarning, NotificationError:
		return t
	default:
		return NotificationInfo
	}
}

// Notification is a single user-facing alert record.
type Notification struct {
	// ID is assigned by the backend. Locally synthesized notifications
	// carry a client-generated uuid instead.
	ID string `json:"id"`

	// Title is the short display string.
	Title string `json:"title"`

	// Message is the body text.
	Message string `json:"message"`

	// Type selects the severity styling.
	Type NotificationType `json:"type"`

	// Timestamp is when the backend created the notification.
	Timestamp time.Time `json:"timestamp"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// Archived hides the notification from the inbox. It is independent
	// of Read.
	Archived bool `json:"archived"`
}

// Unread reports whether the notification counts towards the unread badge.
func (n Notification) Unread() bool {
	return !n.Read && !n.Archived
}

// Normalize fills the fallbacks for fields the payload left out: a
// client-side id, the given time as timestamp, and the info type.
func (n Notification) Normalize(now time.Time) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = now.UTC()
	}
	n.Type = ParseNotificationType(string(n.Type))
	return n
}

// notificationWire mirrors the JSON shape with every field raw so that a
// field of the wrong JSON type can be defaulted instead of failing the
// whole record.
type notificationWire struct {
	ID        json.RawMessage `json:"id"`
	Title     json.RawMessage `json:"title"`
	Message   json.RawMessage `json:"message"`
	Type      json.RawMessage `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Read      json.RawMessage `json:"read"`
	Archived  json.RawMessage `json:"archived"`
}

// UnmarshalJSON decodes a notification object. Numeric ids are kept as
// their decimal text. Every other field falls back to its default when
// it is missing or of the wrong JSON type: unknown types become info and
// an unparseable timestamp is left zero for Normalize to fill. Only
// non-objects and ids that are neither strings nor numbers are errors.
func (n *Notification) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("notification: expected JSON object")
	}

	var w notificationWire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return fmt.Errorf("notification: %w", err)
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return err
	}

	out := Notification{
		ID:       id,
		Title:    rawString(w.Title),
		Message:  rawString(w.Message),
		Type:     ParseNotificationType(rawString(w.Type)),
		Read:     rawBool(w.Read),
		Archived: rawBool(w.Archived),
	}
	if ts := rawString(w.Timestamp); ts != "" {
		if parsed, err := ParseTimestamp(ts); err == nil {
			out.Timestamp = parsed
		}
	}

	*n = out
	return nil
}

// rawString returns raw as a string, or "" when it is not a JSON string.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// rawBool returns raw as a bool, or false when it is not a JSON bool.
func rawBool(raw json.RawMessage) bool {
	var b bool
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return false
	}
	return b
}

// decodeID accepts a string or a JSON number.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), nil
	}

	return "", fmt.Errorf("notification: id must be a string or number, got %s", raw)
}

// timestampLayouts are tried in order. RFC3339Nano already accepts an
// optional fractional-seconds suffix; the zone-less variants are what
// some serializers emit for naive datetimes and are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp as sent by the backend.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
