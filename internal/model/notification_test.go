package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotificationType(t *testing.T) {
	tests := []struct {
		in   string
		want NotificationType
	}{
		{"info", NotificationInfo},
		{"success", NotificationSuccess},
		{"warning", NotificationWarning},
		{"error", NotificationError},
		{"ERROR", NotificationError},
		{" warning ", NotificationWarning},
		{"", NotificationInfo},
		{"critical", NotificationInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseNotificationType(tt.in), "input %q", tt.in)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	for _, in := range []string{
		"2024-03-05T14:07:09Z",
		"2024-03-05T14:07:09+00:00",
		"2024-03-05T14:07:09",
		"2024-03-05 14:07:09",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(want), "%s parsed as %s", in, got)
	}

	got, err := ParseTimestamp("2024-03-05T14:07:09.123456Z")
	require.NoError(t, err)
	assert.Equal(t, 123456000, got.Nanosecond())

	got, err = ParseTimestamp("2024-03-05T14:07:09.5")
	require.NoError(t, err)
	assert.Equal(t, 500000000, got.Nanosecond())

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestNotificationUnmarshal(t *testing.T) {
	var n Notification
	err := json.Unmarshal([]byte(`{
		"id": "42",
		"title": "Scan finished",
		"message": "lab-pc-07 scanned",
		"type": "success",
		"timestamp": "2024-03-05T14:07:09.811Z",
		"read": true,
		"archived": false
	}`), &n)
	require.NoError(t, err)

	assert.Equal(t, "42", n.ID)
	assert.Equal(t, "Scan finished", n.Title)
	assert.Equal(t, "lab-pc-07 scanned", n.Message)
	assert.Equal(t, NotificationSuccess, n.Type)
	assert.Equal(t, 2024, n.Timestamp.Year())
	assert.True(t, n.Read)
	assert.False(t, n.Archived)
}

func TestNotificationUnmarshal_Fallbacks(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(`{"id": 17, "type": "mystery", "timestamp": "not a date"}`), &n))

	assert.Equal(t, "17", n.ID)
	assert.Equal(t, NotificationInfo, n.Type)
	assert.True(t, n.Timestamp.IsZero())
	assert.False(t, n.Read)
	assert.False(t, n.Archived)
	assert.Empty(t, n.Title)
}

func TestNotificationUnmarshal_WrongFieldTypesDefault(t *testing.T) {
	payload := `{"id": "9", "title": 3, "message": ["x"], "type": 5, "timestamp": 1717228800, "read": "yes", "archived": 1}`

	var n Notification
	require.NoError(t, json.Unmarshal([]byte(payload), &n))

	assert.Equal(t, "9", n.ID)
	assert.Empty(t, n.Title)
	assert.Empty(t, n.Message)
	assert.Equal(t, NotificationInfo, n.Type)
	assert.True(t, n.Timestamp.IsZero())
	assert.False(t, n.Read)
	assert.False(t, n.Archived)

	var kept Notification
	require.NoError(t, json.Unmarshal([]byte(`{"id": "1", "type": "warning", "read": true, "archived": null}`), &kept))
	assert.Equal(t, NotificationWarning, kept.Type)
	assert.True(t, kept.Read)
	assert.False(t, kept.Archived)
}

func TestNotificationUnmarshal_RejectsNonObject(t *testing.T) {
	for _, in := range []string{`"hello"`, `[1,2]`, `12`, `null`} {
		var n Notification
		assert.Error(t, json.Unmarshal([]byte(in), &n), in)
	}

	var n Notification
	assert.Error(t, json.Unmarshal([]byte(`{"id": {"nested": true}}`), &n))
}

func TestNotificationNormalize(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	n := Notification{Title: "x"}.Normalize(now)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, now, n.Timestamp)
	assert.Equal(t, NotificationInfo, n.Type)

	kept := Notification{ID: "a", Type: NotificationError, Timestamp: now.Add(-time.Hour)}.Normalize(now)
	assert.Equal(t, "a", kept.ID)
	assert.Equal(t, NotificationError, kept.Type)
	assert.Equal(t, now.Add(-time.Hour), kept.Timestamp)
}

func TestNotificationUnread(t *testing.T) {
	assert.True(t, Notification{}.Unread())
	assert.False(t, Notification{Read: true}.Unread())
	assert.False(t, Notification{Archived: true}.Unread())
	assert.False(t, Notification{Read: true, Archived: true}.Unread())
}

func TestSessionValid(t *testing.T) {
	assert.False(t, Session{}.Valid())
	assert.False(t, Session{Token: "t"}.Valid())
	assert.False(t, Session{Profile: UserProfile{Username: "ana"}}.Valid())
	assert.True(t, Session{Token: "t", Profile: UserProfile{Username: "ana"}}.Valid())
}
