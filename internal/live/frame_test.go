package live

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/labconsole/internal/model"
)

func TestDecodeFrame_Notification(t *testing.T) {
	n, err := DecodeFrame([]byte(`{"type":"notification.message","message":{"id":"3","title":"Disk low","message":"pc-11","type":"warning","timestamp":"2024-06-01T08:00:00.5Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, "3", n.ID)
	assert.Equal(t, "Disk low", n.Title)
	assert.Equal(t, model.NotificationWarning, n.Type)
	assert.False(t, n.Read)
}

func TestDecodeFrame_MissingTypeDefaultsToInfo(t *testing.T) {
	n, err := DecodeFrame([]byte(`{"type":"notification.message","message":{"id":"9","title":"t"}}`))
	require.NoError(t, err)
	assert.Equal(t, model.NotificationInfo, n.Type)
}

func TestDecodeFrame_OtherTypeIgnored(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"type":"scan.progress","message":{"pct":40}}`))
	assert.True(t, errors.Is(err, ErrIgnoredFrame))
	assert.False(t, IsMalformed(err))
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"type":"notification.message"}`,
		`{"type":"notification.message","message":null}`,
		`{"type":"notification.message","message":"hello"}`,
		`[1,2,3]`,
	} {
		_, err := DecodeFrame([]byte(in))
		assert.True(t, IsMalformed(err), "input %s: %v", in, err)
	}
}
