package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Frames.WithLabelValues("accepted").Inc()
	m.Unread.Set(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("accepted")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Unread))

	// A second set on a separate registry must not collide.
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
