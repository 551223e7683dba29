package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/labconsole/internal/api"
	"github.com/nhle/labconsole/internal/metrics"
	"github.com/nhle/labconsole/internal/model"
)

type staticSessions struct {
	sess model.Session
	err  error
}

func (s staticSessions) Session(context.Context) (model.Session, error) {
	return s.sess, s.err
}

var validSession = staticSessions{sess: model.Session{
	Token:   "tok",
	Profile: model.UserProfile{Username: "ana"},
}}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newPushServer starts a WebSocket server that hands each authorized
// connection, numbered from 1, to handle.
func newPushServer(t *testing.T, handle func(n int, conn *websocket.Conn)) (string, *int32) {
	t.Helper()
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&conns, 1))
		if r.Header.Get("Authorization") != "Token tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(n, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications/", &conns
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	// Wait for the client to answer the close.
	_, _, _ = conn.ReadMessage()
}

func TestStream_DeliversFramesInOrder(t *testing.T) {
	url, _ := newPushServer(t, func(_ int, conn *websocket.Conn) {
		for _, f := range []string{"a", "b", "c"} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x1})
		closeNormally(conn)
	})

	var states []State
	m := metrics.New(prometheus.NewRegistry())
	s := NewStream(Config{
		URL:           url,
		Sessions:      validSession,
		OnStateChange: func(st State) { states = append(states, st) },
		Metrics:       m,
	})

	var frames []string
	err := s.Run(context.Background(), func(b []byte) { frames = append(frames, string(b)) })
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, frames)
	assert.Equal(t, []State{Connecting, Connected, Disconnected}, states)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dials))
}

func TestStream_CancelClosesConnection(t *testing.T) {
	serverSawClose := make(chan struct{})
	url, _ := newPushServer(t, func(_ int, conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(serverSawClose)
				return
			}
		}
	})

	connected := make(chan struct{})
	var once sync.Once
	s := NewStream(Config{
		URL:      url,
		Sessions: validSession,
		OnStateChange: func(st State) {
			if st == Connected {
				once.Do(func() { close(connected) })
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func([]byte) {}) }()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never connected")
	}

	// A second Run on the same stream is refused.
	assert.True(t, errors.Is(s.Run(ctx, func([]byte) {}), ErrAlreadyRunning))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	select {
	case <-serverSawClose:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe the close")
	}
	assert.Equal(t, Disconnected, s.State())
}

func TestStream_UnauthorizedHandshakeIsNotRetried(t *testing.T) {
	url, conns := newPushServer(t, func(int, *websocket.Conn) {})

	s := NewStream(Config{
		URL:      url,
		Sessions: staticSessions{sess: model.Session{Token: "wrong", Profile: model.UserProfile{Username: "ana"}}},
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(time.Millisecond)
		},
	})

	err := s.Run(context.Background(), func([]byte) {})
	require.Error(t, err)
	assert.True(t, api.IsAuthError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(conns))
}

func TestStream_NoSessionNeverDials(t *testing.T) {
	url, conns := newPushServer(t, func(int, *websocket.Conn) {})

	s := NewStream(Config{URL: url, Sessions: staticSessions{err: model.ErrNoSession}})
	err := s.Run(context.Background(), func([]byte) {})
	assert.True(t, errors.Is(err, model.ErrNoSession))
	assert.Equal(t, int32(0), atomic.LoadInt32(conns))
	assert.Equal(t, Disconnected, s.State())
}

func TestStream_DropIsTerminalByDefault(t *testing.T) {
	url, conns := newPushServer(t, func(_ int, conn *websocket.Conn) {
		conn.Close()
	})

	s := NewStream(Config{URL: url, Sessions: validSession})
	err := s.Run(context.Background(), func([]byte) {})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(conns))
}

func TestStream_ReconnectsWithBackOff(t *testing.T) {
	var mu sync.Mutex
	var token = "tok"
	url, conns := newPushServer(t, func(n int, conn *websocket.Conn) {
		switch n {
		case 1:
			// Drop without a close frame.
			conn.Close()
		case 2:
			_ = conn.WriteMessage(websocket.TextMessage, []byte("second"))
			mu.Lock()
			token = "revoked"
			mu.Unlock()
			closeNormally(conn)
		}
	})

	sessions := sessionFunc(func() model.Session {
		mu.Lock()
		defer mu.Unlock()
		return model.Session{Token: token, Profile: model.UserProfile{Username: "ana"}}
	})

	s := NewStream(Config{
		URL:      url,
		Sessions: sessions,
		NewBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 5)
		},
	})

	var frames []string
	err := s.Run(context.Background(), func(b []byte) { frames = append(frames, string(b)) })

	// The third handshake carries the revoked token and ends the run.
	require.Error(t, err)
	assert.True(t, api.IsAuthError(err))
	assert.Equal(t, []string{"second"}, frames)
	assert.Equal(t, int32(3), atomic.LoadInt32(conns))
}

type sessionFunc func() model.Session

func (f sessionFunc) Session(context.Context) (model.Session, error) {
	return f(), nil
}

func TestStateFeed_KeepsLatest(t *testing.T) {
	states, feed := StateFeed()

	feed(Connecting)
	feed(Connected)
	feed(Disconnected)

	select {
	case st := <-states:
		assert.Equal(t, Disconnected, st)
	default:
		t.Fatal("expected a state")
	}

	select {
	case st := <-states:
		t.Fatalf("unexpected extra state %v", st)
	default:
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://localhost:8000", "/ws/notifications/", "ws://localhost:8000/ws/notifications/"},
		{"https://lab.example.org/", "/ws/notifications/", "wss://lab.example.org/ws/notifications/"},
		{"https://lab.example.org/console?x=1", "/ws/n/", "wss://lab.example.org/ws/n/"},
	}
	for _, tt := range tests {
		got, err := URL(tt.base, tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := URL("localhost:8000", "/ws/")
	assert.Error(t, err)
	_, err = URL("ftp://host", "/ws/")
	assert.Error(t, err)
}

func TestNewBackOffFactory(t *testing.T) {
	off := NewBackOffFactory(model.ReconnectConfig{})()
	assert.Equal(t, backoff.Stop, off.NextBackOff())

	on := NewBackOffFactory(model.ReconnectConfig{
		Enabled:           true,
		InitialIntervalMs: 100,
		MaxIntervalSec:    1,
		MaxElapsedSec:     60,
	})()
	first := on.NextBackOff()
	assert.NotEqual(t, backoff.Stop, first)
	assert.LessOrEqual(t, first, 150*time.Millisecond)
}
