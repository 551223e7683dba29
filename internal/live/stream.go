package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/nhle/labconsole/internal/api"
	"github.com/nhle/labconsole/internal/logger"
	"github.com/nhle/labconsole/internal/metrics"
	"github.com/nhle/labconsole/internal/model"
)

const logModule = "live"

// ErrAlreadyRunning is returned when Run is called on a stream that is
// still running; a stream owns at most one connection.
var ErrAlreadyRunning = errors.New("live: stream already running")

// closeGrace bounds how long the close handshake may take on shutdown.
const closeGrace = time.Second

// State is the live channel connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// StateFeed returns a channel that holds only the most recent state, and
// the callback that feeds it for use as Config.OnStateChange. A slow
// reader skips intermediate states but always sees the last one.
func StateFeed() (<-chan State, func(State)) {
	ch := make(chan State, 1)
	var mu sync.Mutex
	return ch, func(st State) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config wires a Stream.
type Config struct {
	// URL is the ws:// or wss:// address of the notification channel.
	URL string

	// Sessions supplies the token sent with the handshake.
	Sessions api.SessionProvider

	// Dialer defaults to websocket.DefaultDialer.
	Dialer Dialer

	// NewBackOff returns the reconnect policy for one Run. Nil means a
	// dropped connection is terminal.
	NewBackOff func() backoff.BackOff

	// OnStateChange, when set, is called after every state transition.
	OnStateChange func(State)

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Stream maintains a single live connection and delivers its text frames
// in arrival order.
type Stream struct {
	cfg     Config
	state   atomic.Int32
	running atomic.Bool
}

// NewStream creates a stream in the Disconnected state.
func NewStream(cfg Config) *Stream {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Stream{cfg: cfg}
}

// State returns the current connection state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ConnectionState.Set(float64(st))
	}
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(st)
	}
}

// Run connects and calls onFrame for each inbound text frame until ctx is
// cancelled, in which case it returns nil. When the connection drops the
// reconnect policy decides whether to dial again; once it gives up the
// last connection error is returned. Auth failures are never retried.
func (s *Stream) Run(ctx context.Context, onFrame func([]byte)) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	b := s.cfg.NewBackOff()
	b.Reset()

	for {
		connected, err := s.runOnce(ctx, onFrame)
		if ctx.Err() != nil {
			return nil
		}
		if api.IsAuthError(err) {
			s.cfg.Logger.Debug(logModule, "live channel not authorized", map[string]interface{}{
				"error": err,
			})
			return err
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			s.cfg.Logger.Info(logModule, "live channel closed", map[string]interface{}{
				"error": err,
			})
			return err
		}

		s.cfg.Logger.Warn(logModule, "live channel dropped, reconnecting", map[string]interface{}{
			"error": err,
			"wait":  wait.String(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runOnce dials and pumps frames until the connection ends. connected
// reports whether the handshake succeeded.
func (s *Stream) runOnce(ctx context.Context, onFrame func([]byte)) (connected bool, err error) {
	sess, err := s.cfg.Sessions.Session(ctx)
	if err != nil {
		return false, err
	}
	if !sess.Valid() {
		return false, model.ErrNoSession
	}

	s.setState(Connecting)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Dials.Inc()
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+sess.Token)

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.setState(Disconnected)
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, &api.AuthError{Message: "live channel handshake rejected"}
		}
		return false, fmt.Errorf("dialing %s: %w", s.cfg.URL, err)
	}

	s.setState(Connected)
	s.cfg.Logger.Info(logModule, "live channel connected", map[string]interface{}{"url": s.cfg.URL})

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
		s.setState(Disconnected)
	}()

	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
			conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, nil
			}
			return true, fmt.Errorf("reading live frame: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onFrame(data)
	}
}

// URL derives the live channel address on the same host as baseURL,
// upgrading to wss when the backend is served over TLS.
func URL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("base url %q: unsupported scheme %q", baseURL, u.Scheme)
	}

	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// NewBackOffFactory turns the reconnect settings into a policy factory.
// A disabled policy never reconnects.
func NewBackOffFactory(cfg model.ReconnectConfig) func() backoff.BackOff {
	if !cfg.Enabled {
		return func() backoff.BackOff { return &backoff.StopBackOff{} }
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		if d := cfg.InitialInterval(); d > 0 {
			b.InitialInterval = d
		}
		if d := cfg.MaxInterval(); d > 0 {
			b.MaxInterval = d
		}
		b.MaxElapsedTime = cfg.MaxElapsed()
		return b
	}
}
