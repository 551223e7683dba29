package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/labconsole/internal/model"
)

type staticSessions struct {
	sess model.Session
	err  error
}

func (s staticSessions) Session(context.Context) (model.Session, error) {
	return s.sess, s.err
}

var testSession = staticSessions{sess: model.Session{
	Token:   "test-token",
	Profile: model.UserProfile{Username: "ana"},
}}

func newTestClient(url string) *Client {
	return NewClient(url, testSession, 5*time.Second, 2)
}

func TestListNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notifications/" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Token test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[
			{"id":"1","title":"Scan done","message":"pc-01","type":"info","timestamp":"2024-05-01T10:00:00.123Z","read":false,"archived":false},
			{"id":"2","title":"Scan failed","message":"pc-02","type":"error","timestamp":"2024-05-01T09:00:00Z","read":true,"archived":false},
			"garbage"
		]`)) //nolint:errcheck
	}))
	defer srv.Close()

	list, err := newTestClient(srv.URL).ListNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, 1, list.Dropped)
	assert.Equal(t, "1", list.Items[0].ID)
	assert.Equal(t, model.NotificationError, list.Items[1].Type)
	assert.True(t, list.Items[1].Read)
}

func TestListNotifications_NotAnArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}}) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListNotifications(context.Background())
	require.Error(t, err)
	assert.True(t, IsMalformedPayload(err))
	assert.False(t, IsAuthError(err))
}

func TestListNotifications_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid token."}) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListNotifications(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Contains(t, err.Error(), "Invalid token.")
}

func TestMutations_Paths(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()
	require.NoError(t, c.MarkRead(ctx, "7"))
	require.NoError(t, c.Archive(ctx, "7"))
	require.NoError(t, c.Unarchive(ctx, "a b"))
	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, []string{
		"POST /api/notifications/7/mark_read/",
		"POST /api/notifications/7/archive/",
		"POST /api/notifications/a%20b/unarchive/",
		"POST /api/notifications/clear/",
	}, got)
}

func TestMutation_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"database unavailable"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).MarkRead(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.False(t, IsAuthError(err))
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestRateLimitRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).Archive(context.Background(), "1"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Clear(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
}

func TestRateLimitBackOffWithoutRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	err := c.MarkRead(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.Contains(t, err.Error(), "max retries (2)")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRateLimitCancelledWhileWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := newTestClient(srv.URL).Clear(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	_, ok := retryAfter(resp)
	assert.False(t, ok)

	resp.Header.Set("Retry-After", "3")
	d, ok := retryAfter(resp)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	resp.Header.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	_, ok = retryAfter(resp)
	assert.False(t, ok)

	b := rateLimitBackOff()
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
}

func TestNoSession_SendsNothing(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticSessions{err: model.ErrNoSession}, time.Second, 0)
	_, err := c.ListNotifications(context.Background())
	assert.True(t, IsAuthError(err))
	assert.True(t, errors.Is(err, model.ErrNoSession))

	c = NewClient(srv.URL, staticSessions{sess: model.Session{Token: "only-token"}}, time.Second, 0)
	assert.True(t, IsAuthError(c.MarkRead(context.Background(), "1")))

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
