package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nhle/labconsole/internal/model"
)

// SessionProvider yields the current session artifacts.
type SessionProvider interface {
	Session(ctx context.Context) (model.Session, error)
}

const notificationsPath = "/api/notifications/"

// NotificationList is the decoded result of a snapshot fetch.
type NotificationList struct {
	// Items are the notifications in the order the backend returned them.
	Items []model.Notification

	// Dropped counts array elements that were not notification objects.
	Dropped int
}

// Client is a thin HTTP client for the console notification REST API.
// It handles token authentication, JSON decoding, and retry with
// exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	sessions   SessionProvider
	httpClient *http.Client
	maxRetries int

	// newBackOff paces retries of rate-limited requests.
	newBackOff func() backoff.BackOff
}

// NewClient creates a new API client. The baseURL is the scheme and host
// of the backend (e.g., https://lab.example.org); the token is read from
// sessions before every request so that a logout takes effect at once.
func NewClient(baseURL string, sessions SessionProvider, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: sessions,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		newBackOff: rateLimitBackOff,
	}
}

// rateLimitBackOff waits 1s, 2s, 4s, ... up to 30s between attempts.
func rateLimitBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListNotifications fetches the full notification list for the user.
// A body that is not a JSON array yields a MalformedPayloadError.
func (c *Client) ListNotifications(ctx context.Context) (*NotificationList, error) {
	body, err := c.do(ctx, http.MethodGet, notificationsPath)
	if err != nil {
		return nil, fmt.Errorf("api.ListNotifications: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("api.ListNotifications: %w", &MalformedPayloadError{
			Path:   notificationsPath,
			Reason: "expected a JSON array",
		})
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("api.ListNotifications: %w", &MalformedPayloadError{
			Path:   notificationsPath,
			Reason: err.Error(),
		})
	}

	list := &NotificationList{Items: make([]model.Notification, 0, len(raw))}
	for _, elem := range raw {
		var n model.Notification
		if err := json.Unmarshal(elem, &n); err != nil {
			list.Dropped++
			continue
		}
		list.Items = append(list.Items, n)
	}
	return list, nil
}

// MarkRead marks one notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodPost, itemPath(id, "mark_read")); err != nil {
		return fmt.Errorf("api.MarkRead: %w", err)
	}
	return nil
}

// Archive archives one notification.
func (c *Client) Archive(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodPost, itemPath(id, "archive")); err != nil {
		return fmt.Errorf("api.Archive: %w", err)
	}
	return nil
}

// Unarchive restores one archived notification.
func (c *Client) Unarchive(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodPost, itemPath(id, "unarchive")); err != nil {
		return fmt.Errorf("api.Unarchive: %w", err)
	}
	return nil
}

// Clear deletes all notifications of the user.
func (c *Client) Clear(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodPost, notificationsPath+"clear/"); err != nil {
		return fmt.Errorf("api.Clear: %w", err)
	}
	return nil
}

func itemPath(id, action string) string {
	return notificationsPath + url.PathEscape(id) + "/" + action + "/"
}

// do builds the request, handles auth and rate limiting with
// exponential backoff, and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	sess, err := c.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.Valid() {
		return nil, model.ErrNoSession
	}

	endpoint := c.baseURL + path

	retries := c.maxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(retries)), ctx)
	policy.Reset()

	for {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+sess.Token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateErr := &HTTPError{StatusCode: resp.StatusCode, Message: "rate limited"}
			wait := policy.NextBackOff()
			if wait == backoff.Stop {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("max retries (%d) exceeded on %s %s: %w", retries, method, path, rateErr)
			}
			if after, ok := retryAfter(resp); ok {
				wait = after
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{Message: errorMessage(respBody, "credentials rejected")}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &HTTPError{
				StatusCode: resp.StatusCode,
				Message:    errorMessage(respBody, http.StatusText(resp.StatusCode)),
			}
		}

		return respBody, nil
	}
}

// errorMessage extracts {"detail": ...} or {"error": ...} from an error
// body, falling back to the (truncated) raw text.
func errorMessage(body []byte, fallback string) string {
	var apiErr struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		if apiErr.Error != "" {
			return apiErr.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fallback
	}
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
