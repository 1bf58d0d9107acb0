package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var (
	// timeout is the timeout for webhook request. Default to 10 seconds.
	timeout = 10 * time.Second
)

// SecurityEvent is posted when a user key is rotated or cannot be decrypted.
type SecurityEvent struct {
	Event     string `json:"event"`
	UserID    string `json:"userId"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
}

// NewSecurityEvent stamps event with the current time.
func NewSecurityEvent(event, userID string) *SecurityEvent {
	return &SecurityEvent{
		Event:     event,
		UserID:    userID,
		Service:   "embedcore",
		Timestamp: time.Now().Unix(),
	}
}

// Post posts the event to the webhook endpoint at url.
func Post(ctx context.Context, url string, event *SecurityEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal webhook request to %s", url)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return errors.Wrapf(err, "failed to construct webhook request to %s", url)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post webhook to %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("failed to post webhook %s, status code: %d, response body: %s", url, resp.StatusCode, b)
	}
	return nil
}

// PostAsync posts the event in a new goroutine and only logs failures.
func PostAsync(url string, event *SecurityEvent) {
	go func() {
		if err := Post(context.Background(), url, event); err != nil {
			slog.Warn("Failed to dispatch webhook asynchronously",
				slog.String("url", url),
				slog.String("event", event.Event),
				slog.Any("err", err))
		}
	}()
}
