package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediarelay/internal/config"
)

const userAgent = "mediarelay/0.1"

// Service defines the operator alert surface.
type Service interface {
	NotifyJobFinished(ctx context.Context, contentID, sourceName string, outputBytes int64) error
	NotifyJobFailed(ctx context.Context, contentID, sourceName, status, reason string) error
	NotifySubtitleFailed(ctx context.Context, contentID, language, reason string) error
	NotifySweepForced(ctx context.Context, finished, failed int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func label(contentID, sourceName string) string {
	sourceName = strings.TrimSpace(sourceName)
	short := contentID
	if len(short) > 12 {
		short = short[:12]
	}
	if sourceName == "" {
		return short
	}
	return fmt.Sprintf("%s (%s)", sourceName, short)
}

func (n *ntfyService) NotifyJobFinished(ctx context.Context, contentID, sourceName string, outputBytes int64) error {
	return n.send(ctx, payload{
		title:   "mediarelay - Conversion Finished",
		message: fmt.Sprintf("Finished: %s, %d bytes of output", label(contentID, sourceName), outputBytes),
		tags:    []string{"mediarelay", "conversion", "finished"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, contentID, sourceName, status, reason string) error {
	message := fmt.Sprintf("Conversion %s: %s", strings.ToLower(status), label(contentID, sourceName))
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\n" + reason
	}
	return n.send(ctx, payload{
		title:    "mediarelay - Conversion Failed",
		message:  message,
		tags:     []string{"mediarelay", "conversion", "error"},
		priority: "high",
	})
}

func (n *ntfyService) NotifySubtitleFailed(ctx context.Context, contentID, language, reason string) error {
	message := fmt.Sprintf("Subtitles %s failed for %s", language, label(contentID, ""))
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\n" + reason
	}
	return n.send(ctx, payload{
		title:   "mediarelay - Subtitles Failed",
		message: message,
		tags:    []string{"mediarelay", "subtitles", "error"},
	})
}

func (n *ntfyService) NotifySweepForced(ctx context.Context, finished, failed int) error {
	if finished == 0 && failed == 0 {
		return nil
	}
	return n.send(ctx, payload{
		title:   "mediarelay - Stale Jobs Resolved",
		message: fmt.Sprintf("Staleness sweep forced %d finished and %d failed", finished, failed),
		tags:    []string{"mediarelay", "sweep"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "mediarelay - Test",
		message:  "Notification system test",
		tags:     []string{"mediarelay", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Noop returns a service that drops every notification.
func Noop() Service { return noopService{} }

type noopService struct{}

func (noopService) NotifyJobFinished(context.Context, string, string, int64) error        { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string, string) error { return nil }
func (noopService) NotifySubtitleFailed(context.Context, string, string, string) error    { return nil }
func (noopService) NotifySweepForced(context.Context, int, int) error                     { return nil }
func (noopService) TestNotification(context.Context) error                                { return nil }
