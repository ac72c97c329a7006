package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediarelay/internal/config"
	"mediarelay/internal/services"
)

// Invalidator drops cached listings after a job finishes.
type Invalidator interface {
	Invalidate(ctx context.Context, contentID string) error
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) error { return nil }

// HTTPInvalidator POSTs {"content_id": ...} to a hook URL.
type HTTPInvalidator struct {
	url    string
	client *http.Client
}

// NewInvalidator returns an HTTP invalidator when hosting.invalidate_url is
// set and a noop otherwise.
func NewInvalidator(cfg *config.Config) Invalidator {
	url := strings.TrimSpace(cfg.Hosting.InvalidateURL)
	if url == "" {
		return noopInvalidator{}
	}
	timeout := cfg.CallTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPInvalidator{url: url, client: &http.Client{Timeout: timeout}}
}

func (h *HTTPInvalidator) Invalidate(ctx context.Context, contentID string) error {
	body, err := json.Marshal(map[string]string{"content_id": contentID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build invalidate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "engine", "invalidate", "listing cache hook unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return services.Wrap(services.ErrExternal, "engine", "invalidate", fmt.Sprintf("hook returned %d", resp.StatusCode), nil)
	}
	return nil
}
