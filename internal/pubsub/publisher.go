package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediarelay/internal/config"
	"mediarelay/internal/services"
)

const userAgent = "mediarelay/0.1"

// TriggerMessage asks the subtitle generator to process one language.
type TriggerMessage struct {
	ObjectKey string `json:"object_key"`
	Language  string `json:"language"`
	Filename  string `json:"filename"`
	URI       string `json:"uri"`
}

// PublishResult carries the broker's acknowledgement.
type PublishResult struct {
	MessageID string
}

// Publisher is the pub/sub trigger collaborator.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg TriggerMessage) (PublishResult, error)
}

// HTTPPublisher publishes to an HTTP push endpoint.
type HTTPPublisher struct {
	endpoint string
	token    string
	client   *http.Client
}

// New builds a publisher from the [pubsub] section. It returns nil when no
// endpoint is configured.
func New(cfg *config.Config) *HTTPPublisher {
	endpoint := strings.TrimSpace(cfg.PubSub.Endpoint)
	if endpoint == "" {
		return nil
	}
	timeout := time.Duration(cfg.PubSub.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewHTTPPublisher(endpoint, cfg.PubSub.Token, &http.Client{Timeout: timeout})
}

// NewHTTPPublisher builds a publisher for endpoint using client.
func NewHTTPPublisher(endpoint, token string, client *http.Client) *HTTPPublisher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPPublisher{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    strings.TrimSpace(token),
		client:   client,
	}
}

type publishResponse struct {
	MessageID string `json:"message_id"`
}

// Publish sends msg to topic. Non-2xx responses are errors; timeouts are
// marked transient so callers can tell them apart from rejections.
func (p *HTTPPublisher) Publish(ctx context.Context, topic string, msg TriggerMessage) (PublishResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return PublishResult{}, fmt.Errorf("encode trigger: %w", err)
	}
	messageID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/"+strings.Trim(topic, "/"), bytes.NewReader(body))
	if err != nil {
		return PublishResult{}, fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Message-Id", messageID)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if services.IsTransient(err) {
			return PublishResult{}, services.Wrap(services.ErrTimeout, "pubsub", "publish", topic, err)
		}
		return PublishResult{}, services.Wrap(services.ErrExternal, "pubsub", "publish", topic, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PublishResult{}, services.Wrap(services.ErrExternal, "pubsub", "publish",
			fmt.Sprintf("broker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	var decoded publishResponse
	if len(bytes.TrimSpace(payload)) > 0 && json.Unmarshal(payload, &decoded) == nil && decoded.MessageID != "" {
		messageID = decoded.MessageID
	}
	return PublishResult{MessageID: messageID}, nil
}
