package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iamvazu/SQAN/internal/config"
)

const userAgent = "SQAN-Go/0.1.0"

// Event enumerates the alerts the pipeline and QC engine raise.
type Event string

const (
	EventMessageQuarantined Event = "message_quarantined"
	EventConsumerHalted     Event = "consumer_halted"
	EventQCErrors           Event = "qc_errors"
	EventReQC               Event = "reqc"
	EventTest               Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
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
		enabled: map[Event]bool{
			EventMessageQuarantined: cfg.Notifications.Quarantine,
			EventConsumerHalted:     cfg.Notifications.Halt,
			EventQCErrors:           cfg.Notifications.QCErrors,
			EventReQC:               true,
			EventTest:               true,
		},
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
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventMessageQuarantined:
		uid := data.text("instanceUID", "unknown instance")
		reason := data.text("error", "unknown error")
		return payload{
			title:   "SQAN - Header Quarantined",
			message: fmt.Sprintf("Quarantined %s at %s: %s", uid, data.text("step", "unknown step"), reason),
			tags:    []string{"sqan", "ingest", "quarantine"},
		}, true
	case EventConsumerHalted:
		return payload{
			title:    "SQAN - Ingest Halted",
			message:  fmt.Sprintf("Ingest consumer stopped: %s", data.text("error", "unknown error")),
			tags:     []string{"sqan", "ingest", "alert"},
			priority: "high",
		}, true
	case EventQCErrors:
		return payload{
			title:   "SQAN - QC Errors",
			message: fmt.Sprintf("QC cycle flagged %s of %s images", data.text("failed", "0"), data.text("checked", "0")),
			tags:    []string{"sqan", "qc", "errors"},
		}, true
	case EventReQC:
		return payload{
			title:   "SQAN - ReQC",
			message: fmt.Sprintf("%s by %s: %s images re-enrolled", data.text("title", "ReQC"), data.text("user", "unknown"), data.text("count", "0")),
			tags:    []string{"sqan", "qc", "reqc"},
		}, true
	case EventTest:
		return payload{
			title:    "SQAN - Test",
			message:  "Notification system test",
			tags:     []string{"sqan", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (p Payload) text(key, fallback string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
