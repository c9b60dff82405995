package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventConsumerHalted, notifications.Payload{"error": "boom"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "quarantined",
			event: notifications.EventMessageQuarantined,
			payload: notifications.Payload{
				"instanceUID": "1.2.840.1",
				"step":        "normalize",
				"error":       "malformed header",
			},
			expectTitle:   "SQAN - Header Quarantined",
			expectMessage: "Quarantined 1.2.840.1 at normalize: malformed header",
			expectTags:    "sqan,ingest,quarantine",
		},
		{
			name:           "halted",
			event:          notifications.EventConsumerHalted,
			payload:        notifications.Payload{"error": errors.New("disk full")},
			expectTitle:    "SQAN - Ingest Halted",
			expectMessage:  "Ingest consumer stopped: disk full",
			expectTags:     "sqan,ingest,alert",
			expectPriority: "high",
		},
		{
			name:  "reqc",
			event: notifications.EventReQC,
			payload: notifications.Payload{
				"title": "Research-level ReQC",
				"user":  "hayashis",
				"count": 12,
			},
			expectTitle:   "SQAN - ReQC",
			expectMessage: "Research-level ReQC by hayashis: 12 images re-enrolled",
			expectTags:    "sqan,qc,reqc",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "SQAN - Test",
			expectMessage:  "Notification system test",
			expectTags:     "sqan,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for disabled event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.QCErrors = false
	cfg.Notifications.Quarantine = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventQCErrors, notifications.EventMessageQuarantined, notifications.Event("unknown")} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic not found", http.StatusNotFound)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
