// Package notifications delivers operator push notifications via ntfy. When
// no topic is configured every call is a no-op, so pipeline jobs can notify
// unconditionally.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scanflow/internal/config"
	"scanflow/internal/metrics"
)

const userAgent = "scanflow/0.1.0"

// Service is the notification surface exposed to pipeline jobs.
type Service interface {
	// NotifySessionsDiscovered announces newly registered sessions.
	NotifySessionsDiscovered(ctx context.Context, count int) error
	// NotifyValidationRequired asks the operator to confirm identifiers.
	// The message lists the affected sessions.
	NotifyValidationRequired(ctx context.Context, message string) error
	// NotifyValidationProblems delivers the aggregated mismatch report of
	// a validation run.
	NotifyValidationProblems(ctx context.Context, message string) error
	// NotifyError reports a fatal job failure.
	NotifyError(ctx context.Context, err error, jobName string) error
	// TestNotification verifies delivery end to end.
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured,
// otherwise a noop implementation. Delivery outcomes are counted on m.
func NewService(cfg *config.Config, m *metrics.Metrics) Service {
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
		metrics:  m,
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
	metrics  *metrics.Metrics
}

func (n *ntfyService) NotifySessionsDiscovered(ctx context.Context, count int) error {
	noun := "sessions"
	if count == 1 {
		noun = "session"
	}
	return n.send(ctx, "discovery", payload{
		title:   "Scanflow - New Data",
		message: fmt.Sprintf("%d new %s registered from the inbox", count, noun),
		tags:    []string{"scanflow", "sync"},
	})
}

func (n *ntfyService) NotifyValidationRequired(ctx context.Context, message string) error {
	return n.send(ctx, "validation_required", payload{
		title:   "Scanflow - Identifier Validation Needed",
		message: message,
		tags:    []string{"scanflow", "validate", "review"},
	})
}

func (n *ntfyService) NotifyValidationProblems(ctx context.Context, message string) error {
	return n.send(ctx, "validation_problems", payload{
		title:    "Scanflow - Validation Problems",
		message:  message,
		tags:     []string{"scanflow", "validate", "warning"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, jobName string) error {
	var builder strings.Builder
	builder.WriteString("Job failed")
	if jobName = strings.TrimSpace(jobName); jobName != "" {
		builder.WriteString(": ")
		builder.WriteString(jobName)
	}
	builder.WriteString("\n")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown error")
	}
	return n.send(ctx, "error", payload{
		title:    "Scanflow - Error",
		message:  builder.String(),
		tags:     []string{"scanflow", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, "test", payload{
		title:    "Scanflow - Test",
		message:  "Notification system test",
		tags:     []string{"scanflow", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, kind string, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		n.metrics.NotificationObserved(kind, "error")
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
		n.metrics.NotificationObserved(kind, "error")
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		n.metrics.NotificationObserved(kind, "rejected")
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	n.metrics.NotificationObserved(kind, "sent")
	return nil
}

type noopService struct{}

func (noopService) NotifySessionsDiscovered(context.Context, int) error    { return nil }
func (noopService) NotifyValidationRequired(context.Context, string) error { return nil }
func (noopService) NotifyValidationProblems(context.Context, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error       { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
