package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyloom/internal/config"
)

const userAgent = "Storyloom/0.1.0"

// Service defines the notification surface exposed to tracker components.
type Service interface {
	NotifyGenerationStarted(ctx context.Context, title string) error
	NotifyGenerationCompleted(ctx context.Context, title string) error
	NotifyGenerationFailed(ctx context.Context, title, reason string) error
	NotifyGenerationStalled(ctx context.Context, title string, quiet time.Duration) error
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

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:   topic,
		client:     client,
		completion: cfg.Notifications.Completion,
		failure:    cfg.Notifications.Failure,
		stall:      cfg.Notifications.Stall,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	failure    bool
	stall      bool
}

func (n *ntfyService) NotifyGenerationStarted(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Storyloom - Generation Started",
		message: fmt.Sprintf("Started generating: %s", title),
		tags:    []string{"storyloom", "generation", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGenerationCompleted(ctx context.Context, title string) error {
	if !n.completion {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:    "Storyloom - Story Ready",
		message:  fmt.Sprintf("Story complete: %s", title),
		tags:     []string{"storyloom", "generation", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGenerationFailed(ctx context.Context, title, reason string) error {
	if !n.failure {
		return nil
	}
	title = strings.TrimSpace(title)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Storyloom - Generation Failed",
		message:  fmt.Sprintf("Generation failed: %s\nReason: %s", title, reason),
		tags:     []string{"storyloom", "generation", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGenerationStalled(ctx context.Context, title string, quiet time.Duration) error {
	if !n.stall {
		return nil
	}
	title = strings.TrimSpace(title)
	quiet = quiet.Round(time.Second)
	if quiet < 0 {
		quiet = 0
	}
	data := payload{
		title:   "Storyloom - Generation Stalled",
		message: fmt.Sprintf("No progress on %s for %s. The job is still running.", title, quiet),
		tags:    []string{"storyloom", "generation", "stalled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Storyloom - Test",
		message:  "Notification system test",
		tags:     []string{"storyloom", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyGenerationStarted(context.Context, string) error                { return nil }
func (noopService) NotifyGenerationCompleted(context.Context, string) error              { return nil }
func (noopService) NotifyGenerationFailed(context.Context, string, string) error         { return nil }
func (noopService) NotifyGenerationStalled(context.Context, string, time.Duration) error { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
