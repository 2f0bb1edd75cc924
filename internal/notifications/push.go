package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"easel/internal/config"
	"easel/internal/logging"
)

const userAgent = "Easel-Go/0.1.0"

// Pusher delivers user-facing push notifications for generation outcomes.
type Pusher interface {
	NotifyGenerationCompleted(ctx context.Context, prompt string, outputs int, elapsed time.Duration) error
	NotifyGenerationFailed(ctx context.Context, prompt, reason string) error
	TestNotification(ctx context.Context) error
}

// NewPusher builds a push service backed by ntfy when configured. When no
// ntfy topic is configured, a noop implementation is returned.
func NewPusher(cfg *config.Config) Pusher {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopPusher{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyPusher{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type pushPayload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyPusher struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyPusher) NotifyGenerationCompleted(ctx context.Context, prompt string, outputs int, elapsed time.Duration) error {
	elapsed = elapsed.Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	noun := "artifact"
	if outputs != 1 {
		noun = "artifacts"
	}
	data := pushPayload{
		title:   "Easel - Generation Complete",
		message: fmt.Sprintf("%d %s ready in %s: %s", outputs, noun, elapsed, summarizePrompt(prompt)),
		tags:    []string{"easel", "generation", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyPusher) NotifyGenerationFailed(ctx context.Context, prompt, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	data := pushPayload{
		title:    "Easel - Generation Failed",
		message:  fmt.Sprintf("Failed: %s\n%s", summarizePrompt(prompt), reason),
		tags:     []string{"easel", "generation", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyPusher) TestNotification(ctx context.Context) error {
	data := pushPayload{
		title:    "Easel - Test",
		message:  "Notification system test",
		tags:     []string{"easel", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyPusher) send(ctx context.Context, data pushPayload) error {
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

func summarizePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "(no prompt)"
	}
	const limit = 80
	if len(prompt) > limit {
		return prompt[:limit-1] + "…"
	}
	return prompt
}

type noopPusher struct{}

func (noopPusher) NotifyGenerationCompleted(context.Context, string, int, time.Duration) error {
	return nil
}
func (noopPusher) NotifyGenerationFailed(context.Context, string, string) error { return nil }
func (noopPusher) TestNotification(context.Context) error                       { return nil }

// Bridge forwards result events from the bus to a push service, filtered by
// the completions/errors toggles in config.
type Bridge struct {
	sub    *Subscription
	done   chan struct{}
	logger *slog.Logger
}

// StartBridge subscribes to the bus and forwards generation results until
// Close is called. It returns nil when both toggles are off.
func StartBridge(bus *Bus, pusher Pusher, cfg config.Notifications, logger *slog.Logger) *Bridge {
	if !cfg.Completions && !cfg.Errors {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	bridge := &Bridge{
		sub:    bus.Subscribe(64),
		done:   make(chan struct{}),
		logger: logger.With(logging.String(logging.FieldComponent, "notify-bridge")),
	}

	go func() {
		defer close(bridge.done)
		for message := range bridge.sub.Events() {
			if message.Event != EventResult {
				continue
			}
			bridge.forward(message, pusher, cfg)
		}
	}()
	return bridge
}

func (b *Bridge) forward(message Message, pusher Pusher, cfg config.Notifications) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status, _ := message.Payload[KeyStatus].(string)
	prompt, _ := message.Payload[KeyPrompt].(string)

	var err error
	switch status {
	case "completed":
		if !cfg.Completions {
			return
		}
		outputs, _ := message.Payload[KeyOutputs].(int)
		elapsedMS, _ := message.Payload[KeyElapsedMS].(int64)
		err = pusher.NotifyGenerationCompleted(ctx, prompt, outputs, time.Duration(elapsedMS)*time.Millisecond)
	case "failed":
		if !cfg.Errors {
			return
		}
		reason, _ := message.Payload[KeyError].(string)
		err = pusher.NotifyGenerationFailed(ctx, prompt, reason)
	default:
		return
	}
	if err != nil {
		b.logger.Warn("push notification failed", logging.Error(err))
	}
}

// Close stops forwarding and waits for the delivery goroutine to exit.
func (b *Bridge) Close() {
	if b == nil {
		return
	}
	b.sub.Close()
	<-b.done
}
