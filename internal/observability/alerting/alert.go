// Package alerting fans out operator notifications for failures whose error
// code is marked as alerting.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/pkg/logger"
)

// Channel names a notification target.
type Channel string

const (
	ChannelLog     Channel = "log"
	ChannelWebhook Channel = "webhook"
)

// Event describes one failure worth telling an operator about.
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Retryable  bool
	Tool       string
	Prompt     string
	Metadata   map[string]string
	OccurredAt time.Time
}

// EventFromError builds an Event from err's code, severity and metadata.
func EventFromError(err error, tool, prompt string) Event {
	ev := Event{
		Code:       xerrors.CodeOf(err),
		Message:    err.Error(),
		Severity:   xerrors.SeverityOf(err),
		Retryable:  xerrors.RetryableError(err),
		Tool:       tool,
		Prompt:     prompt,
		OccurredAt: time.Now().UTC(),
	}
	if e, ok := xerrors.From(err); ok {
		ev.Metadata = e.Metadata()
	}
	return ev
}

// Notifier delivers events to one channel.
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher accepts events for delivery.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher delivers each event to every registered notifier.
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout registers notifiers by channel. A later notifier replaces an
// earlier one on the same channel.
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify sends event to every channel and joins the failures.
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the error log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel returns ChannelLog.
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify logs event at error level.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	l := n.Logger
	if l == nil {
		l = logger.Named("alerting")
	}
	l.ErrorContext(ctx, "alert",
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("tool", event.Tool),
		slog.Bool("retryable", event.Retryable),
		slog.String("message", event.Message),
	)
	return nil
}

// WebhookNotifier posts {"text": ...} to an incoming-webhook URL, the shape
// Slack and most chat tools accept.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// Channel returns ChannelWebhook.
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify posts the rendered event.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || strings.TrimSpace(n.URL) == "" {
		logger.L().Warn("webhook notifier has no url, skipping", slog.String("code", string(event.Code)))
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": render(event)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func render(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", event.Severity, event.Code)
	if event.Tool != "" {
		fmt.Fprintf(&b, " tool=%s", event.Tool)
	}
	if event.Retryable {
		b.WriteString(" (retryable)")
	}
	fmt.Fprintf(&b, "\n%s", event.Message)
	if event.Prompt != "" {
		fmt.Fprintf(&b, "\nprompt: %s", event.Prompt)
	}
	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, event.Metadata[k])
	}
	return b.String()
}
