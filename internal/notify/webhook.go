// Package notify posts detection alerts to configured webhooks.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/detect"
	"github.com/vigilhq/vigil/internal/metrics"
)

// Event is the default JSON body sent to webhook endpoints.
type Event struct {
	Event     string `json:"event"`
	ID        string `json:"id"`
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EventFromEntry builds the webhook event for a new history entry.
func EventFromEntry(e detect.HistoryEntry) Event {
	return Event{
		Event:     "detection",
		ID:        e.ID,
		Type:      string(e.Type),
		Kind:      e.Type.Slug(),
		Severity:  string(e.Type.Level()),
		Message:   e.Message,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Notifier sends alerts to every webhook whose event filter matches.
type Notifier struct {
	webhooks []config.Webhook
	safe     *http.Client
	open     *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

// NewNotifier creates a notifier from config. Invalid URLs are logged and
// skipped.
func NewNotifier(webhooks []config.Webhook, logger *slog.Logger, m *metrics.Metrics) *Notifier {
	var valid []config.Webhook
	for _, wh := range webhooks {
		if err := validateURL(wh.URL, wh.AllowPrivate); err != nil {
			logger.Warn("skipping invalid webhook URL", "url", wh.URL, "error", err)
			continue
		}
		valid = append(valid, wh)
	}

	checkRedirect := func(allowPrivate bool) func(*http.Request, []*http.Request) error {
		return func(req *http.Request, via []*http.Request) error {
			if len(via) >= 2 {
				return errors.New("too many redirects")
			}
			if err := validateURL(req.URL.String(), allowPrivate); err != nil {
				return fmt.Errorf("redirect to blocked URL: %w", err)
			}
			return nil
		}
	}

	return &Notifier{
		webhooks: valid,
		safe: &http.Client{
			Timeout:       5 * time.Second,
			Transport:     &http.Transport{DialContext: safeDialContext},
			CheckRedirect: checkRedirect(false),
		},
		open: &http.Client{
			Timeout:       5 * time.Second,
			CheckRedirect: checkRedirect(true),
		},
		logger:  logger,
		metrics: m,
	}
}

// Len returns the number of usable webhooks.
func (n *Notifier) Len() int { return len(n.webhooks) }

// Notify delivers a history entry to all matching webhooks (fire-and-forget).
func (n *Notifier) Notify(entry detect.HistoryEntry) {
	ev := EventFromEntry(entry)
	for _, wh := range n.webhooks {
		if !matchesEvent(wh.Events, ev.Kind) {
			continue
		}
		body, err := n.body(wh.Template, ev)
		if err != nil {
			n.logger.Error("webhook marshal failed", "error", err)
			continue
		}
		client := n.safe
		if wh.AllowPrivate {
			client = n.open
		}
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			n.send(client, url, body)
		}(wh.URL)
	}
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) body(tmpl string, ev Event) ([]byte, error) {
	if tmpl == "" {
		return json.Marshal(ev)
	}
	return []byte(RenderTemplate(tmpl, ev)), nil
}

func (n *Notifier) send(client *http.Client, url string, body []byte) {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.metrics.WebhookDelivery("error")
		n.logger.Warn("webhook delivery failed", "url", url, "error", err)
		return
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.metrics.WebhookDelivery("rejected")
		n.logger.Warn("webhook returned error", "url", url, "status", resp.StatusCode)
		return
	}
	n.metrics.WebhookDelivery("ok")
}

// RenderTemplate replaces {{TAG}} placeholders in a plain-text template and
// wraps the result in Slack-compatible JSON: {"text":"..."}.
func RenderTemplate(tmpl string, ev Event) string {
	r := strings.NewReplacer(
		"{{EVENT}}", ev.Event,
		"{{ID}}", ev.ID,
		"{{TYPE}}", ev.Type,
		"{{KIND}}", ev.Kind,
		"{{SEVERITY}}", ev.Severity,
		"{{MESSAGE}}", ev.Message,
		"{{TIMESTAMP}}", ev.Timestamp,
	)
	payload, _ := json.Marshal(map[string]string{"text": r.Replace(tmpl)})
	return string(payload)
}

// DefaultTemplate is a ready-made Slack message.
const DefaultTemplate = "*{{TYPE}} detected* ({{SEVERITY}})\n• {{MESSAGE}}\n• {{TIMESTAMP}}"

func matchesEvent(configured []string, kind string) bool {
	if len(configured) == 0 {
		return true
	}
	for _, e := range configured {
		if e == kind {
			return true
		}
	}
	return false
}
