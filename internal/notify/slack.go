package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/tenant"
)

// SlackAlerter posts tenant-anomaly alerts to an incoming webhook.  The
// post runs in the background with its own deadline so the request that
// crossed the threshold is not held up.
type SlackAlerter struct {
	url     string
	timeout time.Duration
	log     *zap.Logger
	post    func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackAlerter returns an alerter for webhookURL.
func NewSlackAlerter(webhookURL string, log *zap.Logger) *SlackAlerter {
	if log == nil {
		log = zap.L()
	}
	return &SlackAlerter{
		url:     webhookURL,
		timeout: 5 * time.Second,
		log:     log,
		post:    slack.PostWebhookContext,
	}
}

// TenantAnomaly implements tenant.Alerter.
func (s *SlackAlerter) TenantAnomaly(ctx context.Context, a tenant.Alert) {
	msg := &slack.WebhookMessage{Text: alertText(a)}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.post(ctx, s.url, msg); err != nil {
			s.log.Warn("slack alert failed", zap.Error(err))
		}
	}()
}

func alertText(a tenant.Alert) string {
	text := fmt.Sprintf(":warning: %d tenant resolution anomalies in the last %s. Latest: %s on %s (%q)",
		a.Count, a.Window, a.Last.Kind, a.Last.Signal, a.Last.Value)
	if a.Last.Resolved != "" {
		text += fmt.Sprintf(", request resolved to %s", a.Last.Resolved)
	}
	return text
}
