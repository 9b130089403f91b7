// Package notify delivers operator-facing messages: report digests by
// e-mail (Postmark) and tenant-anomaly alerts to Slack.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"
)

// ErrSend wraps every delivery failure.
var ErrSend = errors.New("notify: send failed")

// Message is one outbound e-mail.
type Message struct {
	To      string
	Subject string
	Text    string
	Tag     string
}

// Mailer sends e-mail.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Postmark sends through Postmark's transactional API.
type Postmark struct {
	client *postmark.Client
	from   string
}

// NewPostmark returns a Postmark mailer.  Both tokens and the sender are
// required.
func NewPostmark(serverToken, accountToken, from string) (*Postmark, error) {
	if serverToken == "" || from == "" {
		return nil, fmt.Errorf("%w: postmark server token and sender are required", ErrSend)
	}
	return &Postmark{client: postmark.NewClient(serverToken, accountToken), from: from}, nil
}

// Send implements Mailer.
func (p *Postmark) Send(ctx context.Context, m Message) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       m.To,
		Subject:  m.Subject,
		TextBody: m.Text,
		Tag:      m.Tag,
	})
	if err != nil {
		return errors.Join(ErrSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSend, fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.  Used
// when no Postmark token is configured.
type LogMailer struct{ Log *zap.Logger }

// Send implements Mailer.
func (l LogMailer) Send(_ context.Context, m Message) error {
	log := l.Log
	if log == nil {
		log = zap.L()
	}
	log.Info("mail not sent (no transport)",
		zap.String("to", m.To), zap.String("subject", m.Subject), zap.String("tag", m.Tag))
	return nil
}
