package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yanizio/civitas/internal/tenant"
)

func TestSlackAlerter_PostsWebhook(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body.Text
	}))
	defer srv.Close()

	a := NewSlackAlerter(srv.URL, zap.NewNop())
	a.TenantAnomaly(context.Background(), tenant.Alert{
		Count:  20,
		Window: 5 * time.Minute,
		Last:   tenant.Anomaly{Kind: tenant.KindHeaderConflict, Signal: "header", Value: "campinas", Resolved: "santos"},
	})

	select {
	case text := <-got:
		for _, want := range []string{"20 tenant resolution anomalies", "header_conflict", "campinas", "resolved to santos"} {
			if !strings.Contains(text, want) {
				t.Errorf("text %q missing %q", text, want)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestSlackAlerter_FailureLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := NewSlackAlerter("http://unused", zap.New(core))
	done := make(chan struct{})
	a.post = func(context.Context, string, *slack.WebhookMessage) error {
		defer close(done)
		return errors.New("boom")
	}

	a.TenantAnomaly(context.Background(), tenant.Alert{Count: 1})
	<-done
	deadline := time.Now().Add(time.Second)
	for logs.FilterMessage("slack alert failed").Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logs.FilterMessage("slack alert failed").Len() != 1 {
		t.Fatal("failure not logged")
	}
}

func TestNewPostmark_RequiresConfig(t *testing.T) {
	if _, err := NewPostmark("", "acct", "noreply@civitas.example"); !errors.Is(err, ErrSend) {
		t.Errorf("missing token: err = %v", err)
	}
	if _, err := NewPostmark("srv", "acct", ""); !errors.Is(err, ErrSend) {
		t.Errorf("missing sender: err = %v", err)
	}
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := LogMailer{Log: zap.New(core)}
	if err := m.Send(context.Background(), Message{To: "ops@santos.example", Subject: "digest", Tag: "report-digest"}); err != nil {
		t.Fatal(err)
	}
	if logs.FilterField(zap.String("to", "ops@santos.example")).Len() != 1 {
		t.Fatal("message not logged")
	}
}
