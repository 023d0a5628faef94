package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tmacey/switchd/internal/config"
)

func TestMailerDisabledIsNoop(t *testing.T) {
	m := NewMailer(config.EmailConfig{EnableEmail: false})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("disabled mailer must not send")
		return nil
	}

	if err := m.Send("subject", "body"); err != nil {
		t.Fatal(err)
	}
}

func TestMailerSendsWithPrefix(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	m := NewMailer(config.EmailConfig{
		EnableEmail:   true,
		SendEmailsTo:  "a@example.com, b@example.com",
		SMTPServer:    "smtp.example.com",
		SMTPPort:      587,
		SMTPUsername:  "switchd@example.com",
		SubjectPrefix: "[switchd]",
	})
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := m.Send("Reload failed", "details"); err != nil {
		t.Fatal(err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "switchd@example.com" {
		t.Errorf("from = %q", gotFrom)
	}
	if len(gotTo) != 2 {
		t.Errorf("recipients = %v", gotTo)
	}
	if !strings.Contains(string(gotMsg), "Subject: [switchd] Reload failed") {
		t.Errorf("message = %q", gotMsg)
	}
	if !strings.Contains(string(gotMsg), "details") {
		t.Errorf("body missing: %q", gotMsg)
	}
}

func TestHeartbeatPing(t *testing.T) {
	var healthyHits, failHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/fail") {
			failHits.Add(1)
		} else {
			healthyHits.Add(1)
		}
	}))
	defer srv.Close()

	h := NewHeartbeat(config.HeartbeatConfig{
		WebsiteURL:       srv.URL + "/ping/abc",
		HeartbeatTimeout: config.Duration(2 * time.Second),
	})

	h.Ping(context.Background(), true)
	h.Ping(context.Background(), false)

	if healthyHits.Load() != 1 {
		t.Errorf("healthy pings = %d, want 1", healthyHits.Load())
	}
	if failHits.Load() != 1 {
		t.Errorf("fail pings = %d, want 1", failHits.Load())
	}
}

func TestHeartbeatNilWhenUnconfigured(t *testing.T) {
	h := NewHeartbeat(config.HeartbeatConfig{})
	if h != nil {
		t.Fatal("expected nil heartbeat without a URL")
	}
	// Nil receiver is a no-op, not a panic.
	h.Ping(context.Background(), true)
}

func TestViewerPush(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/submit" {
			http.NotFound(w, r)
			return
		}
		gotKey = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer srv.Close()

	v := NewViewer(config.GeneralConfig{
		WebsiteBaseURL:   srv.URL,
		WebsiteAccessKey: "secret",
		WebsiteTimeout:   config.Duration(2 * time.Second),
	})
	if v == nil {
		t.Fatal("viewer should be configured")
	}

	v.Push(context.Background(), map[string]string{"hello": "world"})

	if gotKey != "secret" {
		t.Errorf("key = %q", gotKey)
	}
	if gotBody["hello"] != "world" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestViewerNilWhenUnconfigured(t *testing.T) {
	v := NewViewer(config.GeneralConfig{})
	if v != nil {
		t.Fatal("expected nil viewer without a base URL")
	}
	v.Push(context.Background(), nil)
}
