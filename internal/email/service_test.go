package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestNotifierIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		to       []string
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			to:       []string{"owner@example.com"},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "atlas@example.com",
			},
			to:       []string{"owner@example.com"},
			expected: false,
		},
		{
			name: "no recipients",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "atlas@example.com",
			},
			to:       []string{" "},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "atlas@example.com",
			},
			to:       []string{"owner@example.com"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := NewNotifier(tt.config, tt.to)
			if notifier.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", notifier.IsConfigured(), tt.expected)
			}
		})
	}
}

func testNotifier() *Notifier {
	return NewNotifier(Config{
		Host:     "smtp.example.com",
		Port:     "587",
		From:     "atlas@example.com",
		FromName: "Atlas",
	}, []string{"owner@example.com"})
}

var pending = PendingComment{
	CommentID:  "c1",
	PostTitle:  "Hello\r\nBcc: evil@example.com",
	PostSlug:   "hello",
	AuthorName: "Ana",
	Body:       "Great post!",
	CreatedAt:  time.Date(2026, 3, 12, 16, 10, 0, 0, time.UTC),
}

func TestSendPendingComment(t *testing.T) {
	notifier := testNotifier()
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	notifier.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := notifier.SendPendingComment(pending); err != nil {
		t.Fatalf("SendPendingComment() error = %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "owner@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	if !strings.Contains(gotMsg, "From: Atlas <atlas@example.com>\r\n") {
		t.Error("message should carry the display name")
	}
	headers, _, _ := strings.Cut(gotMsg, "\r\n\r\n")
	if strings.Contains(headers, "\r\nBcc:") {
		t.Error("post title must not inject headers")
	}
	for _, want := range []string{"Ana commented on", "Great post!", "2026-03-12 16:10 UTC", "Comment id: c1"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestNotifyPendingCommentLogsFailures(t *testing.T) {
	notifier := testNotifier()
	calls := 0
	notifier.send = func(string, smtp.Auth, string, []string, []byte) error {
		calls++
		return errors.New("connection refused")
	}

	notifier.NotifyPendingComment(pending)
	notifier.Wait()
	if calls != 1 {
		t.Fatalf("send calls = %d, want 1", calls)
	}
}

func TestNotifyUnconfiguredIsNoop(t *testing.T) {
	notifier := NewNotifier(Config{}, nil)
	notifier.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	notifier.NotifyPendingComment(pending)
	notifier.Wait()
	if err := notifier.SendPendingComment(pending); err == nil {
		t.Fatal("SendPendingComment() expected error when unconfigured")
	}
}
