// Package email tells the site owner when a reader comment is waiting for moderation.
package email

import (
	"bytes"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"sync"
	"text/template"
	"time"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier mails moderation notices. Sending happens off the request path.
type Notifier struct {
	config  Config
	to      []string
	server  string
	auth    smtp.Auth
	send    sendFunc
	pending sync.WaitGroup
}

// NewNotifier creates a notifier that writes to the given recipients.
func NewNotifier(config Config, to []string) *Notifier {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	recipients := make([]string, 0, len(to))
	for _, address := range to {
		if trimmed := strings.TrimSpace(address); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return &Notifier{
		config: config,
		to:     recipients,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (n *Notifier) IsConfigured() bool {
	return n.config.Host != "" && n.config.Port != "" && n.config.From != "" && len(n.to) > 0
}

// PendingComment describes a new comment in the moderation queue.
type PendingComment struct {
	CommentID  string
	PostTitle  string
	PostSlug   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// NotifyPendingComment queues a notice and returns immediately.
// Failures are logged.
func (n *Notifier) NotifyPendingComment(comment PendingComment) {
	if !n.IsConfigured() {
		return
	}
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		if err := n.SendPendingComment(comment); err != nil {
			log.Printf("email: notify comment %s: %v", comment.CommentID, err)
		}
	}()
}

// SendPendingComment sends the notice synchronously.
func (n *Notifier) SendPendingComment(comment PendingComment) error {
	if !n.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	body, err := renderTemplate(pendingCommentTemplate, comment)
	if err != nil {
		return fmt.Errorf("render pending comment template: %w", err)
	}
	subject := fmt.Sprintf("New comment on %q awaiting moderation", comment.PostTitle)
	return n.send(n.server, n.auth, n.config.From, n.to, n.message(subject, body))
}

// Wait blocks until queued notices are sent.
func (n *Notifier) Wait() {
	n.pending.Wait()
}

func (n *Notifier) message(subject, body string) []byte {
	from := n.config.From
	if n.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.config.FromName, n.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerSafe(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return msg.Bytes()
}

// headerSafe keeps reader-supplied text from adding header lines.
func headerSafe(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const pendingCommentTemplate = `{{.AuthorName}} commented on "{{.PostTitle}}" (/{{.PostSlug}}) at {{.CreatedAt.Format "2006-01-02 15:04 MST"}}:

{{.Body}}

The comment stays hidden until it is approved.
Comment id: {{.CommentID}}
`
