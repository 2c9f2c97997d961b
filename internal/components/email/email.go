// Package email sends invitation emails through the Brevo HTTP API or the
// Brevo SMTP relay, or simulates delivery when no credentials are set.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

// Key prefixes select the transport.
const (
	PrefixAPIKey  = "xkeysib-"
	PrefixSMTPKey = "xsmtpsib-"
)

// Defaults for the Brevo endpoints.
const (
	DefaultAPIURL   = "https://api.brevo.com"
	DefaultSMTPHost = "smtp-relay.brevo.com"
	DefaultSMTPPort = 587
)

// ErrInvalidKey means the API key has no recognized prefix.
var ErrInvalidKey = errors.New("invalid Brevo API key format: expected 'xkeysib-' (API v3) or 'xsmtpsib-' (SMTP)")

// Config selects and configures the transport.
type Config struct {
	APIKey    string
	From      string
	FromName  string
	SMTPLogin string
	SMTPHost  string
	SMTPPort  int
	APIURL    string
	Timeout   time.Duration
}

// Message is a single outgoing email.
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// Result reports an accepted message.
type Result struct {
	MessageID string
	Simulated bool
}

// Transport delivers a message and returns the provider message id.
type Transport interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// Sender renders and sends messages. A nil transport simulates delivery.
type Sender struct {
	transport Transport
	from      string
	fromName  string
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a sender routed by the key prefix. An empty key or sender
// address yields a simulating sender. hc is used by the HTTP API transport.
func New(cfg Config, hc *http.Client, logger *slog.Logger) (*Sender, error) {
	s := &Sender{
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   logutil.NoopIfNil(logger),
		now:      time.Now,
	}
	switch {
	case cfg.APIKey == "" || cfg.From == "":
		s.logger.Warn("email delivery not configured, sends are simulated")
	case strings.HasPrefix(cfg.APIKey, PrefixSMTPKey):
		login := cfg.SMTPLogin
		if login == "" {
			login = cfg.From
		}
		host, port := cfg.SMTPHost, cfg.SMTPPort
		if host == "" {
			host = DefaultSMTPHost
		}
		if port == 0 {
			port = DefaultSMTPPort
		}
		s.transport = NewSMTPTransport(host, port, login, cfg.APIKey, cfg.Timeout)
	case strings.HasPrefix(cfg.APIKey, PrefixAPIKey):
		apiURL := cfg.APIURL
		if apiURL == "" {
			apiURL = DefaultAPIURL
		}
		s.transport = NewAPITransport(apiURL, cfg.APIKey, hc, cfg.Timeout)
	default:
		return nil, ErrInvalidKey
	}
	return s, nil
}

// NewWithTransport returns a sender over an explicit transport.
func NewWithTransport(t Transport, from string, logger *slog.Logger) *Sender {
	return &Sender{transport: t, from: from, logger: logutil.NoopIfNil(logger), now: time.Now}
}

// Simulated reports whether sends are simulated.
func (s *Sender) Simulated() bool { return s.transport == nil }

// Send delivers msg from the configured sender address.
func (s *Sender) Send(ctx context.Context, msg *Message) (*Result, error) {
	if msg.From == "" {
		msg.From = s.from
		msg.FromName = s.fromName
	}
	if s.transport == nil {
		id := fmt.Sprintf("simulated-%d", s.now().UnixMilli())
		s.logger.Info("email simulated", "to", msg.To, "subject", msg.Subject, "message_id", id)
		return &Result{MessageID: id, Simulated: true}, nil
	}
	id, err := s.transport.Send(ctx, msg)
	if err != nil {
		s.logger.Error("email send failed", "to", msg.To, "error", err)
		return nil, err
	}
	s.logger.Info("email sent", "to", msg.To, "message_id", id)
	return &Result{MessageID: id}, nil
}

// SendInvite renders and sends a network invitation.
func (s *Sender) SendInvite(ctx context.Context, data InviteData) (*Result, error) {
	msg, err := RenderInvite(data)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, msg)
}
