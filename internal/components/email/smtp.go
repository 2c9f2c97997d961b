package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"
)

// SMTPTransport sends through an SMTP relay with STARTTLS when offered.
type SMTPTransport struct {
	host     string
	port     int
	login    string
	password string
	timeout  time.Duration
}

// NewSMTPTransport returns a relay transport. The SMTP key is the password.
func NewSMTPTransport(host string, port int, login, password string, timeout time.Duration) *SMTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPTransport{host: host, port: port, login: login, password: password, timeout: timeout}
}

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (string, error) {
	from, err := asciiAddress(msg.From)
	if err != nil {
		return "", fmt.Errorf("brevo smtp: sender: %w", err)
	}
	to, err := asciiAddress(msg.To)
	if err != nil {
		return "", fmt.Errorf("brevo smtp: recipient: %w", err)
	}
	messageID := "<" + uuid.NewString() + "@" + domainOf(from) + ">"
	body, err := buildMIME(msg, from, to, messageID)
	if err != nil {
		return "", fmt.Errorf("brevo smtp: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(t.host, strconv.Itoa(t.port)))
	if err != nil {
		return "", fmt.Errorf("brevo smtp: dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	c, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("brevo smtp: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.host, MinVersion: tls.VersionTLS12}); err != nil {
			return "", fmt.Errorf("brevo smtp: starttls: %w", err)
		}
	}
	if ok, _ := c.Extension("AUTH"); ok && t.password != "" {
		if err := c.Auth(smtp.PlainAuth("", t.login, t.password, t.host)); err != nil {
			return "", fmt.Errorf("brevo smtp: auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return "", fmt.Errorf("brevo smtp: mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return "", fmt.Errorf("brevo smtp: rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return "", fmt.Errorf("brevo smtp: data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return "", fmt.Errorf("brevo smtp: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("brevo smtp: data: %w", err)
	}
	if err := c.Quit(); err != nil {
		return "", fmt.Errorf("brevo smtp: quit: %w", err)
	}
	return messageID, nil
}

// asciiAddress converts the domain of addr to its IDNA ASCII form.
func asciiAddress(addr string) (string, error) {
	local, domain, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok || local == "" || domain == "" {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	return local + "@" + ascii, nil
}

func domainOf(addr string) string {
	_, domain, _ := strings.Cut(addr, "@")
	return domain
}

func buildMIME(msg *Message, from, to, messageID string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	sender := from
	if msg.FromName != "" {
		sender = mime.QEncoding.Encode("utf-8", msg.FromName) + " <" + from + ">"
	}
	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	parts := []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.ctype},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(strings.ReplaceAll(p.body, "\n", "\r\n"))); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
