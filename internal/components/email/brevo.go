package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// SendPath is the Brevo transactional email endpoint.
const SendPath = "/v3/smtp/email"

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent,omitempty"`
}

// APITransport sends through the Brevo HTTP API v3.
type APITransport struct {
	rc *resty.Client
}

// NewAPITransport returns a transport for baseURL authenticated by apiKey.
func NewAPITransport(baseURL, apiKey string, hc *http.Client, timeout time.Duration) *APITransport {
	rc := resty.New()
	if hc != nil {
		rc = resty.NewWithClient(hc)
	}
	rc.SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("api-key", apiKey).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}
	return &APITransport{rc: rc}
}

// Send implements Transport.
func (t *APITransport) Send(ctx context.Context, msg *Message) (string, error) {
	var out struct {
		MessageID string `json:"messageId"`
	}
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	resp, err := t.rc.R().
		SetContext(ctx).
		SetBody(brevoRequest{
			Sender:      brevoContact{Email: msg.From, Name: msg.FromName},
			To:          []brevoContact{{Email: msg.To}},
			Subject:     msg.Subject,
			HTMLContent: msg.HTML,
			TextContent: msg.Text,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post(SendPath)
	if err != nil {
		return "", fmt.Errorf("brevo api: %w", err)
	}
	if resp.IsError() {
		detail := apiErr.Message
		if detail == "" {
			detail = resp.Status()
		}
		return "", fmt.Errorf("brevo api: %s", detail)
	}
	return out.MessageID, nil
}
