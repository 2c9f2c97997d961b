package email

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNew_SimulatesWithoutCredentials(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{APIKey: "xkeysib-abc"},
		{From: "noreply@example.com"},
	} {
		s, err := New(cfg, nil, nil)
		if err != nil {
			t.Fatalf("New(%+v): %v", cfg, err)
		}
		if !s.Simulated() {
			t.Errorf("New(%+v) should simulate", cfg)
		}
	}
}

func TestNew_RejectsUnknownPrefix(t *testing.T) {
	_, err := New(Config{APIKey: "sk-123", From: "noreply@example.com"}, nil, nil)
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("err = %v, want ErrInvalidKey", err)
	}
}

func TestNew_SelectsTransport(t *testing.T) {
	api, err := New(Config{APIKey: "xkeysib-1", From: "a@example.com"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := api.transport.(*APITransport); !ok {
		t.Errorf("xkeysib transport = %T", api.transport)
	}
	relay, err := New(Config{APIKey: "xsmtpsib-1", From: "a@example.com"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := relay.transport.(*SMTPTransport)
	if !ok {
		t.Fatalf("xsmtpsib transport = %T", relay.transport)
	}
	if st.host != DefaultSMTPHost || st.port != DefaultSMTPPort || st.login != "a@example.com" {
		t.Errorf("smtp transport = %+v", st)
	}
}

func TestSender_SimulatedSend(t *testing.T) {
	s, _ := New(Config{}, nil, nil)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	res, err := s.SendInvite(context.Background(), InviteData{Email: "v@example.com", InviteURL: "https://app/invite?token=x"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Simulated || res.MessageID != "simulated-1700000000000" {
		t.Errorf("result = %+v", res)
	}
}

func TestRenderInvite_Defaults(t *testing.T) {
	msg, err := RenderInvite(InviteData{Email: "v@example.com", InviteURL: "https://app.example.com/invite?token=abc"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.To != "v@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Subject != "Invitation à rejoindre le réseau de Authority of Record" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	for _, want := range []string{"Authority of Record", "Subcontractor", "7 jours", "https://app.example.com/invite?token=abc"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("text body missing %q", want)
		}
	}
	if !strings.Contains(msg.HTML, "token=abc") {
		t.Error("html body missing invite link")
	}
}

func TestRenderInvite_EscapesHTML(t *testing.T) {
	msg, err := RenderInvite(InviteData{Email: "v@example.com", AoRName: "<b>Acme</b>", InviteURL: "https://x"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(msg.HTML, "<b>Acme</b>") {
		t.Error("html body contains unescaped name")
	}
	if !strings.Contains(msg.Text, "<b>Acme</b>") {
		t.Error("text body should keep the name verbatim")
	}
}

func TestAPITransport_Send(t *testing.T) {
	var got brevoRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SendPath || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("api-key")
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"messageId":"<202410@smtp-relay.mailin.fr>"}`))
	}))
	defer srv.Close()

	tr := NewAPITransport(srv.URL, "xkeysib-test", srv.Client(), time.Second)
	id, err := tr.Send(context.Background(), &Message{
		From: "noreply@example.com", FromName: "Tanzanite", To: "v@example.com",
		Subject: "hi", HTML: "<p>hi</p>", Text: "hi",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "<202410@smtp-relay.mailin.fr>" {
		t.Errorf("id = %q", id)
	}
	if gotKey != "xkeysib-test" {
		t.Errorf("api-key = %q", gotKey)
	}
	if got.Sender.Email != "noreply@example.com" || got.Sender.Name != "Tanzanite" {
		t.Errorf("sender = %+v", got.Sender)
	}
	if len(got.To) != 1 || got.To[0].Email != "v@example.com" || got.HTMLContent != "<p>hi</p>" {
		t.Errorf("body = %+v", got)
	}
}

func TestAPITransport_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"unauthorized","message":"Key not found"}`))
	}))
	defer srv.Close()

	tr := NewAPITransport(srv.URL, "xkeysib-bad", srv.Client(), time.Second)
	_, err := tr.Send(context.Background(), &Message{From: "a@example.com", To: "b@example.com"})
	if err == nil || !strings.Contains(err.Error(), "Key not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestAsciiAddress(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "user@example.com", want: "user@example.com"},
		{in: "user@bücher.example", want: "user@xn--bcher-kva.example"},
		{in: "no-at-sign", wantErr: true},
		{in: "@example.com", wantErr: true},
	}
	for _, tt := range tests {
		got, err := asciiAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("asciiAddress(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("asciiAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeRelay accepts one message without STARTTLS or AUTH and returns the
// DATA payload.
func fakeRelay(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	data := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0]); cmd {
			case "EHLO", "HELO":
				tp.PrintfLine("250 localhost")
			case "MAIL", "RCPT":
				tp.PrintfLine("250 OK")
			case "DATA":
				tp.PrintfLine("354 go ahead")
				b, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				data <- string(b)
				tp.PrintfLine("250 queued")
			case "QUIT":
				tp.PrintfLine("221 bye")
				return
			default:
				tp.PrintfLine("502 unsupported")
			}
		}
	}()
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port, data
}

func TestSMTPTransport_Send(t *testing.T) {
	host, port, data := fakeRelay(t)
	tr := NewSMTPTransport(host, port, "login", "xsmtpsib-secret", 5*time.Second)

	id, err := tr.Send(context.Background(), &Message{
		From: "noreply@example.com", FromName: "Tanzanite", To: "v@bücher.example",
		Subject: "Invitation à rejoindre", HTML: "<p>bonjour</p>", Text: "bonjour",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(id, "<") || !strings.HasSuffix(id, "@example.com>") {
		t.Errorf("message id = %q", id)
	}

	var payload string
	select {
	case payload = <-data:
	case <-time.After(5 * time.Second):
		t.Fatal("relay received no data")
	}
	r := textproto.NewReader(bufio.NewReader(strings.NewReader(payload)))
	hdr, err := r.ReadMIMEHeader()
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Get("To") != "v@xn--bcher-kva.example" {
		t.Errorf("To = %q", hdr.Get("To"))
	}
	if !strings.HasPrefix(hdr.Get("Subject"), "=?utf-8?q?") {
		t.Errorf("Subject not encoded: %q", hdr.Get("Subject"))
	}
	if hdr.Get("Message-Id") != id {
		t.Errorf("Message-ID = %q, want %q", hdr.Get("Message-Id"), id)
	}
	if !strings.HasPrefix(hdr.Get("Content-Type"), "multipart/alternative") {
		t.Errorf("Content-Type = %q", hdr.Get("Content-Type"))
	}
	if !strings.Contains(payload, "<p>bonjour</p>") {
		t.Error("payload missing html part")
	}
}
