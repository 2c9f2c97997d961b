package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/identity"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	httpmw "github.com/MahdiBaghbani/tanzanite-go/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/http/realip"
)

// recordingHandler captures slog records for testing without JSON parsing.
type recordingHandler struct {
	records []slog.Record
	attrs   map[string]any
	groups  []string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		attrs: make(map[string]any),
	}
}

func (h *recordingHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &recordingHandler{
		records: h.records,
		attrs:   make(map[string]any),
		groups:  h.groups,
	}
	for k, v := range h.attrs {
		nh.attrs[k] = v
	}
	for _, a := range attrs {
		nh.attrs[a.Key] = a.Value.Any()
	}
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := &recordingHandler{
		records: h.records,
		attrs:   make(map[string]any),
		groups:  append(h.groups, name),
	}
	for k, v := range h.attrs {
		nh.attrs[k] = v
	}
	return nh
}

func (h *recordingHandler) getAttr(key string) (any, bool) {
	v, ok := h.attrs[key]
	return v, ok
}

const testSecret = "0123456789abcdef0123456789abcdef"

func newSessions(t *testing.T) *identity.Sessions {
	t.Helper()
	s, err := identity.NewSessions(testSecret, "")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func sessionCookie(t *testing.T, s *identity.Sessions, wallet string) *http.Cookie {
	t.Helper()
	token, err := s.Issue(identity.Identity{Wallet: wallet}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return s.Cookie(token, time.Hour, false)
}

func TestAuthGate_EnrichesLoggerWithWallet(t *testing.T) {
	recorder := newRecordingHandler()
	logger := slog.New(recorder)
	tp := realip.NewTrustedProxies([]string{"127.0.0.0/8"})
	sessions := newSessions(t)

	const wallet = "0xabc123"

	var capturedWallet, contextWallet string
	var capturedHandler *recordingHandler
	var capturedIdentity *identity.Identity

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerLogger := appctx.GetLogger(r.Context())
		if rh, ok := handlerLogger.Handler().(*recordingHandler); ok {
			capturedHandler = rh
			if v, exists := rh.getAttr("wallet"); exists {
				capturedWallet = v.(string)
			}
		}
		contextWallet, _ = appctx.WalletFromContext(r.Context())
		capturedIdentity = GetIdentityFromContext(r.Context())
		handlerLogger.Info("handler executed")
		w.WriteHeader(http.StatusOK)
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(logger, tp))
	r.Use(NewAuthGate(AuthGateConfig{
		RequireAuth: func(path string) bool {
			return path == "/api/protected"
		},
		Log:      logger,
		Resolver: identity.NewChain(logger, sessions),
	}))
	r.Get("/api/protected", testHandler)

	req := httptest.NewRequest("GET", "/api/protected", nil)
	req.AddCookie(sessionCookie(t, sessions, wallet))
	req.RemoteAddr = "127.0.0.1:12345"
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if capturedHandler == nil {
		t.Fatal("expected to capture recording handler")
	}
	if capturedWallet != wallet {
		t.Errorf("expected wallet %q in handler logger, got %q", wallet, capturedWallet)
	}
	if contextWallet != wallet {
		t.Errorf("expected wallet %q in context, got %q", wallet, contextWallet)
	}
	if capturedIdentity == nil || capturedIdentity.Wallet != wallet {
		t.Errorf("identity = %+v", capturedIdentity)
	}
}

func TestAuthGate_RejectsWithoutIdentity(t *testing.T) {
	sessions := newSessions(t)
	other, err := identity.NewSessions("ffffffffffffffffffffffffffffffff", "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		cookie *http.Cookie
		reason string
	}{
		{name: "no cookie", reason: "unauthenticated"},
		{name: "foreign key", cookie: sessionCookie(t, other, "0xabc"), reason: "session_expired"},
		{name: "garbage", cookie: &http.Cookie{Name: identity.DefaultCookieName, Value: "not-a-jwt"}, reason: "session_expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			gate := NewAuthGate(AuthGateConfig{
				RequireAuth: func(string) bool { return true },
				Resolver:    sessions,
			})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

			req := httptest.NewRequest(http.MethodGet, "/api/vendors", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rr := httptest.NewRecorder()
			gate.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if called {
				t.Error("next handler ran without identity")
			}
			body := rr.Body.String()
			if !strings.Contains(body, tt.reason) || !strings.Contains(body, identity.UnauthenticatedMessage) {
				t.Errorf("body = %s", body)
			}
		})
	}
}

func TestAuthGate_NoWalletForPublicEndpoints(t *testing.T) {
	recorder := newRecordingHandler()
	logger := slog.New(recorder)
	tp := realip.NewTrustedProxies([]string{"127.0.0.0/8"})
	sessions := newSessions(t)

	var hasWallet bool

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerLogger := appctx.GetLogger(r.Context())
		if rh, ok := handlerLogger.Handler().(*recordingHandler); ok {
			_, hasWallet = rh.getAttr("wallet")
		}
		w.WriteHeader(http.StatusOK)
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(logger, tp))
	r.Use(NewAuthGate(AuthGateConfig{
		RequireAuth: func(path string) bool {
			return false // all paths are public for this test
		},
		Log:      logger,
		Resolver: sessions,
	}))
	r.Get("/api/registry-status", testHandler)

	// A valid cookie on a public path is ignored.
	req := httptest.NewRequest("GET", "/api/registry-status", nil)
	req.AddCookie(sessionCookie(t, sessions, "0xabc"))
	req.RemoteAddr = "127.0.0.1:12345"
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if hasWallet {
		t.Error("expected no wallet in logger for public endpoint")
	}
}

func TestAuthGate_NilResolver_PublicEndpointSucceeds(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r := chi.NewRouter()
	r.Use(NewAuthGate(AuthGateConfig{
		RequireAuth: func(path string) bool {
			return false // all paths are public
		},
		Resolver: nil, // nil is safe when RequireAuth returns false
	}))
	r.Get("/public", testHandler)

	req := httptest.NewRequest("GET", "/public", nil)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for public endpoint with nil resolver, got %d", rr.Code)
	}
}
