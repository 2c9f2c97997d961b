package tls

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/config"
)

func TestHTTP01Provider_PresentAndCleanUp(t *testing.T) {
	p := NewHTTP01Provider()

	if err := p.Present("example.com", "tok1", "keyAuth1"); err != nil {
		t.Fatalf("Present(tok1): %v", err)
	}
	if err := p.Present("example.com", "tok2", "keyAuth2"); err != nil {
		t.Fatalf("Present(tok2): %v", err)
	}
	if got, ok := p.lookup("tok1"); !ok || got != "keyAuth1" {
		t.Errorf("tok1: got %q, ok=%v", got, ok)
	}

	if err := p.CleanUp("example.com", "tok1", "keyAuth1"); err != nil {
		t.Fatalf("CleanUp(tok1): %v", err)
	}
	if _, ok := p.lookup("tok1"); ok {
		t.Error("tok1 should be deleted after CleanUp")
	}
	if got, ok := p.lookup("tok2"); !ok || got != "keyAuth2" {
		t.Errorf("tok2 after tok1 cleanup: got %q, ok=%v", got, ok)
	}
}

func TestHTTP01Provider_ConcurrentAccess(t *testing.T) {
	p := NewHTTP01Provider()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("tok-%d", i)
			_ = p.Present("example.com", token, "auth")
			p.lookup(token)
			_ = p.CleanUp("example.com", token, "auth")
		}(i)
	}
	wg.Wait()
}

func TestHTTP01Provider_ServeHTTP(t *testing.T) {
	p := NewHTTP01Provider()
	_ = p.Present("example.com", "known", "known.thumbprint")

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"known token", "/.well-known/acme-challenge/known", http.StatusOK, "known.thumbprint"},
		{"unknown token", "/.well-known/acme-challenge/unknown", http.StatusNotFound, ""},
		{"empty token", "/.well-known/acme-challenge/", http.StatusNotFound, ""},
		{"nested path", "/.well-known/acme-challenge/known/x", http.StatusNotFound, ""},
		{"wrong prefix", "/api/healthz", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" {
				if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
					t.Errorf("Content-Type = %q, want text/plain", ct)
				}
				if rec.Body.String() != tt.wantBody {
					t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
				}
			}
		})
	}
}

func TestHTTP01Provider_TokenExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewHTTP01Provider()
	p.now = func() time.Time { return now }

	_ = p.Present("example.com", "tok-expire", "keyAuth-expire")
	now = now.Add(challengeTTL + time.Minute)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, challengePrefix+"tok-expire", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if _, ok := p.tokens["tok-expire"]; ok {
		t.Error("expected expired token to be deleted")
	}
}

func TestACMEManager_ChallengeHandlerBeforeInit(t *testing.T) {
	m := NewACMEManager(&config.ACMEConfig{StorageDir: t.TempDir()}, nil)

	rec := httptest.NewRecorder()
	m.ChallengeHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, challengePrefix+"absent", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestACMEManager_InitRequiresDomainAndEmail(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ACMEConfig
	}{
		{"no domain", config.ACMEConfig{Email: "ops@example.com"}},
		{"no email", config.ACMEConfig{Domain: "app.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.StorageDir = t.TempDir()
			if err := NewACMEManager(&tt.cfg, nil).Init(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestACMEManager_InitLoadsStoredCertificate(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM, _, err := generateSelfSigned("app.example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cert.pem"), certPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "key.pem"), keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewACMEManager(&config.ACMEConfig{
		Domain:     "app.example.com",
		Email:      "ops@example.com",
		StorageDir: dir,
		// Unreachable: a stored certificate must not trigger a network call.
		Directory: "https://127.0.0.1:1/directory",
	}, nil)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	cert, err := m.TLSConfig().GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate: %v", err)
	}
}

func TestACMEManager_TLSConfigWithoutCertificate(t *testing.T) {
	m := NewACMEManager(&config.ACMEConfig{}, nil)
	if _, err := m.TLSConfig().GetCertificate(nil); err == nil {
		t.Error("expected error before a certificate is loaded")
	}
}

func TestACMEManager_AccountRoundTrip(t *testing.T) {
	m := NewACMEManager(&config.ACMEConfig{Email: "ops@example.com", StorageDir: t.TempDir()}, nil)

	acct, err := m.loadAccount()
	if err != nil {
		t.Fatalf("loadAccount: %v", err)
	}
	if acct.Registration != nil {
		t.Error("fresh account should be unregistered")
	}
	if err := m.saveAccount(acct); err != nil {
		t.Fatalf("saveAccount: %v", err)
	}

	loaded, err := m.loadAccount()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.GetEmail() != "ops@example.com" || loaded.GetPrivateKey() == nil {
		t.Errorf("reloaded account = %+v", loaded)
	}
}

func TestACMEManager_Directory(t *testing.T) {
	tests := []struct {
		cfg  config.ACMEConfig
		want string
	}{
		{config.ACMEConfig{Directory: "https://pebble:14000/dir"}, "https://pebble:14000/dir"},
		{config.ACMEConfig{UseStaging: true}, "https://acme-staging-v02.api.letsencrypt.org/directory"},
		{config.ACMEConfig{}, "https://acme-v02.api.letsencrypt.org/directory"},
	}
	for _, tt := range tests {
		if got := NewACMEManager(&tt.cfg, nil).directory(); got != tt.want {
			t.Errorf("directory() = %q, want %q", got, tt.want)
		}
	}
}
