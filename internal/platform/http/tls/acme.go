package tls

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/config"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

const (
	challengePrefix = "/.well-known/acme-challenge/"

	// challengeTTL bounds how long a presented token is served.
	challengeTTL = 10 * time.Minute

	// renewBefore is the remaining validity under which a stored
	// certificate is replaced at startup.
	renewBefore = 30 * 24 * time.Hour
)

// account implements lego's registration.User.
type account struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (a *account) GetEmail() string                        { return a.Email }
func (a *account) GetRegistration() *registration.Resource { return a.Registration }
func (a *account) GetPrivateKey() crypto.PrivateKey        { return a.key }

type challenge struct {
	keyAuth   string
	expiresAt time.Time
}

// HTTP01Provider serves HTTP-01 challenges from memory so the server keeps
// ownership of port 80.
type HTTP01Provider struct {
	mu     sync.Mutex
	tokens map[string]challenge
	now    func() time.Time
}

// NewHTTP01Provider returns an empty provider.
func NewHTTP01Provider() *HTTP01Provider {
	return &HTTP01Provider{tokens: make(map[string]challenge), now: time.Now}
}

// Present implements challenge.Provider.
func (p *HTTP01Provider) Present(domain, token, keyAuth string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[token] = challenge{keyAuth: keyAuth, expiresAt: p.now().Add(challengeTTL)}
	return nil
}

// CleanUp implements challenge.Provider.
func (p *HTTP01Provider) CleanUp(domain, token, keyAuth string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, token)
	return nil
}

func (p *HTTP01Provider) lookup(token string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.tokens[token]
	if !ok {
		return "", false
	}
	if p.now().After(c.expiresAt) {
		delete(p.tokens, token)
		return "", false
	}
	return c.keyAuth, true
}

// ServeHTTP answers /.well-known/acme-challenge/{token}.
func (p *HTTP01Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.URL.Path, challengePrefix)
	if !ok || token == "" || strings.Contains(token, "/") {
		http.NotFound(w, r)
		return
	}
	keyAuth, ok := p.lookup(token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, keyAuth)
}

// ACMEManager obtains and serves a certificate for a single domain.
type ACMEManager struct {
	cfg      *config.ACMEConfig
	logger   *slog.Logger
	provider *HTTP01Provider

	mu   sync.RWMutex
	cert *cryptotls.Certificate
}

// NewACMEManager creates a manager whose challenge handler is usable
// before Init returns.
func NewACMEManager(cfg *config.ACMEConfig, logger *slog.Logger) *ACMEManager {
	return &ACMEManager{
		cfg:      cfg,
		logger:   logutil.NoopIfNil(logger),
		provider: NewHTTP01Provider(),
	}
}

// ChallengeHandler serves HTTP-01 challenges. Mount it on the plain HTTP listener.
func (m *ACMEManager) ChallengeHandler() http.Handler { return m.provider }

// Init loads the stored certificate, or obtains a new one when none is
// stored or the stored one expires within 30 days.
func (m *ACMEManager) Init(ctx context.Context) error {
	if m.cfg.Domain == "" {
		return errors.New("ACME domain is required")
	}
	if m.cfg.Email == "" {
		return errors.New("ACME email is required")
	}
	if err := os.MkdirAll(m.cfg.StorageDir, 0o700); err != nil {
		return fmt.Errorf("failed to create ACME storage dir: %w", err)
	}

	if cert, err := cryptotls.LoadX509KeyPair(m.path("cert.pem"), m.path("key.pem")); err == nil {
		if !expiresWithin(&cert, renewBefore) {
			m.setCert(&cert)
			m.logger.Info("loaded existing ACME certificate", "domain", m.cfg.Domain)
			return nil
		}
		m.logger.Info("stored ACME certificate is due for renewal", "domain", m.cfg.Domain)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.obtain()
}

// TLSConfig returns a listener config that serves the current certificate.
func (m *ACMEManager) TLSConfig() *cryptotls.Config {
	return &cryptotls.Config{
		GetCertificate: func(*cryptotls.ClientHelloInfo) (*cryptotls.Certificate, error) {
			m.mu.RLock()
			defer m.mu.RUnlock()
			if m.cert == nil {
				return nil, errors.New("no certificate available")
			}
			return m.cert, nil
		},
		MinVersion: cryptotls.VersionTLS12,
	}
}

func (m *ACMEManager) setCert(c *cryptotls.Certificate) {
	m.mu.Lock()
	m.cert = c
	m.mu.Unlock()
}

func (m *ACMEManager) path(name string) string {
	return filepath.Join(m.cfg.StorageDir, name)
}

func (m *ACMEManager) obtain() error {
	acct, err := m.loadAccount()
	if err != nil {
		return fmt.Errorf("failed to load ACME account: %w", err)
	}

	legoCfg := lego.NewConfig(acct)
	legoCfg.CADirURL = m.directory()
	legoCfg.Certificate.KeyType = certcrypto.EC256

	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return fmt.Errorf("failed to create ACME client: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(m.provider); err != nil {
		return fmt.Errorf("failed to set HTTP-01 provider: %w", err)
	}

	if acct.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return fmt.Errorf("failed to register ACME account: %w", err)
		}
		acct.Registration = reg
		if err := m.saveAccount(acct); err != nil {
			m.logger.Warn("failed to save ACME account", "error", err)
		}
	}

	m.logger.Info("obtaining ACME certificate", "domain", m.cfg.Domain, "directory", legoCfg.CADirURL)
	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{m.cfg.Domain},
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to obtain certificate: %w", err)
	}
	if err := os.WriteFile(m.path("cert.pem"), res.Certificate, 0o644); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := os.WriteFile(m.path("key.pem"), res.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}
	cert, err := cryptotls.X509KeyPair(res.Certificate, res.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	m.setCert(&cert)
	m.logger.Info("obtained ACME certificate", "domain", m.cfg.Domain)
	return nil
}

func (m *ACMEManager) directory() string {
	switch {
	case m.cfg.Directory != "":
		return m.cfg.Directory
	case m.cfg.UseStaging:
		return lego.LEDirectoryStaging
	default:
		return lego.LEDirectoryProduction
	}
}

// loadAccount returns the stored account, or a fresh unregistered one.
func (m *ACMEManager) loadAccount() (*account, error) {
	data, errData := os.ReadFile(m.path("account.json"))
	keyPEM, errKey := os.ReadFile(m.path("account.key"))
	if errData == nil && errKey == nil {
		acct := &account{}
		if err := json.Unmarshal(data, acct); err == nil {
			if key, err := certcrypto.ParsePEMPrivateKey(keyPEM); err == nil {
				acct.key = key
				return acct, nil
			}
		}
		m.logger.Warn("stored ACME account unreadable, creating a new one")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}
	return &account{Email: m.cfg.Email, key: key}, nil
}

func (m *ACMEManager) saveAccount(acct *account) error {
	data, err := json.MarshalIndent(acct, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path("account.json"), data, 0o600); err != nil {
		return err
	}
	return os.WriteFile(m.path("account.key"), certcrypto.PEMEncode(acct.key), 0o600)
}
