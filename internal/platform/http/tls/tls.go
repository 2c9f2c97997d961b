// Package tls provides the certificates served by the HTTPS listener:
// static files, a generated self-signed pair for development, or ACME.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/config"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

var (
	ErrInvalidTLSMode = errors.New("invalid TLS mode")
	ErrMissingCert    = errors.New("missing certificate or key file")

	// ErrACMEListener is returned for acme mode, whose certificate comes
	// from the ACME manager rather than from files.
	ErrACMEListener = errors.New("tls.mode=acme is served by the ACME manager")
)

const (
	selfSignedDir      = "data/certs"
	selfSignedValidity = 365 * 24 * time.Hour
)

// Manager loads or generates the certificate for the static and selfsigned modes.
type Manager struct {
	cfg    *config.TLSConfig
	logger *slog.Logger
}

// NewManager creates a certificate manager.
func NewManager(cfg *config.TLSConfig, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logutil.NoopIfNil(logger)}
}

// ServerConfig returns the listener configuration for hostname, or nil
// when TLS is off.
func (m *Manager) ServerConfig(hostname string) (*cryptotls.Config, error) {
	var (
		cert cryptotls.Certificate
		err  error
	)
	switch m.cfg.Mode {
	case "off":
		return nil, nil
	case "static":
		if m.cfg.CertFile == "" || m.cfg.KeyFile == "" {
			return nil, ErrMissingCert
		}
		cert, err = cryptotls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		m.logger.Info("loaded static TLS certificate", "cert_file", m.cfg.CertFile)
	case "selfsigned":
		cert, err = m.selfSigned(hostname)
		if err != nil {
			return nil, err
		}
	case "acme":
		return nil, ErrACMEListener
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTLSMode, m.cfg.Mode)
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

// selfSigned reuses the pair under SelfSignedDir while it is valid and
// regenerates it otherwise.
func (m *Manager) selfSigned(hostname string) (cryptotls.Certificate, error) {
	dir := m.cfg.SelfSignedDir
	if dir == "" {
		dir = selfSignedDir
	}
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	if cert, err := cryptotls.LoadX509KeyPair(certFile, keyFile); err == nil && !expiresWithin(&cert, 0) {
		m.logger.Info("loaded existing self-signed certificate", "cert_file", certFile)
		return cert, nil
	}

	m.logger.Info("generating self-signed certificate", "hostname", hostname)
	certPEM, keyPEM, notAfter, err := generateSelfSigned(hostname)
	if err != nil {
		return cryptotls.Certificate{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to create cert directory: %w", err)
	}
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write key: %w", err)
	}
	m.logger.Info("generated self-signed certificate", "cert_file", certFile, "expires", notAfter)
	return cryptotls.X509KeyPair(certPEM, keyPEM)
}

func generateSelfSigned(hostname string) (certPEM, keyPEM []byte, notAfter time.Time, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, notAfter, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, notAfter, fmt.Errorf("failed to generate serial: %w", err)
	}

	now := time.Now()
	notAfter = now.Add(selfSignedValidity)
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Tanzanite Development"}, CommonName: hostname},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	if ip := net.ParseIP(hostname); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
	} else if hostname != "" && hostname != "localhost" {
		tmpl.DNSNames = append(tmpl.DNSNames, hostname)
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, notAfter, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, notAfter, fmt.Errorf("failed to marshal key: %w", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, notAfter, nil
}

// expiresWithin reports whether the leaf of cert expires within d. An
// unparseable leaf counts as expired.
func expiresWithin(cert *cryptotls.Certificate, d time.Duration) bool {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return true
		}
		var err error
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return true
		}
	}
	return time.Now().Add(d).After(leaf.NotAfter)
}
