package identity

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// MePath is the identity endpoint queried by the lookup resolver.
const MePath = "/api/auth/me"

// Lookup resolves the caller by forwarding its cookies to an identity
// endpoint.
type Lookup struct {
	rc *resty.Client
}

// NewLookup returns a lookup against baseURL. A nil hc uses resty's default
// transport.
func NewLookup(baseURL string, hc *http.Client, timeout time.Duration) *Lookup {
	rc := resty.New()
	if hc != nil {
		rc = resty.NewWithClient(hc)
	}
	rc.SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}
	return &Lookup{rc: rc}
}

// Resolve implements Resolver.
func (l *Lookup) Resolve(r *http.Request) (*Identity, error) {
	cookies := r.Header.Get("Cookie")
	if cookies == "" {
		return nil, ErrNoIdentity
	}
	var body struct {
		Wallet  string `json:"wallet"`
		Address string `json:"address"`
		Email   string `json:"email"`
	}
	resp, err := l.rc.R().
		SetContext(r.Context()).
		SetHeader("Cookie", cookies).
		SetHeader("Accept", "application/json").
		SetResult(&body).
		Get(MePath)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusForbidden:
		return nil, ErrNoIdentity
	case resp.StatusCode() != http.StatusOK:
		return nil, fmt.Errorf("identity lookup: unexpected status %d", resp.StatusCode())
	}
	wallet := body.Wallet
	if wallet == "" {
		wallet = body.Address
	}
	if wallet == "" {
		return nil, ErrNoIdentity
	}
	return &Identity{Wallet: wallet, Email: body.Email}, nil
}
