package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ExecutePath is the relay endpoint for sponsored execution.
const ExecutePath = "/v1/transactions/execute"

// ErrSponsor wraps every sponsored execution failure.
var ErrSponsor = errors.New("sponsored execution failed")

// Executor sponsors, signs and executes a built transaction.
type Executor interface {
	Execute(ctx context.Context, tx *Transaction) (*TxResponse, error)
}

// SponsorClient posts transactions to the gas-sponsorship relay.
type SponsorClient struct {
	rc *resty.Client
}

// NewSponsorClient returns a relay client. A nil hc uses resty's default transport.
func NewSponsorClient(baseURL, apiKey string, hc *http.Client, timeout time.Duration) *SponsorClient {
	rc := resty.New()
	if hc != nil {
		rc = resty.NewWithClient(hc)
	}
	rc.SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Api-Key", apiKey)
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}
	return &SponsorClient{rc: rc}
}

// Execute submits tx and returns the digest and emitted events.
func (c *SponsorClient) Execute(ctx context.Context, tx *Transaction) (*TxResponse, error) {
	var out TxResponse
	var relayErr struct {
		Error string `json:"error"`
	}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(tx).
		SetResult(&out).
		SetError(&relayErr).
		Post(ExecutePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSponsor, err)
	}
	if resp.IsError() {
		msg := relayErr.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return nil, fmt.Errorf("%w: relay returned %d: %s", ErrSponsor, resp.StatusCode(), msg)
	}
	if out.Digest == "" {
		return nil, fmt.Errorf("%w: relay response has no digest", ErrSponsor)
	}
	return &out, nil
}

var _ Executor = (*SponsorClient)(nil)
