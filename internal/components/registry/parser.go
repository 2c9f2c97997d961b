package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
)

// RegisterResult is the response of a successful register-aor call.
type RegisterResult struct {
	Admin    string `json:"admin"`
	Name     string `json:"name"`
	TxDigest string `json:"txDigest"`
}

// CreateCompanyResult is the response of a successful create-company call.
type CreateCompanyResult struct {
	CompanyID   string `json:"company_id"`
	BadgeID     string `json:"badge_id"`
	AoRAdmin    string `json:"aor_admin"`
	CompanyName string `json:"company_name"`
	BadgeNumber string `json:"badge_number"`
	TxDigest    string `json:"txDigest"`
}

// FindEvent returns the first event whose type contains marker.
func FindEvent(events []chain.Event, marker string) (*chain.Event, error) {
	for i := range events {
		if strings.Contains(events[i].Type, marker) {
			return &events[i], nil
		}
	}
	return nil, fmt.Errorf("%s %w", marker, ErrEventMissing)
}

// ParseRegister extracts the AoRRegistered event of res.
func ParseRegister(res *chain.TxResponse) (*RegisterResult, error) {
	ev, err := FindEvent(res.Events, EventAoRRegistered)
	if err != nil {
		return nil, err
	}
	var body struct {
		Admin chain.OptionalAddress `json:"admin"`
		Name  chain.ByteVector      `json:"name"`
	}
	if err := json.Unmarshal(ev.ParsedJSON, &body); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", EventAoRRegistered, err)
	}
	name, _ := body.Name.Text()
	return &RegisterResult{
		Admin:    body.Admin.Value(),
		Name:     name,
		TxDigest: res.Digest,
	}, nil
}

// ParseCreateCompany extracts the CompanyCreated event of res.
func ParseCreateCompany(res *chain.TxResponse) (*CreateCompanyResult, error) {
	ev, err := FindEvent(res.Events, EventCompany)
	if err != nil {
		return nil, err
	}
	var body struct {
		CompanyID   chain.ObjectRef       `json:"company_id"`
		BadgeID     chain.ObjectRef       `json:"badge_id"`
		AoRAdmin    chain.OptionalAddress `json:"aor_admin"`
		CompanyName chain.ByteVector      `json:"company_name"`
		BadgeNumber chain.ByteVector      `json:"badge_number"`
	}
	if err := json.Unmarshal(ev.ParsedJSON, &body); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", EventCompany, err)
	}
	name, _ := body.CompanyName.Text()
	badge, _ := body.BadgeNumber.Text()
	return &CreateCompanyResult{
		CompanyID:   body.CompanyID.ID,
		BadgeID:     body.BadgeID.ID,
		AoRAdmin:    body.AoRAdmin.Value(),
		CompanyName: name,
		BadgeNumber: badge,
		TxDigest:    res.Digest,
	}, nil
}
