package company

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/registry"
)

// eventScanLimit bounds the CompanyCreated events scanned per lookup.
const eventScanLimit = 10

// Hit is a resolved Company object. BadgeID is a fallback used when the
// object itself does not reference its badge.
type Hit struct {
	Object  *chain.Object
	BadgeID string
}

// Strategy is one link of the lookup chain. A miss is (nil, nil).
type Strategy interface {
	Name() string
	Find(ctx context.Context, address string) (*Hit, error)
}

// DefaultStrategies returns the lookup chain in priority order.
func DefaultStrategies(reader chain.Reader, d registry.Deployment) []Strategy {
	return []Strategy{
		&RegistryRef{reader: reader, deployment: d},
		&OwnedObjects{reader: reader, deployment: d},
		&EventLog{reader: reader, deployment: d},
	}
}

// RegistryRef follows the company_id stored on the GlobalRegistry and
// accepts the company only when address owns it.
type RegistryRef struct {
	reader     chain.Reader
	deployment registry.Deployment
}

func (s *RegistryRef) Name() string { return "registry_reference" }

func (s *RegistryRef) Find(ctx context.Context, address string) (*Hit, error) {
	reg, err := s.reader.GetObject(ctx, s.deployment.RegistryID)
	if err != nil {
		return nil, fmt.Errorf("fetch registry: %w", err)
	}
	if reg == nil || !reg.Content.IsMoveObject() {
		return nil, nil
	}
	var fields registry.Fields
	if err := json.Unmarshal(reg.Content.Fields, &fields); err != nil {
		return nil, fmt.Errorf("decode registry fields: %w", err)
	}
	if fields.CompanyID.ID == "" {
		return nil, nil
	}
	obj, err := s.reader.GetObject(ctx, fields.CompanyID.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch company %s: %w", fields.CompanyID.ID, err)
	}
	if obj == nil || !obj.Content.IsMoveObject() {
		return nil, nil
	}
	if obj.Owner == nil || obj.Owner.Kind != chain.OwnerAddress || !strings.EqualFold(obj.Owner.Address, address) {
		return nil, nil
	}
	return &Hit{Object: obj}, nil
}

// OwnedObjects lists Company objects owned by address.
type OwnedObjects struct {
	reader     chain.Reader
	deployment registry.Deployment
}

func (s *OwnedObjects) Name() string { return "owned_objects" }

func (s *OwnedObjects) Find(ctx context.Context, address string) (*Hit, error) {
	objs, err := s.reader.GetOwnedObjects(ctx, address, s.deployment.StructType(registry.StructCompany))
	if err != nil {
		return nil, fmt.Errorf("list owned companies: %w", err)
	}
	for _, obj := range objs {
		if obj.Content.IsMoveObject() {
			return &Hit{Object: obj}, nil
		}
	}
	return nil, nil
}

// EventLog scans recent CompanyCreated events for one emitted for address.
type EventLog struct {
	reader     chain.Reader
	deployment registry.Deployment
}

func (s *EventLog) Name() string { return "event_log" }

func (s *EventLog) Find(ctx context.Context, address string) (*Hit, error) {
	evs, err := s.reader.QueryEvents(ctx, s.deployment.StructType(registry.EventCompany), eventScanLimit, true)
	if err != nil {
		return nil, fmt.Errorf("query company events: %w", err)
	}
	for _, ev := range evs {
		var data struct {
			CompanyID chain.ObjectRef       `json:"company_id"`
			BadgeID   chain.ObjectRef       `json:"badge_id"`
			AoRAdmin  chain.OptionalAddress `json:"aor_admin"`
		}
		if json.Unmarshal(ev.ParsedJSON, &data) != nil {
			continue
		}
		if data.CompanyID.ID == "" || !strings.EqualFold(data.AoRAdmin.Value(), address) {
			continue
		}
		obj, err := s.reader.GetObject(ctx, data.CompanyID.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch company %s: %w", data.CompanyID.ID, err)
		}
		if obj == nil || !obj.Content.IsMoveObject() {
			return nil, nil
		}
		return &Hit{Object: obj, BadgeID: data.BadgeID.ID}, nil
	}
	return nil, nil
}
