// Package company resolves the Company and Badge objects of an AoR address
// through an ordered chain of ledger lookups.
package company

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/registry"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

// ErrNotConfigured means the package or registry id is missing.
var ErrNotConfigured = errors.New("company lookup not configured")

// Company is the projection of an on-chain Company object.
type Company struct {
	ID            string          `json:"id"`
	Name          *string         `json:"name"`
	Country       *string         `json:"country"`
	AuthorityLink *string         `json:"authority_link"`
	AoRAdmin      string          `json:"aor_admin,omitempty"`
	BadgeID       *string         `json:"badge_id"`
	CreatedAt     json.RawMessage `json:"created_at,omitempty"`
}

// Badge is the projection of an on-chain Badge object.
type Badge struct {
	ID          string          `json:"id"`
	CompanyName *string         `json:"company_name"`
	BadgeNumber *string         `json:"badge_number"`
	AoRAdmin    string          `json:"aor_admin,omitempty"`
	IssuedAt    json.RawMessage `json:"issued_at,omitempty"`
}

// Status is the body of GET /api/company-status.
type Status struct {
	HasCompany bool     `json:"hasCompany"`
	Company    *Company `json:"company"`
	Badge      *Badge   `json:"badge"`
}

type companyFields struct {
	ID            chain.ObjectRef  `json:"id"`
	Name          chain.ByteVector `json:"name"`
	Country       chain.ByteVector `json:"country"`
	AuthorityLink chain.ByteVector `json:"authority_link"`
	AoRAdmin      string           `json:"aor_admin"`
	BadgeID       chain.ObjectRef  `json:"badge_id"`
	CreatedAt     json.RawMessage  `json:"created_at"`
}

type badgeFields struct {
	CompanyName chain.ByteVector `json:"company_name"`
	BadgeNumber chain.ByteVector `json:"badge_number"`
	AoRAdmin    string           `json:"aor_admin"`
	IssuedAt    json.RawMessage  `json:"issued_at"`
}

// Lookup runs the strategies in order; the first hit wins.
type Lookup struct {
	reader     chain.Reader
	deployment registry.Deployment
	strategies []Strategy
	logger     *slog.Logger
}

// NewLookup returns a lookup with the default strategy chain: registry
// reference, owned objects, then the CompanyCreated event log.
func NewLookup(reader chain.Reader, deployment registry.Deployment, logger *slog.Logger) *Lookup {
	return &Lookup{
		reader:     reader,
		deployment: deployment,
		strategies: DefaultStrategies(reader, deployment),
		logger:     logutil.NoopIfNil(logger),
	}
}

// WithStrategies replaces the strategy chain.
func (l *Lookup) WithStrategies(s ...Strategy) *Lookup {
	l.strategies = s
	return l
}

// Status resolves the company owned by address.
func (l *Lookup) Status(ctx context.Context, address string) (*Status, error) {
	if l.deployment.Check() != nil {
		return nil, ErrNotConfigured
	}
	log := appctx.GetLogger(ctx)

	for _, s := range l.strategies {
		hit, err := s.Find(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("company lookup strategy failed", "strategy", s.Name(), "address", address, "error", err)
			continue
		}
		if hit == nil {
			log.Debug("company lookup strategy missed", "strategy", s.Name(), "address", address)
			continue
		}
		log.Debug("company found", "strategy", s.Name(), "company_id", hit.Object.ObjectID)
		company, badgeID := project(log, hit)
		return &Status{
			HasCompany: true,
			Company:    company,
			Badge:      l.badge(ctx, badgeID),
		}, nil
	}
	return &Status{}, nil
}

func project(log *slog.Logger, hit *Hit) (*Company, string) {
	var f companyFields
	if len(hit.Object.Content.Fields) > 0 {
		if err := json.Unmarshal(hit.Object.Content.Fields, &f); err != nil {
			log.Debug("undecodable company fields", "company_id", hit.Object.ObjectID, "error", err)
		}
	}
	id := f.ID.ID
	if id == "" {
		id = hit.Object.ObjectID
	}
	badgeID := f.BadgeID.ID
	if badgeID == "" {
		badgeID = hit.BadgeID
	}
	c := &Company{
		ID:            id,
		Name:          f.Name.Ptr(),
		Country:       f.Country.Ptr(),
		AuthorityLink: f.AuthorityLink.Ptr(),
		AoRAdmin:      f.AoRAdmin,
		CreatedAt:     f.CreatedAt,
	}
	if badgeID != "" {
		c.BadgeID = &badgeID
	}
	return c, badgeID
}

// badge fetches the badge; any failure yields nil.
func (l *Lookup) badge(ctx context.Context, id string) *Badge {
	if id == "" {
		return nil
	}
	obj, err := l.reader.GetObject(ctx, id)
	if err != nil {
		appctx.GetLogger(ctx).Warn("failed to fetch badge", "badge_id", id, "error", err)
		return nil
	}
	if obj == nil || !obj.Content.IsMoveObject() {
		return nil
	}
	var f badgeFields
	if len(obj.Content.Fields) > 0 {
		if err := json.Unmarshal(obj.Content.Fields, &f); err != nil {
			appctx.GetLogger(ctx).Debug("undecodable badge fields", "badge_id", id, "error", err)
		}
	}
	return &Badge{
		ID:          id,
		CompanyName: f.CompanyName.Ptr(),
		BadgeNumber: f.BadgeNumber.Ptr(),
		AoRAdmin:    f.AoRAdmin,
		IssuedAt:    f.IssuedAt,
	}
}
