package registry

import (
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
)

// Move entry points of the registry module.
const (
	FuncRegisterAoR    = "register_aor"
	FuncCreateCompany  = "create_company"
	StructCompany      = "Company"
	StructBadge        = "Badge"
	EventAoRRegistered = "AoRRegistered"
	EventCompany       = "CompanyCreated"
)

// Deployment identifies the published registry package and its shared
// GlobalRegistry object.
type Deployment struct {
	PackageID  string
	RegistryID string
	GasBudget  uint64
}

// Check returns ErrNotConfigured when either id is missing.
func (d Deployment) Check() error {
	if d.PackageID == "" || d.RegistryID == "" {
		return ErrNotConfigured
	}
	return nil
}

// Target returns the fully qualified move call target for fn.
func (d Deployment) Target(fn string) string {
	return d.PackageID + "::registry::" + fn
}

// StructType returns the fully qualified type of a registry struct or event.
func (d Deployment) StructType(name string) string {
	return d.PackageID + "::registry::" + name
}

// RegisterRequest is the body of POST /api/register-aor.
type RegisterRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateCompanyRequest is the body of POST /api/create-company.
type CreateCompanyRequest struct {
	Name          string `json:"name" validate:"required"`
	Country       string `json:"country" validate:"required"`
	AuthorityLink string `json:"authority_link" validate:"required"`
}

// BuildRegister builds the register_aor call for wallet.
func BuildRegister(req *RegisterRequest, wallet string, d Deployment) *chain.Transaction {
	return &chain.Transaction{
		Sender: wallet,
		MoveCall: chain.MoveCall{
			Target: d.Target(FuncRegisterAoR),
			Arguments: []chain.Argument{
				chain.ObjectArg(d.RegistryID),
				chain.BytesArg(req.Name),
			},
		},
		GasBudget: d.GasBudget,
	}
}

// BuildCreateCompany builds the create_company call for wallet.
func BuildCreateCompany(req *CreateCompanyRequest, wallet string, d Deployment) *chain.Transaction {
	return &chain.Transaction{
		Sender: wallet,
		MoveCall: chain.MoveCall{
			Target: d.Target(FuncCreateCompany),
			Arguments: []chain.Argument{
				chain.ObjectArg(d.RegistryID),
				chain.BytesArg(req.Name),
				chain.BytesArg(req.Country),
				chain.BytesArg(req.AuthorityLink),
			},
		},
		GasBudget: d.GasBudget,
	}
}
