package company

import (
	"net/http"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
)

// HandleStatus handles GET /api/company-status?address=.
func (l *Lookup) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}
	address := r.URL.Query().Get("address")
	if address == "" {
		api.WriteBadRequest(w, api.ReasonValidationFailed, "Address parameter is required")
		return
	}
	switch {
	case l.deployment.PackageID == "":
		api.WriteNotConfigured(w, "TANZANITE_PACKAGE_ID not configured")
		return
	case l.deployment.RegistryID == "":
		api.WriteNotConfigured(w, "GLOBAL_REGISTRY_ID not configured")
		return
	}

	st, err := l.Status(r.Context(), address)
	if err != nil {
		appctx.GetLogger(r.Context()).Error("failed to fetch company status", "address", address, "error", err)
		api.WriteInternalError(w, "Failed to fetch company status")
		return
	}
	api.WriteJSON(w, http.StatusOK, st)
}
