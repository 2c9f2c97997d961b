package registry

import (
	"encoding/json"
	"net/http"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
)

// Status is the read projection of the GlobalRegistry object.
type Status struct {
	IsRegistered bool    `json:"isRegistered"`
	Admin        *string `json:"admin"`
	Name         *string `json:"name"`
	RegistryID   string  `json:"registryId"`
}

// Fields is the Move content of the GlobalRegistry object.
type Fields struct {
	AoRAdmin  chain.OptionalAddress `json:"aor_admin"`
	AoRName   chain.ByteVector      `json:"aor_name"`
	CompanyID chain.ObjectRef       `json:"company_id"`
}

// ProjectStatus builds the status of registryID from its fields. Registered
// iff the admin is present and non-empty; the name is only reported then.
func ProjectStatus(registryID string, f *Fields) *Status {
	st := &Status{RegistryID: registryID}
	if admin := f.AoRAdmin.Value(); admin != "" {
		st.IsRegistered = true
		st.Admin = &admin
		st.Name = f.AoRName.Ptr()
	}
	return st
}

// HandleStatus handles GET /api/registry-status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}
	if h.deployment.RegistryID == "" {
		api.WriteNotConfigured(w, "GLOBAL_REGISTRY_ID not configured")
		return
	}
	ctx := r.Context()
	log := appctx.GetLogger(ctx)

	obj, err := h.reader.GetObject(ctx, h.deployment.RegistryID)
	if err != nil {
		log.Error("failed to fetch registry status", "registry_id", h.deployment.RegistryID, "error", err)
		api.WriteExternalError(w, "Failed to fetch registry status: "+err.Error())
		return
	}
	if obj == nil {
		api.WriteNotFound(w, "GlobalRegistry object not found")
		return
	}
	if !obj.Content.IsMoveObject() {
		api.WriteInternalError(w, "Invalid GlobalRegistry object format")
		return
	}

	var fields Fields
	if len(obj.Content.Fields) > 0 {
		if err := json.Unmarshal(obj.Content.Fields, &fields); err != nil {
			log.Error("registry fields not decodable", "error", err)
			api.WriteInternalError(w, "Invalid GlobalRegistry object format")
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, ProjectStatus(h.deployment.RegistryID, &fields))
}
