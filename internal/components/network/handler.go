package network

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/email"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/identity"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/events"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/validation"
)

// Response messages of POST /api/invite/network.
const (
	MsgInviteCreated      = "Email envoyé avec succès et invitation créée dans Firestore"
	MsgInviteStoreFailed  = "Email envoyé avec succès mais erreur lors de la création dans Firestore"
	MsgEmailNotSent       = "L'email n'a pas pu être envoyé"
	MsgEmailRequired      = "Email requis"
	MsgEmailInvalid       = "Format d'email invalide"
	MsgInviteServerError  = "Erreur serveur lors de la création de l'invitation"
	MsgVendorsServerError = "Erreur serveur lors de la récupération des vendors"
)

// Mailer sends invitation emails.
type Mailer interface {
	SendInvite(ctx context.Context, data email.InviteData) (*email.Result, error)
}

// HandlerConfig carries the invitation settings of the handler.
type HandlerConfig struct {
	// InviteURL builds the onboarding link for a token.
	InviteURL func(token string) string
	AoRName   string
	TTL       time.Duration
}

// Handler serves the invitation and vendor endpoints.
type Handler struct {
	manager   *Manager
	mailer    Mailer
	cfg       HandlerConfig
	publisher events.Publisher
	log       *slog.Logger
}

// NewHandler creates a network handler. A nil publisher disables events.
func NewHandler(manager *Manager, mailer Mailer, cfg HandlerConfig, publisher events.Publisher, logger *slog.Logger) *Handler {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultInviteTTL
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Handler{
		manager:   manager,
		mailer:    mailer,
		cfg:       cfg,
		publisher: publisher,
		log:       logutil.NoopIfNil(logger),
	}
}

// InviteResponse is the body of POST /api/invite/network.
type InviteResponse struct {
	Success        bool    `json:"success"`
	Message        string  `json:"message"`
	InviteID       *string `json:"invite_id"`
	EmailSent      bool    `json:"email_sent"`
	EmailMessageID *string `json:"email_message_id"`
	EmailError     *string `json:"email_error"`
	InviteURL      string  `json:"invite_url"`
	FirestoreError *string `json:"firestore_error"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,inviteemail"`
}

// HandleInviteNetwork handles POST /api/invite/network. The email is sent
// first; the invite is written only once the send succeeded.
func (h *Handler) HandleInviteNetwork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w, http.MethodPost)
		return
	}
	ctx := r.Context()
	log := appctx.GetLogger(ctx)
	wallet, ok := appctx.WalletFromContext(ctx)
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, identity.UnauthenticatedMessage)
		return
	}

	var req inviteRequest
	if err := validation.Decode(r.Body, &req); err != nil {
		msg := MsgEmailRequired
		var ve *validation.Error
		if errors.As(err, &ve) && ve.Tag == validation.TagInviteEmail {
			msg = MsgEmailInvalid
		}
		api.WriteBadRequest(w, api.ReasonValidationFailed, msg)
		return
	}

	inv, err := h.manager.PrepareInvite(NewInvite{Email: req.Email, AoRAdmin: wallet, TTL: h.cfg.TTL})
	if err != nil {
		log.Error("failed to prepare invite", "error", err)
		api.WriteInternalError(w, MsgInviteServerError)
		return
	}
	inviteURL := h.cfg.InviteURL(inv.Token)

	res, err := h.mailer.SendInvite(ctx, email.InviteData{
		Email:         inv.Email,
		InviteURL:     inviteURL,
		AoRName:       h.cfg.AoRName,
		Role:          inv.Role,
		ExpiresInDays: int(h.cfg.TTL / (24 * time.Hour)),
	})
	if err != nil {
		log.Warn("invite email not sent", "email", inv.Email, "error", err)
		emailErr := err.Error()
		api.WriteJSON(w, http.StatusBadRequest, InviteResponse{
			Message:    MsgEmailNotSent,
			EmailError: &emailErr,
			InviteURL:  inviteURL,
		})
		return
	}

	resp := InviteResponse{
		Success:        true,
		Message:        MsgInviteCreated,
		EmailSent:      true,
		EmailMessageID: &res.MessageID,
		InviteURL:      inviteURL,
	}
	if err := h.manager.SaveInvite(ctx, inv); err != nil {
		log.Error("invite email sent but not stored", "email", inv.Email, "error", err)
		storeErr := err.Error()
		resp.Message = MsgInviteStoreFailed
		resp.FirestoreError = &storeErr
	} else {
		resp.InviteID = &inv.ID
		log.Info("invite created", "invite_id", inv.ID, "aor_admin", wallet, "simulated", res.Simulated)
		events.Emit(ctx, h.publisher, events.InviteCreated, inviteEvent{
			InviteID: inv.ID,
			Email:    inv.Email,
			AoRAdmin: inv.AoRAdmin,
			Status:   inv.Status,
		})
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// HandleVendors handles GET /api/vendors.
func (h *Handler) HandleVendors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}
	wallet, ok := appctx.WalletFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, identity.UnauthenticatedMessage)
		return
	}
	entries, err := h.manager.ListNetwork(r.Context(), wallet)
	if err != nil {
		appctx.GetLogger(r.Context()).Error("failed to list vendors", "aor_admin", wallet, "error", err)
		api.WriteInternalError(w, MsgVendorsServerError)
		return
	}
	api.WriteJSON(w, http.StatusOK, entries)
}

// HandleGetInvite handles GET /api/invite/{token}.
func (h *Handler) HandleGetInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := h.manager.FindInviteByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, "get invite", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(inv, h.manager.now()))
}

// HandleAccept handles POST /api/invite/{token}/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	var req AcceptRequest
	if err := validation.Decode(r.Body, &req); err != nil {
		api.WriteBadRequest(w, api.ReasonValidationFailed, err.Error())
		return
	}
	ctx := r.Context()
	vendor, inv, err := h.manager.AcceptInvite(ctx, chi.URLParam(r, "token"), req)
	if err != nil {
		h.writeError(w, r, "accept invite", err)
		return
	}
	appctx.GetLogger(ctx).Info("invite accepted", "invite_id", inv.ID, "vendor_id", vendor.ID)
	events.Emit(ctx, h.publisher, events.InviteAccepted, inviteEvent{
		InviteID: inv.ID,
		Email:    inv.Email,
		AoRAdmin: inv.AoRAdmin,
		Status:   inv.Status,
		VendorID: vendor.ID,
	})
	api.WriteJSON(w, http.StatusOK, vendor)
}

// HandleReject handles POST /api/invite/{token}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inv, err := h.manager.RejectInvite(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, "reject invite", err)
		return
	}
	appctx.GetLogger(ctx).Info("invite rejected", "invite_id", inv.ID)
	events.Emit(ctx, h.publisher, events.InviteRejected, inviteEvent{
		InviteID: inv.ID,
		Email:    inv.Email,
		AoRAdmin: inv.AoRAdmin,
		Status:   inv.Status,
	})
	api.WriteJSON(w, http.StatusOK, viewOf(inv, h.manager.now()))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrInviteNotFound):
		api.WriteNotFound(w, "invite not found")
	case errors.Is(err, ErrInviteExpired):
		api.WriteGone(w, "invite has expired")
	case errors.Is(err, ErrVendorExists):
		api.WriteConflict(w, "vendor already exists for invite")
	case errors.Is(err, ErrInviteNotPending):
		api.WriteConflict(w, "invite is not pending")
	default:
		appctx.GetLogger(r.Context()).Error("invite operation failed", "op", op, "error", err)
		api.WriteInternalError(w, "failed to "+op)
	}
}
