package registry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/events"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/validation"
)

// Stage is the step a write request reached.
type Stage string

const (
	StageReceived            Stage = "received"
	StageValidated           Stage = "validated"
	StagePreconditionChecked Stage = "precondition_checked"
	StageBuilt               Stage = "built"
	StageSubmitted           Stage = "submitted"
	StageParsed              Stage = "parsed"
	StageResponded           Stage = "responded"
)

// Handler serves the registry write endpoints and the status projection.
type Handler struct {
	reader     chain.Reader
	executor   chain.Executor
	deployment Deployment
	publisher  events.Publisher
	logger     *slog.Logger
}

// NewHandler creates a registry handler. A nil publisher disables events.
func NewHandler(
	reader chain.Reader,
	executor chain.Executor,
	deployment Deployment,
	publisher events.Publisher,
	logger *slog.Logger,
) *Handler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Handler{
		reader:     reader,
		executor:   executor,
		deployment: deployment,
		publisher:  publisher,
		logger:     logutil.NoopIfNil(logger),
	}
}

// HandleRegisterAoR handles POST /api/register-aor.
func (h *Handler) HandleRegisterAoR(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	res, ok := h.submit(w, r, FuncRegisterAoR, &req, func(wallet string) *chain.Transaction {
		return BuildRegister(&req, wallet, h.deployment)
	})
	if !ok {
		return
	}
	result, err := ParseRegister(res)
	if err != nil {
		h.fail(w, r, FuncRegisterAoR, StageSubmitted, err)
		return
	}
	appctx.GetLogger(r.Context()).Info("aor registered",
		"admin", result.Admin, "tx_digest", result.TxDigest)
	events.Emit(r.Context(), h.publisher, events.AoRRegistered, result)
	api.WriteJSON(w, http.StatusOK, result)
}

// HandleCreateCompany handles POST /api/create-company.
func (h *Handler) HandleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	res, ok := h.submit(w, r, FuncCreateCompany, &req, func(wallet string) *chain.Transaction {
		return BuildCreateCompany(&req, wallet, h.deployment)
	})
	if !ok {
		return
	}
	result, err := ParseCreateCompany(res)
	if err != nil {
		h.fail(w, r, FuncCreateCompany, StageSubmitted, err)
		return
	}
	appctx.GetLogger(r.Context()).Info("company created",
		"company_id", result.CompanyID, "badge_id", result.BadgeID, "tx_digest", result.TxDigest)
	events.Emit(r.Context(), h.publisher, events.CompanyCreated, result)
	api.WriteJSON(w, http.StatusOK, result)
}

// submit runs a write request up to execution. It writes the error
// response itself and reports false on any failure.
func (h *Handler) submit(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	req any,
	build func(wallet string) *chain.Transaction,
) (*chain.TxResponse, bool) {
	ctx := r.Context()
	stage := StageReceived

	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w, http.MethodPost)
		return nil, false
	}
	wallet, ok := appctx.WalletFromContext(ctx)
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return nil, false
	}

	if err := validation.Decode(r.Body, req); err != nil {
		h.fail(w, r, op, stage, err)
		return nil, false
	}
	stage = StageValidated

	if err := h.deployment.Check(); err != nil {
		h.fail(w, r, op, stage, err)
		return nil, false
	}
	if err := AssertShared(ctx, h.reader, h.deployment.RegistryID); err != nil {
		h.fail(w, r, op, stage, err)
		return nil, false
	}
	stage = StagePreconditionChecked

	tx := build(wallet)
	stage = StageBuilt
	appctx.GetLogger(ctx).Debug("transaction built", "op", op, "wallet", wallet, "target", tx.MoveCall.Target)

	res, err := h.executor.Execute(ctx, tx)
	if err != nil {
		h.fail(w, r, op, stage, err)
		return nil, false
	}
	return res, true
}

// fail logs the stage reached and maps err to a response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, stage Stage, err error) {
	log := appctx.GetLogger(r.Context())
	status := writeError(w, err)
	if status >= http.StatusInternalServerError {
		log.Error("registry write failed", "op", op, "stage", stage, "error", err)
	} else {
		log.Warn("registry write rejected", "op", op, "stage", stage, "error", err)
	}
}

// writeError maps err to an HTTP response and returns the status written.
func writeError(w http.ResponseWriter, err error) int {
	var pre *PreconditionError
	switch {
	case validation.IsValidation(err):
		api.WriteBadRequest(w, api.ReasonValidationFailed, err.Error())
		return http.StatusBadRequest
	case errors.As(err, &pre):
		api.WriteBadRequest(w, api.ReasonPreconditionFailed, pre.Message)
		return http.StatusBadRequest
	case errors.Is(err, ErrNotConfigured):
		api.WriteNotConfigured(w, "GLOBAL_REGISTRY_ID or TANZANITE_PACKAGE_ID not configured")
		return http.StatusInternalServerError
	case errors.Is(err, chain.ErrSponsor), errors.Is(err, chain.ErrRPC):
		api.WriteExternalError(w, err.Error())
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled):
		api.WriteError(w, http.StatusServiceUnavailable, api.ReasonInternalError, "request cancelled")
		return http.StatusServiceUnavailable
	}
	api.WriteInternalError(w, err.Error())
	return http.StatusInternalServerError
}
