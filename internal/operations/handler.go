package operations

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	acctshared "github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/sequences"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the composed business operations.
type Handler struct {
	svc      *Service
	idem     *shared.IdempotencyStore
	validate *validator.Validate
}

// NewHandler constructs a Handler. idem may be nil, disabling the
// Idempotency-Key header.
func NewHandler(svc *Service, idem *shared.IdempotencyStore) *Handler {
	return &Handler{svc: svc, idem: idem, validate: validator.New()}
}

// claimIdempotency reserves the request's Idempotency-Key, if any. The
// returned release function undoes the claim so a failed operation can be
// retried with the same key.
func (h *Handler) claimIdempotency(w http.ResponseWriter, r *http.Request, module string) (func(), bool) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idem == nil {
		return func() {}, true
	}
	if err := h.idem.CheckAndInsert(r.Context(), key, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
		} else {
			httpx.RespondError(w, err)
		}
		return nil, false
	}
	return func() {
		// Failure here leaves a stale key; the cleanup job prunes it.
		_ = h.idem.Delete(r.Context(), key)
	}, true
}

// Routes mounts the operation endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/receipts", h.receiveGoods)
	r.Post("/shipments", h.shipGoods)
	r.Post("/cash", h.recordCash)
}

func (h *Handler) receiveGoods(w http.ResponseWriter, r *http.Request) {
	var in ReceiptInput
	if !h.decode(w, r, &in) {
		return
	}
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	in.TenantID = tenantID

	release, ok := h.claimIdempotency(w, r, "receipts")
	if !ok {
		return
	}
	result, err := h.svc.ReceiveGoods(r.Context(), in)
	if err != nil {
		release()
		respondOperationError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) shipGoods(w http.ResponseWriter, r *http.Request) {
	var in ShipmentInput
	if !h.decode(w, r, &in) {
		return
	}
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	in.TenantID = tenantID

	release, ok := h.claimIdempotency(w, r, "shipments")
	if !ok {
		return
	}
	result, err := h.svc.ShipGoods(r.Context(), in)
	if err != nil {
		release()
		respondOperationError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) recordCash(w http.ResponseWriter, r *http.Request) {
	var in CashInput
	if !h.decode(w, r, &in) {
		return
	}
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	in.TenantID = tenantID

	release, ok := h.claimIdempotency(w, r, "cash")
	if !ok {
		return
	}
	result, err := h.svc.RecordCash(r.Context(), in)
	if err != nil {
		release()
		respondOperationError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid body", httpx.ErrValidation))
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return false
	}
	return true
}

func respondOperationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, inventory.ErrLayerExhausted):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, inventory.ErrProductNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidUnitCost):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, acctshared.ErrUnknownAccount),
		errors.Is(err, acctshared.ErrUnbalanced):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err))
	case errors.Is(err, sequences.ErrConflict):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
	default:
		httpx.RespondError(w, err)
	}
}
