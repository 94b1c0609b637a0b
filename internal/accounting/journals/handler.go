package journals

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	appshared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the journal endpoints.
type Handler struct {
	pool     *pgxpool.Pool
	resolver AccountResolver
	logger   *slog.Logger
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(pool *pgxpool.Pool, resolver AccountResolver, logger *slog.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{
		pool:     pool,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
		validate: validator.New(),
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := appshared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	var in PostingInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	in.TenantID = tenantID

	var journal Journal
	err = db.WithTx(r.Context(), h.pool, func(tx pgx.Tx) error {
		svc := NewService(NewPgStore(tx), h.resolver, h.logger, h.metrics)
		var err error
		journal, err = svc.Post(r.Context(), in)
		return err
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journal)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	journal, err := NewService(NewPgStore(h.pool), h.resolver, h.logger, h.metrics).Get(r.Context(), tenantID, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, journal)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, err := appshared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	status := Status(r.URL.Query().Get("status"))

	out, err := NewService(NewPgStore(h.pool), h.resolver, h.logger, h.metrics).List(r.Context(), tenantID, status, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, apply func(*Service, uuid.UUID, int64) error) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	svc := NewService(NewPgStore(h.pool), h.resolver, h.logger, h.metrics)
	if err := apply(svc, tenantID, id); err != nil {
		respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(svc *Service, tenantID uuid.UUID, id int64) error {
		return svc.Approve(r.Context(), tenantID, id)
	})
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(svc *Service, tenantID uuid.UUID, id int64) error {
		return svc.PostApproved(r.Context(), tenantID, id)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(svc *Service, tenantID uuid.UUID, id int64) error {
		return svc.Cancel(r.Context(), tenantID, id)
	})
}

func (h *Handler) scope(r *http.Request) (uuid.UUID, int64, error) {
	tenantID, err := appshared.TenantFromContext(r.Context())
	if err != nil {
		return uuid.Nil, 0, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("invalid journal id")
	}
	return tenantID, id, nil
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	tenantID, id, err := h.scope(r)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	var body struct {
		RefNo string `json:"ref_no" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}

	var reversal Journal
	err = db.WithTx(r.Context(), h.pool, func(tx pgx.Tx) error {
		svc := NewService(NewPgStore(tx), h.resolver, h.logger, h.metrics)
		var err error
		reversal, err = svc.Reverse(r.Context(), tenantID, id, body.RefNo)
		return err
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrJournalNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, shared.ErrDuplicateRefNo):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	case errors.Is(err, shared.ErrUnknownAccount),
		errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err))
	case errors.Is(err, shared.ErrInvalidStatus),
		errors.Is(err, shared.ErrJournalImmutable):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	default:
		httpx.RespondError(w, err)
	}
}
