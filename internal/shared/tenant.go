package shared

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

type ctxKey int

const tenantKey ctxKey = iota

// ErrNoTenant indicates a request reached a handler without tenant scope.
var ErrNoTenant = errors.New("tenant not resolved")

// WithTenant returns a context scoped to the given tenant.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext returns the tenant the request is scoped to.
func TenantFromContext(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(tenantKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrNoTenant
	}
	return id, nil
}

// TenantMiddleware resolves the tenant from the X-Tenant-ID header and
// injects it into the request context. Requests without a valid tenant are
// rejected before reaching any handler.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Tenant-ID")
		if raw == "" {
			httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "X-Tenant-ID header is required")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Tenant", "X-Tenant-ID must be a UUID")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenantID)))
	})
}
