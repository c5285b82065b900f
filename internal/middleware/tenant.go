package middleware

import (
	"context"
	"net/http"
	"regexp"
)

// DefaultTenantID is the single-tenant default used when no X-Tenant-ID header is set.
const DefaultTenantID = "00000000-0000-0000-0000-000000000000"

const headerTenantID = "X-Tenant-ID"

// uuidPattern validates the lowercase 8-4-4-4-12 hex UUID format for
// tenant IDs, of any version (P1-7).
var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

type tenantCtxKey struct{}

// TenantID is middleware that extracts the caller's tenant from the
// X-Tenant-ID header, falling back to DefaultTenantID for single-tenant
// deployments. This is the API-boundary enforcement point spec §3 calls
// for ("cross-tenant queries are rejected at the API boundary") for the
// string-keyed stores (the knowledge-graph postgres mirror); the Edge
// Store's own numeric tenant id travels in each request body instead.
func TenantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get(headerTenantID)
		if tid == "" {
			tid = DefaultTenantID
		} else if !uuidPattern.MatchString(tid) {
			// P1-7: validate UUID format on explicit header values
			http.Error(w, `{"error":"invalid tenant ID format"}`, http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey{}, tid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantIDFromContext returns the tenant ID stored in ctx, or DefaultTenantID if absent.
func TenantIDFromContext(ctx context.Context) string {
	if tid, ok := ctx.Value(tenantCtxKey{}).(string); ok {
		return tid
	}
	return DefaultTenantID
}
