package middleware

import (
	"net/http"

	"github.com/saasplatform/backend/internal/contextkeys"
	"github.com/saasplatform/backend/internal/domain"
	"github.com/saasplatform/backend/internal/handler"
)

// AdminOnly rejects callers without the admin role.
// Must be used after Auth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.RoleFrom(r.Context()) != domain.RoleAdmin {
			handler.JSON(w, http.StatusForbidden, map[string]string{"error": "forbidden: admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
