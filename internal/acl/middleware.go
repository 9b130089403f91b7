// internal/acl/middleware.go
//
// Chi middleware helpers that enforce RBAC.

package acl

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/auth"
	"github.com/yanizio/civitas/internal/httperr"
)

// RequireRole ensures the current user possesses ANY of the supplied roles.
func (c *Checker) RequireRole(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("acl.RequireRole: at least one role name must be supplied")
	}
	allowSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowSet[n] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := auth.UserID(r.Context())
			if !ok {
				httperr.Write(w, http.StatusUnauthorized, "UNAUTHENTICATED")
				return
			}

			roles, err := UserRoles(r.Context(), c.db, uid)
			if err != nil {
				zap.L().Error("acl user roles", zap.Int64("user_id", uid), zap.Error(err))
				httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
				return
			}
			for _, rname := range roles {
				if _, ok := allowSet[rname]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			httperr.Write(w, http.StatusForbidden, "FORBIDDEN")
		})
	}
}

// RequirePermission verifies that the user's roles allow component/action.
func (c *Checker) RequirePermission(component, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := auth.UserID(r.Context())
			if !ok {
				httperr.Write(w, http.StatusUnauthorized, "UNAUTHENTICATED")
				return
			}

			roles, err := UserRoles(r.Context(), c.db, uid)
			if err != nil {
				zap.L().Error("acl user roles", zap.Int64("user_id", uid), zap.Error(err))
				httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
				return
			}

			allowed, err := RoleAllowed(r.Context(), c.db, roles, component, action)
			if err != nil {
				zap.L().Error("acl role allowed", zap.Error(err))
				httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
				return
			}
			if !allowed {
				httperr.Write(w, http.StatusForbidden, "FORBIDDEN")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
