// internal/auth/context.go
//
// User identity on the request context.
//
// Usage
// -----
//
//	r.Use(auth.Load(sm))            // verify the session cookie
//	id, ok := auth.UserID(r.Context())
//
// Notes
// -----
// • Load never rejects a request.  Handlers that need a user check
//   UserID themselves or sit behind acl.RequireRole.
package auth

import (
	"context"
	"net/http"

	"github.com/yanizio/civitas/internal/session"
)

// userKey is unexported to avoid context-key collisions.
type userKey struct{}

// WithUser returns a new context carrying the given userID.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID extracts the userID from ctx.  It returns (0, false) if no user is set.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userKey{}).(int64)
	return id, ok
}

// Load verifies the session cookie and, when valid, stores the user id and
// claims on the request context.  A nil manager disables sessions.
func Load(sm *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sm == nil {
				next.ServeHTTP(w, r)
				return
			}
			c, err := sm.Read(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithUser(r.Context(), c.UserID)
			ctx = session.WithClaims(ctx, c)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
