// internal/tenant/admin.go
//
// Admin city switcher.
//
// Context
// -------
// Platform admins pick a city in the back office; the choice is carried
// in the signed session cookie.  Admin.Switch honours it by re-binding the
// request slot for the rest of the chain with SourceAdminSwitcher, which
// also unlocks draft and staging cities.  The admin role is re-checked on
// every request, so revoking the role revokes the switch immediately.
//
// A city named in the path always wins.  On a canonical route the switch
// only re-binds when the chosen city is the path city, which lets an
// admin preview a draft city at its own URL; a different choice leaves
// the path binding alone.
//
// Every switch (set or clear) goes through the Auditor.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/auth"
	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/httperr"
	"github.com/yanizio/civitas/internal/session"
)

// RoleChecker answers whether a user is a platform admin.
type RoleChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// Auditor records admin city switches.  to == nil means the switch was
// cleared.
type Auditor interface {
	TenantSwitched(ctx context.Context, userID int64, to *city.City)
}

// LogAuditor writes switches to the structured log.
type LogAuditor struct{ Log *zap.Logger }

func (a LogAuditor) TenantSwitched(_ context.Context, userID int64, to *city.City) {
	log := a.Log
	if log == nil {
		log = zap.L()
	}
	if to == nil {
		log.Info("admin city switch cleared", zap.Int64("user_id", userID))
		return
	}
	log.Info("admin city switched",
		zap.Int64("user_id", userID),
		zap.Uint64("city_id", to.ID),
		zap.String("city_slug", to.Slug),
	)
}

// Admin groups the switcher middleware and endpoints.
type Admin struct {
	dir      Directory
	roles    RoleChecker
	audit    Auditor
	sessions *session.Manager
	log      *zap.Logger
}

// NewAdmin wires the switcher.  audit may be nil.
func NewAdmin(dir Directory, roles RoleChecker, audit Auditor, sessions *session.Manager, log *zap.Logger) *Admin {
	if log == nil {
		log = zap.L()
	}
	if audit == nil {
		audit = LogAuditor{Log: log}
	}
	return &Admin{dir: dir, roles: roles, audit: audit, sessions: sessions, log: log}
}

// Switch re-binds the request slot to the admin's chosen city.  Requests
// without a verified admin choice, or whose path names another city,
// pass through untouched.
func (a *Admin) Switch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		slot := SlotFrom(ctx)
		uid, hasUser := auth.UserID(ctx)
		cityID, hasCity := session.FromContext(ctx).AdminCity()
		if slot == nil || !hasUser || !hasCity {
			next.ServeHTTP(w, r)
			return
		}

		admin, err := a.roles.IsAdmin(ctx, uid)
		if err != nil || !admin {
			if err != nil {
				a.log.Error("admin role check failed", zap.Int64("user_id", uid), zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		if cur, ok := slot.Current(); ok && cur.Source == SourcePath && cur.City.ID != cityID {
			a.log.Debug("admin city switch ignored on foreign path",
				zap.Int64("user_id", uid),
				zap.Uint64("admin_city_id", cityID),
				zap.String("path_city", cur.City.Slug),
			)
			next.ServeHTTP(w, r)
			return
		}

		c, err := a.dir.ByID(ctx, cityID)
		if err != nil {
			a.log.Warn("admin city unavailable",
				zap.Int64("user_id", uid), zap.Uint64("city_id", cityID), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		_ = slot.Scoped(Resolved{City: c, Source: SourceAdminSwitcher}, func() error {
			next.ServeHTTP(w, r)
			return nil
		})
	})
}

type switchRequest struct {
	CitySlug string `json:"city_slug"`
}

// HandleSwitch is POST /admin/tenant {"city_slug": "..."}.  The caller
// must already be behind acl RequireRole(admin).
func (a *Admin) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, "UNAUTHENTICATED")
		return
	}
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CitySlug == "" {
		httperr.Write(w, http.StatusBadRequest, httperr.ValidationFailed)
		return
	}
	c, err := a.dir.BySlug(r.Context(), city.NormalizeSlug(req.CitySlug))
	if errors.Is(err, city.ErrNotFound) {
		httperr.Write(w, http.StatusNotFound, httperr.TenantNotFound)
		return
	}
	if err != nil {
		a.log.Error("admin switch lookup failed", zap.Error(err))
		httperr.Write(w, http.StatusServiceUnavailable, httperr.TenantLookupFailed)
		return
	}
	if err := a.sessions.Issue(w, r, session.Claims{UserID: uid, AdminCityID: c.ID}); err != nil {
		a.log.Error("admin switch session issue failed", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
		return
	}
	a.audit.TenantSwitched(r.Context(), uid, c)
	httperr.JSON(w, http.StatusOK, map[string]any{"success": true, "city": c})
}

// HandleClear is DELETE /admin/tenant.
func (a *Admin) HandleClear(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, "UNAUTHENTICATED")
		return
	}
	if err := a.sessions.Issue(w, r, session.Claims{UserID: uid}); err != nil {
		a.log.Error("admin switch session issue failed", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
		return
	}
	a.audit.TenantSwitched(r.Context(), uid, nil)
	httperr.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleCurrent reports the bound city and how it was resolved.
func HandleCurrent(w http.ResponseWriter, r *http.Request) {
	res, ok := FromContext(r.Context())
	if !ok {
		writeUnbound(w, r)
		return
	}
	httperr.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"city":    res.City,
		"source":  res.Source,
	})
}
