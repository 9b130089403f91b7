package server

import (
	"encoding/json"
	"net/http"

	"github.com/yanizio/civitas/internal/auth"
	"github.com/yanizio/civitas/internal/requestinfo"
	"github.com/yanizio/civitas/internal/session"
)

// handleDebug echoes what the server knows about the caller: parsed
// request info, the signed-in user, and the admin's chosen city.
func handleDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := map[string]any{
		"host":    r.Host,
		"request": requestinfo.FromContext(ctx),
	}
	if uid, ok := auth.UserID(ctx); ok {
		out["user_id"] = uid
	}
	if id, ok := session.FromContext(ctx).AdminCity(); ok {
		out["admin_city_id"] = id
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
