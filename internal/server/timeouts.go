// internal/server/timeouts.go
//
// HTTP server helper with timeouts.
//
//   • ReadTimeout   – abort slow-loris headers
//   • WriteTimeout  – cap total response time
//   • IdleTimeout   – close keep-alives on idle clients
//
// Values come from the http section of the config; zero falls back to
// 10s / 15s / 60s.

package server

import (
	"net/http"
	"time"

	"github.com/yanizio/civitas/internal/config"
)

// New constructs an *http.Server for handler.
func New(cfg config.HTTP, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: or(cfg.ReadTimeout, 10*time.Second),
		ReadTimeout:       or(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout:      or(cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       or(cfg.IdleTimeout, 60*time.Second),
	}
}

func or(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
