// internal/component/deps.go
package component

import (
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/guard"
	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/tenantcache"
)

// Deps exposes shared resources to Components during Init.
type Deps struct {
	DB            *sqlx.DB
	Neighborhoods guard.NeighborhoodLookup
	Jobs          *jobs.Dispatcher
	Cache         *tenantcache.Cache
	Validate      *validator.Validate
	Log           *zap.Logger
}
