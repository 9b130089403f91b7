// internal/city/store.go
//
// Control-plane query helpers.
//
// Context
// -------
// Every helper executes exactly one parameterised SELECT against the global
// database and scans into the row models from model.go.  Errors are
// returned to the caller; `sql.ErrNoRows` is translated to ErrNotFound so
// upper layers never import database/sql just to compare errors.
//
// Notes
// -----
//   - Column lists match the struct fields; update both together.
//   - The store never logs.  Directory and the resolver decide what to log.
package city

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no row matches the lookup key.
var ErrNotFound = errors.New("city not found")

// ErrMultiplePrimary is returned when a city has more than one primary domain.
var ErrMultiplePrimary = errors.New("city has more than one primary domain")

const cityColumns = `id, slug, name, state, status, latitude, longitude,
               timezone, coastal, created_at, updated_at`

// Store wraps the control-plane pool.
type Store struct {
	db *sqlx.DB
}

// NewStore returns a Store bound to db.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// BySlug fetches one city by slug.
func (s *Store) BySlug(ctx context.Context, slug string) (*City, error) {
	q := `SELECT ` + cityColumns + ` FROM city WHERE slug = ? LIMIT 1`
	var c City
	if err := s.db.GetContext(ctx, &c, q, slug); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ByID fetches one city by primary key.
func (s *Store) ByID(ctx context.Context, id uint64) (*City, error) {
	q := `SELECT ` + cityColumns + ` FROM city WHERE id = ? LIMIT 1`
	var c City
	if err := s.db.GetContext(ctx, &c, q, id); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// AllActive returns every city that is publicly visible.  Intended for
// batch jobs, not the request path.
func (s *Store) AllActive(ctx context.Context) ([]City, error) {
	q := `SELECT ` + cityColumns + ` FROM city WHERE status IN ('active', 'paused') ORDER BY id`
	var rows []City
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// Domains returns every hostname binding.  The domain map loads the full
// table in one query and replaces its snapshot atomically.
func (s *Store) Domains(ctx context.Context) ([]Domain, error) {
	const q = `SELECT id, city_id, host, is_primary FROM city_domain`
	var rows []Domain
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// Modules returns the module catalogue.
func (s *Store) Modules(ctx context.Context) ([]Module, error) {
	const q = `SELECT id, module_key, name, is_core, version FROM module ORDER BY module_key`
	var rows []Module
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// Overrides returns the per-city module rows for cityID.
func (s *Store) Overrides(ctx context.Context, cityID uint64) ([]Override, error) {
	const q = `SELECT cm.city_id, cm.module_id, m.module_key, cm.enabled, cm.version,
                      COALESCE(cm.settings, '{}') AS settings
                 FROM city_module cm
                 JOIN module m ON m.id = cm.module_id
                WHERE cm.city_id = ?`
	var rows []Override
	if err := s.db.SelectContext(ctx, &rows, q, cityID); err != nil {
		return nil, err
	}
	return rows, nil
}

// NeighborhoodCity returns the owning city id of a bairro.
func (s *Store) NeighborhoodCity(ctx context.Context, id uint64) (uint64, error) {
	const q = `SELECT city_id FROM bairro WHERE id = ? LIMIT 1`
	var cityID uint64
	if err := s.db.GetContext(ctx, &cityID, q, id); err != nil {
		return 0, notFound(err)
	}
	return cityID, nil
}

// PrimaryDomain picks the primary host among domains bound to cityID.
func PrimaryDomain(domains []Domain, cityID uint64) (string, error) {
	var host string
	for _, d := range domains {
		if d.CityID != cityID || !d.Primary {
			continue
		}
		if host != "" {
			return "", fmt.Errorf("city %d: %w", cityID, ErrMultiplePrimary)
		}
		host = d.Host
	}
	if host == "" {
		return "", ErrNotFound
	}
	return host, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
