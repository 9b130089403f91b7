// internal/city/model.go
//
// Row models for the control-plane tables.
//
// Context
// -------
// One civic deployment (a "city") is the tenant.  The structs below mirror
// the tables that describe a city, the hostnames bound to it, the optional
// feature modules, and the per-city module overrides.  They carry no
// behaviour beyond small status helpers.
//
// Schema reference
//
//	CREATE TABLE city (
//	    id          BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    slug        VARCHAR(100)  NOT NULL UNIQUE,
//	    name        VARCHAR(190)  NOT NULL,
//	    state       CHAR(2)       NOT NULL,
//	    status      VARCHAR(16)   NOT NULL DEFAULT 'draft',
//	    latitude    DECIMAL(10,7) NOT NULL DEFAULT 0,
//	    longitude   DECIMAL(10,7) NOT NULL DEFAULT 0,
//	    timezone    VARCHAR(64)   NOT NULL DEFAULT 'America/Sao_Paulo',
//	    coastal     TINYINT(1)    NOT NULL DEFAULT 0,
//	    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
//
//	CREATE TABLE city_domain (id, city_id, host UNIQUE, is_primary);
//	CREATE TABLE module      (id, module_key UNIQUE, name, is_core, version);
//	CREATE TABLE city_module (city_id, module_id, enabled, version, settings JSON);
//	CREATE TABLE bairro      (id, city_id, name);
//
// Notes
// -----
//   - A missing city_module row means "use module.is_core".
package city

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a city.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusStaging Status = "staging"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusStaging, StatusActive, StatusPaused:
		return true
	}
	return false
}

// Public reports whether anonymous visitors may see the city.  Paused
// cities stay visible in read-only mode.
func (s Status) Public() bool { return s == StatusActive || s == StatusPaused }

// ReadOnly reports whether writes must be refused.
func (s Status) ReadOnly() bool { return s == StatusPaused }

// City mirrors one row in `city`.
type City struct {
	ID        uint64    `db:"id"         json:"id"`
	Slug      string    `db:"slug"       json:"slug"`
	Name      string    `db:"name"       json:"name"`
	State     string    `db:"state"      json:"state"`
	Status    Status    `db:"status"     json:"status"`
	Latitude  float64   `db:"latitude"   json:"latitude"`
	Longitude float64   `db:"longitude"  json:"longitude"`
	Timezone  string    `db:"timezone"   json:"timezone"`
	Coastal   bool      `db:"coastal"    json:"coastal"`
	CreatedAt time.Time `db:"created_at" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// Domain mirrors one row in `city_domain`.
type Domain struct {
	ID      uint64 `db:"id"`
	CityID  uint64 `db:"city_id"`
	Host    string `db:"host"`
	Primary bool   `db:"is_primary"`
}

// Module mirrors one row in `module`.
type Module struct {
	ID      uint64 `db:"id"`
	Key     string `db:"module_key"`
	Name    string `db:"name"`
	IsCore  bool   `db:"is_core"`
	Version int    `db:"version"`
}

// Override mirrors one row in `city_module`, joined with the module key.
type Override struct {
	CityID    uint64          `db:"city_id"`
	ModuleID  uint64          `db:"module_id"`
	ModuleKey string          `db:"module_key"`
	Enabled   bool            `db:"enabled"`
	Version   int             `db:"version"`
	Settings  json.RawMessage `db:"settings"`
}

// Neighborhood mirrors one row in `bairro`.
type Neighborhood struct {
	ID     uint64 `db:"id"`
	CityID uint64 `db:"city_id"`
	Name   string `db:"name"`
}
