// Package weather models the per-city forecast snapshot and the provider
// that fills it.
//
// The snapshot is what the weather component serves and what the
// WeatherRefresh job writes into the tenant cache.  Marine conditions
// are only requested for coastal cities.
package weather

import (
	"context"
	"errors"
	"time"
)

// ErrProvider wraps every upstream failure.
var ErrProvider = errors.New("weather provider")

// Point is where and in which timezone to ask for a forecast.
type Point struct {
	Latitude  float64
	Longitude float64
	Timezone  string
}

// Current conditions.
type Current struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"wind_speed"`
	Code        int     `json:"code"`
}

// Day is one daily forecast entry.
type Day struct {
	Date          string  `json:"date"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Precipitation int     `json:"precipitation_probability"`
}

// Marine conditions near the coast.
type Marine struct {
	WaveHeight float64 `json:"wave_height"`
	WavePeriod float64 `json:"wave_period"`
}

// Snapshot is the cached forecast of one city.
type Snapshot struct {
	CityID    uint64    `json:"city_id"`
	Current   Current   `json:"current"`
	Daily     []Day     `json:"daily"`
	Marine    *Marine   `json:"marine,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Provider fetches forecasts.
type Provider interface {
	Forecast(ctx context.Context, p Point) (Current, []Day, error)
	Marine(ctx context.Context, p Point) (*Marine, error)
}

// SnapshotSuffix is the tenant-cache key suffix of the snapshot.
const SnapshotSuffix = "weather:snapshot"
