// internal/config/model.go
//
// Typed configuration model for Civitas.
//
// Context
// -------
// These structs define the shape of the configuration tree that loader.go
// builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/global.yaml`                        – primary static file,
//   • `CIVITAS_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with `vault:` is resolved through Vault
// before unmarshalling, so the model never stores Vault references.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`.
//   • Durations are written as Go duration strings ("5m", "30s").
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ForceHTTPS   bool          `koanf:"force_https"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// Per-city token bucket; a zero rate disables throttling.
	RateLimitRPS   float64  `koanf:"rate_limit_rps"   validate:"gte=0"`
	RateLimitBurst int      `koanf:"rate_limit_burst" validate:"gte=0"`
	CORSOrigins    []string `koanf:"cors_origins"`
}

//
// Database section
//

// Database holds the control-plane DSN.  `Password` is substituted into the
// single `%s` verb of `DSN`, keeping credentials in Vault rather than YAML.
type Database struct {
	DSN      string `koanf:"dsn"      validate:"required"`
	Password string `koanf:"password"`
}

//
// Tenancy section
//

// Tenancy drives tenant resolution and the caches around it.
type Tenancy struct {
	TrustedHosts        []string      `koanf:"trusted_hosts"`
	AllowHeaderOverride bool          `koanf:"allow_header_override"`
	HeaderName          string        `koanf:"header_name"          validate:"required"`
	DefaultCitySlug     string        `koanf:"default_city_slug"`
	Strict              bool          `koanf:"strict"`
	DomainMapTTL        time.Duration `koanf:"domain_map_ttl"       validate:"gt=0"`
	CityConfigTTL       time.Duration `koanf:"city_config_ttl"      validate:"gt=0"`
	ModuleStatusTTL     time.Duration `koanf:"module_status_ttl"    validate:"gt=0"`
	MismatchThreshold   int           `koanf:"mismatch_threshold"   validate:"gte=0"`
	MismatchWindow      time.Duration `koanf:"mismatch_window"`
}

//
// Modules section
//

// Modules extends the built-in alias table.
type Modules struct {
	Aliases map[string]string `koanf:"aliases"`
}

//
// Cache section
//

// Cache picks the store behind tenantcache.
type Cache struct {
	Driver       string `koanf:"driver"         validate:"oneof=memory ristretto redis tiered"`
	RedisURL     string `koanf:"redis_url"      validate:"required_if=Driver redis,required_if=Driver tiered"`
	MaxCostBytes int64  `koanf:"max_cost_bytes"`
	MaxEntries   int    `koanf:"max_entries"`
}

//
// Queue section
//

// Queue picks the background job transport.
type Queue struct {
	Driver  string `koanf:"driver"   validate:"oneof=memory nats"`
	NATSURL string `koanf:"nats_url" validate:"required_if=Driver nats"`
	Stream  string `koanf:"stream"`
	Workers int    `koanf:"workers"  validate:"gte=1"`
}

//
// Invalidation section
//

// Invalidation picks how cache-invalidation events fan out across nodes.
type Invalidation struct {
	Driver  string `koanf:"driver"  validate:"oneof=local redis"`
	Channel string `koanf:"channel"`
}

//
// Session section
//

// Session signs the admin session cookie.  An empty secret disables
// sign-in and the admin city switcher.
type Session struct {
	Secret string        `koanf:"secret" validate:"omitempty,min=16"`
	TTL    time.Duration `koanf:"ttl"`
}

//
// Notify section
//

// Notify configures outbound mail and operator alerts.  With no Postmark
// token, mail is only logged; with no Slack webhook, anomaly alerts are
// only logged.
type Notify struct {
	PostmarkServerToken  string `koanf:"postmark_server_token"`
	PostmarkAccountToken string `koanf:"postmark_account_token"`
	From                 string `koanf:"from"                  validate:"required_with=PostmarkServerToken"`
	SlackWebhook         string `koanf:"slack_webhook"         validate:"omitempty,url"`
}

//
// Weather section
//

// Weather tunes the forecast provider and snapshot cache.
type Weather struct {
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst"               validate:"gte=1"`
	SnapshotTTL       time.Duration `koanf:"snapshot_ttl"        validate:"gt=0"`
}

//
// Schedule section
//

// Schedule sets how often periodic jobs are enqueued.  A zero interval
// disables that job.
type Schedule struct {
	Weather time.Duration `koanf:"weather"`
	Digest  time.Duration `koanf:"digest"`
	Purge   time.Duration `koanf:"purge"`
}

//
// Log and GeoIP sections
//

// Log controls the zap logger.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level"`
}

// GeoIP points at an optional GeoLite2-City database.
type GeoIP struct {
	Path string `koanf:"path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP         HTTP         `koanf:"http"`
	Database     Database     `koanf:"database"`
	Tenancy      Tenancy      `koanf:"tenancy"`
	Modules      Modules      `koanf:"modules"`
	Cache        Cache        `koanf:"cache"`
	Queue        Queue        `koanf:"queue"`
	Invalidation Invalidation `koanf:"invalidation"`
	Session      Session      `koanf:"session"`
	Notify       Notify       `koanf:"notify"`
	Weather      Weather      `koanf:"weather"`
	Schedule     Schedule     `koanf:"schedule"`
	Log          Log          `koanf:"log"`
	GeoIP        GeoIP        `koanf:"geoip"`
	Paths        Paths        `koanf:"-"`
}

// defaults are loaded into koanf before the YAML layer.
var defaults = map[string]any{
	"http.listen_addr":              ":8080",
	"http.read_timeout":             "10s",
	"http.write_timeout":            "15s",
	"http.idle_timeout":             "60s",
	"tenancy.header_name":           "X-City-Slug",
	"tenancy.domain_map_ttl":        "5m",
	"tenancy.city_config_ttl":       "10m",
	"tenancy.module_status_ttl":     "5m",
	"tenancy.mismatch_threshold":    20,
	"tenancy.mismatch_window":       "5m",
	"cache.driver":                  "memory",
	"cache.max_cost_bytes":          64 << 20,
	"cache.max_entries":             10000,
	"queue.driver":                  "memory",
	"queue.stream":                  "CIVITAS_JOBS",
	"queue.workers":                 4,
	"invalidation.driver":           "local",
	"invalidation.channel":          "civitas:invalidate",
	"session.ttl":                   "12h",
	"http.rate_limit_rps":           50.0,
	"http.rate_limit_burst":         100,
	"weather.requests_per_second":   5.0,
	"weather.burst":                 5,
	"weather.snapshot_ttl":          "30m",
	"schedule.weather":              "20m",
	"schedule.digest":               "24h",
	"schedule.purge":                "1h",
	"log.dir":                       "logs",
	"log.level":                     "info",
	"tenancy.allow_header_override": false,
	"tenancy.strict":                false,
	"http.force_https":              false,
}
