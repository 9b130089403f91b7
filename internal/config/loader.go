// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from four layers (highest
precedence last):

  1. Built-in defaults (model.go).
  2. Optional `.env` file at `<root>/conf/.env`.
  3. `conf/global.yaml`, when present.
  4. Environment variables prefixed `CIVITAS_`, where `__` maps to "."
     (e.g., `CIVITAS_TENANCY__STRICT → tenancy.strict`).

Between merging and unmarshalling, every string value that begins with
`vault:` is swapped for the secret it names (see vault.go).  The tree is
then unmarshalled into typed structs, validated, enriched with the runtime
root path, and cached in an `atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans for root discovery and YAML read.
  • ERROR spans for parse, env overlay, vault, unmarshal, and validation
    failures.
  • INFO span for the final "config loaded" line.
*/
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix marks environment variables that override YAML keys.
const EnvPrefix = "CIVITAS_"

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves CIVITAS_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to the working directory.
func rootDir() string {
	if r := os.Getenv("CIVITAS_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads defaults, .env, YAML, env overrides, resolves vault refs,
// validates, and caches Config.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, rootDir(), nil)
}

// LoadFrom is Load with an explicit root and secret resolver.  A nil
// resolver builds a Vault client on demand, only when a `vault:` value is
// present.
func LoadFrom(ctx context.Context, root string, secrets SecretResolver) (*Config, error) {
	log := zap.S()
	log.Debugw("config root resolved", "root", root)

	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			log.Errorw("config yaml load failed", "file", yamlPath, "err", err)
			return nil, err
		}
		log.Debugw("config yaml loaded", "file", yamlPath)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
	}), nil); err != nil {
		log.Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveVaultRefs(ctx, k, secrets); err != nil {
		log.Errorw("config vault resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		log.Errorw("config unmarshal failed", "err", err)
		return nil, err
	}
	cfg.Tenancy.TrustedHosts = splitList(cfg.Tenancy.TrustedHosts)
	cfg.HTTP.CORSOrigins = splitList(cfg.HTTP.CORSOrigins)
	cfg.Paths.Root = root

	if err := validateStruct(&cfg); err != nil {
		log.Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	log.Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"strict", cfg.Tenancy.Strict,
		"header_override", cfg.Tenancy.AllowHeaderOverride,
		"default_city", cfg.Tenancy.DefaultCitySlug,
		"cache", cfg.Cache.Driver,
		"queue", cfg.Queue.Driver,
	)
	return &cfg, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }

func Reload(ctx context.Context) error { _, err := Load(ctx); return err }

// ErrNoPasswordVerb is returned by DSNWithPassword when a password is configured but
// the DSN template carries no %s verb to receive it.
var ErrNoPasswordVerb = errors.New("database.dsn has no %s verb for the password")

// DSNWithPassword returns the control-plane DSN with the password substituted.
func (d Database) DSNWithPassword() (string, error) {
	if d.Password == "" {
		return d.DSN, nil
	}
	if strings.Count(d.DSN, "%s") != 1 {
		return "", ErrNoPasswordVerb
	}
	return strings.Replace(d.DSN, "%s", d.Password, 1), nil
}

// splitList accepts either a YAML list or a single comma-separated env
// value and returns trimmed, non-empty entries.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, strings.ToLower(p))
			}
		}
	}
	return out
}
