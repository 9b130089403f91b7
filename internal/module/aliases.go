// internal/module/aliases.go
//
// Module key normalization.
//
// Context
// -------
// Older mobile builds and the Portuguese admin screens still send
// localized module identifiers ("denuncias", "eventos").  Normalize maps
// them onto canonical keys.  The built-in table can be extended through
// modules.aliases in config; config entries may add aliases but can never
// redefine a canonical key.
//
// Normalize is idempotent: Normalize(Normalize(k)) == Normalize(k).  Alias
// chains in config are flattened at construction and cycles are dropped.
package module

import (
	"strings"

	"go.uber.org/zap"
)

// Canonical module keys.
const (
	Forum    = "forum"
	Events   = "events"
	Reports  = "reports"
	Tourism  = "tourism"
	Weather  = "weather"
	Voting   = "voting"
	News     = "news"
	Services = "services"
)

var canonical = map[string]struct{}{
	Forum: {}, Events: {}, Reports: {}, Tourism: {},
	Weather: {}, Voting: {}, News: {}, Services: {},
}

var builtinAliases = map[string]string{
	"denuncias":  Reports,
	"ocorrencia": Reports,
	"eventos":    Events,
	"agenda":     Events,
	"turismo":    Tourism,
	"clima":      Weather,
	"tempo":      Weather,
	"votacoes":   Voting,
	"enquetes":   Voting,
	"noticias":   News,
	"servicos":   Services,
}

// IsCanonical reports whether key is a canonical module key.
func IsCanonical(key string) bool {
	_, ok := canonical[key]
	return ok
}

// Aliases is immutable after NewAliases.
type Aliases struct {
	table map[string]string
}

// NewAliases merges extra over the built-in table.
func NewAliases(extra map[string]string, log *zap.Logger) *Aliases {
	if log == nil {
		log = zap.L()
	}
	merged := make(map[string]string, len(builtinAliases)+len(extra))
	for k, v := range builtinAliases {
		merged[k] = v
	}
	for k, v := range extra {
		k, v = clean(k), clean(v)
		switch {
		case k == "" || v == "" || k == v:
			continue
		case IsCanonical(k):
			log.Warn("module alias ignored: key is canonical", zap.String("alias", k), zap.String("target", v))
			continue
		}
		merged[k] = v
	}

	// Flatten chains so a single lookup always lands on a terminal key.
	flat := make(map[string]string, len(merged))
	for k := range merged {
		target, ok := follow(merged, k)
		if !ok {
			log.Warn("module alias ignored: cycle", zap.String("alias", k))
			continue
		}
		flat[k] = target
	}
	return &Aliases{table: flat}
}

func follow(m map[string]string, k string) (string, bool) {
	cur := k
	for range len(m) + 1 {
		next, ok := m[cur]
		if !ok {
			return cur, true
		}
		if next == k {
			return "", false
		}
		cur = next
	}
	return "", false
}

// Normalize maps key to its canonical form.  Unknown keys are returned
// cleaned but otherwise unchanged.
func (a *Aliases) Normalize(key string) string {
	key = clean(key)
	if a == nil {
		if t, ok := builtinAliases[key]; ok {
			return t
		}
		return key
	}
	if t, ok := a.table[key]; ok {
		return t
	}
	return key
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
