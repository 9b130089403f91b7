// internal/config/vault.go
//
// `vault:` reference resolution.
//
// A config value such as
//
//	database.password: "vault:secret/civitas/db#password"
//
// names a KV-v2 mount and path, then a key after `#`.  The loader swaps the
// reference for the secret before unmarshalling.

package config

import (
	"context"
	"fmt"
	"strings"

	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/vault"
)

// VaultPrefix marks a config string as a secret reference.
const VaultPrefix = "vault:"

// SecretResolver turns a `vault:` reference into its plain value.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

func resolveVaultRefs(ctx context.Context, k *koanf.Koanf, secrets SecretResolver) error {
	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !strings.HasPrefix(s, VaultPrefix) {
			continue
		}
		if secrets == nil {
			cli, err := vault.New(zap.L())
			if err != nil {
				return fmt.Errorf("vault client for %s: %w", key, err)
			}
			secrets = cli
		}
		plain, err := secrets.Resolve(ctx, s)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		if err := k.Set(key, plain); err != nil {
			return err
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return nil
}
