// internal/vault/vault.go
//
// `vault:` reference resolution against a KV-v2 engine.
//
// Context
// -------
// Secrets are read once, while the config loader runs, so the client
// keeps no renewal loop: the token from VAULT_TOKEN (or ~/.vault-token)
// only has to outlive boot.  Several references into the same secret
// share one read.
//
//	cli, err := vault.New(zap.L())
//	pw,  err := cli.Resolve(ctx, "vault:secret/civitas/db#password")
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// ErrBadRef is returned for references that are not `vault:<path>#<key>`.
var ErrBadRef = errors.New("vault reference must look like vault:<mount>/<path>#<key>")

// reader fetches one KV-v2 secret.
type reader interface {
	Read(ctx context.Context, mount, path string) (map[string]any, error)
}

type kvReader struct{ api *vault.Client }

func (k kvReader) Read(ctx context.Context, mount, path string) (map[string]any, error) {
	sec, err := k.api.KVv2(mount).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return sec.Data, nil
}

// Client is safe for concurrent use.
type Client struct {
	kv  reader
	log *zap.Logger

	mu      sync.Mutex
	secrets map[string]map[string]any // secret path → data
}

// New builds a client from VAULT_ADDR / VAULT_TOKEN.
func New(log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.L()
	}
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	return newClient(kvReader{api: api}, log), nil
}

func newClient(kv reader, log *zap.Logger) *Client {
	return &Client{kv: kv, log: log, secrets: make(map[string]map[string]any)}
}

// Resolve reads the secret named by a `vault:` reference.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	path, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.secrets[path]
	if !ok {
		mount, rel := splitMount(path)
		data, err = c.kv.Read(ctx, mount, rel)
		if err != nil {
			return "", fmt.Errorf("vault get %s: %w", path, err)
		}
		c.secrets[path] = data
		c.log.Debug("vault secret read", zap.String("path", path))
	}

	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, path)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", path, key)
	}
	return s, nil
}

// ParseRef splits `vault:secret/civitas/db#password` into its path and key.
func ParseRef(ref string) (path, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "vault:")
	if !ok {
		return "", "", ErrBadRef
	}
	path, key, ok = strings.Cut(rest, "#")
	if !ok || path == "" || key == "" || !strings.Contains(path, "/") {
		return "", "", ErrBadRef
	}
	return path, key, nil
}

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}
