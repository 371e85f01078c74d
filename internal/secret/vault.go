package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

const providerVault = "vault"

type vaultReader interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultConfig holds the connection settings for a Vault server.
type VaultConfig struct {
	Address       string
	Token         string
	Namespace     string
	CACertPath    string
	TLSSkipVerify bool
}

// VaultResolver reads a single field from a Vault logical path.
type VaultResolver struct {
	reader vaultReader
}

func NewVaultResolver(cfg VaultConfig) (*VaultResolver, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("vault address is required")
	}

	config := vault.DefaultConfig()
	config.Address = cfg.Address
	if cfg.CACertPath != "" || cfg.TLSSkipVerify {
		tls := &vault.TLSConfig{CACert: cfg.CACertPath, Insecure: cfg.TLSSkipVerify}
		if err := config.ConfigureTLS(tls); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &VaultResolver{reader: client.Logical()}, nil
}

func newVaultResolverWithReader(reader vaultReader) *VaultResolver {
	return &VaultResolver{reader: reader}
}

// Resolve handles secret://vault/<path>/<field> and
// secret://vault/<path>?field=<field>. KV v2 responses are unwrapped.
func (r *VaultResolver) Resolve(ctx context.Context, ref string) (string, error) {
	reference, err := Parse(ref)
	if err != nil {
		return "", err
	}
	if reference.Provider != providerVault {
		return "", fmt.Errorf("vault resolver cannot handle provider %q", reference.Provider)
	}

	segments := reference.Segments
	field := strings.TrimSpace(reference.Query.Get("field"))
	if field == "" && len(segments) > 1 {
		field, segments = segments[len(segments)-1], segments[:len(segments)-1]
	}

	path := strings.Join(segments, "/")
	switch {
	case path == "":
		return "", fmt.Errorf("vault secret %q missing path", ref)
	case field == "":
		return "", fmt.Errorf("vault secret %q missing field", ref)
	}

	s, err := r.reader.ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read vault secret %s: %w", path, err)
	}
	if s == nil || s.Data == nil {
		return "", fmt.Errorf("vault secret %s not found", path)
	}

	data := s.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}
	value, ok := data[field]
	if !ok {
		return "", fmt.Errorf("vault secret %s missing field %s", path, field)
	}
	return fmt.Sprint(value), nil
}
