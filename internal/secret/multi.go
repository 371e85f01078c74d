package secret

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cluebotng/trainer/pkg/env"
)

// MultiResolver routes a reference to the resolver registered
// for its provider.
type MultiResolver struct {
	providers map[string]Resolver
}

func NewMultiResolver(providers map[string]Resolver) *MultiResolver {
	m := &MultiResolver{providers: map[string]Resolver{}}
	for name, r := range providers {
		m.Register(name, r)
	}
	return m
}

// Register replaces any resolver already registered for provider.
func (m *MultiResolver) Register(provider string, r Resolver) {
	m.providers[strings.ToLower(strings.TrimSpace(provider))] = r
}

// Providers lists the registered provider names in order.
func (m *MultiResolver) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MultiResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", errors.New("secret reference is empty")
	}

	reference, err := Parse(ref)
	if err != nil {
		return "", err
	}

	r, ok := m.providers[reference.Provider]
	if !ok || r == nil {
		return "", fmt.Errorf("secret provider %q not configured", reference.Provider)
	}
	return r.Resolve(ctx, ref)
}

// Config selects which providers a resolver built by NewConfiguredResolver
// supports. The env provider is always available.
type Config struct {
	Kubernetes *KubernetesConfig
	Vault      *VaultConfig
}

func NewConfiguredResolver(cfg Config) (*MultiResolver, error) {
	m := NewMultiResolver(map[string]Resolver{providerEnv: NewEnvResolver()})

	if cfg.Kubernetes != nil {
		k := NewKubernetesResolver(*cfg.Kubernetes)
		m.Register(providerKubernetes, k)
		m.Register("kubernetes", k)
	}

	if cfg.Vault != nil {
		v, err := NewVaultResolver(*cfg.Vault)
		if err != nil {
			return nil, err
		}
		m.Register(providerVault, v)
	}

	return m, nil
}

// FromEnvironment builds a resolver for the providers the trainer
// configuration enables. Kubernetes secrets are read from the job
// namespace; vault only when an address is set.
func FromEnvironment(vars env.Environment) (*MultiResolver, error) {
	cfg := Config{
		Kubernetes: &KubernetesConfig{
			KubeConfigPath: vars.KubernetesConfig,
			Namespace:      vars.KubernetesNamespace,
		},
	}
	if vars.VaultAddress != "" {
		cfg.Vault = &VaultConfig{
			Address:       vars.VaultAddress,
			Token:         vars.VaultToken,
			Namespace:     vars.VaultNamespace,
			CACertPath:    vars.VaultCACert,
			TLSSkipVerify: vars.VaultTLSSkipVerify,
		}
	}
	return NewConfiguredResolver(cfg)
}

// FileAPIKey resolves the configured file API key.
func FileAPIKey(ctx context.Context, vars env.Environment) (string, error) {
	r, err := FromEnvironment(vars)
	if err != nil {
		return "", err
	}
	key, err := ResolveValue(ctx, r, vars.FileAPIKey)
	if err != nil {
		return "", fmt.Errorf("resolve file api key: %w", err)
	}
	return strings.TrimSpace(key), nil
}
