package secret

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const scheme = "secret"

// Resolver turns a secret reference into its value.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Reference is a parsed secret://provider/path?query URI.
type Reference struct {
	Raw      string
	Provider string
	Segments []string
	Query    url.Values
}

// IsReference reports whether value uses the secret:// scheme.
func IsReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), scheme+"://")
}

// Parse splits a secret:// URI into provider, path segments and query.
func Parse(ref string) (*Reference, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("parse secret reference %q: %w", ref, err)
	}
	if u.Scheme != scheme {
		return nil, fmt.Errorf("invalid secret scheme %q", u.Scheme)
	}

	provider := strings.ToLower(strings.TrimSpace(u.Host))
	if provider == "" {
		return nil, fmt.Errorf("secret reference %q missing provider", ref)
	}

	var segments []string
	for _, s := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}

	return &Reference{
		Raw:      ref,
		Provider: provider,
		Segments: segments,
		Query:    u.Query(),
	}, nil
}

// ResolveValue returns value unchanged unless it is a secret:// reference,
// in which case it is looked up through r.
func ResolveValue(ctx context.Context, r Resolver, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	if r == nil {
		return "", fmt.Errorf("no resolver configured for %q", value)
	}
	return r.Resolve(ctx, value)
}
