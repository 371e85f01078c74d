package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const providerEnv = "env"

// EnvResolver reads secrets from the process environment.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

// Resolve handles secret://env/NAME. Multiple segments are joined with
// underscores and ?name= overrides the path.
func (r *EnvResolver) Resolve(_ context.Context, ref string) (string, error) {
	reference, err := Parse(ref)
	if err != nil {
		return "", err
	}
	if reference.Provider != providerEnv {
		return "", fmt.Errorf("env resolver cannot handle provider %q", reference.Provider)
	}

	name := strings.TrimSpace(reference.Query.Get("name"))
	if name == "" {
		name = strings.Join(reference.Segments, "_")
	}
	if name == "" {
		return "", fmt.Errorf("env secret %q requires a name", ref)
	}

	value, ok := r.lookup(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s not set", name)
	}
	return value, nil
}
