package backend

import (
	"fmt"
	"strings"

	"github.com/cluebotng/trainer/internal/admission"
	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/cluebotng/trainer/internal/jobs/docker"
	"github.com/cluebotng/trainer/internal/jobs/kubernetes"
	"github.com/cluebotng/trainer/internal/jobs/toolforge"
	"github.com/cluebotng/trainer/internal/orchestrator"
	"github.com/cluebotng/trainer/internal/script"
	"github.com/cluebotng/trainer/pkg/env"
	"github.com/cluebotng/trainer/pkg/log"
)

// Supported job backends.
const (
	Toolforge  = "toolforge"
	Kubernetes = "kubernetes"
	Docker     = "docker"
)

// New builds the job control client selected by vars.Backend.
//
// On toolforge the file API key reaches jobs through the tool's
// envvars. The kubernetes backend maps the same secret into each pod,
// and the docker backend passes apiKey directly.
func New(vars env.Environment, apiKey string) (jobs.Client, error) {
	name := log.Clean(vars.Backend)
	log.Debug("creating job backend", "backend", name)

	switch name {
	case Toolforge, "":
		return toolforge.New(toolforge.Config{
			APIURL:     vars.ToolforgeAPI,
			Tool:       vars.ToolforgeUser,
			KubeConfig: vars.KubernetesConfig,
			Server:     vars.K8sServer,
			ClientCert: vars.K8sClientCrt,
			ClientKey:  vars.K8sClientKey,
		})
	case Kubernetes:
		cfg := kubernetes.Config{
			KubeConfig: vars.KubernetesConfig,
			Namespace:  vars.KubernetesNamespace,
		}
		if vars.FileAPISecretRef != "" {
			cfg.SecretEnv = &kubernetes.SecretEnv{
				Name:       script.SecretEnvVar,
				SecretName: vars.FileAPISecretRef,
			}
		}
		return kubernetes.New(cfg)
	case Docker:
		var extra []string
		if apiKey != "" {
			extra = append(extra, fmt.Sprintf("%s=%s", script.SecretEnvVar, apiKey))
		}
		return docker.New(extra...)
	default:
		return nil, fmt.Errorf("unsupported job backend: %v", strings.TrimSpace(vars.Backend))
	}
}

// Orchestrator wraps client in an orchestrator using the configured timings.
func Orchestrator(vars env.Environment, client jobs.Client) *orchestrator.Orchestrator {
	return orchestrator.New(client, orchestrator.Config{
		StartTimeout:      vars.StartTimeout,
		StartPollInterval: vars.StartPollInterval,
		PollInterval:      vars.PollInterval,
		DrainTimeout:      vars.DrainTimeout,
	})
}

// Admission builds an admission controller polling at the configured interval.
func Admission(vars env.Environment, client jobs.Client) *admission.Controller {
	return admission.New(client, vars.QuotaInterval)
}
