package env

import (
	"time"

	"github.com/cluebotng/trainer/pkg/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for the trainer.
func Process() error {
	if err := envconfig.Process("trainer", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by the trainer. Fields are read from TRAINER_<FIELD_NAME>,
// the inline kubernetes credentials also from their bare
// K8S_* names.
type Environment struct {
	LogLevel string `split_words:"true" default:"info"`

	// Backend selects the job control implementation:
	// toolforge, kubernetes or docker.
	Backend string `default:"toolforge"`

	ToolforgeAPI  string `split_words:"true" default:"https://api.svc.tools.eqiad1.wikimedia.cloud:30003"`
	ToolforgeUser string `split_words:"true" default:"cluebotng-trainer"`

	KubernetesConfig    string `split_words:"true" default:""`
	KubernetesNamespace string `split_words:"true" default:"tool-cluebotng-trainer"`
	K8sServer           string `envconfig:"K8S_SERVER" default:""`
	K8sClientCrt        string `envconfig:"K8S_CLIENT_CRT" default:""`
	K8sClientKey        string `envconfig:"K8S_CLIENT_KEY" default:""`

	ContainerImage string `split_words:"true" default:"tools-harbor.wmcloud.org/tool-cluebotng-trainer/backend-service:latest"`
	ReviewHost     string `split_words:"true" default:"http://cluebotng-review.tool-cluebotng-review.svc.tools.local:8000"`
	TrainerHost    string `split_words:"true" default:"http://cluebotng-trainer.tool-cluebotng-trainer.svc.tools.local:8000"`
	ReleaseRef     string `split_words:"true" default:""`

	// FileAPIKey is either a literal key or a secret:// reference.
	FileAPIKey       string `split_words:"true" default:"secret://env/CBNG_TRAINER_FILE_API_KEY"`
	FileAPISecretRef string `split_words:"true" default:"toolforge.envvar.v1.cbng-trainer-file-api-key"`
	FileAPIBaseDir   string `split_words:"true" default:"/data/project/cluebotng-trainer/public_html"`
	Port             int    `default:"8000"`

	VaultAddress       string `split_words:"true" default:""`
	VaultToken         string `split_words:"true" default:""`
	VaultNamespace     string `split_words:"true" default:""`
	VaultCACert        string `split_words:"true" default:""`
	VaultTLSSkipVerify bool   `split_words:"true" default:"false"`

	StartTimeout      time.Duration `split_words:"true" default:"300s"`
	StartPollInterval time.Duration `split_words:"true" default:"500ms"`
	PollInterval      time.Duration `split_words:"true" default:"1s"`
	DrainTimeout      time.Duration `split_words:"true" default:"300s"`
	RunTimeout        time.Duration `split_words:"true" default:"2h"`
	QuotaInterval     time.Duration `split_words:"true" default:"1s"`
}
