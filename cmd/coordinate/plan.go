package coordinate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/coordinator"
	"github.com/cluebotng/trainer/internal/review"
	"github.com/cluebotng/trainer/internal/script"
	"github.com/cluebotng/trainer/pkg/client"
	"gopkg.in/yaml.v3"
)

const binary = "cbng-trainer"

// Settings are the inputs of a plan.
type Settings struct {
	Image       string
	ReviewHost  string
	TrainerHost string
	ReleaseRef  string
	EditSets    []string
}

// Run is one planned training run.
type Run struct {
	review.Item `yaml:",inline"`
	Job         string `yaml:"job"`
	Command     string `yaml:"command"`
}

// Plan is the set of training runs of one coordinator instance.
type Plan struct {
	Instance   string `yaml:"instance"`
	ReleaseRef string `yaml:"release_ref"`
	Image      string `yaml:"image"`
	Runs       []Run  `yaml:"runs"`
}

type groupSource interface {
	Targets(ctx context.Context, filter []string) (review.Targets, error)
	DumpURL(id int) string
}

// BuildPlan resolves the release and edit groups and turns them
// into run-edit-set invocations.
func BuildPlan(ctx context.Context, c *client.Client, groups groupSource, s Settings, now time.Time) (*Plan, error) {
	ref := s.ReleaseRef
	if ref == "" {
		latest, err := review.LatestRelease(ctx, c, "cluebotng", "core")
		if err != nil {
			return nil, err
		}
		ref = latest
	}

	targets, err := groups.Targets(ctx, s.EditSets)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Instance:   now.UTC().Format(instanceLayout),
		ReleaseRef: ref,
		Image:      s.Image,
	}

	for _, item := range review.Plan(targets) {
		args := []string{
			binary, "run-edit-set",
			flag("target-name", item.Target),
			flag("instance-name", p.Instance),
			flag("container-image", s.Image),
			flag("release-ref", ref),
			flag("trainer-host", s.TrainerHost),
			flag("download-training", groups.DumpURL(item.Training)),
		}
		if item.HasTrial() {
			args = append(args, flag("download-trial", groups.DumpURL(item.Trial)))
		}

		run := Run{Item: item, Command: strings.Join(args, " ")}
		run.Job = run.coordinatorItem().JobName()
		p.Runs = append(p.Runs, run)
	}

	return p, nil
}

func flag(name, value string) string {
	return fmt.Sprintf("--%s=%s", name, script.Quote(value))
}

func (r Run) coordinatorItem() coordinator.Item {
	return coordinator.Item{Name: r.Target + "/" + r.Group, Command: r.Command}
}

// Items returns the runs as coordinator work items.
func (p *Plan) Items() []coordinator.Item {
	items := make([]coordinator.Item, 0, len(p.Runs))
	for _, r := range p.Runs {
		items = append(items, r.coordinatorItem())
	}
	return items
}

// Write prints the plan as text or yaml.
func (p *Plan) Write(w io.Writer, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	}

	for _, r := range p.Runs {
		if _, err := fmt.Fprintf(w, "%s\n\n", r.Command); err != nil {
			return err
		}
	}
	return nil
}
