package review

import (
	"sort"

	"github.com/cluebotng/trainer/pkg/log"
)

// SampledTarget supplies the fallback trial set for targets
// without one of their own.
const SampledTarget = "Sampled Main Namespace Edits"

// Item is one training run: a target trained from one of
// its groups and, when available, trialled against another.
type Item struct {
	Target   string `yaml:"target"`
	Group    string `yaml:"group"`
	Training int    `yaml:"training"`
	Trial    int    `yaml:"trial,omitempty"`
}

// HasTrial reports whether the item has a trial set.
func (i Item) HasTrial() bool {
	return i.Trial != 0
}

// Plan turns targets into training runs ordered by target and group.
//
// A target with a Training or Reported False Positives group but no
// Trial group borrows the Generic group of SampledTarget as its trial.
// Generic groups are not trained when a Training or Reported False
// Positives group exists for the same target, and Trial groups are
// never trained.
func Plan(targets Targets) []Item {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	var items []Item
	for _, name := range names {
		groups := map[string]int{}
		for k, v := range targets[name] {
			groups[k] = v
		}

		_, training := groups[Training]
		_, reported := groups[ReportedFalsePositives]
		if _, ok := groups[Trial]; !ok && (training || reported) {
			if id, ok := targets[SampledTarget][Generic]; ok {
				log.Info("using sampled edits as fallback trial group", "target", name)
				groups[Trial] = id
			}
		}

		types := make([]string, 0, len(groups))
		for t := range groups {
			types = append(types, t)
		}
		sort.Strings(types)

		for _, t := range types {
			switch {
			case t == Trial:
				continue
			case t == Generic && training:
				log.Warn("ignoring generic group in place of training", "target", name)
				continue
			case t == Generic && reported:
				log.Warn("ignoring generic group in place of reported false positives", "target", name)
				continue
			case t != Generic && t != Training && t != ReportedFalsePositives:
				log.Warn("ignoring unknown group type", "target", name, "type", t)
				continue
			}

			items = append(items, Item{
				Target:   name,
				Group:    t,
				Training: groups[t],
				Trial:    groups[Trial],
			})
		}
	}
	return items
}
