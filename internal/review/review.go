package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/cluebotng/trainer/pkg/client"
	"github.com/cluebotng/trainer/pkg/log"
)

const githubAPI = "https://api.github.com"

// Edit group types known to the review interface.
const (
	Training               = "Training"
	Trial                  = "Trial"
	Generic                = "Generic"
	ReportedFalsePositives = "Reported False Positives"
)

// EditGroup is one group as listed by the review interface.
// Children point at their parent through RelatedTo.
type EditGroup struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	RelatedTo *int   `json:"related_to"`
}

// Targets maps a target name to its group ids by type.
type Targets map[string]map[string]int

// Client reads edit groups from the review interface.
type Client struct {
	host string
	http *client.Client
}

// New returns a Client for the review interface at host.
func New(host string, c *client.Client) *Client {
	return &Client{host: strings.TrimRight(host, "/"), http: c}
}

// EditGroups lists every edit group.
func (c *Client) EditGroups(ctx context.Context) ([]EditGroup, error) {
	var groups []EditGroup
	if err := c.http.GetJSON(ctx, c.host+"/api/v1/edit-groups/", &groups); err != nil {
		return nil, fmt.Errorf("failed to list edit groups: %w", err)
	}
	return groups, nil
}

// Targets groups the edit groups by their parent's name,
// limited to filter when it is not empty.
func (c *Client) Targets(ctx context.Context, filter []string) (Targets, error) {
	groups, err := c.EditGroups(ctx)
	if err != nil {
		return nil, err
	}
	return fold(groups, filter), nil
}

// DumpURL is where the edit set of a group is downloaded from.
func (c *Client) DumpURL(id int) string {
	return fmt.Sprintf("%s/api/v1/edit-groups/%d/dump-editset/", c.host, id)
}

func fold(groups []EditGroup, filter []string) Targets {
	byID := make(map[int]EditGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	wanted := make(map[string]bool, len(filter))
	for _, f := range filter {
		wanted[f] = true
	}

	targets := Targets{}
	for _, g := range groups {
		name := g.Name
		if g.RelatedTo != nil {
			parent, ok := byID[*g.RelatedTo]
			if !ok {
				log.Warn("edit group parent missing", "group", g.ID, "related_to", *g.RelatedTo)
				continue
			}
			name = parent.Name
		}

		if len(wanted) > 0 && !wanted[name] {
			continue
		}

		if targets[name] == nil {
			targets[name] = map[string]int{}
		}
		targets[name][g.Type] = g.ID
	}
	return targets
}

// LatestRelease returns the tag of the newest GitHub release of org/repo.
func LatestRelease(ctx context.Context, c *client.Client, org, repo string) (string, error) {
	return latestRelease(ctx, c, githubAPI, org, repo)
}

func latestRelease(ctx context.Context, c *client.Client, api, org, repo string) (string, error) {
	var release struct {
		TagName string `json:"tag_name"`
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", api, org, repo)
	if err := c.GetJSON(ctx, url, &release); err != nil {
		return "", fmt.Errorf("failed to find latest release: %w", err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("latest release of %s/%s has no tag", org, repo)
	}
	return release.TagName, nil
}
