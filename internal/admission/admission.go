package admission

import (
	"context"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/cluebotng/trainer/internal/metrics"
	"github.com/cluebotng/trainer/pkg/log"
)

const defaultInterval = time.Second

// Decision is the result of a quota check.
type Decision string

const (
	// Unknown means the running count could not be read.
	Unknown   Decision = "unknown"
	Available Decision = "available"
	Exhausted Decision = "exhausted"
)

// Quota bounds how many jobs whose names start with
// Prefix may run at once.
type Quota struct {
	Prefix        string
	MaxConcurrent int
}

// Controller checks fleet quotas against the live count
// of running jobs. Counts are never cached.
type Controller struct {
	client   jobs.Client
	interval time.Duration
}

// New creates a Controller polling on the given interval.
func New(client jobs.Client, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Controller{client: client, interval: interval}
}

// HasQuota reports whether another job may be launched.
func (c *Controller) HasQuota(ctx context.Context, quota Quota) Decision {
	decision := c.check(ctx, quota)
	metrics.QuotaChecksTotal.WithLabelValues(quota.Prefix, string(decision)).Inc()
	return decision
}

func (c *Controller) check(ctx context.Context, quota Quota) Decision {
	statuses, err := c.client.List(ctx, &jobs.ListRequest{Prefix: quota.Prefix})
	if err != nil {
		log.Warn("failed to count running jobs", "prefix", quota.Prefix, "error", err)
		return Unknown
	}

	running := 0
	for _, s := range statuses {
		if s.State == jobs.Running {
			running++
		}
	}

	log.Debug("running jobs", "prefix", quota.Prefix, "running", running, "max", quota.MaxConcurrent)

	if running < quota.MaxConcurrent {
		return Available
	}
	return Exhausted
}

// Wait blocks until HasQuota reports Available or the
// context ends. Unknown is treated as not available.
func (c *Controller) Wait(ctx context.Context, quota Quota) error {
	for {
		if c.HasQuota(ctx, quota) == Available {
			return nil
		}

		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
