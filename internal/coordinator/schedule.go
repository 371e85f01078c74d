package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/metrics"
	"github.com/cluebotng/trainer/pkg/log"
	"github.com/robfig/cron"
)

// Schedule fires on a five field cron expression.
type Schedule struct {
	expr     string
	schedule cron.Schedule
	location *time.Location
	after    func(time.Duration) <-chan time.Time
}

// ParseSchedule parses expr, evaluated in timezone tz
// (local time when empty).
func ParseSchedule(expr, tz string) (*Schedule, error) {
	parser := cron.NewParser(
		cron.Minute |
			cron.Hour |
			cron.Dom |
			cron.Month |
			cron.Dow,
	)

	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	s := &Schedule{expr: expr, schedule: sched, after: time.After}
	if tz = strings.TrimSpace(tz); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		s.location = loc
	}
	return s, nil
}

// Next returns the first fire time after from.
func (s *Schedule) Next(from time.Time) time.Time {
	if s.location != nil {
		from = from.In(s.location)
	}
	return s.schedule.Next(from)
}

// Loop calls fn at every fire time until ctx ends. Calls never
// overlap; a fire time passed while fn runs is skipped.
func (s *Schedule) Loop(ctx context.Context, fn func(context.Context) error) error {
	for ctx.Err() == nil {
		next := s.Next(time.Now())
		log.Info("waiting for next scheduled run", "schedule", s.expr, "next", next)

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(time.Until(next)):
		}

		metrics.ScheduleFiresTotal.WithLabelValues(s.expr).Inc()
		if err := fn(ctx); err != nil {
			log.Error("scheduled run failure", "schedule", s.expr, "error", err)
		}
	}
	return nil
}
