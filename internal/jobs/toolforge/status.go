package toolforge

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
)

const (
	shortCompleted = "Completed"
	shortFailed    = "Failed"
	shortRunning   = "Running for "
)

var (
	lastRunPattern  = regexp.MustCompile(`^Last run at (.+)\. Pod in 'Running' phase\.`)
	exitCodePattern = regexp.MustCompile(`Exit code '(-?\d+)'`)
)

var startLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseStatus converts the jobs API's short and long
// status text into a typed status. This is the only
// place the textual contract of the jobs API is read.
func ParseStatus(short, long string) jobs.Status {
	status := jobs.Status{
		State:    jobs.Pending,
		ExitCode: jobs.UnknownExitCode,
		Short:    short,
		Long:     long,
	}

	switch {
	case short == shortFailed:
		status.State = jobs.Failed
	case short == shortCompleted:
		status.State = jobs.Completed
		if m := exitCodePattern.FindStringSubmatch(long); m != nil {
			if code, err := strconv.Atoi(m[1]); err == nil {
				status.ExitCode = code
			}
		}
	case lastRunPattern.MatchString(long):
		status.State = jobs.Running
		status.Since = parseStart(lastRunPattern.FindStringSubmatch(long)[1])
	case strings.Contains(short, shortRunning):
		status.State = jobs.Running
	}

	return status
}

// parseStart reads the ISO8601 timestamps the jobs API
// writes in status text and log records. Naive values are
// taken as UTC. The zero time means unparsable.
func parseStart(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
