package logs

import (
	"github.com/cluebotng/trainer/internal/jobs"
)

// Origin identifies where a log record came from.
type Origin struct {
	Pod       string
	Container string
}

// PlaceholderOrigin is reported by the jobs API for records
// emitted before a pod exists. Such records are never
// surfaced.
var PlaceholderOrigin = Origin{}

type key struct {
	unixNano int64
	message  string
}

// Deduplicator remembers which records of one job have
// already been surfaced. It is not safe for concurrent use.
type Deduplicator struct {
	seen map[key]struct{}
}

// NewDeduplicator returns an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: map[key]struct{}{}}
}

// FilterNew returns the records not seen before, in input
// order, and marks them as seen.
func (d *Deduplicator) FilterNew(records []jobs.LogRecord) []jobs.LogRecord {
	var fresh []jobs.LogRecord

	for _, r := range records {
		if (Origin{Pod: r.Pod, Container: r.Container}) == PlaceholderOrigin {
			continue
		}

		k := key{unixNano: r.Timestamp.UnixNano(), message: r.Message}
		if _, ok := d.seen[k]; ok {
			continue
		}

		d.seen[k] = struct{}{}
		fresh = append(fresh, r)
	}

	return fresh
}

// Len returns the number of distinct records seen.
func (d *Deduplicator) Len() int {
	return len(d.seen)
}
