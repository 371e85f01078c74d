package logs

import (
	"testing"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func record(offset time.Duration, msg string) jobs.LogRecord {
	return jobs.LogRecord{Timestamp: t0.Add(offset), Pod: "bayes-train-w1-abc", Container: "job", Message: msg}
}

func messages(records []jobs.LogRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Message)
	}
	return out
}

func TestFilterNewOverlappingFetches(t *testing.T) {
	d := NewDeduplicator()

	first := d.FilterNew([]jobs.LogRecord{record(0, "a"), record(0, "a")})
	second := d.FilterNew([]jobs.LogRecord{record(0, "a"), record(time.Second, "b")})
	third := d.FilterNew([]jobs.LogRecord{record(0, "a"), record(time.Second, "b")})

	assert.Equal(t, []string{"a"}, messages(first))
	assert.Equal(t, []string{"b"}, messages(second))
	assert.Empty(t, third)
	assert.Equal(t, 2, d.Len())
}

func TestFilterNewSameMessageDifferentTime(t *testing.T) {
	d := NewDeduplicator()

	out := d.FilterNew([]jobs.LogRecord{record(0, "tick"), record(time.Second, "tick")})
	assert.Equal(t, []string{"tick", "tick"}, messages(out))
}

func TestFilterNewKeepsInputOrder(t *testing.T) {
	d := NewDeduplicator()

	out := d.FilterNew([]jobs.LogRecord{record(2*time.Second, "c"), record(0, "a"), record(time.Second, "b")})
	assert.Equal(t, []string{"c", "a", "b"}, messages(out))
}

func TestFilterNewDropsPlaceholderOrigin(t *testing.T) {
	d := NewDeduplicator()

	placeholder := jobs.LogRecord{Timestamp: t0, Message: "waiting for pod"}
	out := d.FilterNew([]jobs.LogRecord{placeholder, record(0, "a")})
	assert.Equal(t, []string{"a"}, messages(out))

	// placeholders never enter the seen set, so the same
	// line from a pod is still surfaced
	fromPod := placeholder
	fromPod.Pod = "p"
	out = d.FilterNew([]jobs.LogRecord{placeholder, fromPod})
	assert.Equal(t, []string{"waiting for pod"}, messages(out))
}

func TestFilterNewIdempotentAcrossWindows(t *testing.T) {
	all := []jobs.LogRecord{
		record(0, "a"), record(time.Second, "b"), record(2*time.Second, "c"),
		record(3*time.Second, "d"), record(4*time.Second, "e"),
	}

	windows := [][2]int{{0, 2}, {0, 3}, {1, 4}, {1, 4}, {2, 5}, {0, 5}}

	d := NewDeduplicator()
	var surfaced []string
	for _, w := range windows {
		surfaced = append(surfaced, messages(d.FilterNew(all[w[0]:w[1]]))...)
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, surfaced)
}

func TestFilterNewTimezoneIndependent(t *testing.T) {
	d := NewDeduplicator()

	utc := record(0, "a")
	local := utc
	local.Timestamp = utc.Timestamp.In(time.FixedZone("X", 3600))

	assert.Len(t, d.FilterNew([]jobs.LogRecord{utc, local}), 1)
}
