package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient reports a scripted number of running jobs
// on successive List calls.
type countingClient struct {
	jobs.Client
	mu     sync.Mutex
	counts []int
	errs   []error
	calls  int
	prefix string
}

func (c *countingClient) List(ctx context.Context, req *jobs.ListRequest) ([]jobs.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.calls
	c.calls++
	c.prefix = req.Prefix

	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.counts) {
		i = len(c.counts) - 1
	}

	statuses := []jobs.Status{{Name: req.Prefix + "done", State: jobs.Completed}}
	for n := 0; n < c.counts[i]; n++ {
		statuses = append(statuses, jobs.Status{Name: fmt.Sprintf("%s%d", req.Prefix, n), State: jobs.Running})
	}
	return statuses, nil
}

func TestHasQuota(t *testing.T) {
	c := New(&countingClient{counts: []int{1}}, time.Millisecond)
	assert.Equal(t, Available, c.HasQuota(context.Background(), Quota{Prefix: "coord-", MaxConcurrent: 2}))

	c = New(&countingClient{counts: []int{2}}, time.Millisecond)
	assert.Equal(t, Exhausted, c.HasQuota(context.Background(), Quota{Prefix: "coord-", MaxConcurrent: 2}))
}

func TestHasQuotaUnknownOnError(t *testing.T) {
	c := New(&countingClient{counts: []int{0}, errs: []error{errors.New("502")}}, time.Millisecond)
	assert.Equal(t, Unknown, c.HasQuota(context.Background(), Quota{Prefix: "coord-", MaxConcurrent: 2}))
}

func TestWaitBlocksUntilQuota(t *testing.T) {
	client := &countingClient{counts: []int{2, 2, 1}}
	c := New(client, time.Millisecond)

	require.NoError(t, c.Wait(context.Background(), Quota{Prefix: "coord-", MaxConcurrent: 2}))
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, "coord-", client.prefix)
}

func TestWaitRetriesUnknown(t *testing.T) {
	client := &countingClient{counts: []int{0}, errs: []error{errors.New("timeout"), errors.New("timeout")}}
	c := New(client, time.Millisecond)

	require.NoError(t, c.Wait(context.Background(), Quota{Prefix: "coord-", MaxConcurrent: 2}))
	assert.Equal(t, 3, client.calls)
}

func TestWaitContextCanceled(t *testing.T) {
	c := New(&countingClient{counts: []int{5}}, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.Wait(ctx, Quota{Prefix: "coord-", MaxConcurrent: 2}), context.DeadlineExceeded)
}
