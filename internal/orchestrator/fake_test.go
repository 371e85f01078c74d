package orchestrator

import (
	"context"
	"sync"

	"github.com/cluebotng/trainer/internal/jobs"
)

type statusReply struct {
	status *jobs.Status
	err    error
}

// fakeClient replays scripted replies. The last reply of
// each sequence repeats once the sequence is exhausted.
type fakeClient struct {
	mu sync.Mutex

	createErr error
	deleteErr error
	statuses  []statusReply
	logs      [][]jobs.LogRecord
	logErrs   []error

	creates   []jobs.CreateRequest
	gets      int
	logReads  int
	deletes   int
	deleteCtx error
}

func (f *fakeClient) Create(ctx context.Context, req *jobs.CreateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, *req)
	return f.createErr
}

func (f *fakeClient) Get(ctx context.Context, req *jobs.GetRequest) (*jobs.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.statuses) == 0 {
		return nil, jobs.ErrNotFound
	}

	i := f.gets
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.gets++

	reply := f.statuses[i]
	if reply.status != nil {
		s := *reply.status
		s.Name = req.Name
		return &s, reply.err
	}
	return nil, reply.err
}

func (f *fakeClient) Logs(ctx context.Context, req *jobs.LogsRequest) ([]jobs.LogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.logReads
	f.logReads++

	if i < len(f.logErrs) && f.logErrs[i] != nil {
		return nil, f.logErrs[i]
	}

	if len(f.logs) == 0 {
		return nil, nil
	}
	if i >= len(f.logs) {
		i = len(f.logs) - 1
	}
	return f.logs[i], nil
}

func (f *fakeClient) Delete(ctx context.Context, req *jobs.DeleteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.deleteCtx = ctx.Err()
	return f.deleteErr
}

func (f *fakeClient) List(ctx context.Context, req *jobs.ListRequest) ([]jobs.Status, error) {
	return nil, nil
}
