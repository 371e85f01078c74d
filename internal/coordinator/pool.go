package coordinator

import (
	"context"
	"sync"
)

// pool bounds how many runs this process follows at once,
// whatever the platform quota says.
type pool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

func newPool(size int) *pool {
	if size < 1 {
		size = 1
	}
	return &pool{slots: make(chan struct{}, size)}
}

// launch runs fn in a free slot and blocks until fn calls
// started, fn returns or ctx ends. It fails only when ctx
// ends before a slot frees up.
func (p *pool) launch(ctx context.Context, fn func(started func())) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	up := make(chan struct{})
	var once sync.Once
	started := func() { once.Do(func() { close(up) }) }

	p.wg.Add(1)
	go func() {
		defer func() {
			started()
			<-p.slots
			p.wg.Done()
		}()
		fn(started)
	}()

	select {
	case <-up:
	case <-ctx.Done():
	}
	return nil
}

func (p *pool) wait() {
	p.wg.Wait()
}
