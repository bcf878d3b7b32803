package daemon

import (
	"sync"
	"time"
)

// restarter turns the first Restart call into a delayed signal. Later calls
// are no-ops.
type restarter struct {
	once sync.Once
	ch   chan struct{}
}

func newRestarter() *restarter {
	return &restarter{ch: make(chan struct{})}
}

func (r *restarter) Restart(delay time.Duration) error {
	r.once.Do(func() {
		time.AfterFunc(delay, func() { close(r.ch) })
	})
	return nil
}

func (r *restarter) requested() <-chan struct{} { return r.ch }
