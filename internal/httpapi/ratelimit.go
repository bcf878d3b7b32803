package httpapi

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// fixedWindowLimiter allows max events per key in each window. Expired
// windows are dropped by a background sweep until Stop is called.
type fixedWindowLimiter struct {
	mu      sync.Mutex
	win     time.Duration
	max     int
	windows map[string]*window
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newFixedWindowLimiter(max int, win time.Duration) *fixedWindowLimiter {
	l := &fixedWindowLimiter{
		win:     win,
		max:     max,
		windows: make(map[string]*window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow counts one event for key. When the limit is exceeded it returns
// false and the time left until the window resets.
func (l *fixedWindowLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.win)}
		l.windows[key] = w
	}
	w.count++
	if w.count <= l.max {
		return true, 0
	}
	return false, w.resetAt.Sub(now)
}

func (l *fixedWindowLimiter) sweepLoop() {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

func (l *fixedWindowLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

func (l *fixedWindowLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
