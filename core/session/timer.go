package session

import (
	"sync"
	"time"
)

// IdleTimer runs fn once after d without activity. Touch postpones it, Stop cancels it.
type IdleTimer struct {
	mu      sync.Mutex
	d       time.Duration
	timer   *time.Timer
	done    bool
	fn      func()
	touched time.Time
}

func NewIdleTimer(d time.Duration, fn func()) *IdleTimer {
	it := &IdleTimer{d: d, fn: fn, touched: time.Now()}
	it.timer = time.AfterFunc(d, it.fire)
	return it
}

func (it *IdleTimer) fire() {
	it.mu.Lock()
	if it.done {
		it.mu.Unlock()
		return
	}
	// a Touch may have raced with the timer firing
	if remaining := it.d - time.Since(it.touched); remaining > 0 {
		it.timer.Reset(remaining)
		it.mu.Unlock()
		return
	}
	it.done = true
	it.mu.Unlock()
	it.fn()
}

// Touch records activity. It returns false once the timer fired or was stopped.
func (it *IdleTimer) Touch() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.done {
		return false
	}
	it.touched = time.Now()
	it.timer.Reset(it.d)
	return true
}

// Stop cancels the timer. It returns false if it already fired or was stopped.
func (it *IdleTimer) Stop() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.done {
		return false
	}
	it.done = true
	it.timer.Stop()
	return true
}
