package record

import (
	"sync"
	"time"
)

// TickHandle owns a periodic callback. Close unregisters it and waits for
// any callback in progress to return.
type TickHandle struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newTickHandle(interval time.Duration, fn func()) *TickHandle {
	h := &TickHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return h
}

func (h *TickHandle) Close() {
	h.once.Do(func() {
		close(h.stop)
	})
	<-h.done
}
