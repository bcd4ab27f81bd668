package capture

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jrwynneiii/rxcap/writer"
)

// Completion is sent exactly once when a capture thread exits. Err is nil for
// a requested stop and carries the I/O error otherwise.
type Completion struct {
	Session uuid.UUID
	Err     error
}

func (c Completion) Fatal() bool {
	return c.Err != nil
}

// Observer receives per-block accounting, e.g. for metrics.
type Observer interface {
	BlockWritten(bytes int)
	BlockDropped()
}

type nopObserver struct{}

func (nopObserver) BlockWritten(int) {}
func (nopObserver) BlockDropped()    {}

// Thread drains blocks handed over by a real-time producer into a writer.
// At most BufferCount blocks are in flight, the one being written included;
// Submit never blocks and counts every block beyond that as dropped.
type Thread struct {
	Session   uuid.UUID
	BlockSize int

	writer   writer.Writer
	blocks   chan []byte
	slots    chan struct{}
	stop     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	notify   func(Completion)
	observer Observer
	state    State

	// mu orders Submit against the final sweep of queued blocks.
	mu     sync.Mutex
	closed bool
}

// New takes ownership of w and starts draining immediately. notify is called
// from the thread's goroutine and must not block. A blockSize of zero accepts
// blocks of any length.
func New(w writer.Writer, blockSize, bufferCount int, notify func(Completion), observer Observer) *Thread {
	if bufferCount < 1 {
		bufferCount = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}
	t := &Thread{
		Session:   uuid.New(),
		BlockSize: blockSize,
		writer:    w,
		blocks:    make(chan []byte, bufferCount),
		slots:     make(chan struct{}, bufferCount),
		stop:      make(chan struct{}),
		exited:    make(chan struct{}),
		notify:    notify,
		observer:  observer,
	}
	go t.run()
	return t
}

// Submit hands a block to the thread. The caller must not touch the block
// afterwards. Returns false if the block was dropped or the thread is done.
func (t *Thread) Submit(block []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	select {
	case <-t.stop:
		return false
	default:
	}

	t.state.submitted.Add(1)
	if t.BlockSize > 0 && len(block) != t.BlockSize {
		log.Debugf("[capture] Session %s dropped a %d byte block, want %d", t.Session, len(block), t.BlockSize)
		t.dropLocked()
		return false
	}
	select {
	case t.slots <- struct{}{}:
		// A slot guarantees room in blocks.
		t.blocks <- block
		return true
	default:
		t.dropLocked()
		return false
	}
}

func (t *Thread) dropLocked() {
	t.state.dropped.Add(1)
	t.observer.BlockDropped()
}

func (t *Thread) State() *State {
	return &t.state
}

func (t *Thread) Path() string {
	return t.writer.Path()
}

// Done is closed once the thread has exited and its writer is closed.
func (t *Thread) Done() <-chan struct{} {
	return t.exited
}

// Stop asks the thread to finish the block in hand and waits for it to exit.
// Blocks still queued are not written; they are counted as dropped. Safe to
// call more than once.
func (t *Thread) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	<-t.exited
}

func (t *Thread) run() {
	defer close(t.exited)
	log.Debugf("[capture] Session %s writing to %s", t.Session, t.writer.Path())

	err := t.drain()
	t.sweep()

	if cerr := t.writer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		log.Errorf("[capture] Session %s failed: %v", t.Session, err)
	} else {
		log.Debugf("[capture] Session %s finished: %d written, %d dropped", t.Session, t.state.Written(), t.state.Dropped())
	}
	if t.notify != nil {
		t.notify(Completion{Session: t.Session, Err: err})
	}
}

// sweep closes the thread to further submits and counts whatever is still
// queued as dropped, so submitted == written + dropped once it returns.
func (t *Thread) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for {
		select {
		case <-t.blocks:
			<-t.slots
			t.dropLocked()
		default:
			return
		}
	}
}

func (t *Thread) drain() error {
	for {
		// A pending stop wins over queued blocks.
		select {
		case <-t.stop:
			return nil
		default:
		}

		select {
		case <-t.stop:
			return nil
		case block := <-t.blocks:
			err := t.writer.Write(block)
			<-t.slots
			if err != nil {
				t.state.dropped.Add(1)
				t.observer.BlockDropped()
				return err
			}
			t.state.written.Add(1)
			t.observer.BlockWritten(len(block))
		}
	}
}
