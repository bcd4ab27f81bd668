package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// gatedWriter blocks in Write until the test releases it.
type gatedWriter struct {
	mu      sync.Mutex
	blocks  [][]byte
	closed  bool
	failOn  int
	entered chan struct{}
	release chan struct{}
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{
		failOn:  -1,
		entered: make(chan struct{}, 1024),
		release: make(chan struct{}, 1024),
	}
}

func (w *gatedWriter) Write(block []byte) error {
	w.entered <- struct{}{}
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failOn == len(w.blocks) {
		return errors.New("disk full")
	}
	w.blocks = append(w.blocks, append([]byte(nil), block...))
	return nil
}

func (w *gatedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *gatedWriter) Path() string { return "gated" }

func (w *gatedWriter) written() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.blocks...)
}

func (w *gatedWriter) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type countingObserver struct {
	mu      sync.Mutex
	written int
	dropped int
}

func (o *countingObserver) BlockWritten(int) { o.mu.Lock(); o.written++; o.mu.Unlock() }
func (o *countingObserver) BlockDropped()    { o.mu.Lock(); o.dropped++; o.mu.Unlock() }

func collector() (func(Completion), chan Completion) {
	ch := make(chan Completion, 1)
	return func(c Completion) { ch <- c }, ch
}

func waitCompletion(t *testing.T, ch chan Completion) Completion {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no completion received")
	}
	return Completion{}
}

func TestOverflowDropsExactlyOneBeyondDepth(t *testing.T) {
	w := newGatedWriter()
	notify, done := collector()
	obs := &countingObserver{}
	th := New(w, 4, 2, notify, obs)

	require.True(t, th.Submit([]byte{0, 0, 0, 0}))
	<-w.entered // block 0 is in hand and the writer is stalled

	assert.True(t, th.Submit([]byte{1, 1, 1, 1}))
	assert.False(t, th.Submit([]byte{2, 2, 2, 2}))

	snap := th.State().Snapshot()
	assert.Equal(t, uint64(3), snap.Submitted)
	assert.Equal(t, uint64(1), snap.Dropped)
	assert.Equal(t, uint32(33), th.State().DroppedPercent())

	for i := 0; i < 2; i++ {
		w.release <- struct{}{}
	}
	require.Eventually(t, func() bool { return th.State().Written() == 2 }, 5*time.Second, time.Millisecond)

	// The freed slot takes the next block.
	require.True(t, th.Submit([]byte{3, 3, 3, 3}))
	w.release <- struct{}{}
	require.Eventually(t, func() bool { return th.State().Written() == 3 }, 5*time.Second, time.Millisecond)

	th.Stop()
	c := waitCompletion(t, done)
	assert.False(t, c.Fatal())
	assert.Equal(t, th.Session, c.Session)
	assert.True(t, w.isClosed())
	assert.Equal(t, [][]byte{{0, 0, 0, 0}, {1, 1, 1, 1}, {3, 3, 3, 3}}, w.written())
	assert.Equal(t, 3, obs.written)
	assert.Equal(t, 1, obs.dropped)
}

func TestWrongSizedBlockIsDropped(t *testing.T) {
	w := newGatedWriter()
	obs := &countingObserver{}
	th := New(w, 4, 2, nil, obs)

	assert.False(t, th.Submit([]byte{1, 2, 3}))
	assert.False(t, th.Submit(nil))
	w.release <- struct{}{}
	require.True(t, th.Submit([]byte{1, 2, 3, 4}))
	require.Eventually(t, func() bool { return th.State().Written() == 1 }, 5*time.Second, time.Millisecond)
	th.Stop()

	snap := th.State().Snapshot()
	assert.Equal(t, uint64(3), snap.Submitted)
	assert.Equal(t, uint64(2), snap.Dropped)
	assert.Equal(t, 2, obs.dropped)
	assert.Equal(t, [][]byte{{1, 2, 3, 4}}, w.written())
}

func TestAnyBlockSizeWhenUnset(t *testing.T) {
	w := newGatedWriter()
	th := New(w, 0, 2, nil, nil)

	w.release <- struct{}{}
	w.release <- struct{}{}
	require.True(t, th.Submit([]byte{1}))
	require.True(t, th.Submit([]byte{2, 3, 4}))
	require.Eventually(t, func() bool { return th.State().Written() == 2 }, 5*time.Second, time.Millisecond)
	th.Stop()
	assert.Equal(t, uint64(0), th.State().Dropped())
}

func TestWriteFailureIsFatal(t *testing.T) {
	w := newGatedWriter()
	w.failOn = 1
	notify, done := collector()
	obs := &countingObserver{}
	th := New(w, 1, 4, notify, obs)

	w.release <- struct{}{}
	w.release <- struct{}{}
	require.True(t, th.Submit([]byte{1}))
	require.True(t, th.Submit([]byte{2}))

	c := waitCompletion(t, done)
	require.True(t, c.Fatal())
	assert.EqualError(t, c.Err, "disk full")

	<-th.Done()
	assert.True(t, w.isClosed())
	assert.False(t, th.Submit([]byte{3}), "a dead thread accepts nothing")

	snap := th.State().Snapshot()
	assert.Equal(t, uint64(2), snap.Submitted)
	assert.Equal(t, uint64(1), th.State().Written())
	assert.Equal(t, uint64(1), snap.Dropped, "the failed block is lost")
	assert.Equal(t, 1, obs.dropped)

	th.Stop()
}

func TestStopFinishesBlockInHand(t *testing.T) {
	w := newGatedWriter()
	notify, done := collector()
	obs := &countingObserver{}
	th := New(w, 1, 4, notify, obs)

	require.True(t, th.Submit([]byte{7}))
	<-w.entered
	require.True(t, th.Submit([]byte{8}))
	require.True(t, th.Submit([]byte{9}))

	stopped := make(chan struct{})
	go func() {
		th.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a write was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	w.release <- struct{}{}
	<-stopped

	c := waitCompletion(t, done)
	assert.NoError(t, c.Err)
	assert.Equal(t, [][]byte{{7}}, w.written(), "queued blocks after stop are not written")
	assert.False(t, th.Submit([]byte{10}))

	snap := th.State().Snapshot()
	assert.Equal(t, uint64(3), snap.Submitted)
	assert.Equal(t, uint64(2), snap.Dropped, "queued blocks count as dropped")
	assert.Equal(t, snap.Submitted, th.State().Written()+snap.Dropped)
	assert.Equal(t, 2, obs.dropped)
	th.Stop()
}

func TestDropAccountingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		depth := rapid.IntRange(1, 8).Draw(rt, "depth")
		n := rapid.IntRange(1, 40).Draw(rt, "submits")
		stopEarly := rapid.Bool().Draw(rt, "stopEarly")

		w := newGatedWriter()
		th := New(w, 1, depth, nil, nil)

		th.Submit([]byte{0})
		<-w.entered

		var lastDropped uint64
		for i := 1; i < n; i++ {
			th.Submit([]byte{byte(i)})
			snap := th.State().Snapshot()
			if snap.Dropped < lastDropped {
				rt.Fatalf("dropped went backwards: %d -> %d", lastDropped, snap.Dropped)
			}
			if snap.Dropped > snap.Submitted {
				rt.Fatalf("dropped %d exceeds submitted %d", snap.Dropped, snap.Submitted)
			}
			lastDropped = snap.Dropped
		}

		// The block in hand holds one of the depth slots.
		accepted := min(n-1, depth-1)
		wantDropped := uint64(n - 1 - accepted)
		if got := th.State().Dropped(); got != wantDropped {
			rt.Fatalf("dropped %d, want %d", got, wantDropped)
		}

		if stopEarly {
			// Whatever the writer gets through before it sees the stop.
			go th.Stop()
			for i := 0; i <= accepted; i++ {
				w.release <- struct{}{}
			}
			<-th.Done()
		} else {
			for i := 0; i <= accepted; i++ {
				w.release <- struct{}{}
			}
			deadline := time.Now().Add(5 * time.Second)
			for th.State().Written() != uint64(accepted+1) {
				if time.Now().After(deadline) {
					rt.Fatalf("only %d of %d blocks written", th.State().Written(), accepted+1)
				}
				time.Sleep(time.Millisecond)
			}
			th.Stop()
		}

		snap := th.State().Snapshot()
		if written := th.State().Written(); snap.Submitted != written+snap.Dropped {
			rt.Fatalf("submitted %d != written %d + dropped %d", snap.Submitted, written, snap.Dropped)
		}

		// Accepted blocks land in submission order.
		for i, b := range w.written() {
			if int(b[0]) != i {
				rt.Fatalf("block %d holds %d", i, b[0])
			}
		}
	})
}

func TestDisplayDroppedPercentClamps(t *testing.T) {
	var s State
	assert.Equal(t, uint32(0), s.DroppedPercent())
	s.submitted.Store(3)
	s.dropped.Store(2)
	assert.Equal(t, uint32(67), s.DroppedPercent())
	s.dropped.Store(3)
	assert.Equal(t, uint32(100), s.DroppedPercent())
	assert.Equal(t, uint32(99), s.DisplayDroppedPercent())
}
