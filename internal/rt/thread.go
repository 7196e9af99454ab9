package rt

import (
	"sync/atomic"

	"github.com/orizon-lang/cyclegc/internal/arena"
	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

const (
	threadIdle int32 = iota
	threadRunning
	threadParked
	threadExited
)

// Thread is one registered mutator. It owns private heaps and a merge queue
// for cross-thread reference count decrements. Between Begin and End the
// thread must poll Safepoint at bounded intervals so that a stop-the-world
// pause terminates.
type Thread struct {
	id    uint64
	rt    *Runtime
	heaps [arena.NumHeapTags]*arena.Heap

	// frames is the thread's live frame stack, innermost last. Objects
	// reachable only from here normally elide shared reference counting.
	frames []*objmodel.Object

	// useDeferredRC gates the deferred-counting fast path. The collector
	// zeroes it for the pause so decrements to zero reclaim immediately.
	useDeferredRC int32

	mergeQ *mergeQueue
	state  int32
}

// ID returns the thread id.
func (t *Thread) ID() uint64 { return t.id }

// Heap returns the thread's heap for a tag.
func (t *Thread) Heap(tag arena.HeapTag) *arena.Heap { return t.heaps[tag] }

// GCHeap returns the thread's collector-managed heap.
func (t *Thread) GCHeap() *arena.Heap { return t.heaps[arena.TagGC] }

// Begin enters a mutator section. Blocks while a pause is in progress.
func (t *Thread) Begin() {
	for {
		if t.rt.stopping.Load() {
			if ch := t.rt.resumeChan(); ch != nil {
				<-ch
			}
			continue
		}
		atomic.StoreInt32(&t.state, threadRunning)
		if !t.rt.stopping.Load() {
			return
		}
		// Lost the race with a starting pause; park and retry.
		atomic.StoreInt32(&t.state, threadIdle)
	}
}

// End leaves a mutator section.
func (t *Thread) End() {
	atomic.StoreInt32(&t.state, threadIdle)
}

// Yield runs fn with the thread outside its mutator section, so fn may
// initiate or wait on a stop-the-world pause without deadlocking on the
// calling thread.
func (t *Thread) Yield(fn func()) {
	prev := atomic.SwapInt32(&t.state, threadIdle)
	fn()
	if prev == threadRunning {
		t.Begin()
	}
}

// Safepoint parks the thread while a stop-the-world pause is in progress.
func (t *Thread) Safepoint() {
	if !t.rt.stopping.Load() {
		return
	}
	ch := t.rt.resumeChan()
	atomic.StoreInt32(&t.state, threadParked)
	if ch != nil {
		<-ch
	}
	atomic.StoreInt32(&t.state, threadRunning)
}

// Exit flushes the merge queue, abandons the thread's heaps to the
// allocator so their live blocks stay enumerable, and unregisters.
func (t *Thread) Exit() {
	t.ProcessMergeQueue()
	for _, h := range t.heaps {
		if h != nil {
			t.rt.alloc.Abandon(h)
		}
	}
	atomic.StoreInt32(&t.state, threadExited)
	t.rt.dropThread(t)
}

// PushFrame installs a frame or coroutine continuation as the innermost
// element of the thread's frame stack.
func (t *Thread) PushFrame(f *objmodel.Object) {
	t.frames = append(t.frames, f)
}

// PopFrame removes the innermost frame.
func (t *Thread) PopFrame() *objmodel.Object {
	n := len(t.frames)
	if n == 0 {
		return nil
	}
	f := t.frames[n-1]
	t.frames = t.frames[:n-1]
	return f
}

// Frames returns the thread's frame stack, innermost last.
func (t *Thread) Frames() []*objmodel.Object { return t.frames }

// DeferredRCEnabled reports whether the deferred-counting fast path is on.
func (t *Thread) DeferredRCEnabled() bool {
	return atomic.LoadInt32(&t.useDeferredRC) != 0
}

// DisableDeferredRC turns the fast path off and returns the previous state
// for the paired restore.
func (t *Thread) DisableDeferredRC() int32 {
	return atomic.SwapInt32(&t.useDeferredRC, 0)
}

// RestoreDeferredRC restores the fast path state saved by DisableDeferredRC.
func (t *Thread) RestoreDeferredRC(prev int32) {
	if prev == 0 {
		panic("gc: fatal: deferred counting restore without prior state")
	}
	atomic.StoreInt32(&t.useDeferredRC, prev)
}
