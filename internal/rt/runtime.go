// Package rt supplies the runtime collaborators the cycle collector
// coordinates with: mutator thread registration, the stop-the-world
// safepoint mechanism, the biased reference counting policy with per-thread
// merge queues, the frame retention protocol, and the unraisable-error
// channel for failures inside user-supplied callbacks.
package rt

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orizon-lang/cyclegc/internal/arena"
	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

// WorldStopper is the safepoint capability the collector consumes. Stop
// returns only once every mutator thread is suspended; Start resumes them.
type WorldStopper interface {
	StopTheWorld()
	StartTheWorld()
}

// Runtime holds process-wide mutator state. It implements WorldStopper.
type Runtime struct {
	mu      sync.Mutex
	threads []*Thread
	nextID  uint64

	alloc *arena.Allocator

	// pauseMu serializes stop-the-world pauses against thread admission.
	pauseMu  sync.Mutex
	stopping atomic.Bool
	resume   chan struct{}

	// OnFree, when set, is invoked for every deallocated object. The
	// collector uses it to keep its live estimate honest.
	OnFree func(o *objmodel.Object)

	// OnUntrack fires whenever a dying tracked object leaves the
	// collector's view, before its block is released.
	OnUntrack func(o *objmodel.Object)

	// Unraisable receives errors from user-supplied traverse, clear,
	// finalize and weak-callback code. Such errors are reported and
	// execution continues; they are never propagated.
	Unraisable func(context string, err error)
}

// NewRuntime creates a runtime over a fresh allocator.
func NewRuntime() *Runtime {
	return &Runtime{alloc: arena.New()}
}

// Allocator returns the process allocator.
func (r *Runtime) Allocator() *arena.Allocator { return r.alloc }

// NewThread registers a mutator thread and builds its private heaps.
func (r *Runtime) NewThread() *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := &Thread{id: r.nextID, rt: r, useDeferredRC: 1}
	for tag := arena.HeapTag(0); tag < arena.NumHeapTags; tag++ {
		t.heaps[tag] = r.alloc.NewHeap(tag, t.id)
	}
	t.mergeQ = newMergeQueue(mergeQueueCapacity)
	r.threads = append(r.threads, t)
	return t
}

// Threads returns a snapshot of the registered threads.
func (r *Runtime) Threads() []*Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Thread, len(r.threads))
	copy(out, r.threads)
	return out
}

// ThreadByID resolves a thread id, nil if the thread exited.
func (r *Runtime) ThreadByID(id uint64) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.threads {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (r *Runtime) dropThread(t *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.threads {
		if cur == t {
			r.threads = append(r.threads[:i], r.threads[i+1:]...)
			return
		}
	}
}

// StopTheWorld suspends every registered mutator thread. Threads inside a
// mutator section park at their next safepoint; quiescent threads count as
// already suspended. Pauses are serialized.
func (r *Runtime) StopTheWorld() {
	r.pauseMu.Lock()
	r.mu.Lock()
	r.resume = make(chan struct{})
	r.mu.Unlock()
	r.stopping.Store(true)
	for {
		if r.runningCount() == 0 {
			return
		}
		time.Sleep(5 * time.Microsecond)
	}
}

// StartTheWorld resumes every parked mutator thread.
func (r *Runtime) StartTheWorld() {
	r.stopping.Store(false)
	r.mu.Lock()
	resume := r.resume
	r.resume = nil
	r.mu.Unlock()
	close(resume)
	r.pauseMu.Unlock()
}

func (r *Runtime) runningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.threads {
		if atomic.LoadInt32(&t.state) == threadRunning {
			n++
		}
	}
	return n
}

func (r *Runtime) resumeChan() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resume
}

// ExplicitMergeAll folds every queued cross-thread decrement into the
// owning objects' canonical counts and reclaims any that land on zero.
// Must run with the world stopped, before any merged count is trusted.
func (r *Runtime) ExplicitMergeAll() {
	for _, t := range r.Threads() {
		t.ProcessMergeQueue()
	}
}

// ReportUnraisable routes a callback failure to the unraisable channel.
func (r *Runtime) ReportUnraisable(context string, err error) {
	if err == nil {
		return
	}
	if r.Unraisable != nil {
		r.Unraisable(context, err)
		return
	}
	fmt.Fprintf(os.Stderr, "gc: unraisable error in %s: %v\n", context, err)
}
