package rt

import (
	"fmt"

	"github.com/orizon-lang/cyclegc/internal/arena"
	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

// Incref adds one reference from this thread. Owner-thread increments hit
// the unsynchronized local word until the object's counts are merged; after
// that, and for every other thread, the shared word takes the reference.
func (t *Thread) Incref(o *objmodel.Object) {
	if o.Owner() == t.id && !o.Merged() {
		o.IncrefLocal()
		return
	}
	o.IncrefShared()
}

// Decref removes one reference from this thread. An owner-side decrement to
// a merged count of zero reclaims the object immediately unless the object
// rides the deferred-counting fast path. A cross-thread decrement that takes
// the shared count negative queues the object for the owner to merge; on an
// already merged object the shared word is authoritative, so a decrement to
// zero reclaims right here instead.
func (t *Thread) Decref(o *objmodel.Object) {
	if o.Owner() == t.id && !o.Merged() {
		o.DecrefLocal()
		if o.RefCount() == 0 {
			t.maybeReclaim(o)
		} else if o.LocalRefs() == 0 && !o.Queued() {
			// The owner holds nothing anymore. Hand the count to the
			// shared word so another thread's final decrement can observe
			// the zero; otherwise the object would strand at zero with
			// nobody responsible for it. A queued object skips this: its
			// pending merge request settles the count instead.
			o.MergeShared()
		}
		return
	}
	if t.rt.stopping.Load() {
		// World stopped: the collector runs single threaded and reclaims
		// zeros immediately instead of queueing for an owner that cannot
		// run.
		o.DecrefSharedStopped()
		if o.RefCount() == 0 {
			t.maybeReclaim(o)
		}
		return
	}
	queue, dead := o.DecrefShared()
	if queue {
		t.queueForMerge(o)
	}
	if dead {
		t.maybeReclaim(o)
	}
}

// ReleaseScaffold drops one collection-scaffolding reference and reclaims
// the object if that was the last reference and the object does not use
// deferred counting (deferred objects stay at zero until the next
// collection reaps them).
func (t *Thread) ReleaseScaffold(o *objmodel.Object) {
	o.Release()
	if o.RefCount() == 0 && !o.Deferred() {
		t.Dealloc(o)
	}
}

func (t *Thread) queueForMerge(o *objmodel.Object) {
	owner := t.rt.ThreadByID(o.Owner())
	if owner == nil {
		// Owner exited; nobody else mutates the local word, so merge on
		// its behalf under the runtime lock.
		t.rt.mu.Lock()
		o.MergeShared()
		zero := o.RefCount() == 0
		t.rt.mu.Unlock()
		if zero {
			t.maybeReclaim(o)
		}
		return
	}
	owner.mergeQ.push(o)
}

// ProcessMergeQueue folds queued cross-thread decrements into this thread's
// objects and reclaims any that reached zero. Mutators call this
// periodically; the collector calls it for every thread under the pause.
func (t *Thread) ProcessMergeQueue() {
	for {
		o, ok := t.mergeQ.pop()
		if !ok {
			return
		}
		o.MergeShared()
		if o.RefCount() == 0 {
			t.maybeReclaim(o)
		}
	}
}

// callGuarded invokes a user callback, converting an error or a panic into
// an unraisable report. Teardown must never unwind into runtime internals.
func (t *Thread) callGuarded(context string, fn func(*objmodel.Object) error, o *objmodel.Object) {
	defer func() {
		if r := recover(); r != nil {
			t.rt.ReportUnraisable(context, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(o); err != nil {
		t.rt.ReportUnraisable(context, err)
	}
}

func (t *Thread) maybeReclaim(o *objmodel.Object) {
	if o.Deferred() && t.DeferredRCEnabled() {
		// Deferred fast path: the object is likely reachable from an
		// execution stack; the next collection reaps it if not.
		return
	}
	t.Dealloc(o)
}

// Dealloc tears an object down: one-shot finalizer (resurrection aborts the
// teardown), weak reference clearing with callbacks, reference-breaking
// clear, then the block returns to its page. Callback failures go to the
// unraisable channel.
func (t *Thread) Dealloc(o *objmodel.Object) {
	typ := o.Type

	if typ != nil && typ.Finalize != nil && !o.Finalized() {
		o.MarkFinalized()
		o.Retain()
		t.callGuarded(fmt.Sprintf("finalizer of %s", typ.Name), typ.Finalize, o)
		o.Release()
		if o.RefCount() > 0 {
			return // resurrected
		}
	}

	// A dying weak reference unregisters from its referent; a dying
	// referent clears its weak references and honors their callbacks.
	if o.Weak != nil {
		if ref := o.Weak.Get(); ref != nil {
			ref.UnregisterWeakRef(o)
		}
	}
	for _, wr := range o.WeakRefs() {
		cb := (*objmodel.Weak)(nil)
		if wr.Weak != nil {
			cb = wr.Weak
		}
		if cb != nil {
			cb.ClearRef()
			if cb.Callback != nil {
				t.callGuarded("weakref callback", cb.Callback, wr)
			}
		}
	}
	o.ClearWeakRefs()

	t.ClearObject(o)

	if o.Tracked() {
		t.UntrackDead(o)
	}
	if t.rt.OnFree != nil {
		t.rt.OnFree(o)
	}
	if page, _ := o.AllocSite(); page != nil {
		if err := arena.FreeBlock(o); err != nil {
			panic(fmt.Sprintf("gc: fatal: %v", err))
		}
	}
}

// ClearObject severs o's owned references. Types with a Clear callback run
// it; otherwise the container slots are popped and decremented. Stack slots
// are uncounted and are dropped without decrements.
func (t *Thread) ClearObject(o *objmodel.Object) {
	if o.Type != nil && o.Type.Clear != nil {
		t.callGuarded(fmt.Sprintf("clear of %s", o.Type.Name), o.Type.Clear, o)
		return
	}
	for i, ref := range o.Refs {
		if ref == nil {
			continue
		}
		o.Refs[i] = nil
		t.Decref(ref)
	}
	for i := range o.Stack {
		o.Stack[i] = nil
	}
}

// UntrackDead unlinks a dying object from whatever working list holds it
// and clears its tracked flag. Safe to call twice.
func (t *Thread) UntrackDead(o *objmodel.Object) {
	if o.InList() {
		next := o.Next
		prev := o.Prev
		prev.Next = next
		next.Prev = prev
		o.ClearWorkingState()
	}
	wasTracked := o.Tracked()
	o.ClearTracked()
	if wasTracked && t.rt.OnUntrack != nil {
		t.rt.OnUntrack(o)
	}
}
