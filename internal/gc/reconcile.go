package gc

import (
	"github.com/orizon-lang/cyclegc/internal/objmodel"
	"github.com/orizon-lang/cyclegc/internal/rt"
)

// Reference reconciliation. Before any cycle analysis the collector (1)
// folds every thread's buffered cross-thread decrements into the canonical
// counts, (2) promotes stack-held deferred references to real counted
// references, (3) turns the deferred-counting fast path off so further
// decrements to zero reclaim immediately, and (4) reaps objects whose
// merged count is already zero, since they cannot take part in any cycle.
// The promotions of step 2 are strictly paired with the releases after the
// collection, in exact reverse order of acquisition.

// deferredScaffold records what reconciliation acquired so the release side
// cannot drift from the acquire side.
type deferredScaffold struct {
	log   []*objmodel.Object
	prevs []threadDeferredState
}

type threadDeferredState struct {
	th   *rt.Thread
	prev int32
}

// addDeferredRefs promotes every stack-held reference (thread frame stacks,
// plus the value stacks of heap-resident frames and coroutine
// continuations) to a counted reference, then disables the deferred
// counting fast path on every thread.
func (c *Collector) addDeferredRefs() *deferredScaffold {
	s := &deferredScaffold{}

	for _, th := range c.rt.Threads() {
		s.log = th.RetainFrames(s.log)
	}
	c.visitHeap(func(o *objmodel.Object) int {
		if o.IsFrame() {
			s.log = rt.RetainStack(o, s.log)
		}
		return 0
	})

	for _, th := range c.rt.Threads() {
		s.prevs = append(s.prevs, threadDeferredState{th: th, prev: th.DisableDeferredRC()})
	}
	return s
}

// removeDeferredRefs restores the fast path first, then walks the
// acquisition log backwards dropping the scaffolding references, so a
// release that reaches zero on a stack-reachable object defers instead of
// freeing while teardown code may still run.
func (c *Collector) removeDeferredRefs(s *deferredScaffold) {
	for i := len(s.prevs) - 1; i >= 0; i-- {
		s.prevs[i].th.RestoreDeferredRC(s.prevs[i].prev)
	}
	c.self.ReleaseLog(s.log)
	s.log = nil
	s.prevs = nil
}

// findDeadObjects collects every tracked object whose merged count is
// already zero. Only deferred-counting objects may legitimately sit at
// zero; anything else means the counts are corrupt.
func (c *Collector) findDeadObjects(dead *list) {
	c.visitHeap(func(o *objmodel.Object) int {
		if o.RefCount() == 0 {
			if !o.Deferred() {
				panic("gc: fatal: zero merged refcount on non-deferred object")
			}
			dead.append(o)
		}
		return 0
	})
}

// clearDeadObjects reclaims the zero-count objects found before analysis.
// These died while deferred accounting was masking the zero; they cannot be
// part of a cycle calculation.
func (c *Collector) clearDeadObjects(dead *list) int64 {
	var n int64
	for !dead.empty() {
		o := dead.first()
		o.ClearDeferred()
		c.self.Dealloc(o)
		if o == dead.first() {
			// A finalizer resurrected it; put it back on the heap.
			listRemove(o)
			continue
		}
		n++
	}
	return n
}
