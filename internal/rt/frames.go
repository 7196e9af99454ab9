package rt

import "github.com/orizon-lang/cyclegc/internal/objmodel"

// Frame retention protocol. Objects reachable only from a thread's execution
// stack (frames and suspended coroutine continuations) elide shared
// reference counting for speed. Before a collection trusts any merged count
// it promotes those elided references to real counted references; the
// promotions are removed after the collection, in exact reverse order of
// acquisition. The collector records every acquisition in a log so that the
// release side cannot drift even when a frame is torn down mid-collection.

// RetainFrames pins every frame on the thread's frame stack, appending each
// acquisition to the log. Returns the extended log.
func (t *Thread) RetainFrames(log []*objmodel.Object) []*objmodel.Object {
	for _, f := range t.frames {
		f.Retain()
		log = append(log, f)
	}
	return log
}

// RetainStack pins every object a frame or coroutine holds on its value
// stack, appending each acquisition to the log. Returns the extended log.
func RetainStack(f *objmodel.Object, log []*objmodel.Object) []*objmodel.Object {
	for _, s := range f.Stack {
		if s == nil {
			continue
		}
		s.Retain()
		log = append(log, s)
	}
	return log
}

// ReleaseLog walks an acquisition log backwards, dropping each scaffolding
// reference. The deferred-counting fast path must already be restored so a
// release that reaches zero on a stack-reachable object defers rather than
// freeing under the caller's feet.
func (t *Thread) ReleaseLog(log []*objmodel.Object) {
	for i := len(log) - 1; i >= 0; i-- {
		t.ReleaseScaffold(log[i])
	}
}
