package gc

import "github.com/orizon-lang/cyclegc/internal/objmodel"

// deleteGarbage breaks and reclaims the objects that survived every chance
// of rescue. Each object's references are dropped through its clear hook;
// the reference drops cascade and may tear down list members ahead of the
// cursor, so the loop always re-reads the head and skips objects that have
// already vanished.
func (c *Collector) deleteGarbage(unreachable *list) int64 {
	// Count up front: reference cascades reclaim list members without the
	// loop ever seeing them.
	collected := unreachable.size()

	for !unreachable.empty() {
		o := unreachable.first()
		if o.RefCount() < 0 {
			panic("gc: fatal: refcount is too small")
		}

		if c.debug.Load()&DebugSaveAll != 0 {
			// Save-all mode publishes doomed objects instead of
			// destroying them, with a strong reference from the garbage
			// list.
			c.self.Incref(o)
			c.appendGarbage(o)
			o.ClearUnreachable()
			listRemove(o)
			continue
		}

		if hasClear(o) {
			// Hold o across the clear; dropping its internal references
			// must not free it while its own clear hook is running.
			c.self.Incref(o)
			c.self.ClearObject(o)
			c.self.Decref(o)
		}

		if o == unreachable.first() {
			// Clearing did not reclaim it; some internal reference into
			// it remains. Return it to the heap, the cascade will finish
			// the job.
			o.ClearUnreachable()
			listRemove(o)
		}
	}
	return collected
}

func hasClear(o *objmodel.Object) bool {
	if o.Type == nil {
		return true
	}
	return o.Type.Kind == objmodel.KindContainer || o.Type.Clear != nil ||
		len(o.Refs) > 0 || len(o.Stack) > 0
}
