package gc

import "github.com/orizon-lang/cyclegc/internal/objmodel"

// moveLegacyFinalizers splits objects with a legacy finalizer out of
// unreachable. Legacy finalizers cannot be run safely against a cycle, so
// their objects are quarantined instead of destroyed.
func moveLegacyFinalizers(unreachable, finalizers *list) {
	o := unreachable.first()
	for o != unreachable.sentinel() {
		next := o.Next
		if o.Type != nil && o.Type.HasLegacyFinalizer() {
			o.ClearUnreachable()
			listMove(o, finalizers)
		}
		o = next
	}
}

// moveLegacyFinalizerReachable pulls everything reachable from the
// quarantined objects into the same quarantine. Destroying something a
// legacy finalizer can still see would be unsound. The UNREACHABLE flag
// distinguishes objects still in the doomed set; it is dropped as each one
// moves so nothing moves twice.
func moveLegacyFinalizerReachable(finalizers *list) {
	for o := finalizers.first(); o != finalizers.sentinel(); o = o.Next {
		objmodel.Traverse(o, func(ref *objmodel.Object, arg any) int {
			if ref.Unreachable() {
				ref.ClearUnreachable()
				listMove(ref, arg.(*list))
			}
			return 0
		}, finalizers)
	}
}

// finalizeGarbage runs modern finalizers over the unreachable set, each at
// most once per object lifetime. A finalizer may resurrect its object or
// mutate the set, so every object is pinned across the call and the list is
// rebuilt behind a seen list as it is consumed.
func (c *Collector) finalizeGarbage(unreachable *list) {
	var seen list
	seen.init()

	for !unreachable.empty() {
		o := unreachable.first()
		fin := (*objmodel.TypeInfo)(nil)
		if o.Type != nil && o.Type.Finalize != nil {
			fin = o.Type
		}
		if fin != nil && !o.Finalized() {
			o.Retain()
			o.MarkFinalized()
			c.callGuarded("finalizer of "+fin.Name, fin.Finalize, o)
			o.Release()
			// The finalizer may have untracked or freed o, or reshaped
			// the rest of the list; only move o if it is still where the
			// scan left it.
			if o != unreachable.first() {
				continue
			}
		}
		listMove(o, &seen)
	}
	unreachable.merge(&seen)
}

// handleLegacyFinalizers publishes the quarantine on the uncollectable
// garbage list: the legacy-finalized objects and everything they keep
// alive, each with a strong reference so the list itself keeps the whole
// group pinned. The objects return to ordinary tracked state.
func (c *Collector) handleLegacyFinalizers(finalizers *list) {
	for o := finalizers.first(); o != finalizers.sentinel(); o = o.Next {
		c.self.Incref(o)
		c.appendGarbage(o)
	}
	finalizers.clear()
}
