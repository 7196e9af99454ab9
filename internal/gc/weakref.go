package gc

import "github.com/orizon-lang/cyclegc/internal/objmodel"

// wrcb pairs a weak reference with its pinned callback target for the
// invocation pass.
type wrcb struct {
	wr       *objmodel.Object
	callback func(*objmodel.Object) error
}

// handleWeakrefs clears every weak reference to an object in unreachable
// and decides which callbacks run. Clearing happens for all of them before
// any user code does: a callback must never observe a half-torn-down cycle
// through some other, not-yet-cleared weakref. Callbacks belonging to
// weakrefs that are themselves dying are suppressed. Returns the number of
// referents torn down eagerly because clearing dropped their last
// reference.
func (c *Collector) handleWeakrefs(unreachable *list) int {
	var pending []wrcb
	var freed int

	for o := unreachable.first(); o != unreachable.sentinel(); o = o.Next {
		if o.Type == nil || !o.Type.SupportsWeakRefs {
			continue
		}
		for _, wrObj := range o.WeakRefs() {
			wr := wrObj.Weak
			if wr == nil {
				continue
			}
			cb := wr.Callback
			wr.ClearRef()
			if cb == nil {
				continue
			}
			if wrObj.Unreachable() {
				// The weakref object is going away too; its callback
				// would run against a dying world, so it never runs.
				continue
			}
			// Keep the weakref object alive until its callback has run,
			// even if clearing other refs would have killed it.
			c.self.Incref(wrObj)
			pending = append(pending, wrcb{wr: wrObj, callback: cb})
		}
		o.ClearWeakRefs()
	}

	for _, p := range pending {
		c.callGuarded("weakref callback", p.callback, p.wr)
		before := p.wr.RefCount()
		c.self.Decref(p.wr)
		if before == 1 {
			freed++
		}
	}
	return freed
}
