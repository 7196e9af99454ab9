package gc

import "github.com/orizon-lang/cyclegc/internal/objmodel"

// Reachability analysis: copy merged counts into the scratch field,
// subtract every reference internal to the candidate set, then partition by
// a single left-to-right fixpoint scan. Objects promoted back from the
// unreachable side are appended ahead of the scan cursor, which is what
// makes the single scan a fixpoint.

// updateRefs snapshots every tracked object's merged count into its scratch
// field and links it into young. A negative merged count is a fatal
// consistency violation.
func (c *Collector) updateRefs(young *list) int64 {
	var n int64
	c.visitHeap(func(o *objmodel.Object) int {
		refs := o.RefCount()
		if refs < 0 {
			panic("gc: fatal: negative merged refcount")
		}
		o.SetScratchRefs(refs)
		young.append(o)
		n++
		return 0
	})
	return n
}

// subtractRefs removes one scratch count per reference that originates
// inside young. Afterwards an object's scratch count equals the number of
// references into it from outside the candidate set.
func subtractRefs(young *list) {
	for o := young.first(); o != young.sentinel(); o = o.Next {
		objmodel.Traverse(o, visitDecref, nil)
	}
}

func visitDecref(ref *objmodel.Object, _ any) int {
	// Only candidates are linked into a working list at this point.
	if ref.Tracked() && ref.InList() {
		ref.DecScratchRef()
	}
	return 0
}

// moveUnreachable scans young once, left to right. Scratch zero moves an
// object to unreachable provisionally; a nonzero object is traversed and
// everything it reaches is pulled back (or marked) reachable. While the
// scan runs, young is only singly linked: the prev pointers are restored as
// the cursor passes.
func moveUnreachable(young, unreachable *list) {
	prev := young.sentinel()
	o := young.first()

	for o != young.sentinel() {
		if o.ScratchRefs() != 0 {
			// Definitely reachable from outside. The traverse may append
			// promoted objects to young, so the next object is decided
			// only after it returns.
			objmodel.Traverse(o, visitReachable, young)
			o.Prev = prev
			prev = o
		} else {
			// May be unreachable. Assume so; if some later object proves
			// otherwise, visitReachable moves it back and the scan sees
			// it again.
			prev.Next = o.Next

			last := unreachable.sentinel().Prev
			last.Next = o
			o.Prev = last
			o.Next = unreachable.sentinel()
			unreachable.sentinel().Prev = o
			o.SetUnreachable()
		}
		o = prev.Next
	}
	young.sentinel().Prev = prev
}

func visitReachable(ref *objmodel.Object, arg any) int {
	young := arg.(*list)
	if !ref.InList() {
		// Untracked, or already returned to the heap.
		return 0
	}
	if ref.Unreachable() {
		// Had scratch zero when the scan reached it, but turns out to be
		// reachable after all. Unlink from unreachable and append to
		// young ahead of the cursor.
		prev := ref.Prev
		next := ref.Next
		prev.Next = next
		next.Prev = prev

		young.append(ref)
		ref.SetScratchRefs(1)
		ref.ClearUnreachable()
	} else if ref.ScratchRefs() == 0 {
		// Still ahead of the scan cursor; mark reachable so the scan
		// keeps it.
		ref.SetScratchRefs(1)
	}
	// Scratch > 0: already known reachable, nothing to do.
	return 0
}

// deduceUnreachable partitions base into base (reachable from outside) and
// unreachable. unreachable must be uninitialized; every member comes out
// flagged UNREACHABLE.
func deduceUnreachable(base, unreachable *list) {
	unreachable.init()
	moveUnreachable(base, unreachable)
}

// subtractRefsUnreachable is the post-finalization variant: only references
// into still-flagged objects are subtracted.
func subtractRefsUnreachable(unreachable *list) {
	for o := unreachable.first(); o != unreachable.sentinel(); o = o.Next {
		objmodel.Traverse(o, func(ref *objmodel.Object, _ any) int {
			if ref.Unreachable() {
				ref.DecScratchRef()
			}
			return 0
		}, nil)
	}
}

func clearUnreachableMask(unreachable *list) {
	for o := unreachable.first(); o != unreachable.sentinel(); o = o.Next {
		o.ClearUnreachable()
	}
}

// handleResurrected re-derives reachability over the unreachable set alone
// after finalizers ran: counts are re-snapshot, internal references
// subtracted, and the set reclassified. Whatever resurrected returns to the
// heap as ordinary tracked objects; the rest is truly dead.
func handleResurrected(unreachable, stillUnreachable *list) {
	for o := unreachable.first(); o != unreachable.sentinel(); o = o.Next {
		refs := o.RefCount()
		if refs < 0 {
			panic("gc: fatal: negative merged refcount after finalization")
		}
		o.SetScratchRefs(refs)
	}

	subtractRefsUnreachable(unreachable)
	clearUnreachableMask(unreachable)

	resurrected := unreachable
	deduceUnreachable(resurrected, stillUnreachable)

	// Resurrected subgraphs go back to the heap.
	resurrected.clear()
}
