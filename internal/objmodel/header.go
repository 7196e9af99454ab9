// Package objmodel defines the managed object model for the cycle collector:
// the per-object tracking header, the biased (local/shared) reference count
// words, the type callback table, and weak references.
package objmodel

// Header is prefixed to every collector-managed allocation. Next/Prev carry
// working-list linkage (both nil when the object is on no list); the state
// word packs the persistent TRACKED and FINALIZED flags, the transient
// UNREACHABLE flag, and the scratch reference count used only while a
// collection is running.
//
// Invariant: an object is a member of at most one working list at a time, and
// the header alone determines membership.
type Header struct {
	Next *Object
	Prev *Object

	state uint64
}

const (
	flagTracked     = uint64(1) << 0
	flagFinalized   = uint64(1) << 1
	flagUnreachable = uint64(1) << 2

	flagMask = flagTracked | flagFinalized | flagUnreachable

	scratchShift = 3
)

// Tracked reports whether the object is tracked by the collector.
func (h *Header) Tracked() bool { return h.state&flagTracked != 0 }

// SetTracked marks the object as tracked.
func (h *Header) SetTracked() { h.state |= flagTracked }

// ClearTracked marks the object as untracked.
func (h *Header) ClearTracked() { h.state &^= flagTracked }

// Finalized reports whether the one-shot finalizer already ran.
func (h *Header) Finalized() bool { return h.state&flagFinalized != 0 }

// MarkFinalized records that the one-shot finalizer ran.
func (h *Header) MarkFinalized() { h.state |= flagFinalized }

// Unreachable reports the transient unreachable flag.
func (h *Header) Unreachable() bool { return h.state&flagUnreachable != 0 }

// SetUnreachable sets the transient unreachable flag.
func (h *Header) SetUnreachable() { h.state |= flagUnreachable }

// ClearUnreachable clears the transient unreachable flag.
func (h *Header) ClearUnreachable() { h.state &^= flagUnreachable }

// InList reports whether the object is linked into a working list.
func (h *Header) InList() bool { return h.Next != nil }

// ScratchRefs returns the scratch reference count.
func (h *Header) ScratchRefs() int64 {
	return int64(h.state >> scratchShift)
}

// SetScratchRefs overwrites the scratch reference count, preserving flags.
func (h *Header) SetScratchRefs(n int64) {
	if n < 0 {
		panic("gc: fatal: negative scratch refcount")
	}
	h.state = (h.state & flagMask) | (uint64(n) << scratchShift)
}

// DecScratchRef decrements the scratch reference count. A decrement below
// zero means the object graph disagrees with the reference counts, which is
// unrecoverable.
func (h *Header) DecScratchRef() {
	if h.state>>scratchShift == 0 {
		panic("gc: fatal: refcount is too small")
	}
	h.state -= 1 << scratchShift
}

// ClearWorkingState unlinks the header and strips everything but the
// persistent flags. Used when removing an object from a working list.
func (h *Header) ClearWorkingState() {
	h.Next = nil
	h.Prev = nil
	h.state &= flagTracked | flagFinalized
}
