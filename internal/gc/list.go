// Package gc implements the cycle collector: heap enumeration over the slab
// allocator's page metadata, reference reconciliation for biased counts,
// the subtract-refs / move-unreachable reachability analysis, weak reference
// clearing, finalization with resurrection handling, garbage destruction,
// and collection pacing. The whole sequence runs under one externally
// coordinated stop-the-world pause.
package gc

import "github.com/orizon-lang/cyclegc/internal/objmodel"

// list is a transient working set of objects, linked through their tracking
// headers around a sentinel. Lists exist only inside one collection pass.
type list struct {
	head objmodel.Object
}

func (l *list) init() {
	l.head.Next = &l.head
	l.head.Prev = &l.head
}

func (l *list) sentinel() *objmodel.Object { return &l.head }

func (l *list) empty() bool {
	return l.head.Next == &l.head
}

func (l *list) first() *objmodel.Object { return l.head.Next }

// append links o at the tail.
func (l *list) append(o *objmodel.Object) {
	last := l.head.Prev
	o.Prev = last
	last.Next = o
	o.Next = &l.head
	l.head.Prev = o
}

// listRemove unlinks o from whatever list holds it and strips the transient
// header state, keeping the persistent flags.
func listRemove(o *objmodel.Object) {
	prev := o.Prev
	next := o.Next
	prev.Next = next
	next.Prev = prev
	o.ClearWorkingState()
}

// listMove relinks o at the tail of to. Equivalent to remove+append but
// keeps the scratch count and flags intact.
func listMove(o *objmodel.Object, to *list) {
	prev := o.Prev
	next := o.Next
	prev.Next = next
	next.Prev = prev

	last := to.head.Prev
	o.Prev = last
	last.Next = o
	o.Next = &to.head
	to.head.Prev = o
}

// merge appends everything on from to the tail of to; from becomes empty.
func (l *list) merge(from *list) {
	if !from.empty() {
		tail := l.head.Prev
		head := from.head.Next
		fromTail := from.head.Prev

		tail.Next = head
		head.Prev = tail
		fromTail.Next = &l.head
		l.head.Prev = fromTail
	}
	from.init()
}

// clear unlinks every member, returning each to the ordinary tracked state.
func (l *list) clear() {
	o := l.head.Next
	for o != &l.head {
		next := o.Next
		o.ClearWorkingState()
		o = next
	}
	l.init()
}

func (l *list) size() int64 {
	var n int64
	for o := l.head.Next; o != &l.head; o = o.Next {
		n++
	}
	return n
}
