package objmodel

// Kind classifies managed objects for the collector. Most objects are plain
// containers; frames and coroutine continuations additionally supply deferred
// stack roots during a collection.
type Kind int

const (
	KindContainer Kind = iota
	KindWeakRef
	KindFrame
	KindCoroutine
)

// VisitFunc is invoked once per managed object reached by a traverse.
// A non-zero return aborts the surrounding scan and is propagated.
type VisitFunc func(o *Object, arg any) int

// TypeInfo is the per-type callback table the collector consumes. The
// callbacks are supplied by each object type and are never implemented by the
// collector itself.
type TypeInfo struct {
	Name string
	Kind Kind

	// Traverse enumerates every managed object directly owned by o. It must
	// not skip anything Clear can reach. When nil, the default traversal
	// walks o.Refs and o.Stack.
	Traverse func(o *Object, visit VisitFunc, arg any) int

	// Clear severs o's owned references without necessarily freeing o.
	// Idempotent; may run arbitrary teardown.
	Clear func(o *Object) error

	// Finalize is the optional one-shot pre-mortem hook. Idempotence is
	// enforced by the header's FINALIZED flag. A returned error is
	// reported on the unraisable channel and never aborts the teardown.
	Finalize func(o *Object) error

	// LegacyFinalize marks the type as having an unsafe finalizer. Objects
	// of such types (and everything they keep alive) must never be torn
	// down automatically; they are quarantined on the retained garbage
	// list instead.
	LegacyFinalize func(o *Object) error

	// SupportsWeakRefs reports whether weak references may target
	// instances of this type.
	SupportsWeakRefs bool
}

// HasLegacyFinalizer reports whether the type carries an unsafe finalizer.
func (t *TypeInfo) HasLegacyFinalizer() bool {
	return t != nil && t.LegacyFinalize != nil
}

// Traverse runs the type's traverse callback, falling back to the default
// slot walk. The return value is the first non-zero visitor status.
func Traverse(o *Object, visit VisitFunc, arg any) int {
	if o.Type != nil && o.Type.Traverse != nil {
		return o.Type.Traverse(o, visit, arg)
	}
	for _, ref := range o.Refs {
		if ref == nil {
			continue
		}
		if st := visit(ref, arg); st != 0 {
			return st
		}
	}
	for _, ref := range o.Stack {
		if ref == nil {
			continue
		}
		if st := visit(ref, arg); st != 0 {
			return st
		}
	}
	return 0
}

// ClearRefs nils out the container and stack slots without touching any
// reference count; the caller performs the matching decrements. Types with a
// Clear callback run that instead.
func ClearRefs(o *Object) {
	for i := range o.Refs {
		o.Refs[i] = nil
	}
	for i := range o.Stack {
		o.Stack[i] = nil
	}
}
