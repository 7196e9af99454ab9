package objmodel

import "sync/atomic"

// Object is a collector-managed allocation. The embedded Header comes first
// so that the collector's working lists can link objects without auxiliary
// memory. Reference counting is biased: the owning thread mutates refLocal
// without synchronization, every other thread mutates refShared atomically.
type Object struct {
	Header

	Type *TypeInfo

	// Refs holds the object's owned strong references (container slots).
	// The default traverse callback enumerates them.
	Refs []*Object

	// Stack is non-empty only for frame and coroutine objects: references
	// held by a suspended execution stack. These normally elide shared
	// reference counting and are promoted to real references for the
	// duration of a collection.
	Stack []*Object

	// Weak is non-nil when this object is itself a weak reference.
	Weak *Weak

	// Data is an opaque embedder payload; the collector never inspects it.
	Data any

	owner uint64

	// refLocal: bit 0 is the deferred-counting flag, the count sits above
	// it. Only the owning thread (or the collector during a pause) touches
	// this word.
	refLocal uint64

	// refShared: bit 0 QUEUED, bit 1 MERGED, signed count shifted above.
	refShared int64

	// gcRetained counts scaffolding references added by the collector for
	// stack-held objects. Strictly paired: release must match acquire.
	gcRetained int32

	// weakList holds the weak reference objects registered against this
	// object.
	weakList []*Object

	// Allocator bookkeeping, see SetAllocSite.
	page any
	slot int32
}

const (
	localDeferred = uint64(1) << 0
	localShift    = 1

	sharedQueued = int64(1) << 0
	sharedMerged = int64(1) << 1
	sharedShift  = 2
)

// Owner returns the id of the owning thread, 0 if unowned.
func (o *Object) Owner() uint64 { return o.owner }

// SetOwner assigns the owning thread id. Called once at allocation.
func (o *Object) SetOwner(id uint64) { o.owner = id }

// Deferred reports whether the object uses deferred reference counting.
func (o *Object) Deferred() bool { return o.refLocal&localDeferred != 0 }

// SetDeferred marks the object as using deferred reference counting.
func (o *Object) SetDeferred() { o.refLocal |= localDeferred }

// ClearDeferred removes the deferred-counting mark.
func (o *Object) ClearDeferred() { o.refLocal &^= localDeferred }

// LocalRefs returns the owner-thread reference count.
func (o *Object) LocalRefs() int64 { return int64(o.refLocal >> localShift) }

// IncrefLocal increments the owner-thread count. Owner thread only.
func (o *Object) IncrefLocal() { o.refLocal += 1 << localShift }

// DecrefLocal decrements the owner-thread count. Owner thread only.
func (o *Object) DecrefLocal() {
	if o.refLocal>>localShift == 0 {
		panic("gc: fatal: local refcount underflow")
	}
	o.refLocal -= 1 << localShift
}

// SharedRefs returns the cross-thread reference count (may be negative
// before the owner merges queued decrements).
func (o *Object) SharedRefs() int64 {
	return atomic.LoadInt64(&o.refShared) >> sharedShift
}

// IncrefShared adds one cross-thread reference.
func (o *Object) IncrefShared() {
	atomic.AddInt64(&o.refShared, 1<<sharedShift)
}

// DecrefShared removes one cross-thread reference. queue is true when the
// object must be pushed onto the owner's merge queue: the shared count went
// negative and the object was not already queued or merged. dead is true
// when the object is merged and this decrement took the authoritative
// count to zero; the caller must reclaim it, since no owner will.
func (o *Object) DecrefShared() (queue, dead bool) {
	for {
		old := atomic.LoadInt64(&o.refShared)
		next := old - 1<<sharedShift
		queue = next>>sharedShift < 0 && old&(sharedQueued|sharedMerged) == 0
		if queue {
			next |= sharedQueued
		}
		if atomic.CompareAndSwapInt64(&o.refShared, old, next) {
			if old&sharedMerged != 0 {
				if next>>sharedShift < 0 {
					panic("gc: fatal: refcount is too small")
				}
				dead = next>>sharedShift == 0
			}
			return queue, dead
		}
	}
}

// DecrefSharedStopped removes one cross-thread reference without queue
// bookkeeping. Only valid while the world is stopped, where the caller
// inspects the merged count directly.
func (o *Object) DecrefSharedStopped() {
	atomic.AddInt64(&o.refShared, -(1 << sharedShift))
}

// Queued reports whether the object sits on a merge queue.
func (o *Object) Queued() bool {
	return atomic.LoadInt64(&o.refShared)&sharedQueued != 0
}

// Merged reports whether queued decrements were folded into the local count.
func (o *Object) Merged() bool {
	return atomic.LoadInt64(&o.refShared)&sharedMerged != 0
}

// MergeShared folds the local count into the shared word, zeroes the local
// count and marks the object merged. From then on the shared word is the
// authoritative count and every thread, owner included, must operate on it
// atomically; the queued bit is dropped because a merged object is never
// queued again. Caller must own the object or hold the world stopped.
func (o *Object) MergeShared() {
	old := atomic.LoadInt64(&o.refShared)
	total := int64(o.refLocal>>localShift) + old>>sharedShift
	if total < 0 {
		panic("gc: fatal: negative merged refcount")
	}
	o.refLocal &= localDeferred
	atomic.StoreInt64(&o.refShared, total<<sharedShift|sharedMerged)
}

// RefCount returns the merged reference count: local plus shared, plus one
// when the object still sits unmerged on a merge queue. Analysis code must
// only ever trust this value, never a raw word.
func (o *Object) RefCount() int64 {
	shared := atomic.LoadInt64(&o.refShared)
	count := int64(o.refLocal>>localShift) + shared>>sharedShift
	if shared&sharedQueued != 0 && shared&sharedMerged == 0 {
		// Keep queued objects alive until the owner merges them.
		count++
	}
	return count
}

// Retain adds one collection-scaffolding reference.
func (o *Object) Retain() {
	o.IncrefShared()
	o.gcRetained++
}

// Release removes one collection-scaffolding reference. Asymmetry with
// Retain is a bug, not a tolerated state.
func (o *Object) Release() {
	if o.gcRetained <= 0 {
		panic("gc: fatal: unbalanced scaffolding release")
	}
	o.gcRetained--
	atomic.AddInt64(&o.refShared, -(1 << sharedShift))
}

// RetainedForGC returns the number of outstanding scaffolding references.
func (o *Object) RetainedForGC() int { return int(o.gcRetained) }

// Size returns the object's nominal allocation size, used by the allocator
// for size-class binning.
func (o *Object) Size() uintptr {
	const headerWords = 8
	return uintptr(headerWords+len(o.Refs)+len(o.Stack)) * 8
}

// IsFrame reports whether the object is a frame or a suspended coroutine
// continuation, i.e. a supplier of deferred stack roots.
func (o *Object) IsFrame() bool {
	return o.Type != nil && (o.Type.Kind == KindFrame || o.Type.Kind == KindCoroutine)
}
