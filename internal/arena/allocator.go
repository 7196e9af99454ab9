package arena

import (
	"fmt"
	"sync"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

// FreeBlock returns an object's block to its page, resolved through the
// allocation site so the caller needs no heap handle (the owning heap may
// already be abandoned). Safe from any thread; the page lock serializes
// slot turnover against the owner.
func FreeBlock(o *objmodel.Object) error {
	pageRef, slot := o.AllocSite()
	p, ok := pageRef.(*Page)
	if !ok || p == nil {
		return fmt.Errorf("arena: object %p has no allocation site", o)
	}
	return p.release(o, slot)
}

// Allocator is the process-wide allocator state: it hands out per-thread
// heaps and keeps the abandoned segment chains left behind by exited
// threads. There is deliberately no registry of individual objects.
type Allocator struct {
	mu sync.Mutex

	abandoned        *Segment
	abandonedVisited *Segment
}

// New creates an empty allocator.
func New() *Allocator {
	return &Allocator{}
}

// NewHeap creates a private heap for the given owner thread and tag.
func (a *Allocator) NewHeap(tag HeapTag, owner uint64) *Heap {
	return &Heap{tag: tag, owner: owner, alloc: a}
}

// Abandon detaches a heap's segments onto the abandoned chain. Called when
// the owning thread exits; live blocks stay visible to heap enumeration.
func (a *Allocator) Abandon(h *Heap) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range h.segments {
		s.abandonedNext = a.abandoned
		a.abandoned = s
	}
	h.segments = nil
	h.queues = [NumBins]*Page{}
	h.pageCount = 0
}

// Abandoned returns the head of the abandoned segment chain.
func (a *Allocator) Abandoned() *Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.abandoned
}

// AbandonedVisited returns the head of the visited abandoned chain, the
// second chain enumeration must walk (segments already reclaimed once by a
// scan but still carrying live blocks).
func (a *Allocator) AbandonedVisited() *Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.abandonedVisited
}

// MarkAbandonedVisited rotates the abandoned chain onto the visited chain.
func (a *Allocator) MarkAbandonedVisited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.abandoned != nil {
		s := a.abandoned
		a.abandoned = s.abandonedNext
		s.abandonedNext = a.abandonedVisited
		a.abandonedVisited = s
	}
}
