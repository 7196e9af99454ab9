package arena

import (
	"fmt"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

// Heap is one thread's private allocation surface for a single tag. Pages
// are partitioned into size-class queues. Heaps are not thread safe: only
// the owning thread (or the collector during a pause) may touch one.
type Heap struct {
	tag      HeapTag
	owner    uint64
	alloc    *Allocator
	queues   [NumBins]*Page
	segments []*Segment

	pageCount int
	visited   bool
}

// Tag returns the heap's tag.
func (h *Heap) Tag() HeapTag { return h.tag }

// Owner returns the owning thread id.
func (h *Heap) Owner() uint64 { return h.owner }

// PageCount returns the number of pages the heap owns.
func (h *Heap) PageCount() int { return h.pageCount }

// Visited reports the transient enumeration flag. A heap shared across
// iteration passes must be scanned at most once per enumeration.
func (h *Heap) Visited() bool { return h.visited }

// SetVisited sets or clears the transient enumeration flag.
func (h *Heap) SetVisited(v bool) { h.visited = v }

// PageQueue returns the first page of size-class bin.
func (h *Heap) PageQueue(bin int) *Page { return h.queues[bin] }

// Allocate places o on a page of the matching size class, growing the heap
// by a page when every existing one is full.
func (h *Heap) Allocate(o *objmodel.Object) error {
	bin := binFor(o.Size())
	for p := h.queues[bin]; p != nil; p = p.next {
		if p.alloc(o) {
			o.SetOwner(h.owner)
			return nil
		}
	}
	p := h.newPage(bin)
	if !p.alloc(o) {
		return fmt.Errorf("arena: fresh page rejected allocation (size %d)", o.Size())
	}
	o.SetOwner(h.owner)
	return nil
}

// Free returns o's block to its page. The object must have been allocated
// from this heap or from a heap the caller owns exclusively.
func (h *Heap) Free(o *objmodel.Object) error {
	return FreeBlock(o)
}

func (h *Heap) newPage(bin int) *Page {
	var seg *Segment
	for _, s := range h.segments {
		if !s.full() {
			seg = s
			break
		}
	}
	if seg == nil {
		seg = newSegment()
		h.segments = append(h.segments, seg)
	}
	p := seg.addPage(h.tag, sizeClasses[bin])
	p.next = h.queues[bin]
	h.queues[bin] = p
	h.pageCount++
	return p
}
