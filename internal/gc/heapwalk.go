package gc

import (
	"fmt"

	"github.com/orizon-lang/cyclegc/internal/arena"
	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

// visitFunc is invoked once per tracked object during heap enumeration.
// A non-zero return aborts the walk and is propagated.
type visitFunc func(o *objmodel.Object) int

// visitHeap enumerates every tracked managed object in the process without
// a global object registry: each registered thread's collector heap is
// walked page by page, then the allocator-level abandoned and
// abandoned-visited segment chains. A per-heap visited flag prevents double
// scanning a heap shared across iteration passes. Objects allocated in
// threads not being scanned may be missed; in practice the world is stopped
// before enumeration begins.
func (c *Collector) visitHeap(visitor visitFunc) int {
	threads := c.rt.Threads()
	st := 0

	for _, th := range threads {
		h := th.GCHeap()
		if h == nil || h.Visited() || h.PageCount() == 0 {
			continue
		}
		for bin := 0; bin < arena.NumBins; bin++ {
			for p := h.PageQueue(bin); p != nil; p = p.Next() {
				if st = visitPage(p, visitor); st != 0 {
					goto end
				}
			}
		}
		h.SetVisited(true)
	}

	if st = visitSegmentChain(c.rt.Allocator().Abandoned(), visitor); st != 0 {
		goto end
	}
	st = visitSegmentChain(c.rt.Allocator().AbandonedVisited(), visitor)

end:
	for _, th := range threads {
		if h := th.GCHeap(); h != nil {
			h.SetVisited(false)
		}
	}
	// Segments abandoned during the walk land on the fresh chain; fold the
	// ones just scanned onto the visited chain so the distinction stays
	// meaningful for the next pass.
	c.rt.Allocator().MarkAbandonedVisited()
	return st
}

func visitSegmentChain(seg *arena.Segment, visitor visitFunc) int {
	for ; seg != nil; seg = seg.AbandonedNext() {
		for _, p := range seg.Pages() {
			if !p.InUse() || p.Tag() != arena.TagGC {
				continue
			}
			if st := visitPage(p, visitor); st != 0 {
				return st
			}
		}
	}
	return 0
}

func visitPage(p *arena.Page, visitor visitFunc) int {
	for i, end := 0, p.Capacity(); i != end; i++ {
		o := p.Block(i)
		if o == nil {
			continue
		}
		if p.OnFreeList(i) {
			// Continuing with a block that is simultaneously live and
			// free would corrupt the object graph.
			panic(fmt.Sprintf("gc: fatal: block %d of page %p claimed live but on free list", i, p))
		}
		if !o.Tracked() {
			continue
		}
		if st := visitor(o); st != 0 {
			return st
		}
	}
	return 0
}

// FindObject reports whether obj is currently enumerable from the heap.
func (c *Collector) FindObject(obj *objmodel.Object) bool {
	found := false
	c.visitHeap(func(o *objmodel.Object) int {
		if o == obj {
			found = true
		}
		return 0
	})
	return found
}

// FindRefs writes every tracked referrer of target to the diagnostic
// stream. Debug aid.
func (c *Collector) FindRefs(target *objmodel.Object) {
	c.visitHeap(func(o *objmodel.Object) int {
		objmodel.Traverse(o, func(ref *objmodel.Object, arg any) int {
			if ref == target {
				parent := arg.(*objmodel.Object)
				fmt.Fprintf(c.diag, "gc: reference from %p (%s) to %p (%s)\n",
					parent, typeName(parent), target, typeName(target))
			}
			return 0
		}, o)
		return 0
	})
}

func typeName(o *objmodel.Object) string {
	if o.Type == nil {
		return "<untyped>"
	}
	return o.Type.Name
}

// CountGeneration returns the advisory census of tracked objects. All
// objects live in the single collected generation under this design.
func (c *Collector) CountGeneration(generation int) int64 {
	if generation < 0 || generation >= NumGenerations {
		return 0
	}
	var n int64
	c.visitHeap(func(o *objmodel.Object) int {
		n++
		return 0
	})
	return n
}

// ResetHeap clears every tracking header, abandoning collector state over
// the whole heap. Used on runtime re-initialization; the objects leak.
func (c *Collector) ResetHeap() {
	c.visitHeap(func(o *objmodel.Object) int {
		o.ClearWorkingState()
		o.ClearTracked()
		return 0
	})
	c.live.Store(0)
}
