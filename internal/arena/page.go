// Package arena implements the thread-local segmented slab allocator the
// cycle collector enumerates. Each mutator thread owns one heap per tag; a
// heap partitions its pages into size-class queues, and every page carves a
// fixed-size block range with an explicit free list. Segments that lose
// their owning thread move onto allocator-level abandoned chains so their
// live blocks stay reachable to heap enumeration.
package arena

import (
	"fmt"
	"sync"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

// HeapTag partitions heaps by the kind of allocation they serve. The
// collector only scans TagGC pages.
type HeapTag int

const (
	// TagGC marks heaps holding collector-managed allocations.
	TagGC HeapTag = iota
	// TagScalar marks heaps holding untracked scalar data.
	TagScalar

	NumHeapTags
)

// NumBins is the number of size-class page queues per heap.
const NumBins = 8

// pageBytes bounds the nominal byte span of one page.
const pageBytes = 16 * 1024

// maxPageSlots caps the block count of a single page.
const maxPageSlots = 256

var sizeClasses = [NumBins]uintptr{64, 128, 256, 512, 1024, 2048, 4096, 8192}

// binFor maps a nominal allocation size to its size-class bin.
func binFor(size uintptr) int {
	for i, c := range sizeClasses {
		if size <= c {
			return i
		}
	}
	return NumBins - 1
}

// Page is one size-class block range. Slots holds the live blocks; freed
// slots are nil and their indexes sit on the free stack. The lock covers
// slot turnover: frees may arrive from non-owner threads once an object's
// counts are merged, concurrently with the owner allocating.
type Page struct {
	mu sync.Mutex

	blockSize uintptr
	tag       HeapTag
	inUse     bool

	slots []*objmodel.Object
	free  []int
	used  int

	next    *Page
	segment *Segment
}

// BlockSize returns the page's block size class in bytes.
func (p *Page) BlockSize() uintptr { return p.blockSize }

// Tag returns the heap tag the page serves.
func (p *Page) Tag() HeapTag { return p.tag }

// InUse reports whether the page is live within its segment.
func (p *Page) InUse() bool { return p.inUse }

// Capacity returns the page's block count.
func (p *Page) Capacity() int { return len(p.slots) }

// Block returns the object occupying slot i, nil when the slot is free.
func (p *Page) Block(i int) *objmodel.Object { return p.slots[i] }

// OnFreeList reports whether slot i sits on the page free list. A slot that
// holds an object and is simultaneously on the free list means the allocator
// metadata is corrupt.
func (p *Page) OnFreeList(i int) bool {
	for _, f := range p.free {
		if f == i {
			return true
		}
	}
	return false
}

// Next returns the following page in the heap's size-class queue.
func (p *Page) Next() *Page { return p.next }

// Used returns the number of occupied slots.
func (p *Page) Used() int { return p.used }

func (p *Page) alloc(o *objmodel.Object) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return false
	}
	i := p.free[n-1]
	p.free = p.free[:n-1]
	if p.slots[i] != nil {
		panic(fmt.Sprintf("arena: free slot %d already occupied", i))
	}
	p.slots[i] = o
	p.used++
	o.SetAllocSite(p, i)
	return true
}

func (p *Page) release(o *objmodel.Object, i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.slots) || p.slots[i] != o {
		return fmt.Errorf("arena: object not resident in page slot %d", i)
	}
	p.slots[i] = nil
	p.free = append(p.free, i)
	p.used--
	o.SetAllocSite(nil, -1)
	return nil
}
