package arena

import "github.com/orizon-lang/cyclegc/internal/objmodel"

// segmentPages is the page capacity of one segment.
const segmentPages = 8

// Segment is a group of pages with a common owner. When a thread exits, its
// heap's segments are pushed onto the allocator's abandoned chain; their
// in-use pages remain visible to heap enumeration until adopted or drained.
type Segment struct {
	pages         []*Page
	abandonedNext *Segment
}

func newSegment() *Segment {
	return &Segment{pages: make([]*Page, 0, segmentPages)}
}

// Pages returns the segment's pages, in creation order.
func (s *Segment) Pages() []*Page { return s.pages }

// AbandonedNext returns the next segment on an abandoned chain.
func (s *Segment) AbandonedNext() *Segment { return s.abandonedNext }

func (s *Segment) full() bool { return len(s.pages) >= segmentPages }

func (s *Segment) addPage(tag HeapTag, blockSize uintptr) *Page {
	capacity := int(pageBytes / blockSize)
	if capacity < 1 {
		capacity = 1
	}
	if capacity > maxPageSlots {
		capacity = maxPageSlots
	}
	p := &Page{
		blockSize: blockSize,
		tag:       tag,
		inUse:     true,
		slots:     make([]*objmodel.Object, capacity),
		free:      make([]int, capacity),
		segment:   s,
	}
	for i := range p.free {
		// Pop order matches block order: highest index first.
		p.free[i] = capacity - 1 - i
	}
	s.pages = append(s.pages, p)
	return p
}
