package arena

import (
	"testing"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

func newObj(nrefs int) *objmodel.Object {
	return &objmodel.Object{Refs: make([]*objmodel.Object, nrefs)}
}

func TestAllocateAndFree(t *testing.T) {
	a := New()
	h := a.NewHeap(TagGC, 1)

	o := newObj(4)
	if err := h.Allocate(o); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if o.Owner() != 1 {
		t.Errorf("owner = %d, want 1", o.Owner())
	}
	pageRef, slot := o.AllocSite()
	p := pageRef.(*Page)
	if p.Block(slot) != o {
		t.Fatal("allocation site does not resolve to object")
	}
	if p.Used() != 1 {
		t.Errorf("page used = %d, want 1", p.Used())
	}

	if err := h.Free(o); err != nil {
		t.Fatalf("free: %v", err)
	}
	if p.Used() != 0 {
		t.Errorf("page used after free = %d, want 0", p.Used())
	}
	if !p.OnFreeList(slot) {
		t.Error("freed slot missing from free list")
	}
	if err := h.Free(o); err == nil {
		t.Error("double free must fail")
	}
}

func TestSizeClassBinning(t *testing.T) {
	a := New()
	h := a.NewHeap(TagGC, 1)

	small := newObj(0)
	big := newObj(200)
	if err := h.Allocate(small); err != nil {
		t.Fatal(err)
	}
	if err := h.Allocate(big); err != nil {
		t.Fatal(err)
	}

	sp, _ := small.AllocSite()
	bp, _ := big.AllocSite()
	if sp.(*Page) == bp.(*Page) {
		t.Error("objects of different size classes share a page")
	}
	if sp.(*Page).BlockSize() >= bp.(*Page).BlockSize() {
		t.Error("size classes not ordered")
	}
}

func TestPageGrowth(t *testing.T) {
	a := New()
	h := a.NewHeap(TagGC, 1)

	// Overflow the first page of the smallest class.
	first, _ := func() (any, int) {
		o := newObj(0)
		if err := h.Allocate(o); err != nil {
			t.Fatal(err)
		}
		return o.AllocSite()
	}()
	capacity := first.(*Page).Capacity()
	for i := 1; i <= capacity; i++ {
		if err := h.Allocate(newObj(0)); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	if h.PageCount() < 2 {
		t.Errorf("page count = %d, want growth past the first page", h.PageCount())
	}
}

func TestAbandonMovesSegments(t *testing.T) {
	a := New()
	h := a.NewHeap(TagGC, 7)
	o := newObj(1)
	if err := h.Allocate(o); err != nil {
		t.Fatal(err)
	}

	a.Abandon(h)
	if h.PageCount() != 0 {
		t.Error("abandoned heap should own no pages")
	}

	seg := a.Abandoned()
	if seg == nil {
		t.Fatal("abandoned chain empty")
	}
	found := false
	for s := seg; s != nil; s = s.AbandonedNext() {
		for _, p := range s.Pages() {
			for i := 0; i < p.Capacity(); i++ {
				if p.Block(i) == o {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("live block lost by abandonment")
	}

	a.MarkAbandonedVisited()
	if a.Abandoned() != nil {
		t.Error("abandoned chain should be empty after rotation")
	}
	if a.AbandonedVisited() == nil {
		t.Error("visited chain should hold the rotated segment")
	}
}
