package gc

import (
	"testing"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

func TestListAppendRemove(t *testing.T) {
	var l list
	l.init()
	if !l.empty() {
		t.Fatal("fresh list not empty")
	}

	a := &objmodel.Object{}
	b := &objmodel.Object{}
	l.append(a)
	l.append(b)
	if l.size() != 2 || l.first() != a {
		t.Fatalf("size = %d, first = %p", l.size(), l.first())
	}
	if !a.InList() || !b.InList() {
		t.Fatal("members must read as linked")
	}

	listRemove(a)
	if l.size() != 1 || l.first() != b {
		t.Fatal("remove broke the links")
	}
	if a.InList() {
		t.Fatal("removed object still reads as linked")
	}
}

func TestListMoveKeepsScratch(t *testing.T) {
	var from, to list
	from.init()
	to.init()

	o := &objmodel.Object{}
	from.append(o)
	o.SetScratchRefs(7)
	listMove(o, &to)

	if from.size() != 0 || to.size() != 1 {
		t.Fatal("move left the object behind")
	}
	if o.ScratchRefs() != 7 {
		t.Fatalf("scratch = %d, want 7 preserved across a move", o.ScratchRefs())
	}
}

func TestListMergeAndClear(t *testing.T) {
	var x, y list
	x.init()
	y.init()
	for i := 0; i < 3; i++ {
		x.append(&objmodel.Object{})
		y.append(&objmodel.Object{})
	}

	x.merge(&y)
	if x.size() != 6 || !y.empty() {
		t.Fatalf("merge: x = %d, y empty = %v", x.size(), y.empty())
	}

	first := x.first()
	x.clear()
	if !x.empty() || first.InList() {
		t.Fatal("clear must unlink every member")
	}
}
