package objmodel

import "testing"

func TestHeaderFlags(t *testing.T) {
	var o Object

	if o.Tracked() {
		t.Error("new header should be untracked")
	}
	o.SetTracked()
	if !o.Tracked() {
		t.Error("tracked flag not set")
	}

	o.SetScratchRefs(42)
	if o.ScratchRefs() != 42 {
		t.Errorf("scratch refs = %d, want 42", o.ScratchRefs())
	}
	if !o.Tracked() {
		t.Error("setting scratch refs must preserve flags")
	}

	o.SetUnreachable()
	o.MarkFinalized()
	o.ClearWorkingState()
	if o.Unreachable() {
		t.Error("working state clear must drop unreachable flag")
	}
	if o.ScratchRefs() != 0 {
		t.Error("working state clear must drop scratch refs")
	}
	if !o.Tracked() || !o.Finalized() {
		t.Error("working state clear must keep persistent flags")
	}
}

func TestScratchUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("decrementing zero scratch refs must panic")
		}
	}()
	var o Object
	o.DecScratchRef()
}

func TestMergedRefCount(t *testing.T) {
	var o Object

	o.IncrefLocal()
	o.IncrefLocal()
	o.IncrefShared()
	if got := o.RefCount(); got != 3 {
		t.Errorf("merged count = %d, want 3", got)
	}

	// Cross-thread decrements below zero queue the object and keep one
	// phantom reference alive until the owner merges.
	if q, _ := o.DecrefShared(); q {
		t.Error("shared decrement to zero should not queue")
	}
	if q, _ := o.DecrefShared(); !q {
		t.Error("shared decrement below zero should queue")
	}
	if o.RefCount() != 2 { // 2 local + (-1) shared + 1 queued
		t.Errorf("queued object count = %d, want 2", o.RefCount())
	}

	o.MergeShared()
	if !o.Merged() {
		t.Error("merge must set the merged bit")
	}
	if o.Queued() {
		t.Error("merge must drop the queued bit")
	}
	if got := o.RefCount(); got != 1 {
		t.Errorf("post-merge count = %d, want 1", got)
	}
	if got := o.LocalRefs(); got != 0 {
		t.Errorf("post-merge local count = %d, want 0", got)
	}

	// Once merged, the shared word carries the whole count and a shared
	// decrement that reaches zero reports the object dead.
	o.IncrefShared()
	if q, dead := o.DecrefShared(); q || dead {
		t.Error("merged decrement above zero must neither queue nor kill")
	}
	if q, dead := o.DecrefShared(); q || !dead {
		t.Error("merged decrement to zero must report dead without queueing")
	}
}

func TestScaffoldingPairing(t *testing.T) {
	var o Object
	o.IncrefLocal()

	o.Retain()
	o.Retain()
	if o.RefCount() != 3 {
		t.Errorf("count after two retains = %d, want 3", o.RefCount())
	}
	o.Release()
	o.Release()
	if o.RefCount() != 1 {
		t.Errorf("count after release = %d, want 1", o.RefCount())
	}

	defer func() {
		if recover() == nil {
			t.Fatal("unbalanced release must panic")
		}
	}()
	o.Release()
}

func TestWeakRegistration(t *testing.T) {
	referent := &Object{Type: &TypeInfo{Name: "box", SupportsWeakRefs: true}}
	wr := &Object{Type: &TypeInfo{Name: "weakref", Kind: KindWeakRef}}
	w, err := NewWeak(wr, referent, nil)
	if err != nil {
		t.Fatalf("NewWeak: %v", err)
	}

	if w.Get() != referent {
		t.Fatal("weak reference should resolve to referent")
	}
	if len(referent.WeakRefs()) != 1 {
		t.Fatal("weak reference not registered")
	}

	referent.ClearWeakRefs()
	if w.Get() != nil {
		t.Error("cleared weak reference must not resolve")
	}
	if len(referent.WeakRefs()) != 0 {
		t.Error("registrations must be dropped on clear")
	}
}

func TestWeakRegistrationRequiresSupport(t *testing.T) {
	referent := &Object{Type: &TypeInfo{Name: "sealed"}}
	wr := &Object{Type: &TypeInfo{Name: "weakref", Kind: KindWeakRef}}

	if _, err := NewWeak(wr, referent, nil); err == nil {
		t.Fatal("weak reference to a non-supporting type must be refused")
	}
	if wr.Weak != nil || len(referent.WeakRefs()) != 0 {
		t.Fatal("refused registration must leave no state behind")
	}
}

func TestTraverseDefault(t *testing.T) {
	a := &Object{}
	b := &Object{}
	o := &Object{Refs: []*Object{a, nil, b}}

	var seen []*Object
	Traverse(o, func(ref *Object, arg any) int {
		seen = append(seen, ref)
		return 0
	}, nil)
	if len(seen) != 2 || seen[0] != a || seen[1] != b {
		t.Errorf("default traverse visited %d refs, want a then b", len(seen))
	}

	// Non-zero visitor status aborts the scan.
	calls := 0
	st := Traverse(o, func(ref *Object, arg any) int {
		calls++
		return -1
	}, nil)
	if st != -1 || calls != 1 {
		t.Errorf("abort: status=%d calls=%d, want -1 and 1", st, calls)
	}
}
