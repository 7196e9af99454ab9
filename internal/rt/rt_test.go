package rt

import (
	"sync"
	"testing"
	"time"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

var plainType = &objmodel.TypeInfo{Name: "plain"}

func allocOn(t *testing.T, th *Thread, nrefs int) *objmodel.Object {
	t.Helper()
	o := &objmodel.Object{Type: plainType, Refs: make([]*objmodel.Object, nrefs)}
	if err := th.GCHeap().Allocate(o); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return o
}

func TestOwnerRefcountReclaims(t *testing.T) {
	r := NewRuntime()
	th := r.NewThread()

	freed := 0
	r.OnFree = func(o *objmodel.Object) { freed++ }

	o := allocOn(t, th, 0)
	th.Incref(o)
	th.Incref(o)
	th.Decref(o)
	if freed != 0 {
		t.Fatal("object freed while referenced")
	}
	th.Decref(o)
	if freed != 1 {
		t.Fatalf("freed = %d, want 1 after count reached zero", freed)
	}
	if page, _ := o.AllocSite(); page != nil {
		t.Error("block not returned to its page")
	}
}

func TestDeferredFastPathSkipsReclaim(t *testing.T) {
	r := NewRuntime()
	th := r.NewThread()

	freed := 0
	r.OnFree = func(o *objmodel.Object) { freed++ }

	o := allocOn(t, th, 0)
	o.SetDeferred()
	th.Incref(o)
	th.Decref(o)
	if freed != 0 {
		t.Fatal("deferred object must not be freed on the fast path")
	}
	if o.RefCount() != 0 {
		t.Fatalf("count = %d, want 0", o.RefCount())
	}

	// With the fast path disabled the next zero reclaims immediately.
	prev := th.DisableDeferredRC()
	th.Incref(o)
	th.Decref(o)
	if freed != 1 {
		t.Fatal("disabled fast path must reclaim at zero")
	}
	th.RestoreDeferredRC(prev)
}

func TestCrossThreadDecrementMerges(t *testing.T) {
	r := NewRuntime()
	owner := r.NewThread()
	other := r.NewThread()

	o := allocOn(t, owner, 0)
	owner.Incref(o)
	other.Incref(o)
	other.Decref(o) // shared back to zero, no queue
	other.Decref(o) // shared negative: queued for the owner

	if o.RefCount() != 1 {
		t.Fatalf("count before merge = %d, want 1 (queued phantom)", o.RefCount())
	}

	freed := 0
	r.OnFree = func(o *objmodel.Object) { freed++ }
	owner.ProcessMergeQueue()
	if freed != 1 {
		t.Fatalf("freed = %d, want 1 after merge found zero", freed)
	}
}

func TestExplicitMergeAll(t *testing.T) {
	r := NewRuntime()
	owner := r.NewThread()
	other := r.NewThread()

	o := allocOn(t, owner, 0)
	owner.Incref(o)
	owner.Incref(o)
	other.Decref(o)

	if o.Merged() {
		t.Fatal("object should not be merged yet")
	}
	r.ExplicitMergeAll()
	if !o.Merged() {
		t.Fatal("explicit merge must fold queued decrements")
	}
	if o.RefCount() != 1 {
		t.Fatalf("merged count = %d, want 1", o.RefCount())
	}
}

func TestDecrefAfterMergeReclaims(t *testing.T) {
	r := NewRuntime()
	owner := r.NewThread()
	other := r.NewThread()

	o := allocOn(t, owner, 0)
	owner.Incref(o)
	owner.Incref(o)
	other.Decref(o) // shared negative: queued for the owner
	owner.ProcessMergeQueue()
	if !o.Merged() || o.RefCount() != 1 {
		t.Fatalf("merged = %v, count = %d, want merged count 1", o.Merged(), o.RefCount())
	}

	// The shared word is authoritative now: both the owner and other
	// threads ride it, and the decrement that reaches zero reclaims on the
	// spot instead of stranding the object at zero.
	freed := 0
	r.OnFree = func(*objmodel.Object) { freed++ }
	other.Incref(o)
	owner.Decref(o)
	if freed != 0 {
		t.Fatal("object freed while a reference remains")
	}
	other.Decref(o)
	if freed != 1 {
		t.Fatalf("freed = %d, want 1 when the merged count reached zero", freed)
	}
}

func TestOwnerDropHandsCountToOtherThread(t *testing.T) {
	r := NewRuntime()
	owner := r.NewThread()
	other := r.NewThread()

	freed := 0
	r.OnFree = func(*objmodel.Object) { freed++ }

	o := allocOn(t, owner, 0)
	owner.Incref(o)
	other.Incref(o)

	// The owner lets go first. Its zero local count must not strand the
	// object: the remaining shared reference becomes the authoritative
	// count.
	owner.Decref(o)
	if freed != 0 || o.RefCount() != 1 {
		t.Fatalf("freed = %d, count = %d, want live at 1", freed, o.RefCount())
	}
	if !o.Merged() {
		t.Fatal("owner's last local release must merge the counts")
	}
	other.Decref(o)
	if freed != 1 {
		t.Fatalf("freed = %d, want 1 after the non-owner's final decrement", freed)
	}
}

func TestClearObjectDropsChildren(t *testing.T) {
	r := NewRuntime()
	th := r.NewThread()

	child := allocOn(t, th, 0)
	th.Incref(child)
	parent := allocOn(t, th, 1)
	parent.Refs[0] = child
	th.Incref(child) // slot reference

	freed := map[*objmodel.Object]bool{}
	r.OnFree = func(o *objmodel.Object) { freed[o] = true }

	th.ClearObject(parent)
	if freed[child] {
		t.Fatal("child still externally referenced")
	}
	th.Decref(child)
	if !freed[child] {
		t.Fatal("child should be freed once the external reference drops")
	}
}

func TestFinalizerResurrectionAbortsTeardown(t *testing.T) {
	r := NewRuntime()
	th := r.NewThread()

	var keeper *objmodel.Object
	typ := &objmodel.TypeInfo{
		Name: "phoenix",
		Finalize: func(o *objmodel.Object) error {
			keeper = o
			th.Incref(o)
			return nil
		},
	}
	o := &objmodel.Object{Type: typ}
	if err := th.GCHeap().Allocate(o); err != nil {
		t.Fatal(err)
	}

	freed := 0
	r.OnFree = func(*objmodel.Object) { freed++ }

	th.Incref(o)
	th.Decref(o)
	if freed != 0 || keeper == nil {
		t.Fatal("finalizer resurrection must abort the teardown")
	}
	if !o.Finalized() {
		t.Fatal("finalized flag must be set")
	}

	th.Decref(o)
	if freed != 1 {
		t.Fatal("second death must reclaim without re-running the finalizer")
	}
}

func TestStopTheWorldParksMutators(t *testing.T) {
	r := NewRuntime()
	const workers = 4

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var progress [workers]int64

	for i := 0; i < workers; i++ {
		th := r.NewThread()
		wg.Add(1)
		go func(i int, th *Thread) {
			defer wg.Done()
			th.Begin()
			defer th.End()
			for {
				select {
				case <-stop:
					return
				default:
				}
				progress[i]++
				th.Safepoint()
			}
		}(i, th)
	}

	time.Sleep(2 * time.Millisecond)
	r.StopTheWorld()
	snap := progress
	time.Sleep(2 * time.Millisecond)
	if snap != progress {
		t.Error("mutators progressed during the pause")
	}
	r.StartTheWorld()
	time.Sleep(2 * time.Millisecond)
	r.StopTheWorld()
	resumed := snap != progress
	r.StartTheWorld()
	if !resumed {
		t.Error("mutators did not resume")
	}
	close(stop)
	wg.Wait()
}

func TestRetainReleaseLogIsPaired(t *testing.T) {
	r := NewRuntime()
	th := r.NewThread()

	val := allocOn(t, th, 0)
	val.SetDeferred()
	frame := &objmodel.Object{
		Type:  &objmodel.TypeInfo{Name: "frame", Kind: objmodel.KindFrame},
		Stack: []*objmodel.Object{val},
	}
	if err := th.GCHeap().Allocate(frame); err != nil {
		t.Fatal(err)
	}
	frame.SetDeferred()
	th.PushFrame(frame)

	var log []*objmodel.Object
	log = th.RetainFrames(log)
	log = RetainStack(frame, log)
	if len(log) != 2 {
		t.Fatalf("log size = %d, want 2", len(log))
	}
	if val.RefCount() != 1 || frame.RefCount() != 1 {
		t.Fatal("scaffolding references missing")
	}

	th.ReleaseLog(log)
	if val.RefCount() != 0 || frame.RefCount() != 0 {
		t.Fatal("scaffolding references not fully released")
	}
	if val.RetainedForGC() != 0 || frame.RetainedForGC() != 0 {
		t.Fatal("retain counters must return to zero")
	}
}

func TestThreadExitAbandonsHeaps(t *testing.T) {
	r := NewRuntime()
	th := r.NewThread()
	o := allocOn(t, th, 0)
	th.Incref(o)

	th.Exit()
	if len(r.Threads()) != 0 {
		t.Fatal("exited thread still registered")
	}
	if r.Allocator().Abandoned() == nil {
		t.Fatal("heap segments not abandoned")
	}
	// The orphaned object must still be reclaimable from another thread.
	freed := 0
	r.OnFree = func(*objmodel.Object) { freed++ }
	other := r.NewThread()
	other.Decref(o)
	if freed != 1 {
		t.Fatalf("freed = %d, want orphan reclaimed via direct merge", freed)
	}
}

func TestPanickingClearReported(t *testing.T) {
	r := NewRuntime()
	th := r.NewThread()

	var reported string
	r.Unraisable = func(context string, err error) { reported = context }

	typ := &objmodel.TypeInfo{
		Name: "volatile",
		Clear: func(*objmodel.Object) error {
			panic("clear exploded")
		},
	}
	o := &objmodel.Object{Type: typ}
	if err := th.GCHeap().Allocate(o); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	th.Incref(o)
	th.Decref(o)

	if reported != "clear of volatile" {
		t.Fatalf("reported = %q, want the clear context", reported)
	}
	if page, _ := o.AllocSite(); page != nil {
		t.Error("block not returned to its page after the clear panic")
	}
}
