package gc

import (
	"fmt"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

// Enable turns automatic collection on.
func (c *Collector) Enable() { c.enabled.Store(true) }

// Disable turns automatic collection off. Explicit Collect calls still
// work.
func (c *Collector) Disable() { c.enabled.Store(false) }

// IsEnabled reports whether automatic collection is on.
func (c *Collector) IsEnabled() bool { return c.enabled.Load() }

// Collect runs a collection unconditionally and returns the number of
// objects reclaimed and the number quarantined as uncollectable. If a
// collection is already running the request is dropped and both counts
// are zero.
func (c *Collector) Collect() (collected, uncollectable int64) {
	return c.collect(ReasonManual)
}

// CollectIfEnabled runs a collection unless the collector is disabled.
func (c *Collector) CollectIfEnabled() (int64, int64) {
	if !c.enabled.Load() {
		return 0, 0
	}
	return c.collect(ReasonManual)
}

// CollectShutdown runs the final collection of the process. Callbacks are
// not invoked; user code observing a half-dismantled runtime helps
// nobody.
func (c *Collector) CollectShutdown() (int64, int64) {
	return c.collect(ReasonShutdown)
}

// SetDebug replaces the debug flag bits. Takes effect at the next
// collection.
func (c *Collector) SetDebug(flags uint64) { c.debug.Store(flags) }

// GetDebug returns the debug flag bits.
func (c *Collector) GetDebug() uint64 { return c.debug.Load() }

// SetThreshold sets the trigger points. Only the first generation's
// threshold drives pacing; the extra values are stored and reported back.
func (c *Collector) SetThreshold(t0 int64, rest ...int64) {
	c.generations[0].threshold.Store(t0)
	for i, t := range rest {
		if i+1 >= NumGenerations {
			break
		}
		c.generations[i+1].threshold.Store(t)
	}
}

// GetThreshold returns the trigger points of every generation.
func (c *Collector) GetThreshold() [NumGenerations]int64 {
	var out [NumGenerations]int64
	for i := range c.generations {
		out[i] = c.generations[i].threshold.Load()
	}
	return out
}

// SetScale changes the heap growth percentage; zero disables growth
// triggering.
func (c *Collector) SetScale(scale int64) {
	if scale < 0 {
		return
	}
	c.scale.Store(scale)
}

// Scale returns the heap growth percentage.
func (c *Collector) Scale() int64 { return c.scale.Load() }

// GetCount returns the per-generation allocation census: net objects
// tracked since the last collection count against the first generation;
// the others are always zero.
func (c *Collector) GetCount() [NumGenerations]int64 {
	return [NumGenerations]int64{c.generations[0].count.Load(), 0, 0}
}

// GetStats returns a snapshot of the lifetime statistics.
func (c *Collector) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// GetObjects returns every tracked object, discovered by walking the heap
// under a pause.
func (c *Collector) GetObjects() []*objmodel.Object {
	var out []*objmodel.Object
	c.withWorldStopped(func() {
		c.visitHeap(func(o *objmodel.Object) int {
			out = append(out, o)
			return 0
		})
	})
	return out
}

// GetReferrers returns the tracked objects holding a reference to any of
// the targets.
func (c *Collector) GetReferrers(targets ...*objmodel.Object) []*objmodel.Object {
	lookup := make(map[*objmodel.Object]bool, len(targets))
	for _, t := range targets {
		lookup[t] = true
	}
	var out []*objmodel.Object
	c.withWorldStopped(func() {
		c.visitHeap(func(o *objmodel.Object) int {
			objmodel.Traverse(o, func(ref *objmodel.Object, _ any) int {
				if lookup[ref] {
					out = append(out, o)
					return 1
				}
				return 0
			}, nil)
			return 0
		})
	})
	return out
}

// GetReferents returns the objects directly referenced by the arguments.
func (c *Collector) GetReferents(objs ...*objmodel.Object) []*objmodel.Object {
	var out []*objmodel.Object
	for _, o := range objs {
		objmodel.Traverse(o, func(ref *objmodel.Object, _ any) int {
			out = append(out, ref)
			return 0
		}, nil)
	}
	return out
}

// IsTracked reports whether the collector examines o.
func (c *Collector) IsTracked(o *objmodel.Object) bool { return o.Tracked() }

// IsFinalized reports whether o's finalizer has already run.
func (c *Collector) IsFinalized(o *objmodel.Object) bool { return o.Finalized() }

// Freeze is accepted for surface compatibility and does nothing: without
// generations there is no permanent set to move objects into.
func (c *Collector) Freeze() {}

// Unfreeze is accepted for surface compatibility and does nothing.
func (c *Collector) Unfreeze() {}

// GetFreezeCount returns the number of frozen objects, always zero.
func (c *Collector) GetFreezeCount() int64 { return c.frozen.Load() }

func (c *Collector) appendGarbage(o *objmodel.Object) {
	c.garbageMu.Lock()
	c.garbage = append(c.garbage, o)
	c.garbageMu.Unlock()
}

// Garbage returns the quarantined uncollectable objects. The slice is the
// collector's own; the caller must not mutate it.
func (c *Collector) Garbage() []*objmodel.Object {
	c.garbageMu.Lock()
	defer c.garbageMu.Unlock()
	return c.garbage
}

// ClearGarbage empties the quarantine, dropping the list's references under
// a pause so objects whose last reference was the quarantine's are reclaimed
// before the call returns.
func (c *Collector) ClearGarbage() {
	c.garbageMu.Lock()
	g := c.garbage
	c.garbage = nil
	c.garbageMu.Unlock()
	c.withWorldStopped(func() {
		for _, o := range g {
			c.self.Decref(o)
		}
	})
}

// RegisterCallback adds a collection observer and returns a handle for
// removal.
func (c *Collector) RegisterCallback(fn Callback) uint64 {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.cbNext++
	id := c.cbNext
	c.cbs = append(c.cbs, callbackEntry{id: id, fn: fn})
	return id
}

// UnregisterCallback removes a collection observer.
func (c *Collector) UnregisterCallback(id uint64) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	for i, e := range c.cbs {
		if e.id == id {
			c.cbs = append(c.cbs[:i], c.cbs[i+1:]...)
			return
		}
	}
}

// invokeCallbacks runs the observers. A panicking callback is reported on
// the unraisable channel and never aborts a collection.
func (c *Collector) invokeCallbacks(phase Phase, info CallbackInfo) {
	c.cbMu.Lock()
	cbs := make([]callbackEntry, len(c.cbs))
	copy(cbs, c.cbs)
	c.cbMu.Unlock()

	for _, e := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.rt.ReportUnraisable(
						fmt.Sprintf("collection callback (%s)", phase),
						fmt.Errorf("%v", r))
				}
			}()
			e.fn(phase, info)
		}()
	}
}

// withWorldStopped runs fn under its own pause. Taking the collection
// mutex first keeps the walk from overlapping a collection's list and
// header mutations; a concurrent collection finishes before fn sees the
// heap. Must not be called from a collection callback, which runs with the
// mutex already held.
func (c *Collector) withWorldStopped(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.world.StopTheWorld()
	defer c.world.StartTheWorld()
	fn()
}

// DumpShutdownStats prints the lifetime statistics to the diagnostic
// writer. Called once during interpreter teardown when stats debugging is
// on.
func (c *Collector) DumpShutdownStats() {
	s := c.GetStats()
	fmt.Fprintf(c.diag, "gc: %d collections, %d collected, %d uncollectable\n",
		s.Collections, s.Collected, s.Uncollectable)
	fmt.Fprintf(c.diag, "gc: %v total pause, %v last pause, %d objects live\n",
		s.TotalPause, s.LastPause, s.LastLive)
	if s.MaxRSSBytes > 0 {
		fmt.Fprintf(c.diag, "gc: %d bytes max rss\n", s.MaxRSSBytes)
	}

	g := c.Garbage()
	if len(g) > 0 && c.debug.Load()&DebugSaveAll == 0 {
		fmt.Fprintf(c.diag, "gc: %d uncollectable objects at shutdown\n", len(g))
		if c.debug.Load()&DebugUncollectable != 0 {
			for _, o := range g {
				fmt.Fprintf(c.diag, "gc: uncollectable %s %p\n", typeName(o), o)
			}
		}
	}
}
