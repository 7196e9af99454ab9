package gc

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
	"github.com/orizon-lang/cyclegc/internal/rt"
)

// Version identifies the collector build. The inspect tool gates its
// commands on it.
const Version = "1.3.0"

// NumGenerations is kept for surface compatibility: pacing works on the
// live population, so only the first generation has a meaningful
// threshold, but threshold and count queries still answer for all three.
const NumGenerations = 3

// Debug flag bits. Combine with bitwise or.
const (
	// DebugStats prints timing and totals for every collection.
	DebugStats = 1 << 0
	// DebugCollectable reports each object found in a reclaimable cycle.
	DebugCollectable = 1 << 1
	// DebugUncollectable reports each object quarantined behind a legacy
	// finalizer.
	DebugUncollectable = 1 << 2
	// DebugSaveAll diverts all unreachable objects to the garbage list
	// instead of destroying them.
	DebugSaveAll = 1 << 5
	// DebugLeak is the usual combination for hunting leaks.
	DebugLeak = DebugCollectable | DebugUncollectable | DebugSaveAll
)

// Reason records what triggered a collection.
type Reason int

const (
	// ReasonHeap marks a collection triggered by heap growth.
	ReasonHeap Reason = iota
	// ReasonManual marks an explicitly requested collection.
	ReasonManual
	// ReasonShutdown marks the final collection during runtime teardown.
	ReasonShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonHeap:
		return "heap"
	case ReasonManual:
		return "manual"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Phase tells a registered callback whether a collection is starting or
// has finished.
type Phase int

const (
	// PhaseStart fires before the analysis begins.
	PhaseStart Phase = iota
	// PhaseStop fires after garbage has been reclaimed.
	PhaseStop
)

func (p Phase) String() string {
	if p == PhaseStart {
		return "start"
	}
	return "stop"
}

// CallbackInfo describes one collection to registered callbacks.
type CallbackInfo struct {
	Generation    int
	Collected     int64
	Uncollectable int64
}

// Callback observes collections. Start callbacks see zero counts.
type Callback func(phase Phase, info CallbackInfo)

// Stats aggregates collector activity across the process lifetime.
type Stats struct {
	Collections     int64
	Collected       int64
	Uncollectable   int64
	DeadReaped      int64
	TotalPause      time.Duration
	LastPause       time.Duration
	LastCollected   int64
	LastLive        int64
	MaxRSSBytes     int64
	LastReason      Reason
}

type generation struct {
	threshold atomic.Int64
	count     atomic.Int64
}

type callbackEntry struct {
	id uint64
	fn Callback
}

// Collector owns the cycle collection machinery for one runtime. All
// entry points are safe for concurrent use; at most one collection runs
// at a time and a request arriving while one is in flight returns
// immediately.
type Collector struct {
	rt    *rt.Runtime
	self  *rt.Thread
	world rt.WorldStopper

	mu         sync.Mutex  // serializes collections
	collecting atomic.Bool // reentrancy guard, set only under mu
	enabled    atomic.Bool
	frozen     atomic.Int64 // freeze surface compatibility, always 0

	live  atomic.Int64  // tracked objects currently alive
	scale atomic.Int64  // heap growth percentage for pacing
	debug atomic.Uint64 // debug flag bits

	generations [NumGenerations]generation

	stats   Stats
	statsMu sync.Mutex

	garbageMu sync.Mutex
	garbage   []*objmodel.Object // uncollectable quarantine

	cbMu   sync.Mutex
	cbs    []callbackEntry
	cbNext uint64

	diag io.Writer
}

// New builds a collector over a runtime. The collector claims its own
// runtime thread for the reference manipulation it performs under the
// pause, reads CYCLEGC_SCALE, and starts enabled.
func New(runtime *rt.Runtime) *Collector {
	c := &Collector{
		rt:    runtime,
		self:  runtime.NewThread(),
		world: runtime,
		diag:  os.Stderr,
	}
	c.enabled.Store(true)

	scale, err := scaleFromEnv()
	if err != nil {
		fmt.Fprintf(c.diag, "gc: %v, using default\n", err)
	}
	c.scale.Store(scale)

	c.generations[0].threshold.Store(defaultThreshold)
	c.generations[1].threshold.Store(10)
	c.generations[2].threshold.Store(10)

	runtime.OnUntrack = func(o *objmodel.Object) {
		c.live.Add(-1)
		if n := c.generations[0].count.Add(-1); n < 0 {
			c.generations[0].count.Store(0)
		}
	}
	return c
}

// SetDiag redirects diagnostic output, which defaults to stderr.
func (c *Collector) SetDiag(w io.Writer) { c.diag = w }

// NewObject allocates a container object on t's collected heap and tracks
// it. The pacing trigger may run a collection first.
func (c *Collector) NewObject(t *rt.Thread, typ *objmodel.TypeInfo) *objmodel.Object {
	if c.ShouldCollect() {
		t.Yield(func() { c.collect(ReasonHeap) })
	}

	o := &objmodel.Object{Type: typ}
	if err := t.GCHeap().Allocate(o); err != nil {
		panic(fmt.Sprintf("gc: fatal: %v", err))
	}
	o.IncrefLocal()
	c.Track(o)
	return o
}

// callGuarded invokes a user callback during a collection, converting an
// error or a panic into an unraisable report. A panic escaping here would
// leave the world stopped forever, so the collection always runs to
// completion.
func (c *Collector) callGuarded(context string, fn func(*objmodel.Object) error, o *objmodel.Object) {
	defer func() {
		if r := recover(); r != nil {
			c.rt.ReportUnraisable(context, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(o); err != nil {
		c.rt.ReportUnraisable(context, err)
	}
}

// Track makes o visible to the collector. Tracking an already tracked
// object is a consistency violation; untracking twice is tolerated.
func (c *Collector) Track(o *objmodel.Object) {
	if o.Tracked() {
		panic("gc: fatal: object already tracked")
	}
	o.SetTracked()
	c.live.Add(1)
	c.generations[0].count.Add(1)
}

// Untrack hides o from the collector. Its references are no longer
// examined and it can no longer be reclaimed as part of a cycle.
func (c *Collector) Untrack(o *objmodel.Object) {
	if !o.Tracked() {
		return
	}
	if n := c.generations[0].count.Add(-1); n < 0 {
		c.generations[0].count.Store(0)
	}
	if o.InList() {
		listRemove(o)
	}
	o.ClearTracked()
	c.live.Add(-1)
}

// Live returns the tracked-object population.
func (c *Collector) Live() int64 { return c.live.Load() }

// collect runs one full collection. The caller's request is dropped, not
// queued, when another collection is already in flight.
func (c *Collector) collect(reason Reason) (collected, uncollectable int64) {
	if !c.mu.TryLock() {
		return 0, 0
	}
	defer c.mu.Unlock()
	if c.collecting.Load() {
		return 0, 0
	}

	start := time.Now()
	c.world.StopTheWorld()
	c.collecting.Store(true)

	if reason != ReasonShutdown {
		c.invokeCallbacks(PhaseStart, CallbackInfo{})
	}
	if c.debug.Load()&DebugStats != 0 {
		fmt.Fprintf(c.diag, "gc: collecting (%s), %d live objects\n", reason, c.live.Load())
	}

	// Fold every thread's queued cross-thread decrements so merged
	// counts are exact for the analysis.
	c.rt.ExplicitMergeAll()

	// Promote stack references to counted references and suspend the
	// deferred fast path while the heap is under the knife.
	scaffold := c.addDeferredRefs()

	// Objects whose counts already reached zero need no cycle analysis.
	var dead list
	dead.init()
	c.findDeadObjects(&dead)
	deadReaped := c.clearDeadObjects(&dead)

	var young list
	young.init()
	c.updateRefs(&young)
	subtractRefs(&young)

	var unreachable list
	deduceUnreachable(&young, &unreachable)
	young.clear()

	var finalizers list
	finalizers.init()
	moveLegacyFinalizers(&unreachable, &finalizers)
	moveLegacyFinalizerReachable(&finalizers)

	if c.debug.Load()&DebugCollectable != 0 {
		for o := unreachable.first(); o != unreachable.sentinel(); o = o.Next {
			fmt.Fprintf(c.diag, "gc: collectable %s %p\n", typeName(o), o)
		}
	}

	collected += int64(c.handleWeakrefs(&unreachable))

	c.finalizeGarbage(&unreachable)

	var stillUnreachable list
	handleResurrected(&unreachable, &stillUnreachable)

	collected += c.deleteGarbage(&stillUnreachable)

	uncollectable = finalizers.size()
	if c.debug.Load()&DebugUncollectable != 0 {
		for o := finalizers.first(); o != finalizers.sentinel(); o = o.Next {
			fmt.Fprintf(c.diag, "gc: uncollectable %s %p\n", typeName(o), o)
		}
	}
	c.handleLegacyFinalizers(&finalizers)

	c.updateThreshold()
	c.generations[0].count.Store(0)

	// Reference state goes back to normal before mutators resume.
	c.removeDeferredRefs(scaffold)

	pause := time.Since(start)
	c.statsMu.Lock()
	c.stats.Collections++
	c.stats.Collected += collected
	c.stats.Uncollectable += uncollectable
	c.stats.DeadReaped += deadReaped
	c.stats.TotalPause += pause
	c.stats.LastPause = pause
	c.stats.LastCollected = collected
	c.stats.LastLive = c.live.Load()
	c.stats.LastReason = reason
	c.stats.MaxRSSBytes = maxRSSBytes()
	c.statsMu.Unlock()

	if c.debug.Load()&DebugStats != 0 {
		fmt.Fprintf(c.diag, "gc: done, %d collected, %d uncollectable, %v elapsed\n",
			collected, uncollectable, pause)
	}
	if reason != ReasonShutdown {
		c.invokeCallbacks(PhaseStop, CallbackInfo{
			Collected:     collected,
			Uncollectable: uncollectable,
		})
	}

	c.collecting.Store(false)
	c.world.StartTheWorld()
	return collected, uncollectable
}
