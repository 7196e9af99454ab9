package gc

import (
	"fmt"
	"os"
	"strconv"
)

// Pacing. Rather than counting allocations since the previous collection,
// the trigger compares the live tracked-object population against a
// threshold recomputed after every collection:
//
//	threshold = max(7000, live + live*scale/100)
//
// so the collector runs when the heap has grown by ~scale percent. The
// scale defaults to 100 and can be set at startup through the
// CYCLEGC_SCALE environment variable; 0 disables growth-based triggering
// entirely.

const (
	defaultThreshold = 7000
	defaultScale     = 100

	// ScaleEnv names the environment variable consulted at construction
	// for the heap growth percentage.
	ScaleEnv = "CYCLEGC_SCALE"
)

func scaleFromEnv() (int64, error) {
	v := os.Getenv(ScaleEnv)
	if v == "" {
		return defaultScale, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return defaultScale, fmt.Errorf("invalid %s value %q", ScaleEnv, v)
	}
	return n, nil
}

// updateThreshold recomputes the first generation's trigger point from the
// post-collection live count.
func (c *Collector) updateThreshold() {
	live := c.live.Load()
	threshold := live + live*c.scale.Load()/100
	if threshold < defaultThreshold {
		threshold = defaultThreshold
	}
	c.generations[0].threshold.Store(threshold)
}

// ShouldCollect reports whether the live population has outgrown the
// current trigger point. Disabled or already-running collectors never
// trigger; a zero scale disables growth triggering.
func (c *Collector) ShouldCollect() bool {
	if !c.enabled.Load() || c.collecting.Load() {
		return false
	}
	if c.scale.Load() == 0 {
		return false
	}
	return c.live.Load() >= c.generations[0].threshold.Load()
}

// MaybeCollect runs a collection if the pacing trigger fires. The caller
// must not be inside a mutator section; allocation sites on mutator
// threads go through Thread.Yield instead.
func (c *Collector) MaybeCollect() (int64, int64) {
	if !c.ShouldCollect() {
		return 0, 0
	}
	return c.collect(ReasonHeap)
}
