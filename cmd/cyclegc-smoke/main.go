// cyclegc-smoke exercises the collector end to end: it builds reference
// cycles across several mutator threads, lets the pacing trigger fire, and
// verifies the heap drains. Optionally it serves the diagnostic endpoint
// while running so the behavior can be watched live.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/orizon-lang/cyclegc/internal/gc"
	"github.com/orizon-lang/cyclegc/internal/objmodel"
	"github.com/orizon-lang/cyclegc/internal/rt"
)

func main() {
	var (
		workers   int
		cycles    int
		debugAddr string
		pacing    string
		saveAll   bool
		linger    time.Duration
	)
	flag.IntVar(&workers, "workers", 4, "mutator threads")
	flag.IntVar(&cycles, "cycles", 10000, "reference cycles per worker")
	flag.StringVar(&debugAddr, "debug-addr", "", "serve diagnostics on this address while running")
	flag.StringVar(&pacing, "pacing-file", "", "watch this file for heap growth percentage")
	flag.BoolVar(&saveAll, "save-all", false, "divert garbage instead of destroying it")
	flag.DurationVar(&linger, "linger", 0, "keep the process alive after the run")
	flag.Parse()

	runtime := rt.NewRuntime()
	collector := gc.New(runtime)
	if saveAll {
		collector.SetDebug(gc.DebugSaveAll)
	}

	if debugAddr != "" {
		shutdown, bound, err := collector.StartDebugHTTPOn(debugAddr)
		if err != nil {
			fatalf("debug endpoint: %v", err)
		}
		fmt.Printf("diagnostics on http://%s\n", bound)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}
	if pacing != "" {
		pw, err := collector.WatchPacing(pacing)
		if err != nil {
			fatalf("pacing watcher: %v", err)
		}
		defer pw.Close()
	}

	nodeType := &objmodel.TypeInfo{Name: "smoke.node", Kind: objmodel.KindContainer}

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < workers; w++ {
		th := runtime.NewThread()
		wg.Add(1)
		go func(th *rt.Thread, seed int64) {
			defer wg.Done()
			th.Begin()
			defer th.End()
			rng := rand.New(rand.NewSource(seed))

			for i := 0; i < cycles; i++ {
				// A ring of 2-5 nodes, then drop every external handle.
				n := 2 + rng.Intn(4)
				ring := make([]*objmodel.Object, n)
				for j := range ring {
					ring[j] = collector.NewObject(th, nodeType)
				}
				for j, o := range ring {
					next := ring[(j+1)%n]
					o.Refs = append(o.Refs, next)
					th.Incref(next)
				}
				for _, o := range ring {
					th.Decref(o)
				}
				th.Safepoint()
			}
		}(th, int64(w))
	}
	wg.Wait()

	collected, uncollectable := collector.Collect()
	fmt.Printf("final pass: %d collected, %d uncollectable\n", collected, uncollectable)

	stats := collector.GetStats()
	fmt.Printf("%d collections, %d collected total, %d live, %v elapsed\n",
		stats.Collections, stats.Collected, collector.Live(), time.Since(start))
	if stats.MaxRSSBytes > 0 {
		fmt.Printf("max rss %d bytes\n", stats.MaxRSSBytes)
	}

	if !saveAll && collector.Live() != 0 {
		fatalf("heap did not drain: %d objects live", collector.Live())
	}
	if saveAll {
		fmt.Printf("%d objects diverted to the garbage list\n", len(collector.Garbage()))
	}

	if linger > 0 {
		time.Sleep(linger)
	}
	collector.DumpShutdownStats()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cyclegc-smoke: "+format+"\n", args...)
	os.Exit(1)
}
