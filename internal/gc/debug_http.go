package gc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/orizon-lang/cyclegc/internal/objmodel"
)

// debugMux builds the diagnostic endpoints:
//
//	GET  /gc/stats    -> JSON of Stats plus pacing state
//	GET  /gc/objects  -> JSON array of tracked-object summaries
//	                     Query params: n=<max entries>
//	GET  /gc/garbage  -> JSON array of quarantined-object summaries
//	POST /gc/collect  -> run a collection, return counts
//	GET  /gc/version  -> collector version string
func (c *Collector) debugMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/gc/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		resp := map[string]any{
			"stats":     c.GetStats(),
			"live":      c.Live(),
			"enabled":   c.IsEnabled(),
			"scale":     c.Scale(),
			"threshold": c.GetThreshold(),
			"debug":     c.GetDebug(),
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(resp)
	})

	mux.HandleFunc("/gc/objects", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		n := 1000
		if v, err := queryInt(r, "n"); err == nil && v > 0 {
			n = v
		}
		objs := c.GetObjects()
		if n < len(objs) {
			objs = objs[:n]
		}
		out := make([]objectSummary, 0, len(objs))
		for _, o := range objs {
			out = append(out, summarize(c, o))
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(out)
	})

	mux.HandleFunc("/gc/garbage", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		g := c.Garbage()
		out := make([]objectSummary, 0, len(g))
		for _, o := range g {
			out = append(out, summarize(c, o))
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(out)
	})

	mux.HandleFunc("/gc/collect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		collected, uncollectable := c.Collect()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"collected":     collected,
			"uncollectable": uncollectable,
		})
	})

	mux.HandleFunc("/gc/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"version": Version})
	})

	return mux
}

func queryInt(r *http.Request, key string) (int, error) {
	return strconv.Atoi(r.URL.Query().Get(key))
}

type objectSummary struct {
	Addr     string `json:"addr"`
	Type     string `json:"type"`
	RefCount int64  `json:"refcount"`
	Refs     int    `json:"refs"`
	Tracked  bool   `json:"tracked"`
}

func summarize(c *Collector, o *objmodel.Object) objectSummary {
	return objectSummary{
		Addr:     fmt.Sprintf("%p", o),
		Type:     typeName(o),
		RefCount: o.RefCount(),
		Refs:     len(o.Refs),
		Tracked:  o.Tracked(),
	}
}

// StartDebugHTTP serves the diagnostic endpoints on addr and returns a
// shutdown function compatible with http.Server.Shutdown.
func (c *Collector) StartDebugHTTP(addr string) (func(ctx context.Context) error, error) {
	server := &http.Server{Addr: addr, Handler: c.debugMux(), ReadHeaderTimeout: 3 * time.Second}
	go func() { _ = server.ListenAndServe() }()
	return server.Shutdown, nil
}

// StartDebugHTTPOn is the explicit-listener variant: it also returns the
// bound address, useful when addr uses :0.
func (c *Collector) StartDebugHTTPOn(addr string) (shutdown func(ctx context.Context) error, boundAddr string, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", err
	}
	server := &http.Server{Handler: c.debugMux(), ReadHeaderTimeout: 3 * time.Second}
	go func() { _ = server.Serve(ln) }()
	return server.Shutdown, ln.Addr().String(), nil
}
