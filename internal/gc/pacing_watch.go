package gc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// PacingWatcher reloads the heap growth percentage from a config file on
// OS-native change notifications, so a running process can be re-paced
// without a restart. The file holds one decimal integer; comments start
// with '#'.
type PacingWatcher struct {
	c    *Collector
	w    *fsnotify.Watcher
	path string
	done chan struct{}
}

// WatchPacing applies the file's current value and starts watching it for
// changes.
func (c *Collector) WatchPacing(path string) (*PacingWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pacing watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than write them
	// in place, and a watch on the old inode goes stale.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("pacing watcher: %w", err)
	}

	pw := &PacingWatcher{c: c, w: w, path: path, done: make(chan struct{})}
	pw.reload()
	go pw.loop()
	return pw, nil
}

func (pw *PacingWatcher) loop() {
	defer close(pw.done)
	for {
		select {
		case ev, ok := <-pw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(pw.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pw.reload()
			}
		case err, ok := <-pw.w.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(pw.c.diag, "gc: pacing watcher: %v\n", err)
		}
	}
}

// reload parses the file and applies its value. A malformed or missing
// file leaves the current scale in place.
func (pw *PacingWatcher) reload() {
	data, err := os.ReadFile(pw.path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil || n < 0 {
			fmt.Fprintf(pw.c.diag, "gc: ignoring pacing value %q in %s\n", line, pw.path)
			return
		}
		pw.c.SetScale(n)
		return
	}
}

// Close stops the watcher.
func (pw *PacingWatcher) Close() error {
	err := pw.w.Close()
	<-pw.done
	return err
}
