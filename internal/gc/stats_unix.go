//go:build linux || darwin

package gc

import "golang.org/x/sys/unix"

// maxRSSBytes reports the process peak resident set size. Linux counts in
// kilobytes, darwin in bytes.
func maxRSSBytes() int64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	rss := int64(ru.Maxrss)
	if rssInKilobytes {
		rss *= 1024
	}
	return rss
}
