//go:build !linux && !darwin

package gc

// maxRSSBytes reports the process peak resident set size where the
// platform exposes it, zero elsewhere.
func maxRSSBytes() int64 { return 0 }
