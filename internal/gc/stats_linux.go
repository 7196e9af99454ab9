//go:build linux

package gc

const rssInKilobytes = true
