//go:build darwin

package gc

const rssInKilobytes = false
