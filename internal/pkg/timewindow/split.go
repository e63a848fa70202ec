// Package timewindow tiles a query range into bounded windows aligned
// to the remote store's partitioning granularity.
package timewindow

import (
	"iter"
	"time"

	"skyquery/internal/domain"
)

// Split yields the non-overlapping windows exactly tiling the half-open
// range [start, stop) in chunks of size. Each window's partition bounds
// are widened to the enclosing granularity-aligned interval, so rows on
// a partition boundary are never missed. A range no longer than size
// yields a single window; stop <= start yields nothing.
func Split(start, stop time.Time, size time.Duration, g domain.Granularity) iter.Seq[domain.Window] {
	return func(yield func(domain.Window) bool) {
		for cur := start; cur.Before(stop); cur = cur.Add(size) {
			end := cur.Add(size)
			if end.After(stop) {
				end = stop
			}
			w := domain.Window{
				Start:          cur,
				Stop:           end,
				PartitionStart: g.Floor(cur),
				PartitionEnd:   g.Ceil(end),
			}
			if !yield(w) {
				return
			}
		}
	}
}

// Collect materializes the sequence, for callers that need the window
// count up front (e.g. progress reporting).
func Collect(start, stop time.Time, size time.Duration, g domain.Granularity) []domain.Window {
	var windows []domain.Window
	for w := range Split(start, stop, size, g) {
		windows = append(windows, w)
	}
	return windows
}
