package timewindow

import (
	"testing"
	"time"

	"skyquery/internal/domain"
)

func TestSplit_TilesRangeExactly(t *testing.T) {
	start := time.Date(2019, 2, 1, 10, 20, 0, 0, time.UTC)
	stop := time.Date(2019, 2, 1, 16, 50, 0, 0, time.UTC)

	windows := Collect(start, stop, time.Hour, domain.GranularityHour)

	if len(windows) != 7 {
		t.Fatalf("expected 7 windows, got %d", len(windows))
	}
	if !windows[0].Start.Equal(start) {
		t.Errorf("first window starts at %v, want %v", windows[0].Start, start)
	}
	if !windows[len(windows)-1].Stop.Equal(stop) {
		t.Errorf("last window stops at %v, want %v", windows[len(windows)-1].Stop, stop)
	}
	for i := 1; i < len(windows); i++ {
		if !windows[i].Start.Equal(windows[i-1].Stop) {
			t.Errorf("gap or overlap between window %d and %d: %v != %v",
				i-1, i, windows[i-1].Stop, windows[i].Start)
		}
	}
}

func TestSplit_PartitionBoundsCoverFineBounds(t *testing.T) {
	start := time.Date(2019, 2, 1, 10, 20, 0, 0, time.UTC)
	stop := time.Date(2019, 2, 2, 3, 5, 0, 0, time.UTC)

	for _, tc := range []struct {
		name string
		g    domain.Granularity
	}{
		{"hour", domain.GranularityHour},
		{"day", domain.GranularityDay},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, w := range Collect(start, stop, 4*time.Hour, tc.g) {
				if w.PartitionStart.After(w.Start) {
					t.Errorf("partition start %v after fine start %v", w.PartitionStart, w.Start)
				}
				if w.PartitionEnd.Before(w.Stop) {
					t.Errorf("partition end %v before fine stop %v", w.PartitionEnd, w.Stop)
				}
				if !w.PartitionStart.Equal(tc.g.Floor(w.PartitionStart)) {
					t.Errorf("partition start %v not aligned", w.PartitionStart)
				}
				if !w.PartitionEnd.Equal(tc.g.Floor(w.PartitionEnd)) {
					t.Errorf("partition end %v not aligned", w.PartitionEnd)
				}
			}
		})
	}
}

func TestSplit_AlignedBoundsStayPut(t *testing.T) {
	start := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	stop := time.Date(2019, 2, 1, 12, 0, 0, 0, time.UTC)

	windows := Collect(start, stop, time.Hour, domain.GranularityHour)

	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	for _, w := range windows {
		if !w.PartitionStart.Equal(w.Start) {
			t.Errorf("aligned start widened: %v -> %v", w.Start, w.PartitionStart)
		}
		if !w.PartitionEnd.Equal(w.Stop) {
			t.Errorf("aligned end widened: %v -> %v", w.Stop, w.PartitionEnd)
		}
	}
}

func TestSplit_ShortRangeYieldsOneWindow(t *testing.T) {
	start := time.Date(2019, 2, 1, 10, 20, 0, 0, time.UTC)
	stop := start.Add(10 * time.Minute)

	windows := Collect(start, stop, time.Hour, domain.GranularityHour)

	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !windows[0].Start.Equal(start) || !windows[0].Stop.Equal(stop) {
		t.Errorf("window %v-%v does not span full range", windows[0].Start, windows[0].Stop)
	}
}

func TestSplit_EmptyRange(t *testing.T) {
	start := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("stop equals start", func(t *testing.T) {
		if got := Collect(start, start, time.Hour, domain.GranularityHour); len(got) != 0 {
			t.Errorf("expected no windows, got %d", len(got))
		}
	})

	t.Run("stop before start", func(t *testing.T) {
		if got := Collect(start, start.Add(-time.Hour), time.Hour, domain.GranularityHour); len(got) != 0 {
			t.Errorf("expected no windows, got %d", len(got))
		}
	})
}

func TestGranularity_FloorCeil(t *testing.T) {
	mid := time.Date(2019, 2, 1, 10, 20, 30, 0, time.UTC)

	if got := domain.GranularityHour.Floor(mid); !got.Equal(time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("hour floor: got %v", got)
	}
	if got := domain.GranularityHour.Ceil(mid); !got.Equal(time.Date(2019, 2, 1, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("hour ceil: got %v", got)
	}
	if got := domain.GranularityDay.Floor(mid); !got.Equal(time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day floor: got %v", got)
	}
	if got := domain.GranularityDay.Ceil(mid); !got.Equal(time.Date(2019, 2, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day ceil: got %v", got)
	}

	aligned := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	if got := domain.GranularityHour.Ceil(aligned); !got.Equal(aligned) {
		t.Errorf("ceil moved an aligned instant: %v", got)
	}
}
