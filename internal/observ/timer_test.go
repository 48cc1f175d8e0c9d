package observ

import (
	"testing"
	"time"
)

func TestTimerReport(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Duration{0, 2 * time.Millisecond, 2 * time.Millisecond, 5 * time.Millisecond}
	i := 0
	tm := NewTimer()
	tm.now = func() time.Time {
		now := base.Add(ticks[i])
		i++
		return now
	}

	endLoad := tm.Start("load")
	endLoad("")
	endRebuild := tm.Start("rebuild")
	endRebuild("3 funcs")

	r := tm.Report()
	if len(r.Phases) != 2 {
		t.Fatalf("phases = %d, want 2", len(r.Phases))
	}
	if r.Phases[0].DurationMS != 2 || r.Phases[1].DurationMS != 3 {
		t.Fatalf("durations = %v, %v", r.Phases[0].DurationMS, r.Phases[1].DurationMS)
	}
	if r.TotalMS != 5 {
		t.Fatalf("total = %v, want 5", r.TotalMS)
	}

	want := "a.yaml:\n" +
		"  load             2.00 ms\n" +
		"  rebuild          3.00 ms  (3 funcs)\n" +
		"  total            5.00 ms\n"
	if got := r.Summary("a.yaml"); got != want {
		t.Fatalf("summary:\n%s\nwant:\n%s", got, want)
	}
}

func TestNilTimer(t *testing.T) {
	var tm *Timer
	tm.Start("x")("note")
	if r := tm.Report(); len(r.Phases) != 0 {
		t.Fatalf("nil timer reported %d phases", len(r.Phases))
	}
}
