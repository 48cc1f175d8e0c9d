package trace

import (
	"fmt"
	"io"
	"sync"
)

const defaultRingSize = 4096

// RingTracer keeps the most recent events of a run for post-mortem dumps.
// It remembers how many events it has overwritten so a dump can say what
// is missing.
type RingTracer struct {
	mu    sync.RWMutex
	buf   []Event
	total uint64 // events ever stored; buf[total%len(buf)] is the next slot
	level Level
}

// NewRingTracer returns a ring holding up to size events. A non-positive
// size selects the default.
func NewRingTracer(size int, level Level) *RingTracer {
	if size <= 0 {
		size = defaultRingSize
	}
	return &RingTracer{buf: make([]Event, size), level: level}
}

func (t *RingTracer) Emit(ev *Event) {
	if ev.Kind != KindHeartbeat && !t.level.ShouldEmit(ev.Scope) {
		return
	}
	t.mu.Lock()
	t.buf[t.total%uint64(len(t.buf))] = *ev
	t.total++
	t.mu.Unlock()
}

// Snapshot returns the retained events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *RingTracer) snapshotLocked() []Event {
	size := uint64(len(t.buf))
	if t.total <= size {
		return append([]Event(nil), t.buf[:t.total]...)
	}
	start := t.total % size
	out := make([]Event, 0, size)
	out = append(out, t.buf[start:]...)
	return append(out, t.buf[:start]...)
}

// Dropped reports how many events were overwritten.
func (t *RingTracer) Dropped() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if size := uint64(len(t.buf)); t.total > size {
		return t.total - size
	}
	return 0
}

// Select returns the retained events accepted by keep, oldest first.
func (t *RingTracer) Select(keep func(*Event) bool) []Event {
	var out []Event
	for _, ev := range t.Snapshot() {
		if keep(&ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Open returns the begin events of spans that have not ended, oldest
// first. After a panic these name the file, phase and function that
// were in progress. Spans whose begin was overwritten are not reported.
func (t *RingTracer) Open() []Event {
	events := t.Snapshot()
	ended := make(map[uint64]bool)
	for i := range events {
		if events[i].Kind == KindSpanEnd {
			ended[events[i].SpanID] = true
		}
	}
	var open []Event
	for _, ev := range events {
		if ev.Kind == KindSpanBegin && !ended[ev.SpanID] {
			open = append(open, ev)
		}
	}
	return open
}

// Dump writes the retained events to w, preceded by a note when older
// events were lost.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	t.mu.RLock()
	events := t.snapshotLocked()
	total := t.total
	t.mu.RUnlock()

	if lost := total - uint64(len(events)); lost > 0 && format == FormatText {
		if _, err := fmt.Fprintf(w, "... %d earlier events dropped\n", lost); err != nil {
			return err
		}
	}
	for i := range events {
		if _, err := w.Write(FormatEvent(&events[i], format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }
