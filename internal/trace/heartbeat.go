package trace

import (
	"context"
	"fmt"
	"time"
)

// Heartbeat emits a liveness event at a fixed interval while a batch
// runs. Each beat carries the number of open spans, so a rebuild stuck
// in one function shows up as beats whose count never drops.
type Heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartHeartbeat beats on tracer every interval until Stop or until ctx
// is done. It returns nil when tracing is off or interval is not
// positive; Stop on nil is a no-op.
func StartHeartbeat(ctx context.Context, tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Heartbeat{cancel: cancel, done: make(chan struct{})}
	go h.beat(ctx, tracer, interval)
	return h
}

func (h *Heartbeat) beat(ctx context.Context, tracer Tracer, interval time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := uint64(1); ; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tracer.Emit(&Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				GID:    goroutineID(),
				Name:   "heartbeat",
				Detail: fmt.Sprintf("#%d open=%d", n, OpenSpans()),
			})
		}
	}
}

// Stop ends the heartbeat and waits for its goroutine to exit.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}
