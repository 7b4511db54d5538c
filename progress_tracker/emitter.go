package progress_tracker

import (
	"context"
	"time"

	"github.com/morler/repomuse/code_analyzer/contracts"
)

const (
	minInterval     = 200 * time.Millisecond
	maxInterval     = 500 * time.Millisecond
	DefaultCeiling  = 5 * time.Minute
	DefaultInterval = maxInterval
)

// Emitter pushes snapshots of a tracker to a sink on a fixed cadence
type Emitter struct {
	done chan struct{}
	stop context.CancelFunc
}

// StartEmitter ticks every interval (clamped to 200-500ms) until the tracker
// reaches a terminal phase, the ceiling elapses, ctx ends or Stop is called.
// A final snapshot is always published.
func StartEmitter(ctx context.Context, tracker *Tracker, sink contracts.IProgressSink, interval, ceiling time.Duration) *Emitter {
	if interval < minInterval {
		interval = minInterval
	}
	if interval > maxInterval {
		interval = maxInterval
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if sink == nil {
		sink = contracts.NopSink{}
	}

	ctx, cancel := context.WithTimeout(ctx, ceiling)
	e := &Emitter{done: make(chan struct{}), stop: cancel}

	go func() {
		defer close(e.done)
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sink.PublishProgress(tracker.Snapshot())
				return
			case <-ticker.C:
				snap := tracker.Snapshot()
				sink.PublishProgress(snap)
				if snap.IsComplete {
					return
				}
			}
		}
	}()
	return e
}

// Stop ends the emitter and waits for its final snapshot
func (e *Emitter) Stop() {
	e.stop()
	<-e.done
}

// Done is closed once the emitter goroutine has returned
func (e *Emitter) Done() <-chan struct{} { return e.done }
