// Package sim is the discrete-event kernel: a time-ordered queue of pending
// events and the single loop that drains it.
//
// The kernel has no knowledge of neurons or synapses. Every event is handed to
// a Dispatcher, which is expected to mutate its own state and schedule further
// events. Events scheduled for the same logical time run in the order they were
// scheduled.
package sim

import (
	"container/heap"
	"context"
	"fmt"
)

// Dispatcher receives events in time order.
type Dispatcher interface {
	Dispatch(ev Event)
}

// DispatcherFunc adapts a plain function to the Dispatcher interface.
type DispatcherFunc func(ev Event)

// Dispatch calls f(ev).
func (f DispatcherFunc) Dispatch(ev Event) { f(ev) }

// RunStats summarises one call to Run.
type RunStats struct {
	Events    int     // events dispatched during this run
	Start     float32 // logical time when the run began
	End       float32 // logical time of the last dispatched event
	Halted    bool    // stopped by Halt before the queue drained
	Capped    bool    // stopped by the max-events cap
	Cancelled bool    // stopped because the context was cancelled
}

// Drained reports whether the run ended because no events were left.
func (r RunStats) Drained() bool {
	return !r.Halted && !r.Capped && !r.Cancelled
}

// Scheduler owns the pending event set and the logical clock.
// It is not safe for concurrent use; the simulation is sequential by nature.
type Scheduler struct {
	queue      eventQueue
	nextSeq    uint64
	now        float32
	halted     bool
	maxEvents  int
	dispatcher Dispatcher
	observers  []func(Event)
}

// NewScheduler creates an empty scheduler at logical time 0.
func NewScheduler(d Dispatcher) *Scheduler {
	return &Scheduler{
		queue:      make(eventQueue, 0, 64),
		dispatcher: d,
	}
}

// SetMaxEvents caps the number of events a single Run may dispatch.
// Zero or a negative value means no cap.
func (s *Scheduler) SetMaxEvents(n int) {
	s.maxEvents = n
}

// Observe registers fn to be called with every event just before it is dispatched.
func (s *Scheduler) Observe(fn func(Event)) {
	s.observers = append(s.observers, fn)
}

// Schedule inserts ev into the pending set.
//
// Scheduling never fails. An event earlier than the current logical time
// would break causality and indicates a bug in the caller, so it panics.
func (s *Scheduler) Schedule(ev Event) {
	if ev.Time < s.now {
		panic(fmt.Sprintf("sim: event %s scheduled before current time %g", ev, s.now))
	}
	ev.seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.queue, ev)
}

// Now returns the logical time of the event currently executing,
// or of the last executed event between runs.
func (s *Scheduler) Now() float32 {
	return s.now
}

// Pending returns the number of queued events.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Halt stops Run after the current event finishes. Pending events stay queued.
func (s *Scheduler) Halt() {
	s.halted = true
}

// Halted reports whether Halt was called since the last Run started.
func (s *Scheduler) Halted() bool {
	return s.halted
}

// Run dispatches events in (time, insertion) order until the queue is empty,
// Halt is called, the max-events cap is reached, or ctx is cancelled.
// The context is only checked between events.
func (s *Scheduler) Run(ctx context.Context) RunStats {
	s.halted = false
	stats := RunStats{Start: s.now, End: s.now}

	for len(s.queue) > 0 {
		if s.halted {
			stats.Halted = true
			break
		}
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}
		if s.maxEvents > 0 && stats.Events >= s.maxEvents {
			stats.Capped = true
			break
		}

		ev := heap.Pop(&s.queue).(Event)
		s.now = ev.Time
		for _, fn := range s.observers {
			fn(ev)
		}
		if s.dispatcher != nil {
			s.dispatcher.Dispatch(ev)
		}
		stats.Events++
		stats.End = ev.Time
	}

	if s.halted {
		stats.Halted = true
	}
	return stats
}
