// Package network models excitable neurons joined by delayed, weighted
// synapses, and binds them to the discrete-event kernel in pkg/sim.
//
// A Registry owns the neurons and synapses. A Network wraps a Registry and a
// Scheduler and acts as the scheduler's Dispatcher: neuron-fire events call
// Neuron.Fire, synapse-fire events call Synapse.Fire, and report events call
// the registered reporter. Everything runs on one goroutine.
package network

import (
	"bufio"
	"context"
	"io"

	"github.com/qubicDB/neurosim/pkg/sim"
)

// ReportFunc is called when a report event fires.
type ReportFunc func(t float32)

// FireFunc observes neuron fires.
type FireFunc func(t float32, n *Neuron)

// StrengthFunc observes strength changes made by secondary synapses.
// by is the secondary synapse that fired, target the primary it changed.
type StrengthFunc func(t float32, by, target *Synapse, old float32)

// Network drives a Registry with a Scheduler.
type Network struct {
	reg   *Registry
	sched *sim.Scheduler

	reporters []ReportFunc
	onFire    []FireFunc
	onChange  []StrengthFunc

	// neurons below this index have already been considered for seeding
	seeded int
}

// New creates a Network over reg with a fresh scheduler.
func New(reg *Registry) *Network {
	n := &Network{reg: reg}
	n.sched = sim.NewScheduler(n)
	return n
}

// Registry returns the underlying registry.
func (n *Network) Registry() *Registry { return n.reg }

// Scheduler returns the event scheduler.
func (n *Network) Scheduler() *sim.Scheduler { return n.sched }

// Now returns the current logical time.
func (n *Network) Now() float32 { return n.sched.Now() }

// OnFire registers an observer for neuron fires.
func (n *Network) OnFire(fn FireFunc) {
	n.onFire = append(n.onFire, fn)
}

// OnStrengthChange registers an observer for secondary-synapse strength changes.
func (n *Network) OnStrengthChange(fn StrengthFunc) {
	n.onChange = append(n.onChange, fn)
}

// AddReporter registers fn and returns the handle used by ScheduleReport.
func (n *Network) AddReporter(fn ReportFunc) int {
	n.reporters = append(n.reporters, fn)
	return len(n.reporters) - 1
}

// ScheduleReport schedules the reporter with the given handle to run at t.
func (n *Network) ScheduleReport(handle int, t float32) {
	n.sched.Schedule(sim.Report(t, handle))
}

// Kick delivers an external kick to a neuron at time t.
// Reports whether a fire was scheduled.
func (n *Network) Kick(id NeuronID, t, strength float32) bool {
	return n.reg.neurons[id].Kick(n.sched, t, strength)
}

// SeedInitialFires schedules one fire for every neuron registered since the
// previous call whose declared voltage exceeds its threshold. Seeds are
// scheduled at time 0, or at the current time if the clock has already
// advanced past 0. Returns the number of seeds scheduled.
func (n *Network) SeedInitialFires() int {
	t := max(n.sched.Now(), 0)
	count := 0
	for _, nr := range n.reg.neurons[n.seeded:] {
		if nr.aboveThreshold() && nr.pendingFires == 0 {
			nr.scheduleFire(n.sched, t)
			count++
		}
	}
	n.seeded = len(n.reg.neurons)
	return count
}

// Run drains the scheduler. See sim.Scheduler.Run.
func (n *Network) Run(ctx context.Context) sim.RunStats {
	return n.sched.Run(ctx)
}

// Halt stops a run after the current event, leaving later events pending.
func (n *Network) Halt() {
	n.sched.Halt()
}

// Dispatch implements sim.Dispatcher.
func (n *Network) Dispatch(ev sim.Event) {
	switch ev.Kind {
	case sim.KindNeuronFire:
		nr := n.reg.neurons[ev.Target]
		nr.Fire(n.sched, ev.Time)
		for _, fn := range n.onFire {
			fn(ev.Time, nr)
		}

	case sim.KindSynapseFire:
		s := n.reg.synapses[ev.Target]
		if s.kind == Secondary && len(n.onChange) > 0 {
			dst := n.reg.synapses[s.target]
			old := dst.strength
			s.Fire(n.sched, ev.Time, n.reg)
			for _, fn := range n.onChange {
				fn(ev.Time, s, dst, old)
			}
			return
		}
		s.Fire(n.sched, ev.Time, n.reg)

	case sim.KindReport:
		n.reporters[ev.Target](ev.Time)
	}
}

// Dump writes every neuron, then every synapse, one per line in
// registration order, using description syntax.
func (n *Network) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, nr := range n.reg.neurons {
		bw.WriteString(nr.String())
		bw.WriteByte('\n')
	}
	for _, s := range n.reg.synapses {
		bw.WriteString(n.reg.Describe(s))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
