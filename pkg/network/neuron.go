package network

import (
	"math"

	"github.com/qubicDB/neurosim/pkg/sim"
)

// NeuronID is a neuron's stable index in the registry arena.
type NeuronID int

// NoNeuron marks an unresolved neuron reference.
const NoNeuron NeuronID = -1

// Queue is the part of the scheduler that neurons and synapses need.
type Queue interface {
	Schedule(ev sim.Event)
}

// Neuron holds a decaying voltage and fires when it exceeds its threshold.
//
// Voltage is only meaningful relative to lastUpdate: reading it at a later
// time requires decay first. All mutation goes through Kick, Fire and
// SampleAndReset.
type Neuron struct {
	id        NeuronID
	name      string
	threshold float32

	voltage    float32
	lastUpdate float32

	fireCount    int
	pendingFires int

	// outgoing synapses in declaration order; owned by this neuron
	outgoing []*Synapse
}

func newNeuron(id NeuronID, name string, threshold, voltage float32) *Neuron {
	return &Neuron{
		id:        id,
		name:      name,
		threshold: threshold,
		voltage:   voltage,
	}
}

// ID returns the neuron's arena index.
func (n *Neuron) ID() NeuronID { return n.id }

// Name returns the neuron's unique name.
func (n *Neuron) Name() string { return n.name }

// Threshold returns the fire trigger level.
func (n *Neuron) Threshold() float32 { return n.threshold }

// Voltage returns the voltage as of LastUpdate, without decay.
func (n *Neuron) Voltage() float32 { return n.voltage }

// LastUpdate returns the logical time the voltage was last updated.
func (n *Neuron) LastUpdate() float32 { return n.lastUpdate }

// PendingFires returns how many fire events are queued for this neuron.
func (n *Neuron) PendingFires() int { return n.pendingFires }

// Outgoing returns the synapses this neuron drives, in declaration order.
// The slice must not be modified.
func (n *Neuron) Outgoing() []*Synapse { return n.outgoing }

// DecayedVoltage returns what the voltage would be at time t with no
// intervening kicks. It does not change the neuron.
func (n *Neuron) DecayedVoltage(t float32) float32 {
	return n.voltage * float32(math.Exp(float64(n.lastUpdate-t)))
}

// Kick decays the voltage to time t, adds strength, and schedules a fire at
// t if the result is strictly above threshold. Every such kick schedules its
// own fire, even when one is already queued.
// Reports whether a fire was scheduled.
func (n *Neuron) Kick(q Queue, t, strength float32) bool {
	n.voltage = n.DecayedVoltage(t) + strength
	n.lastUpdate = t
	if n.voltage > n.threshold {
		n.scheduleFire(q, t)
		return true
	}
	return false
}

func (n *Neuron) scheduleFire(q Queue, t float32) {
	n.pendingFires++
	q.Schedule(sim.NeuronFire(t, int(n.id)))
}

// Fire counts the fire, resets the voltage to 0, and schedules every
// outgoing synapse at t plus its delay.
func (n *Neuron) Fire(q Queue, t float32) {
	if n.pendingFires > 0 {
		n.pendingFires--
	}
	n.fireCount++
	n.voltage = 0
	n.lastUpdate = t
	for _, s := range n.outgoing {
		q.Schedule(sim.SynapseFire(t+s.delay, int(s.id)))
	}
}

// SampleAndReset returns the number of fires since the previous call and
// resets the counter. Only the sampler should call it.
func (n *Neuron) SampleAndReset() int {
	c := n.fireCount
	n.fireCount = 0
	return c
}

// aboveThreshold reports whether the neuron's declared voltage already
// exceeds its threshold.
func (n *Neuron) aboveThreshold() bool {
	return n.voltage > n.threshold
}

// String renders the neuron in description syntax: neuron NAME THRESHOLD VOLTAGE.
func (n *Neuron) String() string {
	return "neuron " + n.name + " " + FormatValue(n.threshold) + " " + FormatValue(n.voltage)
}
