package network

import (
	"strconv"
	"strings"
)

// SynapseID is a synapse's stable index in the registry arena.
type SynapseID int

// SynapseKind distinguishes the two synapse variants.
type SynapseKind uint8

const (
	// Primary synapses kick a destination neuron.
	Primary SynapseKind = iota + 1
	// Secondary synapses add their strength to a destination primary synapse.
	Secondary
)

func (k SynapseKind) String() string {
	switch k {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Synapse is a one-way, delayed, weighted link out of a source neuron.
// References to other entities are arena IDs; the synapse owns nothing.
type Synapse struct {
	id     SynapseID
	name   string // empty for anonymous synapses
	kind   SynapseKind
	source NeuronID

	// target is a NeuronID for Primary, a SynapseID for Secondary
	target int

	delay    float32
	strength float32
}

// ID returns the synapse's arena index.
func (s *Synapse) ID() SynapseID { return s.id }

// Name returns the synapse name, or "" when anonymous.
func (s *Synapse) Name() string { return s.name }

// Kind returns Primary or Secondary.
func (s *Synapse) Kind() SynapseKind { return s.kind }

// Source returns the driving neuron.
func (s *Synapse) Source() NeuronID { return s.source }

// TargetNeuron returns the destination of a Primary synapse.
func (s *Synapse) TargetNeuron() (NeuronID, bool) {
	if s.kind != Primary {
		return NoNeuron, false
	}
	return NeuronID(s.target), true
}

// TargetSynapse returns the destination of a Secondary synapse.
func (s *Synapse) TargetSynapse() (SynapseID, bool) {
	if s.kind != Secondary {
		return -1, false
	}
	return SynapseID(s.target), true
}

// Delay returns the propagation delay.
func (s *Synapse) Delay() float32 { return s.delay }

// Strength returns the current weight. Secondary synapses may change it.
func (s *Synapse) Strength() float32 { return s.strength }

// Fire delivers the synapse's effect at time t.
//
// Primary: kick the destination neuron with this synapse's strength.
// Secondary: permanently add this synapse's strength to the destination
// primary's strength; no neuron is touched.
func (s *Synapse) Fire(q Queue, t float32, reg *Registry) {
	switch s.kind {
	case Primary:
		reg.neurons[s.target].Kick(q, t, s.strength)
	case Secondary:
		dst := reg.synapses[s.target]
		dst.strength += s.strength
	}
}

// FormatValue renders a float32 the way descriptions are written:
// shortest round-trip form, always with a decimal point ("1.0", "99.99").
func FormatValue(f float32) string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 32)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
