package network

import (
	"fmt"

	"github.com/qubicDB/neurosim/pkg/core"
)

// EntryKind tells whether a registry entry is a neuron or a synapse.
type EntryKind uint8

const (
	EntryNeuron EntryKind = iota + 1
	EntrySynapse
)

// Entry is one registered object. ID indexes the neuron or synapse arena
// depending on Kind. Anonymous synapses have an empty Name.
type Entry struct {
	Name string
	Kind EntryKind
	ID   int
}

// SynapseSpec describes a synapse before its references are resolved.
// Destination decides the variant: a neuron name makes a Primary synapse,
// a synapse name makes a Secondary one.
type SynapseSpec struct {
	Name        string // "" for anonymous
	Source      string
	Destination string
	Delay       float32
	Strength    float32
}

// Registry owns every neuron and synapse of a network.
//
// Objects live in arenas indexed by stable IDs; names share one namespace
// across neurons and synapses. Registration order is preserved for
// deterministic iteration. The registry is built once during loading and
// is read-only afterwards, except for the mutable simulation state held by
// its objects.
type Registry struct {
	neurons  []*Neuron
	synapses []*Synapse
	byName   map[string]Entry
	order    []Entry

	defaultDelay float32
}

// NewRegistry creates an empty registry that substitutes core.DefaultSentinel
// for negative delays.
func NewRegistry() *Registry {
	return &Registry{
		byName:       make(map[string]Entry),
		defaultDelay: core.DefaultSentinel,
	}
}

// SetDefaultDelay changes the delay substituted for negative delays.
func (r *Registry) SetDefaultDelay(d float32) {
	r.defaultDelay = d
}

// AddNeuron registers a neuron. The name must be non-empty and unused by
// any neuron or synapse. Errors are core.Diagnostic values.
func (r *Registry) AddNeuron(name string, threshold, voltage float32) (*Neuron, error) {
	if name == "" {
		return nil, core.Diagnostic{Subject: "neuron ???", Err: core.ErrExpectedName}
	}
	if _, exists := r.byName[name]; exists {
		return nil, core.Diagnostic{Subject: "neuron " + name, Err: core.ErrDuplicateName}
	}

	n := newNeuron(NeuronID(len(r.neurons)), name, threshold, voltage)
	r.neurons = append(r.neurons, n)

	entry := Entry{Name: name, Kind: EntryNeuron, ID: int(n.id)}
	r.byName[name] = entry
	r.order = append(r.order, entry)
	return n, nil
}

// AddSynapse resolves spec and registers the synapse, attaching it to its
// source neuron.
//
// A duplicate name, an unknown source or destination, or a Secondary
// synapse aimed at another Secondary synapse rejects the synapse: nil is
// returned with the error. A negative delay is replaced by the default
// delay; the synapse is registered and returned together with an error
// for which core.IsRecovered is true.
func (r *Registry) AddSynapse(spec SynapseSpec) (*Synapse, error) {
	if spec.Name != "" {
		if _, exists := r.byName[spec.Name]; exists {
			return nil, core.Diagnostic{Subject: "synapse " + spec.Name, Err: core.ErrDuplicateName}
		}
	}

	s := &Synapse{
		id:       SynapseID(len(r.synapses)),
		name:     spec.Name,
		source:   NoNeuron,
		target:   -1,
		delay:    spec.Delay,
		strength: spec.Strength,
	}

	src, srcOK := r.LookupNeuron(spec.Source)
	if srcOK {
		s.source = src.id
	}

	if dst, ok := r.LookupNeuron(spec.Destination); ok {
		s.kind = Primary
		s.target = int(dst.id)
	} else if dst, ok := r.LookupSynapse(spec.Destination); ok {
		s.kind = Secondary
		s.target = int(dst.id)
		if dst.kind == Secondary {
			return nil, core.Diagnostic{Subject: r.Describe(s), Err: core.ErrSecondaryTarget}
		}
	}

	if !srcOK {
		return nil, core.Diagnostic{Subject: r.Describe(s), Err: core.ErrNoSuchSource}
	}
	if s.target < 0 {
		return nil, core.Diagnostic{Subject: r.Describe(s), Err: core.ErrNoSuchDestination}
	}

	var warn error
	if s.delay < 0 {
		warn = core.Diagnostic{Subject: r.Describe(s), Err: core.ErrNegativeDelay}
		s.delay = r.defaultDelay
	}

	r.synapses = append(r.synapses, s)
	src.outgoing = append(src.outgoing, s)

	entry := Entry{Name: s.name, Kind: EntrySynapse, ID: int(s.id)}
	if s.name != "" {
		r.byName[s.name] = entry
	}
	r.order = append(r.order, entry)
	return s, warn
}

// LookupNeuron finds a neuron by exact name. Empty names are never found.
func (r *Registry) LookupNeuron(name string) (*Neuron, bool) {
	e, ok := r.LookupAny(name)
	if !ok || e.Kind != EntryNeuron {
		return nil, false
	}
	return r.neurons[e.ID], true
}

// LookupSynapse finds a named synapse by exact name. Empty names are never found.
func (r *Registry) LookupSynapse(name string) (*Synapse, bool) {
	e, ok := r.LookupAny(name)
	if !ok || e.Kind != EntrySynapse {
		return nil, false
	}
	return r.synapses[e.ID], true
}

// LookupAny finds a neuron or synapse by exact name.
func (r *Registry) LookupAny(name string) (Entry, bool) {
	if name == "" {
		return Entry{}, false
	}
	e, ok := r.byName[name]
	return e, ok
}

// Exists reports whether name is taken in the combined namespace.
func (r *Registry) Exists(name string) bool {
	_, ok := r.LookupAny(name)
	return ok
}

// Neuron returns the neuron with the given ID, or nil if out of range.
func (r *Registry) Neuron(id NeuronID) *Neuron {
	if id < 0 || int(id) >= len(r.neurons) {
		return nil
	}
	return r.neurons[id]
}

// Synapse returns the synapse with the given ID, or nil if out of range.
func (r *Registry) Synapse(id SynapseID) *Synapse {
	if id < 0 || int(id) >= len(r.synapses) {
		return nil
	}
	return r.synapses[id]
}

// Neurons returns all neurons in registration order. The slice must not be modified.
func (r *Registry) Neurons() []*Neuron {
	return r.neurons
}

// Synapses returns all synapses in registration order. The slice must not be modified.
func (r *Registry) Synapses() []*Synapse {
	return r.synapses
}

// Entries returns every registration, neurons and synapses interleaved, in order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.order))
	copy(out, r.order)
	return out
}

// NeuronCount returns the number of neurons.
func (r *Registry) NeuronCount() int {
	return len(r.neurons)
}

// SynapseCount returns the number of synapses.
func (r *Registry) SynapseCount() int {
	return len(r.synapses)
}

// Describe renders a synapse in description syntax:
//
//	synapse NAME|- SOURCE|--- DESTINATION|--- DELAY STRENGTH
func (r *Registry) Describe(s *Synapse) string {
	name := s.name
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("synapse %s %s %s %s %s",
		name, r.sourceName(s), r.targetName(s), FormatValue(s.delay), FormatValue(s.strength))
}

func (r *Registry) sourceName(s *Synapse) string {
	if n := r.Neuron(s.source); n != nil {
		return n.name
	}
	return "---"
}

func (r *Registry) targetName(s *Synapse) string {
	switch s.kind {
	case Primary:
		if n := r.Neuron(NeuronID(s.target)); n != nil {
			return n.name
		}
	case Secondary:
		if d := r.Synapse(SynapseID(s.target)); d != nil && d.name != "" {
			return d.name
		}
	}
	return "---"
}
