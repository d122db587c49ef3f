// Package trace records what happened during a simulation run and writes it
// as a compact binary file for post-mortem inspection.
//
// A trace is an output artifact: it captures fires, strength changes and the
// final state of every neuron and synapse, but it cannot be loaded back into
// a running network.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qubicDB/neurosim/pkg/network"
	"github.com/qubicDB/neurosim/pkg/sim"
)

// Fire is one neuron fire.
type Fire struct {
	Time   float32 `msgpack:"t"`
	Neuron string  `msgpack:"n"`
}

// StrengthChange is one secondary synapse retuning a primary synapse.
// Anonymous synapses are recorded as "-".
type StrengthChange struct {
	Time   float32 `msgpack:"t"`
	By     string  `msgpack:"by"`
	Target string  `msgpack:"target"`
	Old    float32 `msgpack:"old"`
	New    float32 `msgpack:"new"`
}

// NeuronState is a neuron as it was when the trace was finished.
type NeuronState struct {
	Name       string  `msgpack:"name"`
	Threshold  float32 `msgpack:"threshold"`
	Voltage    float32 `msgpack:"voltage"`
	LastUpdate float32 `msgpack:"last_update"`
}

// SynapseState is a synapse as it was when the trace was finished.
type SynapseState struct {
	Line     string  `msgpack:"line"` // description syntax
	Kind     string  `msgpack:"kind"`
	Delay    float32 `msgpack:"delay"`
	Strength float32 `msgpack:"strength"`
}

// Trace is the full record of one process run.
type Trace struct {
	RunID     string           `msgpack:"run_id"`
	CreatedAt int64            `msgpack:"created_at"`
	Runs      int              `msgpack:"runs"`
	Events    int              `msgpack:"events"`
	EndTime   float32          `msgpack:"end_time"`
	Halted    bool             `msgpack:"halted"`
	Fires     []Fire           `msgpack:"fires"`
	Changes   []StrengthChange `msgpack:"changes"`
	Neurons   []NeuronState    `msgpack:"neurons"`
	Synapses  []SynapseState   `msgpack:"synapses"`
}

// FireCounts returns the number of fires per neuron name.
func (t *Trace) FireCounts() map[string]int {
	counts := make(map[string]int, len(t.Neurons))
	for _, f := range t.Fires {
		counts[f.Neuron]++
	}
	return counts
}

// FiredNeurons returns the names of neurons that fired at least once, sorted.
func (t *Trace) FiredNeurons() []string {
	counts := t.FireCounts()
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WriteSummary prints a human readable overview: run totals, fires per
// neuron, strength changes, and the final neuron and synapse state in
// description syntax.
func (t *Trace) WriteSummary(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "run %s\n", t.RunID)
	fmt.Fprintf(bw, "created %s\n", time.Unix(t.CreatedAt, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(bw, "runs %d, events %d, end time %s", t.Runs, t.Events, network.FormatValue(t.EndTime))
	if t.Halted {
		bw.WriteString(", halted")
	}
	bw.WriteByte('\n')

	counts := t.FireCounts()
	fmt.Fprintf(bw, "fires %d\n", len(t.Fires))
	for _, name := range t.FiredNeurons() {
		fmt.Fprintf(bw, "  %-12s %d\n", name, counts[name])
	}

	fmt.Fprintf(bw, "strength changes %d\n", len(t.Changes))
	for _, c := range t.Changes {
		fmt.Fprintf(bw, "  %s %s -> %s %s => %s\n", network.FormatValue(c.Time), c.By, c.Target,
			network.FormatValue(c.Old), network.FormatValue(c.New))
	}

	bw.WriteString("final state\n")
	for _, n := range t.Neurons {
		fmt.Fprintf(bw, "  neuron %s %s %s\n", n.Name, network.FormatValue(n.Threshold), network.FormatValue(n.Voltage))
	}
	for _, s := range t.Synapses {
		fmt.Fprintf(bw, "  %s\n", s.Line)
	}
	return bw.Flush()
}

// Recorder attaches to a network and accumulates a Trace.
type Recorder struct {
	net   *network.Network
	trace *Trace
}

// NewRecorder starts recording fires and strength changes on net.
func NewRecorder(net *network.Network) *Recorder {
	r := &Recorder{
		net: net,
		trace: &Trace{
			RunID:     uuid.New().String(),
			CreatedAt: time.Now().Unix(),
		},
	}
	net.OnFire(r.recordFire)
	net.OnStrengthChange(r.recordChange)
	return r
}

// RunID returns the identifier of this recording.
func (r *Recorder) RunID() string {
	return r.trace.RunID
}

// AddRun folds the statistics of one scheduler run into the trace.
func (r *Recorder) AddRun(stats sim.RunStats) {
	r.trace.Runs++
	r.trace.Events += stats.Events
	r.trace.EndTime = stats.End
	r.trace.Halted = r.trace.Halted || stats.Halted
}

// Finish snapshots the current network state into the trace and returns it.
// Recording continues; Finish may be called again later.
func (r *Recorder) Finish() *Trace {
	reg := r.net.Registry()

	r.trace.Neurons = r.trace.Neurons[:0]
	for _, n := range reg.Neurons() {
		r.trace.Neurons = append(r.trace.Neurons, NeuronState{
			Name:       n.Name(),
			Threshold:  n.Threshold(),
			Voltage:    n.Voltage(),
			LastUpdate: n.LastUpdate(),
		})
	}

	r.trace.Synapses = r.trace.Synapses[:0]
	for _, s := range reg.Synapses() {
		r.trace.Synapses = append(r.trace.Synapses, SynapseState{
			Line:     reg.Describe(s),
			Kind:     s.Kind().String(),
			Delay:    s.Delay(),
			Strength: s.Strength(),
		})
	}
	return r.trace
}

func (r *Recorder) recordFire(t float32, n *network.Neuron) {
	r.trace.Fires = append(r.trace.Fires, Fire{Time: t, Neuron: n.Name()})
}

func (r *Recorder) recordChange(t float32, by, target *network.Synapse, old float32) {
	r.trace.Changes = append(r.trace.Changes, StrengthChange{
		Time:   t,
		By:     displayName(by),
		Target: displayName(target),
		Old:    old,
		New:    target.Strength(),
	})
}

func displayName(s *network.Synapse) string {
	if s.Name() == "" {
		return "-"
	}
	return s.Name()
}
