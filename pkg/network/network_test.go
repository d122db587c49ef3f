package network

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qubicDB/neurosim/pkg/sim"
)

type fireRecord struct {
	Time   float32
	Neuron string
}

// recordFires attaches an observer that logs every neuron fire.
func recordFires(net *Network) *[]fireRecord {
	var fires []fireRecord
	net.OnFire(func(t float32, n *Neuron) {
		fires = append(fires, fireRecord{Time: t, Neuron: n.Name()})
	})
	return &fires
}

func mustNeuron(t *testing.T, reg *Registry, name string, threshold, voltage float32) *Neuron {
	t.Helper()
	n, err := reg.AddNeuron(name, threshold, voltage)
	require.NoError(t, err)
	return n
}

func mustSynapse(t *testing.T, reg *Registry, spec SynapseSpec) *Synapse {
	t.Helper()
	s, err := reg.AddSynapse(spec)
	require.NoError(t, err)
	return s
}

func TestNetworkEndToEnd(t *testing.T) {
	reg := NewRegistry()
	a := mustNeuron(t, reg, "A", 1.0, 0.0)
	b := mustNeuron(t, reg, "B", 1.0, 0.0)
	mustSynapse(t, reg, SynapseSpec{Source: "A", Destination: "B", Delay: 2.0, Strength: 1.5})

	net := New(reg)
	fires := recordFires(net)

	require.True(t, net.Kick(a.ID(), 0, 2.0))
	stats := net.Run(context.Background())

	assert.True(t, stats.Drained())
	assert.Equal(t, []fireRecord{{0, "A"}, {2.0, "B"}}, *fires)
	assert.Equal(t, 1, a.SampleAndReset())
	assert.Equal(t, 1, b.SampleAndReset())
	assert.Equal(t, float32(2.0), net.Now())
	// A fire, synapse fire, B fire
	assert.Equal(t, 3, stats.Events)
}

func TestNetworkSecondaryMutationPersists(t *testing.T) {
	reg := NewRegistry()
	mustNeuron(t, reg, "A", 10, 0)
	b := mustNeuron(t, reg, "B", 10, 0)
	c := mustNeuron(t, reg, "C", 10, 0)
	p := mustSynapse(t, reg, SynapseSpec{Name: "P", Source: "A", Destination: "B", Delay: 1, Strength: 0.5})
	sec := mustSynapse(t, reg, SynapseSpec{Name: "S", Source: "C", Destination: "P", Delay: 1, Strength: 1.0})

	net := New(reg)
	var changes []float32
	net.OnStrengthChange(func(tm float32, by, target *Synapse, old float32) {
		assert.Same(t, sec, by)
		assert.Same(t, p, target)
		changes = append(changes, old, target.Strength())
	})

	// C fires at 0, S lands at 1 and retunes P
	c.Fire(net.Scheduler(), 0)
	net.Run(context.Background())

	assert.Equal(t, float32(1.5), p.Strength())
	assert.Equal(t, []float32{0.5, 1.5}, changes)
	assert.Zero(t, b.Voltage(), "secondary synapses never touch neurons")

	// the next primary fire uses the updated strength
	p.Fire(net.Scheduler(), 5, reg)
	assert.InDelta(t, 1.5, b.Voltage(), 1e-6)

	// and it stays updated
	p.Fire(net.Scheduler(), 5, reg)
	assert.InDelta(t, 3.0, b.Voltage(), 1e-6)
	assert.Equal(t, float32(1.5), p.Strength())
}

func TestNetworkSeedInitialFires(t *testing.T) {
	reg := NewRegistry()
	mustNeuron(t, reg, "Hot", 1, 2)
	mustNeuron(t, reg, "Edge", 1, 1)
	mustNeuron(t, reg, "Cold", 1, 0)

	net := New(reg)
	fires := recordFires(net)

	assert.Equal(t, 1, net.SeedInitialFires())
	assert.Equal(t, 0, net.SeedInitialFires(), "seeding is idempotent")

	net.Run(context.Background())
	assert.Equal(t, []fireRecord{{0, "Hot"}}, *fires)

	hot, _ := reg.LookupNeuron("Hot")
	assert.Zero(t, hot.Voltage())
}

func TestNetworkSeedAfterClockAdvanced(t *testing.T) {
	reg := NewRegistry()
	a := mustNeuron(t, reg, "A", 1, 0)
	net := New(reg)
	fires := recordFires(net)

	net.Kick(a.ID(), 3, 5)
	net.Run(context.Background())

	mustNeuron(t, reg, "Late", 1, 5)
	assert.Equal(t, 1, net.SeedInitialFires())
	net.Run(context.Background())

	assert.Equal(t, []fireRecord{{3, "A"}, {3, "Late"}}, *fires)
}

func TestNetworkSameTimeCascade(t *testing.T) {
	reg := NewRegistry()
	a := mustNeuron(t, reg, "A", 1, 0)
	mustNeuron(t, reg, "B", 1, 0)
	mustNeuron(t, reg, "C", 1, 0)
	mustNeuron(t, reg, "Later", 1, 0)
	mustSynapse(t, reg, SynapseSpec{Source: "A", Destination: "B", Delay: 0, Strength: 2})
	mustSynapse(t, reg, SynapseSpec{Source: "B", Destination: "C", Delay: 0, Strength: 2})

	net := New(reg)
	fires := recordFires(net)
	later, _ := reg.LookupNeuron("Later")

	// Later is kicked for a strictly later time first; the zero-delay
	// cascade at t=1 must still complete before it.
	net.Kick(later.ID(), 1.5, 2)
	net.Kick(a.ID(), 1, 2)
	net.Run(context.Background())

	assert.Equal(t, []fireRecord{{1, "A"}, {1, "B"}, {1, "C"}, {1.5, "Later"}}, *fires)
}

func TestNetworkSameTimeFiresKeepKickOrder(t *testing.T) {
	reg := NewRegistry()
	names := []string{"N0", "N1", "N2", "N3", "N4"}
	for _, n := range names {
		mustNeuron(t, reg, n, 1, 0)
	}
	net := New(reg)
	fires := recordFires(net)

	for _, i := range []int{3, 0, 4, 1, 2} {
		net.Kick(NeuronID(i), 2, 5)
	}
	net.Run(context.Background())

	var got []string
	for _, f := range *fires {
		got = append(got, f.Neuron)
	}
	assert.Equal(t, []string{"N3", "N0", "N4", "N1", "N2"}, got)
}

func TestNetworkSimultaneousKicksFireTwice(t *testing.T) {
	reg := NewRegistry()
	s1 := mustNeuron(t, reg, "S1", 1, 0)
	s2 := mustNeuron(t, reg, "S2", 1, 0)
	d := mustNeuron(t, reg, "D", 1, 0)
	mustNeuron(t, reg, "E", 2.5, 0)
	mustSynapse(t, reg, SynapseSpec{Source: "S1", Destination: "D", Delay: 1, Strength: 2})
	mustSynapse(t, reg, SynapseSpec{Source: "S2", Destination: "D", Delay: 1, Strength: 2})
	mustSynapse(t, reg, SynapseSpec{Source: "D", Destination: "E", Delay: 0, Strength: 2})

	net := New(reg)
	fires := recordFires(net)
	var order []string
	net.Scheduler().Observe(func(ev sim.Event) {
		if ev.Kind == sim.KindNeuronFire {
			order = append(order, reg.Neurons()[ev.Target].Name())
		}
	})

	net.Kick(s1.ID(), 0, 2)
	net.Kick(s2.ID(), 0, 2)
	stats := net.Run(context.Background())

	// both kicks land at t=1 and each one crosses threshold on its own. D's
	// two fires run first, then E, whose kicks sum above its threshold only
	// on the second arrival.
	assert.Equal(t, []fireRecord{{0, "S1"}, {0, "S2"}, {1, "D"}, {1, "D"}, {1, "E"}}, *fires)
	assert.Equal(t, []string{"S1", "S2", "D", "D", "E"}, order)
	assert.Equal(t, 2, d.SampleAndReset())
	assert.Zero(t, d.PendingFires())
	// 2 seed fires, 2 synapse fires, 2 D fires, 2 synapse fires, 1 E fire
	assert.Equal(t, 9, stats.Events)
}

func TestNetworkInhibitoryKick(t *testing.T) {
	reg := NewRegistry()
	a := mustNeuron(t, reg, "A", 1, 0)
	b := mustNeuron(t, reg, "B", 1, 0)
	mustSynapse(t, reg, SynapseSpec{Source: "A", Destination: "B", Delay: 1, Strength: -0.5})

	net := New(reg)
	net.Kick(a.ID(), 0, 2)
	net.Run(context.Background())

	assert.InDelta(t, -0.5, b.Voltage(), 1e-6)
	assert.Equal(t, 0, b.SampleAndReset())
}

func TestNetworkReporter(t *testing.T) {
	reg := NewRegistry()
	net := New(reg)

	var times []float32
	var h int
	h = net.AddReporter(func(tm float32) {
		times = append(times, tm)
		if tm < 3 {
			net.ScheduleReport(h, tm+1)
		}
	})
	net.ScheduleReport(h, 1)
	net.Run(context.Background())

	assert.Equal(t, []float32{1, 2, 3}, times)
}

func TestNetworkHalt(t *testing.T) {
	reg := NewRegistry()
	a := mustNeuron(t, reg, "A", 1, 0)
	mustNeuron(t, reg, "B", 1, 0)
	mustSynapse(t, reg, SynapseSpec{Source: "A", Destination: "B", Delay: 5, Strength: 2})

	net := New(reg)
	net.OnFire(func(float32, *Neuron) { net.Halt() })
	net.Kick(a.ID(), 0, 2)

	stats := net.Run(context.Background())

	assert.True(t, stats.Halted)
	assert.Equal(t, 1, net.Scheduler().Pending())
}

func TestNetworkDump(t *testing.T) {
	reg := NewRegistry()
	mustNeuron(t, reg, "A", 1, 0)
	mustNeuron(t, reg, "B", 2.5, 0.5)
	mustSynapse(t, reg, SynapseSpec{Name: "P", Source: "A", Destination: "B", Delay: 1, Strength: 1.5})
	mustSynapse(t, reg, SynapseSpec{Source: "B", Destination: "P", Delay: 0.5, Strength: -1})

	var buf bytes.Buffer
	require.NoError(t, New(reg).Dump(&buf))

	want := "neuron A 1.0 0.0\n" +
		"neuron B 2.5 0.5\n" +
		"synapse P A B 1.0 1.5\n" +
		"synapse - B P 0.5 -1.0\n"
	assert.Equal(t, want, buf.String())
}
