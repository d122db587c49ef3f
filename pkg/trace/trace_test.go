package trace

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qubicDB/neurosim/pkg/network"
)

func buildNetwork(t *testing.T) *network.Network {
	t.Helper()
	reg := network.NewRegistry()
	_, err := reg.AddNeuron("A", 1, 2)
	require.NoError(t, err)
	_, err = reg.AddNeuron("B", 1, 0)
	require.NoError(t, err)
	_, err = reg.AddSynapse(network.SynapseSpec{Name: "P", Source: "A", Destination: "B", Delay: 2, Strength: 3})
	require.NoError(t, err)
	_, err = reg.AddSynapse(network.SynapseSpec{Source: "A", Destination: "P", Delay: 1, Strength: -0.5})
	require.NoError(t, err)
	return network.New(reg)
}

func TestRecorderCapturesRun(t *testing.T) {
	net := buildNetwork(t)
	rec := NewRecorder(net)
	_, err := uuid.Parse(rec.RunID())
	require.NoError(t, err)

	net.SeedInitialFires()
	rec.AddRun(net.Run(context.Background()))
	tr := rec.Finish()

	assert.Equal(t, []Fire{{Time: 0, Neuron: "A"}, {Time: 2, Neuron: "B"}}, tr.Fires)
	require.Len(t, tr.Changes, 1)
	assert.Equal(t, StrengthChange{Time: 1, By: "-", Target: "P", Old: 3, New: 2.5}, tr.Changes[0])

	assert.Equal(t, 1, tr.Runs)
	assert.Equal(t, 4, tr.Events)
	assert.Equal(t, float32(2), tr.EndTime)
	assert.False(t, tr.Halted)

	require.Len(t, tr.Neurons, 2)
	assert.Equal(t, "A", tr.Neurons[0].Name)
	assert.Equal(t, float32(0), tr.Neurons[1].Voltage)
	require.Len(t, tr.Synapses, 2)
	assert.Equal(t, "primary", tr.Synapses[0].Kind)
	assert.Equal(t, float32(2.5), tr.Synapses[0].Strength)
	assert.Equal(t, "secondary", tr.Synapses[1].Kind)

	assert.Equal(t, map[string]int{"A": 1, "B": 1}, tr.FireCounts())
	assert.Equal(t, []string{"A", "B"}, tr.FiredNeurons())
}

func TestWriteSummary(t *testing.T) {
	net := buildNetwork(t)
	rec := NewRecorder(net)
	net.SeedInitialFires()
	rec.AddRun(net.Run(context.Background()))
	tr := rec.Finish()
	tr.CreatedAt = 0

	var out bytes.Buffer
	require.NoError(t, tr.WriteSummary(&out))

	assert.Equal(t, "run "+tr.RunID+`
created 1970-01-01T00:00:00Z
runs 1, events 4, end time 2.0
fires 2
  A            1
  B            1
strength changes 1
  1.0 - -> P 3.0 => 2.5
final state
  neuron A 1.0 0.0
  neuron B 1.0 0.0
  synapse P A B 2.0 2.5
  synapse - A P 1.0 -0.5
`, out.String())
}

func TestRecorderFinishIsRepeatable(t *testing.T) {
	net := buildNetwork(t)
	rec := NewRecorder(net)

	first := rec.Finish()
	second := rec.Finish()

	assert.Len(t, first.Neurons, 2)
	assert.Len(t, second.Neurons, 2, "snapshot is replaced, not appended")
}

func sampleTrace() *Trace {
	return &Trace{
		RunID:     uuid.New().String(),
		CreatedAt: 1700000000,
		Runs:      1,
		Events:    3,
		EndTime:   2,
		Fires:     []Fire{{0, "A"}, {2, "B"}},
		Neurons:   []NeuronState{{Name: "A", Threshold: 1}, {Name: "B", Threshold: 1}},
		Synapses:  []SynapseState{{Line: "synapse - A B 2.0 3.0", Kind: "primary", Delay: 2, Strength: 3}},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		c := NewCodec(compress)
		tr := sampleTrace()

		data, err := c.Encode(tr)
		require.NoError(t, err)
		assert.Equal(t, MagicBytes, string(data[:4]))

		got, err := c.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, tr.RunID, got.RunID)
		assert.Equal(t, tr.Fires, got.Fires)
		assert.Equal(t, tr.Synapses, got.Synapses)
	}
}

func TestCodecCompressesLargeTraces(t *testing.T) {
	tr := sampleTrace()
	for i := 0; i < 2000; i++ {
		tr.Fires = append(tr.Fires, Fire{Time: float32(i), Neuron: "Oscillator"})
	}

	plain, err := NewCodec(false).Encode(tr)
	require.NoError(t, err)
	packed, err := NewCodec(true).Encode(tr)
	require.NoError(t, err)

	assert.Less(t, len(packed), len(plain))

	got, err := NewCodec(false).Decode(packed)
	require.NoError(t, err, "decoding follows the header flag, not the codec setting")
	assert.Len(t, got.Fires, len(tr.Fires))
}

func TestCodecRejectsCorruptInput(t *testing.T) {
	c := NewCodec(false)
	data, err := c.Encode(sampleTrace())
	require.NoError(t, err)

	_, err = c.Decode(data[:10])
	assert.ErrorIs(t, err, ErrTooShort)

	badMagic := bytes.Clone(data)
	copy(badMagic, "XXXX")
	_, err = c.Decode(badMagic)
	assert.ErrorIs(t, err, ErrBadMagic)

	flipped := bytes.Clone(data)
	flipped[len(flipped)-1] ^= 0xff
	_, err = c.Decode(flipped)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	future := bytes.Clone(data)
	future[4] = FormatVersion + 1
	_, err = c.Decode(future)
	assert.ErrorIs(t, err, ErrUnsupported)

	truncated := data[:len(data)-1]
	_, err = c.Decode(truncated)
	assert.ErrorIs(t, err, ErrTooShort)

	// lengths in the header larger than the input must not be trusted
	huge := bytes.Clone(data[:headerSize])
	binary.LittleEndian.PutUint64(huge[12:], 1<<62)
	_, err = c.Decode(huge)
	assert.ErrorIs(t, err, ErrTooShort)

	wrapped := bytes.Clone(data)
	binary.LittleEndian.PutUint32(wrapped[8:], math.MaxUint32)
	binary.LittleEndian.PutUint64(wrapped[12:], math.MaxUint64)
	_, err = c.Decode(wrapped)
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestCodecLimitsDecompressedSize(t *testing.T) {
	tr := sampleTrace()
	for i := 0; i < 2000; i++ {
		tr.Fires = append(tr.Fires, Fire{Time: float32(i), Neuron: "Oscillator"})
	}
	packed, err := NewCodec(true).Encode(tr)
	require.NoError(t, err)
	require.NotZero(t, binary.LittleEndian.Uint16(packed[6:])&FlagCompressed)

	c := NewCodec(false)
	c.maxPayload = 1024
	_, err = c.Decode(packed)
	assert.ErrorIs(t, err, ErrTooLarge)

	c.maxPayload = MaxPayloadSize
	_, err = c.Decode(packed)
	assert.NoError(t, err)
}

func TestCodecFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.nstr")
	c := NewCodec(true)
	tr := sampleTrace()

	require.NoError(t, c.WriteFile(path, tr))
	got, err := c.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tr.RunID, got.RunID)

	_, err = c.ReadFile(filepath.Join(t.TempDir(), "missing.nstr"))
	assert.Error(t, err)
}
