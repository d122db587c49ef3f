// Package report prints periodic fire-count charts while a simulation runs.
//
// A Sampler schedules itself on the network's timeline. Each time it fires it
// asks every charted neuron how often it fired since the previous sample
// (resetting the count) and prints one row of glyphs:
//
//	"| "  no fires
//	"|-"  one fire
//	"|="  two or more
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/qubicDB/neurosim/pkg/core"
	"github.com/qubicDB/neurosim/pkg/network"
)

var glyphs = [3]string{"| ", "|-", "|="}

// Glyph returns the chart symbol for a fire count.
func Glyph(count int) string {
	switch {
	case count >= 2:
		return glyphs[2]
	case count == 1:
		return glyphs[1]
	default:
		return glyphs[0]
	}
}

// Row is one sample: the logical time and the fire count of each charted neuron.
type Row struct {
	Time   float32
	Counts []int
}

// Sampler is a self re-arming report event.
type Sampler struct {
	net       *network.Network
	out       io.Writer
	nameWidth int

	neurons  []*network.Neuron
	interval float32
	end      float32
	handle   int

	headerDone bool
	rows       []Row
	err        error
}

// New creates a sampler that charts every neuron registered in net at the
// time of the call, in registration order. nameWidth <= 0 selects
// core.DefaultNameWidth.
func New(net *network.Network, out io.Writer, nameWidth int) *Sampler {
	if nameWidth <= 0 {
		nameWidth = core.DefaultNameWidth
	}
	neurons := net.Registry().Neurons()
	s := &Sampler{
		net:       net,
		out:       out,
		nameWidth: nameWidth,
		neurons:   append([]*network.Neuron(nil), neurons...),
	}
	s.handle = net.AddReporter(s.sample)
	return s
}

// Start schedules the first sample interval after the current time and
// keeps re-arming every interval until length has elapsed.
// A non-positive interval schedules nothing.
func (s *Sampler) Start(interval, length float32) {
	if interval <= 0 {
		return
	}
	now := s.net.Now()
	s.interval = interval
	s.end = now + length
	s.net.ScheduleReport(s.handle, now+interval)
}

// Rows returns every sample taken so far.
func (s *Sampler) Rows() []Row {
	return s.rows
}

// Err returns the first write error, if any.
func (s *Sampler) Err() error {
	return s.err
}

func (s *Sampler) sample(t float32) {
	if !s.headerDone {
		s.writeHeader()
		s.headerDone = true
	}

	row := Row{Time: t, Counts: make([]int, len(s.neurons))}
	var b strings.Builder
	for i, n := range s.neurons {
		c := n.SampleAndReset()
		row.Counts[i] = c
		fmt.Fprintf(&b, "%-*s", s.nameWidth+2, Glyph(c))
	}
	s.rows = append(s.rows, row)
	s.write(strings.TrimRight(b.String(), " ") + "\n")

	if t < s.end {
		s.net.ScheduleReport(s.handle, t+s.interval)
	}
}

func (s *Sampler) writeHeader() {
	var b strings.Builder
	for _, n := range s.neurons {
		name := n.Name()
		if len(name) > s.nameWidth {
			name = name[:s.nameWidth]
		}
		fmt.Fprintf(&b, "%-*s", s.nameWidth+2, name)
	}
	s.write(strings.TrimRight(b.String(), " ") + "\n")
}

func (s *Sampler) write(line string) {
	if s.err != nil {
		return
	}
	_, s.err = io.WriteString(s.out, line)
}
