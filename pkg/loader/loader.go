// Package loader reads the textual network description and drives the
// simulation as directives arrive.
//
//	neuron NAME THRESHOLD VOLTAGE
//	synapse NAME|- SOURCE DESTINATION DELAY STRENGTH
//	output INTERVAL LENGTH
//	run
//	quit
//
// Problems in the text never stop loading. Each one is recorded as a
// core.Diagnostic carrying its line number and logged at warn level.
package loader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/qubicDB/neurosim/pkg/core"
	"github.com/qubicDB/neurosim/pkg/network"
	"github.com/qubicDB/neurosim/pkg/report"
	"github.com/qubicDB/neurosim/pkg/sim"
)

// handler processes the remaining tokens of one directive line.
type handler func(ctx context.Context, line int, sc *lineScanner)

// Loader builds a network from description text. One Loader owns one
// network for its whole life.
type Loader struct {
	cfg *core.Config
	log zerolog.Logger
	out io.Writer

	net *network.Network

	handlers map[string]handler
	onRun    []func(sim.RunStats)

	diags    core.Diagnostics
	samplers []*report.Sampler
	line     int
	runs     int
	quit     bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithConfig sets the configuration. The default is core.DefaultConfig().
func WithConfig(cfg *core.Config) Option {
	return func(l *Loader) { l.cfg = cfg }
}

// WithLogger sets the logger used for diagnostics and run summaries.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithOutput sets where sampler charts and network dumps are written.
func WithOutput(w io.Writer) Option {
	return func(l *Loader) { l.out = w }
}

// New creates a loader with an empty network.
func New(opts ...Option) *Loader {
	l := &Loader{
		cfg:      core.DefaultConfig(),
		log:      zerolog.Nop(),
		out:      io.Discard,
		handlers: make(map[string]handler),
	}
	for _, opt := range opts {
		opt(l)
	}

	reg := network.NewRegistry()
	reg.SetDefaultDelay(l.cfg.Simulation.DefaultDelay)
	l.net = network.New(reg)
	l.net.Scheduler().SetMaxEvents(l.cfg.Simulation.MaxEvents)

	l.registerBuiltins()
	return l
}

func (l *Loader) registerBuiltins() {
	l.register("neuron", l.neuron)
	l.register("synapse", l.synapse)
	l.register("output", l.output)
	l.register("run", func(ctx context.Context, line int, sc *lineScanner) {
		l.lineEnd(line, "run", sc)
		l.Run(ctx)
	})
	l.register("quit", func(_ context.Context, line int, sc *lineScanner) {
		l.lineEnd(line, "quit", sc)
		l.log.Info().Int("line", line).Msg("quitting")
		l.quit = true
		l.net.Halt()
	})
}

// register adds or replaces the handler for a directive keyword.
func (l *Loader) register(keyword string, h handler) {
	l.handlers[keyword] = h
}

// Ignore makes the given directives no-ops. Their lines are still checked
// for trailing tokens.
func (l *Loader) Ignore(keywords ...string) {
	for _, kw := range keywords {
		kw := kw
		l.register(kw, func(_ context.Context, line int, sc *lineScanner) {
			l.lineEnd(line, kw, sc)
		})
	}
}

// OnRun registers fn to receive the statistics of every completed run.
func (l *Loader) OnRun(fn func(sim.RunStats)) {
	l.onRun = append(l.onRun, fn)
}

// Network returns the network being built.
func (l *Loader) Network() *network.Network { return l.net }

// Diagnostics returns every problem reported so far.
func (l *Loader) Diagnostics() core.Diagnostics { return l.diags }

// Runs returns how many run directives (or implicit runs) have completed.
func (l *Loader) Runs() int { return l.runs }

// Quit reports whether a quit directive was seen.
func (l *Loader) Quit() bool { return l.quit }

// Samplers returns the samplers created by output directives.
func (l *Loader) Samplers() []*report.Sampler { return l.samplers }

// Load consumes r line by line until it ends or a quit directive is seen.
// Only read errors are returned; description problems become diagnostics.
func (l *Loader) Load(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if done := l.Exec(ctx, scanner.Text()); done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading description: %w", err)
	}
	return nil
}

// Exec processes one line of description text. It returns true once the
// loader has quit, after which further lines are ignored.
func (l *Loader) Exec(ctx context.Context, text string) bool {
	if l.quit {
		return true
	}
	l.line++

	sc := newLineScanner(text)
	keyword, ok := sc.next()
	if !ok {
		return false
	}
	h, ok := l.handlers[keyword]
	if !ok {
		l.report(l.line, core.Diagnostic{Subject: keyword, Err: core.ErrUnknownCommand})
		return false
	}
	h(ctx, l.line, sc)
	return l.quit
}

// Finish applies the end-of-input rule for batch mode: when the text never
// ran the network or quit, run it if loading was clean and otherwise dump
// the network so the problems can be seen in context.
func (l *Loader) Finish(ctx context.Context) error {
	if l.quit || l.runs > 0 {
		return nil
	}
	if l.diags.Len() == 0 {
		l.Run(ctx)
		return nil
	}
	l.log.Warn().Int("diagnostics", l.diags.Len()).Msg("description has errors, not running")
	return l.net.Dump(l.out)
}

// Run seeds initial fires for newly declared neurons and drains the
// scheduler.
func (l *Loader) Run(ctx context.Context) sim.RunStats {
	l.startConfiguredSampler()

	seeds := l.net.SeedInitialFires()
	l.log.Info().Int("seeds", seeds).Float32("time", l.net.Now()).Msg("running simulation")

	stats := l.net.Run(ctx)
	l.runs++

	ev := l.log.Debug()
	if stats.Capped {
		ev = l.log.Warn()
	}
	ev.Int("events", stats.Events).
		Float32("start", stats.Start).
		Float32("end", stats.End).
		Bool("capped", stats.Capped).
		Bool("cancelled", stats.Cancelled).
		Int("pending", l.net.Scheduler().Pending()).
		Msg("run finished")

	for _, s := range l.samplers {
		if err := s.Err(); err != nil {
			l.log.Error().Err(err).Msg("writing sampler output")
		}
	}
	for _, fn := range l.onRun {
		fn(stats)
	}
	return stats
}

// startConfiguredSampler starts the sampler described by the report config
// when the text declared none by the time of the first run.
func (l *Loader) startConfiguredSampler() {
	rc := l.cfg.Report
	if l.runs > 0 || len(l.samplers) > 0 || rc.Interval <= 0 || rc.Length <= 0 {
		return
	}
	l.startSampler(rc.Interval, rc.Length)
}

func (l *Loader) startSampler(interval, length float32) {
	s := report.New(l.net, l.out, l.cfg.Report.NameWidth)
	s.Start(interval, length)
	l.samplers = append(l.samplers, s)
}

func (l *Loader) neuron(_ context.Context, line int, sc *lineScanner) {
	name, ok := sc.name()
	if !ok {
		l.report(line, core.Diagnostic{Subject: "neuron", Err: core.ErrExpectedName})
		return
	}
	subject := "neuron " + name
	threshold := l.number(line, subject, sc)
	voltage := l.number(line, subject, sc)
	l.lineEnd(line, subject, sc)

	if _, err := l.net.Registry().AddNeuron(name, threshold, voltage); err != nil {
		l.report(line, err)
	}
}

func (l *Loader) synapse(_ context.Context, line int, sc *lineScanner) {
	var spec network.SynapseSpec

	tok, ok := sc.next()
	switch {
	case ok && tok == "-":
	case ok && namePattern.MatchString(tok):
		spec.Name = tok
	default:
		l.report(line, core.Diagnostic{Subject: "synapse", Err: core.ErrExpectedName})
		return
	}
	subject := "synapse " + orDash(spec.Name)

	if spec.Source, ok = sc.name(); !ok {
		l.report(line, core.Diagnostic{Subject: subject, Err: core.ErrExpectedName})
		return
	}
	if spec.Destination, ok = sc.name(); !ok {
		l.report(line, core.Diagnostic{Subject: subject + " " + spec.Source, Err: core.ErrExpectedName})
		return
	}
	subject += " " + spec.Source + " " + spec.Destination
	spec.Delay = l.number(line, subject, sc)
	spec.Strength = l.number(line, subject, sc)
	l.lineEnd(line, subject, sc)

	if _, err := l.net.Registry().AddSynapse(spec); err != nil {
		l.report(line, err)
	}
}

func (l *Loader) output(_ context.Context, line int, sc *lineScanner) {
	interval := l.number(line, "output", sc)
	length := l.number(line, "output", sc)
	l.lineEnd(line, "output", sc)
	if interval <= 0 {
		l.report(line, core.Diagnostic{Subject: "output " + network.FormatValue(interval), Err: errNonPositiveInterval})
		return
	}
	l.startSampler(interval, length)
}

var errNonPositiveInterval = errors.New("interval must be positive")

// number reads the next number or substitutes the configured default.
func (l *Loader) number(line int, subject string, sc *lineScanner) float32 {
	f, ok := sc.number()
	if !ok {
		l.report(line, core.Diagnostic{Subject: subject, Err: core.ErrExpectedNumber})
		return l.cfg.Simulation.DefaultValue
	}
	return f
}

// lineEnd complains about leftover tokens.
func (l *Loader) lineEnd(line int, subject string, sc *lineScanner) {
	if rest := sc.rest(); rest != "" {
		l.report(line, core.Diagnostic{Subject: strings.TrimSpace(subject + " " + rest), Err: core.ErrExpectedNewline})
	}
}

// report records err against line. Registry errors arrive as
// core.Diagnostic without a line number.
func (l *Loader) report(line int, err error) {
	var d core.Diagnostic
	if !errors.As(err, &d) {
		d = core.Diagnostic{Err: err}
	}
	l.diags.Add(line, d.Subject, d.Err)

	ev := l.log.Warn()
	if core.IsRecovered(err) {
		ev = ev.Bool("recovered", true)
	}
	ev.Int("line", line).Str("subject", d.Subject).Msg(d.Err.Error())
}

func orDash(name string) string {
	if name == "" {
		return "-"
	}
	return name
}
