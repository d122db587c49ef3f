package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSentinel is substituted for negative delays and unreadable numbers,
	// leaving the entity in a degraded but well-defined state.
	DefaultSentinel float32 = 99.99

	// DefaultNameWidth is the number of characters of a neuron name shown in
	// sampler column headers.
	DefaultNameWidth = 4
)

// ---------------------------------------------------------------------------
// Config: configuration for one neurosim process.
//
// The configuration is resolved through a four-level hierarchy where each
// layer overrides values set by the layer beneath it:
//
//	Priority (highest → lowest):
//	  1. Programmatic overrides (CLI flags applied after loading)
//	  2. YAML configuration file
//	  3. Environment variables (NEUROSIM_* prefix)
//	  4. Built-in defaults
//
// Simulation times are logical (unitless float32), never wall-clock durations.
// ---------------------------------------------------------------------------

// SimulationConfig groups kernel and loader settings.
type SimulationConfig struct {
	// DefaultDelay replaces a synapse delay that was declared negative.
	DefaultDelay float32 `yaml:"defaultDelay"`

	// DefaultValue replaces a number the loader could not read.
	DefaultValue float32 `yaml:"defaultValue"`

	// MaxEvents caps the events dispatched by a single run. 0 = unlimited.
	MaxEvents int `yaml:"maxEvents"`
}

// ReportConfig configures the periodic fire-count sampler.
// A zero Length disables the sampler unless the description has an
// output directive.
type ReportConfig struct {
	Interval  float32 `yaml:"interval"`
	Length    float32 `yaml:"length"`
	NameWidth int     `yaml:"nameWidth"`
}

// TraceConfig configures run trace export.
type TraceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug|info|warn|error.
	Level string `yaml:"level"`

	// Format is console (human readable) or json.
	Format string `yaml:"format"`
}

// Config is the root configuration object.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Report     ReportConfig     `yaml:"report"`
	Trace      TraceConfig      `yaml:"trace"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ---------------------------------------------------------------------------
// Factory functions
// ---------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			DefaultDelay: DefaultSentinel,
			DefaultValue: DefaultSentinel,
			MaxEvents:    0,
		},
		Report: ReportConfig{
			Interval:  0,
			Length:    0,
			NameWidth: DefaultNameWidth,
		},
		Trace: TraceConfig{
			Enabled:  false,
			Path:     "neurosim.nstr",
			Compress: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ConfigFromFile reads a YAML configuration file and merges it on top of
// the built-in defaults. Fields absent from the file retain their defaults.
func ConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// ConfigFromEnv applies environment variable overrides to the given Config.
// If cfg is nil a new default Config is created first.
//
// Environment variable mapping (all optional):
//
//	NEUROSIM_DEFAULT_DELAY     → Simulation.DefaultDelay  (float)
//	NEUROSIM_DEFAULT_VALUE     → Simulation.DefaultValue  (float)
//	NEUROSIM_MAX_EVENTS        → Simulation.MaxEvents     (integer)
//	NEUROSIM_REPORT_INTERVAL   → Report.Interval          (float)
//	NEUROSIM_REPORT_LENGTH     → Report.Length            (float)
//	NEUROSIM_REPORT_NAME_WIDTH → Report.NameWidth         (integer)
//	NEUROSIM_TRACE_ENABLED     → Trace.Enabled            ("true"/"false")
//	NEUROSIM_TRACE_PATH        → Trace.Path
//	NEUROSIM_TRACE_COMPRESS    → Trace.Compress           ("true"/"false")
//	NEUROSIM_LOG_LEVEL         → Logging.Level
//	NEUROSIM_LOG_FORMAT        → Logging.Format
func ConfigFromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// -- Simulation --
	setEnvFloat32("NEUROSIM_DEFAULT_DELAY", &cfg.Simulation.DefaultDelay)
	setEnvFloat32("NEUROSIM_DEFAULT_VALUE", &cfg.Simulation.DefaultValue)
	setEnvInt("NEUROSIM_MAX_EVENTS", &cfg.Simulation.MaxEvents)

	// -- Report --
	setEnvFloat32("NEUROSIM_REPORT_INTERVAL", &cfg.Report.Interval)
	setEnvFloat32("NEUROSIM_REPORT_LENGTH", &cfg.Report.Length)
	setEnvInt("NEUROSIM_REPORT_NAME_WIDTH", &cfg.Report.NameWidth)

	// -- Trace --
	setEnvBool("NEUROSIM_TRACE_ENABLED", &cfg.Trace.Enabled)
	setEnvStr("NEUROSIM_TRACE_PATH", &cfg.Trace.Path)
	setEnvBool("NEUROSIM_TRACE_COMPRESS", &cfg.Trace.Compress)

	// -- Logging --
	setEnvStr("NEUROSIM_LOG_LEVEL", &cfg.Logging.Level)
	setEnvStr("NEUROSIM_LOG_FORMAT", &cfg.Logging.Format)

	return cfg
}

// LoadConfig implements the configuration hierarchy:
//
//  1. Start with built-in defaults.
//  2. If configPath is non-empty, overlay the YAML file.
//  3. Apply environment variable overrides.
//  4. The caller may then apply programmatic overrides (e.g. CLI flags).
func LoadConfig(configPath string) (*Config, error) {
	var cfg *Config

	if configPath != "" {
		var err error
		cfg, err = ConfigFromFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}

	cfg = ConfigFromEnv(cfg)
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate performs structural validation of the entire configuration.
// Returns a descriptive error for the first invalid field encountered.
func (c *Config) Validate() error {
	// Simulation
	if c.Simulation.DefaultDelay < 0 {
		return fmt.Errorf("simulation.defaultDelay must be >= 0")
	}
	if c.Simulation.MaxEvents < 0 {
		return fmt.Errorf("simulation.maxEvents must be >= 0")
	}

	// Report
	if c.Report.Interval < 0 {
		return fmt.Errorf("report.interval must be >= 0")
	}
	if c.Report.Length < 0 {
		return fmt.Errorf("report.length must be >= 0")
	}
	if c.Report.Length > 0 && c.Report.Interval <= 0 {
		return fmt.Errorf("report.interval must be > 0 when report.length is set")
	}
	if c.Report.NameWidth < 1 {
		return fmt.Errorf("report.nameWidth must be >= 1")
	}

	// Trace
	if c.Trace.Enabled && strings.TrimSpace(c.Trace.Path) == "" {
		return fmt.Errorf("trace.path must not be empty when trace is enabled")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug|info|warn|error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console|json")
	}

	return nil
}

// ---------------------------------------------------------------------------
// Environment variable helpers
// ---------------------------------------------------------------------------

// setEnvStr sets *target to the value of the named env var if it is non-empty.
func setEnvStr(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// setEnvBool sets *target to the parsed boolean value of the named env var.
func setEnvBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// setEnvInt sets *target to the parsed integer value of the named env var.
func setEnvInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setEnvFloat32 sets *target to the parsed float32 value of the named env var.
func setEnvFloat32(key string, target *float32) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			*target = float32(f)
		}
	}
}

// ---------------------------------------------------------------------------
// CLI flag overrides, the final layer of the configuration hierarchy.
// ---------------------------------------------------------------------------

// CLIOverrides carries optional values set via command-line flags.
// Pointer fields are nil when the flag was not explicitly provided,
// allowing the caller to distinguish "not set" from the zero value.
type CLIOverrides struct {
	ConfigPath     *string
	DefaultDelay   *float32
	MaxEvents      *int
	ReportInterval *float32
	ReportLength   *float32
	NameWidth      *int
	TraceEnabled   *bool
	TracePath      *string
	TraceCompress  *bool
	LogLevel       *string
	LogFormat      *string
}

// ApplyCLIOverrides patches the Config with any explicitly-set CLI flags.
func (c *Config) ApplyCLIOverrides(o *CLIOverrides) {
	if o == nil {
		return
	}
	if o.DefaultDelay != nil {
		c.Simulation.DefaultDelay = *o.DefaultDelay
	}
	if o.MaxEvents != nil {
		c.Simulation.MaxEvents = *o.MaxEvents
	}
	if o.ReportInterval != nil {
		c.Report.Interval = *o.ReportInterval
	}
	if o.ReportLength != nil {
		c.Report.Length = *o.ReportLength
	}
	if o.NameWidth != nil {
		c.Report.NameWidth = *o.NameWidth
	}
	if o.TraceEnabled != nil {
		c.Trace.Enabled = *o.TraceEnabled
	}
	if o.TracePath != nil {
		c.Trace.Path = *o.TracePath
		// naming a trace file implies wanting one
		c.Trace.Enabled = true
	}
	if o.TraceCompress != nil {
		c.Trace.Compress = *o.TraceCompress
	}
	if o.LogLevel != nil {
		c.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		c.Logging.Format = *o.LogFormat
	}
}

// ---------------------------------------------------------------------------
// Process helpers
// ---------------------------------------------------------------------------

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
// The simulation checks it between events.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// PrintBanner writes the interactive-mode banner to w.
func PrintBanner(w io.Writer) {
	banner := `
    _   __                      _____ _
   / | / /__  __  ___________  / ___/(_)___ ___
  /  |/ / _ \/ / / / ___/ __ \ \__ \/ / __ '__ \
 / /|  /  __/ /_/ / /  / /_/ /___/ / / / / / / /
/_/ |_/\___/\__,_/_/   \____//____/_/_/ /_/ /_/

    Discrete-event neuron network simulator
    ───────────────────────────────────────
`
	fmt.Fprint(w, banner)
}
