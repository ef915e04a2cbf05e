// Package config holds the run configuration of the finite-volume residual
// evaluator. A Config is loaded once, validated, and then passed by value; no
// component mutates it after Validate succeeds.
package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/multierr"
)

// CurrentVersion is the newest configuration schema this package understands.
const CurrentVersion = 1

// MinGhost is the smallest ghost width the fifth order flux stencil can run on.
const MinGhost = 3

var (
	// ErrInvalid marks a configuration that failed validation.
	ErrInvalid = errors.New("invalid configuration")
	// ErrUnknownFormat is returned when a file extension has no decoder.
	ErrUnknownFormat = errors.New("unknown configuration format")
)

// Config is the named replacement for the positional parameter blob.
type Config struct {
	Name    string          `yaml:"name" toml:"name"`
	Version int             `yaml:"version" toml:"version"`
	Grid    GridConfig      `yaml:"grid" toml:"grid"`
	Species []SpeciesConfig `yaml:"species" toml:"species"`
	Ceq     CeqConfig       `yaml:"ceq" toml:"ceq"`
	Noise   NoiseConfig     `yaml:"noise" toml:"noise"`
	Runtime RuntimeConfig   `yaml:"runtime" toml:"runtime"`
	Logging LoggingConfig   `yaml:"logging" toml:"logging"`
}

// GridConfig describes the global structured grid and the process grid laid
// over it. Per-axis lists have one entry per active dimension.
type GridConfig struct {
	Dims     int       `yaml:"dims" toml:"dims"`
	Cells    []int     `yaml:"cells" toml:"cells"`
	Procs    []int     `yaml:"procs" toml:"procs"`
	Periodic []bool    `yaml:"periodic" toml:"periodic"`
	Ghost    int       `yaml:"ghost" toml:"ghost"`
	Spacing  []float64 `yaml:"spacing" toml:"spacing"`
}

// SpeciesConfig is one ideal-gas component of the mixture.
type SpeciesConfig struct {
	Name  string  `yaml:"name" toml:"name"`
	Gamma float64 `yaml:"gamma" toml:"gamma"`
	R     float64 `yaml:"gas_constant" toml:"gas_constant"`
}

// CeqConfig controls the continuity-equation artificial dissipation.
type CeqConfig struct {
	Enabled bool    `yaml:"enabled" toml:"enabled"`
	Alpha   float64 `yaml:"alpha" toml:"alpha"`
	Beta    float64 `yaml:"beta" toml:"beta"`
	Kappa   float64 `yaml:"kappa" toml:"kappa"`
	Epsilon float64 `yaml:"epsilon" toml:"epsilon"`
}

// NoiseConfig controls the checkerboard noise filter.
type NoiseConfig struct {
	Enabled bool    `yaml:"enabled" toml:"enabled"`
	DH      float64 `yaml:"dh" toml:"dh"`
	Coff    float64 `yaml:"coff" toml:"coff"`
}

// RuntimeConfig carries execution settings that do not change the numerics.
type RuntimeConfig struct {
	TimeStep   float64 `yaml:"dt" toml:"dt"`
	CFL        float64 `yaml:"cfl" toml:"cfl"` // when positive, dt follows the wave speed after the first step
	Steps      int     `yaml:"steps" toml:"steps"`
	Integrator string  `yaml:"integrator" toml:"integrator"`
	Workers    int     `yaml:"workers" toml:"workers"`
	Device     string  `yaml:"device" toml:"device"`
	Problem    string  `yaml:"problem" toml:"problem"`
}

// LoggingConfig selects the zap configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Development bool   `yaml:"development" toml:"development"`
}

// Default returns a small two dimensional single species setup.
func Default() Config {
	cfg := Config{
		Name:    "default",
		Version: CurrentVersion,
		Grid: GridConfig{
			Dims:     2,
			Cells:    []int{64, 64},
			Procs:    []int{1, 1},
			Periodic: []bool{true, true},
			Ghost:    MinGhost,
			Spacing:  []float64{1.0 / 64, 1.0 / 64},
		},
		Species: []SpeciesConfig{{Name: "air", Gamma: 1.4, R: 287.0}},
		Ceq:     CeqConfig{Alpha: 1, Beta: 1, Kappa: 1, Epsilon: 1},
		Noise:   NoiseConfig{DH: 0.1},
		Runtime: RuntimeConfig{TimeStep: 1e-4, Steps: 10, Integrator: "lsrk54", Device: "host", Problem: "pulse"},
		Logging: LoggingConfig{Level: "info"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values that have a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.Grid.Ghost == 0 {
		c.Grid.Ghost = MinGhost
	}
	if len(c.Grid.Procs) == 0 {
		c.Grid.Procs = make([]int, c.Grid.Dims)
		for d := range c.Grid.Procs {
			c.Grid.Procs[d] = 1
		}
	}
	if len(c.Grid.Periodic) == 0 {
		c.Grid.Periodic = make([]bool, c.Grid.Dims)
	}
	if c.Ceq.Epsilon == 0 {
		c.Ceq.Epsilon = 1
	}
	if c.Runtime.Workers <= 0 {
		c.Runtime.Workers = runtime.NumCPU()
	}
	if c.Runtime.Integrator == "" {
		c.Runtime.Integrator = "lsrk54"
	}
	if c.Runtime.Device == "" {
		c.Runtime.Device = "host"
	}
	if c.Runtime.Problem == "" {
		c.Runtime.Problem = "pulse"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports every problem found, each wrapping ErrInvalid.
func (c Config) Validate() error {
	var err error
	bad := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Version < 1 || c.Version > CurrentVersion {
		bad("version %d not supported (max %d)", c.Version, CurrentVersion)
	}
	g := c.Grid
	if g.Dims != 2 && g.Dims != 3 {
		bad("grid.dims must be 2 or 3, got %d", g.Dims)
		return err
	}
	if len(g.Cells) != g.Dims {
		bad("grid.cells needs %d entries, got %d", g.Dims, len(g.Cells))
	}
	if len(g.Procs) != g.Dims {
		bad("grid.procs needs %d entries, got %d", g.Dims, len(g.Procs))
	}
	if len(g.Periodic) != g.Dims {
		bad("grid.periodic needs %d entries, got %d", g.Dims, len(g.Periodic))
	}
	if len(g.Spacing) != g.Dims {
		bad("grid.spacing needs %d entries, got %d", g.Dims, len(g.Spacing))
	}
	if g.Ghost < MinGhost {
		bad("grid.ghost must be at least %d, got %d", MinGhost, g.Ghost)
	}
	if err != nil {
		return err
	}
	for d := 0; d < g.Dims; d++ {
		if g.Procs[d] < 1 {
			bad("grid.procs[%d] must be positive, got %d", d, g.Procs[d])
			continue
		}
		if g.Cells[d] < g.Procs[d] {
			bad("grid.cells[%d]=%d is smaller than grid.procs[%d]=%d", d, g.Cells[d], d, g.Procs[d])
			continue
		}
		if n := g.Cells[d] / g.Procs[d]; n < g.Ghost {
			bad("axis %d: smallest subdomain has %d cells, fewer than ghost width %d", d, n, g.Ghost)
		}
		if !(g.Spacing[d] > 0) || math.IsInf(g.Spacing[d], 0) {
			bad("grid.spacing[%d] must be positive and finite, got %g", d, g.Spacing[d])
		}
	}

	if len(c.Species) == 0 {
		bad("at least one species is required")
	}
	for s, sp := range c.Species {
		if !(sp.Gamma > 1) {
			bad("species[%d] %q: gamma must exceed 1, got %g", s, sp.Name, sp.Gamma)
		}
		if !(sp.R > 0) {
			bad("species[%d] %q: gas_constant must be positive, got %g", s, sp.Name, sp.R)
		}
	}

	if c.Ceq.Enabled && !(c.Ceq.Epsilon > 0) {
		bad("ceq.epsilon must be positive, got %g", c.Ceq.Epsilon)
	}
	if c.Noise.Enabled {
		if !(c.Noise.DH > 0) {
			bad("noise.dh must be positive, got %g", c.Noise.DH)
		}
		if c.Noise.Coff < 0 {
			bad("noise.coff must not be negative, got %g", c.Noise.Coff)
		}
		if c.Noise.Coff > 0 && !c.Ceq.Enabled {
			bad("noise.coff requires ceq.enabled")
		}
	}
	if c.Runtime.TimeStep < 0 {
		bad("runtime.dt must not be negative, got %g", c.Runtime.TimeStep)
	}
	if c.Runtime.CFL < 0 {
		bad("runtime.cfl must not be negative, got %g", c.Runtime.CFL)
	}
	if c.Runtime.Steps < 0 {
		bad("runtime.steps must not be negative, got %d", c.Runtime.Steps)
	}
	if c.Runtime.TimeStep == 0 && (c.Runtime.CFL > 0 || c.Runtime.Steps > 0) {
		bad("runtime.dt sets the first step and must be positive when cfl or steps is set")
	}
	return err
}

// CellCounts returns the global cell count per axis, 1 on inactive axes.
func (g GridConfig) CellCounts() (n [3]int) {
	for d := range n {
		n[d] = 1
		if d < len(g.Cells) {
			n[d] = g.Cells[d]
		}
	}
	return
}

// ProcCounts returns the process grid shape, 1 on inactive axes.
func (g GridConfig) ProcCounts() (n [3]int) {
	for d := range n {
		n[d] = 1
		if d < len(g.Procs) {
			n[d] = g.Procs[d]
		}
	}
	return
}

// PeriodicAxes returns the periodicity per axis, false on inactive axes.
func (g GridConfig) PeriodicAxes() (p [3]bool) {
	for d := 0; d < len(g.Periodic) && d < 3; d++ {
		p[d] = g.Periodic[d]
	}
	return
}

// Dx returns the cell spacing per axis, 1 on inactive axes.
func (g GridConfig) Dx() (dx [3]float64) {
	for d := range dx {
		dx[d] = 1
		if d < len(g.Spacing) {
			dx[d] = g.Spacing[d]
		}
	}
	return
}

// CharacteristicLength is the cell diagonal over the active axes.
func (g GridConfig) CharacteristicLength() float64 {
	var sum float64
	for d := 0; d < g.Dims && d < len(g.Spacing); d++ {
		sum += g.Spacing[d] * g.Spacing[d]
	}
	return math.Sqrt(sum)
}

// NumProcs is the total number of ranks in the process grid.
func (g GridConfig) NumProcs() int {
	p := g.ProcCounts()
	return p[0] * p[1] * p[2]
}
