package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDoc = `
name: shock-tube
version: 1
grid:
  dims: 3
  cells: [40, 20, 10]
  procs: [2, 2, 1]
  periodic: [false, true, true]
  ghost: 3
  spacing: [0.025, 0.05, 0.1]
species:
  - name: air
    gamma: 1.4
    gas_constant: 287.0
  - name: sf6
    gamma: 1.1
    gas_constant: 56.92
ceq:
  enabled: true
  alpha: 1.0
  beta: 1.0
  kappa: 2.0
  epsilon: 1.0
noise:
  enabled: true
  dh: 0.2
  coff: 0.01
runtime:
  dt: 1.0e-5
  steps: 100
  workers: 4
logging:
  level: debug
`

const tomlDoc = `
name = "shock-tube"
version = 1

[grid]
dims = 3
cells = [40, 20, 10]
procs = [2, 2, 1]
periodic = [false, true, true]
ghost = 3
spacing = [0.025, 0.05, 0.1]

[[species]]
name = "air"
gamma = 1.4
gas_constant = 287.0

[[species]]
name = "sf6"
gamma = 1.1
gas_constant = 56.92

[ceq]
enabled = true
alpha = 1.0
beta = 1.0
kappa = 2.0
epsilon = 1.0

[noise]
enabled = true
dh = 0.2
coff = 0.01

[runtime]
dt = 1.0e-5
steps = 100
workers = 4

[logging]
level = "debug"
`

func TestParseYAMLAndTOMLAgree(t *testing.T) {
	fromYAML, err := Parse([]byte(yamlDoc), ".yaml")
	require.NoError(t, err)
	fromTOML, err := Parse([]byte(tomlDoc), ".toml")
	require.NoError(t, err)

	if diff := cmp.Diff(fromYAML, fromTOML); diff != "" {
		t.Fatalf("yaml and toml decode differently (-yaml +toml):\n%s", diff)
	}
	assert.Equal(t, [3]int{40, 20, 10}, fromYAML.Grid.CellCounts())
	assert.Equal(t, 4, fromYAML.Grid.NumProcs())
	assert.Equal(t, "host", fromYAML.Runtime.Device)
	assert.Equal(t, "lsrk54", fromYAML.Runtime.Integrator)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "shock-tube", cfg.Name)

	_, err = Load(filepath.Join(dir, "run.json"))
	require.Error(t, err)

	bad := filepath.Join(dir, "run.ini")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))
	_, err = Load(bad)
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("name: x\nbogus: 1\n"), ".yaml")
	require.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, [3]int{64, 64, 1}, cfg.Grid.CellCounts())
	assert.Equal(t, [3]float64{1.0 / 64, 1.0 / 64, 1}, cfg.Grid.Dx())
	assert.InDelta(t, (1.0/64)*1.4142135623730951, cfg.Grid.CharacteristicLength(), 1e-15)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad dims", func(c *Config) { c.Grid.Dims = 4 }},
		{"short cells", func(c *Config) { c.Grid.Cells = []int{64} }},
		{"fewer cells than procs", func(c *Config) { c.Grid.Procs = []int{65, 1} }},
		{"subdomain thinner than ghost", func(c *Config) { c.Grid.Procs = []int{32, 1} }},
		{"ghost too small", func(c *Config) { c.Grid.Ghost = 2 }},
		{"zero spacing", func(c *Config) { c.Grid.Spacing = []float64{0, 1} }},
		{"no species", func(c *Config) { c.Species = nil }},
		{"gamma at one", func(c *Config) { c.Species[0].Gamma = 1 }},
		{"ceq epsilon", func(c *Config) { c.Ceq.Enabled = true; c.Ceq.Epsilon = 0 }},
		{"noise dh", func(c *Config) { c.Noise.Enabled = true; c.Noise.DH = 0 }},
		{"coff without ceq", func(c *Config) { c.Noise.Enabled = true; c.Noise.Coff = 0.1 }},
		{"negative cfl", func(c *Config) { c.Runtime.CFL = -0.5 }},
		{"negative steps", func(c *Config) { c.Runtime.Steps = -1 }},
		{"zero dt with cfl", func(c *Config) { c.Runtime.TimeStep = 0; c.Runtime.CFL = 0.4; c.Runtime.Steps = 0 }},
		{"zero dt with steps", func(c *Config) { c.Runtime.TimeStep = 0 }},
		{"future version", func(c *Config) { c.Version = CurrentVersion + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Species = append([]SpeciesConfig(nil), cfg.Species...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "error %v should wrap ErrInvalid", err)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	data, err := Marshal(cfg)
	require.NoError(t, err)
	back, err := Parse(data, ".yaml")
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
