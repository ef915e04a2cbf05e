package problems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/FVKernel/config"
)

func TestLookup(t *testing.T) {
	cfg := config.Default()
	for _, name := range Names() {
		cfg.Runtime.Problem = name
		fn, err := Lookup(cfg)
		require.NoError(t, err, name)
		pt := fn([3]float64{0.3, 0.6, 0})
		assert.Greater(t, pt.Rho, 0.0, name)
		assert.Greater(t, pt.P, 0.0, name)
	}

	cfg.Runtime.Problem = "vortex"
	_, err := Lookup(cfg)
	assert.ErrorIs(t, err, ErrUnknownProblem)
}

func TestSodSpecies(t *testing.T) {
	cfg := config.Default()
	cfg.Runtime.Problem = "sod"
	fn, err := Lookup(cfg)
	require.NoError(t, err)
	assert.Nil(t, fn([3]float64{0.1}).Y)

	cfg.Species = append(cfg.Species, config.SpeciesConfig{Name: "helium", Gamma: 5.0 / 3.0, R: 2077})
	fn, err = Lookup(cfg)
	require.NoError(t, err)
	left, right := fn([3]float64{0.1}), fn([3]float64{0.9})
	assert.Equal(t, []float64{1, 0}, left.Y)
	assert.Equal(t, []float64{0, 1}, right.Y)
	assert.Equal(t, 1.0, left.Rho)
	assert.Equal(t, 0.125, right.Rho)
}

func TestCheckerAlternates(t *testing.T) {
	cfg := config.Default()
	cfg.Runtime.Problem = "checker"
	fn, err := Lookup(cfg)
	require.NoError(t, err)
	h := cfg.Grid.Dx()[0]
	a := fn([3]float64{0.5 * h, 0.5 * h})
	b := fn([3]float64{1.5 * h, 0.5 * h})
	c := fn([3]float64{1.5 * h, 1.5 * h})
	assert.NotEqual(t, a.Rho, b.Rho)
	assert.Equal(t, a.Rho, c.Rho)
}
