package integrator

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/notargets/FVKernel/comm"
	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/problems"
	"github.com/notargets/FVKernel/solver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMethodOrder(t *testing.T) {
	tests := []struct {
		name string
		tol  float64
	}{
		{"lsrk54", 1e-7},
		{"rk3", 1e-5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := MethodByName(tt.name)
			require.NoError(t, err)
			// y' = -y over one step.
			const dt = 0.1
			y, dy := 1.0, 0.0
			for s := 0; s < m.Stages(); s++ {
				dy = m.A[s]*dy + dt*(-y)
				y += m.B[s] * dy
			}
			assert.InDelta(t, math.Exp(-dt), y, tt.tol)
		})
	}

	_, err := MethodByName("euler")
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, []string{"lsrk54", "rk3"}, Methods())
}

func TestFillZeroGradient(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.Cells = []int{6, 5}
	cfg.Grid.Periodic = []bool{false, false}
	require.NoError(t, cfg.Validate())
	p, err := partitions.NewGlobalGrid(cfg.Grid).Decompose(0)
	require.NoError(t, err)

	f := field.New(p.Extent, 2)
	box := p.InteriorBox()
	value := func(i, j, v int) float64 { return float64(100*v + 10*i + j) }
	for v := 0; v < 2; v++ {
		for j := box.Lo[1]; j < box.Hi[1]; j++ {
			for i := box.Lo[0]; i < box.Hi[0]; i++ {
				f.Set(i, j, 0, v, value(i, j, v))
			}
		}
	}
	FillZeroGradient(p, f)

	clamp := func(x, lo, hi int) int { return min(max(x, lo), hi-1) }
	for v := 0; v < 2; v++ {
		for j := 0; j < p.Extent[1]; j++ {
			for i := 0; i < p.Extent[0]; i++ {
				want := value(clamp(i, box.Lo[0], box.Hi[0]), clamp(j, box.Lo[1], box.Hi[1]), v)
				require.Equal(t, want, f.At(i, j, 0, v), "cell (%d,%d) var %d", i, j, v)
			}
		}
	}
}

func newScheme(t *testing.T, cfg config.Config) solver.Scheme {
	t.Helper()
	require.NoError(t, cfg.Validate())
	p, err := partitions.NewGlobalGrid(cfg.Grid).Decompose(0)
	require.NoError(t, err)
	s, err := solver.New(cfg, p, comm.Self())
	require.NoError(t, err)
	initial, err := problems.Lookup(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(initial))
	return s
}

func totalMass(s solver.Scheme) float64 {
	set := s.Fields()
	mesh := s.Mesh()
	mass := set.State.Var(set.Layout.Species(0))
	var sum float64
	box := mesh.Interior
	for j := box.Lo[1]; j < box.Hi[1]; j++ {
		for i := box.Lo[0]; i < box.Hi[0]; i++ {
			sum += mass[mesh.Cell(i, j, 0)]
		}
	}
	return sum
}

func TestStepperConservesMass(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.Cells = []int{32, 4}
	cfg.Grid.Spacing = []float64{1.0 / 32, 1.0 / 32}
	cfg.Grid.Periodic = []bool{false, true}
	cfg.Runtime.Problem = "sod"
	cfg.Runtime.TimeStep = 1e-3
	cfg.Runtime.Workers = 2
	s := newScheme(t, cfg)
	before := totalMass(s)

	st, err := NewStepper(s, cfg)
	require.NoError(t, err)
	require.NoError(t, st.Run(context.Background(), 5))

	assert.Equal(t, 5, st.Steps())
	assert.InDelta(t, 5e-3, st.Time(), 1e-15)
	assert.InDelta(t, before, totalMass(s), 1e-12*before)
	for _, v := range s.Fields().State.Interior(s.Fields().Part) {
		require.False(t, math.IsNaN(v))
	}
}

func TestStepperCFL(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.Cells = []int{16, 16}
	cfg.Grid.Spacing = []float64{1.0 / 16, 1.0 / 32}
	cfg.Runtime.Integrator = "rk3"
	cfg.Runtime.CFL = 0.4
	cfg.Runtime.TimeStep = 1e-4
	s := newScheme(t, cfg)

	st, err := NewStepper(s, cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.PreSim(ctx))
	require.NoError(t, st.Step(ctx))
	assert.Equal(t, 1e-4, st.TimeStep())

	smax := s.Reductions().MaxWaveSpeed
	require.Greater(t, smax, 0.0)
	require.NoError(t, st.Step(ctx))
	assert.InDelta(t, 0.4*(1.0/32)/smax, st.TimeStep(), 1e-15)
	require.NoError(t, s.PostSim(ctx))
}

func TestStepperNeedsFirstTimeStep(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.Cells = []int{16, 16}
	cfg.Grid.Spacing = []float64{1.0 / 16, 1.0 / 16}
	s := newScheme(t, cfg)

	cfg.Runtime.CFL = 0.4
	cfg.Runtime.TimeStep = 0
	_, err := NewStepper(s, cfg)
	assert.Error(t, err)
}

func TestUniformStateIsSteady(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.Cells = []int{12, 12}
	cfg.Grid.Spacing = []float64{1.0 / 12, 1.0 / 12}
	cfg.Grid.Periodic = []bool{false, true}
	cfg.Ceq.Enabled = true
	cfg.Noise.Enabled = true
	cfg.Runtime.Problem = "sod"
	s := newScheme(t, cfg)
	require.NoError(t, s.Initialize(func([3]float64) solver.Point {
		return solver.Point{Rho: 1, Vel: [3]float64{0.3, -0.2}, P: 2}
	}))
	before := s.Fields().State.Interior(s.Fields().Part)

	st, err := NewStepper(s, cfg)
	require.NoError(t, err)
	require.NoError(t, st.Run(context.Background(), 3))
	after := s.Fields().State.Interior(s.Fields().Part)
	assert.InDeltaSlice(t, before, after, 1e-12)
}
