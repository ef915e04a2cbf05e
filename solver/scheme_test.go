package solver

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/stat"

	"github.com/notargets/FVKernel/comm"
	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/kernels"
	"github.com/notargets/FVKernel/partitions"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func gridConfig(dims int, cells []int, procs []int) config.Config {
	cfg := config.Default()
	cfg.Grid.Dims = dims
	cfg.Grid.Cells = cells
	cfg.Grid.Procs = procs
	cfg.Grid.Periodic = make([]bool, dims)
	cfg.Grid.Spacing = make([]float64, dims)
	for d := 0; d < dims; d++ {
		cfg.Grid.Periodic[d] = true
		cfg.Grid.Spacing[d] = 1 / float64(cells[0])
	}
	cfg.Runtime.Workers = 3
	return cfg
}

// singleRank builds the scheme for a one rank run.
func singleRank(t *testing.T, cfg config.Config) Scheme {
	t.Helper()
	require.NoError(t, cfg.Validate())
	g := partitions.NewGlobalGrid(cfg.Grid)
	part, err := g.Decompose(0)
	require.NoError(t, err)
	s, err := New(cfg, part, comm.Self())
	require.NoError(t, err)
	return s
}

func evaluate(t *testing.T, s Scheme) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PreSim(ctx))
	require.NoError(t, s.PreStep(ctx))
	require.NoError(t, s.Compute(ctx))
	require.NoError(t, s.PostStep(ctx))
	require.NoError(t, s.PostSim(ctx))
}

func pulse(x [3]float64) Point {
	r2 := math.Pow(x[0]-0.5, 2) + math.Pow(x[1]-0.4, 2) + math.Pow(x[2]-0.5, 2)
	bump := math.Exp(-r2 / 0.02)
	return Point{
		Rho: 1 + 0.3*bump,
		Vel: [3]float64{0.4, -0.25, 0.15},
		P:   1 + 0.2*bump,
	}
}

func TestNewSelectsVariant(t *testing.T) {
	s := singleRank(t, gridConfig(2, []int{8, 8}, []int{1, 1}))
	assert.Equal(t, "cart2d", s.Name())
	assert.IsType(t, &Cart2D{}, s)

	s = singleRank(t, gridConfig(3, []int{6, 6, 6}, []int{1, 1, 1}))
	assert.Equal(t, "cart3d", s.Name())
	assert.IsType(t, &Cart3D{}, s)

	cfg := gridConfig(2, []int{8, 8}, []int{1, 1})
	part, err := partitions.NewGlobalGrid(cfg.Grid).Decompose(0)
	require.NoError(t, err)
	_, err = NewCart3D(cfg, part, comm.Self())
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLifecycleOrder(t *testing.T) {
	ctx := context.Background()
	s := singleRank(t, gridConfig(2, []int{8, 8}, []int{1, 1}))
	require.NoError(t, s.Initialize(pulse))

	assert.ErrorIs(t, s.Compute(ctx), ErrLifecycle)
	assert.ErrorIs(t, s.PreStep(ctx), ErrLifecycle)
	require.NoError(t, s.PreSim(ctx))
	assert.ErrorIs(t, s.PreSim(ctx), ErrLifecycle)
	require.NoError(t, s.PreStep(ctx))
	require.NoError(t, s.Compute(ctx))
	require.NoError(t, s.PostStep(ctx))
	require.NoError(t, s.PostSim(ctx))
	assert.ErrorIs(t, s.Compute(ctx), ErrLifecycle)
}

func TestComputeLeavesStateUntouched(t *testing.T) {
	cfg := gridConfig(2, []int{12, 10}, []int{1, 1})
	cfg.Ceq.Enabled = true
	cfg.Noise.Enabled = true
	s := singleRank(t, cfg)
	require.NoError(t, s.Initialize(pulse))

	ctx := context.Background()
	require.NoError(t, s.PreSim(ctx))
	require.NoError(t, s.PreStep(ctx))
	before := append([]float64(nil), s.Fields().State.Data...)
	require.NoError(t, s.Compute(ctx))
	assert.Equal(t, before, s.Fields().State.Data)
}

// cellAverage is the exact cell mean of 1 + amp*sin(2 pi x) over [x-h/2, x+h/2].
func cellAverage(x, h, amp float64) float64 {
	k := 2 * math.Pi
	return 1 + amp*(math.Cos(k*(x-h/2))-math.Cos(k*(x+h/2)))/(k*h)
}

func TestWENOConvergence(t *testing.T) {
	const amp = 0.1
	var logH, logErr []float64
	for _, nx := range []int{32, 64, 128} {
		h := 1 / float64(nx)
		s := singleRank(t, gridConfig(2, []int{nx, 4}, []int{1, 1}))
		require.NoError(t, s.Initialize(func(x [3]float64) Point {
			return Point{Rho: cellAverage(x[0], h, amp), Vel: [3]float64{1, 0, 0}, P: 1}
		}))
		evaluate(t, s)

		set := s.Fields()
		mass := set.Residual.Var(set.Layout.Species(0))
		mesh := s.Mesh()
		var maxErr float64
		box := mesh.Interior
		for j := box.Lo[1]; j < box.Hi[1]; j++ {
			for i := box.Lo[0]; i < box.Hi[0]; i++ {
				x := s.CellCenter(i, j, 0)[0]
				if math.Abs(math.Cos(2*math.Pi*x)) <= 0.5 {
					continue
				}
				exact := -amp * (math.Sin(2*math.Pi*(x+h/2)) - math.Sin(2*math.Pi*(x-h/2))) / h
				maxErr = math.Max(maxErr, math.Abs(mass[mesh.Cell(i, j, 0)]-exact))
			}
		}
		require.Greater(t, maxErr, 0.0)
		logH = append(logH, math.Log(h))
		logErr = append(logErr, math.Log(maxErr))
	}
	_, slope := stat.LinearRegression(logH, logErr, nil, false)
	assert.Greater(t, slope, 4.0, "observed order %.2f", slope)
}

func TestCeqUniformStateIsNull(t *testing.T) {
	for _, dims := range []int{2, 3} {
		cells := []int{8, 8, 8}[:dims]
		procs := []int{1, 1, 1}[:dims]
		cfg := gridConfig(dims, cells, procs)
		cfg.Ceq.Enabled = true
		cfg.Noise.Enabled = true
		s := singleRank(t, cfg)
		require.NoError(t, s.Initialize(func([3]float64) Point {
			return Point{Rho: 1.2, P: 0.9}
		}))
		evaluate(t, s)

		set := s.Fields()
		for _, v := range set.Residual.Interior(set.Part) {
			require.InDelta(t, 0, v, 1e-12)
		}
		layout := set.Layout
		for n := 0; n < layout.NumCeqChannels(); n++ {
			for _, v := range set.Diagnostics.Var(layout.DiagTarget(n)) {
				require.Zero(t, v)
			}
		}
		for _, v := range set.Diagnostics.Var(layout.DiagNoiseFlag()) {
			require.Zero(t, v, "constant field flagged as noise")
		}
		red := s.Reductions()
		assert.InDelta(t, math.Sqrt(1.4*0.9/1.2), red.MaxWaveSpeed, 1e-12)
		assert.Zero(t, red.MaxGradRho)
	}
}

func TestNoiseCheckerboardThreshold(t *testing.T) {
	const amp = 0.05
	for _, dims := range []int{2, 3} {
		for _, tc := range []struct {
			factor  float64
			flagged bool
		}{
			{0.9, true},
			{1.1, false},
		} {
			cells := []int{8, 8, 8}[:dims]
			cfg := gridConfig(dims, cells, []int{1, 1, 1}[:dims])
			cfg.Noise.Enabled = true
			cfg.Noise.DH = tc.factor * kernels.CriticalDH(dims, amp)
			s := singleRank(t, cfg)
			require.NoError(t, s.Initialize(func(x [3]float64) Point {
				var parity int
				for d := 0; d < dims; d++ {
					parity += int(math.Floor(x[d] * float64(cells[d])))
				}
				return Point{Rho: 1 + amp*math.Pow(-1, float64(parity)), P: 1}
			}))
			evaluate(t, s)

			set := s.Fields()
			flags := set.Diagnostics.Var(set.Layout.DiagNoiseFlag())
			box := s.Mesh().Interior
			for k := box.Lo[2]; k < box.Hi[2]; k++ {
				for j := box.Lo[1]; j < box.Hi[1]; j++ {
					for i := box.Lo[0]; i < box.Hi[0]; i++ {
						got := flags[s.Mesh().Cell(i, j, k)] == 1
						require.Equal(t, tc.flagged, got, "dims %d factor %.1f cell (%d,%d,%d)", dims, tc.factor, i, j, k)
					}
				}
			}
		}
	}
}

// globalResult collects interior values keyed by global cell.
type globalResult struct {
	mu       sync.Mutex
	residual map[[4]int]float64
	red      kernels.Reductions
}

func runDecomposed(t *testing.T, cfg config.Config) *globalResult {
	t.Helper()
	require.NoError(t, cfg.Validate())
	g := partitions.NewGlobalGrid(cfg.Grid)
	world, err := comm.NewWorld(g.NumRanks(), nil)
	require.NoError(t, err)
	out := &globalResult{residual: make(map[[4]int]float64)}
	err = world.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		part, err := g.Decompose(c.Rank())
		if err != nil {
			return err
		}
		s, err := New(cfg, part, c)
		if err != nil {
			return err
		}
		if err := s.Initialize(pulse); err != nil {
			return err
		}
		for _, step := range []func(context.Context) error{s.PreSim, s.PreStep, s.Compute, s.PostStep, s.PostSim} {
			if err := step(ctx); err != nil {
				return err
			}
		}
		res := s.Fields().Residual
		box := part.InteriorBox()
		out.mu.Lock()
		defer out.mu.Unlock()
		out.red = s.Reductions()
		for v := 0; v < res.NV; v++ {
			for k := box.Lo[2]; k < box.Hi[2]; k++ {
				for j := box.Lo[1]; j < box.Hi[1]; j++ {
					for i := box.Lo[0]; i < box.Hi[0]; i++ {
						key := [4]int{
							part.Start[0] + i - part.Ghost[0],
							part.Start[1] + j - part.Ghost[1],
							part.Start[2] + k - part.Ghost[2],
							v,
						}
						out.residual[key] = res.At(i, j, k, v)
					}
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestDecompositionIndependence(t *testing.T) {
	cases := []struct {
		name  string
		dims  int
		cells []int
		procs []int
	}{
		{"2d-2x2", 2, []int{24, 16}, []int{2, 2}},
		{"2d-3x1", 2, []int{20, 12}, []int{3, 1}},
		{"3d-2x1x2", 3, []int{12, 10, 12}, []int{2, 1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := gridConfig(tc.dims, tc.cells, tc.procs)
			cfg.Ceq.Enabled = true
			cfg.Noise.Enabled = true
			// Detector centres depend on subdomain origin, so keep the
			// threshold above anything the smooth pulse produces.
			cfg.Noise.DH = 1
			split := runDecomposed(t, cfg)

			cfg.Grid.Procs = []int{1, 1, 1}[:tc.dims]
			whole := runDecomposed(t, cfg)

			assert.Equal(t, whole.red, split.red)
			if diff := cmp.Diff(whole.residual, split.residual, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("residual differs between decompositions (-whole +split):\n%s", diff)
			}
		})
	}
}
