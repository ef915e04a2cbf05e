package main

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/FVKernel/comm"
	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/halo"
	"github.com/notargets/FVKernel/integrator"
	"github.com/notargets/FVKernel/partitions"
	"github.com/notargets/FVKernel/problems"
	"github.com/notargets/FVKernel/solver"
	"github.com/notargets/FVKernel/utils"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		steps      int
		problem    string
		device     string
		integ      string
		cfl        float64
		noiseOn    bool
		ceqEnabled bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance a named problem in time",
		Long: `Decomposes the grid, starts one goroutine per rank and advances the
configured problem with a low-storage Runge-Kutta integrator. Non-periodic
faces use zero-gradient ghost cells.

Example:
  fvkernel run -c pulse.yaml --steps 50 --problem sod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("steps") {
				a.cfg.Runtime.Steps = steps
			}
			if flags.Changed("problem") {
				a.cfg.Runtime.Problem = problem
			}
			if flags.Changed("device") {
				a.cfg.Runtime.Device = device
			}
			if flags.Changed("integrator") {
				a.cfg.Runtime.Integrator = integ
			}
			if flags.Changed("cfl") {
				a.cfg.Runtime.CFL = cfl
			}
			if flags.Changed("noise") {
				a.cfg.Noise.Enabled = noiseOn
			}
			if flags.Changed("ceq") {
				a.cfg.Ceq.Enabled = ceqEnabled
			}
			if err := a.check(); err != nil {
				return err
			}
			sum, err := simulate(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"%s: %d steps to t=%.6g on %d ranks, density [%.6g, %.6g], max wave speed %.6g\n",
				a.cfg.Runtime.Problem, sum.Steps, sum.Time, sum.Ranks, sum.MinRho, sum.MaxRho, sum.MaxWaveSpeed)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&steps, "steps", 0, "number of time steps (overrides runtime.steps)")
	f.StringVar(&problem, "problem", "", fmt.Sprintf("initial condition, one of %v", problems.Names()))
	f.StringVar(&device, "device", "", `halo packing device: "host", "auto" or an OCCA mode`)
	f.StringVar(&integ, "integrator", "", fmt.Sprintf("time integrator, one of %v", integrator.Methods()))
	f.Float64Var(&cfl, "cfl", 0, "CFL number; 0 keeps the fixed runtime.dt")
	f.BoolVar(&noiseOn, "noise", false, "enable the noise filter")
	f.BoolVar(&ceqEnabled, "ceq", false, "enable Ceq dissipation")
	return cmd
}

// summary is what a run reports once every rank has finished.
type summary struct {
	Ranks        int
	Steps        int
	Time         float64
	MinRho       float64
	MaxRho       float64
	MaxWaveSpeed float64
}

// newPacker returns the halo packer selected by device and a function
// releasing whatever it allocated.
func newPacker(device string, logger *zap.Logger) (halo.Packer, func(), error) {
	if device == "host" {
		return halo.HostPacker{}, func() {}, nil
	}
	dev, err := utils.CreateDevice(device)
	if err != nil {
		return nil, nil, err
	}
	dp, err := halo.NewDevicePacker(dev)
	if err != nil {
		dev.Free()
		return nil, nil, err
	}
	logger.Info("halo packing on device", zap.String("mode", dev.Mode()))
	return halo.Serialize(dp), func() {
		dp.Free()
		dev.Free()
	}, nil
}

func simulate(ctx context.Context, cfg config.Config, logger *zap.Logger) (summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	layout, err := partitions.BuildLayout(partitions.NewGlobalGrid(cfg.Grid))
	if err != nil {
		return summary{}, err
	}
	initial, err := problems.Lookup(cfg)
	if err != nil {
		return summary{}, err
	}
	packer, release, err := newPacker(cfg.Runtime.Device, logger)
	if err != nil {
		return summary{}, err
	}
	defer release()

	world, err := comm.NewWorld(layout.Grid.NumRanks(), logger)
	if err != nil {
		return summary{}, err
	}
	logger.Info("starting run",
		zap.String("name", cfg.Name),
		zap.String("problem", cfg.Runtime.Problem),
		zap.String("integrator", cfg.Runtime.Integrator),
		zap.Int("ranks", world.Size()),
		zap.Int("steps", cfg.Runtime.Steps))

	var mu sync.Mutex
	sum := summary{Ranks: world.Size(), MinRho: math.Inf(1), MaxRho: math.Inf(-1)}
	err = world.Run(ctx, func(ctx context.Context, c comm.Communicator) error {
		part := layout.Partitions[c.Rank()]
		s, err := solver.New(cfg, part, c, solver.WithLogger(logger), solver.WithPacker(packer))
		if err != nil {
			return err
		}
		if err := s.Initialize(initial); err != nil {
			return err
		}
		st, err := integrator.NewStepper(s, cfg, integrator.WithLogger(logger.With(zap.Int("rank", c.Rank()))))
		if err != nil {
			return err
		}
		if err := st.Run(ctx, cfg.Runtime.Steps); err != nil {
			return err
		}

		rho := density(s)
		mu.Lock()
		defer mu.Unlock()
		sum.Steps = st.Steps()
		sum.Time = st.Time()
		sum.MaxWaveSpeed = s.Reductions().MaxWaveSpeed
		sum.MinRho = math.Min(sum.MinRho, floats.Min(rho))
		sum.MaxRho = math.Max(sum.MaxRho, floats.Max(rho))
		return nil
	})
	if err != nil {
		// Ranks released by the abort report ErrAborted; the cause is the
		// failure that started it.
		if cause := world.Err(); cause != nil {
			return summary{}, cause
		}
		return summary{}, err
	}
	logger.Info("run finished",
		zap.Int("steps", sum.Steps),
		zap.Float64("time", sum.Time),
		zap.Float64("min_rho", sum.MinRho),
		zap.Float64("max_rho", sum.MaxRho))
	return sum, nil
}

// density sums the species channels over the owned cells.
func density(s solver.Scheme) []float64 {
	set := s.Fields()
	mesh := s.Mesh()
	box := mesh.Interior
	out := make([]float64, 0, box.Count())
	for k := box.Lo[2]; k < box.Hi[2]; k++ {
		for j := box.Lo[1]; j < box.Hi[1]; j++ {
			for i := box.Lo[0]; i < box.Hi[0]; i++ {
				var rho float64
				for sp := 0; sp < set.Layout.NumSpecies; sp++ {
					rho += set.State.At(i, j, k, set.Layout.Species(sp))
				}
				out = append(out, rho)
			}
		}
	}
	return out
}
