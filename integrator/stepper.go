package integrator

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/kernels"
	"github.com/notargets/FVKernel/solver"
)

// Stepper drives one rank's scheme through whole time steps.
type Stepper struct {
	scheme solver.Scheme
	method Method
	pool   *kernels.Pool
	logger *zap.Logger

	du   *field.Field // stage increment, same layout as the residual
	dt   float64
	cfl  float64
	hmin float64
	time float64
	step int
}

// Option configures a stepper.
type Option func(*Stepper)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stepper) { s.logger = l }
}

// NewStepper wraps scheme with the integrator named in cfg.
func NewStepper(scheme solver.Scheme, cfg config.Config, opts ...Option) (*Stepper, error) {
	m, err := MethodByName(cfg.Runtime.Integrator)
	if err != nil {
		return nil, err
	}
	if !(cfg.Runtime.TimeStep > 0) {
		return nil, fmt.Errorf("time step %g: the first step needs a positive dt", cfg.Runtime.TimeStep)
	}
	mesh := scheme.Mesh()
	hmin := math.Inf(1)
	for d := 0; d < mesh.Dims; d++ {
		hmin = math.Min(hmin, mesh.Dx[d])
	}
	s := &Stepper{
		scheme: scheme,
		method: m,
		pool:   kernels.NewPool(cfg.Runtime.Workers),
		logger: zap.NewNop(),
		du:     field.New(scheme.Fields().Residual.Extent, scheme.Fields().Residual.NV),
		dt:     cfg.Runtime.TimeStep,
		cfl:    cfg.Runtime.CFL,
		hmin:   hmin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Stepper) Time() float64 { return s.time }

func (s *Stepper) TimeStep() float64 { return s.dt }

func (s *Stepper) Steps() int { return s.step }

// Run calls PreSim, takes steps time steps and calls PostSim.
func (s *Stepper) Run(ctx context.Context, steps int) error {
	if err := s.scheme.PreSim(ctx); err != nil {
		return fmt.Errorf("pre-simulation: %w", err)
	}
	for n := 0; n < steps; n++ {
		if err := s.Step(ctx); err != nil {
			return fmt.Errorf("step %d: %w", s.step, err)
		}
	}
	return s.scheme.PostSim(ctx)
}

// Step advances the state by one time step. With a CFL number set, dt is
// taken from the wave speed reduced in the previous step.
func (s *Stepper) Step(ctx context.Context) error {
	if s.cfl > 0 && s.step > 0 {
		smax := s.scheme.Reductions().MaxWaveSpeed
		if !(smax > 0) || math.IsInf(smax, 0) {
			return fmt.Errorf("wave speed %g does not give a time step", smax)
		}
		s.dt = s.cfl * s.hmin / smax
	}
	s.scheme.SetTimeStep(s.dt)

	set := s.scheme.Fields()
	s.du.Zero()
	for stage := 0; stage < s.method.Stages(); stage++ {
		if err := s.scheme.PreStep(ctx); err != nil {
			return fmt.Errorf("stage %d: %w", stage, err)
		}
		FillZeroGradient(set.Part, set.State)
		if err := s.scheme.Compute(ctx); err != nil {
			return fmt.Errorf("stage %d: %w", stage, err)
		}
		if err := s.update(ctx, s.method.A[stage], s.method.B[stage]); err != nil {
			return fmt.Errorf("stage %d: %w", stage, err)
		}
		if err := s.scheme.PostStep(ctx); err != nil {
			return fmt.Errorf("stage %d: %w", stage, err)
		}
	}
	s.time += s.dt
	s.step++

	red := s.scheme.Reductions()
	s.logger.Debug("step",
		zap.Int("step", s.step),
		zap.Float64("time", s.time),
		zap.Float64("dt", s.dt),
		zap.Float64("cfl", s.dt*red.MaxWaveSpeed/s.hmin),
		zap.Float64("max_grad_rho", red.MaxGradRho))
	return nil
}

func (s *Stepper) update(ctx context.Context, a, b float64) error {
	set := s.scheme.Fields()
	state, res := set.State, set.Residual
	mesh := s.scheme.Mesh()
	dt := s.dt
	return s.pool.For(ctx, mesh.Interior, func(i, j, k int) {
		c := mesh.Cell(i, j, k)
		for v := 0; v < res.NV; v++ {
			idx := v*res.N + c
			s.du.Data[idx] = a*s.du.Data[idx] + dt*res.Data[idx]
			state.Data[idx] += b * s.du.Data[idx]
		}
	})
}
