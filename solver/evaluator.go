package solver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/notargets/FVKernel/comm"
	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/halo"
	"github.com/notargets/FVKernel/kernels"
	"github.com/notargets/FVKernel/partitions"
)

type phase int

const (
	phaseCreated phase = iota
	phaseRunning
	phaseFinished
)

// evaluator carries the state shared by the Cartesian variants.
type evaluator struct {
	cfg    config.Config
	part   partitions.Partition
	comm   comm.Communicator
	logger *zap.Logger

	set       *field.Set
	exchanger *halo.Exchanger
	pool      *kernels.Pool
	mesh      kernels.Mesh
	gas       kernels.Gas

	prim     *kernels.Primitives
	flux     *kernels.Flux
	ceqFaces *kernels.CeqFaces
	noise    *kernels.Noise

	ceqParams kernels.CeqParams
	dt        float64

	red    kernels.Reductions
	phase  phase
	stages int
}

func newEvaluator(cfg config.Config, part partitions.Partition, c comm.Communicator, opts ...Option) (*evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: zap.NewNop(), packer: halo.HostPacker{}}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(zap.Int("rank", part.Rank))

	ex, err := halo.NewExchanger(part, c, halo.WithPacker(o.packer), halo.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("halo exchanger: %w", err)
	}

	layout := field.NewLayout(cfg)
	mesh := kernels.NewMesh(part, cfg.Grid.Dx())
	ev := &evaluator{
		cfg:       cfg,
		part:      part,
		comm:      c,
		logger:    logger,
		set:       field.Allocate(part, layout),
		exchanger: ex,
		pool:      kernels.NewPool(cfg.Runtime.Workers),
		mesh:      mesh,
		gas:       kernels.NewGas(cfg.Species),
		prim:      kernels.NewPrimitives(mesh.N),
		flux:      kernels.NewFlux(mesh.N),
		ceqParams: kernels.CeqParams{
			Alpha:   cfg.Ceq.Alpha,
			Beta:    cfg.Ceq.Beta,
			Kappa:   cfg.Ceq.Kappa,
			Epsilon: cfg.Ceq.Epsilon,
		},
		dt: cfg.Runtime.TimeStep,
	}
	if cfg.Ceq.Enabled {
		ev.ceqFaces = kernels.NewCeqFaces(mesh.N, mesh.Dims)
	}
	if cfg.Noise.Enabled {
		ev.noise = kernels.NewNoise(mesh)
	}
	return ev, nil
}

func (e *evaluator) Fields() *field.Set { return e.set }

func (e *evaluator) Mesh() kernels.Mesh { return e.mesh }

func (e *evaluator) Reductions() kernels.Reductions { return e.red }

func (e *evaluator) SetTimeStep(dt float64) { e.dt = dt }

func (e *evaluator) expect(p phase, call string) error {
	if e.phase != p {
		return fmt.Errorf("%w: %s in phase %d", ErrLifecycle, call, e.phase)
	}
	return nil
}

// PreSim refreshes the ghosts of the initial state.
func (e *evaluator) PreSim(ctx context.Context) error {
	if err := e.expect(phaseCreated, "PreSim"); err != nil {
		return err
	}
	e.logger.Info("simulation starting",
		zap.String("name", e.cfg.Name),
		zap.Ints("cells", e.part.Cells[:e.part.Dims]),
		zap.Ints("start", e.part.Start[:e.part.Dims]),
		zap.Int("channels", e.set.Layout.NumVars()),
		zap.Int("workers", e.pool.Workers()),
		zap.Bool("ceq", e.cfg.Ceq.Enabled),
		zap.Bool("noise", e.cfg.Noise.Enabled))
	if err := e.exchanger.Exchange(ctx, e.set.State); err != nil {
		return err
	}
	e.phase = phaseRunning
	return nil
}

// PreStep refreshes state ghosts shared with neighbors.
func (e *evaluator) PreStep(ctx context.Context) error {
	if err := e.expect(phaseRunning, "PreStep"); err != nil {
		return err
	}
	return e.exchanger.Exchange(ctx, e.set.State)
}

// Compute evaluates the residual of the current state.
func (e *evaluator) Compute(ctx context.Context) error {
	if err := e.expect(phaseRunning, "Compute"); err != nil {
		return err
	}
	var (
		layout = e.set.Layout
		state  = e.set.State
		res    = e.set.Residual
		diag   = e.set.Diagnostics
	)

	if err := e.prim.Compute(ctx, e.pool, e.mesh, layout, e.gas, state); err != nil {
		return fmt.Errorf("primitives: %w", err)
	}
	if err := kernels.WENOResidual(ctx, e.pool, e.mesh, layout, state, e.prim, e.flux, res); err != nil {
		return fmt.Errorf("weno: %w", err)
	}

	local, err := kernels.LocalReductions(ctx, e.pool, e.mesh, e.prim)
	if err != nil {
		return fmt.Errorf("reductions: %w", err)
	}
	vals := local.Pack(e.mesh.Dims)
	if err := e.comm.AllReduceMax(ctx, vals); err != nil {
		e.comm.Abort(err)
		return fmt.Errorf("reductions: %w", err)
	}
	e.red = kernels.UnpackReductions(vals, e.mesh.Dims)

	if e.cfg.Ceq.Enabled {
		if err := e.computeCeq(ctx, layout, state, res, diag); err != nil {
			return fmt.Errorf("ceq: %w", err)
		}
	}
	if e.cfg.Noise.Enabled {
		params := kernels.NoiseParams{DH: e.cfg.Noise.DH, Coff: e.cfg.Noise.Coff, Dt: e.dt}
		if err := kernels.NoiseFilter(ctx, e.pool, e.mesh, layout, params, e.noise, state, res, diag); err != nil {
			return fmt.Errorf("noise filter: %w", err)
		}
	}
	return nil
}

func (e *evaluator) computeCeq(ctx context.Context, layout field.Layout, state, res, diag *field.Field) error {
	if err := kernels.CeqIndicator(ctx, e.pool, e.mesh, layout, e.prim, diag); err != nil {
		return err
	}
	if err := kernels.CeqRelax(ctx, e.pool, e.mesh, layout, e.ceqParams, e.red.MaxWaveSpeed, state, diag, res); err != nil {
		return err
	}
	if err := kernels.CeqFaceTensors(ctx, e.pool, e.mesh, layout, state, e.prim, e.ceqFaces); err != nil {
		return err
	}
	return kernels.CeqApply(ctx, e.pool, e.mesh, layout, e.ceqParams, e.prim, e.ceqFaces, res, diag)
}

// PostStep closes a stage.
func (e *evaluator) PostStep(ctx context.Context) error {
	if err := e.expect(phaseRunning, "PostStep"); err != nil {
		return err
	}
	e.stages++
	e.logger.Debug("stage complete",
		zap.Int("stage", e.stages),
		zap.Float64("max_wave_speed", e.red.MaxWaveSpeed),
		zap.Float64("max_grad_rho", e.red.MaxGradRho))
	return ctx.Err()
}

// PostSim ends the run.
func (e *evaluator) PostSim(ctx context.Context) error {
	if err := e.expect(phaseRunning, "PostSim"); err != nil {
		return err
	}
	e.phase = phaseFinished
	e.logger.Info("simulation finished", zap.Int("stages", e.stages))
	return nil
}
