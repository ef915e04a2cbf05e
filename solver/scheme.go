// Package solver assembles the kernels into a residual evaluator with a fixed
// lifecycle: PreSim once, then PreStep, Compute and PostStep per Runge-Kutta
// stage, and PostSim once at the end.
package solver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/notargets/FVKernel/comm"
	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/halo"
	"github.com/notargets/FVKernel/kernels"
	"github.com/notargets/FVKernel/partitions"
)

// ErrLifecycle is returned when lifecycle calls arrive out of order.
var ErrLifecycle = errors.New("lifecycle call out of order")

// Scheme is a residual evaluator driven by an external time integrator.
//
// Between PreStep and Compute the integrator fills physical-boundary ghost
// cells of the state. Compute is the only call that writes the residual; it
// writes every interior cell of every channel and never writes the state.
type Scheme interface {
	Name() string
	PreSim(ctx context.Context) error
	PreStep(ctx context.Context) error
	Compute(ctx context.Context) error
	PostStep(ctx context.Context) error
	PostSim(ctx context.Context) error

	// Initialize writes the interior state from a primitive field.
	Initialize(fn InitFunc) error
	CellCenter(i, j, k int) [3]float64

	Fields() *field.Set
	Mesh() kernels.Mesh
	// Reductions returns the global maxima from the latest Compute.
	Reductions() kernels.Reductions
	// SetTimeStep sets the step used by the noise filter.
	SetTimeStep(dt float64)
}

// Option configures a scheme.
type Option func(*options)

type options struct {
	logger *zap.Logger
	packer halo.Packer
}

// WithLogger attaches a logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPacker selects how halo slabs are staged.
func WithPacker(p halo.Packer) Option {
	return func(o *options) { o.packer = p }
}

// New picks the Cartesian variant matching the configured dimension.
func New(cfg config.Config, part partitions.Partition, c comm.Communicator, opts ...Option) (Scheme, error) {
	var (
		s   Scheme
		err error
	)
	switch cfg.Grid.Dims {
	case 2:
		s, err = NewCart2D(cfg, part, c, opts...)
	case 3:
		s, err = NewCart3D(cfg, part, c, opts...)
	default:
		return nil, fmt.Errorf("%w: no scheme for %d dimensions", config.ErrInvalid, cfg.Grid.Dims)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Cart2D is the two dimensional Cartesian scheme.
type Cart2D struct {
	*evaluator
}

// NewCart2D builds a two dimensional scheme for part.
func NewCart2D(cfg config.Config, part partitions.Partition, c comm.Communicator, opts ...Option) (*Cart2D, error) {
	if cfg.Grid.Dims != 2 || part.Dims != 2 {
		return nil, fmt.Errorf("%w: cart2d needs a 2D grid, got %d", config.ErrInvalid, cfg.Grid.Dims)
	}
	ev, err := newEvaluator(cfg, part, c, opts...)
	if err != nil {
		return nil, err
	}
	return &Cart2D{evaluator: ev}, nil
}

func (s *Cart2D) Name() string { return "cart2d" }

// Cart3D is the three dimensional Cartesian scheme.
type Cart3D struct {
	*evaluator
}

// NewCart3D builds a three dimensional scheme for part.
func NewCart3D(cfg config.Config, part partitions.Partition, c comm.Communicator, opts ...Option) (*Cart3D, error) {
	if cfg.Grid.Dims != 3 || part.Dims != 3 {
		return nil, fmt.Errorf("%w: cart3d needs a 3D grid, got %d", config.ErrInvalid, cfg.Grid.Dims)
	}
	ev, err := newEvaluator(cfg, part, c, opts...)
	if err != nil {
		return nil, err
	}
	return &Cart3D{evaluator: ev}, nil
}

func (s *Cart3D) Name() string { return "cart3d" }
