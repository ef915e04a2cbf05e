// Package halo fills ghost layers of a subdomain from its face neighbors.
//
// Axes are exchanged one after another. Each slab spans the full ghosted
// extent of the other axes, so once the last axis completes the edge and
// corner ghosts hold the values of the diagonal neighbors as well.
package halo

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/notargets/FVKernel/comm"
	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/partitions"
)

// ErrThinSubdomain is returned when a subdomain has fewer cells than the
// ghost width along an exchanged axis.
var ErrThinSubdomain = errors.New("subdomain thinner than ghost width")

// Exchanger synchronizes ghost cells of one rank's fields.
type Exchanger struct {
	part   partitions.Partition
	comm   comm.Communicator
	packer Packer
	logger *zap.Logger
}

// Option configures an Exchanger.
type Option func(*Exchanger)

// WithPacker replaces the default HostPacker.
func WithPacker(p Packer) Option {
	return func(e *Exchanger) { e.packer = p }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exchanger) { e.logger = l }
}

// NewExchanger builds an exchanger for part communicating over c.
func NewExchanger(part partitions.Partition, c comm.Communicator, opts ...Option) (*Exchanger, error) {
	e := &Exchanger{
		part:   part,
		comm:   c,
		packer: HostPacker{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if c.Rank() != part.Rank {
		return nil, fmt.Errorf("communicator rank %d does not own partition %d", c.Rank(), part.Rank)
	}
	for d := 0; d < part.Dims; d++ {
		if part.Cells[d] < part.Ghost[d] && (part.HasNeighbor(d, partitions.Minus) || part.HasNeighbor(d, partitions.Plus)) {
			return nil, fmt.Errorf("%w: axis %d has %d cells, ghost width %d", ErrThinSubdomain, d, part.Cells[d], part.Ghost[d])
		}
	}
	return e, nil
}

// Tag of a message travelling along axis in direction side.
func tag(axis, side int) int {
	return 2*axis + side
}

// SendBox is the interior slab sent across the face (axis, side).
func SendBox(p partitions.Partition, axis, side int) partitions.Box {
	b := p.GhostedBox()
	g, n := p.Ghost[axis], p.Cells[axis]
	if side == partitions.Minus {
		b.Lo[axis], b.Hi[axis] = g, 2*g
	} else {
		b.Lo[axis], b.Hi[axis] = n, n+g
	}
	return b
}

// RecvBox is the ghost slab filled from across the face (axis, side).
func RecvBox(p partitions.Partition, axis, side int) partitions.Box {
	b := p.GhostedBox()
	g, n := p.Ghost[axis], p.Cells[axis]
	if side == partitions.Minus {
		b.Lo[axis], b.Hi[axis] = 0, g
	} else {
		b.Lo[axis], b.Hi[axis] = n+g, n+2*g
	}
	return b
}

// Exchange fills every ghost cell that has a neighbor with the neighbor's
// value at the mirrored position, for every channel of f. Ghosts on
// physical boundaries are left alone. Any failure is fatal to the group.
func (e *Exchanger) Exchange(ctx context.Context, f *field.Field) error {
	if f.Extent != e.part.Extent {
		return fmt.Errorf("%w: field extent %v, subdomain extent %v", field.ErrExtentMismatch, f.Extent, e.part.Extent)
	}
	for axis := 0; axis < e.part.Dims; axis++ {
		if err := e.exchangeAxis(ctx, f, axis); err != nil {
			err = fmt.Errorf("halo exchange axis %d: %w", axis, err)
			e.comm.Abort(err)
			return err
		}
	}
	return nil
}

func (e *Exchanger) exchangeAxis(ctx context.Context, f *field.Field, axis int) error {
	var (
		reqs     []*comm.Request
		recvBufs [2][]float64
	)
	for side := partitions.Minus; side <= partitions.Plus; side++ {
		peer := e.part.Neighbors[axis][side]
		if peer == partitions.NoNeighbor {
			continue
		}
		// from the minus neighbor arrives what travels in the plus direction
		rbox := RecvBox(e.part, axis, side)
		recvBufs[side] = make([]float64, BufferLen(rbox, f.NV))
		reqs = append(reqs, e.comm.Irecv(ctx, peer, tag(axis, 1-side), recvBufs[side]))

		sbox := SendBox(e.part, axis, side)
		sendBuf := make([]float64, BufferLen(sbox, f.NV))
		if err := e.packer.Pack(f, sbox, sendBuf); err != nil {
			return fmt.Errorf("pack side %d: %w", side, err)
		}
		reqs = append(reqs, e.comm.Isend(ctx, peer, tag(axis, side), sendBuf))
	}
	if len(reqs) == 0 {
		return nil
	}
	if err := comm.WaitAll(reqs...); err != nil {
		return err
	}
	for side := partitions.Minus; side <= partitions.Plus; side++ {
		if recvBufs[side] == nil {
			continue
		}
		if err := e.packer.Unpack(f, RecvBox(e.part, axis, side), recvBufs[side]); err != nil {
			return fmt.Errorf("unpack side %d: %w", side, err)
		}
	}
	e.logger.Debug("halo axis exchanged",
		zap.Int("rank", e.part.Rank),
		zap.Int("axis", axis),
		zap.Int("messages", len(reqs)))
	return nil
}
