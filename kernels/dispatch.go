// Package kernels holds the per-cell passes that turn a ghosted state array
// into a residual: primitive variables, WENO fluxes, global reductions, the
// Ceq artificial dissipation and the noise filter.
//
// Every pass is a data-parallel dispatch over an index box. Each output cell
// is written by exactly one invocation, so passes need no locking.
package kernels

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/FVKernel/partitions"
)

// Pool splits index boxes across a fixed number of workers.
type Pool struct {
	workers int
}

// NewPool returns a pool with n workers, at least one.
func NewPool(n int) *Pool {
	return &Pool{workers: max(n, 1)}
}

func (p *Pool) Workers() int { return p.workers }

// split cuts box into at most p.workers slabs along its outermost axis with
// more than one cell.
func (p *Pool) split(box partitions.Box) []partitions.Box {
	size := box.Size()
	axis := 2
	for axis > 0 && size[axis] <= 1 {
		axis--
	}
	n := min(p.workers, size[axis])
	parts := make([]partitions.Box, 0, n)
	for c := 0; c < n; c++ {
		count, start := partitions.Split(size[axis], n, c)
		b := box
		b.Lo[axis] = box.Lo[axis] + start
		b.Hi[axis] = b.Lo[axis] + count
		parts = append(parts, b)
	}
	return parts
}

// For calls fn once for every cell of box.
func (p *Pool) For(ctx context.Context, box partitions.Box, fn func(i, j, k int)) error {
	if box.Empty() {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range p.split(box) {
		g.Go(func() error {
			for k := b.Lo[2]; k < b.Hi[2]; k++ {
				for j := b.Lo[1]; j < b.Hi[1]; j++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					for i := b.Lo[0]; i < b.Hi[0]; i++ {
						fn(i, j, k)
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Max runs fn over box with a per-worker accumulator of n values, initially
// -Inf, and returns the element-wise maximum over workers.
func (p *Pool) Max(ctx context.Context, box partitions.Box, n int, fn func(i, j, k int, acc []float64)) ([]float64, error) {
	out := make([]float64, n)
	for m := range out {
		out[m] = math.Inf(-1)
	}
	if box.Empty() {
		return out, nil
	}
	parts := p.split(box)
	partial := make([][]float64, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	for w, b := range parts {
		acc := append([]float64(nil), out...)
		partial[w] = acc
		g.Go(func() error {
			for k := b.Lo[2]; k < b.Hi[2]; k++ {
				for j := b.Lo[1]; j < b.Hi[1]; j++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					for i := b.Lo[0]; i < b.Hi[0]; i++ {
						fn(i, j, k, acc)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	column := make([]float64, len(parts))
	for m := range out {
		for w := range partial {
			column[w] = partial[w][m]
		}
		out[m] = floats.Max(column)
	}
	return out, nil
}
