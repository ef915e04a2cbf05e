package solver

import (
	"fmt"

	"github.com/notargets/FVKernel/config"
)

// Point is a primitive state at one location.
type Point struct {
	Rho float64
	Vel [3]float64
	P   float64
	// Y holds species mass fractions. Nil puts all mass in the first species.
	Y []float64
}

// InitFunc returns the state at a cell centre.
type InitFunc func(x [3]float64) Point

// CellCenter is the physical position of local cell (i,j,k).
func (e *evaluator) CellCenter(i, j, k int) (x [3]float64) {
	p := e.part
	for d, n := range [3]int{i, j, k} {
		if d >= p.Dims {
			continue
		}
		x[d] = (float64(p.Start[d]+n-p.Ghost[d]) + 0.5) * e.mesh.Dx[d]
	}
	return x
}

// Initialize writes the conserved interior state from fn. Ceq channels are
// zeroed; ghosts are left for PreSim and the boundary fill.
func (e *evaluator) Initialize(fn InitFunc) error {
	layout := e.set.Layout
	state := e.set.State
	box := e.mesh.Interior
	y := make([]float64, layout.NumSpecies)
	for k := box.Lo[2]; k < box.Hi[2]; k++ {
		for j := box.Lo[1]; j < box.Hi[1]; j++ {
			for i := box.Lo[0]; i < box.Hi[0]; i++ {
				pt := fn(e.CellCenter(i, j, k))
				if err := fractions(pt.Y, y); err != nil {
					return fmt.Errorf("cell (%d,%d,%d): %w", i, j, k, err)
				}
				gamma := e.gas.MixtureGamma(func(s int) float64 { return y[s] })
				var ke float64
				for d := 0; d < layout.Dims; d++ {
					state.Set(i, j, k, layout.Momentum(d), pt.Rho*pt.Vel[d])
					ke += pt.Vel[d] * pt.Vel[d]
				}
				state.Set(i, j, k, layout.Energy(), pt.P/(gamma-1)+0.5*pt.Rho*ke)
				for s := range y {
					state.Set(i, j, k, layout.Species(s), pt.Rho*y[s])
				}
				for n := 0; n < layout.NumCeqChannels(); n++ {
					state.Set(i, j, k, layout.CeqChannel(n), 0)
				}
			}
		}
	}
	return nil
}

func fractions(in, out []float64) error {
	if in == nil {
		clear(out)
		out[0] = 1
		return nil
	}
	if len(in) != len(out) {
		return fmt.Errorf("%w: %d mass fractions for %d species", config.ErrInvalid, len(in), len(out))
	}
	copy(out, in)
	return nil
}
