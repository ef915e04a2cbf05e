package kernels

import (
	"context"

	"github.com/notargets/FVKernel/field"
)

// Primitives are cell values derived from the conserved state, over the
// whole ghosted subdomain.
type Primitives struct {
	Rho   []float64
	P     []float64
	Gamma []float64
	E     []float64 // specific internal energy
	Vel   [3][]float64
}

// NewPrimitives allocates storage for n cells.
func NewPrimitives(n int) *Primitives {
	pr := &Primitives{
		Rho:   make([]float64, n),
		P:     make([]float64, n),
		Gamma: make([]float64, n),
		E:     make([]float64, n),
	}
	for d := range pr.Vel {
		pr.Vel[d] = make([]float64, n)
	}
	return pr
}

// Compute derives density, mixture gamma, pressure, velocity and specific
// internal energy at every ghosted cell.
func (pr *Primitives) Compute(ctx context.Context, pool *Pool, mesh Mesh, layout field.Layout, gas Gas, state *field.Field) error {
	return pool.For(ctx, mesh.Ghosted, func(i, j, k int) {
		c := mesh.Cell(i, j, k)
		var rho float64
		for s := 0; s < layout.NumSpecies; s++ {
			rho += state.Data[layout.Species(s)*state.N+c]
		}
		gamma := gas.MixtureGamma(func(s int) float64 {
			return state.Data[layout.Species(s)*state.N+c] / rho
		})
		var ke float64
		for d := 0; d < 3; d++ {
			if d >= layout.Dims {
				pr.Vel[d][c] = 0
				continue
			}
			m := state.Data[layout.Momentum(d)*state.N+c]
			pr.Vel[d][c] = m / rho
			ke += m * m
		}
		ke *= 0.5 / rho
		energy := state.Data[layout.Energy()*state.N+c]

		pr.Rho[c] = rho
		pr.Gamma[c] = gamma
		pr.P[c] = (gamma - 1) * (energy - ke)
		pr.E[c] = (energy - ke) / rho
	})
}
