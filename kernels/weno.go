package kernels

import (
	"context"

	"github.com/notargets/FVKernel/field"
)

const wenoEps = 1e-6

// ReconstructFace returns the fifth order WENO value at the face between f3
// and f4 from the upwind-ordered stencil f1..f5.
func ReconstructFace(f1, f2, f3, f4, f5 float64) float64 {
	b1 := 13.0/12.0*sq(f1-2*f2+f3) + 0.25*sq(f1-4*f2+3*f3)
	b2 := 13.0/12.0*sq(f2-2*f3+f4) + 0.25*sq(f2-f4)
	b3 := 13.0/12.0*sq(f3-2*f4+f5) + 0.25*sq(3*f3-4*f4+f5)

	w1 := 0.1 / sq(wenoEps+b1)
	w2 := 0.6 / sq(wenoEps+b2)
	w3 := 0.3 / sq(wenoEps+b3)

	p1 := (2*f1 - 7*f2 + 11*f3) / 6
	p2 := (-f2 + 5*f3 + 2*f4) / 6
	p3 := (2*f3 + 5*f4 - f5) / 6

	return (w1*p1 + w2*p2 + w3*p3) / (w1 + w2 + w3)
}

// FaceVelocity is the fourth order average of u at the plus face of cell c
// along stride s.
func FaceVelocity(u []float64, c, s int) float64 {
	return (-u[c+2*s] + 7*u[c+s] + 7*u[c] - u[c-s]) / 12
}

// Flux is scratch for one face flux array per axis.
type Flux struct {
	Face [3][]float64
}

// NewFlux allocates face flux storage for n cells.
func NewFlux(n int) *Flux {
	var f Flux
	for d := range f.Face {
		f.Face[d] = make([]float64, n)
	}
	return &f
}

// WENOResidual overwrites the interior residual of every conserved channel
// with the negative divergence of the WENO face fluxes, then subtracts the
// fourth order pressure gradient from the momentum channels.
func WENOResidual(ctx context.Context, pool *Pool, mesh Mesh, layout field.Layout,
	state *field.Field, prim *Primitives, flux *Flux, residual *field.Field) error {

	energy := layout.Energy()
	for v := 0; v < layout.NumConserved(); v++ {
		q := state.Var(v)
		withP := v == energy
		value := func(c int) float64 {
			if withP {
				return q[c] + prim.P[c]
			}
			return q[c]
		}
		for d := 0; d < mesh.Dims; d++ {
			s := mesh.Stride[d]
			u := prim.Vel[d]
			face := flux.Face[d]
			dx := mesh.Dx[d]
			err := pool.For(ctx, mesh.FaceBox(d), func(i, j, k int) {
				c := mesh.Cell(i, j, k)
				ur := FaceVelocity(u, c, s)
				var w float64
				if ur < 0 {
					w = ReconstructFace(value(c+3*s), value(c+2*s), value(c+s), value(c), value(c-s))
				} else {
					w = ReconstructFace(value(c-2*s), value(c-s), value(c), value(c+s), value(c+2*s))
				}
				face[c] = ur * w / dx
			})
			if err != nil {
				return err
			}
		}

		r := residual.Var(v)
		err := pool.For(ctx, mesh.Interior, func(i, j, k int) {
			c := mesh.Cell(i, j, k)
			var div float64
			for d := 0; d < mesh.Dims; d++ {
				div += flux.Face[d][c] - flux.Face[d][c-mesh.Stride[d]]
			}
			r[c] = -div
		})
		if err != nil {
			return err
		}
	}

	return pool.For(ctx, mesh.Interior, func(i, j, k int) {
		c := mesh.Cell(i, j, k)
		for d := 0; d < mesh.Dims; d++ {
			residual.Data[layout.Momentum(d)*residual.N+c] -= d4(prim.P, c, mesh.Stride[d], mesh.Dx[d])
		}
	})
}
