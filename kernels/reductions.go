package kernels

import (
	"context"
	"math"
)

// Reductions are the globally reduced scalars of one stage.
type Reductions struct {
	MaxWaveSpeed float64
	MaxGradRho   float64
	// MaxTransverse[d] is the largest density gradient magnitude with the
	// axis d component removed.
	MaxTransverse [3]float64
}

// Pack flattens the reductions of dims axes for an all-reduce.
func (r Reductions) Pack(dims int) []float64 {
	out := []float64{r.MaxWaveSpeed, r.MaxGradRho}
	return append(out, r.MaxTransverse[:dims]...)
}

// UnpackReductions is the inverse of Pack.
func UnpackReductions(v []float64, dims int) Reductions {
	r := Reductions{MaxWaveSpeed: v[0], MaxGradRho: v[1]}
	copy(r.MaxTransverse[:dims], v[2:2+dims])
	return r
}

// LocalReductions computes this subdomain's maxima of the wave speed
// |u|+a and of the fourth order density gradient magnitudes.
func LocalReductions(ctx context.Context, pool *Pool, mesh Mesh, prim *Primitives) (Reductions, error) {
	dims := mesh.Dims
	acc, err := pool.Max(ctx, mesh.Interior, 2+dims, func(i, j, k int, acc []float64) {
		c := mesh.Cell(i, j, k)
		rho := prim.Rho[c]

		var u2 float64
		var grad [3]float64
		var g2 float64
		for d := 0; d < dims; d++ {
			u2 += sq(prim.Vel[d][c])
			grad[d] = d4(prim.Rho, c, mesh.Stride[d], mesh.Dx[d])
			g2 += sq(grad[d])
		}
		s := math.Sqrt(prim.Gamma[c]*prim.P[c]/rho) + math.Sqrt(u2)
		acc[0] = math.Max(acc[0], s)
		acc[1] = math.Max(acc[1], math.Sqrt(g2))
		for d := 0; d < dims; d++ {
			acc[2+d] = math.Max(acc[2+d], math.Sqrt(math.Max(g2-sq(grad[d]), 0)))
		}
	})
	if err != nil {
		return Reductions{}, err
	}
	return UnpackReductions(acc, dims), nil
}
