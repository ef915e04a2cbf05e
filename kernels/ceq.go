package kernels

import (
	"context"
	"math"

	"github.com/notargets/FVKernel/field"
)

// degenerateCeq bounds the squared directional channel magnitude below which
// a face carries no Ceq flux.
const degenerateCeq = 1e-6

// CeqParams are the dissipation coefficients.
type CeqParams struct {
	Alpha   float64 // anisotropic flux weight
	Beta    float64 // isotropic flux weight
	Kappa   float64 // relaxation diffusion
	Epsilon float64 // relaxation time scale
}

// CeqIndicator writes the relaxation targets into the diagnostics: the shock
// magnitude, the contact magnitude and the raw density gradient components.
func CeqIndicator(ctx context.Context, pool *Pool, mesh Mesh, layout field.Layout,
	prim *Primitives, diag *field.Field) error {

	dims := mesh.Dims
	return pool.For(ctx, mesh.Interior, func(i, j, k int) {
		c := mesh.Cell(i, j, k)
		var dr, de [3]float64
		var divu, grad2, dedr float64
		for d := 0; d < dims; d++ {
			s, dx := mesh.Stride[d], mesh.Dx[d]
			dr[d] = d4(prim.Rho, c, s, dx)
			de[d] = d4(prim.E, c, s, dx)
			divu += d4(prim.Vel[d], c, s, dx)
			grad2 += dr[d] * dr[d]
			dedr += dr[d] * de[d]
		}
		rgrad := math.Sqrt(grad2)
		var i1, i2 float64
		if dedr*grad2 < 0 {
			i1 = 1
		}
		if divu < 0 {
			i2 = 1
		}
		diag.Data[layout.DiagTarget(0)*diag.N+c] = (1 - i1) * i2 * rgrad
		diag.Data[layout.DiagTarget(1)*diag.N+c] = i1 * rgrad
		for d := 0; d < dims; d++ {
			diag.Data[layout.DiagTarget(2+d)*diag.N+c] = dr[d]
		}
	})
}

// CeqRelax writes the residual of every Ceq channel: relaxation toward the
// target at rate smax/(eps*L) plus kappa*smax*L times the channel Laplacian.
// L is validated positive with the configuration.
func CeqRelax(ctx context.Context, pool *Pool, mesh Mesh, layout field.Layout, params CeqParams,
	smax float64, state, diag, residual *field.Field) error {

	rate := smax / (params.Epsilon * mesh.L)
	diffusion := params.Kappa * smax * mesh.L
	for n := 0; n < layout.NumCeqChannels(); n++ {
		ch := state.Var(layout.CeqChannel(n))
		target := diag.Var(layout.DiagTarget(n))
		r := residual.Var(layout.CeqChannel(n))
		err := pool.For(ctx, mesh.Interior, func(i, j, k int) {
			c := mesh.Cell(i, j, k)
			var lap float64
			for d := 0; d < mesh.Dims; d++ {
				s := mesh.Stride[d]
				lap += (ch[c-s] - 2*ch[c] + ch[c+s]) / sq(mesh.Dx[d])
			}
			r[c] = rate*(target[c]-ch[c]) + diffusion*lap
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CeqFaces is per-face scratch. Tensor[d][f] holds component (d,f) of the
// anisotropic tensor on the plus face along d; Iso[d] the isotropic flux.
type CeqFaces struct {
	Tensor [3][3][]float64
	Iso    [3][]float64
}

// NewCeqFaces allocates face storage for n cells.
func NewCeqFaces(n, dims int) *CeqFaces {
	var cf CeqFaces
	for d := 0; d < dims; d++ {
		cf.Iso[d] = make([]float64, n)
		for f := 0; f < dims; f++ {
			cf.Tensor[d][f] = make([]float64, n)
		}
	}
	return &cf
}

// CeqFaceTensors builds, for each axis, the face difference of
// rho*C~*(delta - c c/|c|^2) between the cell and its plus neighbor, and the
// isotropic flux difference of rho*C. Faces where either side has a
// degenerate direction carry zero flux.
func CeqFaceTensors(ctx context.Context, pool *Pool, mesh Mesh, layout field.Layout,
	state *field.Field, prim *Primitives, faces *CeqFaces) error {

	dims := mesh.Dims
	shock := state.Var(layout.CeqShock())
	contact := state.Var(layout.CeqContact())
	var dir [3][]float64
	for d := 0; d < dims; d++ {
		dir[d] = state.Var(layout.CeqDir(d))
	}

	for d := 0; d < dims; d++ {
		s := mesh.Stride[d]
		err := pool.For(ctx, mesh.FaceBox(d), func(i, j, k int) {
			l := mesh.Cell(i, j, k)
			r := l + s
			var magL, magR float64
			for m := 0; m < dims; m++ {
				magL += sq(dir[m][l])
				magR += sq(dir[m][r])
			}
			if magL <= degenerateCeq || magR <= degenerateCeq {
				for f := 0; f < dims; f++ {
					faces.Tensor[d][f][l] = 0
				}
				faces.Iso[d][l] = 0
				return
			}
			scaleL := prim.Rho[l] * contact[l]
			scaleR := prim.Rho[r] * contact[r]
			for f := 0; f < dims; f++ {
				var delta float64
				if f == d {
					delta = 1
				}
				mL := (delta - dir[d][l]*dir[f][l]/magL) * scaleL
				mR := (delta - dir[d][r]*dir[f][r]/magR) * scaleR
				faces.Tensor[d][f][l] = (mR - mL) / 2
			}
			faces.Iso[d][l] = (shock[r]*prim.Rho[r] - shock[l]*prim.Rho[l]) / 2
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// faceGradient is du/dx_f on the plus face along d of cell c.
func faceGradient(mesh Mesh, u []float64, c, d, f int) float64 {
	sd := mesh.Stride[d]
	if f == d {
		return (u[c+sd] - u[c]) / mesh.Dx[d]
	}
	sf := mesh.Stride[f]
	return ((u[c+sf] + u[c+sd+sf]) - (u[c-sf] + u[c+sd-sf])) / (4 * mesh.Dx[f])
}

// CeqApply adds alpha times the anisotropic and beta times the isotropic
// dissipation divergence to each momentum residual and records it in the
// diagnostics.
func CeqApply(ctx context.Context, pool *Pool, mesh Mesh, layout field.Layout, params CeqParams,
	prim *Primitives, faces *CeqFaces, residual, diag *field.Field) error {

	dims := mesh.Dims
	return pool.For(ctx, mesh.Interior, func(i, j, k int) {
		c := mesh.Cell(i, j, k)
		for n := 0; n < dims; n++ {
			u := prim.Vel[n]
			var an, is float64
			for d := 0; d < dims; d++ {
				cl := c - mesh.Stride[d]
				for f := 0; f < dims; f++ {
					gr := faceGradient(mesh, u, c, d, f)
					gl := faceGradient(mesh, u, cl, d, f)
					an += (faces.Tensor[d][f][c]*gr - faces.Tensor[d][f][cl]*gl) / mesh.Dx[d]
					is += (faces.Iso[d][c]*gr - faces.Iso[d][cl]*gl) / mesh.Dx[d]
				}
			}
			diffu := params.Alpha*an + params.Beta*is
			residual.Data[layout.Momentum(n)*residual.N+c] += diffu
			diag.Data[layout.DiagDissipation(n)*diag.N+c] = diffu
		}
	})
}
