package kernels

import (
	"context"
	"math"

	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/partitions"
)

// NoiseParams configure checkerboard detection and removal.
type NoiseParams struct {
	DH   float64 // detection threshold, positive
	Coff float64 // when positive, only cells with |contact Ceq| below Coff are flagged
	Dt   float64 // time step scaling the removal term
}

// Detector geometry: the stencil weight normalisation and the area/volume
// constant under the square root of a.
const (
	noiseNorm2D  = 192.0
	noiseConst2D = 6.0
	noiseNorm3D  = 15840.0
	noiseConst3D = 165.0
)

// CriticalDH is the largest dh at which a checkerboard of the given
// amplitude is still flagged.
func CriticalDH(dims int, amplitude float64) float64 {
	if dims == 2 {
		return 16 * amplitude * 16 / noiseNorm2D
	}
	return 16 * amplitude * 128 / noiseNorm3D
}

// noiseScale returns a = sqrt(const * cell area or volume) and the detector
// normalisation.
func noiseScale(mesh Mesh) (a, norm float64) {
	if mesh.Dims == 2 {
		return math.Sqrt(noiseConst2D * mesh.Dx[0] * mesh.Dx[1]), noiseNorm2D
	}
	return math.Sqrt(noiseConst3D * mesh.Dx[0] * mesh.Dx[1] * mesh.Dx[2]), noiseNorm3D
}

// noiseWeight is the detector weight of the neighbor at offset o from the
// center. In 2D: corners 1, edges 2, center -12. In 3D: faces 8, edges and
// corners 2, center -88. Both sum to zero.
func noiseWeight(dims int, o [3]int) float64 {
	nonzero := 0
	for d := 0; d < dims; d++ {
		if o[d] != 0 {
			nonzero++
		}
	}
	if dims == 2 {
		switch nonzero {
		case 0:
			return -12
		case 1:
			return 2
		default:
			return 1
		}
	}
	switch nonzero {
	case 0:
		return -88
	case 1:
		return 8
	default:
		return 2
	}
}

// Noise is scratch for the coarse detector values.
type Noise struct {
	coarse  partitions.Box
	value   []float64
	offsets []int
	weights []float64
}

// NewNoise sizes the coarse index space: one detector center on every second
// interior cell along each active axis.
func NewNoise(mesh Mesh) *Noise {
	nz := &Noise{}
	size := mesh.Interior.Size()
	for d := 0; d < 3; d++ {
		nz.coarse.Hi[d] = 1
		if d < mesh.Dims {
			nz.coarse.Hi[d] = (size[d] + 1) / 2
		}
	}
	nz.value = make([]float64, nz.coarse.Count())

	reach := [3]int{}
	for d := 0; d < mesh.Dims; d++ {
		reach[d] = 1
	}
	for ok := -reach[2]; ok <= reach[2]; ok++ {
		for oj := -reach[1]; oj <= reach[1]; oj++ {
			for oi := -reach[0]; oi <= reach[0]; oi++ {
				o := [3]int{oi, oj, ok}
				nz.offsets = append(nz.offsets, oi+oj*mesh.Stride[1]+ok*mesh.Stride[2])
				nz.weights = append(nz.weights, noiseWeight(mesh.Dims, o))
			}
		}
	}
	return nz
}

func (nz *Noise) coarseIndex(ci, cj, ck int) int {
	n := nz.coarse.Hi
	return ci + n[0]*(cj+n[1]*ck)
}

// NoiseFilter detects grid-scale oscillation in each conserved channel and
// adds dt*L^2*Laplacian(q) to the residual of that channel at flagged
// interior cells. Detection runs on stride-2 centers; flags fan out to the
// 3^dims neighborhood of each center by OR. The diagnostics receive the
// largest detector magnitude covering each cell and the union of flags.
func NoiseFilter(ctx context.Context, pool *Pool, mesh Mesh, layout field.Layout, params NoiseParams,
	nz *Noise, state, residual, diag *field.Field) error {

	a, norm := noiseScale(mesh)
	cref := params.DH * a / 16
	scale := -a / norm
	l2 := sq(mesh.L)
	lo := mesh.Interior.Lo

	var contact []float64
	if params.Coff > 0 {
		contact = state.Var(layout.CeqContact())
	}
	noiseDiag := diag.Var(layout.DiagNoise())
	flagDiag := diag.Var(layout.DiagNoiseFlag())
	clear(noiseDiag)
	clear(flagDiag)

	for v := 0; v < layout.NumConserved(); v++ {
		q := state.Var(v)
		r := residual.Var(v)

		err := pool.For(ctx, nz.coarse, func(ci, cj, ck int) {
			c := mesh.Cell(lo[0]+2*ci, lo[1]+2*cj, lo[2]+2*ck)
			var sum float64
			for n, off := range nz.offsets {
				sum += nz.weights[n] * q[c+off]
			}
			nz.value[nz.coarseIndex(ci, cj, ck)] = scale * sum
		})
		if err != nil {
			return err
		}

		err = pool.For(ctx, mesh.Interior, func(i, j, k int) {
			cell := mesh.Cell(i, j, k)
			var first, last [3]int
			for d, x := range [3]int{i, j, k} {
				if d >= mesh.Dims {
					continue
				}
				off := x - lo[d]
				first[d] = off / 2
				last[d] = min((off+1)/2, nz.coarse.Hi[d]-1)
			}
			var detector float64
			for ck := first[2]; ck <= last[2]; ck++ {
				for cj := first[1]; cj <= last[1]; cj++ {
					for ci := first[0]; ci <= last[0]; ci++ {
						detector = math.Max(detector, math.Abs(nz.value[nz.coarseIndex(ci, cj, ck)]))
					}
				}
			}
			noiseDiag[cell] = math.Max(noiseDiag[cell], detector)
			if detector < cref {
				return
			}
			if contact != nil && !(math.Abs(contact[cell]) < params.Coff) {
				return
			}
			flagDiag[cell] = 1
			var lap float64
			for d := 0; d < mesh.Dims; d++ {
				s := mesh.Stride[d]
				lap += (q[cell-s] - 2*q[cell] + q[cell+s]) / sq(mesh.Dx[d])
			}
			r[cell] += params.Dt * l2 * lap
		})
		if err != nil {
			return err
		}
	}
	return nil
}
