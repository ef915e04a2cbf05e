package kernels

import (
	"math"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/partitions"
)

// Mesh is the local geometry every pass needs.
type Mesh struct {
	Dims     int
	Dx       [3]float64
	L        float64 // cell diagonal over the active axes
	Interior partitions.Box
	Ghosted  partitions.Box
	Stride   [3]int
	N        int
}

// NewMesh describes the subdomain p with cell spacing dx.
func NewMesh(p partitions.Partition, dx [3]float64) Mesh {
	m := Mesh{
		Dims:     p.Dims,
		Dx:       dx,
		Interior: p.InteriorBox(),
		Ghosted:  p.GhostedBox(),
		Stride:   [3]int{1, p.Extent[0], p.Extent[0] * p.Extent[1]},
		N:        p.NumGhosted(),
	}
	var sum float64
	for d := 0; d < m.Dims; d++ {
		sum += dx[d] * dx[d]
	}
	m.L = math.Sqrt(sum)
	return m
}

// Cell is the flat offset of (i,j,k) within one channel.
func (m Mesh) Cell(i, j, k int) int {
	return i + m.Stride[1]*j + m.Stride[2]*k
}

// FaceBox is the set of cells whose plus face along axis is needed to
// difference every interior cell: the interior extended by one cell on the
// minus side.
func (m Mesh) FaceBox(axis int) partitions.Box {
	b := m.Interior
	b.Lo[axis]--
	return b
}

// Gas holds per-species ideal-gas coefficients.
type Gas struct {
	Gamma []float64
	R     []float64
}

// NewGas copies the species table of a configuration.
func NewGas(species []config.SpeciesConfig) Gas {
	g := Gas{
		Gamma: make([]float64, len(species)),
		R:     make([]float64, len(species)),
	}
	for s, sp := range species {
		g.Gamma[s] = sp.Gamma
		g.R[s] = sp.R
	}
	return g
}

// MixtureGamma is Cp/Cv of the mixture with mass fractions y.
func (g Gas) MixtureGamma(y func(s int) float64) float64 {
	var cp, cv float64
	for s := range g.Gamma {
		ys := y(s)
		cp += ys * g.Gamma[s] * g.R[s] / (g.Gamma[s] - 1)
		cv += ys * g.R[s] / (g.Gamma[s] - 1)
	}
	return cp / cv
}

// d4 is the fourth order central first derivative of q at c along stride s.
func d4(q []float64, c, s int, dx float64) float64 {
	return (q[c-2*s] - 8*q[c-s] + 8*q[c+s] - q[c+2*s]) / (12 * dx)
}

func sq(x float64) float64 { return x * x }
