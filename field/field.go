// Package field stores cell-centred data on a ghosted subdomain. Every array
// is one flat slice with the variable axis outermost and i fastest, so a
// channel is a contiguous block of Extent[0]*Extent[1]*Extent[2] values.
package field

import (
	"errors"
	"fmt"

	"github.com/notargets/FVKernel/partitions"
)

// ErrExtentMismatch is returned when restart data does not match the
// subdomain it is written into.
var ErrExtentMismatch = errors.New("extent mismatch")

// Field is a dense ghosted array of NV channels.
type Field struct {
	NV     int
	Extent [3]int
	Stride [3]int
	N      int // cells per channel
	Data   []float64
}

// New allocates a zeroed field.
func New(extent [3]int, nv int) *Field {
	n := extent[0] * extent[1] * extent[2]
	return &Field{
		NV:     nv,
		Extent: extent,
		Stride: [3]int{1, extent[0], extent[0] * extent[1]},
		N:      n,
		Data:   make([]float64, n*nv),
	}
}

// Cell is the offset of (i,j,k) within one channel.
func (f *Field) Cell(i, j, k int) int {
	return i + f.Stride[1]*j + f.Stride[2]*k
}

// Index is the offset of (i,j,k,v) in Data.
func (f *Field) Index(i, j, k, v int) int {
	return v*f.N + f.Cell(i, j, k)
}

func (f *Field) At(i, j, k, v int) float64 {
	return f.Data[f.Index(i, j, k, v)]
}

func (f *Field) Set(i, j, k, v int, x float64) {
	f.Data[f.Index(i, j, k, v)] = x
}

// Var returns channel v as a slice aliasing Data.
func (f *Field) Var(v int) []float64 {
	return f.Data[v*f.N : (v+1)*f.N]
}

// Zero clears every channel.
func (f *Field) Zero() {
	clear(f.Data)
}

// Fill sets every cell of channel v to x.
func (f *Field) Fill(v int, x float64) {
	d := f.Var(v)
	for i := range d {
		d[i] = x
	}
}

// CopyFrom copies the contents of src, which must have the same shape.
func (f *Field) CopyFrom(src *Field) error {
	if src.Extent != f.Extent || src.NV != f.NV {
		return fmt.Errorf("%w: copy %v x %d into %v x %d", ErrExtentMismatch, src.Extent, src.NV, f.Extent, f.NV)
	}
	copy(f.Data, src.Data)
	return nil
}

// Interior returns the owned cells of every channel in (v, k, j, i) order.
func (f *Field) Interior(p partitions.Partition) []float64 {
	box := p.InteriorBox()
	out := make([]float64, 0, box.Count()*f.NV)
	for v := 0; v < f.NV; v++ {
		for k := box.Lo[2]; k < box.Hi[2]; k++ {
			for j := box.Lo[1]; j < box.Hi[1]; j++ {
				base := f.Index(0, j, k, v)
				out = append(out, f.Data[base+box.Lo[0]:base+box.Hi[0]]...)
			}
		}
	}
	return out
}

// SetInterior writes values produced by Interior back into the owned cells.
func (f *Field) SetInterior(p partitions.Partition, values []float64) error {
	box := p.InteriorBox()
	if p.Extent != f.Extent {
		return fmt.Errorf("%w: subdomain extent %v, field extent %v", ErrExtentMismatch, p.Extent, f.Extent)
	}
	if want := box.Count() * f.NV; len(values) != want {
		return fmt.Errorf("%w: got %d values, subdomain holds %d", ErrExtentMismatch, len(values), want)
	}
	n := box.Size()[0]
	for v := 0; v < f.NV; v++ {
		for k := box.Lo[2]; k < box.Hi[2]; k++ {
			for j := box.Lo[1]; j < box.Hi[1]; j++ {
				base := f.Index(box.Lo[0], j, k, v)
				copy(f.Data[base:base+n], values[:n])
				values = values[n:]
			}
		}
	}
	return nil
}

// Set groups the arrays one subdomain needs.
type Set struct {
	Layout      Layout
	Part        partitions.Partition
	State       *Field
	Residual    *Field
	Diagnostics *Field
}

// Allocate creates state, residual and diagnostics arrays sized for p.
func Allocate(p partitions.Partition, layout Layout) *Set {
	return &Set{
		Layout:      layout,
		Part:        p,
		State:       New(p.Extent, layout.NumVars()),
		Residual:    New(p.Extent, layout.NumVars()),
		Diagnostics: New(p.Extent, layout.NumDiag()),
	}
}
