package integrator

import (
	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/partitions"
)

// FillZeroGradient copies the outermost owned layer into every ghost layer on
// faces that have no neighbor. Axes are filled in order over the full ghosted
// extent of the others, so edge and corner ghosts see already filled values.
func FillZeroGradient(p partitions.Partition, f *field.Field) {
	for axis := 0; axis < p.Dims; axis++ {
		for side := partitions.Minus; side <= partitions.Plus; side++ {
			if p.HasNeighbor(axis, side) {
				continue
			}
			fillFace(p, f, axis, side)
		}
	}
}

func fillFace(p partitions.Partition, f *field.Field, axis, side int) {
	g := p.Ghost[axis]
	src := g
	if side == partitions.Plus {
		src = g + p.Cells[axis] - 1
	}
	box := p.GhostedBox()
	if side == partitions.Minus {
		box.Hi[axis] = g
	} else {
		box.Lo[axis] = g + p.Cells[axis]
	}
	for v := 0; v < f.NV; v++ {
		for k := box.Lo[2]; k < box.Hi[2]; k++ {
			for j := box.Lo[1]; j < box.Hi[1]; j++ {
				for i := box.Lo[0]; i < box.Hi[0]; i++ {
					from := [3]int{i, j, k}
					from[axis] = src
					f.Set(i, j, k, v, f.At(from[0], from[1], from[2], v))
				}
			}
		}
	}
}
