package partitions

import (
	"errors"
	"fmt"

	"github.com/notargets/FVKernel/config"
)

// NoNeighbor marks a face on a non-periodic physical boundary.
const NoNeighbor = -1

// Face directions along an axis.
const (
	Minus = 0
	Plus  = 1
)

var (
	// ErrEmptySubdomain is returned when an axis has more processes than cells.
	ErrEmptySubdomain = errors.New("subdomain would be empty")
	// ErrInvalidGrid marks a malformed global or process grid.
	ErrInvalidGrid = errors.New("invalid grid")
)

// GlobalGrid is the structured grid and the process grid laid over it.
// Inactive axes (the third axis in 2D) carry one cell, one process and no
// ghosts.
type GlobalGrid struct {
	Dims     int
	Cells    [3]int
	Procs    [3]int
	Periodic [3]bool
	Ghost    int
}

// NewGlobalGrid builds the partitioner input from a grid configuration.
func NewGlobalGrid(g config.GridConfig) GlobalGrid {
	return GlobalGrid{
		Dims:     g.Dims,
		Cells:    g.CellCounts(),
		Procs:    g.ProcCounts(),
		Periodic: g.PeriodicAxes(),
		Ghost:    g.Ghost,
	}
}

// Validate rejects grids that cannot be decomposed. It runs before any field
// storage is allocated.
func (g GlobalGrid) Validate() error {
	if g.Dims != 2 && g.Dims != 3 {
		return fmt.Errorf("%w: dims must be 2 or 3, got %d", ErrInvalidGrid, g.Dims)
	}
	if g.Ghost < 0 {
		return fmt.Errorf("%w: negative ghost width %d", ErrInvalidGrid, g.Ghost)
	}
	for d := 0; d < 3; d++ {
		if g.Procs[d] < 1 || g.Cells[d] < 1 {
			return fmt.Errorf("%w: axis %d has %d cells on %d processes", ErrInvalidGrid, d, g.Cells[d], g.Procs[d])
		}
		if d >= g.Dims && (g.Cells[d] != 1 || g.Procs[d] != 1) {
			return fmt.Errorf("%w: inactive axis %d must have one cell and one process", ErrInvalidGrid, d)
		}
		if g.Cells[d] < g.Procs[d] {
			return fmt.Errorf("%w: axis %d has %d cells for %d processes", ErrEmptySubdomain, d, g.Cells[d], g.Procs[d])
		}
	}
	return nil
}

// NumRanks is the number of subdomains.
func (g GlobalGrid) NumRanks() int {
	return g.Procs[0] * g.Procs[1] * g.Procs[2]
}

// GhostWidth is the ghost layer thickness on axis, zero on inactive axes.
func (g GlobalGrid) GhostWidth(axis int) int {
	if axis >= g.Dims {
		return 0
	}
	return g.Ghost
}

// Box is a half-open index range [Lo, Hi) in local ghosted coordinates.
type Box struct {
	Lo, Hi [3]int
}

// Size returns the extent of the box per axis.
func (b Box) Size() (n [3]int) {
	for d := range n {
		n[d] = max(b.Hi[d]-b.Lo[d], 0)
	}
	return
}

// Count is the number of cells in the box.
func (b Box) Count() int {
	n := b.Size()
	return n[0] * n[1] * n[2]
}

// Empty reports whether the box holds no cells.
func (b Box) Empty() bool {
	return b.Count() == 0
}

// Grow widens the box by n cells on both sides of every axis.
func (b Box) Grow(n [3]int) Box {
	for d := range n {
		b.Lo[d] -= n[d]
		b.Hi[d] += n[d]
	}
	return b
}

// Partition is the subdomain owned by one rank.
type Partition struct {
	Rank   int
	Dims   int
	Coords [3]int // position in the process grid

	Cells  [3]int // interior cell count
	Start  [3]int // first owned global cell index
	End    [3]int // one past the last owned global cell index
	Ghost  [3]int // ghost layer thickness per axis
	Extent [3]int // Cells + 2*Ghost

	// Neighbors[axis][Minus|Plus] is the rank across that face or NoNeighbor.
	Neighbors [3][2]int
}

// NumGhosted is the number of cells including ghost layers.
func (p Partition) NumGhosted() int {
	return p.Extent[0] * p.Extent[1] * p.Extent[2]
}

// NumInterior is the number of owned cells.
func (p Partition) NumInterior() int {
	return p.Cells[0] * p.Cells[1] * p.Cells[2]
}

// InteriorBox covers the owned cells in local coordinates.
func (p Partition) InteriorBox() Box {
	var b Box
	for d := 0; d < 3; d++ {
		b.Lo[d] = p.Ghost[d]
		b.Hi[d] = p.Ghost[d] + p.Cells[d]
	}
	return b
}

// GhostedBox covers every local cell.
func (p Partition) GhostedBox() Box {
	return Box{Hi: p.Extent}
}

// HasNeighbor reports whether the face at (axis, side) is shared with a rank.
func (p Partition) HasNeighbor(axis, side int) bool {
	return p.Neighbors[axis][side] != NoNeighbor
}

// PartitionLayout holds every rank's subdomain for one global grid.
type PartitionLayout struct {
	Grid       GlobalGrid
	Partitions []Partition
}

// GetPartition returns the rank owning the global cell, or -1 if outside.
func (pl *PartitionLayout) GetPartition(cell [3]int) int {
	var coords [3]int
	for d := 0; d < 3; d++ {
		if cell[d] < 0 || cell[d] >= pl.Grid.Cells[d] {
			return -1
		}
		coords[d] = Owner(pl.Grid.Cells[d], pl.Grid.Procs[d], cell[d])
	}
	return RankOf(pl.Grid.Procs, coords)
}

// ValidateLayout checks that subdomains tile every axis without gaps or
// overlap and that neighbor links are symmetric.
func (pl *PartitionLayout) ValidateLayout() error {
	g := pl.Grid
	if len(pl.Partitions) != g.NumRanks() {
		return fmt.Errorf("layout has %d partitions for %d ranks", len(pl.Partitions), g.NumRanks())
	}
	for d := 0; d < 3; d++ {
		next := 0
		for c := 0; c < g.Procs[d]; c++ {
			var coords [3]int
			coords[d] = c
			p := pl.Partitions[RankOf(g.Procs, coords)]
			if p.Start[d] != next {
				return fmt.Errorf("axis %d coordinate %d starts at %d, want %d", d, c, p.Start[d], next)
			}
			if p.Cells[d] < 1 || p.End[d] != p.Start[d]+p.Cells[d] {
				return fmt.Errorf("axis %d coordinate %d has range [%d,%d) with %d cells",
					d, c, p.Start[d], p.End[d], p.Cells[d])
			}
			next = p.End[d]
		}
		if next != g.Cells[d] {
			return fmt.Errorf("axis %d covers %d of %d cells", d, next, g.Cells[d])
		}
	}
	for r, p := range pl.Partitions {
		if p.Rank != r || Coords(g.Procs, r) != p.Coords {
			return fmt.Errorf("partition %d: rank %d at coords %v is out of place", r, p.Rank, p.Coords)
		}
		for d := 0; d < 3; d++ {
			if n, s := Split(g.Cells[d], g.Procs[d], p.Coords[d]); n != p.Cells[d] || s != p.Start[d] {
				return fmt.Errorf("partition %d axis %d: range [%d,%d) disagrees with its coordinate", r, d, p.Start[d], p.End[d])
			}
		}
	}
	return validateNeighborSymmetry(pl.Partitions)
}

// validateNeighborSymmetry verifies that if a sends to b across a face, b
// expects to receive from a across the opposite face.
func validateNeighborSymmetry(parts []Partition) error {
	for _, p := range parts {
		for d := 0; d < 3; d++ {
			for side := Minus; side <= Plus; side++ {
				q := p.Neighbors[d][side]
				if q == NoNeighbor {
					continue
				}
				if q < 0 || q >= len(parts) {
					return fmt.Errorf("rank %d axis %d side %d: neighbor %d out of range", p.Rank, d, side, q)
				}
				if back := parts[q].Neighbors[d][1-side]; back != p.Rank {
					return fmt.Errorf("rank %d sends to %d on axis %d, but %d expects rank %d",
						p.Rank, q, d, q, back)
				}
			}
		}
	}
	return nil
}
