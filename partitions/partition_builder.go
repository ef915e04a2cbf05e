package partitions

import "fmt"

// Split returns the number of cells and the first global cell owned by
// process coordinate coord when global cells are spread over procs
// processes. The remainder goes to the lowest coordinates.
func Split(global, procs, coord int) (count, start int) {
	base := global / procs
	rem := global % procs
	if coord < rem {
		return base + 1, coord * (base + 1)
	}
	return base, rem*(base+1) + (coord-rem)*base
}

// Owner is the inverse of Split: the coordinate owning global cell i.
func Owner(global, procs, i int) int {
	base := global / procs
	rem := global % procs
	split := rem * (base + 1)
	if i < split {
		return i / (base + 1)
	}
	return rem + (i-split)/base
}

// RankOf maps process grid coordinates to a rank, last axis fastest.
func RankOf(procs, coords [3]int) int {
	return (coords[0]*procs[1]+coords[1])*procs[2] + coords[2]
}

// Coords maps a rank to its process grid coordinates.
func Coords(procs [3]int, rank int) (c [3]int) {
	c[2] = rank % procs[2]
	rank /= procs[2]
	c[1] = rank % procs[1]
	c[0] = rank / procs[1]
	return
}

// Shift returns the rank displaced by disp along axis, wrapping on periodic
// axes and NoNeighbor past a non-periodic edge.
func (g GlobalGrid) Shift(coords [3]int, axis, disp int) int {
	c := coords[axis] + disp
	n := g.Procs[axis]
	if c < 0 || c >= n {
		if !g.Periodic[axis] {
			return NoNeighbor
		}
		c = ((c % n) + n) % n
	}
	coords[axis] = c
	return RankOf(g.Procs, coords)
}

// Decompose builds the subdomain descriptor for rank. It is a pure function
// of the grid.
func (g GlobalGrid) Decompose(rank int) (Partition, error) {
	if err := g.Validate(); err != nil {
		return Partition{}, err
	}
	if rank < 0 || rank >= g.NumRanks() {
		return Partition{}, fmt.Errorf("%w: rank %d outside [0,%d)", ErrInvalidGrid, rank, g.NumRanks())
	}
	p := Partition{
		Rank:   rank,
		Dims:   g.Dims,
		Coords: Coords(g.Procs, rank),
	}
	for d := 0; d < 3; d++ {
		p.Cells[d], p.Start[d] = Split(g.Cells[d], g.Procs[d], p.Coords[d])
		p.End[d] = p.Start[d] + p.Cells[d]
		p.Ghost[d] = g.GhostWidth(d)
		p.Extent[d] = p.Cells[d] + 2*p.Ghost[d]
		if d >= g.Dims {
			p.Neighbors[d] = [2]int{NoNeighbor, NoNeighbor}
			continue
		}
		p.Neighbors[d][Minus] = g.Shift(p.Coords, d, -1)
		p.Neighbors[d][Plus] = g.Shift(p.Coords, d, +1)
	}
	return p, nil
}

// BuildLayout decomposes the grid for every rank and validates the result.
func BuildLayout(g GlobalGrid) (*PartitionLayout, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	layout := &PartitionLayout{
		Grid:       g,
		Partitions: make([]Partition, g.NumRanks()),
	}
	for r := range layout.Partitions {
		p, err := g.Decompose(r)
		if err != nil {
			return nil, err
		}
		layout.Partitions[r] = p
	}
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}
