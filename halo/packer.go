package halo

import (
	"fmt"
	"sync"

	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/partitions"
)

// Packer moves a box of every channel of a field to and from a contiguous
// staging buffer. Buffer order is (v, k, j, i) with i fastest.
type Packer interface {
	Pack(f *field.Field, box partitions.Box, buf []float64) error
	Unpack(f *field.Field, box partitions.Box, buf []float64) error
}

// BufferLen is the staging length needed for box across nv channels.
func BufferLen(box partitions.Box, nv int) int {
	return box.Count() * nv
}

func checkBox(f *field.Field, box partitions.Box, buf []float64) error {
	for d := 0; d < 3; d++ {
		if box.Lo[d] < 0 || box.Hi[d] > f.Extent[d] || box.Lo[d] > box.Hi[d] {
			return fmt.Errorf("box %v..%v outside field extent %v", box.Lo, box.Hi, f.Extent)
		}
	}
	if want := BufferLen(box, f.NV); len(buf) != want {
		return fmt.Errorf("staging buffer holds %d values, box needs %d", len(buf), want)
	}
	return nil
}

// HostPacker copies slabs on the CPU.
type HostPacker struct{}

func (HostPacker) Pack(f *field.Field, box partitions.Box, buf []float64) error {
	if err := checkBox(f, box, buf); err != nil {
		return err
	}
	n := box.Size()[0]
	pos := 0
	for v := 0; v < f.NV; v++ {
		for k := box.Lo[2]; k < box.Hi[2]; k++ {
			for j := box.Lo[1]; j < box.Hi[1]; j++ {
				base := f.Index(box.Lo[0], j, k, v)
				copy(buf[pos:pos+n], f.Data[base:base+n])
				pos += n
			}
		}
	}
	return nil
}

func (HostPacker) Unpack(f *field.Field, box partitions.Box, buf []float64) error {
	if err := checkBox(f, box, buf); err != nil {
		return err
	}
	n := box.Size()[0]
	pos := 0
	for v := 0; v < f.NV; v++ {
		for k := box.Lo[2]; k < box.Hi[2]; k++ {
			for j := box.Lo[1]; j < box.Hi[1]; j++ {
				base := f.Index(box.Lo[0], j, k, v)
				copy(f.Data[base:base+n], buf[pos:pos+n])
				pos += n
			}
		}
	}
	return nil
}

// Serialize guards a packer that keeps per-call state so several ranks can
// share it.
func Serialize(p Packer) Packer {
	return &serialPacker{p: p}
}

type serialPacker struct {
	mu sync.Mutex
	p  Packer
}

func (s *serialPacker) Pack(f *field.Field, box partitions.Box, buf []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Pack(f, box, buf)
}

func (s *serialPacker) Unpack(f *field.Field, box partitions.Box, buf []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Unpack(f, box, buf)
}
