package halo

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"

	"github.com/notargets/FVKernel/field"
	"github.com/notargets/FVKernel/partitions"
)

// haloTile is the @inner extent of the halo kernels. Boxes larger than one
// tile spread over ceil(n/haloTile) @outer blocks.
const haloTile = 256

// Kernel arguments are the field extent, the box origin and size, and the
// number of variables, all as scalars, followed by the source and target.
var haloKernelSource = fmt.Sprintf(`
#define TILE %d

@kernel void packBox(const int ni, const int nj, const int nk,
                     const int lo0, const int lo1, const int lo2,
                     const int n0, const int n1, const int n2,
                     const int nv,
                     @restrict const double *Q,
                     @restrict double *buf) {
    for (int b = 0; b < (nv*n0*n1*n2 + TILE - 1)/TILE; ++b; @outer) {
        for (int t = 0; t < TILE; ++t; @inner) {
            const int n = nv*n0*n1*n2;
            const int idx = b*TILE + t;
            if (idx < n) {
                const int slab = n0*n1*n2;
                const int v = idx / slab;
                const int c = idx - v*slab;
                const int i = c %% n0;
                const int j = (c / n0) %% n1;
                const int k = c / (n0*n1);
                const long cells = (long)ni*nj*nk;
                const long src = v*cells + (long)(lo2+k)*ni*nj + (long)(lo1+j)*ni + lo0 + i;
                buf[idx] = Q[src];
            }
        }
    }
}

@kernel void unpackBox(const int ni, const int nj, const int nk,
                       const int lo0, const int lo1, const int lo2,
                       const int n0, const int n1, const int n2,
                       const int nv,
                       @restrict const double *buf,
                       @restrict double *Q) {
    for (int b = 0; b < (nv*n0*n1*n2 + TILE - 1)/TILE; ++b; @outer) {
        for (int t = 0; t < TILE; ++t; @inner) {
            const int n = nv*n0*n1*n2;
            const int idx = b*TILE + t;
            if (idx < n) {
                const int slab = n0*n1*n2;
                const int v = idx / slab;
                const int c = idx - v*slab;
                const int i = c %% n0;
                const int j = (c / n0) %% n1;
                const int k = c / (n0*n1);
                const long cells = (long)ni*nj*nk;
                const long dst = v*cells + (long)(lo2+k)*ni*nj + (long)(lo1+j)*ni + lo0 + i;
                Q[dst] = buf[idx];
            }
        }
    }
}
`, haloTile)

// boxArgs lays out the scalar kernel arguments for box inside f.
func boxArgs(f *field.Field, box partitions.Box) []interface{} {
	size := box.Size()
	return []interface{}{
		int32(f.Extent[0]), int32(f.Extent[1]), int32(f.Extent[2]),
		int32(box.Lo[0]), int32(box.Lo[1]), int32(box.Lo[2]),
		int32(size[0]), int32(size[1]), int32(size[2]),
		int32(f.NV),
	}
}

// DevicePacker gathers and scatters halo slabs with OCCA kernels. The field
// is mirrored to the device on every call, so it suits fields that already
// live on the device more than host-resident ones.
type DevicePacker struct {
	device *gocca.OCCADevice
	pack   *gocca.OCCAKernel
	unpack *gocca.OCCAKernel

	q      *gocca.OCCAMemory
	qLen   int
	buf    *gocca.OCCAMemory
	bufLen int
}

// NewDevicePacker compiles the halo kernels on device.
func NewDevicePacker(device *gocca.OCCADevice) (*DevicePacker, error) {
	if device == nil {
		return nil, fmt.Errorf("nil OCCA device")
	}
	pack, err := device.BuildKernelFromString(haloKernelSource, "packBox", nil)
	if err != nil {
		return nil, fmt.Errorf("building packBox: %w", err)
	}
	unpack, err := device.BuildKernelFromString(haloKernelSource, "unpackBox", nil)
	if err != nil {
		pack.Free()
		return nil, fmt.Errorf("building unpackBox: %w", err)
	}
	return &DevicePacker{
		device: device,
		pack:   pack,
		unpack: unpack,
	}, nil
}

// Free releases kernels and device memory.
func (dp *DevicePacker) Free() {
	for _, m := range []*gocca.OCCAMemory{dp.q, dp.buf} {
		if m != nil {
			m.Free()
		}
	}
	dp.pack.Free()
	dp.unpack.Free()
}

func (dp *DevicePacker) stage(f *field.Field, buf []float64) {
	if dp.qLen != len(f.Data) {
		if dp.q != nil {
			dp.q.Free()
		}
		dp.q = dp.device.Malloc(int64(len(f.Data)*8), nil, nil)
		dp.qLen = len(f.Data)
	}
	if dp.bufLen != len(buf) {
		if dp.buf != nil {
			dp.buf.Free()
		}
		dp.buf = dp.device.Malloc(int64(len(buf)*8), nil, nil)
		dp.bufLen = len(buf)
	}
	dp.q.CopyFrom(unsafe.Pointer(&f.Data[0]), int64(len(f.Data)*8))
}

func (dp *DevicePacker) Pack(f *field.Field, box partitions.Box, buf []float64) error {
	if err := checkBox(f, box, buf); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	dp.stage(f, buf)
	if err := dp.pack.RunWithArgs(append(boxArgs(f, box), dp.q, dp.buf)...); err != nil {
		return fmt.Errorf("packBox: %w", err)
	}
	dp.device.Finish()
	dp.buf.CopyTo(unsafe.Pointer(&buf[0]), int64(len(buf)*8))
	return nil
}

func (dp *DevicePacker) Unpack(f *field.Field, box partitions.Box, buf []float64) error {
	if err := checkBox(f, box, buf); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	dp.stage(f, buf)
	dp.buf.CopyFrom(unsafe.Pointer(&buf[0]), int64(len(buf)*8))
	if err := dp.unpack.RunWithArgs(append(boxArgs(f, box), dp.buf, dp.q)...); err != nil {
		return fmt.Errorf("unpackBox: %w", err)
	}
	dp.device.Finish()
	dp.q.CopyTo(unsafe.Pointer(&f.Data[0]), int64(len(f.Data)*8))
	return nil
}
