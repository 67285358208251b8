package gpu

import (
	"errors"
	"fmt"

	"github.com/gekko3d/bulb"
	"github.com/gekko3d/bulb/bulbrt/rt/device"
)

var (
	ErrInvalidSize    = errors.New("gpu: invalid size")
	ErrOutputTooSmall = errors.New("gpu: output buffer too small")
	ErrUnknownArg     = errors.New("gpu: unknown kernel argument")
)

// DummyEdge and DummyFrame size the resources of a fresh engine.
const (
	DummyEdge  = 4
	DummyFrame = 4
)

// Largest sizes the resources accept. Voxel and pixel indices stay within
// 32 bits on every backend.
const (
	MaxEdge      = 1600
	MaxFrameSide = 16384
)

const resourceUsage = device.UsageStorage | device.UsageCopySrc | device.UsageCopyDst

// VolumeResource owns the voxel grid, one byte per voxel, edge³ bytes.
type VolumeResource struct {
	ctx         device.Context
	log         bulb.Logger
	edge        int
	buf         device.Buffer
	allocations int
}

func NewVolumeResource(ctx device.Context, edge int, log bulb.Logger) (*VolumeResource, error) {
	v := &VolumeResource{ctx: ctx, log: bulb.OrNop(log)}
	if _, err := v.EnsureCapacity(edge); err != nil {
		return nil, err
	}
	return v, nil
}

func volumeBytes(edge int) uint64 {
	n := uint64(edge)
	return n * n * n
}

// EnsureCapacity resizes the volume to edge³ voxels. It reports whether the
// buffer was replaced; callers must rebind every kernel argument that
// referenced the old one. A failed allocation leaves the resource as it was.
func (v *VolumeResource) EnsureCapacity(edge int) (changed bool, err error) {
	if edge < 1 || edge > MaxEdge {
		return false, fmt.Errorf("%w: edge length %d not in [1, %d]", ErrInvalidSize, edge, MaxEdge)
	}
	if v.buf != nil && edge == v.edge {
		return false, nil
	}
	nb, err := v.ctx.CreateBuffer("voxels", volumeBytes(edge), resourceUsage)
	if err != nil {
		v.log.Warnf("volume %d³ not allocated, keeping %d³: %v", edge, v.edge, err)
		return false, err
	}
	if v.buf != nil {
		v.buf.Release()
	}
	v.log.Debugf("volume %d³ -> %d³", v.edge, edge)
	v.buf = nb
	v.edge = edge
	v.allocations++
	return true, nil
}

func (v *VolumeResource) Edge() int             { return v.edge }
func (v *VolumeResource) Buffer() device.Buffer { return v.buf }
func (v *VolumeResource) Bytes() uint64         { return volumeBytes(v.edge) }

// Allocations counts the buffers this resource has created.
func (v *VolumeResource) Allocations() int { return v.allocations }

func (v *VolumeResource) Release() {
	if v.buf != nil {
		v.buf.Release()
		v.buf = nil
	}
}

// FrameResource owns the color image (4 bytes per pixel) and the debug
// image (one float32 per pixel). Both are always the same size.
type FrameResource struct {
	ctx           device.Context
	log           bulb.Logger
	width, height int
	color, debug  device.Buffer
	allocations   int
}

func NewFrameResource(ctx device.Context, width, height int, log bulb.Logger) (*FrameResource, error) {
	f := &FrameResource{ctx: ctx, log: bulb.OrNop(log)}
	if _, err := f.EnsureCapacity(width, height); err != nil {
		return nil, err
	}
	return f, nil
}

// EnsureCapacity resizes both images to width×height. Either both buffers
// are replaced or neither is.
func (f *FrameResource) EnsureCapacity(width, height int) (changed bool, err error) {
	if err := checkFrame(width, height); err != nil {
		return false, err
	}
	if f.color != nil && width == f.width && height == f.height {
		return false, nil
	}
	pixels := uint64(width) * uint64(height)
	color, err := f.ctx.CreateBuffer("image", pixels*4, resourceUsage)
	if err != nil {
		f.log.Warnf("frame %dx%d not allocated: %v", width, height, err)
		return false, err
	}
	debug, err := f.ctx.CreateBuffer("debug", pixels*4, resourceUsage)
	if err != nil {
		color.Release()
		f.log.Warnf("frame %dx%d not allocated: %v", width, height, err)
		return false, err
	}
	f.release()
	f.log.Debugf("frame %dx%d -> %dx%d", f.width, f.height, width, height)
	f.color, f.debug = color, debug
	f.width, f.height = width, height
	f.allocations++
	return true, nil
}

func checkFrame(width, height int) error {
	if width < 1 || height < 1 || width > MaxFrameSide || height > MaxFrameSide {
		return fmt.Errorf("%w: frame %dx%d, sides must be in [1, %d]", ErrInvalidSize, width, height, MaxFrameSide)
	}
	return nil
}

func (f *FrameResource) Size() (width, height int) { return f.width, f.height }
func (f *FrameResource) Pixels() int               { return f.width * f.height }
func (f *FrameResource) Color() device.Buffer      { return f.color }
func (f *FrameResource) Debug() device.Buffer      { return f.debug }

// Allocations counts resizes, each of which creates both images.
func (f *FrameResource) Allocations() int { return f.allocations }

func (f *FrameResource) release() {
	if f.color != nil {
		f.color.Release()
		f.color = nil
	}
	if f.debug != nil {
		f.debug.Release()
		f.debug = nil
	}
}

func (f *FrameResource) Release() { f.release() }
