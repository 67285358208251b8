package hostdev

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/bulb/bulbrt/rt/device"

	"golang.org/x/sync/errgroup"
)

type kernel struct {
	dev      *Device
	src      device.KernelSource
	fn       KernelFunc
	released bool
}

func (k *kernel) Name() string                { return k.src.Name }
func (k *kernel) Source() device.KernelSource { return k.src }
func (k *kernel) Release()                    { k.released = true }

// LoadKernel binds src to the Go implementation registered under its name.
// The WGSL code of src is not used.
func (d *Device) LoadKernel(src device.KernelSource) (device.Kernel, error) {
	fn, ok := d.kernels[src.Name]
	if !ok {
		return nil, fmt.Errorf("%w: hostdev has no implementation of kernel %q", device.ErrKernelLoad, src.Name)
	}
	d.log.Debugf("loaded kernel %s (%d args)", src.Name, len(src.Args))
	return &kernel{dev: d, src: src, fn: fn}, nil
}

// Args is the view a KernelFunc gets of its bound arguments.
type Args struct {
	Grid    [3]uint32
	buffers map[string][]byte
	scalars map[string]float32
}

func (a *Args) Has(name string) bool {
	if _, ok := a.buffers[name]; ok {
		return true
	}
	_, ok := a.scalars[name]
	return ok
}

func (a *Args) Bytes(name string) []byte { return a.buffers[name] }

func (a *Args) Scalar(name string) float32 { return a.scalars[name] }

// Float32 reads element i of a float32 buffer.
func (a *Args) Float32(name string, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(a.buffers[name][i*4:]))
}

func (a *Args) SetFloat32(name string, i int, v float32) {
	binary.LittleEndian.PutUint32(a.buffers[name][i*4:], math.Float32bits(v))
}

func (d *Device) Dispatch(k device.Kernel, args map[string]device.Arg, grid [3]uint32) error {
	hk, ok := k.(*kernel)
	if !ok || hk.dev != d {
		return fmt.Errorf("%w: kernel %v does not belong to device %s", device.ErrKernelDispatchFailed, k, d.name)
	}
	if hk.released {
		return fmt.Errorf("%w: kernel %s was released", device.ErrKernelDispatchFailed, hk.src.Name)
	}
	if err := device.CheckGrid(grid); err != nil {
		return err
	}
	if err := device.CheckArgs(hk.src, args); err != nil {
		return err
	}

	a := &Args{
		Grid:    grid,
		buffers: make(map[string][]byte),
		scalars: make(map[string]float32),
	}
	for name, arg := range args {
		if !arg.IsBuffer() {
			a.scalars[name] = arg.Scalar
			continue
		}
		b, err := d.own(arg.Buffer)
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", device.ErrKernelDispatchFailed, hk.src.Name, name, err)
		}
		a.buffers[name] = b.data
	}
	if d.takeFault(FaultDispatch) {
		return fmt.Errorf("%w: %s: injected fault", device.ErrKernelDispatchFailed, hk.src.Name)
	}

	if err := d.run(hk, a); err != nil {
		return err
	}
	d.stats.Dispatches++
	return nil
}

// run spreads the grid over the workers one plane at a time: z planes for
// volumes, rows for images.
func (d *Device) run(k *kernel, a *Args) error {
	grid := a.Grid
	planes, axis := grid[2], 2
	if planes == 1 {
		planes, axis = grid[1], 1
	}

	var g errgroup.Group
	g.SetLimit(d.workers)
	for p := uint32(0); p < planes; p++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %s panicked: %v", device.ErrKernelDispatchFailed, k.src.Name, r)
				}
			}()
			if axis == 2 {
				for y := uint32(0); y < grid[1]; y++ {
					for x := uint32(0); x < grid[0]; x++ {
						k.fn(a, x, y, p)
					}
				}
				return nil
			}
			for z := uint32(0); z < grid[2]; z++ {
				for x := uint32(0); x < grid[0]; x++ {
					k.fn(a, x, p, z)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
