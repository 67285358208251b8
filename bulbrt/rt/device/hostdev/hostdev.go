// Package hostdev implements device.Context in host memory. Kernels are Go
// functions registered by kernel name and invoked once per work item.
// It backs the software renderer and every engine test.
package hostdev

import (
	"fmt"
	"runtime"

	"github.com/gekko3d/bulb"
	"github.com/gekko3d/bulb/bulbrt/rt/device"

	"github.com/google/uuid"
)

// KernelFunc runs a single work item at (x, y, z).
type KernelFunc func(a *Args, x, y, z uint32)

type Fault int

const (
	FaultAllocation Fault = iota + 1
	FaultDispatch
	FaultReadback
)

type Stats struct {
	Allocations int
	Releases    int
	Dispatches  int
	Reads       int
	Writes      int
	LiveBytes   uint64
}

type Device struct {
	name    string
	memCap  uint64 // 0 means unlimited
	workers int
	kernels map[string]KernelFunc
	log     bulb.Logger

	live   map[uuid.UUID]*buffer
	stats  Stats
	faults map[Fault]int
}

type Option func(*Device)

func WithName(name string) Option { return func(d *Device) { d.name = name } }

// WithMemoryCap limits the bytes of live buffers.
func WithMemoryCap(bytes uint64) Option { return func(d *Device) { d.memCap = bytes } }

func WithWorkers(n int) Option { return func(d *Device) { d.workers = n } }

func WithLogger(l bulb.Logger) Option { return func(d *Device) { d.log = bulb.Component(l, "hostdev") } }

// WithKernel registers the implementation used for kernels named name.
func WithKernel(name string, fn KernelFunc) Option {
	return func(d *Device) { d.kernels[name] = fn }
}

func New(opts ...Option) *Device {
	d := &Device{
		name:    "host",
		workers: runtime.GOMAXPROCS(0),
		kernels: make(map[string]KernelFunc),
		log:     bulb.NewNopLogger(),
		live:    make(map[uuid.UUID]*buffer),
		faults:  make(map[Fault]int),
	}
	for _, o := range opts {
		o(d)
	}
	if d.workers < 1 {
		d.workers = 1
	}
	return d
}

func (d *Device) Name() string { return d.name }

func (d *Device) Stats() Stats { return d.stats }

// InjectFault makes the next operation of the given kind fail.
func (d *Device) InjectFault(f Fault) { d.faults[f]++ }

func (d *Device) takeFault(f Fault) bool {
	if d.faults[f] == 0 {
		return false
	}
	d.faults[f]--
	return true
}

type buffer struct {
	dev      *Device
	id       uuid.UUID
	label    string
	usage    device.Usage
	size     uint64
	data     []byte
	released bool
}

func (b *buffer) ID() uuid.UUID  { return b.id }
func (b *buffer) Label() string  { return b.label }
func (b *buffer) Size() uint64   { return b.size }
func (b *buffer) Released() bool { return b.released }

func (b *buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.dev.stats.Releases++
	b.dev.stats.LiveBytes -= b.size
	delete(b.dev.live, b.id)
	b.data = nil
}

func (d *Device) CreateBuffer(label string, size uint64, usage device.Usage) (device.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: %s: zero sized buffer", device.ErrAllocationFailed, label)
	}
	if d.takeFault(FaultAllocation) {
		return nil, fmt.Errorf("%w: %s: injected fault", device.ErrAllocationFailed, label)
	}
	if d.memCap > 0 && d.stats.LiveBytes+size > d.memCap {
		return nil, fmt.Errorf("%w: %s: %d bytes requested, %d of %d in use",
			device.ErrAllocationFailed, label, size, d.stats.LiveBytes, d.memCap)
	}
	b := &buffer{
		dev:   d,
		id:    uuid.New(),
		label: label,
		usage: usage,
		size:  size,
		data:  make([]byte, size),
	}
	d.live[b.id] = b
	d.stats.Allocations++
	d.stats.LiveBytes += size
	d.log.Debugf("allocated %s (%d bytes)", label, size)
	return b, nil
}

func (d *Device) own(buf device.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b.dev != d {
		return nil, fmt.Errorf("hostdev: buffer %v does not belong to device %s", buf, d.name)
	}
	if b.released {
		return nil, fmt.Errorf("hostdev: buffer %s (%s) was released", b.label, b.id)
	}
	return b, nil
}

func (d *Device) WriteBuffer(buf device.Buffer, data []byte) error {
	b, err := d.own(buf)
	if err != nil {
		return err
	}
	if len(data) > len(b.data) {
		return fmt.Errorf("hostdev: write of %d bytes overflows %s (%d bytes)", len(data), b.label, len(b.data))
	}
	copy(b.data, data)
	d.stats.Writes++
	return nil
}

func (d *Device) ReadBuffer(buf device.Buffer, dst []byte) error {
	b, err := d.own(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", device.ErrReadbackFailed, err)
	}
	if len(dst) > len(b.data) {
		return fmt.Errorf("%w: read of %d bytes from %s (%d bytes)", device.ErrReadbackFailed, len(dst), b.label, len(b.data))
	}
	if d.takeFault(FaultReadback) {
		return fmt.Errorf("%w: %s: injected fault", device.ErrReadbackFailed, b.label)
	}
	copy(dst, b.data)
	d.stats.Reads++
	return nil
}

// Release frees every buffer still alive on the device.
func (d *Device) Release() {
	for _, b := range d.live {
		b.Release()
	}
}
