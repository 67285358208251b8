// Package wgpudev runs the engine's kernels on a WebGPU device.
//
// No surface is created: the adapter is requested for compute only and all
// results leave the device through ReadBuffer.
package wgpudev

import (
	"fmt"

	"github.com/gekko3d/bulb"
	"github.com/gekko3d/bulb/bulbrt/rt/device"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

type Option func(*Device)

func WithLogger(l bulb.Logger) Option { return func(d *Device) { d.log = bulb.Component(l, "wgpudev") } }

func WithName(name string) Option { return func(d *Device) { d.name = name } }

// WithMemoryCap bounds the bytes of live buffers this context may hold.
// Zero means no bound beyond what the device itself enforces.
func WithMemoryCap(bytes uint64) Option { return func(d *Device) { d.memCap = bytes } }

type Device struct {
	name   string
	memCap uint64
	log    bulb.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	live      map[uuid.UUID]*buffer
	liveBytes uint64
	kernels   []*kernel
}

var _ device.Context = (*Device)(nil)

// New opens a high-performance adapter and a device on it.
func New(opts ...Option) (*Device, error) {
	d := &Device{
		name: "wgpu",
		log:  bulb.NewNopLogger(),
		live: make(map[uuid.UUID]*buffer),
	}
	for _, o := range opts {
		o(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		d.instance.Release()
		return nil, fmt.Errorf("wgpudev: request adapter: %w", err)
	}
	d.adapter = adapter

	d.device, err = adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: d.name})
	if err != nil {
		adapter.Release()
		d.instance.Release()
		return nil, fmt.Errorf("wgpudev: request device: %w", err)
	}
	d.queue = d.device.GetQueue()

	d.log.Infof("device %s ready", d.name)
	return d, nil
}

func (d *Device) Name() string { return d.name }

type buffer struct {
	dev      *Device
	id       uuid.UUID
	label    string
	size     uint64
	buf      *wgpu.Buffer
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
	b.buf.Release()
	b.buf = nil
	delete(b.dev.live, b.id)
	b.dev.liveBytes -= align4(b.size)
}

// align4 rounds n up to the 4 byte granularity of buffer copies.
func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

func wgpuUsage(u device.Usage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u.Has(device.UsageStorage) {
		out |= wgpu.BufferUsageStorage
	}
	if u.Has(device.UsageUniform) {
		out |= wgpu.BufferUsageUniform
	}
	if u.Has(device.UsageCopySrc) {
		out |= wgpu.BufferUsageCopySrc
	}
	if u.Has(device.UsageCopyDst) {
		out |= wgpu.BufferUsageCopyDst
	}
	// writes and readback always go through the queue
	return out | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
}

func (d *Device) CreateBuffer(label string, size uint64, usage device.Usage) (device.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: %s: zero size", device.ErrAllocationFailed, label)
	}
	padded := align4(size)
	if d.memCap > 0 && d.liveBytes+padded > d.memCap {
		d.log.Warnf("%s: %d bytes over the cap (%d live, cap %d)", label, padded, d.liveBytes, d.memCap)
		return nil, fmt.Errorf("%w: %s: %d bytes exceeds memory cap", device.ErrAllocationFailed, label, size)
	}
	wb, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  padded,
		Usage: wgpuUsage(usage),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", device.ErrAllocationFailed, label, err)
	}
	b := &buffer{dev: d, id: uuid.New(), label: label, size: size, buf: wb}
	d.live[b.id] = b
	d.liveBytes += padded
	return b, nil
}

func (d *Device) own(buf device.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b.dev != d {
		return nil, fmt.Errorf("buffer %v does not belong to device %s", buf, d.name)
	}
	if b.released {
		return nil, fmt.Errorf("buffer %s (%s) was released", b.label, b.id)
	}
	return b, nil
}

// WriteBuffer uploads data to the start of buf. The upload is padded to a
// multiple of 4 bytes.
func (d *Device) WriteBuffer(buf device.Buffer, data []byte) error {
	b, err := d.own(buf)
	if err != nil {
		return fmt.Errorf("wgpudev: write: %w", err)
	}
	if uint64(len(data)) > b.size {
		return fmt.Errorf("wgpudev: write of %d bytes into %s (%d bytes)", len(data), b.label, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	if rem := len(data) % 4; rem != 0 {
		padded := make([]byte, len(data)+4-rem)
		copy(padded, data)
		data = padded
	}
	d.queue.WriteBuffer(b.buf, 0, data)
	return nil
}

// ReadBuffer copies buf into a map-read staging buffer, maps it and waits
// for the mapping before copying into dst.
func (d *Device) ReadBuffer(buf device.Buffer, dst []byte) error {
	b, err := d.own(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", device.ErrReadbackFailed, err)
	}
	if uint64(len(dst)) > b.size {
		return fmt.Errorf("%w: %s: read of %d bytes from %d", device.ErrReadbackFailed, b.label, len(dst), b.size)
	}
	if len(dst) == 0 {
		return nil
	}
	size := align4(uint64(len(dst)))

	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: b.label + " readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: staging buffer: %v", device.ErrReadbackFailed, b.label, err)
	}
	defer staging.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrReadbackFailed, b.label, err)
	}
	encoder.CopyBufferToBuffer(b.buf, 0, staging, 0, size)
	cmd, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrReadbackFailed, b.label, err)
	}
	d.queue.Submit(cmd)
	cmd.Release()

	var status wgpu.BufferMapAsyncStatus
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrReadbackFailed, b.label, err)
	}
	d.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("%w: %s: map status %v", device.ErrReadbackFailed, b.label, status)
	}
	copy(dst, staging.GetMappedRange(0, uint(size)))
	staging.Unmap()
	return nil
}

// Release frees every buffer and kernel still held by the context, then the
// device itself.
func (d *Device) Release() {
	for _, k := range d.kernels {
		k.Release()
	}
	d.kernels = nil
	for _, b := range d.live {
		b.Release()
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}
