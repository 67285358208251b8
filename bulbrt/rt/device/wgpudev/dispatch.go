package wgpudev

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/gekko3d/bulb/bulbrt/rt/device"

	"github.com/cogentcore/webgpu/wgpu"
)

// uniformSize holds one f32 scalar or the vec4<u32> domain extent.
const uniformSize = 16

type kernel struct {
	dev      *Device
	src      device.KernelSource
	module   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout

	// uniforms backs every scalar and domain argument.
	uniforms map[string]*wgpu.Buffer
	// placeholder stands in for unbound optional buffers.
	placeholder *wgpu.Buffer

	bindGroup *wgpu.BindGroup
	bindKey   string
	released  bool
}

func (k *kernel) Name() string                { return k.src.Name }
func (k *kernel) Source() device.KernelSource { return k.src }

func (k *kernel) Release() {
	if k.released {
		return
	}
	k.released = true
	if k.bindGroup != nil {
		k.bindGroup.Release()
		k.bindGroup = nil
	}
	for _, u := range k.uniforms {
		u.Release()
	}
	k.uniforms = nil
	if k.placeholder != nil {
		k.placeholder.Release()
		k.placeholder = nil
	}
	if k.layout != nil {
		k.layout.Release()
	}
	if k.pipeline != nil {
		k.pipeline.Release()
	}
	if k.module != nil {
		k.module.Release()
	}
}

// LoadKernel compiles src and builds its compute pipeline with a layout
// derived from the program.
func (d *Device) LoadKernel(src device.KernelSource) (device.Kernel, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: src.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: src.Code,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: shader module: %v", device.ErrKernelLoad, src.Name, err)
	}
	k := &kernel{dev: d, src: src, module: module, uniforms: make(map[string]*wgpu.Buffer)}

	k.pipeline, err = d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: src.Name,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: src.EntryPoint,
		},
	})
	if err != nil {
		k.Release()
		return nil, fmt.Errorf("%w: %s: pipeline: %v", device.ErrKernelLoad, src.Name, err)
	}
	k.layout = k.pipeline.GetBindGroupLayout(0)

	for _, spec := range src.Args {
		switch {
		case spec.Kind == device.ArgScalar || spec.Kind == device.ArgDomain:
			u, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
				Label: src.Name + "." + spec.Name,
				Size:  uniformSize,
				Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
			})
			if err != nil {
				k.Release()
				return nil, fmt.Errorf("%w: %s.%s: %v", device.ErrKernelLoad, src.Name, spec.Name, err)
			}
			k.uniforms[spec.Name] = u
		case spec.Optional && k.placeholder == nil:
			k.placeholder, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
				Label: src.Name + " placeholder",
				Size:  uniformSize,
				Usage: wgpu.BufferUsageStorage,
			})
			if err != nil {
				k.Release()
				return nil, fmt.Errorf("%w: %s: %v", device.ErrKernelLoad, src.Name, err)
			}
		}
	}

	d.kernels = append(d.kernels, k)
	d.log.Debugf("loaded kernel %s (entry %s, workgroup %v)", src.Name, src.EntryPoint, src.WorkgroupSize)
	return k, nil
}

// workgroups returns the group count covering n items in groups of size.
func workgroups(n, size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	return (n + size - 1) / size
}

// bindKey identifies the buffers a bind group was built for. Any new
// allocation changes the key and forces a rebuild.
func bindKey(src device.KernelSource, bufs map[string]*buffer) string {
	var sb strings.Builder
	for _, spec := range src.Args {
		if spec.Kind != device.ArgBuffer {
			continue
		}
		sb.WriteString(spec.Name)
		sb.WriteByte('=')
		if b, ok := bufs[spec.Name]; ok {
			sb.WriteString(b.id.String())
		} else {
			sb.WriteByte('-')
		}
		sb.WriteByte(';')
	}
	return sb.String()
}

func scalarBytes(v float32) []byte {
	out := make([]byte, uniformSize)
	binary.LittleEndian.PutUint32(out, math.Float32bits(v))
	return out
}

func domainBytes(grid [3]uint32) []byte {
	out := make([]byte, uniformSize)
	for i, v := range grid {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func (d *Device) Dispatch(k device.Kernel, args map[string]device.Arg, grid [3]uint32) error {
	wk, ok := k.(*kernel)
	if !ok || wk.dev != d {
		return fmt.Errorf("%w: kernel %v does not belong to device %s", device.ErrKernelDispatchFailed, k, d.name)
	}
	if wk.released {
		return fmt.Errorf("%w: kernel %s was released", device.ErrKernelDispatchFailed, wk.src.Name)
	}
	if err := device.CheckGrid(grid); err != nil {
		return err
	}
	if err := device.CheckArgs(wk.src, args); err != nil {
		return err
	}

	bufs := make(map[string]*buffer)
	for name, arg := range args {
		if !arg.IsBuffer() {
			d.queue.WriteBuffer(wk.uniforms[name], 0, scalarBytes(arg.Scalar))
			continue
		}
		b, err := d.own(arg.Buffer)
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", device.ErrKernelDispatchFailed, wk.src.Name, name, err)
		}
		bufs[name] = b
	}
	for _, spec := range wk.src.Args {
		if spec.Kind == device.ArgDomain {
			d.queue.WriteBuffer(wk.uniforms[spec.Name], 0, domainBytes(grid))
		}
	}

	if key := bindKey(wk.src, bufs); key != wk.bindKey || wk.bindGroup == nil {
		if err := d.rebind(wk, bufs); err != nil {
			return err
		}
		wk.bindKey = key
	}

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrKernelDispatchFailed, wk.src.Name, err)
	}
	wg := wk.src.WorkgroupSize
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(wk.pipeline)
	pass.SetBindGroup(0, wk.bindGroup, nil)
	pass.DispatchWorkgroups(workgroups(grid[0], wg[0]), workgroups(grid[1], wg[1]), workgroups(grid[2], wg[2]))
	pass.End()
	pass.Release()

	cmd, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrKernelDispatchFailed, wk.src.Name, err)
	}
	d.queue.Submit(cmd)
	cmd.Release()
	d.device.Poll(true, nil)
	return nil
}

// rebind rebuilds the bind group of k for the given buffers.
func (d *Device) rebind(k *kernel, bufs map[string]*buffer) error {
	entries := make([]wgpu.BindGroupEntry, 0, len(k.src.Args))
	for _, spec := range k.src.Args {
		switch spec.Kind {
		case device.ArgScalar, device.ArgDomain:
			entries = append(entries, wgpu.BindGroupEntry{
				Binding: spec.Binding,
				Buffer:  k.uniforms[spec.Name],
				Size:    uniformSize,
			})
		case device.ArgBuffer:
			if b, ok := bufs[spec.Name]; ok {
				entries = append(entries, wgpu.BindGroupEntry{
					Binding: spec.Binding,
					Buffer:  b.buf,
					Size:    align4(b.size),
				})
				continue
			}
			entries = append(entries, wgpu.BindGroupEntry{
				Binding: spec.Binding,
				Buffer:  k.placeholder,
				Size:    uniformSize,
			})
		}
	}

	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.src.Name,
		Layout:  k.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: bind group: %v", device.ErrKernelDispatchFailed, k.src.Name, err)
	}
	if k.bindGroup != nil {
		k.bindGroup.Release()
	}
	k.bindGroup = bg
	d.log.Debugf("rebuilt bind group of %s", k.src.Name)
	return nil
}
