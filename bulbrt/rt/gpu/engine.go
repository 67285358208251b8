package gpu

import (
	"fmt"

	"github.com/gekko3d/bulb"
	"github.com/gekko3d/bulb/bulbrt/rt/core"
	"github.com/gekko3d/bulb/bulbrt/rt/device"
	"github.com/gekko3d/bulb/bulbrt/rt/kernels"
)

type EngineOption func(*engineOptions)

type engineOptions struct {
	log         bulb.Logger
	edge        int
	frameWidth  int
	frameHeight int
}

func WithLogger(l bulb.Logger) EngineOption {
	return func(o *engineOptions) { o.log = l }
}

// WithInitialEdge sets the edge length the volume is created with.
func WithInitialEdge(edge int) EngineOption {
	return func(o *engineOptions) { o.edge = edge }
}

func WithInitialFrame(width, height int) EngineOption {
	return func(o *engineOptions) { o.frameWidth, o.frameHeight = width, height }
}

// Engine fills a voxel volume with the fractal and ray-marches it into
// images. Every call blocks until the device is idle again. An Engine is not
// safe for concurrent use.
type Engine struct {
	ctx device.Context
	log bulb.Logger

	fill   *KernelBinding
	render *KernelBinding

	volume   *VolumeResource
	frame    *FrameResource
	config   device.Buffer
	layout   core.ConfigLayout
	readback *ReadbackExporter
}

// NewEngine loads the fill and render kernels on ctx and creates the
// engine's resources at their dummy sizes. ctx stays owned by the caller.
func NewEngine(ctx device.Context, fillSrc, renderSrc device.KernelSource, opts ...EngineOption) (*Engine, error) {
	o := engineOptions{edge: DummyEdge, frameWidth: DummyFrame, frameHeight: DummyFrame}
	for _, opt := range opts {
		opt(&o)
	}
	log := bulb.Component(o.log, "gpu")

	layout, err := core.LayoutForSlots(renderSrc.ConfigSlots)
	if err != nil {
		return nil, fmt.Errorf("gpu: kernel %s: %w", renderSrc.Name, err)
	}

	e := &Engine{ctx: ctx, log: log, layout: layout, readback: NewReadbackExporter(ctx)}
	if err := e.init(fillSrc, renderSrc, o); err != nil {
		e.Release()
		return nil, err
	}
	log.Infof("engine on %s, kernels %s and %s, %d config slots", ctx.Name(), fillSrc.Name, renderSrc.Name, layout.Slots)
	return e, nil
}

func (e *Engine) init(fillSrc, renderSrc device.KernelSource, o engineOptions) (err error) {
	ctx := e.ctx
	fk, err := ctx.LoadKernel(fillSrc)
	if err != nil {
		return err
	}
	e.fill = NewKernelBinding(fk)
	rk, err := ctx.LoadKernel(renderSrc)
	if err != nil {
		return err
	}
	e.render = NewKernelBinding(rk)

	if e.volume, err = NewVolumeResource(ctx, o.edge, e.log); err != nil {
		return err
	}
	if e.frame, err = NewFrameResource(ctx, o.frameWidth, o.frameHeight, e.log); err != nil {
		return err
	}
	if e.config, err = ctx.CreateBuffer("config", uint64(e.layout.Slots)*4, device.UsageStorage|device.UsageCopyDst); err != nil {
		return err
	}

	if err = e.bindVolume(); err != nil {
		return err
	}
	if err = e.bindFrame(); err != nil {
		return err
	}
	return e.render.BindBuffer(kernels.ArgConfig, e.config)
}

// bindVolume points the voxels argument of both kernels at the current volume.
func (e *Engine) bindVolume() error {
	if err := e.fill.BindBuffer(kernels.ArgVoxels, e.volume.Buffer()); err != nil {
		return err
	}
	return e.render.BindBuffer(kernels.ArgVoxels, e.volume.Buffer())
}

func (e *Engine) bindFrame() error {
	if err := e.render.BindBuffer(kernels.ArgImage, e.frame.Color()); err != nil {
		return err
	}
	if !e.render.Has(kernels.ArgDebug) {
		return nil
	}
	return e.render.BindBuffer(kernels.ArgDebug, e.frame.Debug())
}

// FillVolume evaluates the power-N mandelbulb into an edge³ volume.
// On a dispatch error the volume contents are unspecified.
func (e *Engine) FillVolume(edge int, power float32) error {
	changed, err := e.volume.EnsureCapacity(edge)
	if err != nil {
		return err
	}
	if changed {
		if err := e.bindVolume(); err != nil {
			return err
		}
		e.log.Debugf("rebound %s to %s", kernels.ArgVoxels, e.volume.Buffer().ID())
	}
	if err := e.fill.BindScalar(kernels.ArgPower, power); err != nil {
		return err
	}
	n := uint32(edge)
	return e.fill.Dispatch(e.ctx, [3]uint32{n, n, n})
}

// Render ray-marches the current volume from cam into out, which must hold
// at least width*height*4 bytes. out is only written once the whole image
// has been read back.
func (e *Engine) Render(out []byte, width, height int, cam core.Camera) error {
	if err := checkFrame(width, height); err != nil {
		return err
	}
	need := width * height * 4
	if len(out) < need {
		return fmt.Errorf("%w: %d bytes for a %dx%d frame, need %d", ErrOutputTooSmall, len(out), width, height, need)
	}

	changed, err := e.frame.EnsureCapacity(width, height)
	if err != nil {
		return err
	}
	if changed {
		if err := e.bindFrame(); err != nil {
			return err
		}
	}

	cfg := core.EncodeLayout(cam, e.volume.Edge(), e.layout)
	if err := e.ctx.WriteBuffer(e.config, cfg.Bytes()); err != nil {
		return fmt.Errorf("%w: config upload: %v", device.ErrKernelDispatchFailed, err)
	}
	if err := e.render.BindBuffer(kernels.ArgConfig, e.config); err != nil {
		return err
	}
	if err := e.render.BindBuffer(kernels.ArgVoxels, e.volume.Buffer()); err != nil {
		return err
	}

	if err := e.render.Dispatch(e.ctx, [3]uint32{uint32(width), uint32(height), 1}); err != nil {
		return err
	}
	return e.readback.ReadInto(e.frame.Color(), out[:need])
}

// SaveVoxels returns a copy of the volume, x fastest.
func (e *Engine) SaveVoxels() ([]byte, error) {
	return e.readback.Bytes(e.volume.Buffer(), int(e.volume.Bytes()))
}

// SaveDebug returns a copy of the per-pixel debug values of the last render.
func (e *Engine) SaveDebug() ([]float32, error) {
	return e.readback.Float32s(e.frame.Debug(), e.frame.Pixels())
}

func (e *Engine) EdgeLength() int                 { return e.volume.Edge() }
func (e *Engine) FrameSize() (width, height int)  { return e.frame.Size() }
func (e *Engine) Volume() *VolumeResource         { return e.volume }
func (e *Engine) Frame() *FrameResource           { return e.frame }
func (e *Engine) ConfigLayout() core.ConfigLayout { return e.layout }

// Binding returns the argument table of the kernel with the given name.
func (e *Engine) Binding(kernel string) *KernelBinding {
	switch kernel {
	case e.fill.Kernel().Name():
		return e.fill
	case e.render.Kernel().Name():
		return e.render
	}
	return nil
}

// Release frees every resource the engine created. The device context is
// left to its owner.
func (e *Engine) Release() {
	if e.volume != nil {
		e.volume.Release()
	}
	if e.frame != nil {
		e.frame.Release()
	}
	if e.config != nil {
		e.config.Release()
		e.config = nil
	}
	if e.fill != nil {
		e.fill.Kernel().Release()
	}
	if e.render != nil {
		e.render.Kernel().Release()
	}
}
