// Package app is the headless front end of the renderer. It holds the
// render state (power, camera, sizes), redraws through the engine and saves
// the results.
package app

import (
	"fmt"

	"github.com/gekko3d/bulb"
	"github.com/gekko3d/bulb/bulbrt/rt/core"
	"github.com/gekko3d/bulb/bulbrt/rt/export"
	"github.com/gekko3d/bulb/bulbrt/rt/gpu"
)

// Zoom factors of the zoom in and zoom out actions.
const (
	ZoomInFactor  = 1 / 1.2
	ZoomOutFactor = 1.2
)

type App struct {
	Engine   *gpu.Engine
	Log      bulb.Logger
	Profiler *Profiler

	Power         float32
	Edge          int
	Width, Height int
	Camera        core.Camera
	Output        bulb.OutputConfig

	// last frame that rendered successfully and its size
	image                   []byte
	imageWidth, imageHeight int
}

func NewApp(engine *gpu.Engine, cfg bulb.Config, log bulb.Logger) *App {
	return &App{
		Engine:   engine,
		Log:      bulb.Component(log, "app"),
		Profiler: NewProfiler(),
		Power:    cfg.Volume.Power,
		Edge:     cfg.Volume.Edge,
		Width:    cfg.Image.Width,
		Height:   cfg.Image.Height,
		Camera:   cfg.Camera.Camera(),
		Output:   cfg.Output,
	}
}

// Redraw renders the current state, recomputing the volume first when
// recalc is set. The elapsed time lands in the recalc or rerender scope.
// The previous frame is kept until a new one has been read back.
func (a *App) Redraw(recalc bool) error {
	scope := ScopeRerender
	if recalc {
		scope = ScopeRecalc
	}
	a.Profiler.BeginScope(scope)

	if recalc {
		if err := a.Engine.FillVolume(a.Edge, a.Power); err != nil {
			a.Profiler.EndScope(scope)
			return fmt.Errorf("app: fill %d³ at power %g: %w", a.Edge, a.Power, err)
		}
	}
	frame := a.image
	if a.Width != a.imageWidth || a.Height != a.imageHeight || frame == nil {
		frame = nil
		// out of range sizes are left to the engine to reject
		if a.Width >= 1 && a.Height >= 1 && a.Width <= gpu.MaxFrameSide && a.Height <= gpu.MaxFrameSide {
			frame = make([]byte, a.Width*a.Height*4)
		}
	}
	if err := a.Engine.Render(frame, a.Width, a.Height, a.Camera); err != nil {
		a.Profiler.EndScope(scope)
		return fmt.Errorf("app: render %dx%d: %w", a.Width, a.Height, err)
	}
	a.image, a.imageWidth, a.imageHeight = frame, a.Width, a.Height

	a.Profiler.EndScope(scope)
	a.Profiler.SetCount("volume allocs", a.Engine.Volume().Allocations())
	a.Profiler.SetCount("frame allocs", a.Engine.Frame().Allocations())
	a.Log.Debugf("%s took %s ms", scope, a.Profiler.Milliseconds(scope))
	return nil
}

type viewState struct {
	power         float32
	edge          int
	width, height int
	camera        core.Camera
}

// update applies change and redraws. A failed redraw puts the previous
// state back so the user can retry from where they were.
func (a *App) update(recalc bool, change func()) error {
	saved := viewState{a.Power, a.Edge, a.Width, a.Height, a.Camera}
	change()
	if err := a.Redraw(recalc); err != nil {
		a.Power, a.Edge, a.Width, a.Height, a.Camera = saved.power, saved.edge, saved.width, saved.height, saved.camera
		return err
	}
	return nil
}

func (a *App) SetPower(power float32) error {
	return a.update(true, func() { a.Power = power })
}

func (a *App) SetEdge(edge int) error {
	return a.update(true, func() { a.Edge = edge })
}

func (a *App) Resize(width, height int) error {
	return a.update(false, func() { a.Width, a.Height = width, height })
}

// Rotate turns the camera by x, y and z steps about the volume centre.
func (a *App) Rotate(x, y, z float32) error {
	return a.update(false, func() { a.Camera = a.Camera.Rotate(x, y, z) })
}

func (a *App) Zoom(scale float32) error {
	return a.update(false, func() { a.Camera = a.Camera.Zoom(scale) })
}

func (a *App) ZoomIn() error  { return a.Zoom(ZoomInFactor) }
func (a *App) ZoomOut() error { return a.Zoom(ZoomOutFactor) }

// Image returns the last rendered frame, RGBA rows top to bottom.
func (a *App) Image() []byte { return a.image }

// ImageSize is the size of the frame Image returns.
func (a *App) ImageSize() (width, height int) { return a.imageWidth, a.imageHeight }

func (a *App) SaveImage(path string) error {
	if a.image == nil {
		return fmt.Errorf("app: nothing rendered yet")
	}
	if err := export.SaveImage(path, a.image, a.imageWidth, a.imageHeight); err != nil {
		return err
	}
	a.Log.Infof("saved %dx%d image to %s", a.imageWidth, a.imageHeight, path)
	return nil
}

func (a *App) SaveVoxels(path string) error {
	vox, err := a.Engine.SaveVoxels()
	if err != nil {
		return err
	}
	if err := export.SaveVoxels(path, vox, a.Output.CompressVoxels); err != nil {
		return err
	}
	a.Log.Infof("saved %d voxels to %s", len(vox), path)
	return nil
}

func (a *App) SaveDebug(path string) error {
	format, err := export.ParseDebugFormat(a.Output.DebugFormat)
	if err != nil {
		return err
	}
	values, err := a.Engine.SaveDebug()
	if err != nil {
		return err
	}
	if err := export.SaveDebug(path, values, format); err != nil {
		return err
	}
	a.Log.Infof("saved %d debug values (%s) to %s", len(values), format, path)
	return nil
}

// SaveOutputs writes every file named in the output config.
func (a *App) SaveOutputs() error {
	if a.Output.Image != "" {
		if err := a.SaveImage(a.Output.Image); err != nil {
			return err
		}
	}
	if a.Output.Voxels != "" {
		if err := a.SaveVoxels(a.Output.Voxels); err != nil {
			return err
		}
	}
	if a.Output.Debug != "" {
		if err := a.SaveDebug(a.Output.Debug); err != nil {
			return err
		}
	}
	return nil
}
