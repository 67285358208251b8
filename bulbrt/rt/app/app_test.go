package app

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gekko3d/bulb"
	"github.com/gekko3d/bulb/bulbrt/rt/core"
	"github.com/gekko3d/bulb/bulbrt/rt/device"
	"github.com/gekko3d/bulb/bulbrt/rt/device/hostdev"
	"github.com/gekko3d/bulb/bulbrt/rt/export"
	"github.com/gekko3d/bulb/bulbrt/rt/gpu"
	"github.com/gekko3d/bulb/bulbrt/rt/kernels"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() bulb.Config {
	cfg := bulb.DefaultConfig()
	cfg.Backend = bulb.BackendHost
	cfg.Volume.Edge = 12
	cfg.Image.Width, cfg.Image.Height = 16, 12
	return cfg
}

func newApp(t *testing.T, cfg bulb.Config, opts ...hostdev.Option) *App {
	t.Helper()
	d := hostdev.New(append(kernels.HostKernels(), opts...)...)
	e, err := gpu.NewEngine(d, kernels.Fill(), kernels.Render())
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return NewApp(e, cfg, nil)
}

func TestRedraw_RecordsScopes(t *testing.T) {
	a := newApp(t, testConfig())
	assert.Equal(t, "---.---", a.Profiler.Milliseconds(ScopeRecalc))

	require.NoError(t, a.Redraw(true))
	assert.Len(t, a.Image(), 16*12*4)
	assert.Equal(t, 12, a.Engine.EdgeLength())
	assert.Contains(t, a.Profiler.Scopes, ScopeRecalc)
	assert.NotContains(t, a.Profiler.Scopes, ScopeRerender)

	require.NoError(t, a.Redraw(false))
	assert.Contains(t, a.Profiler.Scopes, ScopeRerender)
	assert.Equal(t, []string{ScopeRecalc, ScopeRerender}, a.Profiler.Order)
	assert.Equal(t, 2, a.Profiler.Counts["frame allocs"])
	assert.Equal(t, 1, a.Profiler.Runs[ScopeRecalc])
}

func TestActions_UpdateState(t *testing.T) {
	a := newApp(t, testConfig())
	require.NoError(t, a.Redraw(true))

	require.NoError(t, a.SetPower(4))
	assert.Equal(t, float32(4), a.Power)

	start := a.Camera
	require.NoError(t, a.Rotate(0, 1, 0))
	assert.Equal(t, start.Rotate(0, 1, 0), a.Camera)

	before := a.Camera.ViewPlaneRight
	require.NoError(t, a.ZoomIn())
	assert.InDelta(t, before.Len()/1.2, a.Camera.ViewPlaneRight.Len(), 1e-6)
	require.NoError(t, a.ZoomOut())
	assert.InDelta(t, before.Len(), a.Camera.ViewPlaneRight.Len(), 1e-6)

	require.NoError(t, a.Resize(8, 8))
	assert.Len(t, a.Image(), 8*8*4)
	w, h := a.Engine.FrameSize()
	assert.Equal(t, []int{8, 8}, []int{w, h})

	require.NoError(t, a.SetEdge(10))
	assert.Equal(t, 10, a.Engine.EdgeLength())
}

func TestRedraw_ErrorsAreWrapped(t *testing.T) {
	a := newApp(t, testConfig())
	a.Edge = 0
	err := a.Redraw(true)
	assert.ErrorIs(t, err, gpu.ErrInvalidSize)
	assert.Contains(t, err.Error(), "app: fill")
}

func TestSaveOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Output = bulb.OutputConfig{
		Image:          filepath.Join(dir, "bulb.png"),
		Voxels:         filepath.Join(dir, "bulb.vox"),
		Debug:          filepath.Join(dir, "bulb.dbg"),
		CompressVoxels: true,
		DebugFormat:    "bincode",
	}
	a := newApp(t, cfg)

	assert.Error(t, a.SaveImage(cfg.Output.Image), "nothing rendered")
	require.NoError(t, a.Redraw(true))
	require.NoError(t, a.SaveOutputs())

	vox, err := export.LoadVoxels(cfg.Output.Voxels)
	require.NoError(t, err)
	assert.Len(t, vox, 12*12*12)
}

func TestProfiler(t *testing.T) {
	p := NewProfiler()
	clock := time.Unix(0, 0)
	p.now = func() time.Time { return clock }

	p.BeginScope(ScopeRecalc)
	clock = clock.Add(1500 * time.Microsecond)
	assert.Equal(t, 1500*time.Microsecond, p.EndScope(ScopeRecalc))
	assert.Equal(t, "1.500", p.Milliseconds(ScopeRecalc))
	assert.Equal(t, time.Duration(0), p.EndScope("never started"))

	p.BeginScope(ScopeRecalc)
	assert.Len(t, p.Order, 1)

	p.SetCount("frame allocs", 3)
	out := p.String()
	assert.True(t, strings.Contains(out, "recalc") && strings.Contains(out, "1.500 ms (1 runs)"))
	assert.Contains(t, out, "frame allocs")
}

func TestNewApp_CopiesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Camera.Eye = [3]float32{0.5, 0.5, -3}
	a := newApp(t, cfg)
	assert.Equal(t, core.DefaultCamera().Light, a.Camera.Light)
	assert.Equal(t, float32(-3), a.Camera.Eye.Z())
	assert.Equal(t, cfg.Volume.Power, a.Power)
}

func TestResize_InvalidSizeKeepsState(t *testing.T) {
	a := newApp(t, testConfig())
	require.NoError(t, a.Redraw(true))
	last := bytes.Clone(a.Image())

	var err error
	require.NotPanics(t, func() { err = a.Resize(-1, 4) })
	assert.ErrorIs(t, err, gpu.ErrInvalidSize)
	assert.Equal(t, []int{16, 12}, []int{a.Width, a.Height})
	assert.Equal(t, last, a.Image())

	assert.ErrorIs(t, a.SetEdge(0), gpu.ErrInvalidSize)
	assert.Equal(t, 12, a.Edge)
	require.NoError(t, a.Redraw(true))
}

func TestResize_AllocationFailureKeepsLastFrame(t *testing.T) {
	a := newApp(t, testConfig(), hostdev.WithMemoryCap(16384))
	require.NoError(t, a.Redraw(true))
	last := bytes.Clone(a.Image())

	err := a.Resize(64, 64)
	assert.ErrorIs(t, err, device.ErrAllocationFailed)
	assert.Equal(t, []int{16, 12}, []int{a.Width, a.Height})
	assert.Equal(t, last, a.Image())
	w, h := a.ImageSize()
	assert.Equal(t, []int{16, 12}, []int{w, h})

	path := filepath.Join(t.TempDir(), "last.png")
	require.NoError(t, a.SaveImage(path))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 12), img.Bounds())

	// the user can retry at the old size
	require.NoError(t, a.Redraw(false))
}

func TestRotate_FailureRestoresCamera(t *testing.T) {
	a := newApp(t, testConfig())
	require.NoError(t, a.Redraw(true))
	cam := a.Camera
	a.Width = 0
	assert.Error(t, a.Rotate(0, 1, 0))
	assert.Equal(t, cam, a.Camera)
}
