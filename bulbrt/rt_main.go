package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/gekko3d/bulb"
	"github.com/gekko3d/bulb/bulbrt/rt/app"
	"github.com/gekko3d/bulb/bulbrt/rt/device"
	"github.com/gekko3d/bulb/bulbrt/rt/device/hostdev"
	"github.com/gekko3d/bulb/bulbrt/rt/device/wgpudev"
	"github.com/gekko3d/bulb/bulbrt/rt/gpu"
	"github.com/gekko3d/bulb/bulbrt/rt/kernels"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "TOML or YAML config file")
	backend := flag.String("backend", bulb.BackendWGPU, "compute backend: wgpu or host")
	kernelDir := flag.String("kernels", "", "directory with mandel.wgsl and ray.wgsl overriding the built-in kernels")
	edge := flag.Int("edge", 384, "volume edge length in voxels")
	power := flag.Float64("power", 8, "mandelbulb power")
	width := flag.Int("width", 512, "image width")
	height := flag.Int("height", 512, "image height")
	rotate := flag.String("rotate", "", "camera rotation in steps of pi/10 about x,y,z, e.g. 0,2,0")
	zoom := flag.Float64("zoom", 1, "view plane scale, below 1 zooms in")
	out := flag.String("out", "image.png", "image file (.png, .jpg, .tiff, .bmp)")
	voxels := flag.String("voxels", "", "write the voxel volume to this file")
	debugDump := flag.String("debugdump", "", "write the per-pixel debug values to this file")
	compress := flag.Bool("compress", false, "zstd compress the voxel dump")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg := bulb.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = bulb.LoadConfig(*configPath); err != nil {
			fatal(err)
		}
	}

	// flags given on the command line win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "kernels":
			cfg.KernelDir = *kernelDir
		case "edge":
			cfg.Volume.Edge = *edge
		case "power":
			cfg.Volume.Power = float32(*power)
		case "width":
			cfg.Image.Width = *width
		case "height":
			cfg.Image.Height = *height
		case "out":
			cfg.Output.Image = *out
		case "voxels":
			cfg.Output.Voxels = *voxels
		case "debugdump":
			cfg.Output.Debug = *debugDump
		case "compress":
			cfg.Output.CompressVoxels = *compress
		case "debug":
			cfg.Debug = *debug
		}
	})
	if cfg.Output.Image == "" {
		cfg.Output.Image = *out
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	log := bulb.NewDefaultLogger("bulb", cfg.Debug)
	if err := run(cfg, *rotate, float32(*zoom), log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg bulb.Config, rotate string, zoom float32, log bulb.Logger) error {
	fill, render, err := kernels.Load(cfg.KernelDir)
	if err != nil {
		return err
	}

	ctx, err := openDevice(cfg, log)
	if err != nil {
		return err
	}
	defer ctx.Release()

	engine, err := gpu.NewEngine(ctx, fill, render, gpu.WithLogger(log))
	if err != nil {
		return err
	}
	defer engine.Release()

	a := app.NewApp(engine, cfg, log)
	if err := a.Redraw(true); err != nil {
		return err
	}
	if rotate != "" {
		x, y, z, err := parseRotation(rotate)
		if err != nil {
			return err
		}
		if err := a.Rotate(x, y, z); err != nil {
			return err
		}
	}
	if zoom != 1 {
		if err := a.Zoom(zoom); err != nil {
			return err
		}
	}
	if err := a.SaveOutputs(); err != nil {
		return err
	}
	log.Infof("recalc %s ms, rerender %s ms", a.Profiler.Milliseconds(app.ScopeRecalc), a.Profiler.Milliseconds(app.ScopeRerender))
	if log.DebugEnabled() {
		log.Debugf("\n%s", a.Profiler.String())
	}
	return nil
}

func openDevice(cfg bulb.Config, log bulb.Logger) (device.Context, error) {
	if cfg.Backend == bulb.BackendHost {
		opts := append(kernels.HostKernels(),
			hostdev.WithLogger(log),
			hostdev.WithMemoryCap(cfg.MemoryCap),
		)
		if cfg.Workers > 0 {
			opts = append(opts, hostdev.WithWorkers(cfg.Workers))
		}
		return hostdev.New(opts...), nil
	}
	d, err := wgpudev.New(wgpudev.WithLogger(log), wgpudev.WithMemoryCap(cfg.MemoryCap))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func parseRotation(s string) (x, y, z float32, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("rotate: want x,y,z, got %q", s)
	}
	var v [3]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("rotate: %w", err)
		}
		v[i] = float32(f)
	}
	return v[0], v[1], v[2], nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}
