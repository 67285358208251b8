package kernels

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gekko3d/bulb/bulbrt/rt/core"
	"github.com/gekko3d/bulb/bulbrt/rt/device"

	"github.com/gogpu/naga"
)

//go:embed mandel.wgsl
var MandelWGSL string

//go:embed ray.wgsl
var RayWGSL string

const (
	FillName   = "mandel"
	RenderName = "ray"

	FillFile   = "mandel.wgsl"
	RenderFile = "ray.wgsl"
)

// Argument names shared by the host and the kernels.
const (
	ArgVoxels = "voxels"
	ArgPower  = "power"
	ArgImage  = "image"
	ArgConfig = "config"
	ArgDebug  = "debug"
	ArgGrid   = "grid"
)

// Fill returns the voxel-fill kernel: voxels(rw bytes), power(f32).
// Dispatched over [edge, edge, edge].
func Fill() device.KernelSource {
	return device.KernelSource{
		Name:          FillName,
		EntryPoint:    "mandel",
		Code:          MandelWGSL,
		WorkgroupSize: [3]uint32{4, 4, 4},
		Args: []device.ArgSpec{
			{Name: ArgVoxels, Binding: 0, Kind: device.ArgBuffer, Access: device.ReadWrite},
			{Name: ArgPower, Binding: 1, Kind: device.ArgScalar, Access: device.ReadOnly},
			{Name: ArgGrid, Binding: 2, Kind: device.ArgDomain, Access: device.ReadOnly},
		},
	}
}

// Render returns the ray-march kernel: image(4 bytes per pixel),
// voxels(read), config(18 f32), debug(f32 per pixel, optional).
// Dispatched over [width, height, 1].
func Render() device.KernelSource {
	return device.KernelSource{
		Name:          RenderName,
		EntryPoint:    "ray",
		Code:          RayWGSL,
		WorkgroupSize: [3]uint32{8, 8, 1},
		ConfigSlots:   core.ConfigSlots,
		Args: []device.ArgSpec{
			{Name: ArgImage, Binding: 0, Kind: device.ArgBuffer, Access: device.WriteOnly},
			{Name: ArgVoxels, Binding: 1, Kind: device.ArgBuffer, Access: device.ReadOnly},
			{Name: ArgConfig, Binding: 2, Kind: device.ArgBuffer, Access: device.ReadOnly},
			{Name: ArgDebug, Binding: 3, Kind: device.ArgBuffer, Access: device.WriteOnly, Optional: true},
			{Name: ArgGrid, Binding: 4, Kind: device.ArgDomain, Access: device.ReadOnly},
		},
	}
}

// Load returns both kernels, taking the program text from dir/mandel.wgsl
// and dir/ray.wgsl where those files exist. Files read from disk are
// validated; an empty dir selects the built-in programs.
func Load(dir string) (fill, render device.KernelSource, err error) {
	fill, render = Fill(), Render()
	if dir == "" {
		return fill, render, nil
	}
	if err = loadFile(dir, FillFile, &fill); err != nil {
		return fill, render, err
	}
	if err = loadFile(dir, RenderFile, &render); err != nil {
		return fill, render, err
	}
	return fill, render, nil
}

func loadFile(dir, name string, src *device.KernelSource) error {
	path := filepath.Join(dir, name)
	code, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrKernelLoad, path, err)
	}
	src.Code = string(code)
	return Validate(*src)
}

// Validate compiles the WGSL of src and checks that it defines the entry point.
func Validate(src device.KernelSource) error {
	if strings.TrimSpace(src.Code) == "" {
		return fmt.Errorf("%w: %s: empty program", device.ErrKernelLoad, src.Name)
	}
	entry := regexp.MustCompile(`\bfn\s+` + regexp.QuoteMeta(src.EntryPoint) + `\s*\(`)
	if !entry.MatchString(src.Code) {
		return fmt.Errorf("%w: %s: entry point %q not found", device.ErrKernelLoad, src.Name, src.EntryPoint)
	}
	if _, err := naga.Compile(src.Code); err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrKernelLoad, src.Name, err)
	}
	return nil
}
