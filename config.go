package bulb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gekko3d/bulb/bulbrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	BackendWGPU = "wgpu"
	BackendHost = "host"
)

// Config describes one rendering session. Zero fields of a loaded file keep
// their DefaultConfig values.
type Config struct {
	Backend   string `toml:"backend" yaml:"backend"`
	KernelDir string `toml:"kernel_dir" yaml:"kernel_dir"`
	Debug     bool   `toml:"debug" yaml:"debug"`
	// MemoryCap bounds live device memory in bytes, 0 for no bound.
	MemoryCap uint64 `toml:"memory_cap" yaml:"memory_cap"`
	Workers   int    `toml:"workers" yaml:"workers"`

	Volume VolumeConfig `toml:"volume" yaml:"volume"`
	Image  ImageConfig  `toml:"image" yaml:"image"`
	Camera CameraConfig `toml:"camera" yaml:"camera"`
	Output OutputConfig `toml:"output" yaml:"output"`
}

type VolumeConfig struct {
	Edge  int     `toml:"edge" yaml:"edge"`
	Power float32 `toml:"power" yaml:"power"`
}

type ImageConfig struct {
	Width  int `toml:"width" yaml:"width"`
	Height int `toml:"height" yaml:"height"`
}

// CameraConfig holds the camera in normalized volume space, the volume
// spanning [0,1]³.
type CameraConfig struct {
	Eye    [3]float32 `toml:"eye" yaml:"eye"`
	Center [3]float32 `toml:"center" yaml:"center"`
	Right  [3]float32 `toml:"right" yaml:"right"`
	Down   [3]float32 `toml:"down" yaml:"down"`
	Light  [3]float32 `toml:"light" yaml:"light"`
}

type OutputConfig struct {
	Image          string `toml:"image" yaml:"image"`
	Voxels         string `toml:"voxels" yaml:"voxels"`
	Debug          string `toml:"debug" yaml:"debug"`
	CompressVoxels bool   `toml:"compress_voxels" yaml:"compress_voxels"`
	DebugFormat    string `toml:"debug_format" yaml:"debug_format"`
}

func DefaultConfig() Config {
	cam := core.DefaultCamera()
	return Config{
		Backend: BackendWGPU,
		Volume:  VolumeConfig{Edge: 384, Power: 8},
		Image:   ImageConfig{Width: 512, Height: 512},
		Camera: CameraConfig{
			Eye:    cam.Eye,
			Center: cam.ViewPlaneCenter,
			Right:  cam.ViewPlaneRight,
			Down:   cam.ViewPlaneDown,
			Light:  cam.Light,
		},
		Output: OutputConfig{DebugFormat: "raw"},
	}
}

func (c CameraConfig) Camera() core.Camera {
	return core.Camera{
		Eye:             mgl32.Vec3(c.Eye),
		ViewPlaneCenter: mgl32.Vec3(c.Center),
		ViewPlaneRight:  mgl32.Vec3(c.Right),
		ViewPlaneDown:   mgl32.Vec3(c.Down),
		Light:           mgl32.Vec3(c.Light),
	}
}

// LoadConfig reads a TOML (.toml) or YAML (.yaml, .yml) file over the
// defaults and validates the result. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&cfg); errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return cfg, fmt.Errorf("config: %s: unsupported format", path)
	}
	if err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendWGPU, BackendHost:
	default:
		errs = append(errs, fmt.Errorf("backend %q is neither %q nor %q", c.Backend, BackendWGPU, BackendHost))
	}
	if c.Volume.Edge < 1 {
		errs = append(errs, fmt.Errorf("volume edge %d < 1", c.Volume.Edge))
	}
	if c.Image.Width < 1 || c.Image.Height < 1 {
		errs = append(errs, fmt.Errorf("image size %dx%d", c.Image.Width, c.Image.Height))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d < 0", c.Workers))
	}
	switch strings.ToLower(c.Output.DebugFormat) {
	case "", "raw", "bincode":
	default:
		errs = append(errs, fmt.Errorf("debug format %q", c.Output.DebugFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
