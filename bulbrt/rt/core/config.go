package core

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ConfigSlots is the float count of the canonical render config.
const ConfigSlots = 18

// ConfigLayout is the slot layout of the render config buffer.
// The order is fixed by the render kernel and must not change:
//
//	eye(3) view_center(3) view_right(3) view_down(3) [light(3)] voxel_size(3)
type ConfigLayout struct {
	Slots    int
	HasLight bool
}

var (
	Layout18 = ConfigLayout{Slots: 18, HasLight: true}
	// Layout15 is the older kernel ABI without a light vector.
	Layout15 = ConfigLayout{Slots: 15, HasLight: false}
)

// LayoutForSlots maps a kernel's declared config length to its layout.
// Zero selects the canonical layout.
func LayoutForSlots(slots int) (ConfigLayout, error) {
	switch slots {
	case 0, Layout18.Slots:
		return Layout18, nil
	case Layout15.Slots:
		return Layout15, nil
	}
	return ConfigLayout{}, fmt.Errorf("core: unsupported config layout with %d slots", slots)
}

// EncodedCameraConfig is the flat float32 config consumed by the render kernel.
type EncodedCameraConfig []float32

// Encode packs cam into the canonical 18 slot layout, scaling every
// component by edge so the kernel works in voxel coordinates.
func Encode(cam Camera, edge int) EncodedCameraConfig {
	return EncodeLayout(cam, edge, Layout18)
}

func EncodeLayout(cam Camera, edge int, layout ConfigLayout) EncodedCameraConfig {
	scale := float32(edge)
	cfg := make(EncodedCameraConfig, 0, layout.Slots)
	put := func(v mgl32.Vec3) {
		cfg = append(cfg, v[0]*scale, v[1]*scale, v[2]*scale)
	}
	put(cam.Eye)
	put(cam.ViewPlaneCenter)
	put(cam.ViewPlaneRight)
	put(cam.ViewPlaneDown)
	if layout.HasLight {
		put(cam.Light)
	}
	cfg = append(cfg, scale, scale, scale)
	return cfg
}

// Bytes returns the config as little-endian float32s.
func (c EncodedCameraConfig) Bytes() []byte {
	out := make([]byte, len(c)*4)
	for i, v := range c {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// VoxelSize returns the trailing voxel size slots.
func (c EncodedCameraConfig) VoxelSize() mgl32.Vec3 {
	n := len(c)
	if n < 3 {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3{c[n-3], c[n-2], c[n-1]}
}
