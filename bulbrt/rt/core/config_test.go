package core

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleCamera() Camera {
	return Camera{
		Eye:             mgl32.Vec3{0.5, 0.5, -3.0},
		ViewPlaneCenter: mgl32.Vec3{0.5, 0.5, -2.0},
		ViewPlaneRight:  mgl32.Vec3{1, 0, 0},
		ViewPlaneDown:   mgl32.Vec3{0, 1, 0},
		Light:           mgl32.Vec3{0.3, -0.5, -0.5},
	}
}

func TestEncode_Example(t *testing.T) {
	got := Encode(exampleCamera(), 4)
	want := []float32{
		2, 2, -12,
		2, 2, -8,
		4, 0, 0,
		0, 4, 0,
		1.2, -2, -2,
		4, 4, 4,
	}
	require.Len(t, got, ConfigSlots)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6, "slot %d", i)
	}
	assert.Equal(t, mgl32.Vec3{4, 4, 4}, got.VoxelSize())
}

func TestEncode_Deterministic(t *testing.T) {
	cams := []Camera{exampleCamera(), DefaultCamera(), DefaultCamera().Rotate(1, 2, 3)}
	for _, cam := range cams {
		for _, edge := range []int{1, 4, 128, 384} {
			a := Encode(cam, edge).Bytes()
			b := Encode(cam, edge).Bytes()
			assert.Equal(t, a, b)
		}
	}
}

func TestEncode_ScalingLaw(t *testing.T) {
	cams := []Camera{exampleCamera(), DefaultCamera().Rotate(-1, 0, 2).Zoom(1.2)}
	for _, cam := range cams {
		unit := Encode(cam, 1)
		for _, edge := range []int{2, 7, 256} {
			scaled := Encode(cam, edge)
			// all but the voxel size slots
			for i := 0; i < ConfigSlots-3; i++ {
				assert.Equal(t, unit[i]*float32(edge), scaled[i], "edge %d slot %d", edge, i)
			}
			assert.Equal(t, mgl32.Vec3{float32(edge), float32(edge), float32(edge)}, scaled.VoxelSize())
		}
	}
}

func TestEncode_Bytes(t *testing.T) {
	cfg := Encode(exampleCamera(), 4)
	raw := cfg.Bytes()
	require.Len(t, raw, ConfigSlots*4)
	for i, v := range cfg {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		assert.Equal(t, v, math.Float32frombits(bits))
	}
}

func TestEncodeLayout_Legacy(t *testing.T) {
	cfg := EncodeLayout(exampleCamera(), 4, Layout15)
	require.Len(t, cfg, 15)
	// light is absent, voxel size follows the view down vector
	assert.Equal(t, []float32{0, 4, 0}, []float32(cfg[9:12]))
	assert.Equal(t, []float32{4, 4, 4}, []float32(cfg[12:15]))
}

func TestLayoutForSlots(t *testing.T) {
	l, err := LayoutForSlots(0)
	require.NoError(t, err)
	assert.Equal(t, Layout18, l)

	l, err = LayoutForSlots(15)
	require.NoError(t, err)
	assert.Equal(t, Layout15, l)

	_, err = LayoutForSlots(12)
	assert.Error(t, err)
}
