package gpu

import (
	"math"
	"testing"

	"github.com/gekko3d/bulb/bulbrt/rt/device"
	"github.com/gekko3d/bulb/bulbrt/rt/device/hostdev"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeResource_EnsureCapacityIsIdempotent(t *testing.T) {
	d := hostdev.New()
	v, err := NewVolumeResource(d, DummyEdge, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Allocations())
	assert.Equal(t, uint64(64), v.Buffer().Size())

	changed, err := v.EnsureCapacity(8)
	require.NoError(t, err)
	assert.True(t, changed)
	first := v.Buffer()

	changed, err = v.EnsureCapacity(8)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, first, v.Buffer())
	assert.Equal(t, 2, v.Allocations())
	assert.Equal(t, uint64(512), v.Buffer().Size())
}

func TestVolumeResource_ReleasesOldBuffer(t *testing.T) {
	d := hostdev.New()
	v, err := NewVolumeResource(d, DummyEdge, nil)
	require.NoError(t, err)
	old := v.Buffer()

	_, err = v.EnsureCapacity(6)
	require.NoError(t, err)
	assert.True(t, old.Released())
	assert.NotEqual(t, old.ID(), v.Buffer().ID())
	assert.Equal(t, uint64(216), d.Stats().LiveBytes)

	v.Release()
	assert.Equal(t, uint64(0), d.Stats().LiveBytes)
}

func TestVolumeResource_FailedResizeKeepsState(t *testing.T) {
	d := hostdev.New(hostdev.WithMemoryCap(1024))
	v, err := NewVolumeResource(d, 8, nil)
	require.NoError(t, err)
	require.NoError(t, d.WriteBuffer(v.Buffer(), []byte{9, 8, 7}))
	before := v.Buffer()

	changed, err := v.EnsureCapacity(16)
	assert.ErrorIs(t, err, device.ErrAllocationFailed)
	assert.False(t, changed)
	assert.Equal(t, 8, v.Edge())
	assert.Same(t, before, v.Buffer())
	assert.False(t, before.Released())
	assert.Equal(t, 1, v.Allocations())

	got := make([]byte, 3)
	require.NoError(t, d.ReadBuffer(v.Buffer(), got))
	assert.Equal(t, []byte{9, 8, 7}, got)
}

func TestVolumeResource_RejectsBadEdge(t *testing.T) {
	d := hostdev.New()
	v, err := NewVolumeResource(d, DummyEdge, nil)
	require.NoError(t, err)
	for _, edge := range []int{0, -3, MaxEdge + 1, math.MaxInt32 + 1} {
		_, err := v.EnsureCapacity(edge)
		assert.ErrorIs(t, err, ErrInvalidSize)
	}
	assert.Equal(t, DummyEdge, v.Edge())

	_, err = NewVolumeResource(d, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestFrameResource_CoResizes(t *testing.T) {
	d := hostdev.New()
	f, err := NewFrameResource(d, DummyFrame, DummyFrame, nil)
	require.NoError(t, err)

	changed, err := f.EnsureCapacity(10, 6)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint64(240), f.Color().Size())
	assert.Equal(t, uint64(240), f.Debug().Size())
	assert.Equal(t, 60, f.Pixels())

	changed, err = f.EnsureCapacity(10, 6)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 2, f.Allocations())

	// same pixel count, different shape
	changed, err = f.EnsureCapacity(6, 10)
	require.NoError(t, err)
	assert.True(t, changed)
	w, h := f.Size()
	assert.Equal(t, []int{6, 10}, []int{w, h})
}

func TestFrameResource_PartialAllocationRollsBack(t *testing.T) {
	d := hostdev.New(hostdev.WithMemoryCap(1200))
	f, err := NewFrameResource(d, 8, 8, nil)
	require.NoError(t, err)
	color, debug := f.Color(), f.Debug()
	live := d.Stats().LiveBytes

	// 12x12 colour (576 bytes) fits next to the 8x8 pair, the debug image does not
	_, err = f.EnsureCapacity(12, 12)
	assert.ErrorIs(t, err, device.ErrAllocationFailed)

	assert.Same(t, color, f.Color())
	assert.Same(t, debug, f.Debug())
	assert.False(t, color.Released())
	assert.Equal(t, live, d.Stats().LiveBytes)
	assert.Equal(t, 1, f.Allocations())
	w, h := f.Size()
	assert.Equal(t, []int{8, 8}, []int{w, h})
}

func TestFrameResource_RejectsBadSize(t *testing.T) {
	d := hostdev.New()
	f, err := NewFrameResource(d, DummyFrame, DummyFrame, nil)
	require.NoError(t, err)
	_, err = f.EnsureCapacity(0, 4)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = f.EnsureCapacity(4, -1)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = f.EnsureCapacity(MaxFrameSide+1, 4)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = f.EnsureCapacity(4, math.MaxUint32+5)
	assert.ErrorIs(t, err, ErrInvalidSize)
	assert.Equal(t, 1, f.Allocations())
}
