package kernels

import (
	"math"

	"github.com/gekko3d/bulb/bulbrt/rt/device/hostdev"

	"github.com/go-gl/mathgl/mgl32"
)

// CPU versions of mandel.wgsl and ray.wgsl for hostdev.

const (
	FillIterations = 10

	rayStep    = 0.5
	rayAmbient = 0.15
)

var rayBase = mgl32.Vec3{1.0, 0.8, 0.55}

// HostKernels registers HostFill and HostRender on a hostdev device.
func HostKernels() []hostdev.Option {
	return []hostdev.Option{
		hostdev.WithKernel(FillName, HostFill),
		hostdev.WithKernel(RenderName, HostRender),
	}
}

// Inside reports whether c stays bounded under the power-n mandelbulb map.
func Inside(c mgl32.Vec3, n float32) bool {
	z := c
	for i := 0; i < FillIterations; i++ {
		r := z.Len()
		if r > 2 {
			return false
		}
		if r < 1e-6 {
			z = c
			continue
		}
		theta := float32(math.Acos(float64(mgl32.Clamp(z.Z()/r, -1, 1)))) * n
		phi := float32(math.Atan2(float64(z.Y()), float64(z.X()))) * n
		zr := float32(math.Pow(float64(r), float64(n)))
		st, ct := math.Sincos(float64(theta))
		sp, cp := math.Sincos(float64(phi))
		z = mgl32.Vec3{float32(st * cp), float32(st * sp), float32(ct)}.Mul(zr).Add(c)
	}
	return true
}

// VoxelPoint maps a voxel index to its point in [-1.5, 1.5]³.
func VoxelPoint(x, y, z, n uint32) mgl32.Vec3 {
	s := 3 / float32(n)
	return mgl32.Vec3{
		(float32(x)+0.5)*s - 1.5,
		(float32(y)+0.5)*s - 1.5,
		(float32(z)+0.5)*s - 1.5,
	}
}

func HostFill(a *hostdev.Args, x, y, z uint32) {
	n := a.Grid[0]
	voxels := a.Bytes(ArgVoxels)
	i := (z*n+y)*n + x
	if Inside(VoxelPoint(x, y, z, n), a.Scalar(ArgPower)) {
		voxels[i] = 1
	} else {
		voxels[i] = 0
	}
}

func cfg3(a *hostdev.Args, slot int) mgl32.Vec3 {
	return mgl32.Vec3{a.Float32(ArgConfig, slot), a.Float32(ArgConfig, slot+1), a.Float32(ArgConfig, slot+2)}
}

func solid(voxels []byte, x, y, z, n int) float32 {
	if x < 0 || y < 0 || z < 0 || x >= n || y >= n || z >= n {
		return 0
	}
	if voxels[(z*n+y)*n+x] != 0 {
		return 1
	}
	return 0
}

func safeInv(d float32) float32 {
	if d < 1e-8 && d > -1e-8 {
		return 1e8
	}
	return 1 / d
}

func unorm8(v float32) byte {
	return byte(math.Floor(0.5 + 255*float64(mgl32.Clamp(v, 0, 1))))
}

// MarchSteps is the number of samples taken along [tnear, tfar). It never
// exceeds what a chord through an n³ volume needs, whatever the precision
// left in t at large distances.
func MarchSteps(tnear, tfar float32, n int) int {
	if !(tfar > tnear) || n < 1 {
		return 0
	}
	limit := 4*n + 4
	steps := math.Ceil(float64(tfar-tnear) / rayStep)
	if steps > float64(limit) {
		return limit
	}
	return int(steps)
}

func HostRender(a *hostdev.Args, px, py, _ uint32) {
	w, h := a.Grid[0], a.Grid[1]
	pixel := int(py*w + px)

	slots := len(a.Bytes(ArgConfig)) / 4
	eye := cfg3(a, 0)
	center := cfg3(a, 3)
	right := cfg3(a, 6)
	down := cfg3(a, 9)
	light := eye
	if slots >= 18 {
		light = cfg3(a, 12)
	}
	size := cfg3(a, slots-3)
	n := int(size.X())
	voxels := a.Bytes(ArgVoxels)

	u := (float32(px)+0.5)/float32(w)*2 - 1
	v := (float32(py)+0.5)/float32(h)*2 - 1
	dir := center.Add(right.Mul(u)).Add(down.Mul(v)).Sub(eye).Normalize()

	var tnear, tfar float32 = 0, math.MaxFloat32
	for i := 0; i < 3; i++ {
		inv := safeInv(dir[i])
		t0 := (0 - eye[i]) * inv
		t1 := (size[i] - eye[i]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tnear = max(tnear, t0)
		tfar = min(tfar, t1)
	}

	color := mgl32.Vec4{0, 0, 0, 1}
	dist := float32(-1)
	steps := MarchSteps(tnear, tfar, n)
	for i := 0; i < steps; i++ {
		t := tnear + float32(i)*rayStep
		p := eye.Add(dir.Mul(t))
		cx := int(math.Floor(float64(p.X())))
		cy := int(math.Floor(float64(p.Y())))
		cz := int(math.Floor(float64(p.Z())))
		if solid(voxels, cx, cy, cz, n) == 0 {
			continue
		}
		grad := mgl32.Vec3{
			solid(voxels, cx+1, cy, cz, n) - solid(voxels, cx-1, cy, cz, n),
			solid(voxels, cx, cy+1, cz, n) - solid(voxels, cx, cy-1, cz, n),
			solid(voxels, cx, cy, cz+1, n) - solid(voxels, cx, cy, cz-1, n),
		}
		normal := dir.Mul(-1)
		if grad.Len() > 0 {
			normal = grad.Normalize().Mul(-1)
		}
		l := light.Sub(p).Normalize()
		shade := rayAmbient + (1-rayAmbient)*max(normal.Dot(l), 0)
		rgb := rayBase.Mul(shade)
		color = mgl32.Vec4{rgb[0], rgb[1], rgb[2], 1}
		dist = t
		break
	}

	image := a.Bytes(ArgImage)
	for c := 0; c < 4; c++ {
		image[pixel*4+c] = unorm8(color[c])
	}
	if a.Has(ArgDebug) {
		a.SetFloat32(ArgDebug, pixel, dist)
	}
}
