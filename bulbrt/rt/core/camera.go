package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// RotateStep is the angle applied per unit of Rotate.
const RotateStep = math.Pi / 10

// VolumeCenter is the centre of the normalized voxel space.
var VolumeCenter = mgl32.Vec3{0.5, 0.5, 0.5}

// Camera describes a view of the volume in normalized voxel space, where the
// volume spans [0,1]³. The eye looks at ViewPlaneCenter; the view plane is as
// big as the image and is spanned by ViewPlaneRight and ViewPlaneDown.
type Camera struct {
	Eye             mgl32.Vec3
	ViewPlaneCenter mgl32.Vec3
	ViewPlaneRight  mgl32.Vec3
	ViewPlaneDown   mgl32.Vec3
	Light           mgl32.Vec3
}

func DefaultCamera() Camera {
	return Camera{
		Eye:             mgl32.Vec3{0.5, 0.5, -2.0},
		ViewPlaneCenter: mgl32.Vec3{0.5, 0.5, -0.75},
		ViewPlaneRight:  mgl32.Vec3{0.3, 0, 0},
		ViewPlaneDown:   mgl32.Vec3{0, 0.3, 0},
		Light:           mgl32.Vec3{0.3, -0.5, -0.5},
	}
}

// Rotation returns the rotation for x, y and z steps of RotateStep,
// applied about X first, then Y, then Z.
func Rotation(x, y, z float32) mgl32.Mat3 {
	rx := mgl32.Rotate3DX(x * RotateStep)
	ry := mgl32.Rotate3DY(y * RotateStep)
	rz := mgl32.Rotate3DZ(z * RotateStep)
	return rz.Mul3(ry).Mul3(rx)
}

// Rotate turns the camera about the volume centre.
// Eye, view plane centre and light are points and get translated around the
// centre; the view plane basis vectors are directions and are only rotated.
func (c Camera) Rotate(x, y, z float32) Camera {
	rot := Rotation(x, y, z)
	point := func(p mgl32.Vec3) mgl32.Vec3 {
		return VolumeCenter.Add(rot.Mul3x1(p.Sub(VolumeCenter)))
	}
	return Camera{
		Eye:             point(c.Eye),
		ViewPlaneCenter: point(c.ViewPlaneCenter),
		ViewPlaneRight:  rot.Mul3x1(c.ViewPlaneRight),
		ViewPlaneDown:   rot.Mul3x1(c.ViewPlaneDown),
		Light:           point(c.Light),
	}
}

// Zoom scales the view plane. Values below 1 zoom in.
func (c Camera) Zoom(scale float32) Camera {
	c.ViewPlaneRight = c.ViewPlaneRight.Mul(scale)
	c.ViewPlaneDown = c.ViewPlaneDown.Mul(scale)
	return c
}
