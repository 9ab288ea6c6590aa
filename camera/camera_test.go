package camera

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/RR-2000/4DGaussians/colmap"
)

func TestFocalFOVInversion(t *testing.T) {
	for _, tc := range []struct {
		focal  float64
		pixels float64
	}{
		{500, 640},
		{1111.111, 800},
		{35, 100},
	} {
		fov := FocalToFOV(tc.focal, tc.pixels)
		test.That(t, FOVToFocal(fov, tc.pixels), test.ShouldAlmostEqual, tc.focal, 1e-9)
	}
	// a sensor twice the focal length spans 90 degrees
	test.That(t, FocalToFOV(50, 100), test.ShouldAlmostEqual, math.Pi/2, 1e-12)
}

func TestRotationFromQuaternion(t *testing.T) {
	identity := RotationFromQuaternion(quat.Number{Real: 1})
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			test.That(t, identity.At(i, j), test.ShouldAlmostEqual, want, 1e-12)
		}
	}

	// 90 degrees about Z maps x to y
	halfSqrt2 := math.Sqrt(2) / 2
	rot := RotationFromQuaternion(quat.Number{Real: halfSqrt2, Kmag: halfSqrt2})
	test.That(t, rot.At(1, 0), test.ShouldAlmostEqual, 1.0, 1e-12)
	test.That(t, rot.At(0, 1), test.ShouldAlmostEqual, -1.0, 1e-12)
	test.That(t, rot.At(2, 2), test.ShouldAlmostEqual, 1.0, 1e-12)

	// unnormalized input is normalized first
	scaled := RotationFromQuaternion(quat.Number{Real: 2 * halfSqrt2, Kmag: 2 * halfSqrt2})
	test.That(t, scaled.At(1, 0), test.ShouldAlmostEqual, 1.0, 1e-12)
}

func TestFromColmap(t *testing.T) {
	extr := colmap.Image{
		ID:       1,
		QVec:     quat.Number{Real: 1},
		TVec:     r3.Vector{X: 0.5, Y: -0.5, Z: 2},
		CameraID: 1,
		Name:     "frame_0001.png",
	}
	intr := colmap.Camera{
		ID: 1, Model: colmap.Pinhole, Width: 640, Height: 480,
		Params: []float64{320, 240, 320, 240},
	}

	rec, err := FromColmap(1, extr, intr, "/data/images/frame_0001.png", 0.25, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Width, test.ShouldEqual, 640)
	test.That(t, rec.Height, test.ShouldEqual, 480)
	test.That(t, rec.FovX, test.ShouldAlmostEqual, 2*math.Atan(640.0/(2*320.0)), 1e-12)
	test.That(t, rec.FovY, test.ShouldAlmostEqual, 2*math.Atan(480.0/(2*240.0)), 1e-12)
	test.That(t, rec.T, test.ShouldResemble, r3.Vector{X: 0.5, Y: -0.5, Z: 2})
	test.That(t, rec.Time, test.ShouldEqual, 0.25)
	test.That(t, rec.CheckValid(), test.ShouldBeNil)
}

func TestFromColmapSimplePinhole(t *testing.T) {
	extr := colmap.Image{ID: 1, QVec: quat.Number{Real: 1}, CameraID: 1, Name: "a.png"}
	intr := colmap.Camera{
		ID: 1, Model: colmap.SimplePinhole, Width: 100, Height: 100,
		Params: []float64{50, 50, 50},
	}
	rec, err := FromColmap(1, extr, intr, "a.png", 0, nil)
	test.That(t, err, test.ShouldBeNil)
	// one shared focal length for both axes
	test.That(t, rec.FovX, test.ShouldAlmostEqual, rec.FovY, 1e-12)
}

func TestFromColmapUnsupportedModel(t *testing.T) {
	extr := colmap.Image{ID: 1, QVec: quat.Number{Real: 1}, CameraID: 1, Name: "a.png"}
	intr := colmap.Camera{ID: 1, Model: colmap.ThinPrismFisheye, Width: 100, Height: 100}
	_, err := FromColmap(1, extr, intr, "a.png", 0, nil)
	test.That(t, errors.Is(err, colmap.ErrUnsupportedCameraModel), test.ShouldBeTrue)
}

func TestFromCameraToWorldValid(t *testing.T) {
	// a plain OpenGL pose: axes flipped, camera backed off along +Z
	c2w := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0.5,
		0, 1, 0, -1,
		0, 0, 1, 3,
		0, 0, 0, 1,
	})
	rec, err := FromCameraToWorld(3, c2w, math.Pi/3, math.Pi/3, 800, 800, 0.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.UID, test.ShouldEqual, 3)
	test.That(t, rec.CheckValid(), test.ShouldBeNil)
}

func TestFromWorldToCameraValid(t *testing.T) {
	w2c := mat.NewDense(4, 4, []float64{
		0, -1, 0, 1,
		1, 0, 0, 2,
		0, 0, 1, 3,
		0, 0, 0, 1,
	})
	rec := FromWorldToCamera(0, w2c, math.Pi/2, math.Pi/2, 100, 100, 0)
	test.That(t, rec.CheckValid(), test.ShouldBeNil)
	test.That(t, rec.T, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	// stored rotation is the transpose of the world-to-camera block
	test.That(t, rec.R.At(0, 1), test.ShouldEqual, 1.0)
	test.That(t, rec.R.At(1, 0), test.ShouldEqual, -1.0)
}

func TestCheckValid(t *testing.T) {
	rec := &Record{
		R:      mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		FovX:   1,
		FovY:   1,
		Width:  10,
		Height: 10,
		Time:   0.5,
	}
	test.That(t, rec.CheckValid(), test.ShouldBeNil)

	rec.Time = 1.5
	test.That(t, rec.CheckValid(), test.ShouldNotBeNil)
	rec.Time = 0.5

	// a reflection is not a rotation
	rec.R = mat.NewDense(3, 3, []float64{-1, 0, 0, 0, 1, 0, 0, 0, 1})
	test.That(t, rec.CheckValid(), test.ShouldNotBeNil)
}

func TestIntrinsics3x3(t *testing.T) {
	k := Intrinsics3x3(500, 510, 320, 240)
	test.That(t, k.At(0, 0), test.ShouldEqual, 500.0)
	test.That(t, k.At(1, 1), test.ShouldEqual, 510.0)
	test.That(t, k.At(0, 2), test.ShouldEqual, 320.0)
	test.That(t, k.At(1, 2), test.ShouldEqual, 240.0)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1.0)
}
