package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/RR-2000/4DGaussians/camera"
)

func identityRecord(t r3.Vector) *camera.Record {
	return &camera.Record{
		R:      mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		T:      t,
		FovX:   math.Pi / 2,
		FovY:   math.Pi / 2,
		Width:  100,
		Height: 100,
	}
}

func TestWorldToViewIdentity(t *testing.T) {
	rec := identityRecord(r3.Vector{X: 1, Y: 2, Z: 3})
	w2v := WorldToView(rec.R, rec.T, r3.Vector{}, 1.0)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			test.That(t, w2v.At(i, j), test.ShouldAlmostEqual, want, 1e-12)
		}
	}
	test.That(t, w2v.At(0, 3), test.ShouldAlmostEqual, 1.0, 1e-12)
	test.That(t, w2v.At(1, 3), test.ShouldAlmostEqual, 2.0, 1e-12)
	test.That(t, w2v.At(2, 3), test.ShouldAlmostEqual, 3.0, 1e-12)
}

func TestWorldToViewRecenter(t *testing.T) {
	rec := identityRecord(r3.Vector{X: 1, Y: 0, Z: 0})
	// translating by the camera center and scaling by 2 puts it at origin
	w2v := WorldToView(rec.R, rec.T, r3.Vector{X: 1, Y: 0, Z: 0}, 2.0)
	test.That(t, w2v.At(0, 3), test.ShouldAlmostEqual, 0.0, 1e-12)
}

func TestCameraCenter(t *testing.T) {
	center := CameraCenter(identityRecord(r3.Vector{X: 1, Y: 2, Z: 3}).R, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, center.X, test.ShouldAlmostEqual, -1.0, 1e-12)
	test.That(t, center.Y, test.ShouldAlmostEqual, -2.0, 1e-12)
	test.That(t, center.Z, test.ShouldAlmostEqual, -3.0, 1e-12)
}

func TestComputeNormalization(t *testing.T) {
	records := []*camera.Record{
		identityRecord(r3.Vector{X: 1, Y: 0, Z: 0}),
		identityRecord(r3.Vector{X: -1, Y: 0, Z: 0}),
	}
	norm, err := ComputeNormalization(records)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, norm.Translate.X, test.ShouldAlmostEqual, 0.0, 1e-12)
	test.That(t, norm.Radius, test.ShouldAlmostEqual, 1.1, 1e-12)
}

func TestComputeNormalizationRotationInvariant(t *testing.T) {
	records := []*camera.Record{
		identityRecord(r3.Vector{X: 1, Y: 2, Z: 3}),
		identityRecord(r3.Vector{X: -2, Y: 0.5, Z: 1}),
		identityRecord(r3.Vector{X: 0, Y: -1, Z: 4}),
	}
	norm, err := ComputeNormalization(records)
	test.That(t, err, test.ShouldBeNil)

	// rotating the whole rig 90 degrees about Z moves every camera center
	// through the same orthogonal map, so the bounding radius cannot change
	g := mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	rotated := make([]*camera.Record, len(records))
	for i, rec := range records {
		var r mat.Dense
		r.Mul(g, rec.R)
		rotated[i] = &camera.Record{
			R: &r, T: rec.T,
			FovX: rec.FovX, FovY: rec.FovY,
			Width: rec.Width, Height: rec.Height,
		}
	}
	rotNorm, err := ComputeNormalization(rotated)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rotNorm.Radius, test.ShouldAlmostEqual, norm.Radius, 1e-9)

	want := r3.Vector{X: -norm.Translate.Y, Y: norm.Translate.X, Z: norm.Translate.Z}
	test.That(t, rotNorm.Translate.X, test.ShouldAlmostEqual, want.X, 1e-9)
	test.That(t, rotNorm.Translate.Y, test.ShouldAlmostEqual, want.Y, 1e-9)
	test.That(t, rotNorm.Translate.Z, test.ShouldAlmostEqual, want.Z, 1e-9)
}

func TestComputeNormalizationNoCameras(t *testing.T) {
	_, err := ComputeNormalization(nil)
	test.That(t, errors.Is(err, ErrInvalidGeometry), test.ShouldBeTrue)
}

func TestProjectionSymmetric(t *testing.T) {
	p := Projection(0.01, 100, math.Pi/2, math.Pi/2, nil, 100, 100)
	// a 90 degree frustum has unit focal terms and no principal shift
	test.That(t, p.At(0, 0), test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, p.At(1, 1), test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, p.At(0, 2), test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, p.At(1, 2), test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, p.At(3, 2), test.ShouldEqual, 1.0)
}

func TestProjectionWithIntrinsics(t *testing.T) {
	// centered principal point matches the symmetric frustum
	k := camera.Intrinsics3x3(50, 50, 50, 50)
	withK := Projection(0.01, 100, math.Pi/2, math.Pi/2, k, 100, 100)
	symmetric := Projection(0.01, 100, math.Pi/2, math.Pi/2, nil, 100, 100)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			test.That(t, withK.At(i, j), test.ShouldAlmostEqual, symmetric.At(i, j), 1e-9)
		}
	}

	// an off-center principal point shifts the frustum
	offCenter := Projection(0.01, 100, math.Pi/2, math.Pi/2, camera.Intrinsics3x3(50, 50, 60, 50), 100, 100)
	test.That(t, offCenter.At(0, 2), test.ShouldNotAlmostEqual, 0.0, 1e-9)
}

func TestNDCToPixel(t *testing.T) {
	test.That(t, NDCToPixel(0, 100), test.ShouldAlmostEqual, 49.5, 1e-12)
	test.That(t, NDCToPixel(-1, 100), test.ShouldAlmostEqual, -0.5, 1e-12)
	test.That(t, NDCToPixel(1, 100), test.ShouldAlmostEqual, 99.5, 1e-12)
}

func TestProjectPoints(t *testing.T) {
	rec := identityRecord(r3.Vector{})
	full := ViewProjection(rec, 0.01, 100)

	pixels := ProjectPoints([]r3.Vector{
		{X: 0, Y: 0, Z: 5},    // straight ahead
		{X: 2.5, Y: -2.5, Z: 5},
		{X: 1000, Y: 0, Z: 5}, // far outside the frustum
	}, full, rec.Width, rec.Height)

	test.That(t, pixels[0].Valid, test.ShouldBeTrue)
	test.That(t, pixels[0].X, test.ShouldEqual, 50)
	test.That(t, pixels[0].Y, test.ShouldEqual, 50)
	test.That(t, pixels[1].Valid, test.ShouldBeTrue)
	test.That(t, pixels[1].X, test.ShouldEqual, 75)
	test.That(t, pixels[1].Y, test.ShouldEqual, 24)
	test.That(t, pixels[2].Valid, test.ShouldBeFalse)
}
