package pointcloud

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/RR-2000/4DGaussians/colmap"
)

func TestPLYRoundTrip(t *testing.T) {
	logger := golog.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "points3D.ply")

	positions := []r3.Vector{
		{X: 1, Y: 2, Z: 3},
		{X: -0.5, Y: 0, Z: 0.25},
		{X: 100, Y: -100, Z: 0},
	}
	colors := []r3.Vector{
		{X: 1, Y: 0, Z: 0},
		{X: 0.5, Y: 0.5, Z: 0.5},
		{X: 0, Y: 0, Z: 1},
	}
	test.That(t, WritePLY(path, positions, colors), test.ShouldBeNil)

	pc, err := ReadPLY(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)
	test.That(t, pc.CheckValid(), test.ShouldBeNil)
	for i := range positions {
		test.That(t, pc.Positions[i].X, test.ShouldAlmostEqual, positions[i].X, 1e-5)
		test.That(t, pc.Positions[i].Y, test.ShouldAlmostEqual, positions[i].Y, 1e-5)
		test.That(t, pc.Positions[i].Z, test.ShouldAlmostEqual, positions[i].Z, 1e-5)
		test.That(t, pc.Colors[i].X, test.ShouldAlmostEqual, colors[i].X, 1e-5)
		test.That(t, pc.Colors[i].Y, test.ShouldAlmostEqual, colors[i].Y, 1e-5)
		test.That(t, pc.Colors[i].Z, test.ShouldAlmostEqual, colors[i].Z, 1e-5)
		test.That(t, pc.Normals[i], test.ShouldResemble, r3.Vector{})
	}
}

func TestReadPLYCorrupt(t *testing.T) {
	logger := golog.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "not.ply")
	test.That(t, os.WriteFile(path, []byte("definitely not a point cloud"), 0o644), test.ShouldBeNil)

	_, err := ReadPLY(path, logger)
	test.That(t, errors.Is(err, ErrCorruptPointCloud), test.ShouldBeTrue)
}

func TestWritePLYMismatchedAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points3D.ply")
	err := WritePLY(path, make([]r3.Vector, 2), make([]r3.Vector, 3))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRandom(t *testing.T) {
	pc := Random(500, -1.3, 1.3)
	test.That(t, pc.Size(), test.ShouldEqual, 500)
	test.That(t, pc.CheckValid(), test.ShouldBeNil)
	for _, p := range pc.Positions {
		test.That(t, p.X, test.ShouldBeBetweenOrEqual, -1.3, 1.3)
		test.That(t, p.Y, test.ShouldBeBetweenOrEqual, -1.3, 1.3)
		test.That(t, p.Z, test.ShouldBeBetweenOrEqual, -1.3, 1.3)
	}
	for _, c := range pc.Colors {
		test.That(t, c.X, test.ShouldBeBetweenOrEqual, 0, 1)
		test.That(t, c.Y, test.ShouldBeBetweenOrEqual, 0, 1)
		test.That(t, c.Z, test.ShouldBeBetweenOrEqual, 0, 1)
	}
}

func TestSubsample(t *testing.T) {
	pc := Random(100, 0, 1)
	small := pc.Subsample(10)
	test.That(t, small.Size(), test.ShouldEqual, 10)
	test.That(t, small.CheckValid(), test.ShouldBeNil)

	// already small enough: same cloud back
	same := pc.Subsample(100)
	test.That(t, same, test.ShouldEqual, pc)
}

func TestFromColmapPoints(t *testing.T) {
	points := []colmap.Point3D{
		{ID: 1, XYZ: r3.Vector{X: 1, Y: 2, Z: 3}, Color: [3]uint8{255, 0, 128}},
	}
	pc := FromColmapPoints(points)
	test.That(t, pc.Size(), test.ShouldEqual, 1)
	test.That(t, pc.Positions[0], test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, pc.Colors[0].X, test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, pc.Colors[0].Z, test.ShouldAlmostEqual, 128.0/255.0, 1e-9)
}

func TestEnsurePLY(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()
	plyPath := filepath.Join(dir, "points3D.ply")

	pointsTxt := "# points\n7 1 2 3 255 0 0 0.5 1 0\n"
	txtPath := filepath.Join(dir, "points3D.txt")
	test.That(t, os.WriteFile(txtPath, []byte(pointsTxt), 0o644), test.ShouldBeNil)

	// the binary dump is absent; conversion falls back to the text dump
	got, err := EnsurePLY(dir, "points3D", logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, plyPath)

	pc, err := ReadPLY(plyPath, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 1)
	test.That(t, pc.Positions[0].X, test.ShouldAlmostEqual, 1.0, 1e-5)

	// second call is a no-op on the existing file
	got, err = EnsurePLY(dir, "points3D", logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, plyPath)
}
