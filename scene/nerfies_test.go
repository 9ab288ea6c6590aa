package scene

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestNerfiesTimeOf(t *testing.T) {
	timeID := 3.0
	warpID := 7.0
	meta := nerfiesMeta{
		"a": {TimeID: &timeID},
		"b": {WarpID: &warpID},
		"c": {},
	}

	tm, err := meta.timeOf("a")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tm, test.ShouldEqual, 3.0)

	tm, err = meta.timeOf("b")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tm, test.ShouldEqual, 7.0)

	_, err = meta.timeOf("c")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = meta.timeOf("missing")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNerfiesReadFrame(t *testing.T) {
	root := t.TempDir()
	test.That(t, os.MkdirAll(filepath.Join(root, "camera"), 0o755), test.ShouldBeNil)
	rgbDir := filepath.Join(root, "rgb", "2x")
	test.That(t, os.MkdirAll(rgbDir, 0o755), test.ShouldBeNil)

	cam := nerfiesCamera{
		Orientation:    [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		Position:       []float64{2, 3, 4},
		FocalLength:    500,
		PrincipalPoint: []float64{4, 4},
		ImageSize:      []float64{16, 16},
	}
	buf, err := json.Marshal(cam)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(root, "camera", "000001.json"), buf, 0o644), test.ShouldBeNil)
	writePNG(t, filepath.Join(rgbDir, "000001.png"), 8, 8)

	sceneMeta := nerfiesScene{Scale: 2, Center: []float64{2, 3, 4}}
	timeID := 5.0
	meta := nerfiesMeta{"000001": {TimeID: &timeID}}

	rec, err := nerfiesReader{}.readFrame(root, rgbDir, "000001", 9, sceneMeta, meta, 10.0, Options{Ratio: 0.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.UID, test.ShouldEqual, 9)
	test.That(t, rec.Time, test.ShouldEqual, 0.5)
	test.That(t, rec.Width, test.ShouldEqual, 8)
	test.That(t, rec.Height, test.ShouldEqual, 8)
	// position equals the scene center, so the camera sits at the origin
	test.That(t, rec.T.X, test.ShouldAlmostEqual, 0.0, 1e-12)
	test.That(t, rec.T.Y, test.ShouldAlmostEqual, 0.0, 1e-12)
	test.That(t, rec.T.Z, test.ShouldAlmostEqual, 0.0, 1e-12)
	test.That(t, rec.CheckValid(), test.ShouldBeNil)
}
