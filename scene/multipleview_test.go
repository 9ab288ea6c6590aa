package scene

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

// multipleViewSceneFixture lays out a three-camera rig: a first-frame
// reconstruction under sparse_/ plus one frame directory per rig camera.
// cam02 carries an extra frame and cam03 keeps its frames under an images/
// subdirectory, so both the shortest-run clamp and the directory fallback
// get exercised.
func multipleViewSceneFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	modelDir := filepath.Join(root, "sparse_")
	test.That(t, os.MkdirAll(modelDir, 0o755), test.ShouldBeNil)

	le := func(buf *bytes.Buffer, data ...interface{}) {
		for _, d := range data {
			test.That(t, binary.Write(buf, binary.LittleEndian, d), test.ShouldBeNil)
		}
	}

	var cams bytes.Buffer
	le(&cams, uint64(1))
	le(&cams, int32(1), int32(1), uint64(8), uint64(6)) // PINHOLE
	le(&cams, []float64{4, 3, 4, 3})
	test.That(t, os.WriteFile(filepath.Join(modelDir, "cameras.bin"), cams.Bytes(), 0o644), test.ShouldBeNil)

	var imgs bytes.Buffer
	le(&imgs, uint64(3))
	for i, name := range []string{"cam01.png", "cam02.png", "cam03.png"} {
		le(&imgs, int32(i+1))
		le(&imgs, []float64{1, 0, 0, 0, float64(i), 0, 2})
		le(&imgs, int32(1))
		imgs.WriteString(name)
		imgs.WriteByte(0)
		le(&imgs, uint64(0))
	}
	test.That(t, os.WriteFile(filepath.Join(modelDir, "images.bin"), imgs.Bytes(), 0o644), test.ShouldBeNil)

	for _, frame := range []string{"cam01/00000.png", "cam01/00001.png",
		"cam02/00000.png", "cam02/00001.png", "cam02/00002.png",
		"cam03/images/00000.png", "cam03/images/00001.png"} {
		path := filepath.Join(root, filepath.FromSlash(frame))
		test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
		writePNG(t, path, 8, 6)
	}

	pointsTxt := "# points\n1 0 0 4 255 0 0 0.1\n2 1 1 4 0 255 0 0.1\n"
	test.That(t, os.WriteFile(filepath.Join(root, "points3D_multipleview.txt"), []byte(pointsTxt), 0o644), test.ShouldBeNil)

	return root
}

func TestMultipleViewSceneEval(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := multipleViewSceneFixture(t)

	info, err := Load(context.Background(), "MultipleView", root, Options{Eval: true, PreviewFrames: 10}, logger)
	test.That(t, err, test.ShouldBeNil)

	// every camera is clamped to cam01's two frames; the stride holdout
	// keeps the first rig camera for evaluation
	test.That(t, info.TestCameras, test.ShouldHaveLength, 2)
	test.That(t, info.TrainCameras, test.ShouldHaveLength, 4)
	for _, rec := range info.TestCameras {
		test.That(t, rec.ImageName, test.ShouldEqual, "cam01")
	}
	trainNames := map[string]bool{}
	for _, rec := range info.TrainCameras {
		trainNames[rec.ImageName] = true
		test.That(t, rec.Time, test.ShouldBeBetweenOrEqual, 0.0, 1.0)
	}
	test.That(t, trainNames, test.ShouldResemble, map[string]bool{"cam02": true, "cam03": true})

	// the sparse text dump was converted and loaded
	test.That(t, info.PLYPath, test.ShouldEqual, filepath.Join(root, "points3D_multipleview.ply"))
	_, err = os.Stat(info.PLYPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.PointCloud.Size(), test.ShouldEqual, 2)

	test.That(t, info.VideoCameras, test.ShouldHaveLength, 10)
	test.That(t, info.MaxTime, test.ShouldEqual, 2.0)
	test.That(t, info.Normalization.Radius, test.ShouldBeGreaterThan, 0.0)
}

func TestMultipleViewSceneNoEval(t *testing.T) {
	logger := golog.NewTestLogger(t)
	info, err := Load(context.Background(), "MultipleView", multipleViewSceneFixture(t),
		Options{PreviewFrames: 10}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.TrainCameras, test.ShouldHaveLength, 6)
	test.That(t, info.TestCameras, test.ShouldBeEmpty)

	// uid encodes (camera, frame) in rig order
	test.That(t, info.TrainCameras[0].UID, test.ShouldEqual, 0)
	test.That(t, info.TrainCameras[2].UID, test.ShouldEqual, 2)
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4)
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644), test.ShouldBeNil)
	test.That(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755), test.ShouldBeNil)

	frames, err := listImages(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frames, test.ShouldResemble, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
	})

	_, err = listImages(filepath.Join(dir, "missing"))
	test.That(t, err, test.ShouldNotBeNil)
}
