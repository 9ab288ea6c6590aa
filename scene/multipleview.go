package scene

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/RR-2000/4DGaussians/camera"
	"github.com/RR-2000/4DGaussians/colmap"
	"github.com/RR-2000/4DGaussians/geometry"
	"github.com/RR-2000/4DGaussians/imgutil"
	"github.com/RR-2000/4DGaussians/pointcloud"
)

// multipleViewReader loads a calibrated multi-camera rig where COLMAP was
// run on the first frame only. Each registered image names a rig camera and
// every rig camera has its own directory of per-frame images.
type multipleViewReader struct{}

func (multipleViewReader) DatasetType() string { return "MultipleView" }

// rigCamera pairs one registered reconstruction image with the directory
// of frames captured by that physical camera.
type rigCamera struct {
	extr   colmap.Image
	intr   colmap.Camera
	frames []string
}

func (multipleViewReader) Read(ctx context.Context, path string, opts Options, logger golog.Logger) (*Info, error) {
	recon, err := colmap.ReadReconstruction(filepath.Join(path, "sparse_"))
	if err != nil {
		return nil, err
	}

	rig, numFrames, err := resolveRig(path, recon)
	if err != nil {
		return nil, err
	}
	logger.Infof("rig has %d cameras with %d frames each", len(rig), numFrames)

	timeNorm := float64(numFrames - 1)
	if timeNorm < 1 {
		timeNorm = 1
	}
	var train, test, rigKeys []*camera.Record
	for camIdx, rc := range rig {
		rc := rc
		tasks := make([]recordTask, len(rc.frames))
		for j := range rc.frames {
			j := j
			uid := camIdx*numFrames + j
			tasks[j] = func(ctx context.Context) (*camera.Record, error) {
				img, err := imgutil.Load(rc.frames[j])
				if err != nil {
					return nil, err
				}
				return camera.FromColmap(uid, rc.extr, rc.intr, rc.frames[j], float64(j)/timeNorm, img)
			}
		}
		records, err := loadRecords(ctx, opts.Workers, tasks)
		if err != nil {
			return nil, err
		}
		rigKeys = append(rigKeys, records[0])
		if opts.Eval && camIdx%opts.HoldoutStride == 0 {
			test = append(test, records...)
		} else {
			train = append(train, records...)
		}
	}
	if len(train) == 0 {
		train, test = test, nil
	}

	norm, err := geometry.ComputeNormalization(train)
	if err != nil {
		return nil, err
	}

	plyPath, err := pointcloud.EnsurePLY(path, "points3D_multipleview", logger)
	if err != nil {
		return nil, errors.Wrap(err, "converting rig points")
	}
	pcd, err := pointcloud.ReadPLY(plyPath, logger)
	if err != nil {
		logger.Warnw("persisted point cloud unreadable; synthesizing a random one", "path", plyPath, "error", err)
		pcd = pointcloud.Random(2000, -1.3, 1.3)
	}

	video, err := rigPreviewRecords(rigKeys, train, timeNorm, numFrames, opts.PreviewFrames)
	if err != nil {
		return nil, err
	}

	return &Info{
		PointCloud:    pcd,
		TrainCameras:  train,
		TestCameras:   test,
		VideoCameras:  video,
		Normalization: norm,
		PLYPath:       plyPath,
		MaxTime:       float64(numFrames),
	}, nil
}

// resolveRig matches registered images to per-camera frame directories and
// returns the rig sorted by image name along with the common frame count.
func resolveRig(path string, recon *colmap.Reconstruction) ([]rigCamera, int, error) {
	ids := make([]int32, 0, len(recon.Images))
	for id := range recon.Images {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return recon.Images[ids[i]].Name < recon.Images[ids[j]].Name
	})

	rig := make([]rigCamera, 0, len(ids))
	numFrames := 0
	for _, id := range ids {
		extr := recon.Images[id]
		intr, ok := recon.Cameras[extr.CameraID]
		if !ok {
			return nil, 0, errors.Errorf("image %q references unknown camera %d", extr.Name, extr.CameraID)
		}
		stem := strings.TrimSuffix(filepath.Base(extr.Name), filepath.Ext(extr.Name))
		framesDir := filepath.Join(path, stem)
		frames, err := listImages(framesDir)
		if err != nil || len(frames) == 0 {
			framesDir = filepath.Join(path, stem, "images")
			frames, err = listImages(framesDir)
			if err != nil {
				return nil, 0, errors.Wrapf(err, "listing frames for rig camera %q", stem)
			}
		}
		if len(frames) == 0 {
			return nil, 0, errors.Errorf("rig camera %q has no frames", stem)
		}
		if numFrames == 0 || len(frames) < numFrames {
			numFrames = len(frames)
		}
		rig = append(rig, rigCamera{extr: extr, intr: intr, frames: frames})
	}
	if len(rig) == 0 {
		return nil, 0, errors.Wrap(colmap.ErrNoReconstruction, "rig reconstruction registers no images")
	}
	// uneven captures happen; clamp every camera to the shortest run
	for i := range rig {
		rig[i].frames = rig[i].frames[:numFrames]
	}
	return rig, numFrames, nil
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// rigPreviewRecords splines a path through the rig's first-frame poses and
// sweeps the timeline forward and back along it.
func rigPreviewRecords(rigKeys, train []*camera.Record, timeNorm float64, numFrames, previewFrames int) ([]*camera.Record, error) {
	keys := make([]*mat.Dense, 0, len(rigKeys))
	for _, rec := range rigKeys {
		c2w, err := cameraToWorld(rec)
		if err != nil {
			return nil, err
		}
		keys = append(keys, c2w)
	}
	poses, err := interpolatePoses(keys, previewFrames)
	if err != nil {
		return nil, err
	}

	times := make([]float64, 0, 2*numFrames)
	for t := 0; t < numFrames; t++ {
		times = append(times, float64(t)/timeNorm)
	}
	for t := numFrames - 1; t >= 0; t-- {
		times = append(times, float64(t)/timeNorm)
	}
	return pathRecords(poses, train[0], times)
}
