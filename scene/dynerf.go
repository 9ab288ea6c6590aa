package scene

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/RR-2000/4DGaussians/camera"
	"github.com/RR-2000/4DGaussians/geometry"
	"github.com/RR-2000/4DGaussians/imgutil"
	"github.com/RR-2000/4DGaussians/numpy"
	"github.com/RR-2000/4DGaussians/pointcloud"
)

// dynerfReader loads the Neural 3D Video capture layout: a poses_bounds.npy
// with one 3x5 LLFF pose per rig camera, frames extracted under cam%02d
// directories, and a downsampled point cloud shipped with the capture.
// Camera zero is the fixed evaluation view.
type dynerfReader struct{}

func (dynerfReader) DatasetType() string { return "dynerf" }

type dynerfPose struct {
	c2w  *mat.Dense
	fovX float64
	fovY float64
}

// llffPose converts one 17-float row of poses_bounds.npy into an OpenGL
// camera-to-world transform plus fields of view. The stored 3x5 matrix has
// axis columns in LLFF order (down, right, back) and height, width and
// focal length stacked in its last column.
func llffPose(row []float64) (dynerfPose, error) {
	if len(row) != 17 {
		return dynerfPose{}, errors.Errorf("pose row has %d values, want 17", len(row))
	}
	at := func(i, j int) float64 { return row[i*5+j] }

	c2w := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		c2w.Set(i, 0, at(i, 1))
		c2w.Set(i, 1, -at(i, 0))
		c2w.Set(i, 2, at(i, 2))
		c2w.Set(i, 3, at(i, 3))
	}
	c2w.Set(3, 3, 1)

	height, width, focal := at(0, 4), at(1, 4), at(2, 4)
	if focal <= 0 || width <= 0 || height <= 0 {
		return dynerfPose{}, errors.Errorf("pose row carries no focal geometry (h=%v w=%v f=%v)", height, width, focal)
	}
	return dynerfPose{
		c2w:  c2w,
		fovX: camera.FocalToFOV(focal, width),
		fovY: camera.FocalToFOV(focal, height),
	}, nil
}

func (dynerfReader) Read(ctx context.Context, path string, opts Options, logger golog.Logger) (*Info, error) {
	rows, err := numpy.ReadMatrixFile(filepath.Join(path, "poses_bounds.npy"))
	if err != nil {
		return nil, errors.Wrap(err, "reading pose bounds")
	}

	camDirs, err := filepath.Glob(filepath.Join(path, "cam[0-9][0-9]"))
	if err != nil {
		return nil, err
	}
	sort.Strings(camDirs)
	if len(camDirs) != len(rows) {
		return nil, errors.Errorf("poses_bounds.npy has %d poses but %d camera directories exist", len(rows), len(camDirs))
	}
	logger.Infof("rig has %d cameras, using %d frames each", len(camDirs), opts.Frames)

	timeNorm := float64(opts.Frames - 1)
	if timeNorm < 1 {
		timeNorm = 1
	}
	var train, test, rigKeys []*camera.Record
	for camIdx, dir := range camDirs {
		pose, err := llffPose(rows[camIdx])
		if err != nil {
			return nil, errors.Wrapf(err, "camera %s", filepath.Base(dir))
		}
		frames, err := listImages(dir)
		if err != nil || len(frames) == 0 {
			frames, err = listImages(filepath.Join(dir, "images"))
			if err != nil {
				return nil, errors.Wrapf(err, "listing frames for %s", filepath.Base(dir))
			}
		}
		if len(frames) > opts.Frames {
			frames = frames[:opts.Frames]
		}
		if len(frames) == 0 {
			return nil, errors.Errorf("camera %s has no frames", filepath.Base(dir))
		}

		camIdx, pose := camIdx, pose
		tasks := make([]recordTask, len(frames))
		for j := range frames {
			j := j
			uid := camIdx*opts.Frames + j
			tasks[j] = func(ctx context.Context) (*camera.Record, error) {
				img, err := imgutil.Load(frames[j])
				if err != nil {
					return nil, err
				}
				rec, err := camera.FromCameraToWorld(uid, pose.c2w, pose.fovX, pose.fovY,
					img.Bounds().Dx(), img.Bounds().Dy(), float64(j)/timeNorm)
				if err != nil {
					return nil, err
				}
				rec.Image = img
				rec.ImagePath = frames[j]
				rec.ImageName = filepath.Join(filepath.Base(dir), filepath.Base(frames[j]))
				return rec, nil
			}
		}
		records, err := loadRecords(ctx, opts.Workers, tasks)
		if err != nil {
			return nil, err
		}
		if camIdx == 0 {
			test = append(test, records...)
		} else {
			train = append(train, records...)
			rigKeys = append(rigKeys, records[0])
		}
	}
	norm, err := geometry.ComputeNormalization(train)
	if err != nil {
		return nil, err
	}

	plyPath := filepath.Join(path, "points3D_downsample2.ply")
	pcd, err := pointcloud.ReadPLY(plyPath, logger)
	if err != nil {
		return nil, errors.Wrap(err, "reading downsampled point cloud")
	}

	video, err := rigPreviewRecords(rigKeys, train, timeNorm, opts.Frames, opts.PreviewFrames)
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
		MaxTime:       float64(opts.Frames),
	}, nil
}
