package scene

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/RR-2000/4DGaussians/camera"
	"github.com/RR-2000/4DGaussians/colmap"
	"github.com/RR-2000/4DGaussians/geometry"
	"github.com/RR-2000/4DGaussians/imgutil"
	"github.com/RR-2000/4DGaussians/pointcloud"
)

// colmapReader loads a sparse COLMAP reconstruction. Time is the monocular
// default: frame index over frame count in registration order.
type colmapReader struct{}

func (colmapReader) DatasetType() string { return "Colmap" }

func (colmapReader) Read(ctx context.Context, path string, opts Options, logger golog.Logger) (*Info, error) {
	modelDir := filepath.Join(path, "sparse", "0")
	recon, err := colmap.ReadReconstruction(modelDir)
	if err != nil {
		return nil, err
	}

	records, err := loadColmapRecords(ctx, recon, filepath.Join(path, opts.ImagesDir), opts.Workers, logger)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ImageName < records[j].ImageName })

	train, test := holdoutSplit(records, opts.Eval, opts.HoldoutStride)
	norm, err := geometry.ComputeNormalization(train)
	if err != nil {
		return nil, err
	}

	plyPath, err := pointcloud.EnsurePLY(modelDir, "points3D", logger)
	if err != nil {
		return nil, errors.Wrap(err, "converting sparse points")
	}
	pcd, err := pointcloud.ReadPLY(plyPath, logger)
	if err != nil {
		logger.Warnw("persisted point cloud unreadable; synthesizing a random one", "path", plyPath, "error", err)
		pcd = pointcloud.Random(2000, -1.3, 1.3)
	}

	return &Info{
		PointCloud:    pcd,
		TrainCameras:  train,
		TestCameras:   test,
		VideoCameras:  train,
		Normalization: norm,
		PLYPath:       plyPath,
		MaxTime:       0,
	}, nil
}

// loadColmapRecords fans image decodes out over the worker pool, one task
// per registered image in id order.
func loadColmapRecords(
	ctx context.Context,
	recon *colmap.Reconstruction,
	imagesDir string,
	workers int,
	logger golog.Logger,
) ([]*camera.Record, error) {
	ids := make([]int32, 0, len(recon.Images))
	for id := range recon.Images {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	logger.Infof("reading %d cameras", len(ids))
	tasks := make([]recordTask, len(ids))
	for idx, id := range ids {
		idx, id := idx, id
		tasks[idx] = func(ctx context.Context) (*camera.Record, error) {
			extr := recon.Images[id]
			intr, ok := recon.Cameras[extr.CameraID]
			if !ok {
				return nil, errors.Errorf("image %q references unknown camera %d", extr.Name, extr.CameraID)
			}
			imagePath := filepath.Join(imagesDir, filepath.Base(extr.Name))
			img, err := imgutil.Load(imagePath)
			if err != nil {
				return nil, err
			}
			tm := float64(idx) / float64(len(ids))
			return camera.FromColmap(int(intr.ID), extr, intr, imagePath, tm, img)
		}
	}
	return loadRecords(ctx, workers, tasks)
}

// holdoutSplit partitions records by the fixed-stride hold-out: every Nth
// camera goes to the test split when evaluation mode is on.
func holdoutSplit(records []*camera.Record, eval bool, stride int) (train, test []*camera.Record) {
	if !eval {
		return records, nil
	}
	for i, rec := range records {
		if i%stride == 0 {
			test = append(test, rec)
		} else {
			train = append(train, rec)
		}
	}
	return train, test
}
