package scene

import (
	"context"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/RR-2000/4DGaussians/camera"
	"github.com/RR-2000/4DGaussians/geometry"
	"github.com/RR-2000/4DGaussians/imgutil"
	"github.com/RR-2000/4DGaussians/pointcloud"
)

// panopticReader loads the Panoptic Sports capture layout: one metadata
// JSON per split carrying explicit per-timestep, per-camera intrinsics and
// world-to-camera transforms, and an initial point cloud shipped as an npz
// archive.
type panopticReader struct{}

func (panopticReader) DatasetType() string { return "PanopticSports" }

type panopticMeta struct {
	Width      float64         `json:"w"`
	Height     float64         `json:"h"`
	Intrinsics [][][][]float64 `json:"k"`
	World2Cam  [][][][]float64 `json:"w2c"`
	FileNames  [][]string      `json:"fn"`
	CameraIDs  [][]int         `json:"cam_id"`
}

func (r panopticReader) Read(ctx context.Context, path string, opts Options, logger golog.Logger) (*Info, error) {
	train, numT, err := r.readSplit(ctx, path, "train_meta.json", opts, logger)
	if err != nil {
		return nil, err
	}
	test, _, err := r.readSplit(ctx, path, "test_meta.json", opts, logger)
	if err != nil {
		return nil, err
	}

	norm, err := panopticNormalization(train)
	if err != nil {
		return nil, err
	}

	pcd, err := pointcloud.ReadNPZ(filepath.Join(path, "init_pt_cld.npz"), "data")
	if err != nil {
		return nil, errors.Wrap(err, "reading initial point cloud")
	}
	plyPath := filepath.Join(path, "points3D.ply")
	if err := pointcloud.WritePLY(plyPath, pcd.Positions, pcd.Colors); err != nil {
		return nil, errors.Wrap(err, "persisting initial point cloud")
	}

	return &Info{
		PointCloud:    pcd,
		TrainCameras:  train,
		TestCameras:   test,
		VideoCameras:  test,
		Normalization: norm,
		PLYPath:       plyPath,
		MaxTime:       float64(numT),
	}, nil
}

func (panopticReader) readSplit(
	ctx context.Context,
	path, metaName string,
	opts Options,
	logger golog.Logger,
) ([]*camera.Record, int, error) {
	var meta panopticMeta
	if err := readJSONFile(filepath.Join(path, metaName), &meta); err != nil {
		return nil, 0, err
	}
	numT := len(meta.FileNames)
	if numT == 0 {
		return nil, 0, errors.Errorf("%s declares no timesteps", metaName)
	}
	timeNorm := float64(numT - 1)
	if timeNorm < 1 {
		timeNorm = 1
	}
	logger.Infof("%s: %d timesteps x %d cameras", metaName, numT, len(meta.FileNames[0]))

	var tasks []recordTask
	for t := 0; t < numT; t++ {
		if len(meta.Intrinsics[t]) != len(meta.FileNames[t]) || len(meta.World2Cam[t]) != len(meta.FileNames[t]) {
			return nil, 0, errors.Errorf("%s timestep %d has mismatched camera counts", metaName, t)
		}
		for c := range meta.FileNames[t] {
			t, c := t, c
			uid := len(tasks)
			tasks = append(tasks, func(ctx context.Context) (*camera.Record, error) {
				k := meta.Intrinsics[t][c]
				w2cRows := meta.World2Cam[t][c]
				if len(k) != 3 || len(w2cRows) != 4 {
					return nil, errors.Errorf("camera %d at timestep %d has malformed calibration", c, t)
				}
				w2c := mat.NewDense(4, 4, nil)
				for i := 0; i < 4; i++ {
					if len(w2cRows[i]) != 4 {
						return nil, errors.Errorf("camera %d at timestep %d has malformed transform", c, t)
					}
					for j := 0; j < 4; j++ {
						w2c.Set(i, j, w2cRows[i][j])
					}
				}

				imagePath := filepath.Join(path, "ims", filepath.FromSlash(meta.FileNames[t][c]))
				img, err := imgutil.Load(imagePath)
				if err != nil {
					return nil, err
				}

				fovX := camera.FocalToFOV(k[0][0], meta.Width)
				fovY := camera.FocalToFOV(k[1][1], meta.Height)
				rec := camera.FromWorldToCamera(uid, w2c, fovX, fovY,
					int(meta.Width), int(meta.Height), float64(t)/timeNorm)
				rec.K = camera.Intrinsics3x3(k[0][0], k[1][1], k[0][2], k[1][2])
				rec.Image = img
				rec.ImagePath = imagePath
				rec.ImageName = meta.FileNames[t][c]
				return rec, nil
			})
		}
	}
	records, err := loadRecords(ctx, opts.Workers, tasks)
	return records, numT, err
}

// panopticNormalization centers on the mean first-timestep camera position
// rather than translating, matching how these captures are already roughly
// centered on the performance volume.
func panopticNormalization(records []*camera.Record) (geometry.Normalization, error) {
	if len(records) == 0 {
		return geometry.Normalization{}, errors.Wrap(geometry.ErrInvalidGeometry, "no cameras to normalize over")
	}
	var centers []r3.Vector
	for _, rec := range records {
		if rec.Time != 0 {
			continue
		}
		centers = append(centers, geometry.CameraCenter(rec.R, rec.T))
	}
	if len(centers) == 0 {
		centers = append(centers, geometry.CameraCenter(records[0].R, records[0].T))
	}
	var mean r3.Vector
	for _, c := range centers {
		mean = mean.Add(c)
	}
	mean = mean.Mul(1 / float64(len(centers)))
	maxDist := 0.0
	for _, c := range centers {
		if d := c.Sub(mean).Norm(); d > maxDist {
			maxDist = d
		}
	}
	return geometry.Normalization{Radius: 1.1 * maxDist}, nil
}
