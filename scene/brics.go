package scene

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/RR-2000/4DGaussians/camera"
	"github.com/RR-2000/4DGaussians/geometry"
	"github.com/RR-2000/4DGaussians/imgutil"
	"github.com/RR-2000/4DGaussians/pointcloud"
)

// bricsReader loads a multi-camera Brics rig: one JSON per split with one
// entry per rig camera and frames stored per (camera, timestep) pair. These
// rigs ship no reconstructed geometry, so the initial cloud is carved from
// the per-image alpha masks by frustum intersection.
type bricsReader struct{}

func (bricsReader) DatasetType() string { return "Brics" }

type bricsFrame struct {
	Width           float64     `json:"w"`
	Height          float64     `json:"h"`
	FocalX          float64     `json:"fl_x"`
	FocalY          float64     `json:"fl_y"`
	CenterX         float64     `json:"cx"`
	CenterY         float64     `json:"cy"`
	FilePath        string      `json:"file_path"`
	TransformMatrix [][]float64 `json:"transform_matrix"`
}

type bricsTransforms struct {
	Frames []bricsFrame `json:"frames"`
}

// rigCameraName is the directory component naming the physical camera.
func rigCameraName(filePath string) string {
	return filepath.Base(filepath.Dir(filepath.ToSlash(filePath)))
}

// readSplit loads every (camera, timestep) record of one split and
// returns them along with the first-frame record per rig camera, which the
// preview path is threaded through.
func (r bricsReader) readSplit(
	ctx context.Context,
	path, split string,
	opts Options,
	logger golog.Logger,
) ([]*camera.Record, map[string]*camera.Record, error) {
	var meta bricsTransforms
	if err := readJSONFile(filepath.Join(path, fmt.Sprintf("transforms_%s.json", split)), &meta); err != nil {
		return nil, nil, err
	}
	if len(meta.Frames) == 0 {
		return nil, nil, errors.Errorf("transforms_%s.json declares no cameras", split)
	}

	numT := opts.Brics.NumFrames
	downsample := opts.Brics.Downsample
	timeNorm := float64(numT - 1)
	if timeNorm < 1 {
		timeNorm = 1
	}

	logger.Infof("loading %s split: %d cameras x %d timesteps", split, len(meta.Frames), numT)
	tasks := make([]recordTask, 0, len(meta.Frames)*numT)
	for camIdx := range meta.Frames {
		frame := meta.Frames[camIdx]
		camName := rigCameraName(frame.FilePath)
		for j := opts.Brics.StartFrame; j < opts.Brics.StartFrame+numT; j++ {
			uid := len(tasks)
			j := j
			tasks = append(tasks, func(ctx context.Context) (*camera.Record, error) {
				imgPath := filepath.Join(path, "frames_1", camName, fmt.Sprintf("%08d.png", j))
				img, err := imgutil.Load(imgPath)
				if err != nil {
					return nil, err
				}
				img = imgutil.Downsample(img, downsample)
				flat, mask := imgutil.Flatten(img, opts.WhiteBackground)

				pose, err := transformToDense(frame.TransformMatrix)
				if err != nil {
					return nil, err
				}
				// OpenGL/Blender camera axes (Y up, Z back) to COLMAP
				// (Y down, Z forward)
				for i := 0; i < 3; i++ {
					pose.Set(i, 1, -pose.At(i, 1))
					pose.Set(i, 2, -pose.At(i, 2))
				}
				var w2c mat.Dense
				if err := w2c.Inverse(pose); err != nil {
					return nil, errors.Wrapf(err, "camera %s pose is singular", camName)
				}

				scale := 1.0 / float64(downsample)
				width := flat.Bounds().Dx()
				height := flat.Bounds().Dy()
				fovX := camera.FocalToFOV(frame.FocalX*scale, frame.Width*scale)
				fovY := camera.FocalToFOV(frame.FocalY*scale, frame.Height*scale)

				timestep := float64(j - opts.Brics.StartFrame)
				rec := camera.FromWorldToCamera(uid, &w2c, fovX, fovY, width, height, timestep/timeNorm)
				rec.K = camera.Intrinsics3x3(frame.FocalX*scale, frame.FocalY*scale, frame.CenterX*scale, frame.CenterY*scale)
				rec.Image = flat
				rec.Mask = mask
				rec.ImagePath = imgPath
				rec.ImageName = filepath.Join(camName, fmt.Sprintf("%08d", j))
				return rec, nil
			})
		}
	}
	records, err := loadRecords(ctx, opts.Workers, tasks)
	if err != nil {
		return nil, nil, err
	}

	firstFrame := make(map[string]*camera.Record, len(meta.Frames))
	for _, rec := range records {
		if rec.Time == 0 {
			firstFrame[rigCameraName(rec.ImagePath)] = rec
		}
	}
	return records, firstFrame, nil
}

// carveHull reconstructs approximate occupancy by projecting a dense grid
// into every first-frame camera and keeping voxels whose projection lands
// on an opaque mask pixel in at least the configured number of views.
func carveHull(records []*camera.Record, opts BricsOptions, logger golog.Logger) (*pointcloud.PointCloud, error) {
	res := opts.GridResolution
	bound := opts.GridBound
	grid := make([]r3.Vector, 0, res*res*res)
	for i := 0; i < res; i++ {
		for j := 0; j < res; j++ {
			for k := 0; k < res; k++ {
				grid = append(grid, r3.Vector{
					X: -bound + 2*bound*float64(i)/float64(res-1),
					Y: -bound + 2*bound*float64(j)/float64(res-1),
					Z: -bound + 2*bound*float64(k)/float64(res-1),
				})
			}
		}
	}

	const (
		znear = 0.01
		zfar  = 100.0
	)
	counter := make([]int, len(grid))
	for i := range counter {
		counter[i] = 1
	}
	views := 0
	for _, rec := range records {
		if rec.Time != 0 || rec.Mask == nil {
			continue
		}
		views++
		full := geometry.ViewProjection(rec, znear, zfar)
		for i, pix := range geometry.ProjectPoints(grid, full, rec.Width, rec.Height) {
			if pix.Valid && imgutil.MaskVisible(rec.Mask, pix.X, pix.Y) {
				counter[i]++
			}
		}
	}
	logger.Debugf("carved hull against %d first-frame views", views)

	var positions []r3.Vector
	for i, c := range counter {
		if c > opts.HullViews {
			positions = append(positions, grid[i])
		}
	}
	if len(positions) == 0 {
		return nil, errors.Wrapf(geometry.ErrInvalidGeometry,
			"hull carving kept no voxels (threshold %d over %d views)", opts.HullViews, views)
	}

	colors := make([]r3.Vector, len(positions))
	for i := range colors {
		colors[i] = r3.Vector{
			X: rand.Float64() / 255.0,
			Y: rand.Float64() / 255.0,
			Z: rand.Float64() / 255.0,
		}
	}
	pcd, err := pointcloud.New(positions, colors, nil)
	if err != nil {
		return nil, err
	}
	return pcd.Subsample(opts.MaxPoints), nil
}

func (r bricsReader) Read(ctx context.Context, path string, opts Options, logger golog.Logger) (*Info, error) {
	train, firstFrame, err := r.readSplit(ctx, path, "train", opts, logger)
	if err != nil {
		return nil, err
	}
	test, _, err := r.readSplit(ctx, path, "test", opts, logger)
	if err != nil {
		return nil, err
	}

	pcd, err := carveHull(train, opts.Brics, logger)
	if err != nil {
		return nil, err
	}
	plyPath := filepath.Join(opts.Brics.CacheDir, fmt.Sprintf("hull_%s.ply", uuid.New().String()))
	if err := pointcloud.WritePLY(plyPath, pcd.Positions, pcd.Colors); err != nil {
		return nil, errors.Wrap(err, "persisting hull cloud")
	}

	video, err := r.previewRecords(firstFrame, train, opts)
	if err != nil {
		return nil, err
	}

	norm, err := geometry.ComputeNormalization(train)
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
		MaxTime:       float64(opts.Brics.NumFrames),
	}, nil
}

// previewRecords splines a smooth path through a fixed ordered subset of
// rig cameras. Time indices ping-pong forward then back across the frame
// count so the preview sweeps the timeline in both directions.
func (r bricsReader) previewRecords(
	firstFrame map[string]*camera.Record,
	train []*camera.Record,
	opts Options,
) ([]*camera.Record, error) {
	keys := make([]*mat.Dense, 0, len(opts.Brics.PreviewCameras))
	for _, name := range opts.Brics.PreviewCameras {
		rec, ok := firstFrame[name]
		if !ok {
			return nil, errors.Errorf("preview camera %q is not in the train split", name)
		}
		c2w, err := cameraToWorld(rec)
		if err != nil {
			return nil, err
		}
		keys = append(keys, c2w)
	}
	poses, err := interpolatePoses(keys, opts.PreviewFrames)
	if err != nil {
		return nil, err
	}

	numT := opts.Brics.NumFrames
	timeNorm := float64(numT - 1)
	if timeNorm < 1 {
		timeNorm = 1
	}
	times := make([]float64, 0, 2*numT)
	for t := 0; t < numT; t++ {
		times = append(times, float64(t)/timeNorm)
	}
	for t := numT - 1; t >= 0; t-- {
		times = append(times, float64(t)/timeNorm)
	}
	return pathRecords(poses, train[0], times)
}
