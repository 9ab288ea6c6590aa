package scene

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/RR-2000/4DGaussians/camera"
	"github.com/RR-2000/4DGaussians/geometry"
	"github.com/RR-2000/4DGaussians/imgutil"
	"github.com/RR-2000/4DGaussians/pointcloud"
)

// blenderReader loads synthetic NeRF-style captures: paired train/test
// transform JSONs with camera-to-world matrices, a shared horizontal field
// of view and per-frame times.
type blenderReader struct{}

func (blenderReader) DatasetType() string { return "Blender" }

// orbitFrames is the length of the synthesized looping azimuth sweep.
const orbitFrames = 160

type transformsFile struct {
	CameraAngleX *float64          `json:"camera_angle_x"`
	FocalX       *float64          `json:"fl_x"`
	Width        *float64          `json:"w"`
	Frames       []transformsFrame `json:"frames"`
}

type transformsFrame struct {
	FilePath        string      `json:"file_path"`
	Time            float64     `json:"time"`
	TransformMatrix [][]float64 `json:"transform_matrix"`
}

func readTransformsFile(path string) (*transformsFile, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	var contents transformsFile
	if err := json.NewDecoder(f).Decode(&contents); err != nil {
		return nil, errors.Wrapf(err, "parsing %q", path)
	}
	return &contents, nil
}

// horizontalFOV prefers the declared camera angle and falls back to the
// focal length / width pair.
func (t *transformsFile) horizontalFOV() (float64, error) {
	if t.CameraAngleX != nil {
		return *t.CameraAngleX, nil
	}
	if t.FocalX != nil && t.Width != nil {
		return camera.FocalToFOV(*t.FocalX, *t.Width), nil
	}
	return 0, errors.New("transforms file declares neither camera_angle_x nor fl_x/w")
}

// readTimeline collects the declared per-frame times across the train and
// test files, deduplicates and sorts them, and rescales by the maximum so
// the latest frame maps to 1.
func readTimeline(path string) (map[float64]float64, float64, error) {
	var all []float64
	for _, name := range []string{"transforms_train.json", "transforms_test.json"} {
		contents, err := readTransformsFile(filepath.Join(path, name))
		if err != nil {
			return nil, 0, err
		}
		for _, frame := range contents.Frames {
			all = append(all, frame.Time)
		}
	}
	seen := map[float64]bool{}
	timeline := all[:0]
	for _, t := range all {
		if !seen[t] {
			seen[t] = true
			timeline = append(timeline, t)
		}
	}
	sort.Float64s(timeline)
	if len(timeline) == 0 {
		return nil, 0, errors.New("transforms files declare no frames")
	}
	maxTime := timeline[len(timeline)-1]
	mapper := make(map[float64]float64, len(timeline))
	for _, t := range timeline {
		if maxTime > 0 {
			mapper[t] = t / maxTime
		} else {
			mapper[t] = 0
		}
	}
	return mapper, maxTime, nil
}

func transformToDense(m [][]float64) (*mat.Dense, error) {
	if len(m) != 4 || len(m[0]) != 4 {
		return nil, errors.Errorf("transform matrix is %dx%d, want 4x4", len(m), len(m[0]))
	}
	out := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		if len(m[i]) != 4 {
			return nil, errors.Errorf("transform matrix row %d has %d entries", i, len(m[i]))
		}
		for j := 0; j < 4; j++ {
			out.Set(i, j, m[i][j])
		}
	}
	return out, nil
}

func (r blenderReader) readSplit(
	ctx context.Context,
	path, transformsName string,
	mapper map[float64]float64,
	opts Options,
	logger golog.Logger,
) ([]*camera.Record, error) {
	contents, err := readTransformsFile(filepath.Join(path, transformsName))
	if err != nil {
		return nil, err
	}
	fovX, err := contents.horizontalFOV()
	if err != nil {
		return nil, err
	}

	logger.Infof("reading %d frames from %s", len(contents.Frames), transformsName)
	tasks := make([]recordTask, len(contents.Frames))
	for idx := range contents.Frames {
		idx := idx
		frame := contents.Frames[idx]
		tasks[idx] = func(ctx context.Context) (*camera.Record, error) {
			imagePath := filepath.Join(path, frame.FilePath+opts.Extension)
			img, err := imgutil.Load(imagePath)
			if err != nil {
				return nil, err
			}
			flat, _ := imgutil.Flatten(img, opts.WhiteBackground)
			flat = imgutil.Resize(flat, opts.TargetSize, opts.TargetSize)
			width := flat.Bounds().Dx()
			height := flat.Bounds().Dy()
			fovY := camera.FocalToFOV(camera.FOVToFocal(fovX, float64(width)), float64(height))

			c2w, err := transformToDense(frame.TransformMatrix)
			if err != nil {
				return nil, err
			}
			rec, err := camera.FromCameraToWorld(idx, c2w, fovX, fovY, width, height, mapper[frame.Time])
			if err != nil {
				return nil, err
			}
			rec.Image = flat
			rec.ImagePath = imagePath
			rec.ImageName = strings.TrimSuffix(filepath.Base(imagePath), opts.Extension)
			return rec, nil
		}
	}
	return loadRecords(ctx, opts.Workers, tasks)
}

// orbitRecords synthesizes the looping azimuth sweep used for preview
// video: a fixed-elevation orbit at radius 4 with time running over the
// whole capture.
func orbitRecords(fovX float64, width, height int) ([]*camera.Record, error) {
	flip := mat.NewDense(4, 4, []float64{
		-1, 0, 0, 0,
		0, 0, 1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	})
	const (
		elevationDeg = -30.0
		radius       = 4.0
	)
	fovY := camera.FocalToFOV(camera.FOVToFocal(fovX, float64(width)), float64(height))

	records := make([]*camera.Record, orbitFrames)
	for i := 0; i < orbitFrames; i++ {
		azimuthDeg := -180 + 360*float64(i)/orbitFrames
		c2w := poseSpherical(azimuthDeg, elevationDeg, radius, flip)
		tm := float64(i) / float64(orbitFrames-1)
		rec, err := camera.FromCameraToWorld(i, c2w, fovX, fovY, width, height, tm)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}

// poseSpherical composes translation along z, elevation, azimuth and the
// final axis permutation into one camera-to-world transform.
func poseSpherical(thetaDeg, phiDeg, radius float64, flip *mat.Dense) *mat.Dense {
	phi := phiDeg / 180 * math.Pi
	theta := thetaDeg / 180 * math.Pi

	transT := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, radius,
		0, 0, 0, 1,
	})
	rotPhi := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, math.Cos(phi), -math.Sin(phi), 0,
		0, math.Sin(phi), math.Cos(phi), 0,
		0, 0, 0, 1,
	})
	rotTheta := mat.NewDense(4, 4, []float64{
		math.Cos(theta), 0, -math.Sin(theta), 0,
		0, 1, 0, 0,
		math.Sin(theta), 0, math.Cos(theta), 0,
		0, 0, 0, 1,
	})

	var c2w mat.Dense
	c2w.Mul(rotPhi, transT)
	c2w.Mul(rotTheta, mat.DenseCopyOf(&c2w))
	c2w.Mul(flip, mat.DenseCopyOf(&c2w))
	return &c2w
}

func (r blenderReader) Read(ctx context.Context, path string, opts Options, logger golog.Logger) (*Info, error) {
	mapper, maxTime, err := readTimeline(path)
	if err != nil {
		return nil, err
	}
	train, err := r.readSplit(ctx, path, "transforms_train.json", mapper, opts, logger)
	if err != nil {
		return nil, err
	}
	test, err := r.readSplit(ctx, path, "transforms_test.json", mapper, opts, logger)
	if err != nil {
		return nil, err
	}

	trainFile, err := readTransformsFile(filepath.Join(path, "transforms_train.json"))
	if err != nil {
		return nil, err
	}
	fovX, err := trainFile.horizontalFOV()
	if err != nil {
		return nil, err
	}
	var video []*camera.Record
	if len(train) > 0 {
		if video, err = orbitRecords(fovX, train[0].Width, train[0].Height); err != nil {
			return nil, err
		}
	}

	if !opts.Eval {
		train = append(train, test...)
		test = nil
	}
	norm, err := geometry.ComputeNormalization(train)
	if err != nil {
		return nil, err
	}

	plyPath := filepath.Join(path, "fused.ply")
	var pcd *pointcloud.PointCloud
	if _, statErr := os.Stat(plyPath); statErr == nil {
		if pcd, err = pointcloud.ReadPLY(plyPath, logger); err != nil {
			return nil, err
		}
	} else {
		// no reconstructed geometry: random points inside the bounds of the
		// synthetic scenes
		const numPts = 2000
		logger.Infof("generating random point cloud (%d points)", numPts)
		pcd = pointcloud.Random(numPts, -1.3, 1.3)
	}

	return &Info{
		PointCloud:    pcd,
		TrainCameras:  train,
		TestCameras:   test,
		VideoCameras:  video,
		Normalization: norm,
		PLYPath:       plyPath,
		MaxTime:       maxTime,
	}, nil
}
