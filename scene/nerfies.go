package scene

import (
	"context"
	"fmt"
	"math"
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

// nerfiesReader loads the Nerfies/HyperNeRF capture layout: per-frame
// camera JSON files, declared train/validation id lists, a scene scale
// applied to every camera position, and pre-rendered downsampled rgb
// directories selected by the resolution ratio.
type nerfiesReader struct{}

func (nerfiesReader) DatasetType() string { return "nerfies" }

type nerfiesDataset struct {
	IDs      []string `json:"ids"`
	TrainIDs []string `json:"train_ids"`
	ValIDs   []string `json:"val_ids"`
}

type nerfiesScene struct {
	Scale  float64   `json:"scale"`
	Center []float64 `json:"center"`
}

type nerfiesCamera struct {
	Orientation    [][]float64 `json:"orientation"`
	Position       []float64   `json:"position"`
	FocalLength    float64     `json:"focal_length"`
	PrincipalPoint []float64   `json:"principal_point"`
	ImageSize      []float64   `json:"image_size"`
}

type nerfiesMeta map[string]struct {
	TimeID *float64 `json:"time_id"`
	WarpID *float64 `json:"warp_id"`
}

func (m nerfiesMeta) timeOf(id string) (float64, error) {
	entry, ok := m[id]
	if !ok {
		return 0, errors.Errorf("metadata.json has no entry for frame %q", id)
	}
	switch {
	case entry.TimeID != nil:
		return *entry.TimeID, nil
	case entry.WarpID != nil:
		return *entry.WarpID, nil
	}
	return 0, errors.Errorf("frame %q declares neither time_id nor warp_id", id)
}

func (r nerfiesReader) Read(ctx context.Context, path string, opts Options, logger golog.Logger) (*Info, error) {
	var dataset nerfiesDataset
	if err := readJSONFile(filepath.Join(path, "dataset.json"), &dataset); err != nil {
		return nil, err
	}
	var sceneMeta nerfiesScene
	if err := readJSONFile(filepath.Join(path, "scene.json"), &sceneMeta); err != nil {
		return nil, err
	}
	if len(sceneMeta.Center) != 3 {
		return nil, errors.Errorf("scene.json center has %d components, want 3", len(sceneMeta.Center))
	}
	var meta nerfiesMeta
	if err := readJSONFile(filepath.Join(path, "metadata.json"), &meta); err != nil {
		return nil, err
	}
	if len(dataset.TrainIDs) == 0 {
		return nil, errors.Errorf("dataset.json declares no train ids")
	}

	maxTimeID := 0.0
	for _, id := range dataset.IDs {
		t, err := meta.timeOf(id)
		if err != nil {
			return nil, err
		}
		if t > maxTimeID {
			maxTimeID = t
		}
	}
	timeNorm := maxTimeID
	if timeNorm == 0 {
		timeNorm = 1
	}

	rgbDir := filepath.Join(path, "rgb", fmt.Sprintf("%dx", int(math.Round(1/opts.Ratio))))
	logger.Infof("loading %d train and %d validation frames at ratio %g",
		len(dataset.TrainIDs), len(dataset.ValIDs), opts.Ratio)

	load := func(ids []string) ([]*camera.Record, error) {
		tasks := make([]recordTask, len(ids))
		for i, id := range ids {
			i, id := i, id
			tasks[i] = func(ctx context.Context) (*camera.Record, error) {
				return r.readFrame(path, rgbDir, id, i, sceneMeta, meta, timeNorm, opts)
			}
		}
		return loadRecords(ctx, opts.Workers, tasks)
	}
	train, err := load(dataset.TrainIDs)
	if err != nil {
		return nil, err
	}
	test, err := load(dataset.ValIDs)
	if err != nil {
		return nil, err
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

	// the validation trajectory doubles as the preview path
	video := make([]*camera.Record, len(test))
	for i, rec := range test {
		clone := *rec
		clone.Image = nil
		clone.Mask = nil
		video[i] = &clone
	}

	return &Info{
		PointCloud:    pcd,
		TrainCameras:  train,
		TestCameras:   test,
		VideoCameras:  video,
		Normalization: norm,
		PLYPath:       plyPath,
		MaxTime:       maxTimeID,
	}, nil
}

// readFrame builds one record from its camera JSON. Orientation rows are
// the world-to-camera rotation; positions are re-centered and scaled by the
// scene metadata before the translation is derived.
func (nerfiesReader) readFrame(
	path, rgbDir, id string,
	uid int,
	sceneMeta nerfiesScene,
	meta nerfiesMeta,
	timeNorm float64,
	opts Options,
) (*camera.Record, error) {
	var cam nerfiesCamera
	if err := readJSONFile(filepath.Join(path, "camera", id+".json"), &cam); err != nil {
		return nil, err
	}
	if len(cam.Orientation) != 3 || len(cam.Position) != 3 || len(cam.ImageSize) != 2 {
		return nil, errors.Errorf("camera %q has malformed geometry", id)
	}

	orientation := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		if len(cam.Orientation[i]) != 3 {
			return nil, errors.Errorf("camera %q has malformed orientation", id)
		}
		for j := 0; j < 3; j++ {
			orientation.Set(i, j, cam.Orientation[i][j])
		}
	}

	position := make([]float64, 3)
	for i := 0; i < 3; i++ {
		position[i] = (cam.Position[i] - sceneMeta.Center[i]) * sceneMeta.Scale
	}
	// T = -orientation * position, the world-to-camera translation
	var t mat.VecDense
	t.MulVec(orientation, mat.NewVecDense(3, position))

	storedR := mat.NewDense(3, 3, nil)
	storedR.CloneFrom(orientation.T())

	tm, err := meta.timeOf(id)
	if err != nil {
		return nil, err
	}

	imagePath := filepath.Join(rgbDir, id+".png")
	img, err := imgutil.Load(imagePath)
	if err != nil {
		return nil, err
	}

	focal := cam.FocalLength * opts.Ratio
	width := float64(img.Bounds().Dx())
	height := float64(img.Bounds().Dy())
	return &camera.Record{
		UID:       uid,
		R:         storedR,
		T:         r3.Vector{X: -t.AtVec(0), Y: -t.AtVec(1), Z: -t.AtVec(2)},
		FovX:      camera.FocalToFOV(focal, width),
		FovY:      camera.FocalToFOV(focal, height),
		Image:     img,
		ImagePath: imagePath,
		ImageName: id,
		Width:     int(width),
		Height:    int(height),
		Time:      tm / timeNorm,
	}, nil
}
