// Package colmap decodes the sparse reconstruction dumps produced by COLMAP,
// in both their binary and text forms, into plain structs. It knows nothing
// about scenes or splits; it is the leaf dependency of the format readers.
package colmap

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// ErrNoReconstruction is returned when a capture directory has neither binary
// nor text camera/image files.
var ErrNoReconstruction = errors.New("no COLMAP reconstruction found")

// ErrUnsupportedCameraModel is returned for camera models the pipeline cannot
// consume. Only undistorted models are supported; distortion coefficients are
// never applied.
var ErrUnsupportedCameraModel = errors.New("unsupported COLMAP camera model")

// CameraModel is one of COLMAP's intrinsic parameterizations.
type CameraModel int32

// Camera model identifiers, in COLMAP's numbering.
const (
	SimplePinhole CameraModel = iota
	Pinhole
	SimpleRadial
	Radial
	OpenCV
	OpenCVFisheye
	FullOpenCV
	FOVModel
	SimpleRadialFisheye
	RadialFisheye
	ThinPrismFisheye
)

type modelSpec struct {
	name      string
	numParams int
}

var modelSpecs = map[CameraModel]modelSpec{
	SimplePinhole:       {"SIMPLE_PINHOLE", 3},
	Pinhole:             {"PINHOLE", 4},
	SimpleRadial:        {"SIMPLE_RADIAL", 4},
	Radial:              {"RADIAL", 5},
	OpenCV:              {"OPENCV", 8},
	OpenCVFisheye:       {"OPENCV_FISHEYE", 8},
	FullOpenCV:          {"FULL_OPENCV", 12},
	FOVModel:            {"FOV", 5},
	SimpleRadialFisheye: {"SIMPLE_RADIAL_FISHEYE", 4},
	RadialFisheye:       {"RADIAL_FISHEYE", 5},
	ThinPrismFisheye:    {"THIN_PRISM_FISHEYE", 12},
}

func (m CameraModel) String() string {
	spec, ok := modelSpecs[m]
	if !ok {
		return "UNKNOWN"
	}
	return spec.name
}

func modelByName(name string) (CameraModel, error) {
	for id, spec := range modelSpecs {
		if spec.name == name {
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedCameraModel, "model %q", name)
}

// Camera holds the intrinsics of one physical camera.
type Camera struct {
	ID     int32
	Model  CameraModel
	Width  uint64
	Height uint64
	Params []float64
}

// Image holds the extrinsics of one registered image: the world-to-camera
// rotation as a quaternion (w, x, y, z), the translation, the intrinsics it
// references and the on-disk filename.
type Image struct {
	ID       int32
	QVec     quat.Number
	TVec     r3.Vector
	CameraID int32
	Name     string
}

// Point3D is one triangulated sparse point.
type Point3D struct {
	ID    int64
	XYZ   r3.Vector
	Color [3]uint8
	Error float64
}
