// Package camera normalizes heterogeneous per-capture pose and intrinsics
// data into one Record type. Rotations are stored as the transpose of the
// world-to-camera rotation, the convention every downstream matrix builder
// assumes; times are normalized to [0,1] against the capture's maximum
// timestamp.
package camera

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/golang/geo/r3"
)

// Record is one observed or synthesized camera at one instant.
type Record struct {
	UID  int
	R    *mat.Dense // 3x3, transpose of the world-to-camera rotation
	T    r3.Vector
	FovX float64 // horizontal field of view, radians
	FovY float64 // vertical field of view, radians

	// Image may be nil for synthetic or video-path cameras.
	Image     image.Image
	ImagePath string
	ImageName string
	Width     int
	Height    int

	Time float64

	// Optional per-record extras.
	Depth *mat.Dense
	K     *mat.Dense // 3x3 intrinsic matrix
	Mask  *image.Alpha
}

// FocalToFOV computes a field of view from a focal length and a pixel
// extent via the pinhole relation.
func FocalToFOV(focal, pixels float64) float64 {
	return 2 * math.Atan(pixels/(2*focal))
}

// FOVToFocal recovers a focal length from a field of view and a pixel
// extent; it inverts FocalToFOV.
func FOVToFocal(fov, pixels float64) float64 {
	return pixels / (2 * math.Tan(fov/2))
}

// Intrinsics3x3 builds the pinhole intrinsic matrix
//
//	[fx 0 cx]
//	[0 fy cy]
//	[0  0  1]
func Intrinsics3x3(fx, fy, cx, cy float64) *mat.Dense {
	k := mat.NewDense(3, 3, nil)
	k.Set(0, 0, fx)
	k.Set(1, 1, fy)
	k.Set(0, 2, cx)
	k.Set(1, 2, cy)
	k.Set(2, 2, 1)
	return k
}

// CheckValid verifies the record invariants: an orthonormal rotation with
// determinant +1, a normalized time, and image dimensions that agree with
// the loaded pixels.
func (r *Record) CheckValid() error {
	if r.R == nil {
		return errors.New("record has no rotation")
	}
	if rows, cols := r.R.Dims(); rows != 3 || cols != 3 {
		return errors.Errorf("rotation is %dx%d, want 3x3", rows, cols)
	}
	var rtr mat.Dense
	rtr.Mul(r.R.T(), r.R)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rtr.At(i, j)-want) > 1e-6 {
				return errors.Errorf("rotation of record %d is not orthonormal", r.UID)
			}
		}
	}
	if det := mat.Det(r.R); math.Abs(det-1) > 1e-6 {
		return errors.Errorf("rotation of record %d has determinant %f, want +1", r.UID, det)
	}
	if r.Time < -1e-9 || r.Time > 1+1e-9 {
		return errors.Errorf("record %d has time %f outside [0,1]", r.UID, r.Time)
	}
	if r.Image != nil {
		bounds := r.Image.Bounds()
		if bounds.Dx() != r.Width || bounds.Dy() != r.Height {
			return errors.Errorf("record %d is %dx%d but its image is %dx%d",
				r.UID, r.Width, r.Height, bounds.Dx(), bounds.Dy())
		}
	}
	return nil
}
