package camera

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/RR-2000/4DGaussians/colmap"
)

// RotationFromQuaternion expands a unit quaternion (w, x, y, z) into its
// 3x3 rotation matrix. The quaternion is normalized first.
func RotationFromQuaternion(q quat.Number) *mat.Dense {
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// FromColmap normalizes one COLMAP registered image into a Record. The
// stored rotation is the transpose of the quaternion's rotation and the
// translation keeps COLMAP's sign convention; the downstream view-matrix
// construction undoes both. Only undistorted intrinsic models are accepted.
func FromColmap(uid int, extr colmap.Image, intr colmap.Camera, imagePath string, tm float64, img image.Image) (*Record, error) {
	width := int(intr.Width)
	height := int(intr.Height)

	var fovX, fovY float64
	switch intr.Model {
	case colmap.SimplePinhole, colmap.SimpleRadial:
		f := intr.Params[0]
		fovX = FocalToFOV(f, float64(width))
		fovY = FocalToFOV(f, float64(height))
	case colmap.Pinhole, colmap.OpenCV:
		fovX = FocalToFOV(intr.Params[0], float64(width))
		fovY = FocalToFOV(intr.Params[1], float64(height))
	default:
		return nil, errors.Wrapf(colmap.ErrUnsupportedCameraModel,
			"model %s: only undistorted models are supported", intr.Model)
	}

	var r mat.Dense
	r.CloneFrom(RotationFromQuaternion(extr.QVec).T())

	name := strings.TrimSuffix(filepath.Base(extr.Name), filepath.Ext(extr.Name))
	return &Record{
		UID:       uid,
		R:         &r,
		T:         extr.TVec,
		FovX:      fovX,
		FovY:      fovY,
		Image:     img,
		ImagePath: imagePath,
		ImageName: name,
		Width:     width,
		Height:    height,
		Time:      tm,
	}, nil
}

// FromCameraToWorld normalizes a 4x4 camera-to-world transform in the
// OpenGL/Blender axis convention (Y up, Z back) into a Record in the
// COLMAP convention (Y down, Z forward): the transform is inverted,
// the rotation block negated and transposed with its first column
// flipped back, and the translation negated.
func FromCameraToWorld(uid int, c2w *mat.Dense, fovX, fovY float64, width, height int, tm float64) (*Record, error) {
	var w2c mat.Dense
	if err := w2c.Inverse(c2w); err != nil {
		return nil, errors.Wrap(err, "camera-to-world transform is singular")
	}
	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			// negated transpose, then flip the sign of the first column
			v := -w2c.At(i, j)
			if i == 0 {
				v = -v
			}
			r.Set(j, i, v)
		}
	}
	return &Record{
		UID:    uid,
		R:      r,
		T:      r3.Vector{X: -w2c.At(0, 3), Y: -w2c.At(1, 3), Z: -w2c.At(2, 3)},
		FovX:   fovX,
		FovY:   fovY,
		Width:  width,
		Height: height,
		Time:   tm,
	}, nil
}

// FromWorldToCamera normalizes an explicit 4x4 world-to-camera transform
// already in the COLMAP axis convention into a Record.
func FromWorldToCamera(uid int, w2c *mat.Dense, fovX, fovY float64, width, height int, tm float64) *Record {
	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(j, i, w2c.At(i, j))
		}
	}
	return &Record{
		UID:    uid,
		R:      r,
		T:      r3.Vector{X: w2c.At(0, 3), Y: w2c.At(1, 3), Z: w2c.At(2, 3)},
		FovX:   fovX,
		FovY:   fovY,
		Width:  width,
		Height: height,
		Time:   tm,
	}
}
