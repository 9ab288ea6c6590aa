// Package geometry builds the view and projection matrices shared by every
// scene reader and derives the scene normalization (centroid translation and
// bounding radius) that fits a capture into a numerically stable working
// volume.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/RR-2000/4DGaussians/camera"
)

// ErrInvalidGeometry is returned for degenerate camera or point sets, such
// as a normalization over zero cameras or a carved hull with no occupancy.
var ErrInvalidGeometry = errors.New("invalid scene geometry")

// WorldToView builds the 4x4 world-to-view matrix from a record's stored
// rotation and translation. translate and scale recenter and rescale the
// camera position; pass a zero vector and 1 for the identity normalization.
func WorldToView(r *mat.Dense, t, translate r3.Vector, scale float64) *mat.Dense {
	rt := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			// stored rotations are transposed; undo that here
			rt.Set(i, j, r.At(j, i))
		}
	}
	rt.Set(0, 3, t.X)
	rt.Set(1, 3, t.Y)
	rt.Set(2, 3, t.Z)
	rt.Set(3, 3, 1)

	var c2w mat.Dense
	if err := c2w.Inverse(rt); err != nil {
		// orthonormal rotations make rt invertible; nothing sane to do here
		panic(err)
	}
	c2w.Set(0, 3, (c2w.At(0, 3)+translate.X)*scale)
	c2w.Set(1, 3, (c2w.At(1, 3)+translate.Y)*scale)
	c2w.Set(2, 3, (c2w.At(2, 3)+translate.Z)*scale)

	var w2v mat.Dense
	if err := w2v.Inverse(&c2w); err != nil {
		panic(err)
	}
	return &w2v
}

// CameraCenter returns the world-space position of a camera given its
// stored rotation and translation.
func CameraCenter(r *mat.Dense, t r3.Vector) r3.Vector {
	w2v := WorldToView(r, t, r3.Vector{}, 1.0)
	var c2w mat.Dense
	if err := c2w.Inverse(w2v); err != nil {
		panic(err)
	}
	return r3.Vector{X: c2w.At(0, 3), Y: c2w.At(1, 3), Z: c2w.At(2, 3)}
}

// Normalization recenters a scene at the camera centroid and bounds it by
// 1.1x the maximum camera distance from that centroid.
type Normalization struct {
	Translate r3.Vector `json:"translate"`
	Radius    float64   `json:"radius"`
}

// ComputeNormalization derives the normalization from camera positions.
func ComputeNormalization(records []*camera.Record) (Normalization, error) {
	if len(records) == 0 {
		return Normalization{}, errors.Wrap(ErrInvalidGeometry, "no cameras to normalize over")
	}
	centers := make([]r3.Vector, len(records))
	var sum r3.Vector
	for i, rec := range records {
		centers[i] = CameraCenter(rec.R, rec.T)
		sum = sum.Add(centers[i])
	}
	center := sum.Mul(1.0 / float64(len(records)))
	maxDist := 0.0
	for _, c := range centers {
		if d := c.Sub(center).Norm(); d > maxDist {
			maxDist = d
		}
	}
	return Normalization{Translate: center.Mul(-1), Radius: maxDist * 1.1}, nil
}

// Projection builds the 4x4 perspective projection matrix. When k is nil the
// frustum is symmetric about the optical axis from the fields of view; when
// an intrinsic matrix is given the principal point shifts the frustum,
// which matters for the off-center sensors of multi-camera rigs.
func Projection(znear, zfar, fovX, fovY float64, k *mat.Dense, width, height int) *mat.Dense {
	var left, right, top, bottom float64
	if k == nil {
		tanHalfX := math.Tan(fovX / 2)
		tanHalfY := math.Tan(fovY / 2)
		right = tanHalfX * znear
		left = -right
		top = tanHalfY * znear
		bottom = -top
	} else {
		nearFx := znear / k.At(0, 0)
		nearFy := znear / k.At(1, 1)
		right = k.At(0, 2) * nearFx
		left = -(float64(width) - k.At(0, 2)) * nearFx
		top = k.At(1, 2) * nearFy
		bottom = -(float64(height) - k.At(1, 2)) * nearFy
	}

	p := mat.NewDense(4, 4, nil)
	p.Set(0, 0, 2*znear/(right-left))
	p.Set(1, 1, 2*znear/(top-bottom))
	p.Set(0, 2, (right+left)/(right-left))
	p.Set(1, 2, (top+bottom)/(top-bottom))
	p.Set(2, 2, zfar/(zfar-znear))
	p.Set(2, 3, -(zfar*znear)/(zfar-znear))
	p.Set(3, 2, 1)
	return p
}

// ViewProjection composes a record's world-to-view and projection matrices
// into the single matrix used for visibility projection.
func ViewProjection(rec *camera.Record, znear, zfar float64) *mat.Dense {
	w2v := WorldToView(rec.R, rec.T, r3.Vector{}, 1.0)
	proj := Projection(znear, zfar, rec.FovX, rec.FovY, rec.K, rec.Width, rec.Height)
	var full mat.Dense
	full.Mul(proj, w2v)
	return &full
}

// NDCToPixel maps one normalized-device coordinate to pixel space.
func NDCToPixel(v, size float64) float64 {
	return ((v+1.0)*size - 1.0) * 0.5
}

// PixelPoint is a projected point rounded to pixel coordinates. Valid is
// false when the point lands outside the image bounds.
type PixelPoint struct {
	X, Y  int
	Valid bool
}

// ProjectPoints projects world points through a view-projection matrix to
// rounded pixel coordinates.
func ProjectPoints(points []r3.Vector, viewProj *mat.Dense, width, height int) []PixelPoint {
	out := make([]PixelPoint, len(points))
	var m [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[4*i+j] = viewProj.At(i, j)
		}
	}
	for i, pt := range points {
		cx := m[0]*pt.X + m[1]*pt.Y + m[2]*pt.Z + m[3]
		cy := m[4]*pt.X + m[5]*pt.Y + m[6]*pt.Z + m[7]
		cz := m[8]*pt.X + m[9]*pt.Y + m[10]*pt.Z + m[11]
		if cz == 0 {
			continue
		}
		u := NDCToPixel(cx/cz, float64(width))
		v := NDCToPixel(cy/cz, float64(height))
		x := int(math.Round(u))
		y := int(math.Round(v))
		out[i] = PixelPoint{
			X: x, Y: y,
			Valid: x >= 0 && x < width && y >= 0 && y < height,
		}
	}
	return out
}
