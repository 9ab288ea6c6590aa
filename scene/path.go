package scene

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/RR-2000/4DGaussians/camera"
)

// quaternionFromRotation is the inverse of camera.RotationFromQuaternion,
// using the trace method with the usual stability branches.
func quaternionFromRotation(r *mat.Dense) quat.Number {
	m00, m01, m02 := r.At(0, 0), r.At(0, 1), r.At(0, 2)
	m10, m11, m12 := r.At(1, 0), r.At(1, 1), r.At(1, 2)
	m20, m21, m22 := r.At(2, 0), r.At(2, 1), r.At(2, 2)

	trace := m00 + m11 + m22
	var q quat.Number
	switch {
	case trace > 0:
		s := 2 * math.Sqrt(trace+1)
		q = quat.Number{Real: s / 4, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{Real: (m21 - m12) / s, Imag: s / 4, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: s / 4, Kmag: (m12 + m21) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: s / 4}
	}
	return quat.Scale(1/quat.Abs(q), q)
}

func slerp(q1, q2 quat.Number, t float64) quat.Number {
	dot := q1.Real*q2.Real + q1.Imag*q2.Imag + q1.Jmag*q2.Jmag + q1.Kmag*q2.Kmag
	if dot < 0 {
		q2 = quat.Scale(-1, q2)
		dot = -dot
	}
	if dot > 0.9995 {
		q := quat.Add(q1, quat.Scale(t, quat.Sub(q2, q1)))
		return quat.Scale(1/quat.Abs(q), q)
	}
	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	return quat.Add(
		quat.Scale(math.Sin((1-t)*theta)/sinTheta, q1),
		quat.Scale(math.Sin(t*theta)/sinTheta, q2),
	)
}

type coordinateSpline interface {
	Predict(x float64) float64
}

func fitSpline(xs, ys []float64) (coordinateSpline, error) {
	// Akima wants a handful of knots; short key lists degrade to linear.
	if len(xs) >= 5 {
		var s interp.AkimaSpline
		if err := s.Fit(xs, ys); err != nil {
			return nil, err
		}
		return &s, nil
	}
	var s interp.PiecewiseLinear
	if err := s.Fit(xs, ys); err != nil {
		return nil, err
	}
	return &s, nil
}

// interpolatePoses returns n rigid transforms splined through the given key
// 4x4 transforms: positions through a per-coordinate spline, rotations by
// spherical interpolation between adjacent keys.
func interpolatePoses(keys []*mat.Dense, n int) ([]*mat.Dense, error) {
	if len(keys) < 2 {
		return nil, errors.Errorf("need at least 2 key poses to interpolate, got %d", len(keys))
	}
	xs := make([]float64, len(keys))
	coords := make([][]float64, 3)
	quats := make([]quat.Number, len(keys))
	for i := range coords {
		coords[i] = make([]float64, len(keys))
	}
	for i, key := range keys {
		xs[i] = float64(i)
		for c := 0; c < 3; c++ {
			coords[c][i] = key.At(c, 3)
		}
		var rot mat.Dense
		rot.CloneFrom(key.Slice(0, 3, 0, 3))
		quats[i] = quaternionFromRotation(&rot)
	}

	splines := make([]coordinateSpline, 3)
	for c := 0; c < 3; c++ {
		s, err := fitSpline(xs, coords[c])
		if err != nil {
			return nil, errors.Wrap(err, "fitting camera path spline")
		}
		splines[c] = s
	}

	out := make([]*mat.Dense, n)
	span := float64(len(keys) - 1)
	for i := 0; i < n; i++ {
		x := 0.0
		if n > 1 {
			x = span * float64(i) / float64(n-1)
		}
		seg := int(math.Floor(x))
		if seg >= len(keys)-1 {
			seg = len(keys) - 2
		}
		q := slerp(quats[seg], quats[seg+1], x-float64(seg))

		pose := mat.NewDense(4, 4, nil)
		pose.Copy(camera.RotationFromQuaternion(q))
		for c := 0; c < 3; c++ {
			pose.Set(c, 3, splines[c].Predict(x))
		}
		pose.Set(3, 3, 1)
		out[i] = pose
	}
	return out, nil
}

// cameraToWorld rebuilds the 4x4 camera-to-world transform of a record from
// its stored rotation and translation.
func cameraToWorld(rec *camera.Record) (*mat.Dense, error) {
	rt := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt.Set(i, j, rec.R.At(i, j))
		}
	}
	rt.Set(0, 3, rec.T.X)
	rt.Set(1, 3, rec.T.Y)
	rt.Set(2, 3, rec.T.Z)
	rt.Set(3, 3, 1)
	var c2w mat.Dense
	if err := c2w.Inverse(rt); err != nil {
		return nil, errors.Wrap(err, "camera pose is singular")
	}
	return &c2w, nil
}

// pathRecords converts interpolated transforms back into image-free video
// records, with fields of view and extent borrowed from a template record
// and times drawn cyclically from the given sequence. The key poses were
// built by inverting stored rotations directly, so inverting again lands
// back in the stored convention without a transpose.
func pathRecords(poses []*mat.Dense, template *camera.Record, times []float64) ([]*camera.Record, error) {
	records := make([]*camera.Record, len(poses))
	for i, pose := range poses {
		var w2c mat.Dense
		if err := w2c.Inverse(pose); err != nil {
			return nil, errors.Wrap(err, "interpolated pose is singular")
		}
		records[i] = &camera.Record{
			UID:       i,
			R:         mat.DenseCopyOf(w2c.Slice(0, 3, 0, 3)),
			T:         r3.Vector{X: w2c.At(0, 3), Y: w2c.At(1, 3), Z: w2c.At(2, 3)},
			FovX:      template.FovX,
			FovY:      template.FovY,
			Width:     template.Width,
			Height:    template.Height,
			Time:      times[i%len(times)],
			ImageName: fmt.Sprintf("%05d", i),
		}
	}
	return records, nil
}
