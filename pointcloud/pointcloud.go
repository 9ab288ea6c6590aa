// Package pointcloud holds the portable point-cloud model the scene readers
// converge on: positions, colors and normals of equal length, persisted as a
// PLY vertex list and synthesized at random when a capture ships no geometry.
package pointcloud

import (
	"math/rand"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrCorruptPointCloud is returned when a persisted cloud does not match the
// expected vertex schema.
var ErrCorruptPointCloud = errors.New("corrupt point cloud file")

// shC0 is the zeroth-order spherical harmonics coefficient; shToRGB recovers
// a base color from an SH DC term.
const shC0 = 0.28209479177387814

func shToRGB(sh r3.Vector) r3.Vector {
	return r3.Vector{X: sh.X*shC0 + 0.5, Y: sh.Y*shC0 + 0.5, Z: sh.Z*shC0 + 0.5}
}

// PointCloud is reconstructed or synthesized scene geometry. Color components
// are RGB in [0,1], carried on the vector fields.
type PointCloud struct {
	Positions []r3.Vector
	Colors    []r3.Vector
	Normals   []r3.Vector
}

// New returns a cloud over the given attribute slices. The slices must share
// one length; a nil Normals is filled with zeros.
func New(positions, colors, normals []r3.Vector) (*PointCloud, error) {
	if normals == nil {
		normals = make([]r3.Vector, len(positions))
	}
	pc := &PointCloud{Positions: positions, Colors: colors, Normals: normals}
	if err := pc.CheckValid(); err != nil {
		return nil, err
	}
	return pc, nil
}

// Size returns the number of points.
func (pc *PointCloud) Size() int {
	return len(pc.Positions)
}

// CheckValid verifies the attribute slices share one length.
func (pc *PointCloud) CheckValid() error {
	if len(pc.Colors) != len(pc.Positions) || len(pc.Normals) != len(pc.Positions) {
		return errors.Errorf("attribute lengths disagree: %d positions, %d colors, %d normals",
			len(pc.Positions), len(pc.Colors), len(pc.Normals))
	}
	return nil
}

// Random synthesizes n points uniformly inside the cube [lo,hi]^3 with base
// colors derived from small random SH terms and zero normals. It stands in
// for reconstructed geometry when a capture has none.
func Random(n int, lo, hi float64) *PointCloud {
	positions := make([]r3.Vector, n)
	colors := make([]r3.Vector, n)
	span := hi - lo
	for i := 0; i < n; i++ {
		positions[i] = r3.Vector{
			X: rand.Float64()*span + lo,
			Y: rand.Float64()*span + lo,
			Z: rand.Float64()*span + lo,
		}
		colors[i] = shToRGB(r3.Vector{
			X: rand.Float64() / 255.0,
			Y: rand.Float64() / 255.0,
			Z: rand.Float64() / 255.0,
		})
	}
	return &PointCloud{Positions: positions, Colors: colors, Normals: make([]r3.Vector, n)}
}

// Subsample returns the cloud itself when it has at most n points, otherwise
// a cloud of n points drawn without replacement.
func (pc *PointCloud) Subsample(n int) *PointCloud {
	if pc.Size() <= n {
		return pc
	}
	perm := rand.Perm(pc.Size())[:n]
	out := &PointCloud{
		Positions: make([]r3.Vector, n),
		Colors:    make([]r3.Vector, n),
		Normals:   make([]r3.Vector, n),
	}
	for i, j := range perm {
		out.Positions[i] = pc.Positions[j]
		out.Colors[i] = pc.Colors[j]
		out.Normals[i] = pc.Normals[j]
	}
	return out
}
