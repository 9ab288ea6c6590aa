package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/RR-2000/4DGaussians/numpy"
)

// ReadNPZ loads an initial cloud from a numpy archive whose named member is
// an (N, 7) float array of x y z r g b seg rows, the layout Panoptic-Sports
// captures ship as init_pt_cld.npz. Colors are already in [0,1]; normals
// come back as ones, matching how these captures are seeded downstream.
func ReadNPZ(path, member string) (*PointCloud, error) {
	rows, err := numpy.ReadArchiveMatrix(path, member)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptPointCloud, "%v", err)
	}
	if len(rows) > 0 && len(rows[0]) < 6 {
		return nil, errors.Wrapf(ErrCorruptPointCloud, "%q rows have %d columns, want at least 6", path, len(rows[0]))
	}
	pc := &PointCloud{
		Positions: make([]r3.Vector, len(rows)),
		Colors:    make([]r3.Vector, len(rows)),
		Normals:   make([]r3.Vector, len(rows)),
	}
	for i, row := range rows {
		pc.Positions[i] = r3.Vector{X: row[0], Y: row[1], Z: row[2]}
		pc.Colors[i] = r3.Vector{X: row[3], Y: row[4], Z: row[5]}
		pc.Normals[i] = r3.Vector{X: 1, Y: 1, Z: 1}
	}
	return pc, nil
}
