package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/chenzhekl/goply"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/RR-2000/4DGaussians/colmap"
)

// plyVertexProps are the fields every persisted cloud carries, in order:
// positions and normals as float32, colors as 0-255 scaled float32.
var plyVertexProps = []string{"x", "y", "z", "nx", "ny", "nz", "red", "green", "blue"}

// ReadPLY parses a PLY vertex list into a cloud. Colors are rescaled from
// 0-255 to [0,1]; normals are read as stored.
func ReadPLY(path string, logger golog.Logger) (*PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var magic [4]byte
	if _, err := f.Read(magic[:]); err != nil || string(magic[:3]) != "ply" {
		return nil, errors.Wrapf(ErrCorruptPointCloud, "%q is not a PLY file", path)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	vertices, err := readPLYVertices(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	logger.Debugf("read %d vertices from %s", len(vertices), path)

	pc := &PointCloud{
		Positions: make([]r3.Vector, len(vertices)),
		Colors:    make([]r3.Vector, len(vertices)),
		Normals:   make([]r3.Vector, len(vertices)),
	}
	for i, v := range vertices {
		vals := make([]float64, len(plyVertexProps))
		for j, prop := range plyVertexProps {
			val, ok := asFloat(v[prop])
			if !ok {
				return nil, errors.Wrapf(ErrCorruptPointCloud, "%q vertex %d missing property %q", path, i, prop)
			}
			vals[j] = val
		}
		pc.Positions[i] = r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}
		pc.Normals[i] = r3.Vector{X: vals[3], Y: vals[4], Z: vals[5]}
		pc.Colors[i] = r3.Vector{X: vals[6] / 255.0, Y: vals[7] / 255.0, Z: vals[8] / 255.0}
	}
	return pc, nil
}

// goply panics on truncated payloads rather than returning an error.
func readPLYVertices(f *os.File) (vertices []goply.PlyElement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrCorruptPointCloud, "malformed PLY: %v", r)
		}
	}()
	ply := goply.New(f)
	return ply.Elements("vertex"), nil
}

func asFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int32:
		return float64(val), true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}

// WritePLY persists positions and [0,1] colors as a binary PLY vertex list
// with zero normals. Every attribute is a float32; colors are scaled to
// 0-255. The write goes through a temp file and rename so a concurrent
// re-run of the same conversion degrades to last-writer-wins.
func WritePLY(path string, positions, colors []r3.Vector) (err error) {
	if len(positions) != len(colors) {
		return errors.Errorf("have %d positions but %d colors", len(positions), len(colors))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ply-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			utils.UncheckedErrorFunc(func() error { return os.Remove(tmp.Name()) })
		}
	}()

	out := bufio.NewWriter(tmp)
	fmt.Fprintf(out, "ply\nformat binary_little_endian 1.0\n")
	fmt.Fprintf(out, "element vertex %d\n", len(positions))
	for _, prop := range plyVertexProps {
		fmt.Fprintf(out, "property float %s\n", prop)
	}
	fmt.Fprintf(out, "end_header\n")

	buf := make([]byte, 4*len(plyVertexProps))
	for i, pos := range positions {
		c := colors[i]
		vals := []float64{pos.X, pos.Y, pos.Z, 0, 0, 0, c.X * 255.0, c.Y * 255.0, c.Z * 255.0}
		for j, v := range vals {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(float32(v)))
		}
		if _, err = out.Write(buf); err != nil {
			return err
		}
	}
	if err = out.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FromColmapPoints converts triangulated sparse points into a cloud with
// zero normals.
func FromColmapPoints(points []colmap.Point3D) *PointCloud {
	pc := &PointCloud{
		Positions: make([]r3.Vector, len(points)),
		Colors:    make([]r3.Vector, len(points)),
		Normals:   make([]r3.Vector, len(points)),
	}
	for i, pt := range points {
		pc.Positions[i] = pt.XYZ
		pc.Colors[i] = r3.Vector{
			X: float64(pt.Color[0]) / 255.0,
			Y: float64(pt.Color[1]) / 255.0,
			Z: float64(pt.Color[2]) / 255.0,
		}
	}
	return pc
}

// EnsurePLY converts the COLMAP sparse point dump named base.bin or
// base.txt under dir (binary first, text fallback) to base.ply the first
// time a scene directory is opened. The conversion is skipped when the PLY
// already exists; its content is a pure function of the source
// reconstruction, so no locking is needed.
func EnsurePLY(dir, base string, logger golog.Logger) (string, error) {
	plyPath := filepath.Join(dir, base+".ply")
	if _, err := os.Stat(plyPath); err == nil {
		return plyPath, nil
	}
	logger.Infof("converting %s points in %s to %s; this happens only the first time the scene is opened", base, dir, plyPath)
	points, err := colmap.ReadPoints3D(dir, base)
	if err != nil {
		return "", err
	}
	pc := FromColmapPoints(points)
	if err := WritePLY(plyPath, pc.Positions, pc.Colors); err != nil {
		return "", err
	}
	return plyPath, nil
}
