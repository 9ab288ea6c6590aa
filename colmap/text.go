package colmap

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"
)

// The text dumps are whitespace-delimited with '#' comment lines. images.txt
// alternates a pose line with an observation line; the latter is skipped.

func scanDataLines(path string, fn func(fields []string) error) error {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(strings.Fields(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", f)
		}
		out[i] = v
	}
	return out, nil
}

// ReadIntrinsicsText parses a cameras.txt file into a camera-id keyed map.
func ReadIntrinsicsText(path string) (map[int32]Camera, error) {
	cameras := map[int32]Camera{}
	err := scanDataLines(path, func(fields []string) error {
		if len(fields) < 4 {
			return errors.Errorf("camera line has %d fields, want at least 4", len(fields))
		}
		id, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return errors.Wrap(err, "camera id")
		}
		model, err := modelByName(fields[1])
		if err != nil {
			return err
		}
		width, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return errors.Wrap(err, "camera width")
		}
		height, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return errors.Wrap(err, "camera height")
		}
		params, err := parseFloats(fields[4:])
		if err != nil {
			return errors.Wrap(err, "camera params")
		}
		if want := modelSpecs[model].numParams; len(params) != want {
			return errors.Errorf("model %s wants %d params, got %d", model, want, len(params))
		}
		cameras[int32(id)] = Camera{
			ID: int32(id), Model: model, Width: width, Height: height, Params: params,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cameras, nil
}

// ReadExtrinsicsText parses an images.txt file into an image-id keyed map.
func ReadExtrinsicsText(path string) (map[int32]Image, error) {
	images := map[int32]Image{}
	poseLine := true
	err := scanDataLines(path, func(fields []string) error {
		if !poseLine {
			// observation line; nothing to keep
			poseLine = true
			return nil
		}
		if len(fields) < 10 {
			return errors.Errorf("image line has %d fields, want 10", len(fields))
		}
		id, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return errors.Wrap(err, "image id")
		}
		pose, err := parseFloats(fields[1:8])
		if err != nil {
			return errors.Wrap(err, "image pose")
		}
		camID, err := strconv.ParseInt(fields[8], 10, 32)
		if err != nil {
			return errors.Wrap(err, "image camera id")
		}
		images[int32(id)] = Image{
			ID:       int32(id),
			QVec:     quat.Number{Real: pose[0], Imag: pose[1], Jmag: pose[2], Kmag: pose[3]},
			TVec:     r3.Vector{X: pose[4], Y: pose[5], Z: pose[6]},
			CameraID: int32(camID),
			Name:     fields[9],
		}
		poseLine = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// ReadPoints3DText parses a points3D.txt file. Track data is skipped.
func ReadPoints3DText(path string) ([]Point3D, error) {
	var points []Point3D
	err := scanDataLines(path, func(fields []string) error {
		if len(fields) < 8 {
			return errors.Errorf("point line has %d fields, want at least 8", len(fields))
		}
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return errors.Wrap(err, "point id")
		}
		vals, err := parseFloats(fields[1:8])
		if err != nil {
			return errors.Wrap(err, "point values")
		}
		points = append(points, Point3D{
			ID:    id,
			XYZ:   r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]},
			Color: [3]uint8{uint8(vals[3]), uint8(vals[4]), uint8(vals[5])},
			Error: vals[6],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}
