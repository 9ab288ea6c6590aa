package colmap

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"
)

// All COLMAP binary dumps are little-endian.

func readLE(in io.Reader, data interface{}) error {
	return binary.Read(in, binary.LittleEndian, data)
}

func readNullTerminated(in *bufio.Reader) (string, error) {
	s, err := in.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

// ReadIntrinsicsBinary parses a cameras.bin file into a camera-id keyed map.
func ReadIntrinsicsBinary(path string) (map[int32]Camera, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	in := bufio.NewReader(f)

	var numCameras uint64
	if err := readLE(in, &numCameras); err != nil {
		return nil, errors.Wrap(err, "reading camera count")
	}
	cameras := make(map[int32]Camera, numCameras)
	for i := uint64(0); i < numCameras; i++ {
		var cam Camera
		var modelID int32
		if err := readLE(in, &cam.ID); err != nil {
			return nil, errors.Wrapf(err, "reading camera %d", i)
		}
		if err := readLE(in, &modelID); err != nil {
			return nil, errors.Wrapf(err, "reading camera %d model", i)
		}
		cam.Model = CameraModel(modelID)
		spec, ok := modelSpecs[cam.Model]
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedCameraModel, "model id %d", modelID)
		}
		if err := readLE(in, &cam.Width); err != nil {
			return nil, errors.Wrapf(err, "reading camera %d width", i)
		}
		if err := readLE(in, &cam.Height); err != nil {
			return nil, errors.Wrapf(err, "reading camera %d height", i)
		}
		cam.Params = make([]float64, spec.numParams)
		if err := readLE(in, cam.Params); err != nil {
			return nil, errors.Wrapf(err, "reading camera %d params", i)
		}
		cameras[cam.ID] = cam
	}
	return cameras, nil
}

// ReadExtrinsicsBinary parses an images.bin file into an image-id keyed map.
// Per-image 2D observations are skipped; only the pose block is kept.
func ReadExtrinsicsBinary(path string) (map[int32]Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	in := bufio.NewReader(f)

	var numImages uint64
	if err := readLE(in, &numImages); err != nil {
		return nil, errors.Wrap(err, "reading image count")
	}
	images := make(map[int32]Image, numImages)
	for i := uint64(0); i < numImages; i++ {
		var img Image
		if err := readLE(in, &img.ID); err != nil {
			return nil, errors.Wrapf(err, "reading image %d", i)
		}
		var pose [7]float64
		if err := readLE(in, pose[:]); err != nil {
			return nil, errors.Wrapf(err, "reading image %d pose", i)
		}
		img.QVec = quat.Number{Real: pose[0], Imag: pose[1], Jmag: pose[2], Kmag: pose[3]}
		img.TVec = r3.Vector{X: pose[4], Y: pose[5], Z: pose[6]}
		if err := readLE(in, &img.CameraID); err != nil {
			return nil, errors.Wrapf(err, "reading image %d camera id", i)
		}
		if img.Name, err = readNullTerminated(in); err != nil {
			return nil, errors.Wrapf(err, "reading image %d name", i)
		}
		var numPoints2D uint64
		if err := readLE(in, &numPoints2D); err != nil {
			return nil, errors.Wrapf(err, "reading image %d observation count", i)
		}
		// x, y float64 and a point3D id int64 per observation
		if _, err := in.Discard(int(numPoints2D) * 24); err != nil {
			return nil, errors.Wrapf(err, "skipping image %d observations", i)
		}
		images[img.ID] = img
	}
	return images, nil
}

// ReadPoints3DBinary parses a points3D.bin file. Track data is skipped.
func ReadPoints3DBinary(path string) ([]Point3D, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	in := bufio.NewReader(f)

	var numPoints uint64
	if err := readLE(in, &numPoints); err != nil {
		return nil, errors.Wrap(err, "reading point count")
	}
	points := make([]Point3D, 0, numPoints)
	for i := uint64(0); i < numPoints; i++ {
		var pt Point3D
		if err := readLE(in, &pt.ID); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		var xyz [3]float64
		if err := readLE(in, xyz[:]); err != nil {
			return nil, errors.Wrapf(err, "reading point %d position", i)
		}
		pt.XYZ = r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		if err := readLE(in, pt.Color[:]); err != nil {
			return nil, errors.Wrapf(err, "reading point %d color", i)
		}
		if err := readLE(in, &pt.Error); err != nil {
			return nil, errors.Wrapf(err, "reading point %d error", i)
		}
		var trackLen uint64
		if err := readLE(in, &trackLen); err != nil {
			return nil, errors.Wrapf(err, "reading point %d track length", i)
		}
		// image id and point2D index, int32 each, per track element
		if _, err := in.Discard(int(trackLen) * 8); err != nil {
			return nil, errors.Wrapf(err, "skipping point %d track", i)
		}
		points = append(points, pt)
	}
	return points, nil
}
